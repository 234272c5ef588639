// Package integrity computes a Merkle fingerprint over an archive
// manifest's chunk descriptors, surfaced by the `info` subcommand as a
// single value that changes if any chunk's checksum, size, or position in
// rebuild_order changes — a cheaper tamper signal than re-hashing the whole
// reconstructed source.
package integrity

import (
	"crypto/sha256"
	"fmt"

	"github.com/cbergoon/merkletree"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/manifest"
)

// descriptorContent adapts one rebuild_order position to merkletree.Content,
// binding a chunk's checksum to its position and declared size so that a
// reorder or a truncated/extended chunk also changes the fingerprint.
type descriptorContent struct {
	position uint32
	checksum []byte
	size     uint32
}

func (d descriptorContent) CalculateHash() ([]byte, error) {
	h := sha256.New()
	if _, err := h.Write(d.checksum); err != nil {
		return nil, err
	}
	var buf [8]byte
	buf[0] = byte(d.position >> 24)
	buf[1] = byte(d.position >> 16)
	buf[2] = byte(d.position >> 8)
	buf[3] = byte(d.position)
	buf[4] = byte(d.size >> 24)
	buf[5] = byte(d.size >> 16)
	buf[6] = byte(d.size >> 8)
	buf[7] = byte(d.size)
	if _, err := h.Write(buf[:]); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

func (d descriptorContent) Equals(other merkletree.Content) (bool, error) {
	o, ok := other.(descriptorContent)
	if !ok {
		return false, fmt.Errorf("integrity: content type mismatch")
	}
	return d.position == o.position && d.size == o.size && string(d.checksum) == string(o.checksum), nil
}

// Fingerprint holds a built tree and its root, kept together so Verify can
// re-check structural validity without rebuilding from a manifest.
type Fingerprint struct {
	tree *merkletree.MerkleTree
	Root []byte
}

// Build computes a Merkle fingerprint over m's rebuild_order.
func Build(m *manifest.Manifest) (*Fingerprint, error) {
	if len(m.RebuildOrder) == 0 {
		return nil, archiveerr.New(archiveerr.Other, "cannot fingerprint a manifest with an empty rebuild_order", nil)
	}

	contents := make([]merkletree.Content, len(m.RebuildOrder))
	for i, idx := range m.RebuildOrder {
		d := m.ChunkDescriptors[idx]
		contents[i] = descriptorContent{position: uint32(i), checksum: d.Checksum, size: d.SourceSize}
	}

	tree, err := merkletree.NewTree(contents)
	if err != nil {
		return nil, archiveerr.New(archiveerr.Other, "build merkle tree", err)
	}

	return &Fingerprint{tree: tree, Root: tree.MerkleRoot()}, nil
}

// Verify confirms the fingerprint's internal tree structure is consistent,
// i.e. every internal node's hash actually derives from its children.
func (f *Fingerprint) Verify() (bool, error) {
	ok, err := f.tree.VerifyTree()
	if err != nil {
		return false, archiveerr.New(archiveerr.Other, "verify merkle tree", err)
	}
	return ok, nil
}
