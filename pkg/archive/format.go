// Package archive implements the self-describing binary container of spec
// §3/§4.6/§4.7: a magic prefix, a length-prefixed manifest, and a
// concatenated chunk payload region, plus the bounded-concurrency pipeline
// that builds one and the reader that opens one.
package archive

import (
	"encoding/binary"
	"io"

	"golang.org/x/crypto/blake2b"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

// magic is the fixed 4-byte prefix identifying a bitaforge archive.
var magic = [4]byte{'b', 'i', 't', 'a'}

// manifestChecksumSize is the length of the Blake2 digest following the
// manifest body; this is fixed regardless of the chunk hash algorithm, per
// spec §9.
const manifestChecksumSize = 64

// headerLengthSize is the width of the big-endian length field at offset 4.
const headerLengthSize = 8

// frameHeader assembles the bytes preceding the payload region: magic,
// header length, manifest body, and the manifest's own Blake2 digest.
func frameHeader(manifestBytes []byte) []byte {
	sum := blake2b.Sum512(manifestBytes)

	headerLen := uint64(len(manifestBytes) + manifestChecksumSize)
	out := make([]byte, 0, len(magic)+headerLengthSize+len(manifestBytes)+manifestChecksumSize)
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint64(out, headerLen)
	out = append(out, manifestBytes...)
	out = append(out, sum[:]...)
	return out
}

// readHeader reads and validates the magic + length-prefixed manifest body
// from r, returning the raw manifest bytes (still encoded). It implements
// the open-time invariants 1 and 2 of spec §3.
func readHeader(r io.Reader) (manifestBytes []byte, err error) {
	prefix := make([]byte, len(magic)+headerLengthSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return nil, archiveerr.New(archiveerr.NotAnArchive, "failed to read archive header", err)
	}
	headerLen, err := parsePrefix(prefix)
	if err != nil {
		return nil, err
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, archiveerr.New(archiveerr.NotAnArchive, "failed to read manifest body", err)
	}

	return verifyManifestChecksum(header)
}

// parsePrefix decodes the fixed 12-byte magic+length prefix.
func parsePrefix(prefix []byte) (headerLen uint64, err error) {
	if len(prefix) != len(magic)+headerLengthSize {
		return 0, archiveerr.New(archiveerr.NotAnArchive, "short archive prefix", nil)
	}
	if [4]byte(prefix[:4]) != magic {
		return 0, archiveerr.New(archiveerr.NotAnArchive, "magic prefix mismatch", nil)
	}
	headerLen = binary.BigEndian.Uint64(prefix[4:])
	if headerLen < manifestChecksumSize {
		return 0, archiveerr.New(archiveerr.NotAnArchive, "header length shorter than manifest checksum", nil)
	}
	return headerLen, nil
}

// verifyManifestChecksum splits header (manifest body ‖ 64-byte Blake2
// digest) and confirms the digest matches, implementing invariant 2 of
// spec §3.
func verifyManifestChecksum(header []byte) (manifestBytes []byte, err error) {
	manifestBytes = header[:len(header)-manifestChecksumSize]
	storedSum := header[len(header)-manifestChecksumSize:]

	gotSum := blake2b.Sum512(manifestBytes)
	if string(gotSum[:]) != string(storedSum) {
		return nil, archiveerr.New(archiveerr.ChecksumMismatch, "manifest checksum mismatch", nil)
	}
	return manifestBytes, nil
}

// headerSize returns the number of bytes occupied by magic + length field +
// manifestBytes + manifest checksum, i.e. the byte offset where the payload
// region begins.
func headerSize(manifestBytes []byte) int64 {
	return int64(len(magic)) + headerLengthSize + int64(len(manifestBytes)) + manifestChecksumSize
}
