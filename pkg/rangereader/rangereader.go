// Package rangereader implements the abstract random-access range reader
// capability of spec §4.7: read_at(offset, length) → bytes, callable
// concurrently on disjoint ranges.
package rangereader

import "context"

// RangeReader returns exactly length bytes starting at offset, or an error.
// Implementations MUST be safe for concurrent calls on disjoint ranges.
type RangeReader interface {
	ReadAt(ctx context.Context, offset uint64, length uint32) ([]byte, error)
}
