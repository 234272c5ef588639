// Package chunker streams a byte source and emits content-defined or
// fixed-size chunks, following the boundary rules of spec §4.2. It exposes
// both a blocking pull mode over a synchronous io.Reader and a non-blocking
// poll mode over a source that may have no data ready; both share the same
// internal state machine so they produce identical boundaries for identical
// input, independent of how bytes are delivered.
package chunker

import (
	"bufio"
	"errors"
	"io"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/rollhash"
)

// refillSize is the block granularity the blocking reader buffers in,
// matching the ~1 MiB refill window of spec §4.2.
const refillSize = 1 << 20

// Chunk is one emitted (offset, bytes) pair.
type Chunk struct {
	Offset uint64
	Data   []byte
}

// rollingEngine is satisfied by both rollhash.RollSum and rollhash.BuzHash.
type rollingEngine interface {
	Init(window []byte)
	Step(out, in byte) uint32
	Sum() uint32
}

// chunkState holds the boundary-decision machinery shared by both chunker
// modes. It is not safe for concurrent use; a chunker is single-producer
// per spec §5.
type chunkState struct {
	cfg    Config
	mask   uint32
	engine rollingEngine
	buf    []byte
	warm   bool
	offset uint64
}

func newChunkState(cfg Config) (*chunkState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &chunkState{cfg: cfg}
	switch cfg.Algorithm {
	case RollSum:
		s.mask = cfg.mask()
		s.engine = rollhash.NewRollSum(cfg.WindowSize)
	case BuzHash:
		s.mask = cfg.mask()
		s.engine = rollhash.NewBuzHash(cfg.WindowSize)
	case FixedSize:
		// no rolling engine needed
	}
	return s, nil
}

// feed appends b to the current chunk and reports whether a boundary falls
// immediately after it.
func (s *chunkState) feed(b byte) bool {
	s.buf = append(s.buf, b)
	n := len(s.buf)

	if s.cfg.Algorithm == FixedSize {
		return n >= s.cfg.ChunkSize
	}

	switch {
	case n < s.cfg.WindowSize:
		// Hash has not warmed up for this chunk yet; nothing to do.
	case n == s.cfg.WindowSize:
		s.engine.Init(s.buf)
		s.warm = true
	default:
		out := s.buf[n-s.cfg.WindowSize-1]
		s.engine.Step(out, b)
	}

	if n < s.cfg.MinChunkSize {
		return false
	}
	if s.warm && (s.engine.Sum()&s.mask) == s.mask {
		return true
	}
	return n >= s.cfg.MaxChunkSize
}

// cut finalizes and returns the accumulated chunk, then resets state for the
// next one.
func (s *chunkState) cut() Chunk {
	ch := Chunk{Offset: s.offset, Data: s.buf}
	s.offset += uint64(len(s.buf))
	s.buf = nil
	s.warm = false
	return ch
}

func (s *chunkState) pending() bool {
	return len(s.buf) > 0
}

// Chunker pulls chunks from a synchronous io.Reader, blocking on reads as
// needed.
type Chunker struct {
	r     *bufio.Reader
	state *chunkState
}

// New builds a blocking Chunker over r using cfg.
func New(r io.Reader, cfg Config) (*Chunker, error) {
	state, err := newChunkState(cfg)
	if err != nil {
		return nil, err
	}
	return &Chunker{r: bufio.NewReaderSize(r, refillSize), state: state}, nil
}

// Next returns the next chunk, or io.EOF once the source and any final
// partial chunk have both been consumed.
func (c *Chunker) Next() (Chunk, error) {
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if !c.state.pending() {
					return Chunk{}, io.EOF
				}
				return c.state.cut(), nil
			}
			return Chunk{}, archiveerr.New(archiveerr.IO, "chunker read failed", err)
		}
		if c.state.feed(b) {
			return c.state.cut(), nil
		}
	}
}

// PollReader is the non-blocking counterpart to io.Reader: TryReadByte
// returns ok=false (with a nil error) when the source has no byte ready
// right now, rather than blocking the caller.
type PollReader interface {
	TryReadByte() (b byte, ok bool, err error)
}

// PollChunker pulls chunks from a PollReader without ever blocking the
// caller. When the source would block it returns control immediately; all
// partial-chunk state is retained internally, so a later Poll call resumes
// exactly where the previous one left off.
type PollChunker struct {
	r     PollReader
	state *chunkState
	done  bool
}

// NewPoll builds a non-blocking PollChunker over r using cfg.
func NewPoll(r PollReader, cfg Config) (*PollChunker, error) {
	state, err := newChunkState(cfg)
	if err != nil {
		return nil, err
	}
	return &PollChunker{r: r, state: state}, nil
}

// Poll attempts to produce the next chunk without blocking. ready=true
// means chunk is valid. ready=false with a nil error means the source has
// no data right now; call Poll again later. ready=false with io.EOF means
// the source and any trailing partial chunk are both exhausted.
func (c *PollChunker) Poll() (chunk Chunk, ready bool, err error) {
	if c.done {
		return Chunk{}, false, io.EOF
	}
	for {
		b, ok, rerr := c.r.TryReadByte()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				c.done = true
				if !c.state.pending() {
					return Chunk{}, false, io.EOF
				}
				return c.state.cut(), true, nil
			}
			return Chunk{}, false, archiveerr.New(archiveerr.IO, "chunker poll read failed", rerr)
		}
		if !ok {
			return Chunk{}, false, nil
		}
		if c.state.feed(b) {
			return c.state.cut(), true, nil
		}
	}
}
