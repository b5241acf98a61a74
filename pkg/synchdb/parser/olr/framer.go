package olr

import (
	"encoding/binary"
	"fmt"

	"github.com/cdcbridge/synchdb/pkg/synchdb/synchdberr"
)

// frameState is the Framer's cooperative-reader state, exactly the four
// states spec.md §4.F names: ReadLen, ReadPayload, Decode, Emit. Decode
// and Emit are the caller's concern (parsing the completed payload as
// JSON and dispatching on payload.op); Framer itself only ever occupies
// ReadLen or ReadPayload between Feed calls.
type frameState int

const (
	stateReadLen frameState = iota
	stateReadPayload
)

// Framer implements the length-prefixed frame accumulator: 4 little-
// endian length bytes followed by that many payload bytes. It is fed
// arbitrarily-sized chunks (as read off a socket) and emits every frame
// that becomes complete, without blocking — the single-threaded
// cooperative reader spec.md §4.F and §5 describe. Buffer compaction is
// implicit in Go's slice re-slicing: a fully-consumed buffer is
// discarded, a partially-consumed one keeps its remainder without a
// manual memmove.
type Framer struct {
	state   frameState
	buf     []byte
	needLen uint32
}

// NewFramer returns a Framer ready to read its first 4-byte length
// prefix.
func NewFramer() *Framer {
	return &Framer{state: stateReadLen}
}

// Feed appends data to the internal buffer and returns every frame
// payload that became complete as a result, in order. It never blocks:
// an incomplete trailing frame is retained in the buffer for the next
// Feed call.
func (f *Framer) Feed(data []byte) [][]byte {
	f.buf = append(f.buf, data...)

	var frames [][]byte
	for {
		switch f.state {
		case stateReadLen:
			if len(f.buf) < 4 {
				return frames
			}
			f.needLen = binary.LittleEndian.Uint32(f.buf[:4])
			f.buf = f.buf[4:]
			f.state = stateReadPayload

		case stateReadPayload:
			if uint32(len(f.buf)) < f.needLen {
				return frames
			}
			payload := make([]byte, f.needLen)
			copy(payload, f.buf[:f.needLen])
			f.buf = f.buf[f.needLen:]
			frames = append(frames, payload)
			f.state = stateReadLen
		}
	}
}

// EncodeFrame prepends a 4-byte little-endian length prefix to payload,
// the inverse of Feed, used by Client to write outbound RedoRequest
// frames.
func EncodeFrame(payload []byte) []byte {
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	return append(hdr[:], payload...)
}

// readOneFrame is a small blocking helper for the synchronous control
// handshake (Start), where the client sends one RedoRequest and must wait
// for exactly one RedoResponse before proceeding — unlike the
// free-running event stream, which uses Framer.Feed non-blockingly.
func readOneFrame(read func([]byte) (int, error)) ([]byte, error) {
	var hdr [4]byte
	if err := readFull(read, hdr[:]); err != nil {
		return nil, fmt.Errorf("%w: read frame length: %v", synchdberr.ErrTransportError, err)
	}
	size := binary.LittleEndian.Uint32(hdr[:])
	payload := make([]byte, size)
	if err := readFull(read, payload); err != nil {
		return nil, fmt.Errorf("%w: read frame payload: %v", synchdberr.ErrTransportError, err)
	}
	return payload, nil
}

func readFull(read func([]byte) (int, error), buf []byte) error {
	for total := 0; total < len(buf); {
		n, err := read(buf[total:])
		if n > 0 {
			total += n
		}
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("read returned 0 bytes with no error")
		}
	}
	return nil
}
