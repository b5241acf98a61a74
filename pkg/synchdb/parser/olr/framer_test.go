package olr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerSingleFrameAcrossFeeds(t *testing.T) {
	f := NewFramer()
	payload := []byte(`{"payload":{"op":"c"}}`)
	framed := EncodeFrame(payload)

	frames := f.Feed(framed[:3])
	assert.Empty(t, frames)

	frames = f.Feed(framed[3:6])
	assert.Empty(t, frames)

	frames = f.Feed(framed[6:])
	require.Len(t, frames, 1)
	assert.Equal(t, payload, frames[0])
}

func TestFramerMultipleFramesOneFeed(t *testing.T) {
	f := NewFramer()
	p1 := []byte(`{"a":1}`)
	p2 := []byte(`{"b":2}`)
	buf := append(EncodeFrame(p1), EncodeFrame(p2)...)

	frames := f.Feed(buf)
	require.Len(t, frames, 2)
	assert.Equal(t, p1, frames[0])
	assert.Equal(t, p2, frames[1])
}

func TestFramerRetainsPartialTrailingFrame(t *testing.T) {
	f := NewFramer()
	p1 := []byte(`{"a":1}`)
	p2 := []byte(`{"b":2}`)
	buf := append(EncodeFrame(p1), EncodeFrame(p2)...)

	frames := f.Feed(buf[:len(EncodeFrame(p1))+2])
	require.Len(t, frames, 1)
	assert.Equal(t, p1, frames[0])

	frames = f.Feed(buf[len(EncodeFrame(p1))+2:])
	require.Len(t, frames, 1)
	assert.Equal(t, p2, frames[0])
}
