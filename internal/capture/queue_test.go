package capture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meteorwatch/internal/frame"
)

func TestFrameQueueDropsOldestWhenFull(t *testing.T) {
	q := NewFrameQueue(2)
	q.Push(&frame.Frame{Seq: 1})
	q.Push(&frame.Frame{Seq: 2})
	q.Push(&frame.Frame{Seq: 3}) // should evict seq 1

	assert.Equal(t, uint64(1), q.Dropped())

	f1, ok := q.Pop(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, uint64(2), f1.Seq)

	f2, ok := q.Pop(10 * time.Millisecond)
	require.True(t, ok)
	assert.Equal(t, uint64(3), f2.Seq)
}

func TestFrameQueuePopTimesOutWhenEmpty(t *testing.T) {
	q := NewFrameQueue(4)
	start := time.Now()
	_, ok := q.Pop(30 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestFrameQueuePopWakesOnPush(t *testing.T) {
	q := NewFrameQueue(4)
	go func() {
		time.Sleep(10 * time.Millisecond)
		q.Push(&frame.Frame{Seq: 42})
	}()

	f, ok := q.Pop(time.Second)
	require.True(t, ok)
	assert.Equal(t, uint64(42), f.Seq)
}

func TestExtractJPEGFrameFindsCompleteFrame(t *testing.T) {
	buf := []byte{0x00, 0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9, 0x99}
	out := extractJPEGFrame(&buf)
	require.NotNil(t, out)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}, out)
	assert.Equal(t, []byte{0x99}, buf)
}

func TestExtractJPEGFrameReturnsNilWhenIncomplete(t *testing.T) {
	buf := []byte{0xFF, 0xD8, 0x01, 0x02}
	out := extractJPEGFrame(&buf)
	assert.Nil(t, out)
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01, 0x02}, buf)
}

func TestExtractJPEGFrameHandlesMultipleFramesInOneBuffer(t *testing.T) {
	buf := []byte{}
	buf = append(buf, 0xFF, 0xD8, 1, 0xFF, 0xD9)
	buf = append(buf, 0xFF, 0xD8, 2, 3, 0xFF, 0xD9)

	first := extractJPEGFrame(&buf)
	require.NotNil(t, first)
	assert.Equal(t, []byte{0xFF, 0xD8, 1, 0xFF, 0xD9}, first)

	second := extractJPEGFrame(&buf)
	require.NotNil(t, second)
	assert.Equal(t, []byte{0xFF, 0xD8, 2, 3, 0xFF, 0xD9}, second)
}
