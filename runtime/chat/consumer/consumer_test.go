package consumer

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkReader returns each scripted chunk from one Read call, then err.
type chunkReader struct {
	chunks [][]byte
	err    error
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		if c.err != nil {
			return 0, c.err
		}
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	c.chunks[0] = c.chunks[0][n:]
	if len(c.chunks[0]) == 0 {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestConsumeCumulativeFragments(t *testing.T) {
	r := &chunkReader{chunks: [][]byte{[]byte("He"), []byte("llo")}}
	var seen []string
	final, err := Consume(context.Background(), r, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	require.Equal(t, "Hello", final)
	require.Equal(t, []string{"He", "Hello"}, seen)
}

func TestConsumeSplitRune(t *testing.T) {
	// "héllo" with the two-byte é split across reads.
	full := []byte("héllo")
	r := &chunkReader{chunks: [][]byte{full[:2], full[2:]}}
	var seen []string
	final, err := Consume(context.Background(), r, func(s string) { seen = append(seen, s) })
	require.NoError(t, err)
	require.Equal(t, "héllo", final)
	require.Equal(t, []string{"h", "héllo"}, seen)
}

func TestConsumeSplitEmoji(t *testing.T) {
	full := []byte("ok 🎉!")
	var chunks [][]byte
	for i := 0; i < len(full); i++ {
		chunks = append(chunks, full[i:i+1])
	}
	r := &chunkReader{chunks: chunks}
	final, err := Consume(context.Background(), r, nil)
	require.NoError(t, err)
	require.Equal(t, "ok 🎉!", final)
}

func TestConsumeAbruptClose(t *testing.T) {
	r := &chunkReader{
		chunks: [][]byte{[]byte("Partial answer")},
		err:    errors.New("connection reset"),
	}
	final, err := Consume(context.Background(), r, nil)
	require.Error(t, err)
	require.Equal(t, "Partial answer", final, "accumulated text survives an abrupt close")
}

func TestConsumeEmptyStream(t *testing.T) {
	final, err := Consume(context.Background(), &chunkReader{}, nil)
	require.NoError(t, err)
	require.Empty(t, final)
}

func TestConsumeContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Consume(ctx, &chunkReader{chunks: [][]byte{[]byte("x")}}, nil)
	require.ErrorIs(t, err, context.Canceled)
}
