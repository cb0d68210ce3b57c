// Package consumer reads a turn's byte stream incrementally. Chunks arrive
// with arbitrary boundaries, so a multi-byte UTF-8 sequence split across two
// reads is buffered until complete before it reaches the accumulated text.
// Markers are not interpreted here; decode the finished text with the tag
// package.
package consumer

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"
)

// Consume reads r until EOF, invoking onFragment with the cumulative
// accumulated text after every chunk. It returns the final text. On a
// transport failure the text accumulated so far is returned alongside the
// error; callers treat it as final.
func Consume(ctx context.Context, r io.Reader, onFragment func(string)) (string, error) {
	var (
		acc   []byte
		carry []byte
		buf   = make([]byte, 4096)
	)
	for {
		if err := ctx.Err(); err != nil {
			return string(acc), err
		}
		n, err := r.Read(buf)
		if n > 0 {
			carry = append(carry, buf[:n]...)
			complete := completePrefix(carry)
			if complete > 0 {
				acc = append(acc, carry[:complete]...)
				carry = carry[complete:]
				if onFragment != nil {
					onFragment(string(acc))
				}
			}
		}
		if err == io.EOF {
			// Trailing bytes that never completed a rune are dropped.
			return string(acc), nil
		}
		if err != nil {
			return string(acc), fmt.Errorf("read stream: %w", err)
		}
	}
}

// completePrefix returns the length of the longest prefix of b that ends on a
// rune boundary. At most utf8.UTFMax-1 bytes are held back.
func completePrefix(b []byte) int {
	n := len(b)
	for held := 0; held < utf8.UTFMax && held < n; held++ {
		end := n - held
		r, size := utf8.DecodeLastRune(b[:end])
		if r != utf8.RuneError || size > 1 {
			return end
		}
		// A single-byte RuneError is either a genuine stray byte or the
		// start of a rune still being received; hold it back.
	}
	if n >= utf8.UTFMax {
		return n
	}
	return 0
}
