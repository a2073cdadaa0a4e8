package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"
	"unicode/utf8"
)

// promptReader accumulates oracle output and splits it at prompt markers.
// A single pump goroutine copies the pipe into chunks until EOF.
type promptReader struct {
	r      io.ReadCloser
	chunks chan []byte
	buf    []byte
}

func newPromptReader(r io.ReadCloser) *promptReader {
	p := &promptReader{r: r, chunks: make(chan []byte, 16)}
	go p.pump()
	return p
}

func (p *promptReader) pump() {
	defer close(p.chunks)
	b := make([]byte, 4096)
	for {
		n, err := p.r.Read(b)
		if n > 0 {
			p.chunks <- append([]byte(nil), b[:n]...)
		}
		if err != nil {
			return
		}
	}
}

// waitFor returns the output preceding the next marker and consumes the
// marker itself
func (p *promptReader) waitFor(ctx context.Context, marker string, timeout time.Duration) (string, error) {
	var timeoutC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	m := []byte(marker)
	for {
		if i := bytes.Index(p.buf, m); i >= 0 {
			out := string(p.buf[:i])
			p.buf = p.buf[i+len(m):]
			return out, nil
		}

		select {
		case chunk, ok := <-p.chunks:
			if !ok {
				return string(p.buf), ErrProcessExited
			}
			p.buf = append(p.buf, chunk...)
		case <-timeoutC:
			return "", ErrPromptTimeout
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// close stops the pump. The drain unblocks a pump stuck on a full channel.
func (p *promptReader) close() {
	_ = p.r.Close()
	for range p.chunks {
	}
}

// readExplanation decodes an explanation file written by the oracle. The
// oracle escapes semicolons as `\;`, which is not valid JSON.
func readExplanation(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.ReplaceAll(data, []byte(`\;`), []byte(";"))

	if !utf8.Valid(data) {
		return nil, errors.New("explanation is not valid UTF-8")
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("empty explanation (%d bytes)", len(data))
	}
	return result, nil
}
