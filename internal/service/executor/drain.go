package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/oshokin/pg-embed/internal/domain/pg"
)

// maxLineSize bounds a single logged line.
const maxLineSize = 1 << 20

// logFunc matches the key-value helpers of the logger package.
type logFunc func(ctx context.Context, message string, kvs ...any)

// drain logs every line of r until EOF and then closes r.
// A reader closed underneath it ends the drain quietly.
func drain(ctx context.Context, r io.ReadCloser, stream string, log logFunc, tail *tailBuffer) error {
	defer func() {
		_ = r.Close()
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, bufio.MaxScanTokenSize), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if tail != nil {
			tail.add(line)
		}

		log(ctx, line, "stream", stream)
	}

	err := scanner.Err()
	if err == nil || errors.Is(err, os.ErrClosed) {
		return nil
	}

	return fmt.Errorf("%w: %s: %w", pg.ErrBufferRead, stream, err)
}

// tailBuffer is a fixed-size ring of the most recent lines.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []string
	next  int
	count int
}

func newTailBuffer(size int) *tailBuffer {
	return &tailBuffer{buf: make([]string, size)}
}

func (t *tailBuffer) add(line string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf[t.next] = line
	t.next = (t.next + 1) % len(t.buf)

	if t.count < len(t.buf) {
		t.count++
	}
}

// lines returns the kept lines, oldest first.
func (t *tailBuffer) lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, t.count)
	start := (t.next - t.count + len(t.buf)) % len(t.buf)

	for i := range t.count {
		out = append(out, t.buf[(start+i)%len(t.buf)])
	}

	return out
}
