package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"time"
)

// LogInterceptor prefixes every complete line written through it with a
// sequence number and a timestamp. A trailing partial line is held until
// its newline arrives or Close is called.
type LogInterceptor struct {
	mu      sync.Mutex
	target  io.Writer
	seq     uint64
	pending []byte
	now     func() time.Time
}

func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{target: target, now: time.Now}
}

// Write reports len(p) on success; the bytes reaching the target include the prefixes.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending = append(i.pending, p...)
	for {
		idx := bytes.IndexByte(i.pending, '\n')
		if idx < 0 {
			break
		}
		line := bytes.TrimSuffix(i.pending[:idx], []byte("\r"))
		if err := i.writeLine(line); err != nil {
			return 0, err
		}
		i.pending = i.pending[idx+1:]
	}
	if len(i.pending) == 0 {
		i.pending = nil
	}
	return len(p), nil
}

// Close flushes a trailing partial line. The target is not closed.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if len(i.pending) == 0 {
		return nil
	}
	err := i.writeLine(i.pending)
	i.pending = nil
	return err
}

func (i *LogInterceptor) writeLine(line []byte) error {
	i.seq++
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", i.seq).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	buf.WriteByte('\n')
	_, err := i.target.Write(buf.Bytes())
	return err
}
