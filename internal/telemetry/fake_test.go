package telemetry

import (
	"bytes"
	"io"
	"sync"
)

// scriptPort replays chunks, one per Read. An empty chunk is a read
// timeout. After the script ends it returns err (io.EOF by default).
type scriptPort struct {
	// beforeRead runs ahead of the call-th Read, outside the lock
	beforeRead func(call int)
	calls      int

	mu      sync.Mutex
	reads   [][]byte
	err     error
	written bytes.Buffer
	closed  bool
}

func (p *scriptPort) Read(b []byte) (int, error) {
	if p.beforeRead != nil {
		p.beforeRead(p.calls)
	}
	p.calls++
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.reads) == 0 {
		if p.err != nil {
			return 0, p.err
		}
		return 0, io.EOF
	}
	chunk := p.reads[0]
	n := copy(b, chunk)
	if n < len(chunk) {
		p.reads[0] = chunk[n:]
	} else {
		p.reads = p.reads[1:]
	}
	return n, nil
}

func (p *scriptPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *scriptPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *scriptPort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}
