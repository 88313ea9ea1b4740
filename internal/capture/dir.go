// Package capture provides the encoded frame sources fed to the detection
// client.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("capture: source closed")

// Source yields encoded JPEG frames.
type Source interface {
	Next(ctx context.Context) ([]byte, error)
	Close() error
}

// Dir replays the .jpg/.jpeg files of a directory in name order, looping.
type Dir struct {
	mu     sync.Mutex
	files  []string
	next   int
	closed bool
}

// NewDir lists the frames in path.
func NewDir(path string) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("capture: read %s: %w", path, err)
	}
	var files []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.Type().IsRegular() && (ext == ".jpg" || ext == ".jpeg") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("capture: no jpeg files in %s", path)
	}
	sort.Strings(files)
	return &Dir{files: files}, nil
}

// Next returns the contents of the next file.
func (d *Dir) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	name := d.files[d.next]
	d.next = (d.next + 1) % len(d.files)
	d.mu.Unlock()

	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("capture: %s is empty", name)
	}
	return data, nil
}

func (d *Dir) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}
