package capture

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirLoopsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	for name, body := range map[string]string{"b.jpg": "B", "a.JPG": "A", "c.jpeg": "C", "notes.txt": "x"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}

	src, err := NewDir(dir)
	require.NoError(t, err)

	var got []string
	for i := 0; i < 4; i++ {
		b, err := src.Next(context.Background())
		require.NoError(t, err)
		got = append(got, string(b))
	}
	assert.Equal(t, []string{"A", "B", "C", "A"}, got)

	require.NoError(t, src.Close())
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDirEmpty(t *testing.T) {
	_, err := NewDir(t.TempDir())
	assert.Error(t, err)
}

func TestRTSPInvalidURL(t *testing.T) {
	_, err := NewRTSP("::not a url", zerolog.Nop())
	assert.Error(t, err)
}

func TestRTSPKeepsNewestFrame(t *testing.T) {
	src, err := NewRTSP("rtsp://127.0.0.1:8554/cam", zerolog.Nop())
	require.NoError(t, err)

	src.publish([]byte("old"))
	src.publish([]byte("new"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got, err := src.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), got)

	require.NoError(t, src.Close())
	_, err = src.Next(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRTSPConnectAfterClose(t *testing.T) {
	src, err := NewRTSP("rtsp://127.0.0.1:1/cam", zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, src.Close())

	assert.ErrorIs(t, src.connect(), ErrClosed)
	src.mu.Lock()
	defer src.mu.Unlock()
	assert.Nil(t, src.client)
}
