package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/gortsplib/v4/pkg/format/rtpmjpeg"
	"github.com/pion/rtp"
	"github.com/rs/zerolog"
)

// RTSP pulls an MJPEG track and hands out the newest complete JPEG
type RTSP struct {
	url    string
	frames chan []byte
	stopCh chan struct{}
	log    zerolog.Logger

	mu      sync.Mutex
	client  *gortsplib.Client
	stopped bool
}

// NewRTSP validates the URL; call Connect to start streaming
func NewRTSP(rtspURL string, log zerolog.Logger) (*RTSP, error) {
	if _, err := base.ParseURL(rtspURL); err != nil {
		return nil, err
	}
	return &RTSP{
		url:    rtspURL,
		frames: make(chan []byte, 1),
		stopCh: make(chan struct{}),
		log:    log,
	}, nil
}

// Connect establishes the RTSP session and starts the reconnect monitor
func (r *RTSP) Connect() error {
	return r.connect()
}

func (r *RTSP) connect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrClosed
	}

	client := &gortsplib.Client{
		// interleaved TCP, camera links are lossy over UDP
		Transport: func() *gortsplib.Transport {
			t := gortsplib.TransportTCP
			return &t
		}(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		OnDecodeError: func(err error) {
			r.log.Debug().Err(err).Msg("rtsp decode error")
		},
	}

	u, err := base.ParseURL(r.url)
	if err != nil {
		return err
	}
	if err := client.Start(u.Scheme, u.Host); err != nil {
		return err
	}

	desc, _, err := client.Describe(u)
	if err != nil {
		client.Close()
		return err
	}

	var forma *format.MJPEG
	media := desc.FindFormat(&forma)
	if media == nil {
		client.Close()
		return fmt.Errorf("rtsp: %s has no MJPEG track", r.url)
	}

	dec, err := forma.CreateDecoder()
	if err != nil {
		client.Close()
		return err
	}

	if _, err := client.Setup(desc.BaseURL, media, 0, 0); err != nil {
		client.Close()
		return err
	}

	client.OnPacketRTP(media, forma, func(pkt *rtp.Packet) {
		img, err := dec.Decode(pkt)
		if err != nil {
			if !errors.Is(err, rtpmjpeg.ErrMorePacketsNeeded) {
				r.log.Debug().Err(err).Msg("mjpeg depacketize")
			}
			return
		}
		r.publish(img)
	})

	if _, err := client.Play(nil); err != nil {
		client.Close()
		return err
	}

	r.client = client
	r.log.Info().Str("url", r.url).Msg("rtsp playing")

	go r.monitorConnection(client)
	return nil
}

// publish replaces any unread frame with img
func (r *RTSP) publish(img []byte) {
	for {
		select {
		case <-r.stopCh:
			return
		case r.frames <- img:
			return
		default:
		}
		select {
		case <-r.frames:
		default:
		}
	}
}

// monitorConnection waits for the session to drop and reconnects
func (r *RTSP) monitorConnection(client *gortsplib.Client) {
	err := client.Wait()

	select {
	case <-r.stopCh:
		return
	default:
	}
	r.log.Warn().Err(err).Msg("rtsp connection lost")

	for attempt := 1; ; attempt++ {
		delay := min(time.Duration(1<<uint(min(attempt-1, 5)))*time.Second, 30*time.Second)
		r.log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("rtsp reconnecting")

		select {
		case <-r.stopCh:
			return
		case <-time.After(delay):
		}

		if err := r.connect(); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			r.log.Warn().Err(err).Msg("rtsp reconnect failed")
			continue
		}
		return
	}
}

// Next blocks until a frame newer than the last one returned arrives
func (r *RTSP) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.stopCh:
		return nil, ErrClosed
	case img := <-r.frames:
		return img, nil
	}
}

// Close stops streaming
func (r *RTSP) Close() error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	client := r.client
	r.mu.Unlock()

	close(r.stopCh)
	if client != nil {
		client.Close()
	}
	return nil
}
