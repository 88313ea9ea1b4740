package detection

import (
	"bytes"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turret-ctrl/internal/framing"
	"turret-ctrl/internal/state"
	"turret-ctrl/internal/timeutil"
	"turret-ctrl/internal/yaw"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		want    Result
		wantErr bool
	}{
		{name: "sentinel", text: "69420", want: NoDetection},
		{name: "sentinel pair", text: "69420,69420", want: NoDetection},
		{name: "bounds", text: "120,260", want: Result{Found: true, Bounds: state.Bounds{Left: 120, Right: 260}}},
		{name: "whitespace", text: " 5 , 9\n", want: Result{Found: true, Bounds: state.Bounds{Left: 5, Right: 9}}},
		{name: "negative left", text: "-3,40", want: Result{Found: true, Bounds: state.Bounds{Left: -3, Right: 40}}},
		{name: "single value", text: "320", wantErr: true},
		{name: "three values", text: "1,2,3", wantErr: true},
		{name: "not a number", text: "abc,1", wantErr: true},
		{name: "empty", text: "", wantErr: true},
		{name: "overflow", text: "1,99999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.text, DefaultSentinel)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrProtocol)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatResponsePolicy(t *testing.T) {
	assert.Equal(t, "69420", FormatResponse(nil, DefaultSentinel))
	assert.Equal(t, "10,20", FormatResponse([]state.Bounds{{Left: 10, Right: 20}}, DefaultSentinel))
	assert.Equal(t, "69420,69420", FormatResponse([]state.Bounds{{}, {}}, DefaultSentinel))

	for _, boxes := range [][]state.Bounds{nil, {{Left: 1, Right: 2}}, {{}, {}, {}}} {
		_, err := ParseResponse(FormatResponse(boxes, 7), 7)
		assert.NoError(t, err)
	}
}

func TestResultTarget(t *testing.T) {
	tgt := Result{Found: true, Bounds: state.Bounds{Left: 400, Right: 480}}.Target(640)
	yawErr, ok := tgt.YawError.Get()
	require.True(t, ok)
	assert.Equal(t, int32(120), yawErr)

	assert.False(t, NoDetection.Target(640).YawError.Valid())
}

func startServer(t *testing.T, det Detector) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewServer(det, DefaultSentinel, zerolog.Nop()).Serve(ctx, ln)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ln.Addr().String()
}

// No detection end to end: the yaw error is Invalid and the controller
// parks the axis whatever the encoder says.
func TestNoDetectionScenario(t *testing.T) {
	gotLen := make(chan int, 1)
	addr := startServer(t, DetectorFunc(func(_ context.Context, jpeg []byte) ([]state.Bounds, error) {
		gotLen <- len(jpeg)
		return nil, nil
	}))

	client, err := Dial(context.Background(), ClientConfig{Addr: addr, DialTimeout: time.Second, ReplyTimeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	res, err := client.Exchange(bytes.Repeat([]byte{0xAB}, 500))
	require.NoError(t, err)
	assert.Equal(t, NoDetection, res)
	assert.Equal(t, 500, <-gotLen)

	st := state.New()
	st.SetTarget(Result{Found: true, Bounds: state.Bounds{Left: 0, Right: 10}}.Target(640))
	st.SetTarget(res.Target(640))
	assert.False(t, st.YawError().Valid())

	ctrl := yaw.NewController(yaw.Config{Kp: 1, Ki: 0.1, Kd: 1, NeutralDuty: 153, LimitCounts: 1000, Calibration: yaw.DefaultCalibration()})
	for _, enc := range []int32{-2000, -1, 0, 1, 2000} {
		assert.Equal(t, uint8(153), ctrl.Update(st.YawError(), enc))
	}
}

func TestClientServerBounds(t *testing.T) {
	addr := startServer(t, DetectorFunc(func(context.Context, []byte) ([]state.Bounds, error) {
		return []state.Bounds{{Left: 100, Right: 200}}, nil
	}))
	client, err := Dial(context.Background(), ClientConfig{Addr: addr, ReplyTimeout: time.Second})
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		res, err := client.Exchange(make([]byte, 64*1024))
		require.NoError(t, err)
		assert.Equal(t, Result{Found: true, Bounds: state.Bounds{Left: 100, Right: 200}}, res)
	}
}

func TestExchangeMalformedAndClosed(t *testing.T) {
	cliConn, srvConn := net.Pipe()
	client := NewClient(cliConn, ClientConfig{ReplyTimeout: time.Second})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := framing.ReadFrame(srvConn, 0)
		assert.NoError(t, err)
		srvConn.Write([]byte("left,right"))

		_, err = framing.ReadFrame(srvConn, 0)
		assert.NoError(t, err)
		srvConn.Close()
	}()

	_, err := client.Exchange([]byte("frame-1"))
	assert.ErrorIs(t, err, ErrProtocol)

	_, err = client.Exchange([]byte("frame-2"))
	var te *framing.TransportError
	assert.True(t, errors.As(err, &te), "got %v", err)
	wg.Wait()
	client.Close()
}

func TestClientCloseSendsEndOfStream(t *testing.T) {
	cliConn, srvConn := net.Pipe()
	client := NewClient(cliConn, ClientConfig{})

	errCh := make(chan error, 1)
	go func() {
		_, err := framing.ReadFrame(srvConn, 0)
		errCh <- err
	}()

	client.Close()
	assert.ErrorIs(t, <-errCh, framing.ErrStreamClosed)
}

type staticSource struct{ frame []byte }

func (s staticSource) Next(ctx context.Context) ([]byte, error) {
	return s.frame, ctx.Err()
}

func TestLoopPublishesTarget(t *testing.T) {
	var mu sync.Mutex
	boxes := []state.Bounds{{Left: 300, Right: 400}}
	addr := startServer(t, DetectorFunc(func(context.Context, []byte) ([]state.Bounds, error) {
		mu.Lock()
		defer mu.Unlock()
		return boxes, nil
	}))

	st := state.New()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	loop := NewLoop(LoopConfig{
		Client:     ClientConfig{Addr: addr, ReplyTimeout: time.Second},
		ImageWidth: 640,
		FrameRate:  10,
	}, staticSource{frame: []byte("jpeg")}, st, clock, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool { return st.YawError().Valid() }, 2*time.Second, 5*time.Millisecond)
	v, _ := st.YawError().Get()
	assert.Equal(t, int32(30), v)

	mu.Lock()
	boxes = []state.Bounds{{}, {}}
	mu.Unlock()
	require.Eventually(t, func() bool {
		clock.Advance(100 * time.Millisecond)
		return !st.YawError().Valid()
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
	assert.False(t, st.YawError().Valid())
}

func TestLoopDialFailureIsTransportError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	loop := NewLoop(LoopConfig{Client: ClientConfig{Addr: addr, DialTimeout: time.Second}, ImageWidth: 640},
		staticSource{}, state.New(), timeutil.RealClock{}, zerolog.Nop())
	err = loop.Run(context.Background())
	var te *framing.TransportError
	assert.True(t, errors.As(err, &te), "got %v", err)
}
