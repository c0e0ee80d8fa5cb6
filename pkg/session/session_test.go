package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/link/linktest"
	"github.com/stomasense/stomalink/pkg/log"
)

// fakeTransport captures writes and exposes the installed handler.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	handler link.MessageHandler
	err     error
}

func (f *fakeTransport) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, string(p))
	return nil
}

func (f *fakeTransport) SetMessageHandler(h link.MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeTransport) deliver(msgs ...string) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	for _, m := range msgs {
		h(m)
	}
}

func newTestSession(t *testing.T, cfg Config) (*Session, *fakeTransport) {
	t.Helper()
	ft := &fakeTransport{}
	s := New(ft, cfg, log.NewNoopLogger())
	require.NotNil(t, ft.handler, "New must install the decode handler")
	return s, ft
}

func TestSession_SendCommandEncoding(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		cmd  string
		args []any
		want string
	}{
		{"no args", DefaultConfig(), "OK", nil, "OK\n"},
		{"mixed args", DefaultConfig(), "hx_raw", []any{0, 10, 5000}, "hx_raw 0 10 5000\n"},
		{"floats and strings", DefaultConfig(), "hx_calib", []any{"slope", 0, 10, 5.5, 0.1}, "hx_calib slope 0 10 5.5 0.1\n"},
		{"bool", DefaultConfig(), "pump", []any{250, 50, true}, "pump 250 50 true\n"},
		{"custom separator and terminator", Config{Separator: ",", Terminator: ";"}, "a", []any{1, "b"}, "a,1,b;"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ft := newTestSession(t, tt.cfg)
			require.NoError(t, s.SendCommand(tt.cmd, tt.args...))
			assert.Equal(t, []string{tt.want}, ft.sent)
		})
	}
}

func TestSession_SendCommandPropagatesError(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())
	ft.err = link.ErrWriteTimeout

	err := s.SendCommand("OK")
	require.ErrorIs(t, err, link.ErrWriteTimeout)
}

func TestSession_MalformedMessagesAreDropped(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())

	ft.deliver("not-json", `{"cmd":"OK","success":true}`, "[]")

	require.Equal(t, 1, s.Len())
	r, ok := s.GetNextResponse("")
	require.True(t, ok)
	assert.Equal(t, "OK", r.Cmd())
}

func TestSession_ProcessCallbackRunsAfterQueueing(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())

	var seen []string
	var queuedAtCallback []int
	s.SetProcessCallback(func(r Response) {
		seen = append(seen, r.Cmd())
		queuedAtCallback = append(queuedAtCallback, s.Len())
		r.Fields["cmd"] = "mutated"
	})

	ft.deliver(`{"cmd":"a"}`, "garbage", `{"cmd":"b"}`)

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, []int{1, 2}, queuedAtCallback)

	r, ok := s.GetNextResponse("a")
	require.True(t, ok, "callback mutations must not leak into the queue")
	assert.Equal(t, "a", r.Cmd())

	s.SetProcessCallback(nil)
	ft.deliver(`{"cmd":"c"}`)
	assert.Len(t, seen, 2)
}

func TestSession_QueueEvictionKeepsNewest(t *testing.T) {
	s, ft := newTestSession(t, Config{QueueCapacity: 3})

	ft.deliver(`{"cmd":"1"}`, `{"cmd":"2"}`, `{"cmd":"3"}`, `{"cmd":"4"}`)

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, uint64(1), s.Evicted())
	_, ok := s.GetNextResponse("1")
	assert.False(t, ok)
	_, ok = s.GetNextResponse("4")
	assert.True(t, ok)
}

func TestSession_WaitForResponseTimesOut(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())

	start := time.Now()
	_, err := s.WaitForResponse(context.Background(), "X", 200*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrNoResponse)
	assert.True(t, IsTimeout(err))
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestSession_WaitForResponseWakesOnArrival(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())

	time.AfterFunc(20*time.Millisecond, func() {
		ft.deliver(`{"cmd":"other"}`, `{"cmd":"X","value":1}`)
	})

	r, err := s.WaitForResponse(context.Background(), "X", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "X", r.Cmd())

	other, ok := s.GetNextResponse("")
	require.True(t, ok, "unrelated record stays queued")
	assert.Equal(t, "other", other.Cmd())
}

func TestSession_WaitForResponseEmptyFilterTakesOldest(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())
	ft.deliver(`{"cmd":"first"}`, `{"cmd":"second"}`)

	r, err := s.WaitForResponse(context.Background(), "", time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", r.Cmd())
}

func TestSession_WaitForResponseUnboundedHonoursContext(t *testing.T) {
	s, _ := newTestSession(t, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.WaitForResponse(ctx, "X", 0)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTimeout(err))
}

func TestSession_WaitForResponseUnboundedReturnsMatch(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())
	time.AfterFunc(20*time.Millisecond, func() { ft.deliver(`{"cmd":"X"}`) })

	r, err := s.WaitForResponse(context.Background(), "X", -1)
	require.NoError(t, err)
	assert.Equal(t, "X", r.Cmd())
}

func TestSession_Request(t *testing.T) {
	s, ft := newTestSession(t, DefaultConfig())
	time.AfterFunc(10*time.Millisecond, func() { ft.deliver(`{"success":true,"cmd":"OK"}`) })

	r, err := s.Request(context.Background(), time.Second, "OK")
	require.NoError(t, err)
	assert.True(t, r.Bool(KeySuccess))
	assert.Equal(t, []string{"OK\n"}, ft.sent)
}

func TestSession_ConcurrentProducersAndConsumers(t *testing.T) {
	s, ft := newTestSession(t, Config{QueueCapacity: 1024})

	const n = 200
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			ft.deliver(`{"cmd":"tick"}`)
		}
	}()

	got := 0
	for got < n {
		_, err := s.WaitForResponse(context.Background(), "tick", 2*time.Second)
		require.NoError(t, err)
		got++
	}
	wg.Wait()
	assert.Zero(t, s.Len())
}

// TestSession_OverLink drives the session through a real Link and the
// fake serial port, including CRLF framing and a malformed line.
func TestSession_OverLink(t *testing.T) {
	cfg := link.DefaultConfig()
	cfg.Port = "/dev/ttyTEST0"
	cfg.ReadTimeout = 5 * time.Millisecond
	cfg.IdleInterval = time.Millisecond

	fp := linktest.NewFakePort(cfg.ReadTimeout)
	fp.SetResponder(func(line string) []string {
		if line == "OK" {
			return []string{"not-json", `{"success":true,"cmd":"OK"}`}
		}
		return nil
	})

	l, err := link.New(cfg, nil, link.WithOpener(fp.Opener()), link.WithLister(linktest.Lister(cfg.Port)))
	require.NoError(t, err)
	defer l.Close()

	s := New(l, DefaultConfig(), nil)
	require.NoError(t, l.StartReceiveLoop())

	r, err := s.Request(context.Background(), 2*time.Second, "OK")
	require.NoError(t, err)
	assert.True(t, r.Bool(KeySuccess))
	assert.True(t, l.IsReceiving(), "malformed input must not stop the loop")
	assert.Equal(t, []string{"OK"}, fp.Lines())

	fp.FeedLines(`{"cmd":"late"}`)
	r, err = s.WaitForResponse(context.Background(), "late", 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "late", r.Cmd())
}

func TestIsTimeout(t *testing.T) {
	assert.False(t, IsTimeout(errors.New("other")))
	assert.True(t, IsTimeout(ErrNoResponse))
}
