package calib

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stomasense/stomalink/pkg/link"
	"github.com/stomasense/stomalink/pkg/link/linktest"
	"github.com/stomasense/stomalink/pkg/session"
	"github.com/stomasense/stomalink/pkg/state"
)

const testPort = "/dev/ttyTEST0"

// device scripts firmware replies keyed by the written command line.
type device struct {
	mu      sync.Mutex
	replies map[string][]string
	// prefix replies match when no exact line is scripted
	prefix map[string][]string
}

func newDevice() *device {
	return &device{replies: map[string][]string{}, prefix: map[string][]string{}}
}

func (d *device) on(line string, replies ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.replies[line] = replies
}

func (d *device) onPrefix(p string, replies ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prefix[p] = replies
}

func (d *device) respond(line string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.replies[line]; ok {
		return r
	}
	for p, r := range d.prefix {
		if strings.HasPrefix(line, p) {
			return r
		}
	}
	return nil
}

type memRepo struct {
	mu    sync.Mutex
	saved []state.Snapshot
}

func (m *memRepo) Load(context.Context) (state.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return state.Snapshot{}, nil
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memRepo) Save(_ context.Context, s state.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, s)
	return nil
}

func newTestService(t *testing.T, dev *device, opts ...Option) (*Service, *linktest.FakePort) {
	t.Helper()

	cfg := link.DefaultConfig()
	cfg.Port = testPort
	cfg.ReadTimeout = 5 * time.Millisecond
	cfg.IdleInterval = time.Millisecond

	fp := linktest.NewFakePort(cfg.ReadTimeout)
	fp.SetResponder(dev.respond)

	l, err := link.New(cfg, nil, link.WithOpener(fp.Opener()), link.WithLister(linktest.Lister(testPort)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	s := session.New(l, session.DefaultConfig(), nil)
	require.NoError(t, l.StartReceiveLoop())

	opts = append([]Option{WithTimeouts(Timeouts{
		Ack:       500 * time.Millisecond,
		PerSample: 10 * time.Millisecond,
		Slack:     200 * time.Millisecond,
	})}, opts...)
	return New(s, nil, opts...), fp
}

func TestService_Ping(t *testing.T) {
	dev := newDevice()
	dev.on("OK", `{"success":true,"cmd":"OK"}`)
	svc, fp := newTestService(t, dev)

	r, err := svc.Ping(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Bool(session.KeySuccess))
	assert.Equal(t, []string{"OK"}, fp.Lines())
}

func TestService_PingTimeout(t *testing.T) {
	svc, _ := newTestService(t, newDevice())

	_, err := svc.Ping(context.Background())
	require.ErrorIs(t, err, session.ErrNoResponse)
}

func TestService_HxRaw(t *testing.T) {
	dev := newDevice()
	dev.on("hx_raw 0 10 5000",
		`{"success":true,"cmd":"hx_raw","processing":true}`,
		`{"success":true,"cmd":"hx_raw","mean":8123.5,"std":2.1,"n":10}`,
	)
	svc, _ := newTestService(t, dev)

	r, err := svc.HxRaw(context.Background(), 0, 10, 0)
	require.NoError(t, err)
	mean, ok := r.Float("mean")
	require.True(t, ok)
	assert.Equal(t, 8123.5, mean)
	assert.False(t, r.IsProcessing())
}

func TestService_HxRawDeviceError(t *testing.T) {
	dev := newDevice()
	dev.on("hx_raw 9 10 100", `{"error":true,"cmd":"hx_raw","msg":"slot out of range"}`)
	svc, _ := newTestService(t, dev)

	_, err := svc.HxRaw(context.Background(), 9, 10, 100)
	require.ErrorIs(t, err, ErrDeviceError)
	assert.Contains(t, err.Error(), "slot out of range")
}

func TestService_SetNull(t *testing.T) {
	dev := newDevice()
	dev.onPrefix("hx_calib set ", `{"success":true,"cmd":"hx_calib"}`)
	svc, fp := newTestService(t, dev)

	_, err := svc.SetNull(context.Background(), []int{0, 2})
	require.NoError(t, err)
	assert.Equal(t,
		[]string{`hx_calib set [{"r":0,"o":0,"p":0,"s":1,"t":0},{"r":2,"o":0,"p":0,"s":1,"t":0}]`},
		fp.Lines(),
	)
}

func TestService_Get(t *testing.T) {
	dev := newDevice()
	dev.on("hx_calib get", `{"success":true,"cmd":"hx_calib","calibs":[{"r":0,"o":1,"p":2}]}`)
	svc, _ := newTestService(t, dev)

	r, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Has("calibs"))
}

func TestService_Calibrate(t *testing.T) {
	dev := newDevice()
	dev.on("hx_calib offset 0 10",
		`{"success":true,"cmd":"hx_calib","processing":true}`,
		`{"success":true,"cmd":"hx_calib","calibs":[{"r":0,"o":812.5,"p":1,"s":1,"t":0}]}`,
	)
	dev.on(`hx_calib set [{"o":812.5,"p":1,"r":0}]`, `{"success":true,"cmd":"hx_calib"}`)
	dev.on("hx_calib slope 0 10 5 0.1",
		`{"success":true,"cmd":"hx_calib","processing":true}`,
		`{"success":true,"cmd":"hx_calib","calibs":[{"r":0,"o":812.5,"oe":1.5,"p":1,"s":0.0042,"se":0.0001,"t":0}]}`,
	)
	dev.on(`hx_calib set [{"o":812.5,"oe":1.5,"p":1,"r":0,"s":0.0042,"se":0.0001,"t":0}]`, `{"success":true,"cmd":"hx_calib"}`)
	dev.on("hx_calib save", `{"success":true,"cmd":"hx_calib","saved":true}`)

	repo := &memRepo{}
	svc, fp := newTestService(t, dev, WithRepository(repo), WithPort(testPort))
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	r, err := svc.Calibrate(context.Background(), 0, 10, 5, 0.1)
	require.NoError(t, err)
	assert.True(t, r.Bool("saved"))

	assert.Equal(t, []string{
		"hx_calib offset 0 10",
		`hx_calib set [{"o":812.5,"p":1,"r":0}]`,
		"hx_calib slope 0 10 5 0.1",
		`hx_calib set [{"o":812.5,"oe":1.5,"p":1,"r":0,"s":0.0042,"se":0.0001,"t":0}]`,
		"hx_calib save",
	}, fp.Lines())

	snap, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testPort, snap.Port)
	assert.Equal(t, now, snap.SavedAt)
	assert.Equal(t, []state.Calib{{R: 0, O: 812.5, OE: 1.5, S: 0.0042, SE: 0.0001, P: 1}}, snap.Calibs)
	c, ok := snap.Lookup(0)
	require.True(t, ok)
	assert.Equal(t, 0.0042, c.S, "slope is persisted")
}

func TestService_CalibrateAbortsOnMalformedCalibs(t *testing.T) {
	tests := []struct {
		name   string
		result string
	}{
		{"missing key", `{"cmd":"hx_calib","success":true}`},
		{"not a list", `{"cmd":"hx_calib","calibs":{"r":0}}`},
		{"not objects", `{"cmd":"hx_calib","calibs":[1,2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newDevice()
			dev.on("hx_calib offset 0 5", `{"cmd":"hx_calib","processing":true}`, tt.result)
			repo := &memRepo{}
			svc, fp := newTestService(t, dev, WithRepository(repo))

			_, err := svc.Calibrate(context.Background(), 0, 5, 5, 0.1)
			require.ErrorIs(t, err, ErrMalformedCalibs)
			assert.Equal(t, []string{"hx_calib offset 0 5"}, fp.Lines(), "nothing is written after a bad result")
			assert.Empty(t, repo.saved)
		})
	}
}

func TestService_CalibrateAbortsOnMissingReply(t *testing.T) {
	dev := newDevice()
	dev.on("hx_calib offset 1 5", `{"cmd":"hx_calib","processing":true}`)
	svc, fp := newTestService(t, dev)

	_, err := svc.Calibrate(context.Background(), 1, 5, 5, 0.1)
	require.ErrorIs(t, err, session.ErrNoResponse)
	assert.Len(t, fp.Lines(), 1)
}

func TestService_Canceled(t *testing.T) {
	svc, _ := newTestService(t, newDevice())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Get(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithTimeouts_KeepsDefaults(t *testing.T) {
	svc := New(nil, nil, WithTimeouts(Timeouts{Ack: time.Second}))
	assert.Equal(t, time.Second, svc.timeouts.Ack)
	assert.Equal(t, DefaultTimeouts().PerSample, svc.timeouts.PerSample)
	assert.Equal(t, DefaultTimeouts().Slack, svc.timeouts.Slack)
}
