// Package calib implements the load-cell workflows run against the
// firmware: connectivity check, raw sampling and the offset/slope
// calibration sequence.
package calib

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/stomasense/stomalink/pkg/log"
	"github.com/stomasense/stomalink/pkg/session"
	"github.com/stomasense/stomalink/pkg/state"
)

const (
	cmdOK    = "OK"
	cmdRaw   = "hx_raw"
	cmdCalib = "hx_calib"

	keyCalibs = "calibs"

	// DefaultRawTimeoutMs is the sampling deadline passed to hx_raw.
	DefaultRawTimeoutMs = 5000
)

// Timeouts bounds the waits of every workflow step.
type Timeouts struct {
	// Ack bounds single-record replies and the first record of a
	// two-phase exchange.
	Ack time.Duration

	// PerSample is multiplied by the sample count to bound a result.
	PerSample time.Duration

	// Slack is added to calibration result waits.
	Slack time.Duration
}

// DefaultTimeouts matches the firmware's sampling rate.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Ack:       5 * time.Second,
		PerSample: 100 * time.Millisecond,
		Slack:     5 * time.Second,
	}
}

// Service runs workflows over a session.
type Service struct {
	s        session.Commander
	repo     state.Repository
	port     string
	timeouts Timeouts
	logger   log.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithRepository persists successful calibrations to repo.
func WithRepository(repo state.Repository) Option {
	return func(s *Service) {
		s.repo = repo
	}
}

// WithPort records the device name in persisted snapshots.
func WithPort(port string) Option {
	return func(s *Service) {
		s.port = port
	}
}

// WithTimeouts overrides DefaultTimeouts. Zero fields keep their default.
func WithTimeouts(t Timeouts) Option {
	return func(s *Service) {
		if t.Ack > 0 {
			s.timeouts.Ack = t.Ack
		}
		if t.PerSample > 0 {
			s.timeouts.PerSample = t.PerSample
		}
		if t.Slack > 0 {
			s.timeouts.Slack = t.Slack
		}
	}
}

// New creates a Service.
func New(s session.Commander, logger log.Logger, opts ...Option) *Service {
	svc := &Service{
		s:        s,
		timeouts: DefaultTimeouts(),
		logger:   log.OrNoop(logger).With(log.String("component", "calib")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Ping sends OK and waits for the device to answer.
func (svc *Service) Ping(ctx context.Context) (session.Response, error) {
	r, err := svc.request(ctx, cmdOK)
	if err != nil {
		svc.logger.Warn("didn't receive OK response", log.Err(err))
		return session.Response{}, err
	}
	svc.logger.Info("received OK", log.String("record", r.String()))
	return r, nil
}

// HxRaw samples a load cell nStats times. The device acknowledges first
// and reports the statistics once sampling is done.
func (svc *Service) HxRaw(ctx context.Context, slot, nStats, timeoutMs int) (session.Response, error) {
	if timeoutMs <= 0 {
		timeoutMs = DefaultRawTimeoutMs
	}
	opts := session.CallOptions{
		AckTimeout:    svc.timeouts.Ack,
		ResultTimeout: time.Duration(nStats) * svc.timeouts.PerSample,
	}
	r, err := svc.call(ctx, opts, cmdRaw, slot, nStats, timeoutMs)
	if err != nil {
		svc.logger.Warn("didn't receive hx_raw", log.Int("slot", slot), log.Err(err))
		return session.Response{}, err
	}
	svc.logger.Info("received hx_raw", log.Int("slot", slot), log.String("record", r.String()))
	return r, nil
}

type nullCalib struct {
	R int     `json:"r"`
	O float64 `json:"o"`
	P float64 `json:"p"`
	S float64 `json:"s"`
	T float64 `json:"t"`
}

// SetNull resets the calibration of the given slots to identity.
func (svc *Service) SetNull(ctx context.Context, slots []int) (session.Response, error) {
	table := make([]nullCalib, len(slots))
	for i, slot := range slots {
		table[i] = nullCalib{R: slot, S: 1}
	}
	r, err := svc.setCalibs(ctx, table)
	if err != nil {
		svc.logger.Warn("didn't receive hx_calib set", log.Err(err))
		return session.Response{}, err
	}
	svc.logger.Info("received calibration", log.String("record", r.String()))
	return r, nil
}

// Get reads the calibration table from the device.
func (svc *Service) Get(ctx context.Context) (session.Response, error) {
	r, err := svc.request(ctx, cmdCalib, "get")
	if err != nil {
		svc.logger.Warn("didn't receive hx_calib get", log.Err(err))
		return session.Response{}, err
	}
	svc.logger.Info("received calibration", log.String("record", r.String()))
	return r, nil
}

// Calibrate runs offset and slope calibration of slot against a reference
// weight, writes each result back to the device and saves it. Any missing
// reply aborts the sequence.
func (svc *Service) Calibrate(ctx context.Context, slot, nStats int, weight, weightErr float64) (session.Response, error) {
	opts := session.CallOptions{
		AckTimeout:    svc.timeouts.Ack,
		ResultTimeout: time.Duration(nStats)*svc.timeouts.PerSample + svc.timeouts.Slack,
	}
	logger := svc.logger.With(log.Int("slot", slot))

	r, err := svc.call(ctx, opts, cmdCalib, "offset", slot, nStats)
	if err != nil {
		return session.Response{}, fmt.Errorf("offset: %w", err)
	}
	logger.Info("received offset calibration", log.String("record", r.String()))

	offsets, err := calibObjects(r)
	if err != nil {
		logger.Error("offset calibration result unusable", log.Err(err))
		return session.Response{}, fmt.Errorf("offset: %w", err)
	}
	for i, c := range offsets {
		offsets[i] = pick(c, "r", "o", "p")
	}
	if r, err = svc.setCalibs(ctx, offsets); err != nil {
		return session.Response{}, fmt.Errorf("set offset: %w", err)
	}
	logger.Info("offset applied", log.String("record", r.String()))

	r, err = svc.call(ctx, opts, cmdCalib, "slope", slot, nStats, weight, weightErr)
	if err != nil {
		return session.Response{}, fmt.Errorf("slope: %w", err)
	}
	logger.Info("received slope calibration", log.String("record", r.String()))

	slopes, err := calibObjects(r)
	if err != nil {
		logger.Error("slope calibration result unusable", log.Err(err))
		return session.Response{}, fmt.Errorf("slope: %w", err)
	}
	if r, err = svc.setCalibs(ctx, slopes); err != nil {
		return session.Response{}, fmt.Errorf("set slope: %w", err)
	}
	logger.Info("slope applied", log.String("record", r.String()))

	r, err = svc.request(ctx, cmdCalib, "save")
	if err != nil {
		return session.Response{}, fmt.Errorf("save: %w", err)
	}
	logger.Info("calibration saved", log.String("record", r.String()))

	if err := svc.persist(ctx, slot, weight, weightErr, slopes); err != nil {
		logger.Warn("couldn't persist calibration snapshot", log.Err(err))
		return r, fmt.Errorf("persist calibration: %w", err)
	}
	return r, nil
}

func (svc *Service) persist(ctx context.Context, slot int, weight, weightErr float64, table []map[string]any) error {
	if svc.repo == nil {
		return nil
	}
	snap := state.Snapshot{
		Port:        svc.port,
		Slot:        slot,
		Weight:      weight,
		WeightError: weightErr,
		Calibs:      make([]state.Calib, 0, len(table)),
		SavedAt:     svc.now(),
	}
	for _, c := range table {
		snap.Calibs = append(snap.Calibs, state.Calib{
			R:  int(number(c, "r")),
			O:  number(c, "o"),
			OE: number(c, "oe"),
			S:  number(c, "s"),
			SE: number(c, "se"),
			P:  number(c, "p"),
			T:  number(c, "t"),
		})
	}
	return svc.repo.Save(ctx, snap)
}

func (svc *Service) setCalibs(ctx context.Context, table any) (session.Response, error) {
	payload, err := json.Marshal(table)
	if err != nil {
		return session.Response{}, fmt.Errorf("encode calibs: %w", err)
	}
	return svc.request(ctx, cmdCalib, "set", string(payload))
}

func (svc *Service) request(ctx context.Context, name string, args ...any) (session.Response, error) {
	if err := svc.s.SendCommand(name, args...); err != nil {
		return session.Response{}, err
	}
	r, err := svc.s.WaitForResponse(ctx, name, svc.timeouts.Ack)
	if err != nil {
		return session.Response{}, err
	}
	return r, deviceError(r)
}

func (svc *Service) call(ctx context.Context, opts session.CallOptions, name string, args ...any) (session.Response, error) {
	c := session.NewCall(svc.s, opts, name, args...)
	c.OnTransition(func(prev, cur session.CallState) {
		svc.logger.Debug("call transition",
			log.String("cmd", name),
			log.String("from", prev.String()),
			log.String("to", cur.String()),
		)
	})
	r, err := c.Run(ctx)
	if err != nil {
		if ack, ok := c.Ack(); ok {
			if derr := deviceError(ack); derr != nil {
				return session.Response{}, derr
			}
		}
		return session.Response{}, err
	}
	return r, deviceError(r)
}

func deviceError(r session.Response) error {
	if !r.IsError() {
		return nil
	}
	if msg := r.Message(); msg != "" {
		return fmt.Errorf("%w: %s: %s", ErrDeviceError, r.Cmd(), msg)
	}
	return fmt.Errorf("%w: %s", ErrDeviceError, r.Cmd())
}

func calibObjects(r session.Response) ([]map[string]any, error) {
	v, ok := r.Get(keyCalibs)
	if !ok {
		return nil, fmt.Errorf("%w: no %q key in %s", ErrMalformedCalibs, keyCalibs, r)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not a list", ErrMalformedCalibs, keyCalibs)
	}
	out := make([]map[string]any, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a list of objects", ErrMalformedCalibs, keyCalibs)
		}
		out[i] = obj
	}
	return out, nil
}

// number returns obj[key] as a float, or 0 when absent or not a number.
func number(obj map[string]any, key string) float64 {
	v, _ := obj[key].(float64)
	return v
}

func pick(obj map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			out[k] = v
		}
	}
	return out
}
