// Package poller periodically refreshes the device registry from the backend.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/device"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/logging"
	"github.com/home-device-controller/backend/internal/metrics"
)

// ErrPollInFlight is returned when a poll is requested while one is running.
var ErrPollInFlight = errors.New("poll already in flight")

// Lister fetches the authoritative device list. *homeapi.Client implements it.
type Lister interface {
	ListDevices(ctx context.Context) ([]homeapi.RawDevice, error)
}

// Report describes a successful poll.
type Report struct {
	Reconciliation device.Reconciliation
	Devices        []device.Snapshot
	Anomalies      Anomalies
	At             time.Time
	Duration       time.Duration
}

// Listener is told about every finished poll.
type Listener interface {
	PollSucceeded(ctx context.Context, r Report)
	PollFailed(ctx context.Context, err error)
}

// Status summarizes recent poll activity.
type Status struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	InFlight    bool          `json:"in_flight"`
	LastAttempt time.Time     `json:"last_attempt,omitempty"`
	LastSuccess time.Time     `json:"last_success,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

// Option configures a Poller.
type Option func(*Poller)

// WithFallbackName sets the display name for unnamed devices.
func WithFallbackName(name string) Option {
	return func(p *Poller) {
		if name != "" {
			p.fallbackName = name
		}
	}
}

// WithListener registers a listener.
func WithListener(l Listener) Option {
	return func(p *Poller) {
		if l != nil {
			p.listeners = append(p.listeners, l)
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		p.now = now
	}
}

// interval is a cron.Schedule firing a fixed duration after the previous run.
// Unlike cron.Every it does not round to whole seconds.
type interval time.Duration

func (i interval) Next(t time.Time) time.Time {
	return t.Add(time.Duration(i))
}

// Poller fetches the device list on a fixed interval and reconciles it into
// the registry. At most one poll runs at a time.
type Poller struct {
	registry     *device.Registry
	api          Lister
	listeners    []Listener
	fallbackName string
	now          func() time.Time
	log          zerolog.Logger

	cronMu   sync.Mutex
	cron     *cron.Cron
	interval time.Duration

	stateMu     sync.Mutex
	inFlight    bool
	idle        chan struct{}
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
}

// New creates a stopped poller.
func New(registry *device.Registry, api Lister, log zerolog.Logger, opts ...Option) *Poller {
	p := &Poller{
		registry:     registry,
		api:          api,
		fallbackName: DefaultFallbackName,
		now:          time.Now,
		log:          log.With().Str("component", "poller").Logger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start schedules a poll every d. Calling Start on a running poller
// reschedules it without interrupting a poll in flight.
func (p *Poller) Start(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", d)
	}

	p.cronMu.Lock()
	defer p.cronMu.Unlock()

	if p.cron != nil {
		p.cron.Stop()
	}

	cronLog := logging.CronLogger{Logger: p.log}
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	c.Schedule(interval(d), cron.FuncJob(p.tick))
	c.Start()

	p.cron = c
	p.interval = d
	p.log.Info().Dur("interval", d).Msg("poller started")
	return nil
}

// Stop prevents further polls. The returned context is done once a poll that
// was in flight has finished; it is never aborted.
func (p *Poller) Stop() context.Context {
	p.cronMu.Lock()
	c := p.cron
	p.cron = nil
	p.interval = 0
	p.cronMu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if c == nil {
		go func() {
			<-p.idleChan()
			cancel()
		}()
		return ctx
	}

	cronDone := c.Stop()
	go func() {
		<-cronDone.Done()
		<-p.idleChan()
		cancel()
	}()
	p.log.Info().Msg("poller stopped")
	return ctx
}

// Running reports whether polls are scheduled.
func (p *Poller) Running() bool {
	p.cronMu.Lock()
	defer p.cronMu.Unlock()
	return p.cron != nil
}

// Status returns a summary of recent polls.
func (p *Poller) Status() Status {
	p.cronMu.Lock()
	st := Status{Running: p.cron != nil, Interval: p.interval}
	p.cronMu.Unlock()

	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	st.InFlight = p.inFlight
	st.LastAttempt = p.lastAttempt
	st.LastSuccess = p.lastSuccess
	if p.lastErr != nil {
		st.LastError = p.lastErr.Error()
	}
	return st
}

func (p *Poller) tick() {
	err := p.PollOnce(context.Background())
	if errors.Is(err, ErrPollInFlight) {
		p.log.Debug().Msg("poll still in flight, skipping tick")
	}
}

// PollOnce fetches and reconciles the device list now. It returns
// ErrPollInFlight without doing anything if another poll is running. On a
// failed fetch the registry is left as it was.
func (p *Poller) PollOnce(ctx context.Context) error {
	if !p.begin() {
		metrics.ObservePoll(metrics.PollSkipped, 0)
		return ErrPollInFlight
	}

	start := p.now()
	raws, err := p.api.ListDevices(ctx)
	if err != nil {
		err = fmt.Errorf("listing devices: %w", err)
		p.end(start, err)
		metrics.ObservePoll(metrics.PollFailed, p.now().Sub(start))
		p.log.Error().Err(err).Msg("poll failed, keeping cached devices")
		for _, l := range p.listeners {
			l.PollFailed(ctx, err)
		}
		return err
	}

	snaps, anomalies := Normalize(raws, p.fallbackName, p.log)
	rec := p.registry.UpsertFromPoll(snaps)
	devices := p.registry.List()
	done := p.now()
	p.end(start, nil)

	metrics.ObservePoll(metrics.PollOK, done.Sub(start))
	metrics.SetRegistry(len(devices), device.CountOnline(devices, done))
	metrics.ObserveAnomaly("missing_id", anomalies.MissingID)
	metrics.ObserveAnomaly("bad_timestamp", anomalies.BadTimestamp)
	metrics.ObserveAnomaly("duplicate_id", len(rec.Duplicates))
	metrics.ObserveAnomaly("last_seen_regression", len(rec.Regressed))

	p.log.Debug().
		Int("devices", len(devices)).
		Int("added", len(rec.Added)).
		Int("removed", len(rec.Removed)).
		Dur("took", done.Sub(start)).
		Msg("poll complete")

	report := Report{
		Reconciliation: rec,
		Devices:        devices,
		Anomalies:      anomalies,
		At:             done,
		Duration:       done.Sub(start),
	}
	for _, l := range p.listeners {
		l.PollSucceeded(ctx, report)
	}
	return nil
}

func (p *Poller) begin() bool {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if p.inFlight {
		return false
	}
	p.inFlight = true
	p.idle = make(chan struct{})
	return true
}

func (p *Poller) end(attempt time.Time, err error) {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	p.inFlight = false
	p.lastAttempt = attempt
	p.lastErr = err
	if err == nil {
		p.lastSuccess = attempt
	}
	close(p.idle)
}

// idleChan returns a channel that is closed when no poll is running.
func (p *Poller) idleChan() <-chan struct{} {
	p.stateMu.Lock()
	defer p.stateMu.Unlock()
	if !p.inFlight {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.idle
}
