package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/hperssn/stride/internal/domain"
	"github.com/hperssn/stride/internal/metrics"
	"github.com/hperssn/stride/internal/sensor"
	"github.com/hperssn/stride/internal/ticker"
)

var (
	ErrSensorUnavailable = errors.New("step detector unavailable on this device")
	ErrClosed            = errors.New("session closed")
)

const defaultSubscriberBuffer = 16

type Config struct {
	Duration time.Duration
	// Interval is how long one counted second lasts. Shorter values speed
	// up demos and tests.
	Interval time.Duration
	Rules    domain.Rules
	// Clock drives the ticker and stamps events.
	Clock  clock.Clock
	Buffer int
}

func DefaultConfig() Config {
	return Config{
		Duration: domain.DefaultDurationSeconds * time.Second,
		Interval: time.Second,
		Rules:    domain.DefaultRules(),
		Clock:    clock.New(),
		Buffer:   64,
	}
}

func (c Config) seconds() int {
	return int(c.Duration / time.Second)
}

type request struct {
	ev    domain.Event
	reply chan reply
}

type reply struct {
	out domain.Outcome
	err error
}

// Controller owns one session. Its event loop is the only goroutine that
// mutates the session; commands, ticks and sensor readings are applied in
// arrival order.
type Controller struct {
	cfg      Config
	detector sensor.Detector
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	events chan request
	done   chan struct{}

	// owned by the event loop
	state domain.Session
	timer *ticker.Timer
	sub   sensor.Subscription

	mu          sync.Mutex
	snapshot    domain.Session
	subscribers map[int]chan domain.Session
	nextSub     int
	closed      bool
}

func NewController(ctx context.Context, s domain.Session, det sensor.Detector, cfg Config, logger zerolog.Logger) (*Controller, error) {
	if det == nil || !det.Available() {
		return nil, ErrSensorUnavailable
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.Duration <= 0 {
		cfg.Duration = domain.DefaultDurationSeconds * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		cfg:      cfg,
		detector: det,
		logger: logger.With().
			Str("component", "session").
			Str("session_id", s.ID).
			Str("device_id", s.DeviceID).
			Logger(),
		ctx:         ctx,
		cancel:      cancel,
		events:      make(chan request, cfg.Buffer),
		done:        make(chan struct{}),
		state:       s,
		snapshot:    s,
		subscribers: make(map[int]chan domain.Session),
	}

	go c.loop()

	return c, nil
}

func (c *Controller) Start() (domain.Session, error) {
	out, err := c.command(domain.Start(c.cfg.Clock.Now()))
	return out.Session, err
}

func (c *Controller) Stop() (domain.Session, error) {
	out, err := c.command(domain.Stop(c.cfg.Clock.Now()))
	return out.Session, err
}

func (c *Controller) Reset() (domain.Session, error) {
	out, err := c.command(domain.Reset(c.cfg.Clock.Now()))
	return out.Session, err
}

// Show returns the handoff record of the finished run.
func (c *Controller) Show() (domain.Handoff, error) {
	out, err := c.command(domain.Show(c.cfg.Clock.Now()))
	if err != nil {
		return domain.Handoff{}, err
	}
	return *out.Handoff, nil
}

// Session returns the latest snapshot.
func (c *Controller) Session() domain.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Subscribe returns a channel of snapshots published after every change.
// A slow reader misses intermediate snapshots but always gets the newest.
func (c *Controller) Subscribe() (<-chan domain.Session, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan domain.Session, defaultSubscriberBuffer)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subscribers[id] = ch
	ch <- c.snapshot

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subscribers[id]; ok {
				delete(c.subscribers, id)
				close(sub)
			}
		})
	}
}

// Close stops the event loop and releases the timer and sensor.
func (c *Controller) Close() {
	c.cancel()
	<-c.done
}

func (c *Controller) command(ev domain.Event) (domain.Outcome, error) {
	rep := make(chan reply, 1)

	select {
	case c.events <- request{ev: ev, reply: rep}:
	case <-c.done:
		return domain.Outcome{Session: c.Session()}, ErrClosed
	}

	select {
	case r := <-rep:
		return r.out, r.err
	case <-c.done:
		return domain.Outcome{Session: c.Session()}, ErrClosed
	}
}

// post queues an event from the ticker or sensor. It gives up when ctx or
// the controller is cancelled.
func (c *Controller) post(ctx context.Context, ev domain.Event) {
	select {
	case c.events <- request{ev: ev}:
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
}

func (c *Controller) loop() {
	defer close(c.done)
	defer c.teardown()

	for {
		select {
		case req := <-c.events:
			out, err := c.apply(req.ev)
			if req.reply != nil {
				req.reply <- reply{out: out, err: err}
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Controller) apply(ev domain.Event) (domain.Outcome, error) {
	prev := c.state

	out, err := c.cfg.Rules.Reduce(prev, ev)
	if err != nil {
		if rej, ok := domain.AsRejection(err); ok {
			metrics.Rejections.WithLabelValues(ev.Kind.String(), rej.Code).Inc()
			c.logger.Debug().
				Str("command", ev.Kind.String()).
				Str("code", rej.Code).
				Str("state", prev.State.String()).
				Msg("Command rejected")
		}
		return out, err
	}

	if ev.Kind == domain.EventSensor && prev.IsRunning() && ev.Run == prev.Run {
		metrics.SensorEvents.WithLabelValues(strconv.FormatBool(out.Counted)).Inc()
		if out.Counted {
			metrics.StepsCounted.Inc()
		}
	}

	if err := c.runEffects(out); err != nil {
		c.logger.Error().Err(err).Str("command", ev.Kind.String()).Msg("Failed to apply session effects")
		return domain.Outcome{Session: prev}, err
	}

	if out.Changed {
		c.state = out.Session
		c.publish(out.Session)
	}

	c.logTransition(prev, out, ev)

	return out, nil
}

func (c *Controller) runEffects(out domain.Outcome) error {
	eff := out.Effects

	if eff.Has(domain.EffectSubscribeSensor) {
		run := out.Session.Run
		sub, err := c.detector.Subscribe(func(v float64) {
			c.post(c.ctx, domain.Sensor(run, v, c.cfg.Clock.Now()))
		})
		if err != nil {
			return fmt.Errorf("failed to subscribe to step detector: %w", err)
		}
		c.sub = sub
	}

	if eff.Has(domain.EffectStartTimer) {
		run := out.Session.Run
		c.timer = ticker.Start(c.ctx, ticker.Config{
			Seconds:  c.cfg.seconds(),
			Interval: c.cfg.Interval,
			Clock:    c.cfg.Clock,
		}, func(ctx context.Context, elapsed int) {
			c.post(ctx, domain.Tick(run, elapsed, c.cfg.Clock.Now()))
		}, func(ctx context.Context, elapsed int) {
			c.post(ctx, domain.Elapsed(run, elapsed, c.cfg.Clock.Now()))
		})
	}

	if eff.Has(domain.EffectStopTimer) && c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	if eff.Has(domain.EffectUnsubscribeSensor) && c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}

	if eff.Has(domain.EffectShowSummary) {
		metrics.SummariesShown.Inc()
	}

	return nil
}

func (c *Controller) logTransition(prev domain.Session, out domain.Outcome, ev domain.Event) {
	next := out.Session
	if prev.State == next.State {
		return
	}

	switch next.State {
	case domain.StateRunning:
		metrics.SessionsStarted.Inc()
		c.logger.Info().
			Uint64("run", next.Run).
			Dur("duration", c.cfg.Duration).
			Msg("Run started")
	case domain.StateStopped:
		metrics.SessionsStopped.WithLabelValues(string(next.StopReason)).Inc()
		evt := c.logger.Info().
			Uint64("run", next.Run).
			Int("steps", next.StepCount).
			Str("elapsed", next.ElapsedText).
			Str("reason", string(next.StopReason))
		if out.Notice != domain.NoticeNone {
			evt = evt.Str("notice", string(out.Notice))
		}
		evt.Msg("Run stopped")
	case domain.StateIdle:
		c.logger.Info().Str("trigger", ev.Kind.String()).Msg("Session reset")
	}
}

func (c *Controller) publish(s domain.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshot = s
	for _, ch := range c.subscribers {
		select {
		case ch <- s:
		default:
			// Drop the oldest snapshot to make room for the newest.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

func (c *Controller) teardown() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, id)
	}
}
