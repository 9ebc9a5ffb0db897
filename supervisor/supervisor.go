package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/notifier"
	"hyperflow/processor"
	"hyperflow/registry"
	"hyperflow/session"
)

// State is the supervisor's position in the connect/stream lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateSubscribed
	StateStreaming
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateStreaming:
		return "streaming"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Config tunes staleness detection and retry pacing.
type Config struct {
	// LivenessWindow is how long the stream may stay silent before the
	// session is considered dead.
	LivenessWindow time.Duration
	// BackoffBase scales the linear retry delay.
	BackoffBase time.Duration
	// BackoffCap bounds the delay multiplier.
	BackoffCap int
}

// Supervisor owns the exchange session lifecycle. It connects, seeds or
// replays the subscription registry, drains the event stream into the
// dispatcher, and reconnects with linear capped backoff on disconnects
// and liveness timeouts. Its retry loop is unbounded; no failure here is
// fatal to the process.
type Supervisor struct {
	cfg        Config
	factory    session.Factory
	registry   *registry.Registry
	dispatcher *processor.Dispatcher
	notify     *notifier.Notifier
	initial    []models.Subscription

	state    atomic.Int32
	attempts int

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Entry
}

func New(cfg Config, factory session.Factory, reg *registry.Registry, disp *processor.Dispatcher, notify *notifier.Notifier, initial []models.Subscription) *Supervisor {
	if cfg.LivenessWindow <= 0 {
		cfg.LivenessWindow = 30 * time.Second
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = 10
	}
	return &Supervisor{
		cfg:        cfg,
		factory:    factory,
		registry:   reg,
		dispatcher: disp,
		notify:     notify,
		initial:    initial,
		log:        logger.GetLogger().WithComponent("supervisor"),
	}
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("supervisor already running")
	}
	s.running = true
	s.ctx = ctx
	s.wg = &sync.WaitGroup{}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run()

	s.log.Info("Supervisor started")
	return nil
}

func (s *Supervisor) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Supervisor stopped")
}

func (s *Supervisor) State() State {
	return State(s.state.Load())
}

func (s *Supervisor) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.log.WithFields(logger.Fields{"from": old.String(), "to": st.String()}).Info("State transition")
	}
}

func (s *Supervisor) run() {
	defer s.wg.Done()

	for {
		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateConnecting)
		ses, err := s.connect()
		if err != nil {
			s.log.WithError(err).Error("Connect failed")
			if !s.backoffWait() {
				return
			}
			continue
		}

		s.setState(StateSubscribed)
		if s.attempts > 0 {
			s.notify.Notify(s.ctx, fmt.Sprintf("stream re-established after %d attempts", s.attempts))
		}
		s.attempts = 0

		s.drain(ses)
		ses.Close()

		if s.ctx.Err() != nil {
			return
		}

		s.setState(StateReconnecting)
		logger.IncrementReconnect()
		if !s.backoffWait() {
			return
		}
	}
}

// connect establishes a fresh session and registers the full
// subscription set against it. Registered subscriptions are replayed
// first, preserving runtime subscribe/unsubscribe calls, and the
// configured set is then re-seeded so a subscription lost to a partial
// failure on an earlier session is retried on every reconnect.
// Subscribe is idempotent, so already-active keys are no-ops.
func (s *Supervisor) connect() (session.ExchangeSession, error) {
	ses, err := s.factory()
	if err != nil {
		return nil, err
	}

	if s.registry.Len() > 0 {
		if err := s.registry.Replay(ses); err != nil {
			ses.Close()
			return nil, err
		}
	}
	for _, sub := range s.initial {
		if err := s.registry.Subscribe(ses, sub); err != nil {
			ses.Close()
			return nil, err
		}
	}
	return ses, nil
}

// drain pumps the session's events into the dispatcher until the stream
// disconnects, goes silent past the liveness window, or the context is
// cancelled.
func (s *Supervisor) drain(ses session.ExchangeSession) {
	timer := time.NewTimer(s.cfg.LivenessWindow)
	defer timer.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return

		case <-timer.C:
			s.log.WithFields(logger.Fields{
				"window": s.cfg.LivenessWindow.String(),
			}).Warn("No events within liveness window")
			return

		case ev, ok := <-ses.Events():
			if !ok {
				s.log.Warn("Event channel closed")
				return
			}

			if s.State() == StateSubscribed {
				s.setState(StateStreaming)
			}

			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(s.cfg.LivenessWindow)

			if err := s.dispatcher.Dispatch(ev); err != nil {
				if errors.Is(err, processor.ErrDisconnected) {
					s.log.Warn("Disconnect signal received")
					return
				}
				s.log.WithError(err).Error("Dispatch failed")
			}
		}
	}
}

// backoffWait sleeps for base * min(attempts, cap) and reports whether
// the supervisor should keep running.
func (s *Supervisor) backoffWait() bool {
	s.attempts++
	delay := backoffDelay(s.cfg.BackoffBase, s.attempts, s.cfg.BackoffCap)

	s.log.WithFields(logger.Fields{
		"attempt": s.attempts,
		"delay":   delay.String(),
	}).Info("Backing off before reconnect")

	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}

func backoffDelay(base time.Duration, attempt, limit int) time.Duration {
	if attempt > limit {
		attempt = limit
	}
	return base * time.Duration(attempt)
}
