package hyperliquid

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	appconfig "hyperflow/config"
	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/session"
)

const writeDeadline = 10 * time.Second

// wsCommand is the frame the venue accepts for subscribe, unsubscribe
// and ping.
type wsCommand struct {
	Method       string               `json:"method"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
}

// Session is one websocket connection to the Hyperliquid stream API.
// It implements session.ExchangeSession: typed subscribe/unsubscribe,
// an ordered event channel, and an EventDisconnected signal followed by
// channel close when the connection dies. Sessions are not reused after
// Close; the supervisor dials a fresh one.
type Session struct {
	cfg     *appconfig.Config
	conn    *websocket.Conn
	events  chan models.Event
	limiter *rate.Limiter

	writeMu sync.Mutex // gorilla allows one concurrent writer
	mu      sync.Mutex
	subs    map[session.SubscriptionID]models.Subscription
	nextID  session.SubscriptionID

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	log       *logger.Entry
}

// Dial connects to the venue and starts the read and ping loops.
func Dial(cfg *appconfig.Config) (*Session, error) {
	log := logger.GetLogger().WithComponent("hyperliquid_session")
	log.WithFields(logger.Fields{"url": cfg.Venue.WsURL}).Info("Connecting")

	conn, _, err := websocket.DefaultDialer.Dial(cfg.Venue.WsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Venue.WsURL, err)
	}

	rps := cfg.Venue.RateLimit.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Venue.RateLimit.BurstSize
	if burst <= 0 {
		burst = 1
	}

	s := &Session{
		cfg:     cfg,
		conn:    conn,
		events:  make(chan models.Event, cfg.Venue.EventBuffer),
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		subs:    make(map[session.SubscriptionID]models.Subscription),
		done:    make(chan struct{}),
		log:     log,
	}

	s.wg.Add(2)
	go s.readPump()
	go s.pingLoop()

	log.Info("Connected")
	return s, nil
}

// Factory returns a session factory bound to cfg for the supervisor.
func Factory(cfg *appconfig.Config) session.Factory {
	return func() (session.ExchangeSession, error) {
		return Dial(cfg)
	}
}

// Subscribe sends a subscribe frame and returns a handle for later
// unsubscription. The rate limiter paces control frames so a large
// replay does not trip the venue's limits.
func (s *Session) Subscribe(sub models.Subscription) (session.SubscriptionID, error) {
	if err := s.writeCommand(wsCommand{Method: "subscribe", Subscription: &sub}); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.subs[id] = sub
	s.mu.Unlock()

	s.log.WithFields(logger.Fields{"subscription": sub.Key(), "id": id}).Debug("Subscribe frame sent")
	return id, nil
}

func (s *Session) Unsubscribe(id session.SubscriptionID) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown subscription id %d", id)
	}

	if err := s.writeCommand(wsCommand{Method: "unsubscribe", Subscription: &sub}); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
	return nil
}

// Events returns the ordered stream of decoded events. The channel is
// closed after an EventDisconnected is delivered or Close is called.
func (s *Session) Events() <-chan models.Event {
	return s.events
}

func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *Session) writeCommand(cmd wsCommand) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeDeadline)
	defer cancel()
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode %s frame: %w", cmd.Method, err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send %s frame: %w", cmd.Method, err)
	}
	return nil
}

// readPump decodes inbound frames into events. A bad message is logged
// and dropped; the stream keeps flowing. On a read error the pump emits
// EventDisconnected and closes the event channel.
func (s *Session) readPump() {
	defer s.wg.Done()
	defer close(s.events)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// closed by the caller, no disconnect signal needed
			default:
				s.log.WithError(err).Warn("Read failed, stream disconnected")
				s.deliver(models.Event{Kind: models.EventDisconnected})
			}
			return
		}

		channel := peekChannel(raw)
		switch channel {
		case "subscriptionResponse", "pong":
			// control traffic, nothing to dispatch
			continue
		}

		ev, err := models.DecodeEvent(raw)
		if err != nil {
			s.log.WithError(err).WithFields(logger.Fields{"channel": channel}).Warn("Dropping undecodable message")
			continue
		}

		if !s.deliver(ev) {
			return
		}
	}
}

func (s *Session) deliver(ev models.Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// pingLoop keeps the connection alive; the venue drops sessions that
// stay silent for 60 seconds.
func (s *Session) pingLoop() {
	defer s.wg.Done()

	interval := s.cfg.Venue.PingInterval
	if interval <= 0 {
		interval = 50 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := s.writeCommand(wsCommand{Method: "ping"}); err != nil {
				s.log.WithError(err).Warn("Ping failed")
				// force the read pump to observe the dead connection
				s.conn.Close()
				return
			}
		}
	}
}

// peekChannel extracts the channel tag without decoding the payload.
func peekChannel(raw []byte) string {
	var envelope struct {
		Channel string `json:"channel"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ""
	}
	return envelope.Channel
}
