package registry

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/session"
)

type fakeSession struct {
	nextID         session.SubscriptionID
	subscribeCalls int
	subscribeErr   error
	unsubCalls     int
	unsubErr       error
	events         chan models.Event
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan models.Event)}
}

func (f *fakeSession) Subscribe(models.Subscription) (session.SubscriptionID, error) {
	f.subscribeCalls++
	if f.subscribeErr != nil {
		return 0, f.subscribeErr
	}
	f.nextID++
	return f.nextID, nil
}

func (f *fakeSession) Unsubscribe(session.SubscriptionID) error {
	f.unsubCalls++
	return f.unsubErr
}

func (f *fakeSession) Events() <-chan models.Event { return f.events }
func (f *fakeSession) Close() error                { return nil }

func TestSubscribeIdempotent(t *testing.T) {
	r := New()
	ses := newFakeSession()

	if err := r.Subscribe(ses, models.Trades("BTC")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Subscribe(ses, models.Trades("BTC")); err != nil {
		t.Fatalf("duplicate subscribe must succeed, got: %v", err)
	}

	if ses.subscribeCalls != 1 {
		t.Errorf("expected exactly one session subscribe call, got %d", ses.subscribeCalls)
	}
	if r.Len() != 1 {
		t.Errorf("expected one active subscription, got %d", r.Len())
	}
}

func TestLogsThroughSharedLogger(t *testing.T) {
	log := logger.GetLogger()
	prev := log.Out
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(prev)

	r := New()
	if err := r.Subscribe(newFakeSession(), models.Trades("BTC")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// output redirected on the shared logger must carry the component's
	// log lines, proving components do not build private logger instances
	if !strings.Contains(buf.String(), `"component":"registry"`) {
		t.Errorf("expected registry log on shared logger output, got %q", buf.String())
	}
}

func TestSubscribeDistinctKeys(t *testing.T) {
	r := New()
	ses := newFakeSession()

	subs := []models.Subscription{
		models.AllMids(),
		models.Trades("BTC"),
		models.Trades("ETH"),
		models.CandleSub("BTC", "1m"),
		models.L2BookSub("BTC"),
	}
	for _, sub := range subs {
		if err := r.Subscribe(ses, sub); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if r.Len() != len(subs) {
		t.Errorf("expected %d active subscriptions, got %d", len(subs), r.Len())
	}
}

func TestSubscribeFailureLeavesRegistryUnchanged(t *testing.T) {
	r := New()
	ses := newFakeSession()
	ses.subscribeErr = errors.New("venue rejected")

	if err := r.Subscribe(ses, models.Trades("BTC")); err == nil {
		t.Fatal("expected session error to propagate")
	}
	if r.Len() != 0 {
		t.Errorf("failed subscribe must not register, got %d active", r.Len())
	}
}

func TestUnsubscribeUnknownIsNoop(t *testing.T) {
	r := New()
	ses := newFakeSession()

	if err := r.Unsubscribe(ses, models.Trades("BTC")); err != nil {
		t.Fatalf("unsubscribe of unknown sub must succeed, got: %v", err)
	}
	if ses.unsubCalls != 0 {
		t.Errorf("expected no session unsubscribe call, got %d", ses.unsubCalls)
	}
}

func TestUnsubscribeFailureKeepsRegistration(t *testing.T) {
	r := New()
	ses := newFakeSession()

	if err := r.Subscribe(ses, models.Trades("BTC")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ses.unsubErr = errors.New("venue rejected")
	if err := r.Unsubscribe(ses, models.Trades("BTC")); err == nil {
		t.Fatal("expected session error to propagate")
	}
	if r.Len() != 1 {
		t.Errorf("failed unsubscribe must keep the registration, got %d active", r.Len())
	}
}

func TestReplayResubscribesAll(t *testing.T) {
	r := New()
	ses := newFakeSession()

	r.Subscribe(ses, models.AllMids())
	r.Subscribe(ses, models.Trades("BTC"))
	r.Subscribe(ses, models.L2BookSub("BTC"))

	fresh := newFakeSession()
	if err := r.Replay(fresh); err != nil {
		t.Fatalf("unexpected replay error: %v", err)
	}
	if fresh.subscribeCalls != 3 {
		t.Errorf("expected 3 replayed subscriptions, got %d", fresh.subscribeCalls)
	}
	if r.Len() != 3 {
		t.Errorf("replay must not change the active set, got %d", r.Len())
	}
}

func TestReplayFailurePropagates(t *testing.T) {
	r := New()
	ses := newFakeSession()
	r.Subscribe(ses, models.Trades("BTC"))

	fresh := newFakeSession()
	fresh.subscribeErr = errors.New("connect reset")
	if err := r.Replay(fresh); err == nil {
		t.Fatal("expected replay failure to propagate")
	}
}
