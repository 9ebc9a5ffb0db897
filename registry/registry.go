package registry

import (
	"sync"

	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/session"
)

type entry struct {
	sub models.Subscription
	id  session.SubscriptionID
}

// Registry tracks active stream subscriptions by canonical key.
// Subscribe and Unsubscribe are idempotent; bookkeeping is only mutated
// after the session confirms, so a session failure leaves the registry
// unchanged. The supervisor replays the full set after every reconnect.
type Registry struct {
	mu     sync.Mutex
	active map[string]entry
	log    *logger.Entry
}

func New() *Registry {
	return &Registry{
		active: make(map[string]entry),
		log:    logger.GetLogger().WithComponent("registry"),
	}
}

// Subscribe registers sub against the session. A duplicate of an active
// subscription is a successful no-op and sends nothing to the venue.
func (r *Registry) Subscribe(ses session.ExchangeSession, sub models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sub.Key()
	if _, ok := r.active[key]; ok {
		r.log.WithFields(logger.Fields{"key": key}).Debug("Subscription already active")
		return nil
	}

	id, err := ses.Subscribe(sub)
	if err != nil {
		return err
	}

	r.active[key] = entry{sub: sub, id: id}
	r.log.WithFields(logger.Fields{"key": key, "id": id}).Info("Subscribed")
	return nil
}

// Unsubscribe removes sub. Unknown subscriptions are a successful no-op.
func (r *Registry) Unsubscribe(ses session.ExchangeSession, sub models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := sub.Key()
	ent, ok := r.active[key]
	if !ok {
		return nil
	}

	if err := ses.Unsubscribe(ent.id); err != nil {
		return err
	}

	delete(r.active, key)
	r.log.WithFields(logger.Fields{"key": key}).Info("Unsubscribed")
	return nil
}

// List returns the active subscriptions in no particular order.
func (r *Registry) List() []models.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := make([]models.Subscription, 0, len(r.active))
	for _, ent := range r.active {
		subs = append(subs, ent.sub)
	}
	return subs
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// Replay re-registers every active subscription against a fresh session,
// refreshing the stored subscription IDs. The first session error aborts
// the replay; the caller retries against another session.
func (r *Registry) Replay(ses session.ExchangeSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, ent := range r.active {
		id, err := ses.Subscribe(ent.sub)
		if err != nil {
			r.log.WithError(err).WithFields(logger.Fields{"key": key}).Error("Replay failed")
			return err
		}
		ent.id = id
		r.active[key] = ent
	}

	r.log.WithFields(logger.Fields{"count": len(r.active)}).Info("Replayed subscriptions")
	return nil
}
