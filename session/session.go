// Package session defines the contract between the state aggregator and the
// wire-level exchange client. The aggregator never dials the venue itself; it
// is handed a session that exposes subscribe/unsubscribe calls and a typed
// event stream, and the supervisor replaces the session on failure.
package session

import "hyperflow/models"

// SubscriptionID identifies one live stream registration within a session.
// IDs are session-scoped; a replacement session issues fresh ones.
type SubscriptionID uint32

// ExchangeSession is an established connection to the venue stream.
//
// Events returns the inbound event channel. The channel is closed when the
// session ends; a Disconnected event may precede the close. The channel has
// a single consumer (the supervisor's dispatch loop).
type ExchangeSession interface {
	Subscribe(sub models.Subscription) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) error
	Events() <-chan models.Event
	Close() error
}

// Factory dials the venue and returns a fresh session. The supervisor calls
// it on every (re)connect.
type Factory func() (ExchangeSession, error)
