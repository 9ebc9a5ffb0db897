package models

// EventKind tags a stream event with the feed it came from.
type EventKind int

const (
	// EventUnknown marks a message on a channel this version does not
	// understand. The dispatcher logs and drops it.
	EventUnknown EventKind = iota
	EventMids
	EventTrades
	EventCandle
	EventBook
	EventFills
	// EventDisconnected signals end of stream. It is a liveness failure,
	// not a fatal error; the supervisor reacts by reconnecting.
	EventDisconnected
)

// String returns the event kind name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventMids:
		return "mids"
	case EventTrades:
		return "trades"
	case EventCandle:
		return "candle"
	case EventBook:
		return "book"
	case EventFills:
		return "fills"
	case EventDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// FillBatch is a group of fills delivered in one stream message. The venue
// sends the account's recent history as a snapshot batch right after
// subscribing; snapshot batches must not move positions again.
type FillBatch struct {
	User       string
	IsSnapshot bool
	Fills      []UserFill
}

// Event is one decoded message from the venue stream. Exactly the fields
// matching Kind are populated.
type Event struct {
	Kind    EventKind
	Mids    map[string]string
	Trades  []Trade
	Candle  *Candle
	Book    *L2Book
	Fills   *FillBatch
	Channel string // raw channel name, set for EventUnknown
}
