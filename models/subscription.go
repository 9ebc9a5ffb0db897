package models

import "encoding/json"

// SubscriptionType enumerates the stream feeds the venue offers.
type SubscriptionType string

const (
	SubAllMids   SubscriptionType = "allMids"
	SubTrades    SubscriptionType = "trades"
	SubCandle    SubscriptionType = "candle"
	SubL2Book    SubscriptionType = "l2Book"
	SubUserFills SubscriptionType = "userFills"
)

// Subscription is a tagged request for one stream feed. Only the fields
// relevant to Type are set; the struct marshals directly into the venue's
// subscribe frame.
type Subscription struct {
	Type     SubscriptionType `json:"type"`
	Coin     string           `json:"coin,omitempty"`
	Interval string           `json:"interval,omitempty"`
	User     string           `json:"user,omitempty"`
}

// AllMids subscribes to mid prices for every coin.
func AllMids() Subscription {
	return Subscription{Type: SubAllMids}
}

// Trades subscribes to public trades for a coin.
func Trades(coin string) Subscription {
	return Subscription{Type: SubTrades, Coin: coin}
}

// CandleSub subscribes to candles for a coin and interval.
func CandleSub(coin, interval string) Subscription {
	return Subscription{Type: SubCandle, Coin: coin, Interval: interval}
}

// L2BookSub subscribes to order book snapshots for a coin.
func L2BookSub(coin string) Subscription {
	return Subscription{Type: SubL2Book, Coin: coin}
}

// UserFillsSub subscribes to fills for an account address.
func UserFillsSub(user string) Subscription {
	return Subscription{Type: SubUserFills, User: user}
}

// Key returns the canonical identity of the subscription. Two subscriptions
// with equal keys refer to the same feed; the registry keeps at most one
// live registration per key. Struct field order makes the JSON encoding
// deterministic.
func (s Subscription) Key() string {
	data, err := json.Marshal(s)
	if err != nil {
		// Subscription contains only strings; Marshal cannot fail.
		return string(s.Type) + "|" + s.Coin + "|" + s.Interval + "|" + s.User
	}
	return string(data)
}
