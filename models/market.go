package models

// Trade is a single public market trade. Immutable once received.
type Trade struct {
	Coin      string  `json:"coin"`
	Side      string  `json:"side"` // "B" or "A"
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"`
	TID       int64   `json:"tid"`
	Hash      string  `json:"hash"`
}

// Candle is an OHLCV bar for one coin and interval. The venue streams the
// same candle repeatedly while its interval is open and once more when it
// closes, so a candle is mutable until TimeClose has passed.
type Candle struct {
	Coin      string  `json:"coin"`
	Interval  string  `json:"interval"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	NumTrades int64   `json:"num_trades"`
	TimeOpen  int64   `json:"time_open"`
	TimeClose int64   `json:"time_close"`
}

// BookLevel is a single resting price level on one side of the book.
type BookLevel struct {
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	NumOrders int64   `json:"num_orders"`
}

// L2Book is a full order book snapshot. Bids are sorted descending by
// price, asks ascending, so index 0 of each side is the best level.
type L2Book struct {
	Coin      string      `json:"coin"`
	Timestamp int64       `json:"time"`
	Bids      []BookLevel `json:"bid_levels"`
	Asks      []BookLevel `json:"ask_levels"`
}

// BestBid returns the price of the top bid level, or 0 when the side is empty.
func (b *L2Book) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the price of the top ask level, or 0 when the side is empty.
func (b *L2Book) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// UserFill is an executed trade for the tracked account. Append-only; the
// (OrderID, Timestamp, Hash) triple identifies a fill for deduplication.
type UserFill struct {
	Coin          string  `json:"coin"`
	Side          string  `json:"side"` // "B" buy, "A" sell
	Price         float64 `json:"price"`
	Size          float64 `json:"size"`
	Fee           float64 `json:"fee"`
	ClosedPnl     float64 `json:"closed_pnl"`
	Dir           string  `json:"dir"`
	Crossed       bool    `json:"crossed"`
	StartPosition float64 `json:"start_position"`
	OrderID       uint64  `json:"order_id"`
	Timestamp     int64   `json:"timestamp"`
	Hash          string  `json:"hash"`
}

// IsBuy reports whether the fill bought the base asset.
func (f UserFill) IsBuy() bool { return f.Side == "B" }

// SignedSize is the fill size signed by direction: positive for buys,
// negative for sells.
func (f UserFill) SignedSize() float64 {
	if f.IsBuy() {
		return f.Size
	}
	return -f.Size
}

// Pnl groups the profit-and-loss figures of a position. Buy-side fees are
// paid in the base asset, sell-side fees in the quote currency; the two are
// accounted separately and must never be merged.
type Pnl struct {
	Realized   float64 `json:"realized"`
	Unrealized float64 `json:"unrealized"`
	FeeInBase  float64 `json:"fee_in_base"`
	FeeInQuote float64 `json:"fee_in_quote"`
}

// Position is an average-cost position for one coin. A flat position keeps
// Amount == 0 but the record persists for historical PnL.
type Position struct {
	Coin         string  `json:"coin"`
	Amount       float64 `json:"amount"`
	AveragePrice float64 `json:"average_price"`
	Pnl          Pnl     `json:"pnl"`
}
