package models

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Wire shapes of the venue stream. Prices and sizes arrive as decimal
// strings; they are converted to float64 on decode, defaulting to 0 for a
// malformed number so one bad field does not drop a whole batch.

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsTrade struct {
	Coin string `json:"coin"`
	Side string `json:"side"`
	Px   string `json:"px"`
	Sz   string `json:"sz"`
	Hash string `json:"hash"`
	Time int64  `json:"time"`
	TID  int64  `json:"tid"`
}

type wsCandle struct {
	TimeOpen  int64  `json:"t"`
	TimeClose int64  `json:"T"`
	Coin      string `json:"s"`
	Interval  string `json:"i"`
	Open      string `json:"o"`
	Close     string `json:"c"`
	High      string `json:"h"`
	Low       string `json:"l"`
	Volume    string `json:"v"`
	NumTrades int64  `json:"n"`
}

type wsLevel struct {
	Px string `json:"px"`
	Sz string `json:"sz"`
	N  int64  `json:"n"`
}

type wsBook struct {
	Coin   string       `json:"coin"`
	Levels [2][]wsLevel `json:"levels"` // bids first, asks second
	Time   int64        `json:"time"`
}

type wsFill struct {
	Coin          string `json:"coin"`
	Px            string `json:"px"`
	Sz            string `json:"sz"`
	Side          string `json:"side"`
	Time          int64  `json:"time"`
	StartPosition string `json:"startPosition"`
	Dir           string `json:"dir"`
	ClosedPnl     string `json:"closedPnl"`
	Hash          string `json:"hash"`
	OID           uint64 `json:"oid"`
	Crossed       bool   `json:"crossed"`
	Fee           string `json:"fee"`
}

type wsUserFills struct {
	IsSnapshot bool     `json:"isSnapshot"`
	User       string   `json:"user"`
	Fills      []wsFill `json:"fills"`
}

type wsAllMids struct {
	Mids map[string]string `json:"mids"`
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func (t wsTrade) toTrade() Trade {
	return Trade{
		Coin:      t.Coin,
		Side:      t.Side,
		Price:     parseFloat(t.Px),
		Size:      parseFloat(t.Sz),
		Timestamp: t.Time,
		TID:       t.TID,
		Hash:      t.Hash,
	}
}

func (c wsCandle) toCandle() Candle {
	return Candle{
		Coin:      c.Coin,
		Interval:  c.Interval,
		Open:      parseFloat(c.Open),
		High:      parseFloat(c.High),
		Low:       parseFloat(c.Low),
		Close:     parseFloat(c.Close),
		Volume:    parseFloat(c.Volume),
		NumTrades: c.NumTrades,
		TimeOpen:  c.TimeOpen,
		TimeClose: c.TimeClose,
	}
}

func toLevels(levels []wsLevel) []BookLevel {
	out := make([]BookLevel, 0, len(levels))
	for _, l := range levels {
		out = append(out, BookLevel{Price: parseFloat(l.Px), Size: parseFloat(l.Sz), NumOrders: l.N})
	}
	return out
}

func (f wsFill) toFill() UserFill {
	return UserFill{
		Coin:          f.Coin,
		Side:          f.Side,
		Price:         parseFloat(f.Px),
		Size:          parseFloat(f.Sz),
		Fee:           parseFloat(f.Fee),
		ClosedPnl:     parseFloat(f.ClosedPnl),
		Dir:           f.Dir,
		Crossed:       f.Crossed,
		StartPosition: parseFloat(f.StartPosition),
		OrderID:       f.OID,
		Timestamp:     f.Time,
		Hash:          f.Hash,
	}
}

// DecodeEvent parses one raw stream message into a typed Event. Messages on
// channels this version does not know decode to EventUnknown so the caller
// can log and continue. A malformed envelope or payload returns an error;
// per the partial-failure contract the caller drops that message only.
func DecodeEvent(raw []byte) (Event, error) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Event{}, fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Channel {
	case "allMids":
		var data wsAllMids
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("decode allMids: %w", err)
		}
		return Event{Kind: EventMids, Mids: data.Mids}, nil

	case "trades":
		var data []wsTrade
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("decode trades: %w", err)
		}
		trades := make([]Trade, 0, len(data))
		for _, t := range data {
			trades = append(trades, t.toTrade())
		}
		return Event{Kind: EventTrades, Trades: trades}, nil

	case "candle":
		var data wsCandle
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("decode candle: %w", err)
		}
		candle := data.toCandle()
		return Event{Kind: EventCandle, Candle: &candle}, nil

	case "l2Book":
		var data wsBook
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("decode l2Book: %w", err)
		}
		book := L2Book{
			Coin:      data.Coin,
			Timestamp: data.Time,
			Bids:      toLevels(data.Levels[0]),
			Asks:      toLevels(data.Levels[1]),
		}
		return Event{Kind: EventBook, Book: &book}, nil

	case "userFills":
		var data wsUserFills
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Event{}, fmt.Errorf("decode userFills: %w", err)
		}
		batch := FillBatch{User: data.User, IsSnapshot: data.IsSnapshot, Fills: make([]UserFill, 0, len(data.Fills))}
		for _, f := range data.Fills {
			batch.Fills = append(batch.Fills, f.toFill())
		}
		return Event{Kind: EventFills, Fills: &batch}, nil

	default:
		return Event{Kind: EventUnknown, Channel: env.Channel}, nil
	}
}
