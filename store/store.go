package store

import (
	"strconv"
	"sync"

	"hyperflow/models"
)

const (
	DefaultMaxTrades  = 10000
	DefaultMaxCandles = 10000
	DefaultMaxFills   = 10000
	DefaultMaxBooks   = 100
)

// Store holds the rolling market and account state fed by the dispatcher.
// A single writer mutates it; any number of readers may query it
// concurrently. Every accessor returns an owned copy so callers never
// observe a partially applied update.
type Store struct {
	mu sync.RWMutex

	allMids map[string]string
	trades  []models.Trade
	candles []models.Candle
	fills   []models.UserFill
	books   []models.L2Book

	maxTrades  int
	maxCandles int
	maxFills   int
	maxBooks   int

	bestBid float64
	bestAsk float64
}

func New(maxTrades, maxCandles, maxFills, maxBooks int) *Store {
	if maxTrades <= 0 {
		maxTrades = DefaultMaxTrades
	}
	if maxCandles <= 0 {
		maxCandles = DefaultMaxCandles
	}
	if maxFills <= 0 {
		maxFills = DefaultMaxFills
	}
	if maxBooks <= 0 {
		maxBooks = DefaultMaxBooks
	}
	return &Store{
		allMids:    make(map[string]string),
		maxTrades:  maxTrades,
		maxCandles: maxCandles,
		maxFills:   maxFills,
		maxBooks:   maxBooks,
	}
}

// SetMids replaces the whole mid-price map. Last write wins, no merge.
func (s *Store) SetMids(mids map[string]string) {
	copied := make(map[string]string, len(mids))
	for coin, px := range mids {
		copied[coin] = px
	}

	s.mu.Lock()
	s.allMids = copied
	s.mu.Unlock()
}

func (s *Store) AddTrades(trades []models.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, trades...)
	s.trades = evictOldest(s.trades, s.maxTrades)
}

// AddCandle merges by (coin, interval, open time): an update for a candle
// already held replaces it in place, keeping its position in the buffer.
// The venue streams an open candle repeatedly and a final time on close.
func (s *Store) AddCandle(candle models.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.candles {
		if s.candles[i].Coin == candle.Coin &&
			s.candles[i].Interval == candle.Interval &&
			s.candles[i].TimeOpen == candle.TimeOpen {
			s.candles[i] = candle
			return
		}
	}

	s.candles = append(s.candles, candle)
	s.candles = evictOldest(s.candles, s.maxCandles)
}

// AddBook appends a snapshot and recomputes best bid/ask from it.
// An empty side yields 0 for that side.
func (s *Store) AddBook(book models.L2Book) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books = append(s.books, cloneBook(book))
	s.books = evictOldest(s.books, s.maxBooks)

	latest := s.books[len(s.books)-1]
	s.bestBid = latest.BestBid()
	s.bestAsk = latest.BestAsk()
}

func (s *Store) AddFills(fills []models.UserFill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills = append(s.fills, fills...)
	s.fills = evictOldest(s.fills, s.maxFills)
}

func (s *Store) Mids() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make(map[string]string, len(s.allMids))
	for coin, px := range s.allMids {
		copied[coin] = px
	}
	return copied
}

// Mid returns the parsed mid price for a coin, false if the coin is
// unknown or its price does not parse.
func (s *Store) Mid(coin string) (float64, bool) {
	s.mu.RLock()
	raw, ok := s.allMids[coin]
	s.mu.RUnlock()
	if !ok {
		return 0, false
	}

	px, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return px, true
}

func (s *Store) Trades() []models.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]models.Trade, len(s.trades))
	copy(copied, s.trades)
	return copied
}

func (s *Store) Candles() []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]models.Candle, len(s.candles))
	copy(copied, s.candles)
	return copied
}

func (s *Store) Fills() []models.UserFill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]models.UserFill, len(s.fills))
	copy(copied, s.fills)
	return copied
}

func (s *Store) Books() []models.L2Book {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]models.L2Book, 0, len(s.books))
	for _, book := range s.books {
		copied = append(copied, cloneBook(book))
	}
	return copied
}

func (s *Store) BestBid() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestBid
}

func (s *Store) BestAsk() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestAsk
}

// Thickness sums resting size on each side of the latest snapshot.
func (s *Store) Thickness() (bidSum, askSum float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.books) == 0 {
		return 0, 0
	}
	latest := s.books[len(s.books)-1]
	for _, bid := range latest.Bids {
		bidSum += bid.Size
	}
	for _, ask := range latest.Asks {
		askSum += ask.Size
	}
	return bidSum, askSum
}

// AverageThickness averages per-side resting size over every retained
// snapshot.
func (s *Store) AverageThickness() (avgBid, avgAsk float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.books) == 0 {
		return 0, 0
	}

	var totalBid, totalAsk float64
	for _, book := range s.books {
		for _, bid := range book.Bids {
			totalBid += bid.Size
		}
		for _, ask := range book.Asks {
			totalAsk += ask.Size
		}
	}

	count := float64(len(s.books))
	return totalBid / count, totalAsk / count
}

// ThicknessNearBest sums bid sizes within tickSize*tickCount below the
// best bid and ask sizes within the same window above the best ask,
// over the latest snapshot only.
func (s *Store) ThicknessNearBest(tickSize float64, tickCount int) (bidSum, askSum float64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.books) == 0 {
		return 0, 0
	}
	latest := s.books[len(s.books)-1]
	window := tickSize * float64(tickCount)

	if len(latest.Bids) > 0 {
		bidMax := latest.Bids[0].Price
		bidMin := bidMax - window
		for _, bid := range latest.Bids {
			if bid.Price >= bidMin && bid.Price <= bidMax {
				bidSum += bid.Size
			}
		}
	}
	if len(latest.Asks) > 0 {
		askMin := latest.Asks[0].Price
		askMax := askMin + window
		for _, ask := range latest.Asks {
			if ask.Price >= askMin && ask.Price <= askMax {
				askSum += ask.Size
			}
		}
	}
	return bidSum, askSum
}

// SetMaxTrades adjusts the trade buffer cap at runtime, evicting
// immediately if the buffer is over the new cap.
func (s *Store) SetMaxTrades(max int) {
	if max <= 0 {
		return
	}
	s.mu.Lock()
	s.maxTrades = max
	s.trades = evictOldest(s.trades, max)
	s.mu.Unlock()
}

func (s *Store) SetMaxCandles(max int) {
	if max <= 0 {
		return
	}
	s.mu.Lock()
	s.maxCandles = max
	s.candles = evictOldest(s.candles, max)
	s.mu.Unlock()
}

func (s *Store) SetMaxFills(max int) {
	if max <= 0 {
		return
	}
	s.mu.Lock()
	s.maxFills = max
	s.fills = evictOldest(s.fills, max)
	s.mu.Unlock()
}

func (s *Store) SetMaxBooks(max int) {
	if max <= 0 {
		return
	}
	s.mu.Lock()
	s.maxBooks = max
	s.books = evictOldest(s.books, max)
	if len(s.books) > 0 {
		latest := s.books[len(s.books)-1]
		s.bestBid = latest.BestBid()
		s.bestAsk = latest.BestAsk()
	}
	s.mu.Unlock()
}

// evictOldest drops entries from the head until len(buf) <= max.
func evictOldest[T any](buf []T, max int) []T {
	if len(buf) <= max {
		return buf
	}
	excess := len(buf) - max
	return append(buf[:0], buf[excess:]...)
}

func cloneBook(book models.L2Book) models.L2Book {
	copied := book
	copied.Bids = make([]models.BookLevel, len(book.Bids))
	copy(copied.Bids, book.Bids)
	copied.Asks = make([]models.BookLevel, len(book.Asks))
	copy(copied.Asks, book.Asks)
	return copied
}
