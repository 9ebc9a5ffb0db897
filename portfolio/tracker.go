package portfolio

import (
	"math"
	"sync"

	"hyperflow/models"
)

// Tracker maintains one average-cost position per coin, updated by fills
// in arrival order. The dispatcher is the only writer; bot logic reads
// concurrently and always gets owned copies.
type Tracker struct {
	mu        sync.RWMutex
	positions map[string]*models.Position
}

func NewTracker() *Tracker {
	return &Tracker{
		positions: make(map[string]*models.Position),
	}
}

// ApplyFill folds a single fill into the position for its coin.
//
// Buy fees are charged in the base asset and come out of the position
// amount; sell fees are charged in quote and come out of realized PnL.
// A fill that flips the position through zero adopts the fill price as
// the average price of the residual.
func (t *Tracker) ApplyFill(fill models.UserFill) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.positions[fill.Coin]
	if !ok {
		pos = &models.Position{Coin: fill.Coin}
		t.positions[fill.Coin] = pos
	}

	signedQty := fill.SignedSize()

	switch {
	case pos.Amount == 0:
		pos.Amount = signedQty
		pos.AveragePrice = fill.Price

	case sameSign(pos.Amount, signedQty):
		totalCost := pos.Amount*pos.AveragePrice + signedQty*fill.Price
		pos.Amount += signedQty
		pos.AveragePrice = totalCost / math.Abs(pos.Amount)

	default:
		closedQty := math.Min(math.Abs(pos.Amount), fill.Size)
		pos.Pnl.Realized += (fill.Price - pos.AveragePrice) * sign(pos.Amount) * closedQty

		flipped := math.Abs(signedQty) > math.Abs(pos.Amount)
		pos.Amount += signedQty
		if pos.Amount == 0 {
			pos.AveragePrice = 0
		} else if flipped {
			pos.AveragePrice = fill.Price
		}
	}

	if fill.IsBuy() {
		pos.Pnl.FeeInBase += fill.Fee
		pos.Amount -= fill.Fee
	} else {
		pos.Pnl.FeeInQuote += fill.Fee
		pos.Pnl.Realized -= fill.Fee
	}
}

// Position returns a copy of the position for a coin. A flat position
// stays on the books with amount 0.
func (t *Tracker) Position(coin string) (models.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[coin]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

func (t *Tracker) Positions() map[string]models.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()

	copied := make(map[string]models.Position, len(t.positions))
	for coin, pos := range t.positions {
		copied[coin] = *pos
	}
	return copied
}

// UnrealizedPnl marks the coin's position to markPrice. Flat positions
// report exactly 0 regardless of the mark.
func (t *Tracker) UnrealizedPnl(coin string, markPrice float64) float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pos, ok := t.positions[coin]
	if !ok || pos.Amount == 0 {
		return 0
	}
	return (markPrice - pos.AveragePrice) * pos.Amount
}

func (t *Tracker) TotalRealizedPnl() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	for _, pos := range t.positions {
		total += pos.Pnl.Realized
	}
	return total
}

// TotalAndIndividualUnrealizedPnl marks every position against the
// supplied prices. Coins with no supplied mark are skipped.
func (t *Tracker) TotalAndIndividualUnrealizedPnl(markPrices map[string]float64) (float64, map[string]models.Pnl) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var total float64
	individual := make(map[string]models.Pnl, len(t.positions))

	for coin, pos := range t.positions {
		markPrice, ok := markPrices[coin]
		if !ok {
			continue
		}

		var unrealized float64
		if pos.Amount != 0 {
			unrealized = (markPrice - pos.AveragePrice) * pos.Amount
		}
		total += unrealized

		pnl := pos.Pnl
		pnl.Unrealized = unrealized
		individual[coin] = pnl
	}

	return total, individual
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
