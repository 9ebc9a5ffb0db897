package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/portfolio"
	"hyperflow/store"
	"hyperflow/writer"
)

// ErrDisconnected reports an end-of-stream signal. It is a liveness
// failure for the supervisor to handle, not a processing error.
var ErrDisconnected = errors.New("stream disconnected")

const sinkQueueSize = 256

type sinkBatch struct {
	fills   []models.UserFill
	account string
}

// fillKey identifies a fill across reconnect windows. The venue may
// redeliver fills already recorded when subscriptions are replayed.
type fillKey struct {
	orderID   uint64
	timestamp int64
	hash      string
}

// Dispatcher is the single consumer of inbound stream events. It routes
// each event to the rolling store and the position tracker, and forwards
// new fills to the sink on a worker goroutine so persistence never
// stalls the stream.
type Dispatcher struct {
	store   *store.Store
	tracker *portfolio.Tracker
	sink    writer.FillSink

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Entry

	seenFills map[fillKey]struct{}
	sinkCh    chan sinkBatch
}

func NewDispatcher(st *store.Store, tracker *portfolio.Tracker, sink writer.FillSink) *Dispatcher {
	return &Dispatcher{
		store:     st,
		tracker:   tracker,
		sink:      sink,
		log:       logger.GetLogger().WithComponent("dispatcher"),
		seenFills: make(map[fillKey]struct{}),
		sinkCh:    make(chan sinkBatch, sinkQueueSize),
	}
}

func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx = ctx
	d.wg = &sync.WaitGroup{}
	d.mu.Unlock()

	d.wg.Add(1)
	go d.sinkWorker()

	d.log.Info("Dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	close(d.sinkCh)
	d.wg.Wait()
	d.log.Info("Dispatcher stopped")
}

// Dispatch routes one event. The only error it returns is
// ErrDisconnected; everything else is absorbed so one bad message never
// halts the stream.
func (d *Dispatcher) Dispatch(ev models.Event) error {
	switch ev.Kind {
	case models.EventMids:
		d.store.SetMids(ev.Mids)
		logger.IncrementEventDispatched("allMids", len(ev.Mids))

	case models.EventTrades:
		d.store.AddTrades(ev.Trades)
		logger.IncrementEventDispatched("trades", len(ev.Trades))

	case models.EventCandle:
		if ev.Candle == nil {
			return nil
		}
		d.store.AddCandle(*ev.Candle)
		logger.IncrementEventDispatched("candle", 1)

	case models.EventBook:
		if ev.Book == nil {
			return nil
		}
		d.store.AddBook(*ev.Book)
		logger.IncrementEventDispatched("l2Book", 1)

	case models.EventFills:
		d.handleFills(ev.Fills)

	case models.EventDisconnected:
		return ErrDisconnected

	default:
		d.log.WithFields(logger.Fields{"channel": ev.Channel}).Info("Unhandled event kind")
		logger.IncrementEventDropped(ev.Channel)
	}
	return nil
}

// handleFills deduplicates a fill batch and applies the remainder.
// Snapshot batches replay history already folded into state and are
// skipped wholesale.
func (d *Dispatcher) handleFills(batch *models.FillBatch) {
	if batch == nil {
		return
	}
	if batch.IsSnapshot {
		d.log.WithFields(logger.Fields{
			"user":  batch.User,
			"count": len(batch.Fills),
		}).Debug("Skipping snapshot fill batch")
		return
	}

	fresh := make([]models.UserFill, 0, len(batch.Fills))
	for _, fill := range batch.Fills {
		key := fillKey{orderID: fill.OrderID, timestamp: fill.Timestamp, hash: fill.Hash}
		if _, seen := d.seenFills[key]; seen {
			continue
		}
		d.seenFills[key] = struct{}{}
		fresh = append(fresh, fill)
	}
	if len(fresh) == 0 {
		return
	}

	d.store.AddFills(fresh)
	for _, fill := range fresh {
		d.tracker.ApplyFill(fill)
	}
	logger.IncrementEventDispatched("userFills", len(fresh))
	logger.IncrementFillsTracked(len(fresh))

	if d.sink == nil {
		return
	}
	select {
	case d.sinkCh <- sinkBatch{fills: fresh, account: batch.User}:
	default:
		d.log.WithFields(logger.Fields{"count": len(fresh)}).Warn("Sink queue full, dropping fill batch")
		logger.IncrementEventDropped("sink")
	}
}

func (d *Dispatcher) sinkWorker() {
	defer d.wg.Done()

	log := d.log.WithFields(logger.Fields{"worker": "sink"})
	log.Info("starting sink worker")

	for batch := range d.sinkCh {
		if err := d.sink.Persist(batch.fills, batch.account); err != nil {
			log.WithError(err).WithFields(logger.Fields{
				"account": batch.account,
				"count":   len(batch.fills),
			}).Error("Failed to persist fills")
		}
	}
	log.Info("sink worker stopped")
}
