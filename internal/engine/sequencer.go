package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"mmsim/internal/domain"
	"mmsim/internal/event"
	"mmsim/internal/infra"
	"mmsim/internal/orderbook"
	"mmsim/internal/strategy"
	"mmsim/pkg/quant"
)

const (
	// DefaultSnapshotPeriod is the interval between periodic book snapshots.
	DefaultSnapshotPeriod = 5 * quant.Minute
	// DefaultWarmupOrders is the number of synthetic orders inserted per book before the loop starts.
	DefaultWarmupOrders = 100
	// DefaultDumpFile receives the state dump when the loop halts.
	DefaultDumpFile = "panic_dump.json"
)

// Config parametrizes a Sequencer.
type Config struct {
	SnapshotPeriod quant.SimTime
	WarmupOrders   int
	DumpFile       string
}

// DefaultConfig returns the default scheduling parameters.
func DefaultConfig() Config {
	return Config{
		SnapshotPeriod: DefaultSnapshotPeriod,
		WarmupOrders:   DefaultWarmupOrders,
		DumpFile:       DefaultDumpFile,
	}
}

// streams are the stochastic event kinds every book schedules.
var streams = []event.Kind{event.KindTrade, event.KindNewOrder, event.KindChangeOrder, event.KindCancelOrder}

// Sequencer is the core single-threaded event processor. It owns the virtual
// clock and advances it to the earliest pending event across all books.
//
// Events at the same virtual time are processed in a fixed order: snapshot,
// trade, new order, change order, cancel order, expiry; then by ascending
// asset type id; then by scheduling order.
type Sequencer struct {
	cfg     Config
	now     quant.SimTime
	queue   *event.Queue
	books   map[int64]*orderbook.Book
	typeIDs []int64
	expiry  map[int64]*expiryState

	started   bool
	processed uint64
	tickDue   bool // a snapshot was taken at the current instant

	strategy strategy.Strategy
	metrics  *infra.Metrics
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(cfg Config, strat strategy.Strategy, metrics *infra.Metrics) *Sequencer {
	if cfg.SnapshotPeriod <= 0 {
		cfg.SnapshotPeriod = DefaultSnapshotPeriod
	}
	if cfg.WarmupOrders < 0 {
		cfg.WarmupOrders = 0
	}
	if cfg.DumpFile == "" {
		cfg.DumpFile = DefaultDumpFile
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Sequencer{
		cfg:      cfg,
		queue:    event.NewQueue(),
		books:    make(map[int64]*orderbook.Book),
		expiry:   make(map[int64]*expiryState),
		strategy: strat,
		metrics:  metrics,
	}
}

// Now returns the virtual time.
func (s *Sequencer) Now() quant.SimTime {
	return s.now
}

// Processed returns the number of events handled so far.
func (s *Sequencer) Processed() uint64 {
	return s.processed
}

// SetStrategy installs the strategy under test. It must be called before Run.
func (s *Sequencer) SetStrategy(strat strategy.Strategy) {
	s.strategy = strat
}

// AddBook registers a book. Books must be added before the loop starts.
func (s *Sequencer) AddBook(b *orderbook.Book) error {
	if s.started {
		return errors.New("sequencer already started")
	}
	if _, ok := s.books[b.TypeID()]; ok {
		return fmt.Errorf("type %d: book already registered", b.TypeID())
	}
	s.books[b.TypeID()] = b
	s.typeIDs = append(s.typeIDs, b.TypeID())
	slices.Sort(s.typeIDs)
	return nil
}

// Book returns the book registered for a type.
func (s *Sequencer) Book(typeID int64) (*orderbook.Book, bool) {
	b, ok := s.books[typeID]
	return b, ok
}

// Start warms every book up and schedules the first event of every stream.
// Run calls it when needed; calling it again is a no-op.
func (s *Sequencer) Start() {
	if s.started {
		return
	}
	s.started = true

	for _, typeID := range s.typeIDs {
		b := s.books[typeID]
		b.Warmup(s.now, s.cfg.WarmupOrders)

		s.queue.Push(event.Event{At: s.now + s.cfg.SnapshotPeriod, Kind: event.KindSnapshot, TypeID: typeID})
		for _, kind := range streams {
			s.scheduleNext(b, kind)
		}
		s.scheduleExpiry(b)
	}
	slog.Info("⏱️ Sequencer started", slog.Int("books", len(s.books)), slog.Int("pending", s.queue.Len()))
}

// Run processes events until the virtual clock would pass until, the queue
// drains, or ctx is cancelled. Engine invariant violations halt the process
// after dumping state.
func (s *Sequencer) Run(ctx context.Context, until quant.SimTime) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r), slog.String("now", s.now.String()))
			s.DumpState(s.cfg.DumpFile)
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	s.Start()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Sequencer stopping...", slog.String("now", s.now.String()))
			return ctx.Err()
		default:
		}

		next, ok := s.queue.Peek()
		if !ok || next.At > until {
			if until > s.now {
				s.now = until
			}
			slog.Info("🏁 Simulation horizon reached", slog.String("now", s.now.String()), slog.Uint64("events", s.processed))
			return nil
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
}

// Step processes exactly one event, then runs the strategy if this closed an
// instant at which snapshots were taken. It does nothing on an empty queue.
func (s *Sequencer) Step() error {
	ev, ok := s.queue.Pop()
	if !ok {
		return nil
	}
	start := time.Now()

	// 1. Advance the clock
	if ev.At < s.now {
		panic(fmt.Sprintf("CLOCK_REGRESSION: event at %s before now %s", ev.At, s.now))
	}
	if ev.At > s.now {
		s.now = ev.At
		s.tickDue = false
	}
	s.metrics.SetVirtualTime(int64(s.now))

	// 2. Dispatch
	s.processEvent(ev)
	s.processed++
	s.metrics.RecordEvent(time.Since(start).Nanoseconds())

	// 3. Strategy tick once the instant is complete
	if next, ok := s.queue.Peek(); s.tickDue && (!ok || next.At > s.now) {
		s.tickDue = false
		return s.tick()
	}
	return nil
}

func (s *Sequencer) processEvent(ev event.Event) {
	b, ok := s.books[ev.TypeID]
	if !ok {
		panic(fmt.Sprintf("UNKNOWN_BOOK: type %d", ev.TypeID))
	}

	switch ev.Kind {
	case event.KindSnapshot:
		b.TakeSnapshot(s.now)
		s.metrics.RecordSnapshot()
		s.tickDue = true
		s.queue.Push(event.Event{At: s.now + s.cfg.SnapshotPeriod, Kind: event.KindSnapshot, TypeID: ev.TypeID})
	case event.KindTrade, event.KindNewOrder, event.KindChangeOrder, event.KindCancelOrder:
		b.Apply(s.now, ev.Arrival)
		s.scheduleNext(b, ev.Kind)
		s.scheduleExpiry(b)
	case event.KindExpiry:
		st := s.expiry[ev.TypeID]
		if st == nil || ev.Gen != st.gen {
			return // superseded
		}
		st.pending = false
		b.ExpireDue(s.now)
		s.scheduleExpiry(b)
	default:
		slog.Warn("Unknown event kind", slog.String("kind", ev.Kind.String()))
		return
	}

	if err := b.Verify(); err != nil {
		panic(fmt.Sprintf("BOOK_INVARIANT_VIOLATION: %v", err))
	}
}

func (s *Sequencer) tick() error {
	if s.strategy == nil {
		return nil
	}
	err := s.strategy.Run(s.now)

	// strategy calls may have added or removed resting orders
	for _, typeID := range s.typeIDs {
		s.scheduleExpiry(s.books[typeID])
	}

	if err == nil {
		return nil
	}
	s.metrics.RecordError()
	if errors.Is(err, domain.ErrIllegalStateTransition) {
		return fmt.Errorf("strategy at %s: %w", s.now, err)
	}
	slog.Warn("Strategy run failed", slog.String("now", s.now.String()), slog.Any("error", err))
	return nil
}

func (s *Sequencer) scheduleNext(b *orderbook.Book, kind event.Kind) {
	a, ok := b.Next(kind)
	if !ok {
		return
	}
	s.queue.Push(event.Event{At: s.now + a.After(), Kind: kind, TypeID: b.TypeID(), Arrival: a})
}

// expiryState tracks the single live expiry event of a type. Queued expiry
// events carrying an older generation are skipped when popped.
type expiryState struct {
	gen     uint64
	at      quant.SimTime
	pending bool
}

func (s *Sequencer) scheduleExpiry(b *orderbook.Book) {
	st := s.expiry[b.TypeID()]
	if st == nil {
		st = &expiryState{}
		s.expiry[b.TypeID()] = st
	}
	at := max(b.NextExpiry(s.now), s.now)
	if st.pending && st.at == at {
		return
	}
	st.gen++
	st.at = at
	st.pending = true
	s.queue.Push(event.Event{At: at, Kind: event.KindExpiry, TypeID: b.TypeID(), Gen: st.gen})
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	slog.Info("Dumping internal state...", slog.String("file", filename))

	books := make(map[int64]domain.Snapshot, len(s.books))
	for typeID, b := range s.books {
		books[typeID] = b.Snapshot(s.now)
	}
	data := struct {
		Now       quant.SimTime             `json:"now"`
		Processed uint64                    `json:"processed"`
		Pending   int                       `json:"pending"`
		Books     map[int64]domain.Snapshot `json:"books"`
	}{
		Now:       s.now,
		Processed: s.processed,
		Pending:   s.queue.Len(),
		Books:     books,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		slog.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	err = os.WriteFile(filename, b, 0644)
	if err != nil {
		slog.Error("Failed to write state dump", slog.Any("error", err))
	}
}
