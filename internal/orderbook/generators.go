package orderbook

import (
	"math/rand/v2"
	"time"

	"mmsim/internal/domain"
	"mmsim/internal/event"
	"mmsim/internal/sampler"
	"mmsim/pkg/quant"
)

// Per-sampler seed offsets. Every sampler derives its stream from the book seed
// so runs are reproducible, without sharing a stream between samplers.
const (
	seedTradeSide = iota + 1
	seedTradeBuyVolume
	seedTradeSellVolume
	seedTradeArrival
	seedTradeJitter
	seedNewSide
	seedNewDuration
	seedNewArrival
	seedNewJitter
	seedNewMinVolume
	seedNewVolume
	seedNewTopOfBook
	seedChangeSide
	seedChangeArrival
	seedChangeJitter
	seedCancelSide
	seedCancelArrival
	seedCancelJitter
)

// generators holds the calibrated streams. A nil generator is a disabled stream.
type generators struct {
	trade  *tradeGenerator
	order  *newOrderGenerator
	change *sideGenerator
	cancel *sideGenerator
}

type tradeGenerator struct {
	side    sampler.BoolSampler
	buyVol  sampler.Sampler
	sellVol sampler.Sampler
	arrival sampler.Sampler
}

func (g *tradeGenerator) next() event.TradeArrival {
	buy := g.side.Sample()
	vol := g.sellVol.Sample()
	if buy {
		vol = g.buyVol.Sample()
	}
	return event.TradeArrival{
		Delay:  quant.SimTime(max(g.arrival.Sample(), 1)),
		Side:   domain.SideOf(buy),
		Volume: quant.Volume(max(vol, 1)),
	}
}

type newOrderGenerator struct {
	side      sampler.BoolSampler
	duration  sampler.Sampler // index into domain.AllowedDurations
	arrival   sampler.Sampler
	minVolume sampler.Sampler
	volume    sampler.Sampler
	topOfBook sampler.BoolSampler
}

func (g *newOrderGenerator) next() event.NewOrderArrival {
	buy := g.side.Sample()
	idx := min(max(int(g.duration.Sample()), 0), len(domain.AllowedDurations)-1)
	return event.NewOrderArrival{
		Delay:     quant.SimTime(max(g.arrival.Sample(), 1)),
		Side:      domain.SideOf(buy),
		Duration:  domain.AllowedDurations[idx],
		MinVolume: quant.Volume(max(g.minVolume.Sample(), 1)),
		Volume:    quant.Volume(max(g.volume.Sample(), 1)),
		TopOfBook: g.topOfBook.Sample(),
	}
}

// sideGenerator drives change and cancel streams, which only need a side and a delay.
type sideGenerator struct {
	side    sampler.BoolSampler
	arrival sampler.Sampler
}

func (g *sideGenerator) next() (domain.Side, quant.SimTime) {
	buy := g.side.Sample()
	return domain.SideOf(buy), quant.SimTime(max(g.arrival.Sample(), 1))
}

func buildGenerators(cfg Config, cal *domain.Calibration) (generators, error) {
	var gens generators
	var err error

	if gens.trade, err = buildTradeGenerator(cfg, cal.Trades); err != nil {
		return gens, err
	}
	if gens.order, err = buildNewOrderGenerator(cfg, cal.OrdersOf(domain.OrderActionNew)); err != nil {
		return gens, err
	}
	changes := cal.OrdersOf(domain.OrderActionChange)
	if gens.change, err = buildSideGenerator(cfg, changes, seedChangeSide, seedChangeArrival, seedChangeJitter); err != nil {
		return gens, err
	}
	cancels := cal.OrdersOf(domain.OrderActionCancel)
	if gens.cancel, err = buildSideGenerator(cfg, cancels, seedCancelSide, seedCancelArrival, seedCancelJitter); err != nil {
		return gens, err
	}
	return gens, nil
}

func buildTradeGenerator(cfg Config, trades []domain.TradeRecord) (*tradeGenerator, error) {
	times := make([]time.Time, len(trades))
	var buyVols, sellVols []int64
	buys := 0
	for i, t := range trades {
		times[i] = t.Time
		if t.Buy {
			buys++
			buyVols = append(buyVols, t.Volume)
		} else {
			sellVols = append(sellVols, t.Volume)
		}
	}

	arrival, err := arrivalSampler(cfg, times, seedTradeArrival, seedTradeJitter)
	if err != nil || arrival == nil {
		return nil, err
	}
	buyVol, err := volumeSampler(buyVols, cfg.VolumeBins, cfg.Seed+seedTradeBuyVolume)
	if err != nil {
		return nil, err
	}
	sellVol, err := volumeSampler(sellVols, cfg.VolumeBins, cfg.Seed+seedTradeSellVolume)
	if err != nil {
		return nil, err
	}
	return &tradeGenerator{
		side:    sampler.NewBoolean(buys, len(trades)-buys, cfg.Seed+seedTradeSide),
		buyVol:  buyVol,
		sellVol: sellVol,
		arrival: arrival,
	}, nil
}

func buildNewOrderGenerator(cfg Config, orders []domain.OrderActionRecord) (*newOrderGenerator, error) {
	times := make([]time.Time, len(orders))
	var durations, minVols, vols []int64
	buys, tobs := 0, 0
	for i, o := range orders {
		times[i] = o.Time
		if o.Buy {
			buys++
		}
		if o.TopOfBook {
			tobs++
		}
		if o.Duration > 0 {
			if idx := durationIndex(o.Duration); idx >= 0 {
				durations = append(durations, int64(idx))
			}
		}
		minVols = append(minVols, o.MinVolume)
		vols = append(vols, o.Volume)
	}

	arrival, err := arrivalSampler(cfg, times, seedNewArrival, seedNewJitter)
	if err != nil || arrival == nil {
		return nil, err
	}
	duration, err := volumeSampler(durations, cfg.VolumeBins, cfg.Seed+seedNewDuration)
	if err != nil {
		return nil, err
	}
	if len(durations) == 0 {
		duration = sampler.Constant(0)
	}
	minVolume, err := volumeSampler(minVols, cfg.VolumeBins, cfg.Seed+seedNewMinVolume)
	if err != nil {
		return nil, err
	}
	volume, err := volumeSampler(vols, cfg.VolumeBins, cfg.Seed+seedNewVolume)
	if err != nil {
		return nil, err
	}
	return &newOrderGenerator{
		side:      sampler.NewBoolean(buys, len(orders)-buys, cfg.Seed+seedNewSide),
		duration:  duration,
		arrival:   arrival,
		minVolume: minVolume,
		volume:    volume,
		topOfBook: sampler.NewBoolean(tobs, len(orders)-tobs, cfg.Seed+seedNewTopOfBook),
	}, nil
}

func buildSideGenerator(cfg Config, orders []domain.OrderActionRecord, sideSeed, arrivalSeed, jitterSeed int64) (*sideGenerator, error) {
	times := make([]time.Time, len(orders))
	buys := 0
	for i, o := range orders {
		times[i] = o.Time
		if o.Buy {
			buys++
		}
	}
	arrival, err := arrivalSampler(cfg, times, arrivalSeed, jitterSeed)
	if err != nil || arrival == nil {
		return nil, err
	}
	return &sideGenerator{
		side:    sampler.NewBoolean(buys, len(orders)-buys, cfg.Seed+sideSeed),
		arrival: arrival,
	}, nil
}

// arrivalSampler differences consecutive timestamps into inter-arrival seconds,
// shifts each by a jitter draw, and returns nil when fewer than two records exist.
func arrivalSampler(cfg Config, times []time.Time, arrivalSeed, jitterSeed int64) (sampler.Sampler, error) {
	if len(times) < 2 {
		return nil, nil
	}
	jitter := rand.New(rand.NewPCG(uint64(cfg.Seed+jitterSeed), uint64(cfg.Seed+jitterSeed)))
	gaps := make([]int64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		gap := int64(times[i].Sub(times[i-1]) / time.Second)
		gap += int64(jitter.Float64() * float64(cfg.ArrivalJitter))
		gaps = append(gaps, gap)
	}
	return sampler.NewEmpiricalInts(gaps, cfg.ArrivalBins, cfg.Seed+arrivalSeed)
}

// volumeSampler builds an empirical sampler, falling back to a unit constant
// when the side has no observations.
func volumeSampler(obs []int64, bins int, seed int64) (sampler.Sampler, error) {
	if len(obs) == 0 {
		return sampler.Constant(1), nil
	}
	return sampler.NewEmpiricalInts(obs, bins, seed)
}

func durationIndex(days int) int {
	for i, d := range domain.AllowedDurations {
		if d == days {
			return i
		}
	}
	return -1
}

// NextTrade samples the next trade arrival. ok is false when the stream is disabled.
func (b *Book) NextTrade() (event.TradeArrival, bool) {
	if b.gens.trade == nil {
		return event.TradeArrival{}, false
	}
	return b.gens.trade.next(), true
}

// NextNewOrder samples the next new-order arrival.
func (b *Book) NextNewOrder() (event.NewOrderArrival, bool) {
	if b.gens.order == nil {
		return event.NewOrderArrival{}, false
	}
	return b.gens.order.next(), true
}

// NextChange samples the next change-order arrival.
func (b *Book) NextChange() (event.ChangeArrival, bool) {
	if b.gens.change == nil {
		return event.ChangeArrival{}, false
	}
	side, delay := b.gens.change.next()
	return event.ChangeArrival{Delay: delay, Side: side}, true
}

// NextCancel samples the next cancel-order arrival.
func (b *Book) NextCancel() (event.CancelArrival, bool) {
	if b.gens.cancel == nil {
		return event.CancelArrival{}, false
	}
	side, delay := b.gens.cancel.next()
	return event.CancelArrival{Delay: delay, Side: side}, true
}

// Next samples the next arrival of the given stream.
func (b *Book) Next(kind event.Kind) (event.Arrival, bool) {
	switch kind {
	case event.KindTrade:
		if a, ok := b.NextTrade(); ok {
			return a, true
		}
	case event.KindNewOrder:
		if a, ok := b.NextNewOrder(); ok {
			return a, true
		}
	case event.KindChangeOrder:
		if a, ok := b.NextChange(); ok {
			return a, true
		}
	case event.KindCancelOrder:
		if a, ok := b.NextCancel(); ok {
			return a, true
		}
	}
	return nil, false
}
