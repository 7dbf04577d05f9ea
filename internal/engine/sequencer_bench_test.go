package engine

import (
	"testing"

	"mmsim/internal/infra"
	"mmsim/internal/orderbook"
)

// BenchmarkSequencer_Step measures the hot loop: pop, apply, match, reschedule.
func BenchmarkSequencer_Step(b *testing.B) {
	s := NewSequencer(DefaultConfig(), nil, &infra.Metrics{})
	book, err := orderbook.New(orderbook.DefaultConfig(34, 10000, 200, 1), calibration(), nil)
	if err != nil {
		b.Fatal(err)
	}
	if err := s.AddBook(book); err != nil {
		b.Fatal(err)
	}
	s.Start()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := s.Step(); err != nil {
			b.Fatal(err)
		}
	}
}
