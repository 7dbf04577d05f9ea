package quant

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestPriceConversions(t *testing.T) {
	t.Run("float truncates to two decimals", func(t *testing.T) {
		cases := map[float64]Price{
			101.0:   10100,
			99.999:  9999,
			100.1:   10010,
			0.019:   1,
			5.55555: 555,
		}
		for in, want := range cases {
			if got := PriceFromFloat(in); got != want {
				t.Errorf("PriceFromFloat(%v) = %d, want %d", in, got, want)
			}
		}
	})

	t.Run("decimal round trip", func(t *testing.T) {
		p := PriceFromDecimal(decimal.RequireFromString("101.257"))
		if p != 10125 {
			t.Fatalf("PriceFromDecimal = %d, want 10125", p)
		}
		if p.String() != "101.25" {
			t.Errorf("String = %q, want %q", p.String(), "101.25")
		}
		if !p.Decimal().Equal(decimal.RequireFromString("101.25")) {
			t.Errorf("Decimal = %s", p.Decimal())
		}
	})
}

func TestSimTimeString(t *testing.T) {
	if got := (Day + 2*Hour + 3*Minute + 4).String(); got != "1+02:03:04" {
		t.Errorf("String = %q", got)
	}
	if Days(3) != 259200 {
		t.Errorf("Days(3) = %d", Days(3))
	}
}
