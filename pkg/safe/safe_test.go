package safe

import (
	"math"
	"testing"
)

func expectPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestSafeArithmetic(t *testing.T) {
	if got := SafeAdd(2, 3); got != 5 {
		t.Errorf("SafeAdd = %d, want 5", got)
	}
	if got := SafeSub(2, 3); got != -1 {
		t.Errorf("SafeSub = %d, want -1", got)
	}
	if got := SafeMul(-4, 3); got != -12 {
		t.Errorf("SafeMul = %d, want -12", got)
	}
	if got := SafeDiv(7, 2); got != 3 {
		t.Errorf("SafeDiv = %d, want 3", got)
	}
}

func TestSafeArithmetic_Overflow(t *testing.T) {
	expectPanic(t, "add", func() { SafeAdd(math.MaxInt64, 1) })
	expectPanic(t, "sub", func() { SafeSub(math.MinInt64, 1) })
	expectPanic(t, "mul", func() { SafeMul(math.MaxInt64, 2) })
	expectPanic(t, "div zero", func() { SafeDiv(1, 0) })
	expectPanic(t, "div overflow", func() { SafeDiv(math.MinInt64, -1) })
}
