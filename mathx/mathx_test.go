package mathx

import "testing"

func TestRound(t *testing.T) {
	cases := []struct {
		x, unit, want float64
	}{
		{1.234, 0.01, 1.23},
		{1.235, 0.1, 1.2},
		{-2.6, 1, -3},
		{29.97, 0.5, 30},
	}
	for _, c := range cases {
		got := Round(c.x, c.unit)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Round(%v, %v) = %v, want %v", c.x, c.unit, got, c.want)
		}
	}
}

func TestEven(t *testing.T) {
	for in, want := range map[int]int{0: 0, 1: 0, 400: 400, 1341: 1340} {
		if got := Even(in); got != want {
			t.Errorf("Even(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestMinMax(t *testing.T) {
	lo, hi := MinMax([]float32{3, -1, 7, 2})
	if lo != -1 || hi != 7 {
		t.Errorf("MinMax gave %v, %v", lo, hi)
	}
	lo, hi = MinMax(nil)
	if lo != 0 || hi != 0 {
		t.Errorf("MinMax of nothing gave %v, %v", lo, hi)
	}
}
