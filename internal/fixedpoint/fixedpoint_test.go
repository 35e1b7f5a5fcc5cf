package fixedpoint

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestFromUnits(t *testing.T) {
	got := FromUnits(100)
	want, _ := decimal.NewFromString("100000000000000000000")
	if !got.Equal(want) {
		t.Errorf("FromUnits(100) = %s, want %s", got, want)
	}
}

func TestIsIntegral(t *testing.T) {
	if !IsIntegral(decimal.NewFromInt(42)) {
		t.Error("42 should be integral")
	}
	if IsIntegral(decimal.NewFromFloat(1.5)) {
		t.Error("1.5 should not be integral")
	}
	if !IsIntegral(decimal.Zero) {
		t.Error("0 should be integral")
	}
}

func TestMulDivFloor_Exact(t *testing.T) {
	// 7 * 3 / 2 = 10.5 → 10
	got, err := MulDivFloor(decimal.NewFromInt(7), decimal.NewFromInt(3), decimal.NewFromInt(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Equal(decimal.NewFromInt(10)) {
		t.Errorf("MulDivFloor(7,3,2) = %s, want 10", got)
	}
}

func TestMulDivFloor_LargeOperands(t *testing.T) {
	// Default decimal division precision (16 digits) would corrupt this
	// quotient; QuoRem must keep it exact.
	rin := FromUnits(1000)
	rout := FromUnits(5000)
	den, _ := decimal.NewFromString("1099700000000000000000")

	got, err := MulDivFloor(rin, rout, den)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want, _ := decimal.NewFromString("4546694553059925434209")
	if !got.Equal(want) {
		t.Errorf("large mul-div = %s, want %s", got, want)
	}
}

func TestMulDivFloor_ZeroDenominator(t *testing.T) {
	_, err := MulDivFloor(decimal.NewFromInt(1), decimal.NewFromInt(1), decimal.Zero)
	if err != ErrDivisionByZero {
		t.Errorf("expected ErrDivisionByZero, got %v", err)
	}
}

func TestApplyFeeBps(t *testing.T) {
	// 100 tokens at 30 bps → 99.7 tokens in base units.
	got := ApplyFeeBps(FromUnits(100), 30)
	want, _ := decimal.NewFromString("99700000000000000000")
	if !got.Equal(want) {
		t.Errorf("ApplyFeeBps(100e18, 30) = %s, want %s", got, want)
	}
}

func TestApplyFeeBps_FloorsRemainder(t *testing.T) {
	// 33 base units at 30 bps: 33*9970/10000 = 32.901 → 32.
	got := ApplyFeeBps(decimal.NewFromInt(33), 30)
	if !got.Equal(decimal.NewFromInt(32)) {
		t.Errorf("ApplyFeeBps(33, 30) = %s, want 32", got)
	}
}

func TestApplyFeeBps_ZeroFee(t *testing.T) {
	got := ApplyFeeBps(decimal.NewFromInt(1234), 0)
	if !got.Equal(decimal.NewFromInt(1234)) {
		t.Errorf("zero fee should pass amount through, got %s", got)
	}
}
