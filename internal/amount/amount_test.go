package amount

import (
	"math/big"
	"testing"
)

func TestFormatRoundsHalfUp(t *testing.T) {
	cases := []struct {
		raw       string
		precision int
		want      string
	}{
		{"1000000000000000000000000", 2, "1.00"},
		{"1005000000000000000000000", 2, "1.01"},
		{"1004999999999999999999999", 2, "1.00"},
		{"123456789000000000000000000", 6, "123.456789"},
		{"0", 2, "0.00"},
		{"5", 6, "0.000000"},
	}
	for _, tc := range cases {
		if got := Format(tc.raw, tc.precision); got != tc.want {
			t.Fatalf("Format(%s,%d): expected %s, got %s", tc.raw, tc.precision, tc.want, got)
		}
	}
}

func TestFormatExactBeyondFloatRange(t *testing.T) {
	// 2^53 + 1 whole units followed by 24 fractional digits ending in 1.
	raw := "9007199254740993000000000000000000000001"
	want := "9007199254740993.000000"
	for i := 0; i < 3; i++ {
		if got := Format(raw, 6); got != want {
			t.Fatalf("expected %s, got %s", want, got)
		}
	}
	if got := Format("9007199254740993123456789012345678901234", 2); got != "9007199254740993.12" {
		t.Fatalf("unexpected rounding for large value: %s", got)
	}
}

func TestFormatMalformedReturnsZero(t *testing.T) {
	for _, raw := range []string{"", "abc", "-1", "1.5", " ", "1e24"} {
		if got := Format(raw, 2); got != "0.00" {
			t.Fatalf("Format(%q): expected 0.00, got %s", raw, got)
		}
	}
}

func TestFromDecimal(t *testing.T) {
	got, err := FromDecimal("1.5", Scale)
	if err != nil {
		t.Fatalf("FromDecimal failed: %v", err)
	}
	if got != "1500000000000000000000000" {
		t.Fatalf("unexpected base units: %s", got)
	}
	if _, err := FromDecimal("1.2.3", Scale); err == nil {
		t.Fatal("expected malformed decimal error")
	}
	if _, err := FromDecimal("0.1234567", 6); err == nil {
		t.Fatal("expected precision error")
	}
}

func TestPercentFloors(t *testing.T) {
	raw := big.NewInt(999)
	if got := Percent(raw, 50); got.String() != "499" {
		t.Fatalf("expected floor, got %s", got)
	}
}

func TestMulRate(t *testing.T) {
	if got := MulRate("10.000000", 1.15, 2); got != "11.50" {
		t.Fatalf("unexpected product: %s", got)
	}
	if got := MulRate("bad", 1.15, 2); got != "0.00" {
		t.Fatalf("expected zero on bad input, got %s", got)
	}
}

func TestExceedsIsStrict(t *testing.T) {
	limit := big.NewInt(1_000_000)
	if Exceeds("1000000", limit) {
		t.Fatal("threshold value itself must not exceed")
	}
	if !Exceeds("1000001", limit) {
		t.Fatal("threshold+1 must exceed")
	}
	if Exceeds("garbage", limit) {
		t.Fatal("malformed input must not exceed")
	}
}
