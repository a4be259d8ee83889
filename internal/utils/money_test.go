package utils

import "testing"

func TestSplitFeeEvenPercent(t *testing.T) {
	fee, net := SplitFee(100000, 15)
	if fee != 15000 || net != 85000 {
		t.Fatalf("got fee=%d net=%d", fee, net)
	}
}

func TestSplitFeeRoundsTowardPlatform(t *testing.T) {
	fee, net := SplitFee(99, 15)
	// 14.85 rounds up, the net payout never gains the fraction
	if fee != 15 || net != 84 {
		t.Fatalf("got fee=%d net=%d", fee, net)
	}
	if fee+net != 99 {
		t.Fatalf("split does not sum to gross")
	}
}

func TestSplitFeeEdgeCases(t *testing.T) {
	if fee, net := SplitFee(0, 15); fee != 0 || net != 0 {
		t.Fatalf("zero gross should split to zero, got %d/%d", fee, net)
	}
	if fee, net := SplitFee(1000, 200); fee != 1000 || net != 0 {
		t.Fatalf("percent clamps at 100, got %d/%d", fee, net)
	}
	if fee, net := SplitFee(1000, -5); fee != 0 || net != 1000 {
		t.Fatalf("negative percent clamps at 0, got %d/%d", fee, net)
	}
}

func TestFormatRupiah(t *testing.T) {
	cases := map[int64]string{
		0:        "Rp0",
		1500:     "Rp1.500",
		1500000:  "Rp1.500.000",
		-250000:  "-Rp250.000",
		75000000: "Rp75.000.000",
	}
	for in, want := range cases {
		if got := FormatRupiah(in); got != want {
			t.Fatalf("FormatRupiah(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestParseRupiahToInt(t *testing.T) {
	got, err := ParseRupiahToInt("Rp 1.500.000")
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if got != 1500000 {
		t.Fatalf("got %d", got)
	}
	if _, err := ParseRupiahToInt("  "); err == nil {
		t.Fatalf("expected error for blank input")
	}
}
