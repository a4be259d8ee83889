package utils

import "testing"

func TestHaversineSamePoint(t *testing.T) {
	if d := HaversineMeters(-6.2, 106.8, -6.2, 106.8); d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineOneHundredthDegreeLatitude(t *testing.T) {
	// 0.01 degree of latitude is roughly 1112 meters everywhere.
	d := HaversineMeters(-6.20, 106.80, -6.21, 106.80)
	if d < 1100 || d > 1125 {
		t.Fatalf("expected ~1112m, got %f", d)
	}
}

func TestHaversineSymmetric(t *testing.T) {
	a := HaversineMeters(-6.1754, 106.8272, -6.1950, 106.8230)
	b := HaversineMeters(-6.1950, 106.8230, -6.1754, 106.8272)
	if a != b {
		t.Fatalf("distance not symmetric: %f vs %f", a, b)
	}
	if a < 2000 || a > 2500 {
		t.Fatalf("expected ~2.2km across Jakarta, got %f", a)
	}
}
