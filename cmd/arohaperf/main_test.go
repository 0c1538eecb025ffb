package main

import (
	"testing"
	"time"
)

func TestPercentileNearestRank(t *testing.T) {
	ds := []time.Duration{
		40 * time.Millisecond,
		10 * time.Millisecond,
		30 * time.Millisecond,
		20 * time.Millisecond,
	}
	if got := percentile(ds, 0.50); got != 20*time.Millisecond {
		t.Fatalf("p50 = %s, want 20ms", got)
	}
	if got := percentile(ds, 0.95); got != 40*time.Millisecond {
		t.Fatalf("p95 = %s, want 40ms", got)
	}
	if got := percentile(ds, 1.0); got != 40*time.Millisecond {
		t.Fatalf("max = %s, want 40ms", got)
	}
	if got := percentile(nil, 0.5); got != 0 {
		t.Fatalf("empty = %s, want 0", got)
	}
}

func TestPercentileDoesNotMutateInput(t *testing.T) {
	ds := []time.Duration{3, 1, 2}
	_ = percentile(ds, 0.5)
	if ds[0] != 3 || ds[1] != 1 || ds[2] != 2 {
		t.Fatalf("input reordered: %v", ds)
	}
}

func TestWSURLFor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/ws"},
		{"https://aroha.example.com", "wss://aroha.example.com/ws"},
		{"http://host:9090/base", "ws://host:9090/base/ws"},
	}
	for _, tc := range cases {
		got, err := wsURLFor(tc.in)
		if err != nil {
			t.Fatalf("wsURLFor(%q) error = %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("wsURLFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if _, err := wsURLFor("ftp://host"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
