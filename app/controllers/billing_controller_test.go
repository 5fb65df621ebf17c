package controllers

import "testing"

func TestMajorToMinorUnits(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{in: "49.99", want: 4999},
		{in: "0.01", want: 1},
		{in: "0", want: 0},
		{in: "100", want: 10000},
		{in: "1234.50", want: 123450},
		{in: "-5.00", want: -500},
	}
	for _, tt := range tests {
		got, err := majorToMinorUnits(tt.in)
		if err != nil {
			t.Fatalf("majorToMinorUnits(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("majorToMinorUnits(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMajorToMinorUnitsRejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1,50", "49.999", "0.001"} {
		if _, err := majorToMinorUnits(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}
