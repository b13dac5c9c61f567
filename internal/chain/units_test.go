package chain

import (
	"math/big"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"0.001", 18, "1000000000000000"},
		{"1", 18, "1000000000000000000"},
		{"0.01", 6, "10000"},
		{" 2.5 ", 2, "250"},
		{"0", 18, "0"},
	}
	for _, tt := range tests {
		got, err := ParseUnits(tt.in, tt.decimals)
		if err != nil {
			t.Errorf("ParseUnits(%q, %d) error: %v", tt.in, tt.decimals, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
		}
	}
}

func TestParseUnits_Invalid(t *testing.T) {
	for _, in := range []string{"", "abc", "-1", "1/3", "1e3", "0.0000001"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Errorf("ParseUnits(%q, 6) expected error", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		v        *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(1_000_000_000_000_000), 18, "0.001"},
		{big.NewInt(1_500_000), 6, "1.5"},
		{big.NewInt(2_000_000), 6, "2"},
		{big.NewInt(0), 18, "0"},
		{big.NewInt(-250), 2, "-2.5"},
		{nil, 18, "0"},
	}
	for _, tt := range tests {
		if got := FormatUnits(tt.v, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%v, %d) = %q, want %q", tt.v, tt.decimals, got, tt.want)
		}
	}
}

func TestIsHexAddress(t *testing.T) {
	if !IsHexAddress("0x838800b758277cc111b2d48ab01e5e164f8e9471") {
		t.Error("expected valid address")
	}
	if IsHexAddress("0x1234") {
		t.Error("expected short address to be invalid")
	}
}
