package codec

import (
	"math"
	"testing"
)

func TestBpsToPercentString(t *testing.T) {
	tests := []struct {
		bps  uint64
		want string
	}{
		{0, "0.00%"},
		{1, "0.01%"},
		{987, "9.87%"},
		{1500, "15.00%"},
		{65535, "655.35%"},
	}
	for _, tt := range tests {
		if got := BpsToPercentString(tt.bps); got != tt.want {
			t.Errorf("BpsToPercentString(%d) = %q, want %q", tt.bps, got, tt.want)
		}
	}
}

func TestPercentStringToBps(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"9.87%", 987},
		{"6.8%", 680},
		{" 11.46 % ", 1146},
		{"15", 1500},
		{".5%", 50},
		{"5.%", 500},
		{"1.2.3", 120},
		{"", 0},
		{"n/a", 0},
		{"%", 0},
		{".", 0},
		{"-3%", 300}, // sign is stripped with the other non-numeric characters
	}
	for _, tt := range tests {
		if got := PercentStringToBps(tt.in); got != tt.want {
			t.Errorf("PercentStringToBps(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestUsdConversions(t *testing.T) {
	if got := UsdCentsToString(108); got != "$1.08" {
		t.Errorf("UsdCentsToString(108) = %q", got)
	}
	if got := UsdCentsToString(5000); got != "$50.00" {
		t.Errorf("UsdCentsToString(5000) = %q", got)
	}
	if got := UsdStringToCents("$1,050.25"); got != 105025 {
		t.Errorf("UsdStringToCents = %d, want 105025", got)
	}
	if got := UsdStringToCents("$50.005"); got != 5001 {
		t.Errorf("half cent should round up, got %d", got)
	}
	if got := UsdStringToCents("free"); got != 0 {
		t.Errorf("UsdStringToCents(free) = %d, want 0", got)
	}
	if got := UsdStringToCents("99999999999999999999999"); got != math.MaxUint64 {
		t.Errorf("overflow should saturate, got %d", got)
	}
}

func TestMicroDegrees(t *testing.T) {
	if got := MicroDegreesToDecimal(40712800); got != 40.7128 {
		t.Errorf("MicroDegreesToDecimal = %v", got)
	}
	if got := DecimalToMicroDegrees(-74.006); got != -74006000 {
		t.Errorf("DecimalToMicroDegrees = %d", got)
	}
	if got := DecimalToMicroDegrees(math.NaN()); got != 0 {
		t.Errorf("NaN = %d, want 0", got)
	}
	if got := DecimalToMicroDegrees(math.Inf(1)); got != 0 {
		t.Errorf("+Inf = %d, want 0", got)
	}
	if got := DecimalToMicroDegrees(1e300); got != math.MaxInt64 {
		t.Errorf("huge = %d, want saturation", got)
	}
}

func TestRoundTrip_Bps(t *testing.T) {
	for b := uint64(0); b <= 65535; b++ {
		if got := PercentStringToBps(BpsToPercentString(b)); got != b {
			t.Fatalf("bps round trip %d -> %q -> %d", b, BpsToPercentString(b), got)
		}
	}
}

func TestRoundTrip_Cents(t *testing.T) {
	step := uint64(1)
	if testing.Short() {
		step = 997
	}
	for c := uint64(0); c <= 10_000_000; c += step {
		if got := UsdStringToCents(UsdCentsToString(c)); got != c {
			t.Fatalf("cents round trip %d -> %q -> %d", c, UsdCentsToString(c), got)
		}
	}
}

func TestRoundTrip_MicroDegrees(t *testing.T) {
	step := int64(1)
	if testing.Short() {
		step = 9973
	}
	for e := int64(-180_000_000); e <= 180_000_000; e += step {
		if got := DecimalToMicroDegrees(MicroDegreesToDecimal(e)); got != e {
			t.Fatalf("micro-degree round trip %d -> %d", e, got)
		}
	}
}
