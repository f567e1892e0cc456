package money

import "testing"

func TestMinorFromFloat(t *testing.T) {
	cases := []struct {
		in      float64
		want    int64
		wantErr bool
	}{
		{100, 10000, false},
		{99.99, 9999, false},
		{10, 1000, false},
		{0.01, 1, false},
		{9.999, 0, true},
	}
	for _, tc := range cases {
		got, err := MinorFromFloat(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("MinorFromFloat(%v): expected error, got %d", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("MinorFromFloat(%v): unexpected error %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("MinorFromFloat(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFormatMinor(t *testing.T) {
	if got := FormatMinor(9800); got != "98.00" {
		t.Errorf("FormatMinor(9800) = %q", got)
	}
	if got := FormatMinor(5); got != "0.05" {
		t.Errorf("FormatMinor(5) = %q", got)
	}
	if got := FormatMinor(-150); got != "-1.50" {
		t.Errorf("FormatMinor(-150) = %q", got)
	}
}

func TestParseMinor(t *testing.T) {
	if got, err := ParseMinor("10.50"); err != nil || got != 1050 {
		t.Errorf("ParseMinor(10.50) = %d, %v", got, err)
	}
	if got, err := ParseMinor("10"); err != nil || got != 1000 {
		t.Errorf("ParseMinor(10) = %d, %v", got, err)
	}
	if _, err := ParseMinor("10.505"); err == nil {
		t.Error("ParseMinor(10.505): expected error")
	}
	if _, err := ParseMinor("abc"); err == nil {
		t.Error("ParseMinor(abc): expected error")
	}
}

func TestRoundTrip(t *testing.T) {
	for _, value := range []int64{0, 1, 99, 100, 12345, 1000000} {
		parsed, err := ParseMinor(FormatMinor(value))
		if err != nil {
			t.Fatalf("round trip %d: %v", value, err)
		}
		if parsed != value {
			t.Errorf("round trip %d -> %d", value, parsed)
		}
	}
}
