package chain

import (
	"errors"
	"math/big"
	"testing"
)

func TestParseAmount(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		wantWei string
		wantErr bool
	}{
		{in: "1", wantWei: "1000000000000000000"},
		{in: "0.01", wantWei: "10000000000000000"},
		{in: "0.000000000000000001", wantWei: "1"},
		{in: "2.5", wantWei: "2500000000000000000"},
		{in: " 0.75 ", wantWei: "750000000000000000"},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "0", wantErr: true},
		{in: "0.0000000000000000001", wantErr: true},
		{in: "1.2.3", wantErr: true},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseAmount(%q) expected error, got %v", tc.in, got)
			}
			if !errors.Is(err, ErrInvalidAmount) {
				t.Fatalf("ParseAmount(%q) error = %v, want ErrInvalidAmount", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseAmount(%q) error = %v", tc.in, err)
		}
		if got.String() != tc.wantWei {
			t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got.String(), tc.wantWei)
		}
	}
}

func TestParseAmounts_ExactSum(t *testing.T) {
	t.Parallel()
	values, total, err := ParseAmounts([]string{"0.01", "0.02"})
	if err != nil {
		t.Fatalf("ParseAmounts() error = %v", err)
	}
	if len(values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(values))
	}

	want, err := ParseAmount("0.03")
	if err != nil {
		t.Fatalf("ParseAmount(0.03) error = %v", err)
	}
	if total.Cmp(want) != 0 {
		t.Fatalf("sum = %s, want %s", total.String(), want.String())
	}
}

func TestParseAmounts_RejectsEmptyList(t *testing.T) {
	t.Parallel()
	if _, _, err := ParseAmounts(nil); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount for empty list, got %v", err)
	}
}

func TestFormatWei(t *testing.T) {
	t.Parallel()
	cases := []struct {
		wei  string
		want string
	}{
		{wei: "0", want: "0"},
		{wei: "1000000000000000000", want: "1"},
		{wei: "1500000000000000000", want: "1.5"},
		{wei: "10000000000000000", want: "0.01"},
		{wei: "1", want: "0.000000000000000001"},
	}
	for _, tc := range cases {
		wei, ok := new(big.Int).SetString(tc.wei, 10)
		if !ok {
			t.Fatalf("bad test wei %q", tc.wei)
		}
		if got := FormatWei(wei); got != tc.want {
			t.Fatalf("FormatWei(%s) = %q, want %q", tc.wei, got, tc.want)
		}
	}
	if got := FormatWei(nil); got != "0" {
		t.Fatalf("FormatWei(nil) = %q, want 0", got)
	}
}

func TestParseFormatRoundTrip(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"1", "0.01", "12.345", "0.000000000000000001"} {
		wei, err := ParseAmount(s)
		if err != nil {
			t.Fatalf("ParseAmount(%q) error = %v", s, err)
		}
		if got := FormatWei(wei); got != s {
			t.Fatalf("round trip %q = %q", s, got)
		}
	}
}
