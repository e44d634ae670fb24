package fees

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultScheduleBitExact(t *testing.T) {
	t.Parallel()

	cases := []struct {
		venue   string
		isMaker bool
		want    string
	}{
		{"binance", false, "0.000173"},
		{"binance", true, "-0.00006"},
		{"okex", false, "0.00015"},
		{"okex", true, "-0.00005"},
	}

	s := Default()
	for _, tc := range cases {
		got := s.Lookup(tc.venue, tc.isMaker, nil)
		want, _ := decimal.NewFromString(tc.want)
		if !got.Equal(want) {
			t.Errorf("Lookup(%s, maker=%v) = %s, want %s", tc.venue, tc.isMaker, got, want)
		}
	}
}

func TestUnknownVenueDefaultsToZero(t *testing.T) {
	t.Parallel()

	s := Default()
	got := s.Lookup("deribit", false, nil)
	if !got.IsZero() {
		t.Errorf("Lookup(unknown) = %s, want 0", got)
	}
}
