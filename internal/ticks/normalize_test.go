package ticks

import (
	"errors"
	"math"
	"testing"
	"time"

	"mytradingsignal/internal/types"
)

func f(v float64) *float64 { return &v }

func TestNormalizeFallbacks(t *testing.T) {
	recv := time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  types.RawTick
		want types.Tick
	}{
		{
			name: "previous levels from payload",
			raw: types.RawTick{
				Symbol: "NIFTY", LastPrice: 22010, Open: 21950, High: 22050, Low: 21900,
				PrevClose: f(21980), PrevHigh: f(22100), PrevLow: f(21850), Volume: 10,
				Timestamp: recv.Add(-time.Second),
			},
			want: types.Tick{
				Symbol: "NIFTY", LastPrice: 22010, Open: 21950, High: 22050, Low: 21900,
				PrevClose: 21980, PrevHigh: 22100, PrevLow: 21850, Volume: 10,
				Timestamp: recv.Add(-time.Second),
			},
		},
		{
			name: "previous levels fall back to session open high low",
			raw: types.RawTick{
				Symbol: "BANKNIFTY", LastPrice: 47010, Open: 47000, High: 47100, Low: 46900,
				Timestamp: recv,
			},
			want: types.Tick{
				Symbol: "BANKNIFTY", LastPrice: 47010, Open: 47000, High: 47100, Low: 46900,
				PrevClose: 47000, PrevHigh: 47100, PrevLow: 46900, Timestamp: recv,
			},
		},
		{
			name: "missing day levels and timestamp",
			raw:  types.RawTick{Symbol: "SENSEX", LastPrice: 73000},
			want: types.Tick{
				Symbol: "SENSEX", LastPrice: 73000, Open: 73000, High: 73000, Low: 73000,
				PrevClose: 73000, PrevHigh: 73000, PrevLow: 73000, Timestamp: recv,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.raw, recv)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v\nwant %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeRejectsMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  types.RawTick
	}{
		{"missing symbol", types.RawTick{LastPrice: 100}},
		{"zero price", types.RawTick{Symbol: "NIFTY"}},
		{"negative price", types.RawTick{Symbol: "NIFTY", LastPrice: -1}},
		{"NaN price", types.RawTick{Symbol: "NIFTY", LastPrice: math.NaN()}},
		{"infinite price", types.RawTick{Symbol: "NIFTY", LastPrice: math.Inf(1)}},
		{"negative volume", types.RawTick{Symbol: "NIFTY", LastPrice: 100, Volume: -5}},
		{"high below low", types.RawTick{Symbol: "NIFTY", LastPrice: 100, High: 99, Low: 101}},
		{"bad prev close", types.RawTick{Symbol: "NIFTY", LastPrice: 100, PrevClose: f(math.NaN())}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, time.Now())
			if !errors.Is(err, types.ErrMalformedPayload) {
				t.Fatalf("expected ErrMalformedPayload, got %v", err)
			}
		})
	}
}
