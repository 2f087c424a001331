package types

import "time"

// RawTick is an upstream payload before normalization. Optional previous-session
// reference levels are pointers so "absent" and "zero" stay distinguishable.
type RawTick struct {
	Token     uint32
	Symbol    string
	LastPrice float64
	Open      float64
	High      float64
	Low       float64
	PrevClose *float64
	PrevHigh  *float64
	PrevLow   *float64
	Volume    int64 // cumulative day volume
	Timestamp time.Time
}

// Tick is the canonical price update produced by the tick normalizer.
type Tick struct {
	Symbol    string    `json:"instrument"`
	Token     uint32    `json:"token"`
	LastPrice float64   `json:"last_price"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	PrevHigh  float64   `json:"prev_high"`
	PrevLow   float64   `json:"prev_low"`
	Volume    int64     `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Change returns the percentage move from the previous close.
func (t Tick) Change() float64 {
	if t.PrevClose == 0 {
		return 0
	}
	return (t.LastPrice - t.PrevClose) / t.PrevClose * 100
}

type Candle struct {
	Symbol string    `json:"instrument"`
	Start  time.Time `json:"start"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Vol    float64   `json:"volume"`
	Ticks  int       `json:"ticks"`
}

// Typical returns (high+low+close)/3.
func (c Candle) Typical() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Instrument is one tracked upstream instrument.
type Instrument struct {
	Symbol   string `yaml:"symbol" json:"symbol"`
	Token    uint32 `yaml:"token" json:"token"`
	Exchange string `yaml:"exchange" json:"exchange"`
}

// Key returns the "EXCHANGE:SYMBOL" form used by the Kite quote API.
func (i Instrument) Key() string {
	if i.Exchange == "" {
		return i.Symbol
	}
	return i.Exchange + ":" + i.Symbol
}
