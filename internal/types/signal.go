package types

import "time"

// Direction is the five-level directional call shared by signals and outlooks.
type Direction string

const (
	StrongBuy  Direction = "STRONG_BUY"
	Buy        Direction = "BUY"
	Neutral    Direction = "NEUTRAL"
	Sell       Direction = "SELL"
	StrongSell Direction = "STRONG_SELL"
)

// Bullish reports whether d is BUY or STRONG_BUY.
func (d Direction) Bullish() bool { return d == Buy || d == StrongBuy }

// Bearish reports whether d is SELL or STRONG_SELL.
func (d Direction) Bearish() bool { return d == Sell || d == StrongSell }

// Family groups signals that share an aggregation weight budget.
type Family string

const (
	FamilyTechnical Family = "technical"
	FamilyZone      Family = "zone"
	FamilyVolume    Family = "volume"
	FamilyTrend     Family = "trend"
	FamilyMomentum  Family = "momentum"
)

type SignalResult struct {
	Name       string    `json:"name"`
	Family     Family    `json:"family"`
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
	Status     string    `json:"status"`
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Outlook is the weighted composite of all signals for one instrument.
type Outlook struct {
	Symbol         string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence"`
	WeightedScore  float64   `json:"weighted_score"`
	Risk           RiskLevel `json:"risk_level"`
	RiskScore      float64   `json:"risk_score"`
	Bullish        int       `json:"bullish_count"`
	Bearish        int       `json:"bearish_count"`
	NeutralCount   int       `json:"neutral_count"`
	Total          int       `json:"total_count"`
	TrendPct       float64   `json:"trend_percentage"`
	Recommendation string    `json:"recommendation"`
	Time           time.Time `json:"timestamp"`
}
