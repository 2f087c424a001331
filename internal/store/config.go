package store

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"mytradingsignal/internal/types"
)

type Config struct {
	DataSource  string             `yaml:"data_source"`
	Exchange    string             `yaml:"exchange"`
	Timezone    string             `yaml:"timezone"`
	MetricsAddr string             `yaml:"metrics_addr"`
	Instruments []types.Instrument `yaml:"instruments"`

	Candles struct {
		IntervalSeconds  int `yaml:"interval_seconds"`
		MaxPerInstrument int `yaml:"max_per_instrument"`
	} `yaml:"candles"`

	Indicators IndicatorConfig `yaml:"indicators"`

	Connection ConnectionConfig `yaml:"connection"`

	Aggregation AggregationConfig `yaml:"aggregation"`

	Hub struct {
		ListenAddr       string `yaml:"listen_addr"`
		HeartbeatSeconds int    `yaml:"heartbeat_seconds"`
		SubscriberBuffer int    `yaml:"subscriber_buffer"`
	} `yaml:"hub"`

	Auth struct {
		TokenFile    string  `yaml:"token_file"`
		MaxAgeHours  float64 `yaml:"max_age_hours"`
		CheckSeconds int     `yaml:"check_seconds"`
	} `yaml:"auth"`

	Journal struct {
		Dir           string `yaml:"dir"`
		RetentionDays int    `yaml:"retention_days"`
		QueueSize     int    `yaml:"queue_size"`
	} `yaml:"journal"`

	Session struct {
		PreOpen string `yaml:"pre_open"`
		Open    string `yaml:"open"`
		Close   string `yaml:"close"`
		// AlwaysOpen pins the phase to LIVE; only honoured for SIM data.
		AlwaysOpen bool `yaml:"always_open"`
	} `yaml:"session"`

	Sim struct {
		BasePrice     float64 `yaml:"base_price"`
		StepMs        int     `yaml:"step_ms"`
		Volatility    float64 `yaml:"volatility"`
		VolumeMin     int64   `yaml:"volume_min"`
		VolumeMax     int64   `yaml:"volume_max"`
		RandomSeed    int64   `yaml:"random_seed"`
		FailHandshake bool    `yaml:"fail_handshake"`
	} `yaml:"sim"`

	Secrets Secrets `yaml:"-"`
}

type IndicatorConfig struct {
	EMAPeriods      []int   `yaml:"ema_periods"`
	RSIPeriod       int     `yaml:"rsi_period"`
	ATRPeriod       int     `yaml:"atr_period"`
	MomentumPeriod  int     `yaml:"momentum_period"`
	VolumeAvgWindow int     `yaml:"volume_avg_window"`
	SwingLookback   int     `yaml:"swing_lookback"`
	TickSize        float64 `yaml:"tick_size"`
}

type ConnectionConfig struct {
	GraceSeconds          int `yaml:"grace_seconds"`
	PollSeconds           int `yaml:"poll_seconds"`
	AuthFailureThreshold  int `yaml:"auth_failure_threshold"`
	MaxTransientAttempts  int `yaml:"max_transient_attempts"`
	BackoffInitialSeconds int `yaml:"backoff_initial_seconds"`
	BackoffMaxSeconds     int `yaml:"backoff_max_seconds"`
	StaleSeconds          int `yaml:"stale_seconds"`
	LiveRetrySeconds      int `yaml:"live_retry_seconds"`
	EventBuffer           int `yaml:"event_buffer"`
}

type AggregationConfig struct {
	Weights         map[string]float64 `yaml:"weights"`
	StrongScore     float64            `yaml:"strong_score"`
	DirectionScore  float64            `yaml:"direction_score"`
	NeutralScore    float64            `yaml:"neutral_score"`
	StrongBuyAbove  float64            `yaml:"strong_buy_at"`
	BuyAbove        float64            `yaml:"buy_at"`
	SellBelow       float64            `yaml:"sell_at"`
	StrongSellBelow float64            `yaml:"strong_sell_at"`
	Risk            struct {
		BreakdownWeight    float64 `yaml:"breakdown_weight"`
		SpreadWeight       float64 `yaml:"spread_weight"`
		DisagreementWeight float64 `yaml:"disagreement_weight"`
		LowBelow           float64 `yaml:"low_below"`
		HighAbove          float64 `yaml:"high_above"`
	} `yaml:"risk"`
}

// Secrets are never read from config.yaml.
type Secrets struct {
	APIKey      string `envconfig:"KITE_API_KEY"`
	APISecret   string `envconfig:"KITE_API_SECRET"`
	AccessToken string `envconfig:"KITE_ACCESS_TOKEN"`
	TokenFile   string `envconfig:"KITE_TOKEN_FILE"`
}

// DefaultWeights is the per-signal weight table; families sum to 30/25/20/15/10.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"ema_trend":           10,
		"ema_alignment":       10,
		"rsi":                 10,
		"pivot_position":      7,
		"camarilla":           6,
		"support_resistance":  6,
		"previous_day_levels": 6,
		"vwap_position":       8,
		"volume_surge":        6,
		"obv_trend":           6,
		"market_structure":    8,
		"range_breakout":      7,
		"momentum_score":      5,
		"live_price_action":   5,
	}
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.DataSource == "" {
		c.DataSource = "SIM"
	}
	if c.Exchange == "" {
		c.Exchange = "NSE"
	}
	if c.Timezone == "" {
		c.Timezone = "Asia/Kolkata"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9100"
	}
	for i := range c.Instruments {
		if c.Instruments[i].Exchange == "" {
			c.Instruments[i].Exchange = c.Exchange
		}
	}

	if c.Candles.IntervalSeconds == 0 {
		c.Candles.IntervalSeconds = 60
	}
	if c.Candles.MaxPerInstrument == 0 {
		c.Candles.MaxPerInstrument = 200
	}

	ind := &c.Indicators
	if len(ind.EMAPeriods) == 0 {
		ind.EMAPeriods = []int{20, 50, 100, 200}
	}
	if ind.RSIPeriod == 0 {
		ind.RSIPeriod = 14
	}
	if ind.ATRPeriod == 0 {
		ind.ATRPeriod = 14
	}
	if ind.MomentumPeriod == 0 {
		ind.MomentumPeriod = 10
	}
	if ind.VolumeAvgWindow == 0 {
		ind.VolumeAvgWindow = 20
	}
	if ind.SwingLookback == 0 {
		ind.SwingLookback = 30
	}
	if ind.TickSize == 0 {
		ind.TickSize = 0.05
	}

	cc := &c.Connection
	if cc.GraceSeconds == 0 {
		cc.GraceSeconds = 10
	}
	if cc.PollSeconds == 0 {
		cc.PollSeconds = 3
	}
	if cc.AuthFailureThreshold == 0 {
		cc.AuthFailureThreshold = 3
	}
	if cc.MaxTransientAttempts == 0 {
		cc.MaxTransientAttempts = 8
	}
	if cc.BackoffInitialSeconds == 0 {
		cc.BackoffInitialSeconds = 5
	}
	if cc.BackoffMaxSeconds == 0 {
		cc.BackoffMaxSeconds = 60
	}
	if cc.StaleSeconds == 0 {
		cc.StaleSeconds = 15
	}
	if cc.LiveRetrySeconds == 0 {
		cc.LiveRetrySeconds = 60
	}
	if cc.EventBuffer == 0 {
		cc.EventBuffer = 1024
	}

	ag := &c.Aggregation
	if len(ag.Weights) == 0 {
		ag.Weights = DefaultWeights()
	}
	if ag.StrongScore == 0 {
		ag.StrongScore = 100
	}
	if ag.DirectionScore == 0 {
		ag.DirectionScore = 75
	}
	if ag.NeutralScore == 0 {
		ag.NeutralScore = 25
	}
	if ag.StrongBuyAbove == 0 {
		ag.StrongBuyAbove = 60
	}
	if ag.BuyAbove == 0 {
		ag.BuyAbove = 30
	}
	if ag.SellBelow == 0 {
		ag.SellBelow = -45
	}
	if ag.StrongSellBelow == 0 {
		ag.StrongSellBelow = -70
	}
	if ag.Risk.BreakdownWeight == 0 && ag.Risk.SpreadWeight == 0 && ag.Risk.DisagreementWeight == 0 {
		ag.Risk.BreakdownWeight = 0.4
		ag.Risk.SpreadWeight = 0.3
		ag.Risk.DisagreementWeight = 0.3
	}
	if ag.Risk.LowBelow == 0 {
		ag.Risk.LowBelow = 40
	}
	if ag.Risk.HighAbove == 0 {
		ag.Risk.HighAbove = 65
	}

	if c.Hub.ListenAddr == "" {
		c.Hub.ListenAddr = ":8080"
	}
	if c.Hub.HeartbeatSeconds == 0 {
		c.Hub.HeartbeatSeconds = 30
	}
	if c.Hub.SubscriberBuffer == 0 {
		c.Hub.SubscriberBuffer = 64
	}

	if c.Auth.TokenFile == "" {
		c.Auth.TokenFile = "auth/token.json"
	}
	if c.Auth.MaxAgeHours == 0 {
		c.Auth.MaxAgeHours = 20
	}
	if c.Auth.CheckSeconds == 0 {
		c.Auth.CheckSeconds = 5
	}

	if c.Journal.Dir == "" {
		c.Journal.Dir = "logs"
	}
	if c.Journal.QueueSize == 0 {
		c.Journal.QueueSize = 256
	}

	if c.Session.PreOpen == "" {
		c.Session.PreOpen = "0 9 * * 1-5"
	}
	if c.Session.Open == "" {
		c.Session.Open = "15 9 * * 1-5"
	}
	if c.Session.Close == "" {
		c.Session.Close = "30 15 * * 1-5"
	}

	if c.Sim.BasePrice == 0 {
		c.Sim.BasePrice = 22000
	}
	if c.Sim.StepMs == 0 {
		c.Sim.StepMs = 500
	}
	if c.Sim.Volatility == 0 {
		c.Sim.Volatility = 0.0008
	}
	if c.Sim.VolumeMax == 0 {
		c.Sim.VolumeMin, c.Sim.VolumeMax = 10, 500
	}
}

func (c *Config) Validate() error {
	if c.DataSource != "SIM" && c.DataSource != "LIVE" {
		return fmt.Errorf("invalid data_source '%s': must be 'SIM' or 'LIVE'", c.DataSource)
	}
	if len(c.Instruments) == 0 {
		return errors.New("instruments cannot be empty")
	}
	seen := make(map[string]struct{}, len(c.Instruments))
	for _, in := range c.Instruments {
		if in.Symbol == "" {
			return errors.New("instrument symbol cannot be empty")
		}
		if c.DataSource == "LIVE" && in.Token == 0 {
			return fmt.Errorf("instrument %s: token required for LIVE data", in.Symbol)
		}
		if _, dup := seen[in.Symbol]; dup {
			return fmt.Errorf("instrument %s listed twice", in.Symbol)
		}
		seen[in.Symbol] = struct{}{}
	}
	if c.Candles.MaxPerInstrument < 2 {
		return fmt.Errorf("candles.max_per_instrument must be >= 2, got %d", c.Candles.MaxPerInstrument)
	}
	distinct := make(map[int]struct{}, len(c.Indicators.EMAPeriods))
	for _, p := range c.Indicators.EMAPeriods {
		if p <= 0 {
			return fmt.Errorf("indicators.ema_periods must be positive, got %d", p)
		}
		distinct[p] = struct{}{}
	}
	if len(distinct) < 2 {
		return errors.New("indicators.ema_periods needs at least two distinct periods")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone '%s': %w", c.Timezone, err)
	}
	if c.Connection.BackoffMaxSeconds < c.Connection.BackoffInitialSeconds {
		return errors.New("connection.backoff_max_seconds must be >= backoff_initial_seconds")
	}

	total := 0.0
	for name, w := range c.Aggregation.Weights {
		if w < 0 {
			return fmt.Errorf("aggregation weight for %s is negative", name)
		}
		total += w
	}
	if math.Abs(total-100) > 1e-6 {
		return fmt.Errorf("aggregation weights must sum to 100, got %.2f", total)
	}
	ag := c.Aggregation
	if !(ag.StrongBuyAbove > ag.BuyAbove && ag.BuyAbove > ag.SellBelow && ag.SellBelow > ag.StrongSellBelow) {
		return errors.New("aggregation thresholds must satisfy strong_buy > buy > sell > strong_sell")
	}
	if math.Abs(ag.Risk.BreakdownWeight+ag.Risk.SpreadWeight+ag.Risk.DisagreementWeight-1) > 1e-6 {
		return errors.New("aggregation risk weights must sum to 1")
	}
	if c.DataSource == "LIVE" && c.Secrets.APIKey == "" {
		return errors.New("KITE_API_KEY is required for LIVE data")
	}
	return nil
}

// Location returns the exchange timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.FixedZone("IST", 19800)
	}
	return loc
}

// Seconds converts a config seconds field to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	if err := envconfig.Process("", &c.Secrets); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	if c.Secrets.TokenFile != "" {
		c.Auth.TokenFile = c.Secrets.TokenFile
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &c, nil
}
