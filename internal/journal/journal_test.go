package journal

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mytradingsignal/internal/types"
)

var ist = time.FixedZone("IST", 19800)

func outlookAt(symbol string, d types.Direction, score float64, risk types.RiskLevel, at time.Time) types.Outlook {
	return types.Outlook{Symbol: symbol, Direction: d, WeightedScore: score, Confidence: score, Risk: risk, Time: at}
}

func TestRecordAndSummarize(t *testing.T) {
	j := New(t.TempDir(), ist)
	ctx := context.Background()
	day := time.Date(2024, 3, 11, 10, 0, 0, 0, ist)

	for i, o := range []types.Outlook{
		outlookAt("NIFTY 50", types.Buy, 35, types.RiskLow, day),
		outlookAt("NIFTY 50", types.StrongBuy, 64, types.RiskLow, day.Add(time.Hour)),
		outlookAt("NIFTY BANK", types.Sell, -50, types.RiskHigh, day.Add(2*time.Hour)),
		outlookAt("NIFTY 50", types.Neutral, 12, types.RiskMedium, day.Add(3*time.Hour)),
	} {
		if err := j.Record(ctx, o); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	path, err := j.SummarizeDay(day)
	if err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"instrument", "changes", "bullish", "bearish", "high_risk", "max_score", "min_score", "last_direction", "last_time"},
		{"NIFTY 50", "3", "2", "0", "0", "64.00", "12.00", "NEUTRAL", "2024-03-11 13:00:00"},
		{"NIFTY BANK", "1", "0", "1", "1", "-50.00", "-50.00", "SELL", "2024-03-11 12:00:00"},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %d rows, want %d: %v", len(recs), len(want), recs)
	}
	for i := range want {
		for k := range want[i] {
			if recs[i][k] != want[i][k] {
				t.Errorf("row %d col %d = %q, want %q", i, k, recs[i][k], want[i][k])
			}
		}
	}
}

func TestSummarizeEmptyDay(t *testing.T) {
	j := New(t.TempDir(), ist)
	path, err := j.SummarizeDay(time.Now())
	if err != nil || path != "" {
		t.Fatalf("SummarizeDay = %q, %v", path, err)
	}
}

func TestCompressOlder(t *testing.T) {
	dir := t.TempDir()
	j := New(dir, ist)
	now := time.Date(2024, 3, 20, 10, 0, 0, 0, ist)

	old := filepath.Join(dir, "2024-03-01.jsonl")
	fresh := filepath.Join(dir, "2024-03-19.jsonl")
	for _, p := range []string{old, fresh} {
		if err := os.WriteFile(p, []byte("{}\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Chtimes(old, now.AddDate(0, 0, -10), now.AddDate(0, 0, -10)); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(fresh, now, now); err != nil {
		t.Fatal(err)
	}

	if err := j.CompressOlder(7, now); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(old + ".gz"); err != nil {
		t.Errorf("old journal not compressed: %v", err)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old journal left in place")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh journal touched: %v", err)
	}
}
