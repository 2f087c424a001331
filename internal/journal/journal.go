// Package journal keeps a daily JSON-lines record of outlook changes and
// summarizes each session to CSV.
package journal

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mytradingsignal/internal/types"
)

type Entry struct {
	Time           string          `json:"time"`
	Symbol         string          `json:"instrument"`
	Direction      types.Direction `json:"direction"`
	Confidence     float64         `json:"confidence"`
	WeightedScore  float64         `json:"weighted_score"`
	Risk           types.RiskLevel `json:"risk_level"`
	RiskScore      float64         `json:"risk_score"`
	TrendPct       float64         `json:"trend_percentage"`
	Recommendation string          `json:"recommendation"`
}

type Journal struct {
	dir string
	loc *time.Location

	mu sync.Mutex
}

func New(dir string, loc *time.Location) *Journal {
	if dir == "" {
		dir = "logs"
	}
	if loc == nil {
		loc = time.FixedZone("IST", 19800)
	}
	return &Journal{dir: dir, loc: loc}
}

func (j *Journal) dailyFilepath(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format("2006-01-02")+".jsonl")
}

// Record appends o to the file for the outlook's exchange date.
func (j *Journal) Record(_ context.Context, o types.Outlook) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	at := o.Time
	if at.IsZero() {
		at = time.Now()
	}
	p := j.dailyFilepath(at)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(Entry{
		Time:           at.In(j.loc).Format("2006-01-02 15:04:05"),
		Symbol:         o.Symbol,
		Direction:      o.Direction,
		Confidence:     o.Confidence,
		WeightedScore:  o.WeightedScore,
		Risk:           o.Risk,
		RiskScore:      o.RiskScore,
		TrendPct:       o.TrendPct,
		Recommendation: o.Recommendation,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// CompressOlder gzips journal files last modified more than retentionDays ago.
func (j *Journal) CompressOlder(retentionDays int, now time.Time) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := now.AddDate(0, 0, -retentionDays)

	j.mu.Lock()
	defer j.mu.Unlock()

	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		// already compressed on an earlier run
		if _, err := os.Stat(gz); err == nil {
			_ = os.Remove(p)
			return nil
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("compress %s: %w", p, err)
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
