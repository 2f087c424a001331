package journal

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"mytradingsignal/internal/types"
)

type summaryRow struct {
	Symbol        string
	Changes       int
	Bullish       int
	Bearish       int
	HighRisk      int
	MaxScore      float64
	MinScore      float64
	LastDirection types.Direction
	LastTime      string
}

func (j *Journal) summaryPath(t time.Time) string {
	return filepath.Join(j.dir, "eod", t.In(j.loc).Format("2006-01-02")+".csv")
}

// SummarizeDay writes one CSV row per instrument from the day's journal and
// returns its path. An empty path means nothing was recorded that day.
func (j *Journal) SummarizeDay(t time.Time) (string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.dailyFilepath(t))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	rows := map[string]*summaryRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		r := rows[e.Symbol]
		if r == nil {
			r = &summaryRow{Symbol: e.Symbol, MaxScore: e.WeightedScore, MinScore: e.WeightedScore}
			rows[e.Symbol] = r
		}
		r.Changes++
		if e.Direction.Bullish() {
			r.Bullish++
		}
		if e.Direction.Bearish() {
			r.Bearish++
		}
		if e.Risk == types.RiskHigh {
			r.HighRisk++
		}
		if e.WeightedScore > r.MaxScore {
			r.MaxScore = e.WeightedScore
		}
		if e.WeightedScore < r.MinScore {
			r.MinScore = e.WeightedScore
		}
		r.LastDirection, r.LastTime = e.Direction, e.Time
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := j.summaryPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	headers := []string{"instrument", "changes", "bullish", "bearish", "high_risk", "max_score", "min_score", "last_direction", "last_time"}
	if err := w.Write(headers); err != nil {
		return "", err
	}
	for _, k := range keys {
		r := rows[k]
		rec := []string{
			r.Symbol,
			strconv.Itoa(r.Changes),
			strconv.Itoa(r.Bullish),
			strconv.Itoa(r.Bearish),
			strconv.Itoa(r.HighRisk),
			fmt.Sprintf("%.2f", r.MaxScore),
			fmt.Sprintf("%.2f", r.MinScore),
			string(r.LastDirection),
			r.LastTime,
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
	}
	w.Flush()
	return outPath, w.Error()
}
