package zerodha

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
	"golang.org/x/time/rate"

	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/types"
)

// Params configures the Kite upstream.
type Params struct {
	APIKey         string
	Instruments    []types.Instrument
	Location       *time.Location
	HTTPTimeout    time.Duration
	ConnectTimeout time.Duration
	// BaseURI overrides the Kite REST root; empty uses the production API.
	BaseURI string
}

// Upstream implements interfaces.Upstream on top of Kite Connect: REST for
// credential checks and polling, kiteticker for the live stream.
type Upstream struct {
	apiKey      string
	instruments []types.Instrument
	loc         *time.Location
	connTimeout time.Duration

	auth    interfaces.AuthSource
	mapper  *instrumentMapper
	http    *http.Client
	baseURI string

	// levelsMu keeps one previous-session fetch in flight
	levelsMu sync.Mutex

	// historical endpoint allows 3 req/s, quotes 1 req/s
	histLimiter  *rate.Limiter
	quoteLimiter *rate.Limiter

	now func() time.Time
}

var _ interfaces.Upstream = (*Upstream)(nil)

func New(p Params, auth interfaces.AuthSource) *Upstream {
	if p.Location == nil {
		p.Location = time.FixedZone("IST", 19800)
	}
	if p.HTTPTimeout <= 0 {
		p.HTTPTimeout = 10 * time.Second
	}
	if p.ConnectTimeout <= 0 {
		p.ConnectTimeout = 7 * time.Second
	}
	return &Upstream{
		apiKey:       p.APIKey,
		instruments:  append([]types.Instrument(nil), p.Instruments...),
		loc:          p.Location,
		connTimeout:  p.ConnectTimeout,
		auth:         auth,
		mapper:       newInstrumentMapper(p.Instruments),
		http:         &http.Client{Timeout: p.HTTPTimeout},
		baseURI:      p.BaseURI,
		histLimiter:  rate.NewLimiter(rate.Limit(3), 1),
		quoteLimiter: rate.NewLimiter(rate.Limit(1), 1),
		now:          time.Now,
	}
}

func (u *Upstream) Instruments() []types.Instrument {
	return append([]types.Instrument(nil), u.instruments...)
}

// kite returns a REST client carrying the current access token. Clients are
// per call and share the HTTP connection pool.
func (u *Upstream) kite() *kiteconnect.Client {
	kc := kiteconnect.New(u.apiKey)
	kc.SetHTTPClient(u.http)
	if u.baseURI != "" {
		kc.SetBaseURI(u.baseURI)
	}
	kc.SetAccessToken(u.auth.Token())
	return kc
}

// withContext runs a blocking REST call and returns as soon as ctx ends. The
// abandoned call finishes in the background within the HTTP client timeout.
func withContext[T any](ctx context.Context, call func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// CheckCredential calls the profile endpoint, the cheapest authenticated call.
func (u *Upstream) CheckCredential(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if u.auth.Token() == "" {
		return fmt.Errorf("%w: no access token", types.ErrAuthExpired)
	}
	profile, err := withContext(ctx, u.kite().GetUserProfile)
	if err != nil {
		return classify(err)
	}
	logger.Debug(ctx, "Kite credential valid", "user_id", profile.UserID)
	return nil
}

// Poll fetches full quotes for every tracked instrument in one request.
func (u *Upstream) Poll(ctx context.Context) ([]types.RawTick, error) {
	if err := u.quoteLimiter.Wait(ctx); err != nil {
		return nil, err
	}
	u.ensureLevels(ctx)

	keys := make([]string, 0, len(u.instruments))
	for _, in := range u.instruments {
		keys = append(keys, in.Key())
	}

	quotes, err := withContext(ctx, func() (kiteconnect.Quote, error) {
		return u.kite().GetQuote(keys...)
	})
	if err != nil {
		return nil, classify(err)
	}

	day := u.today()
	out := make([]types.RawTick, 0, len(u.instruments))
	for _, in := range u.instruments {
		q, ok := quotes[in.Key()]
		if !ok {
			logger.Warn(ctx, "Quote missing from poll response", "instrument", in.Key())
			continue
		}
		raw := types.RawTick{
			Token:     uint32(q.InstrumentToken),
			Symbol:    in.Symbol,
			LastPrice: q.LastPrice,
			Open:      q.OHLC.Open,
			High:      q.OHLC.High,
			Low:       q.OHLC.Low,
			Volume:    int64(q.Volume),
			Timestamp: q.Timestamp.Time,
		}
		if raw.Token == 0 {
			raw.Token = in.Token
		}
		if q.OHLC.Close > 0 {
			pc := q.OHLC.Close
			raw.PrevClose = &pc
		}
		u.mapper.applyLevels(&raw, day)
		out = append(out, raw)
	}
	return out, nil
}

func (u *Upstream) today() string {
	return u.now().In(u.loc).Format("2006-01-02")
}

// ensureLevels loads the previous session's high and low for instruments that
// have none cached for today. Failures are logged and retried on the next call.
// It returns at once when another load is already running.
func (u *Upstream) ensureLevels(ctx context.Context) {
	if !u.levelsMu.TryLock() {
		return
	}
	defer u.levelsMu.Unlock()

	day := u.today()
	for _, in := range u.instruments {
		if in.Token == 0 {
			continue
		}
		if _, ok := u.mapper.levelsFor(in.Token, day); ok {
			continue
		}
		l, err := u.fetchPrevLevels(ctx, in.Token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn(ctx, "Failed to load previous session levels", "instrument", in.Symbol, "error", err)
			continue
		}
		l.day = day
		u.mapper.setLevels(in.Token, l)
	}
}

func (u *Upstream) fetchPrevLevels(ctx context.Context, token uint32) (prevLevels, error) {
	if err := u.histLimiter.Wait(ctx); err != nil {
		return prevLevels{}, err
	}
	now := u.now().In(u.loc)
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, u.loc)

	bars, err := withContext(ctx, func() ([]kiteconnect.HistoricalData, error) {
		return u.kite().GetHistoricalData(int(token), "day", startOfDay.AddDate(0, 0, -10), startOfDay.Add(-time.Second), false, false)
	})
	if err != nil {
		return prevLevels{}, classify(err)
	}
	if len(bars) == 0 {
		return prevLevels{}, fmt.Errorf("no daily bars before %s", startOfDay.Format("2006-01-02"))
	}
	last := bars[len(bars)-1]
	return prevLevels{high: last.High, low: last.Low}, nil
}
