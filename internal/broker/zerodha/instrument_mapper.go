package zerodha

import (
	"sync"

	"github.com/zerodha/gokiteconnect/v4/models"

	"mytradingsignal/internal/types"
)

// instrumentMapper manages bidirectional mapping between symbols and tokens
type instrumentMapper struct {
	symbolToToken map[string]uint32
	tokenToSymbol map[uint32]string
	levels        map[uint32]prevLevels
	mu            sync.RWMutex
}

// prevLevels are the previous session's high and low for one instrument.
type prevLevels struct {
	day  string
	high float64
	low  float64
}

func newInstrumentMapper(instruments []types.Instrument) *instrumentMapper {
	im := &instrumentMapper{
		symbolToToken: make(map[string]uint32, len(instruments)),
		tokenToSymbol: make(map[uint32]string, len(instruments)),
		levels:        make(map[uint32]prevLevels),
	}
	for _, in := range instruments {
		im.addMapping(in.Symbol, in.Token)
	}
	return im
}

// addMapping adds a symbol-token mapping
func (im *instrumentMapper) addMapping(symbol string, token uint32) {
	im.mu.Lock()
	defer im.mu.Unlock()

	im.symbolToToken[symbol] = token
	im.tokenToSymbol[token] = symbol
}

// getToken retrieves the token for a symbol
func (im *instrumentMapper) getToken(symbol string) (uint32, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()

	token, exists := im.symbolToToken[symbol]
	return token, exists
}

// getSymbol retrieves the symbol for a token
func (im *instrumentMapper) getSymbol(token uint32) string {
	im.mu.RLock()
	defer im.mu.RUnlock()

	return im.tokenToSymbol[token]
}

// getAllTokens returns all registered tokens
func (im *instrumentMapper) getAllTokens() []uint32 {
	im.mu.RLock()
	defer im.mu.RUnlock()

	tokens := make([]uint32, 0, len(im.tokenToSymbol))
	for token := range im.tokenToSymbol {
		tokens = append(tokens, token)
	}

	return tokens
}

func (im *instrumentMapper) setLevels(token uint32, l prevLevels) {
	im.mu.Lock()
	defer im.mu.Unlock()
	im.levels[token] = l
}

// levelsFor returns cached previous-session levels if they were fetched for day.
func (im *instrumentMapper) levelsFor(token uint32, day string) (prevLevels, bool) {
	im.mu.RLock()
	defer im.mu.RUnlock()
	l, ok := im.levels[token]
	return l, ok && l.day == day
}

// toRaw converts a full-mode ticker packet. In full mode OHLC.Close carries the
// previous session close.
func (im *instrumentMapper) toRaw(t models.Tick, day string) (types.RawTick, bool) {
	symbol := im.getSymbol(t.InstrumentToken)
	if symbol == "" {
		return types.RawTick{}, false
	}
	raw := types.RawTick{
		Token:     t.InstrumentToken,
		Symbol:    symbol,
		LastPrice: t.LastPrice,
		Open:      t.OHLC.Open,
		High:      t.OHLC.High,
		Low:       t.OHLC.Low,
		Volume:    int64(t.VolumeTraded),
		Timestamp: t.Timestamp.Time,
	}
	if t.OHLC.Close > 0 {
		pc := t.OHLC.Close
		raw.PrevClose = &pc
	}
	im.applyLevels(&raw, day)
	return raw, true
}

func (im *instrumentMapper) applyLevels(raw *types.RawTick, day string) {
	if l, ok := im.levelsFor(raw.Token, day); ok {
		h, lo := l.high, l.low
		raw.PrevHigh, raw.PrevLow = &h, &lo
	}
}
