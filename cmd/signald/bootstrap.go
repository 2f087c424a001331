package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"mytradingsignal/internal/auth"
	"mytradingsignal/internal/broker/brokerobs"
	"mytradingsignal/internal/broker/sim"
	"mytradingsignal/internal/broker/zerodha"
	"mytradingsignal/internal/engine"
	"mytradingsignal/internal/engine/engineobs"
	"mytradingsignal/internal/feed"
	"mytradingsignal/internal/hub"
	"mytradingsignal/internal/interfaces"
	"mytradingsignal/internal/journal"
	"mytradingsignal/internal/logger"
	"mytradingsignal/internal/session"
	"mytradingsignal/internal/store"
	"mytradingsignal/internal/trace"
	"mytradingsignal/internal/types"
)

// initializeSystem initializes logger and tracer
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	// Initialize logger
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	// Initialize tracer
	if err := trace.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize tracer: %v\n", err)
	}

	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// service owns every long-running component.
type service struct {
	cfg       *store.Config
	watcher   *auth.Watcher
	scheduler *session.Scheduler
	hub       *hub.Hub
	journal   *journal.Journal
	writer    *journal.Writer
	engine    interfaces.Engine
	manager   *feed.Manager
	cancel    context.CancelFunc
}

func buildService(ctx context.Context, cfg *store.Config) (*service, error) {
	svc := &service{cfg: cfg}

	svc.watcher = auth.NewWatcher(
		cfg.Auth.TokenFile,
		time.Duration(cfg.Auth.MaxAgeHours*float64(time.Hour)),
		store.Seconds(cfg.Auth.CheckSeconds),
		cfg.Secrets.AccessToken,
	)
	svc.watcher.Refresh(ctx)

	phases, err := initializeSession(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if sched, ok := phases.(*session.Scheduler); ok {
		svc.scheduler = sched
	}

	svc.hub = hub.New(cfg.Hub.SubscriberBuffer, store.Seconds(cfg.Hub.HeartbeatSeconds))
	svc.hub.SetSession(phases)

	svc.journal = initializeJournal(ctx, cfg)
	svc.writer = journal.NewWriter(svc.journal, cfg.Journal.QueueSize)

	eng, err := initializeEngine(cfg, svc.hub, svc.writer)
	if err != nil {
		return nil, err
	}
	svc.engine = eng
	if svc.scheduler != nil {
		svc.scheduler.OnPhase(types.PhasePreOpen, func() { eng.ResetSession(context.Background()) })
		svc.scheduler.OnPhase(types.PhaseClosed, func() { svc.summarizeSession(context.Background()) })
	}

	up := initializeUpstream(ctx, cfg, svc.watcher)
	svc.manager = feed.New(feed.ConfigFrom(cfg.Connection), up, svc.watcher, phases, eng, svc.hub)
	svc.hub.SetHealth(svc.manager)

	return svc, nil
}

// initializeSession returns the cron-driven session scheduler, or a pinned
// LIVE phase for simulated data when always_open is set.
func initializeSession(ctx context.Context, cfg *store.Config) (interfaces.SessionSource, error) {
	if cfg.DataSource == "SIM" && cfg.Session.AlwaysOpen {
		logger.Warn(ctx, "Session schedule disabled, market treated as always open")
		return session.Static(types.PhaseLive), nil
	}
	s, err := session.New(cfg.Session.PreOpen, cfg.Session.Open, cfg.Session.Close, cfg.Location(), time.Now())
	if err != nil {
		return nil, fmt.Errorf("session schedule: %w", err)
	}
	logger.Info(ctx, "Session scheduler ready", "phase", string(s.Phase()), "timezone", cfg.Timezone)
	return s, nil
}

// initializeUpstream builds the data source and wraps it with observability
func initializeUpstream(ctx context.Context, cfg *store.Config, tokens interfaces.AuthSource) interfaces.Upstream {
	var up interfaces.Upstream

	if cfg.DataSource == "LIVE" {
		logger.Info(ctx, "Using LIVE market data from Zerodha")
		up = zerodha.New(zerodha.Params{
			APIKey:      cfg.Secrets.APIKey,
			Instruments: cfg.Instruments,
			Location:    cfg.Location(),
		}, tokens)
	} else {
		logger.Info(ctx, "Using SIMULATED market data")
		up = sim.New(sim.Params{
			Instruments:   cfg.Instruments,
			BasePrice:     cfg.Sim.BasePrice,
			Step:          time.Duration(cfg.Sim.StepMs) * time.Millisecond,
			Volatility:    cfg.Sim.Volatility,
			VolumeMin:     cfg.Sim.VolumeMin,
			VolumeMax:     cfg.Sim.VolumeMax,
			Seed:          cfg.Sim.RandomSeed,
			FailHandshake: cfg.Sim.FailHandshake,
		})
	}

	// Wrap with observability middleware
	return brokerobs.Wrap(up)
}

// initializeJournal opens the outlook journal and compresses old files
func initializeJournal(ctx context.Context, cfg *store.Config) *journal.Journal {
	j := journal.New(cfg.Journal.Dir, cfg.Location())
	if err := j.CompressOlder(cfg.Journal.RetentionDays, time.Now()); err != nil {
		logger.Warn(ctx, "Failed to compress old journals", "error", err)
	}
	return j
}

// initializeEngine builds the ingestion pipeline with observability
func initializeEngine(cfg *store.Config, pub interfaces.Publisher, rec interfaces.OutlookRecorder) (interfaces.Engine, error) {
	eng, err := engine.New(cfg, pub)
	if err != nil {
		return nil, err
	}
	eng.SetRecorder(rec)

	// Wrap with observability middleware
	return engineobs.Wrap(eng), nil
}

func (s *service) start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	if s.scheduler != nil {
		s.scheduler.Start()
	}
	go s.watcher.Run(ctx)
	go s.hub.Run(ctx)
	s.manager.Start(ctx)
}

// stop halts the manager first so no tick is ingested after the hub closes.
func (s *service) stop() {
	s.manager.Stop()
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
	s.writer.Close()
	s.summarizeSession(context.Background())
	if s.cancel != nil {
		s.cancel()
	}
	s.hub.Close()
}

// summarizeSession writes the end-of-session CSV from today's journal.
func (s *service) summarizeSession(ctx context.Context) {
	fctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.writer.Flush(fctx); err != nil {
		logger.Warn(ctx, "Journal backlog not flushed before summary", "error", err)
	}

	p, err := s.journal.SummarizeDay(time.Now())
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to write session summary", err)
		return
	}
	if p != "" {
		logger.Info(ctx, "Session summary written", "path", p)
	}
}

func (s *service) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.manager.Snapshot())
	})
	mux.HandleFunc("/outlook", func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("instrument")
		o, ok := s.engine.Latest(symbol)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no outlook for " + symbol})
			return
		}
		writeJSON(w, http.StatusOK, o)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
