package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/warden-project/warden/automod/cases"
	"github.com/warden-project/warden/automod/counterstore"
	"github.com/warden-project/warden/automod/engine"
	"github.com/warden-project/warden/bans"
	"github.com/warden-project/warden/discord"
	"github.com/warden-project/warden/settings"
)

type Server struct {
	logger   *slog.Logger
	db       *gorm.DB
	client   *discord.SessionClient
	settings *settings.Store
	counters counterstore.Store
	cases    *cases.Recorder
	bans     *bans.Scheduler
	engine   *engine.Engine

	decayInterval     time.Duration
	banExpiryInterval time.Duration
}

type Config struct {
	DiscordToken      string
	RedisURL          string
	DecayInterval     time.Duration
	BanExpiryInterval time.Duration
	Logger            *slog.Logger
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	if config.DiscordToken == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	client, err := discord.NewSessionClient(config.DiscordToken)
	if err != nil {
		return nil, err
	}

	var cache settings.SnapshotCache
	if config.RedisURL != "" {
		csh, err := settings.NewRedisSnapshotCache(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis settings cache: %v", err)
		}
		cache = csh
	} else {
		cache = settings.NewMemSnapshotCache(5_000, 30*time.Minute)
	}

	settingsStore := settings.NewStore(db, cache, logger)
	counters := counterstore.NewGormStore(db, logger)
	recorder := cases.NewRecorder(db, settingsStore, client, logger)
	scheduler := bans.NewScheduler(db, client, recorder, logger)

	eng := &engine.Engine{
		Logger:   logger,
		Settings: settingsStore,
		Counters: counters,
		Cases:    recorder,
		Client:   client,
		TempBans: scheduler,
	}
	eng.ListenCounterChanges(counters)

	s := &Server{
		logger:            logger,
		db:                db,
		client:            client,
		settings:          settingsStore,
		counters:          counters,
		cases:             recorder,
		bans:              scheduler,
		engine:            eng,
		decayInterval:     config.DecayInterval,
		banExpiryInterval: config.BanExpiryInterval,
	}
	return s, nil
}

// Run opens the gateway, starts the admin API and the periodic sweeps, and
// blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context, apiBind string) error {
	if err := s.openGateway(); err != nil {
		return err
	}
	defer func() {
		if err := s.client.Session.Close(); err != nil {
			s.logger.Error("closing gateway session", "err", err)
		}
	}()

	e := s.buildAPI()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := e.Start(apiBind)
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutCtx)
	})
	eg.Go(func() error { return s.runDecaySweep(ctx) })
	eg.Go(func() error { return s.runBanExpirySweep(ctx) })

	s.logger.Info("warden running", "bind", apiBind)
	return eg.Wait()
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// runDecaySweep periodically moves decaying counter values toward their
// initial value. Sweep errors are logged and retried on the next tick.
func (s *Server) runDecaySweep(ctx context.Context) error {
	ticker := time.NewTicker(s.decayInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.counters.TickDecay(ctx, now); err != nil {
				s.logger.Error("counter decay sweep failed", "err", err)
			}
		}
	}
}

func (s *Server) runBanExpirySweep(ctx context.Context) error {
	ticker := time.NewTicker(s.banExpiryInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if err := s.bans.TickExpiry(ctx, now); err != nil {
				s.logger.Error("ban expiry sweep failed", "err", err)
			}
		}
	}
}
