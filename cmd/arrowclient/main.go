// Package main provides the headless arrow game client. It joins a room on the
// configured server, plays from a scripted input source and logs what a player
// would see.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/arrowgame/internal/client"
	"github.com/cory-johannsen/arrowgame/internal/config"
	"github.com/cory-johannsen/arrowgame/internal/input"
	"github.com/cory-johannsen/arrowgame/internal/lifecycle"
	"github.com/cory-johannsen/arrowgame/internal/observability"
	"github.com/cory-johannsen/arrowgame/internal/session"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	healthEvery := flag.Duration("health-interval", 30*time.Second, "interval between channel health reports")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting arrow client",
		zap.String("reliable_addr", cfg.Server.ReliableAddr()),
		zap.String("unreliable_addr", cfg.Server.UnreliableAddr()),
		zap.Duration("tick_interval", cfg.Client.TickInterval),
	)

	provider, closeInput, err := newInputProvider(cfg.Input, logger)
	if err != nil {
		logger.Fatal("loading input source", zap.Error(err))
	}
	defer closeInput()

	c := client.New(cfg, client.Deps{
		Actors:      client.LogActors{Logger: logger},
		Local:       &client.LogLocalPlayer{Logger: logger},
		Input:       provider,
		Subscribers: []session.Subscriber{client.Announcer{Logger: logger}},
		Logger:      logger,
	})

	ctx := context.Background()
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = c.Connect(dialCtx)
	cancel()
	if err != nil {
		logger.Fatal("connecting to server", zap.Error(err))
	}

	lc := lifecycle.New(logger)

	lc.Add("client", &lifecycle.FuncService{
		StartFn: c.Run,
		StopFn: func() {
			if err := c.Close(); err != nil {
				logger.Warn("closing client", zap.Error(err))
			}
		},
	})

	lc.Add("health", &lifecycle.FuncService{
		StartFn: func(ctx context.Context) error {
			ticker := time.NewTicker(*healthEvery)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
					h := c.Health()
					logger.Info("channel health",
						zap.Stringer("reliable", h.Reliable.State),
						zap.Int64("reliable_received", h.Reliable.Received),
						zap.Stringer("unreliable", h.Unreliable.State),
						zap.Int64("unreliable_received", h.Unreliable.Received),
						zap.Int64("unreliable_dropped", h.Unreliable.Dropped),
						zap.Int("queued", h.Queued),
					)
				}
			}
		},
	})

	logger.Info("client initialized", zap.Duration("startup", time.Since(start)))

	if err := lc.Run(ctx); err != nil {
		logger.Fatal("client error", zap.Error(err))
	}
}

// newInputProvider builds the configured input source. The returned func
// releases it.
func newInputProvider(cfg config.InputConfig, logger *zap.Logger) (input.Provider, func(), error) {
	switch {
	case cfg.Script != "":
		s, err := input.LoadScript(cfg.Script, cfg.ScriptInstructionLimit, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("input from script", zap.String("path", cfg.Script))
		return s, s.Close, nil
	case cfg.Timeline != "":
		t, err := input.LoadTimeline(cfg.Timeline)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("input from timeline", zap.String("path", cfg.Timeline))
		return t, func() {}, nil
	default:
		return input.Static{}, func() {}, nil
	}
}
