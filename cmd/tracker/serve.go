package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/barpath/tracker/internal/assets"
	"github.com/barpath/tracker/internal/broker"
	"github.com/barpath/tracker/internal/cache"
	"github.com/barpath/tracker/internal/channel"
	"github.com/barpath/tracker/internal/config"
	"github.com/barpath/tracker/internal/hub"
	httpiface "github.com/barpath/tracker/internal/interfaces/http"
	"github.com/barpath/tracker/internal/learning"
	"github.com/barpath/tracker/internal/plugins"
	"github.com/barpath/tracker/internal/proxy"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(&cfg)

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	// Single instances by policy: every component gets its collaborators
	// handed in, nothing lives on a package global.
	epochs := cache.NewEpochRegistry()
	metrics := httpiface.NewMetricsRegistry()

	h := hub.New(epochs, hub.Config{
		DebounceWindow:   cfg.Hub.DebounceWindow,
		RerequestWindow:  cfg.Hub.RerequestWindow,
		RecentLoadWindow: cfg.Hub.RecentLoadWindow,
	}, metrics.HubCallback())

	extractor := assets.New(cfg.Assets.Root, h)

	var capture channel.Capture
	if cfg.Learning.Enabled {
		capture = learning.New(cfg.Learning.Dir)
		log.Info().Str("dir", cfg.Learning.Dir).Msg("Learning mode on, capturing textual frames")
	}

	channelServer := channel.New(channel.Config{
		Path:            cfg.Channel.Path,
		Secret:          cfg.Channel.Secret,
		MinVersion:      cfg.Channel.MinVersion,
		IdleTimeout:     cfg.Channel.IdleTimeout,
		DatabaseZipWait: cfg.Channel.DatabaseZipWait,
	}, h, extractor, capture)

	b := broker.New(h, broker.Config{
		QueueSize: cfg.Broker.QueueSize,
		Heartbeat: cfg.Broker.Heartbeat,
	})

	registry := plugins.NewRegistry(&plugins.Context{Hub: h, Epochs: epochs, Metrics: metrics.HubCallback()})
	registry.Register(plugins.Results())
	registry.Register(plugins.AttemptBoard())

	deps := httpiface.Deps{
		Hub:         h,
		Broker:      b,
		Registry:    registry,
		Metrics:     metrics,
		Channel:     channelServer,
		ChannelPath: channelServer.Path(),
		AssetRoot:   cfg.Assets.Root,
	}
	if cfg.Upstream.URL != "" {
		up, err := proxy.New(cfg.Upstream.URL)
		if err != nil {
			return err
		}
		deps.Proxy = up
		log.Info().Str("url", cfg.Upstream.URL).Msg("Upstream proxy enabled")
	}

	server := httpiface.NewServer(httpiface.ServerConfig{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 120 * time.Second,
	}, deps)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	// Accept loop first, then source readers die with their
	// connections, then the broker detaches its subscribers.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = server.Shutdown(ctx)
	b.Shutdown()
	return err
}

func applyFlags(cfg *config.Config) {
	if flagPort != 0 {
		cfg.Server.Port = flagPort
	}
	if flagSecret != "" {
		cfg.Channel.Secret = flagSecret
	}
	if flagUpstream != "" {
		cfg.Upstream.URL = flagUpstream
	}
	if flagLearning {
		cfg.Learning.Enabled = true
	}
}
