package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"socsync/config"
	"socsync/internal/audit"
	"socsync/internal/backend"
	"socsync/internal/connection"
	"socsync/internal/logger"
	"socsync/internal/syncer"
	"socsync/pkg/models"
)

func newRunCmd(configArg *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Synchronize alerts and incidents until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, configPath, err := loadConfig(*configArg)
			if err != nil {
				return err
			}
			if err := initLogging(cfg); err != nil {
				return err
			}

			logger.Infof("socsync starting")
			if configPath != "" {
				logger.Infof("Config loaded from: %s", configPath)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			err = runSync(ctx, cfg)
			logger.Infof("socsync stopped")
			return err
		},
	}
}

func runSync(ctx context.Context, cfg *config.Config) error {
	s := cfg.SocSync

	client, err := newBackendClient(s.Backend)
	if err != nil {
		return err
	}

	transport, err := buildTransport(s.Push)
	if err != nil {
		return err
	}
	logger.Infof("Push transport: %s", s.Push.Transport)

	mgr := connection.NewManager(connection.Config{
		Token:             s.Backend.Token,
		ReconnectInterval: s.Push.ReconnectInterval,
		MaxReconnectDelay: s.Push.MaxReconnectDelay,
		MaxAttempts:       s.Push.MaxAttempts,
		HeartbeatTimeout:  s.Push.HeartbeatTimeout,
		HandshakeTimeout:  s.Push.HandshakeTimeout,
		WriteTimeout:      s.Push.WriteTimeout,
		QueueSize:         s.Push.QueueSize,
		Jitter:            s.Push.Jitter,
	}, transport, logger.Component("connection"))
	defer mgr.OnQueueOverflow(func(msg *models.Message) {
		logger.Warnf("Offline queue full, dropped %s message %s", msg.Type, msg.ID)
	})()

	var capture *connection.FrameCapture
	if s.Push.Capture.Enabled {
		capture, err = connection.NewFrameCapture(s.Push.Capture.File.Path, s.Push.Capture.BatchSize)
		if err != nil {
			return err
		}
		defer func() {
			if err := capture.Close(); err != nil {
				logger.Errorf("Error closing frame capture: %v", err)
			}
		}()
		defer mgr.OnFrame(capture.Record)()
		logger.Infof("Capturing push frames to %s", s.Push.Capture.File.Path)
	}

	recorder, err := buildRecorder(s.Audit)
	if err != nil {
		return err
	}

	deps := syncer.Deps{Backend: client, Channel: mgr}
	if recorder != nil {
		deps.Auditor = recorder
		defer func() {
			if err := recorder.Close(); err != nil {
				logger.Errorf("Error closing audit sinks: %v", err)
			}
		}()
	}

	coord := syncer.New(syncer.Config{
		ResyncThreshold: s.Sync.ResyncThreshold,
		ResyncInterval:  s.Sync.ResyncInterval,
		RetryDelay:      s.Sync.RetryDelay,
		SnapshotTimeout: s.Sync.SnapshotTimeout,
		SnapshotLimit:   s.Sync.SnapshotLimit,
		MutationTimeout: s.Sync.MutationTimeout,
		MaxBuffered:     s.Sync.MaxBuffered,
		AckDeltas:       s.Sync.AckDeltas,
	}, deps, logger.Component("syncer"))

	// The coordinator subscribed in syncer.New, so the manager may start first.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return coord.Run(gctx) })
	if recorder != nil {
		g.Go(func() error { return recorder.Run(gctx) })
	}
	if capture != nil {
		g.Go(func() error { return capture.Run(gctx, s.Push.Capture.FlushInterval) })
	}
	if s.Metrics.Addr != "" {
		startMetricsServer(gctx, s.Metrics.Addr, coord.Ready())
	}

	g.Go(func() error {
		select {
		case <-coord.Ready():
			logger.Infof("Baseline loaded: alerts=%d incidents=%d", len(coord.Alerts()), len(coord.Incidents()))
		case <-gctx.Done():
		}
		return nil
	})

	logger.Infof("Running, press Ctrl+C to stop")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newBackendClient(b config.BackendConfig) (*backend.Client, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL: b.URL,
		Token:   b.Token,
		Timeout: b.Timeout,
		Headers: b.Headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

func buildTransport(p config.PushConfig) (connection.Transport, error) {
	switch strings.ToLower(p.Transport) {
	case "websocket", "ws":
		t, err := connection.NewWebsocketTransport(connection.WebsocketConfig{
			URL:              p.WebSocket.URL,
			HandshakeTimeout: p.HandshakeTimeout,
			PingInterval:     p.WebSocket.PingInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create websocket transport: %w", err)
		}
		return t, nil
	case "redis":
		t, err := connection.NewRedisTransport(connection.RedisConfig{
			Addr:         p.Redis.Addr,
			Password:     p.Redis.Password,
			DB:           p.Redis.DB,
			InboundKey:   p.Redis.Key,
			OutboundKey:  p.Redis.OutboundKey,
			BlockTimeout: p.Redis.BlockTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create redis transport: %w", err)
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown push transport: %s", p.Transport)
	}
}

// buildRecorder returns nil when auditing is disabled.
func buildRecorder(a config.AuditConfig) (*audit.Recorder, error) {
	if !a.Enabled {
		return nil, nil
	}

	var sinks []audit.Sink
	closeAll := func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}
	for _, out := range a.Outputs {
		switch strings.ToLower(strings.TrimSpace(out)) {
		case "file":
			s, err := audit.NewFileSink(audit.FileSinkConfig{Path: a.File.Path, MaxBytes: a.File.MaxBytes})
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("failed to create audit file sink: %w", err)
			}
			sinks = append(sinks, s)
			logger.Infof("Audit output: file (%s)", a.File.Path)
		case "http":
			s, err := audit.NewHTTPSink(audit.HTTPConfig{
				URL:     a.HTTP.URL,
				Timeout: a.HTTP.Timeout,
				Headers: a.HTTP.Headers,
			})
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("failed to create audit HTTP sink: %w", err)
			}
			sinks = append(sinks, s)
			logger.Infof("Audit output: http (%s)", a.HTTP.URL)
		case "console":
			sinks = append(sinks, audit.NewConsoleSink(logger.Component("audit")))
			logger.Infof("Audit output: console")
		default:
			closeAll()
			return nil, fmt.Errorf("unknown audit output: %s", out)
		}
	}

	return audit.NewRecorder(audit.RecorderConfig{
		Buffer:        a.Buffer,
		FlushInterval: a.FlushInterval,
		MaxRetries:    a.MaxRetries,
	}, sinks...), nil
}
