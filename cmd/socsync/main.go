package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"socsync/config"
	"socsync/internal/logger"
)

const defaultConfigName = "socsync.yml"

func main() {
	var configArg string

	root := &cobra.Command{
		Use:           "socsync",
		Short:         "Keep a SOC console's alerts and incidents in sync with the backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configArg, "config", "c", "", "path to socsync.yml")

	root.AddCommand(newRunCmd(&configArg))
	root.AddCommand(newSnapshotCmd(&configArg))
	root.AddCommand(newCanCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat(defaultConfigName); err == nil {
		return defaultConfigName
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, defaultConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	// Environment variables alone are a valid configuration.
	return ""
}

// loadConfig resolves the config file, loads .env overrides next to it and in
// the working directory, and applies defaults.
func loadConfig(configArg string) (*config.Config, string, error) {
	configPath := findConfigFile(configArg)

	envFiles := []string{".env"}
	if configPath != "" {
		envFiles = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, envFiles...)
	}
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, configPath, nil
}

func applyDefaults(cfg *config.Config) {
	s := &cfg.SocSync

	if s.Backend.Timeout <= 0 {
		s.Backend.Timeout = 15 * time.Second
	}

	if s.Push.Transport == "" {
		s.Push.Transport = "websocket"
	}
	if s.Push.WebSocket.PingInterval <= 0 {
		s.Push.WebSocket.PingInterval = 20 * time.Second
	}
	if s.Push.Redis.Addr == "" {
		s.Push.Redis.Addr = "127.0.0.1:6379"
	}
	if s.Push.Redis.Key == "" {
		s.Push.Redis.Key = "socsync:push"
	}
	if s.Push.Redis.BlockTimeout <= 0 {
		s.Push.Redis.BlockTimeout = 5 * time.Second
	}
	if s.Push.ReconnectInterval <= 0 {
		s.Push.ReconnectInterval = time.Second
	}
	if s.Push.MaxReconnectDelay <= 0 {
		s.Push.MaxReconnectDelay = 30 * time.Second
	}
	if s.Push.MaxAttempts <= 0 {
		s.Push.MaxAttempts = 10
	}
	if s.Push.HeartbeatTimeout <= 0 {
		s.Push.HeartbeatTimeout = 60 * time.Second
	}
	if s.Push.QueueSize <= 0 {
		s.Push.QueueSize = 256
	}
	if s.Push.Capture.File.Path == "" {
		s.Push.Capture.File.Path = "output/push_frames.jsonl"
	}

	if s.Sync.ResyncThreshold <= 0 {
		s.Sync.ResyncThreshold = 30 * time.Second
	}
	if s.Sync.MutationTimeout <= 0 {
		s.Sync.MutationTimeout = 10 * time.Second
	}

	if s.Audit.Enabled && len(s.Audit.Outputs) == 0 {
		s.Audit.Outputs = []string{"file"}
	}
	if s.Audit.File.Path == "" {
		s.Audit.File.Path = "output/audit.jsonl"
	}
	if s.Audit.FlushInterval <= 0 {
		s.Audit.FlushInterval = 2 * time.Second
	}

	if s.Logging.Level == "" {
		s.Logging.Level = "info"
	}
}

func initLogging(cfg *config.Config) error {
	l := cfg.SocSync.Logging
	if err := logger.Init(l.Enabled, l.Level, l.File, l.Console); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}
