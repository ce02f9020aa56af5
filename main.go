package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"alturbridge/core"
	"alturbridge/factories"
	"alturbridge/metrics"
	"alturbridge/transports/websocket"

	"github.com/cloudwego/base64x"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var settingsPath string
	flag.StringVar(&settingsPath, "settings", getEnv("SETTINGS_PATH", "./settings.json"), "path to settings.json or settings.yaml")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Debug("No .env.local file found or failed to load")
	}

	settings, err := loadSettings(settingsPath)
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Error("invalid settings")
		os.Exit(1)
	}

	logger, err := settings.BuildLogger(os.Stdout)
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Error("invalid logger settings")
		os.Exit(1)
	}
	core.SetLogger(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runWorkerMode(ctx, settings); err != nil {
		cancel()
		os.Exit(1)
	}
	logger.Info("Shutting down...")
}

// loadSettings resolves settings from SETTINGS_JSON_B64 when set, otherwise
// from path. A missing file falls back to the defaults. Environment
// overrides are applied last.
func loadSettings(path string) (factories.SettingsConfig, error) {
	logger := core.GetLogger()

	var settings factories.SettingsConfig
	if encoded := os.Getenv("SETTINGS_JSON_B64"); encoded != "" {
		data, err := base64x.StdEncoding.DecodeString(encoded)
		if err != nil {
			return settings, err
		}
		if settings, err = factories.SettingsConfigFromJSON(data); err != nil {
			return settings, err
		}
		logger.Info("loaded settings from SETTINGS_JSON_B64")
	} else {
		var err error
		settings, err = factories.SettingsConfigFromFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			logger.With(map[string]any{"path": path}).Warn("settings file not found, using defaults")
		case err != nil:
			return settings, err
		default:
			logger.With(map[string]any{"path": path}).Info("loaded settings")
		}
	}

	if err := settings.ApplyEnv(os.LookupEnv); err != nil {
		return settings, err
	}
	return settings, settings.Validate()
}

// runWorkerMode serves calls on the WebSocket provider until ctx ends.
func runWorkerMode(ctx context.Context, settings factories.SettingsConfig) error {
	logger := core.GetLogger().With(map[string]any{"component": "worker"})
	logger.With(map[string]any{
		"port":             settings.Transport.Port,
		"path":             settings.Transport.Path,
		"peer_sample_rate": settings.Serializer.PeerSampleRate,
		"sample_rate":      settings.Serializer.SampleRate,
		"loopback":         settings.Loopback,
		"pacing_factor":    settings.AudioPacingFactor,
	}).Info("starting in worker mode")

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)
	provider := websocket.NewProvider(&settings.Transport, logger, prometheus.DefaultGatherer)

	pipeline := factories.NewPipeline(
		factories.TranscoderHandlerBuilder(settings, collector, logger),
		factories.PipelineConfig{
			Timeout:       settings.SessionTimeout(),
			SessionLogDir: settings.SessionLogDir,
			Metrics:       collector,
		},
		logger,
	)

	return pipeline.Serve(provider, ctx)
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
