package factories

import (
	"context"
	"time"

	"alturbridge/core"
	"alturbridge/handlers/transport"
	"alturbridge/metrics"
	"alturbridge/runner"
)

// PipelineConfig configures a Pipeline's lifecycle behaviour.
type PipelineConfig struct {
	Timeout time.Duration
	// SessionLogDir, when set, tees each call's log to <dir>/<call_id>.jsonl.
	SessionLogDir string
	Metrics       *metrics.Collector
}

// HandlerBuilder creates the ordered handler slice for a single job.
// It receives the transport service and the job context.
type HandlerBuilder func(svc transport.TransportService, ctx context.Context) ([]core.IHandler, error)

// Pipeline builds and runs handler pipelines for incoming transport jobs.
type Pipeline struct {
	config  PipelineConfig
	builder HandlerBuilder
	logger  *core.Logger
}

// NewPipeline creates a Pipeline that uses builder to construct handlers per-job.
func NewPipeline(builder HandlerBuilder, config PipelineConfig, logger *core.Logger) *Pipeline {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Pipeline{
		builder: builder,
		config:  config,
		logger:  logger,
	}
}

// Run builds a handler pipeline for a single job and blocks until completion.
func (p *Pipeline) Run(svc transport.TransportService, ctx context.Context) error {
	// Use per-session logger if available, otherwise fall back to pipeline logger.
	base := core.SessionLoggerFromContext(ctx)
	if base == nil {
		base = p.logger
	}

	select {
	case <-ctx.Done():
		base.Info("context already cancelled, skipping job")
		return nil
	default:
	}

	if svc == nil {
		base.Warn("nil transport service, skipping job")
		return nil
	}

	if p.config.SessionLogDir != "" {
		writer, err := core.NewSessionLogWriter(p.config.SessionLogDir, core.SessionMetadata{
			CallID:    svc.CallID(),
			StartedAt: time.Now().UTC().Format(time.RFC3339),
		})
		if err != nil {
			base.With(map[string]any{"error": err}).Warn("session log disabled")
		} else {
			defer writer.Close()
			base = core.NewSessionLogger(base, writer)
		}
		ctx = core.ContextWithSessionLogger(ctx, base)
	}
	logger := base.With(map[string]any{"component": "pipeline"})

	handlers, err := p.builder(svc, ctx)
	if err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to build handlers")
		return err
	}

	p.config.Metrics.SessionStarted()
	defer p.config.Metrics.SessionEnded()

	r := runner.NewRunner(handlers, base)
	if err := r.Start(ctx); err != nil {
		logger.With(map[string]any{"error": err}).Error("runner failed to start")
		r.Stop()
		return err
	}

	logger.Info("runner started, waiting for completion")

	var timerC <-chan time.Time
	if p.config.Timeout > 0 {
		timer := time.NewTimer(p.config.Timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	var result error
	select {
	case <-ctx.Done():
		logger.Info("context cancelled, stopping runner")

	case <-timerC:
		logger.Warn("timeout reached, stopping runner")
		result = context.DeadlineExceeded

	case <-r.Finished:
		result = r.Err()
		logger.Info("runner finished")
	}

	if err := r.Stop(); err != nil {
		logger.With(map[string]any{"error": err}).Warn("handler cleanup failed")
	}
	return result
}

// Serve registers a job handler with the provider, starts it,
// and blocks until ctx is cancelled. It then stops the provider.
func (p *Pipeline) Serve(provider transport.ITransportProvider, ctx context.Context) error {
	logger := p.logger.With(map[string]any{"component": "pipeline"})

	if err := provider.RegisterJobHandler(p.Run); err != nil {
		logger.With(map[string]any{"error": err}).Error("failed to register job handler")
		return err
	}

	if err := provider.Start(); err != nil {
		logger.With(map[string]any{"error": err}).Error("provider failed to start")
		return err
	}

	logger.Info("provider started, waiting for jobs")
	<-ctx.Done()

	logger.Info("stopping provider")
	if err := provider.Stop(); err != nil {
		logger.With(map[string]any{"error": err}).Error("error stopping provider")
		return err
	}

	return nil
}
