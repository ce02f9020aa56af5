package runner

import (
	"context"
	"errors"
	"sync"

	"alturbridge/core"
)

type Runner struct {
	Handlers []core.IHandler
	// Finished is closed when a handler ends the session, either with an
	// EndCallEvent or a CriticalErrorEvent.
	Finished chan struct{}

	ctx            context.Context
	cancel         context.CancelFunc
	logger         *core.Logger
	topOutputChan  chan *core.EventPacket
	lastOutputChan chan *core.EventPacket

	finishOnce sync.Once
	mu         sync.Mutex
	err        error
}

func NewRunner(handlers []core.IHandler, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Runner{
		Handlers: handlers,
		Finished: make(chan struct{}),
		logger:   logger.With(map[string]interface{}{"component": "runner"}),
	}
}

// Start wires every handler to the next one and starts them. The handlers
// stop when ctx ends or Stop is called.
func (r *Runner) Start(ctx context.Context) error {
	if len(r.Handlers) == 0 {
		return errors.New("runner: no handlers")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.topOutputChan = make(chan *core.EventPacket, 100)
	r.lastOutputChan = make(chan *core.EventPacket, 100)

	// Create channels for each handler's input
	inputChans := make([]chan *core.EventPacket, len(r.Handlers))
	for i := range inputChans {
		inputChans[i] = make(chan *core.EventPacket, 100)
	}

	for i, handler := range r.Handlers {
		var outputNextChan chan<- *core.EventPacket

		if i < len(r.Handlers)-1 {
			outputNextChan = inputChans[i+1]
		} else {
			// Last handler - output goes to our capture channel
			outputNextChan = r.lastOutputChan
		}

		err := handler.Initialize(
			inputChans[i],
			outputNextChan,
			r.topOutputChan,
			r.ctx,
		)
		if err != nil {
			r.cancel()
			return err
		}
	}

	// Start listeners before the handlers so nothing they emit is missed.
	go r.listenToOutputs()

	for _, handler := range r.Handlers {
		if err := handler.Start(); err != nil {
			r.cancel()
			return err
		}
	}
	return nil
}

func (r *Runner) listenToOutputs() {
	for {
		select {
		case packet := <-r.lastOutputChan:
			r.processFinalOutput(packet)
		case packet := <-r.topOutputChan:
			r.processTopOutput(packet)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) processFinalOutput(packet *core.EventPacket) {
	r.logger.Trace("pipeline output", "event", packet.Event.GetId(), "uid", packet.Uid)
}

func (r *Runner) processTopOutput(packet *core.EventPacket) {
	switch event := packet.Event.(type) {
	case *core.CriticalErrorEvent:
		r.logger.Error("critical error, ending session", "relayer", event.Relayer, "error", event.Error)
		r.finish(errors.New(event.Error))
	case *core.EndCallEvent:
		r.logger.Info("call ended", "reason", event.Reason)
		r.finish(nil)
	case *core.WarningEvent:
		r.logger.Warn("handler warning", "relayer", event.Relayer, "error", event.Error)
	default:
		r.logger.Debug("dropping unhandled top event", "event", packet.Event.GetId(), "relayer", packet.Relayer)
	}
}

func (r *Runner) finish(err error) {
	r.finishOnce.Do(func() {
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.Finished)
	})
}

// Err returns the critical error that finished the run, if any.
func (r *Runner) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Runner) Stop() error {
	if r.cancel != nil {
		r.cancel()
	}

	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Cleanup(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Runner) Reset() error {
	var errs []error
	for _, handler := range r.Handlers {
		if err := handler.Reset(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
