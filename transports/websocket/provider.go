package websocket

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"alturbridge/core"
	"alturbridge/handlers/transport"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider implements transport.ITransportProvider. Every WebSocket
// connection on the media path is one call and runs one job.
type Provider struct {
	config     *Config
	logger     *core.Logger
	gatherer   prometheus.Gatherer
	server     *http.Server
	listener   net.Listener
	upgrader   websocket.Upgrader
	jobHandler transport.JobHandler

	// baseCtx is cancelled by Stop so running jobs end with the server.
	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu        sync.RWMutex
	isRunning bool

	connections   map[string]*Service
	connectionsMu sync.RWMutex
	jobs          sync.WaitGroup
}

// NewProvider creates a provider. gatherer backs /metrics; nil selects the
// default Prometheus registry.
func NewProvider(config *Config, logger *core.Logger, gatherer prometheus.Gatherer) *Provider {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = core.GetLogger()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		config:   config,
		logger:   logger.With(map[string]interface{}{"component": "websocket_provider"}),
		gatherer: gatherer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true // Telephony peers do not send browser origins.
			},
		},
		baseCtx:     ctx,
		baseCancel:  cancel,
		connections: make(map[string]*Service),
	}
}

// Handler returns the HTTP handler serving the media path, /healthz and,
// when enabled, /metrics.
func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(p.config.Path, p.handleWebSocket)
	mux.HandleFunc("/healthz", p.handleHealth)
	if p.config.EnableMetrics {
		mux.Handle("/metrics", promhttp.HandlerFor(p.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start implements ITransportProvider.Start. The listener is bound before
// Start returns.
func (p *Provider) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return errors.New("provider already running")
	}
	if err := p.config.Validate(); err != nil {
		return fmt.Errorf("websocket provider: %w", err)
	}

	addr := fmt.Sprintf(":%d", p.config.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("websocket provider: listen %s: %w", addr, err)
	}
	p.listener = ln
	p.server = &http.Server{Handler: p.Handler()}

	go func() {
		var err error
		if p.config.EnableTLS {
			err = p.server.ServeTLS(ln, p.config.TLSCertFile, p.config.TLSKeyFile)
		} else {
			err = p.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.logger.Error("server error", "error", err)
		}
	}()

	p.isRunning = true
	p.logger.Info("websocket provider started", "addr", ln.Addr().String(), "path", p.config.Path)
	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (p *Provider) Addr() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Stop implements ITransportProvider.Stop. It ends every running job and
// waits for them. A stopped provider cannot be started again.
func (p *Provider) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return nil
	}

	p.baseCancel()

	// Close all active connections
	p.connectionsMu.Lock()
	for _, svc := range p.connections {
		svc.Close()
	}
	p.connectionsMu.Unlock()

	var err error
	if p.server != nil {
		if shutdownErr := p.server.Shutdown(context.Background()); shutdownErr != nil {
			err = fmt.Errorf("error shutting down server: %w", shutdownErr)
		}
	}
	p.jobs.Wait()

	p.isRunning = false
	p.logger.Info("websocket provider stopped")
	return err
}

// RegisterJobHandler implements ITransportProvider.RegisterJobHandler
func (p *Provider) RegisterJobHandler(handler transport.JobHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	p.jobHandler = handler
	return nil
}

// callID reads the call id from the query string, then from the header.
func (p *Provider) callID(r *http.Request) string {
	if p.config.CallIDParam != "" {
		if id := r.URL.Query().Get(p.config.CallIDParam); id != "" {
			return id
		}
	}
	if p.config.CallIDHeader != "" {
		return r.Header.Get(p.config.CallIDHeader)
	}
	return ""
}

func (p *Provider) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	callID := p.callID(r)
	if callID == "" {
		http.Error(w, "missing call id", http.StatusBadRequest)
		return
	}

	p.connectionsMu.RLock()
	_, busy := p.connections[callID]
	p.connectionsMu.RUnlock()
	if busy {
		http.Error(w, "call already connected", http.StatusConflict)
		return
	}

	conn, err := p.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		p.logger.Warn("failed to upgrade connection", "call_id", callID, "error", err)
		return
	}
	conn.SetReadLimit(p.config.MaxMessageSize)

	logger := p.logger.With(map[string]interface{}{
		"call_id":     callID,
		"remote_addr": conn.RemoteAddr().String(),
	})
	svc := NewService(conn, callID, p.config, logger)

	p.mu.RLock()
	handler := p.jobHandler
	p.mu.RUnlock()

	p.connectionsMu.Lock()
	if p.baseCtx.Err() != nil {
		p.connectionsMu.Unlock()
		svc.Close()
		return
	}
	if _, busy := p.connections[callID]; busy {
		p.connectionsMu.Unlock()
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "call already connected"),
			time.Now().Add(time.Second),
		)
		conn.Close()
		return
	}
	p.connections[callID] = svc
	p.jobs.Add(1)
	p.connectionsMu.Unlock()

	logger.Info("peer connected")
	defer func() {
		svc.Close()
		p.connectionsMu.Lock()
		delete(p.connections, callID)
		p.connectionsMu.Unlock()
		p.jobs.Done()
		logger.Info("peer disconnected")
	}()

	if handler == nil {
		logger.Warn("no job handler registered, closing connection")
		return
	}

	ctx, cancel := context.WithCancel(p.baseCtx)
	defer cancel()
	ctx = core.ContextWithSessionLogger(ctx, logger)

	if err := handler(svc, ctx); err != nil {
		logger.Warn("job ended with error", "error", err)
	}
}

func (p *Provider) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "ok %d\n", p.GetActiveConnections())
}

// GetActiveConnections returns the number of active WebSocket connections
func (p *Provider) GetActiveConnections() int {
	p.connectionsMu.RLock()
	defer p.connectionsMu.RUnlock()
	return len(p.connections)
}
