package websocket_test

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"alturbridge/core"
	"alturbridge/handlers/transport"
	"alturbridge/serializers"
	ws "alturbridge/transports/websocket"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoJob sends every inbound message straight back, as text.
func echoJob(svc transport.TransportService, ctx context.Context) error {
	out := make(chan []byte)
	errc := make(chan error, 1)
	go svc.StartReceiving(out, errc)
	for msg := range out {
		if err := svc.SendRawOutput(append([]byte(svc.CallID()+":"), msg...), serializers.SerializerTypeText); err != nil {
			return err
		}
	}
	return nil
}

func newTestServer(t *testing.T, job transport.JobHandler) (*ws.Provider, *httptest.Server) {
	t.Helper()
	provider := ws.NewProvider(ws.DefaultConfig(), core.NopLogger(), prometheus.NewRegistry())
	if job != nil {
		require.NoError(t, provider.RegisterJobHandler(job))
	}
	srv := httptest.NewServer(provider.Handler())
	t.Cleanup(srv.Close)
	return provider, srv
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/media" + query
}

func TestProvider_CallIDFromQuery(t *testing.T) {
	_, srv := newTestServer(t, echoJob)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?call_id=abc123"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, mt)
	assert.Equal(t, "abc123:hello", string(msg))
}

func TestProvider_CallIDFromHeader(t *testing.T) {
	_, srv := newTestServer(t, echoJob)

	header := http.Header{}
	header.Set("X-Call-Id", "from-header")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hi")))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "from-header:hi", string(msg))
}

func TestProvider_RejectsMissingCallID(t *testing.T) {
	_, srv := newTestServer(t, echoJob)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProvider_RejectsDuplicateCall(t *testing.T) {
	provider, srv := newTestServer(t, echoJob)

	first, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "?call_id=abc123"), nil)
	require.NoError(t, err)
	defer first.Close()
	require.Eventually(t, func() bool { return provider.GetActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "?call_id=abc123"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	first.Close()
	require.Eventually(t, func() bool { return provider.GetActiveConnections() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestProvider_HealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "sample_total", Help: "sample"}))
	provider := ws.NewProvider(ws.DefaultConfig(), core.NopLogger(), reg)
	srv := httptest.NewServer(provider.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok 0\n", string(body))

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "sample_total 0")
}

func TestProvider_MetricsCanBeDisabled(t *testing.T) {
	config := ws.DefaultConfig()
	config.EnableMetrics = false
	srv := httptest.NewServer(ws.NewProvider(config, core.NopLogger(), prometheus.NewRegistry()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestProvider_StartStop(t *testing.T) {
	config := ws.DefaultConfig()
	config.Port = 0
	provider := ws.NewProvider(config, core.NopLogger(), prometheus.NewRegistry())
	require.NoError(t, provider.RegisterJobHandler(echoJob))
	require.NoError(t, provider.Start())
	assert.Error(t, provider.Start())

	_, port, err := net.SplitHostPort(provider.Addr())
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial("ws://127.0.0.1:"+port+"/media?call_id=abc123", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return provider.GetActiveConnections() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, provider.Stop())
	assert.Equal(t, 0, provider.GetActiveConnections())

	// The server closed the call.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestProvider_RegisterNilHandler(t *testing.T) {
	provider := ws.NewProvider(nil, core.NopLogger(), nil)
	assert.Error(t, provider.RegisterJobHandler(nil))
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, ws.DefaultConfig().Validate())

	config := ws.DefaultConfig()
	config.Port = 70000
	config.Path = "media"
	config.CallIDParam = ""
	config.CallIDHeader = ""
	config.MaxMessageSize = 0
	config.EnableTLS = true
	err := config.Validate()
	require.Error(t, err)
	for _, want := range []string{"port", "path", "call_id_param", "max_message_size", "tls_cert_file"} {
		assert.Contains(t, err.Error(), want)
	}
}
