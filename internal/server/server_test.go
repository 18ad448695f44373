package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/flux"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/phone/phonetest"
	"github.com/nupi-ai/voxflux/internal/prefs"
	"github.com/nupi-ai/voxflux/internal/status"
	"github.com/nupi-ai/voxflux/internal/voice"
)

type fixture struct {
	t       *testing.T
	pool    *phonetest.Pool
	session *prefs.Session
	adapter *voice.Adapter
	store   *flux.Store[status.State]
	srv     *httptest.Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		t:       t,
		pool:    &phonetest.Pool{},
		session: &prefs.Session{},
	}
	f.adapter = voice.New(f.pool.Factory(), nil, f.session)
	bus := eventbus.New()
	f.store = flux.New(status.Publisher(bus, status.Reducer(f.adapter.Prefix())), status.State{},
		flux.WithBus(bus),
		flux.WithMiddleware(f.adapter.Middleware()))

	opts = append([]Option{WithDevices(f.adapter)}, opts...)
	f.srv = httptest.NewServer(New(f.store, f.adapter.Actions(), opts...).Router())
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fixture) do(method, path, body string) (*http.Response, []byte) {
	f.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, reader)
	require.NoError(f.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(f.t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(f.t, err)
	return resp, data
}

func (f *fixture) state() StateResponse {
	f.t.Helper()
	resp, body := f.do(http.MethodGet, "/v1/state", "")
	require.Equal(f.t, http.StatusOK, resp.StatusCode)
	var out StateResponse
	require.NoError(f.t, json.Unmarshal(body, &out))
	return out
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.NotEmpty(t, health.Version)
}

func TestSetupDispatchesAndRegistersDevice(t *testing.T) {
	f := newFixture(t)

	resp, body := f.do(http.MethodPost, "/v1/devices/desk/setup", `{"token":"tok-1","options":{"debug":true}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var ack DispatchResponse
	require.NoError(t, json.Unmarshal(body, &ack))
	assert.Equal(t, "@@voice::setup", ack.Type)
	assert.Equal(t, "desk", ack.DeviceID)
	assert.NotEmpty(t, ack.Timestamp)

	fake := f.pool.Last()
	require.NotNil(t, fake)
	assert.Equal(t, []string{"tok-1"}, fake.Tokens())
	require.Len(t, fake.Options(), 1)
	assert.True(t, fake.Options()[0].Debug)

	st := f.state()
	assert.Equal(t, []string{"desk"}, st.Registered)
	dev, ok := st.Device("desk")
	require.True(t, ok)
	assert.Equal(t, status.StateRegistering, dev.State)
}

func TestSetupValidatesBody(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing token", `{"options":{}}`, "token is required"},
		{"empty body", "", "token is required"},
		{"unknown field", `{"token":"x","bogus":1}`, "invalid request body"},
		{"malformed", `{"token":`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.do(http.MethodPost, "/v1/devices/desk/setup", tt.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			var e ErrorResponse
			require.NoError(t, json.Unmarshal(body, &e))
			assert.Contains(t, e.Error, tt.want)
		})
	}
	assert.Empty(t, f.pool.Clients())
}

func TestDestroyEvictsDevice(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(http.MethodPost, "/v1/devices/desk/setup", `{"token":"tok"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, body := f.do(http.MethodDelete, "/v1/devices/desk", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Contains(t, string(body), `"@@voice::destroy"`)

	assert.True(t, f.pool.Last().Destroyed())
	st := f.state()
	assert.Empty(t, st.Registered)
	dev, ok := st.Device("desk")
	require.True(t, ok)
	assert.Equal(t, status.StateDestroyed, dev.State)
}

func TestDestroyUnknownDeviceIsAccepted(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(http.MethodDelete, "/v1/devices/ghost", "")
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Zero(t, f.state().Faults)
}

func TestTestOutputReachesClient(t *testing.T) {
	f := newFixture(t)
	f.do(http.MethodPost, "/v1/devices/desk/setup", `{"token":"tok"}`)

	resp, _ := f.do(http.MethodPost, "/v1/devices/desk/test-output", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 1, f.pool.Last().Tests())
}

func TestAudioDeviceRoutesStorePreferences(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(http.MethodPut, "/v1/audio/input", `{"deviceId":"mic-1"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, _ = f.do(http.MethodPut, "/v1/audio/output", `{"deviceId":"spk-2"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	ctx := context.Background()
	in, ok, err := f.session.Get(ctx, prefs.KeyInputDevice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "mic-1", in)
	out, ok, err := f.session.Get(ctx, prefs.KeyOutputDevice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "spk-2", out)
}

func TestAudioDeviceRequiresID(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(http.MethodPut, "/v1/audio/input", `{"deviceId":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "deviceId is required")
}

func TestStateStartsEmpty(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"devices":{},"faults":0,"registered":[]}`, string(body))
}

func TestMetricsRoute(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.do(http.MethodGet, "/v1/metrics", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	f = newFixture(t, WithMetrics(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "voxflux_up 1\n")
	})))
	resp, body := f.do(http.MethodGet, "/v1/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "voxflux_up 1\n", string(body))
}

func dialActions(t *testing.T, f *fixture, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/actions"
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readStream(t *testing.T, conn *websocket.Conn, n int) []StreamMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	out := make([]StreamMessage, 0, n)
	for len(out) < n {
		var msg StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		out = append(out, msg)
	}
	return out
}

func TestActionStreamRelaysRedactedActionsAndStatus(t *testing.T) {
	f := newFixture(t)
	conn := dialActions(t, f, nil)

	resp, _ := f.do(http.MethodPost, "/v1/devices/desk/setup", `{"token":"secret-token"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var sawAction, sawStatus bool
	for _, msg := range readStream(t, conn, 2) {
		switch msg.Kind {
		case KindAction:
			require.NotNil(t, msg.Action)
			assert.Equal(t, "@@voice::setup", msg.Action.Type)
			raw, err := json.Marshal(msg.Action)
			require.NoError(t, err)
			assert.NotContains(t, string(raw), "secret-token")
			assert.Contains(t, string(raw), redactedToken)
			sawAction = true
		case KindStatus:
			require.NotNil(t, msg.Change)
			assert.Equal(t, status.Change{
				DeviceID: "desk",
				From:     "",
				To:       status.StateRegistering,
				Action:   "@@voice::setup",
			}, *msg.Change)
			sawStatus = true
		}
	}
	assert.True(t, sawAction)
	assert.True(t, sawStatus)
}

func TestActionStreamRejectsForeignOrigin(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/v1/actions"

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOrigin(t *testing.T) {
	s := New(nil, nil, WithOriginCheck(func(origin string) bool {
		return origin == "https://console.example"
	}))

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost", true},
		{"http://localhost:5173", true},
		{"http://127.0.0.1:8080", true},
		{"https://localhost", true},
		{"http://localhost.evil.com", false},
		{"http://127.0.0.1.evil.com", false},
		{"https://console.example", true},
		{"https://other.example", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.checkOrigin(tt.origin), tt.origin)
	}

	strict := New(nil, nil)
	assert.False(t, strict.checkOrigin("https://console.example"))
}

func TestRedactHidesWrappedTokens(t *testing.T) {
	setup := action.Setup("secret-token", phone.Options{}, "desk")
	fault := action.Error(&setup, errors.New("boom"))

	plain := redact(setup)
	assert.Equal(t, redactedToken, plain.Payload.(action.SetupPayload).Token)

	wrapped := redact(fault)
	inner, ok := wrapped.Payload.(action.Action)
	require.True(t, ok)
	assert.Equal(t, redactedToken, inner.Payload.(action.SetupPayload).Token)

	assert.Equal(t, "secret-token", setup.Payload.(action.SetupPayload).Token)
	assert.Equal(t, "secret-token", fault.Payload.(action.Action).Payload.(action.SetupPayload).Token)

	other := action.Destroy("desk")
	assert.Equal(t, other, redact(other))
}
