package phone

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	t      *testing.T
	srv    *httptest.Server
	frames chan wsFrame
	conns  chan *websocket.Conn
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()
	g := &fakeGateway{
		t:      t,
		frames: make(chan wsFrame, 32),
		conns:  make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns <- conn
		for {
			var frame wsFrame
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			g.frames <- frame
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *fakeGateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *fakeGateway) next() wsFrame {
	g.t.Helper()
	select {
	case f := <-g.frames:
		return f
	case <-time.After(5 * time.Second):
		g.t.Fatal("timed out waiting for a frame")
		return wsFrame{}
	}
}

func (g *fakeGateway) conn() *websocket.Conn {
	g.t.Helper()
	select {
	case c := <-g.conns:
		return c
	case <-time.After(5 * time.Second):
		g.t.Fatal("timed out waiting for a connection")
		return nil
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for an event")
		var zero T
		return zero
	}
}

func connected(t *testing.T, g *fakeGateway) (*WSClient, *websocket.Conn) {
	t.Helper()
	c := NewWSClient(g.url())
	t.Cleanup(func() { _ = c.Destroy() })
	require.NoError(t, c.Setup("tok", Options{}))
	conn := g.conn()
	register := g.next()
	require.Equal(t, frameRegister, register.Type)
	return c, conn
}

func TestSetupRegistersWithGateway(t *testing.T) {
	g := newFakeGateway(t)
	c := NewWSClient(g.url())
	defer c.Destroy()

	require.NoError(t, c.Setup("tok-1", Options{Debug: true, Edge: []string{"ashburn"}}))
	g.conn()

	frame := g.next()
	assert.Equal(t, frameRegister, frame.Type)
	assert.Equal(t, c.ID(), frame.ClientID)
	assert.Equal(t, "tok-1", frame.Token)
	require.NotNil(t, frame.Options)
	assert.True(t, frame.Options.Debug)
	assert.Equal(t, []string{"ashburn"}, frame.Options.Edge)

	// A second setup refreshes the token over the same connection.
	require.NoError(t, c.Setup("tok-2", Options{}))
	assert.Equal(t, "tok-2", g.next().Token)
	assert.Empty(t, g.conns)
}

func TestReadyFrameReachesListeners(t *testing.T) {
	g := newFakeGateway(t)
	c := NewWSClient(g.url())
	defer c.Destroy()

	ready := make(chan EventData, 1)
	c.On(EventReady, func(d EventData) { ready <- d })
	require.NoError(t, c.Setup("tok", Options{}))
	conn := g.conn()
	g.next()

	require.NoError(t, conn.WriteJSON(wsFrame{Type: "ready", Device: &wsDevice{
		Identity:      "alice",
		OutputDevices: []MediaDevice{{ID: "spk-1", Label: "Speakers"}},
	}}))

	data := waitFor(t, ready)
	require.NotNil(t, data.Device)
	assert.Equal(t, "alice", data.Device.Identity)
	assert.Equal(t, "ready", data.Device.State)
	assert.Equal(t, Client(c), data.Device.Client())
	assert.Len(t, data.Device.OutputDevices, 1)
}

func TestAcceptIncomingAnswersRingingCall(t *testing.T) {
	g := newFakeGateway(t)
	c, conn := connected(t, g)

	assert.ErrorIs(t, c.AcceptIncoming(AudioConstraints{}), ErrNoIncomingCall)

	incoming := make(chan EventData, 1)
	c.On(EventIncoming, func(d EventData) { incoming <- d })
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "incoming", Call: &wsCall{
		SID: "CA1", Direction: DirectionIncoming, Status: "pending", From: "+100",
	}}))
	call := waitFor(t, incoming).Call
	require.NotNil(t, call)
	assert.Equal(t, "CA1", call.SID)
	assert.Equal(t, "+100", call.From)

	require.NoError(t, c.AcceptIncoming(AudioConstraints{DeviceID: "mic-1"}))
	frame := g.next()
	assert.Equal(t, frameAccept, frame.Type)
	assert.Equal(t, "CA1", frame.CallSID)
	require.NotNil(t, frame.Constraints)
	assert.Equal(t, "mic-1", frame.Constraints.DeviceID)

	require.NoError(t, call.Disconnect())
	assert.Equal(t, wsFrame{Type: frameHangup, CallSID: "CA1"}, g.next())
}

func TestCancelClearsIncomingCall(t *testing.T) {
	g := newFakeGateway(t)
	c, conn := connected(t, g)

	canceled := make(chan EventData, 1)
	c.On(EventCancel, func(d EventData) { canceled <- d })
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "incoming", Call: &wsCall{SID: "CA2"}}))
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "cancel", Call: &wsCall{SID: "CA2"}}))
	waitFor(t, canceled)

	assert.ErrorIs(t, c.AcceptIncoming(AudioConstraints{}), ErrNoIncomingCall)
}

func TestOutputDeviceFrames(t *testing.T) {
	g := newFakeGateway(t)
	c, _ := connected(t, g)

	require.NoError(t, c.SelectOutputDevice("spk-9"))
	assert.Equal(t, wsFrame{Type: frameSelectOutput, DeviceID: "spk-9"}, g.next())

	require.NoError(t, c.TestOutputDevice())
	assert.Equal(t, wsFrame{Type: frameTestOutput, DeviceID: "spk-9"}, g.next())
}

func TestGatewayErrorFrame(t *testing.T) {
	g := newFakeGateway(t)
	c, conn := connected(t, g)

	errs := make(chan EventData, 1)
	c.On(EventError, func(d EventData) { errs <- d })
	require.NoError(t, conn.WriteJSON(wsFrame{Type: "error", Error: &wsError{
		Code: 31204, Message: "JWT invalid", Description: "token expired",
	}}))

	e := waitFor(t, errs).Err
	require.NotNil(t, e)
	assert.Equal(t, 31204, e.Code)
	assert.Equal(t, "phone: 31204 JWT invalid: token expired", e.Error())
}

func TestDroppedConnectionGoesOffline(t *testing.T) {
	g := newFakeGateway(t)
	c, conn := connected(t, g)

	errs := make(chan EventData, 1)
	offline := make(chan EventData, 1)
	c.On(EventError, func(d EventData) { errs <- d })
	c.On(EventOffline, func(d EventData) { offline <- d })

	require.NoError(t, conn.Close())

	e := waitFor(t, errs).Err
	require.NotNil(t, e)
	assert.Equal(t, CodeTransportError, e.Code)
	dev := waitFor(t, offline).Device
	require.NotNil(t, dev)
	assert.Equal(t, "offline", dev.State)

	assert.ErrorIs(t, c.TestOutputDevice(), ErrNotConfigured)
}

func TestDestroyUnregistersAndCloses(t *testing.T) {
	g := newFakeGateway(t)
	c, _ := connected(t, g)

	require.NoError(t, c.Destroy())
	frame := g.next()
	assert.Equal(t, frameDestroy, frame.Type)
	assert.Equal(t, c.ID(), frame.ClientID)

	require.NoError(t, c.Destroy())
	assert.ErrorIs(t, c.Setup("tok", Options{}), ErrClosed)
	assert.ErrorIs(t, c.TestOutputDevice(), ErrClosed)
}

func TestOperationsBeforeSetup(t *testing.T) {
	c := NewWSClient("ws://127.0.0.1:1/unused")
	assert.ErrorIs(t, c.TestOutputDevice(), ErrNotConfigured)
	assert.ErrorIs(t, c.SelectOutputDevice("spk"), ErrNotConfigured)
	assert.NoError(t, c.Destroy())
}

func TestSetupDialFailure(t *testing.T) {
	g := newFakeGateway(t)
	url := g.url()
	g.srv.Close()

	c := NewWSClient(url)
	err := c.Setup("tok", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "phone: dial gateway")
}

func TestNewWSFactory(t *testing.T) {
	_, err := NewWSFactory("  ")()
	require.Error(t, err)

	client, err := NewWSFactory("ws://gateway.example/signal")()
	require.NoError(t, err)
	ws, ok := client.(*WSClient)
	require.True(t, ok)
	assert.NotEmpty(t, ws.ID())
}
