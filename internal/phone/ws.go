package phone

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 5 * time.Second
	wsCloseTimeout     = 2 * time.Second
)

// Frame types exchanged with the gateway.
const (
	frameRegister     = "register"
	frameAccept       = "accept"
	frameHangup       = "hangup"
	frameSelectOutput = "select-output-device"
	frameTestOutput   = "test-output-device"
	frameDestroy      = "destroy"
)

// Gateway error codes reported through EventError for local failures.
const (
	CodeTransportError = 31009
)

type wsFrame struct {
	Type        string            `json:"type"`
	ClientID    string            `json:"clientId,omitempty"`
	Token       string            `json:"token,omitempty"`
	Options     *Options          `json:"options,omitempty"`
	CallSID     string            `json:"callSid,omitempty"`
	DeviceID    string            `json:"deviceId,omitempty"`
	Constraints *AudioConstraints `json:"constraints,omitempty"`
	Call        *wsCall           `json:"call,omitempty"`
	Device      *wsDevice         `json:"device,omitempty"`
	Error       *wsError          `json:"error,omitempty"`
}

type wsCall struct {
	SID              string            `json:"sid"`
	Direction        Direction         `json:"direction"`
	Status           string            `json:"status"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	Parameters       map[string]string `json:"parameters,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
	Muted            bool              `json:"muted,omitempty"`
}

type wsDevice struct {
	Identity      string        `json:"identity"`
	State         string        `json:"state"`
	Edge          string        `json:"edge,omitempty"`
	InputDevices  []MediaDevice `json:"inputDevices,omitempty"`
	OutputDevices []MediaDevice `json:"outputDevices,omitempty"`
}

type wsError struct {
	Code        int    `json:"code"`
	Message     string `json:"message"`
	Description string `json:"description,omitempty"`
}

// WSOption customises a websocket client.
type WSOption func(*WSClient)

// WithLogger sets the logger used for transport diagnostics.
func WithLogger(logger zerolog.Logger) WSOption {
	return func(c *WSClient) {
		c.logger = logger
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(dialer *websocket.Dialer) WSOption {
	return func(c *WSClient) {
		if dialer != nil {
			c.dialer = dialer
		}
	}
}

// WSClient talks to a signalling gateway over a single websocket.
type WSClient struct {
	id      string
	gateway string
	dialer  *websocket.Dialer
	logger  zerolog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	listeners map[Event][]Listener
	incoming  *Call
	device    Device
	output    string
	destroyed bool

	writeMu sync.Mutex
}

// NewWSClient builds an unconnected client for gatewayURL.
func NewWSClient(gatewayURL string, opts ...WSOption) *WSClient {
	c := &WSClient{
		id:      uuid.NewString(),
		gateway: strings.TrimSpace(gatewayURL),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: wsHandshakeTimeout,
		},
		logger:    zerolog.Nop(),
		listeners: make(map[Event][]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With().Str("phone_client", c.id).Logger()
	return c
}

// NewWSFactory returns a Factory producing websocket clients for gatewayURL.
func NewWSFactory(gatewayURL string, opts ...WSOption) Factory {
	return func() (Client, error) {
		if strings.TrimSpace(gatewayURL) == "" {
			return nil, errors.New("phone: gateway url is required")
		}
		if _, err := url.Parse(gatewayURL); err != nil {
			return nil, fmt.Errorf("phone: parse gateway url: %w", err)
		}
		return NewWSClient(gatewayURL, opts...), nil
	}
}

// ID returns the instance identifier announced to the gateway.
func (c *WSClient) ID() string {
	return c.id
}

// Setup connects (once) and registers token and options with the gateway.
// Calling it again on a live connection re-registers, which is how tokens
// are refreshed.
func (c *WSClient) Setup(token string, opts Options) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrClosed
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		dialed, resp, err := c.dialer.Dial(c.gateway, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			return fmt.Errorf("phone: dial gateway: %w", err)
		}

		c.mu.Lock()
		if c.destroyed {
			c.mu.Unlock()
			dialed.Close()
			return ErrClosed
		}
		if c.conn != nil {
			// Lost a race with a concurrent Setup; keep the first connection.
			c.mu.Unlock()
			dialed.Close()
		} else {
			c.conn = dialed
			c.mu.Unlock()
			go c.readLoop(dialed)
		}
	}

	return c.send(wsFrame{
		Type:     frameRegister,
		ClientID: c.id,
		Token:    token,
		Options:  &opts,
	})
}

// On registers fn for event. Registrations are never deduplicated.
func (c *WSClient) On(event Event, fn Listener) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.listeners[event] = append(c.listeners[event], fn)
	c.mu.Unlock()
}

// AcceptIncoming answers the call currently ringing.
func (c *WSClient) AcceptIncoming(constraints AudioConstraints) error {
	c.mu.Lock()
	call := c.incoming
	c.mu.Unlock()
	if call == nil {
		return ErrNoIncomingCall
	}
	return c.send(wsFrame{
		Type:        frameAccept,
		CallSID:     call.SID,
		Constraints: &constraints,
	})
}

// SelectOutputDevice routes playback to the audio output id.
func (c *WSClient) SelectOutputDevice(id string) error {
	if err := c.send(wsFrame{Type: frameSelectOutput, DeviceID: id}); err != nil {
		return err
	}
	c.mu.Lock()
	c.output = id
	c.mu.Unlock()
	return nil
}

// TestOutputDevice asks the gateway to play a test tone on the selected output.
func (c *WSClient) TestOutputDevice() error {
	c.mu.Lock()
	output := c.output
	c.mu.Unlock()
	return c.send(wsFrame{Type: frameTestOutput, DeviceID: output})
}

// Destroy unregisters from the gateway and closes the connection. It is safe
// to call more than once.
func (c *WSClient) Destroy() error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	conn := c.conn
	c.conn = nil
	c.incoming = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = conn.WriteJSON(wsFrame{Type: frameDestroy, ClientID: c.id})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsCloseTimeout))
	c.writeMu.Unlock()

	return conn.Close()
}

func (c *WSClient) sendCall(kind, callSID string) error {
	return c.send(wsFrame{Type: kind, CallSID: callSID})
}

func (c *WSClient) send(frame wsFrame) error {
	c.mu.Lock()
	conn := c.conn
	destroyed := c.destroyed
	c.mu.Unlock()

	if destroyed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConfigured
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("phone: write %s frame: %w", frame.Type, err)
	}
	return nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			c.handleReadError(conn, err)
			return
		}
		c.handleFrame(frame)
	}
}

func (c *WSClient) handleReadError(conn *websocket.Conn, err error) {
	c.mu.Lock()
	current := c.conn == conn
	if current {
		c.conn = nil
		c.incoming = nil
	}
	destroyed := c.destroyed
	c.mu.Unlock()

	if destroyed || !current {
		return
	}
	conn.Close()

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		c.logger.Info().Msg("Gateway closed the connection")
	} else {
		c.logger.Error().Err(err).Msg("Gateway connection lost")
		c.emit(EventError, EventData{Err: &Error{
			Code:        CodeTransportError,
			Message:     "transport error",
			Description: err.Error(),
		}})
	}

	c.mu.Lock()
	device := c.device
	device.State = "offline"
	c.device = device
	c.mu.Unlock()
	c.emit(EventOffline, EventData{Device: &device})
}

func (c *WSClient) handleFrame(frame wsFrame) {
	event := Event(frame.Type)
	switch event {
	case EventReady, EventOffline:
		device := c.updateDevice(frame.Device, string(event))
		c.emit(event, EventData{Device: &device})

	case EventIncoming:
		call := c.toCall(frame.Call)
		c.mu.Lock()
		c.incoming = call
		c.mu.Unlock()
		c.emit(event, EventData{Call: call})

	case EventConnect, EventDisconnect, EventCancel:
		call := c.toCall(frame.Call)
		if event != EventConnect {
			c.clearIncoming(call.SID)
		}
		c.emit(event, EventData{Call: call})

	case EventError:
		e := &Error{Code: CodeTransportError, Message: "unknown error"}
		if frame.Error != nil {
			e = &Error{Code: frame.Error.Code, Message: frame.Error.Message, Description: frame.Error.Description}
		}
		c.emit(event, EventData{Err: e})

	default:
		c.logger.Debug().Str("type", frame.Type).Msg("Ignoring unknown gateway frame")
	}
}

func (c *WSClient) updateDevice(in *wsDevice, state string) Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	if in != nil {
		c.device = Device{
			Identity:      in.Identity,
			State:         in.State,
			Edge:          in.Edge,
			InputDevices:  in.InputDevices,
			OutputDevices: in.OutputDevices,
		}
	}
	if in == nil || c.device.State == "" {
		c.device.State = state
	}
	c.device.client = c
	return c.device
}

func (c *WSClient) toCall(in *wsCall) *Call {
	call := &Call{control: c}
	if in == nil {
		return call
	}
	call.SID = in.SID
	call.Direction = in.Direction
	call.Status = in.Status
	call.From = in.From
	call.To = in.To
	call.Parameters = in.Parameters
	call.CustomParameters = in.CustomParameters
	call.Muted = in.Muted
	return call
}

func (c *WSClient) clearIncoming(sid string) {
	c.mu.Lock()
	if c.incoming != nil && (sid == "" || c.incoming.SID == sid) {
		c.incoming = nil
	}
	c.mu.Unlock()
}

func (c *WSClient) emit(event Event, data EventData) {
	c.mu.Lock()
	listeners := append([]Listener(nil), c.listeners[event]...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(data)
	}
}
