package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/eventbus"
	"github.com/nupi-ai/voxflux/internal/status"
)

const (
	websocketWriteTimeout      = 10 * time.Second
	websocketHeartbeatInterval = 30 * time.Second
	websocketHeartbeatTimeout  = 60 * time.Second
	maxInboundMessageBytes     = 4096

	redactedToken = "[redacted]"
)

// Stream message kinds.
const (
	KindAction = "action"
	KindStatus = "status"
)

// StreamMessage is one frame on /v1/actions.
type StreamMessage struct {
	Kind   string         `json:"kind"`
	Action *action.Action `json:"action,omitempty"`
	Change *status.Change `json:"change,omitempty"`
}

// handleActions relays every reduced action and every device status change
// to the client until either side goes away. Inbound frames are discarded.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Subscribe before the handshake completes so nothing dispatched after
	// the client sees the upgrade is missed.
	bus := s.store.Bus()
	actions := eventbus.SubscribeTo(bus, eventbus.Actions,
		eventbus.WithContext(ctx), eventbus.WithSubscriptionName("ws-actions"))
	defer actions.Close()
	changes := eventbus.SubscribeTo(bus, status.Changes,
		eventbus.WithContext(ctx), eventbus.WithSubscriptionName("ws-status"))
	defer changes.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := s.logger.With().Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("Action stream opened")
	defer log.Debug().Msg("Action stream closed")

	conn.SetReadLimit(maxInboundMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(websocketHeartbeatTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(websocketHeartbeatTimeout))
	})

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug().Err(err).Msg("Action stream read failed")
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(websocketHeartbeatInterval)
	defer ticker.Stop()

	for {
		var msg StreamMessage
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(websocketWriteTimeout))
			return
		case env, ok := <-actions.C():
			if !ok {
				return
			}
			a := redact(env.Payload)
			msg = StreamMessage{Kind: KindAction, Action: &a}
		case env, ok := <-changes.C():
			if !ok {
				return
			}
			c := env.Payload
			msg = StreamMessage{Kind: KindStatus, Change: &c}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			continue
		}

		_ = conn.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.Debug().Err(err).Msg("Action stream write failed")
			return
		}
	}
}

// redact hides access tokens in setup actions, including setup actions
// wrapped by unhandled-error.
func redact(a action.Action) action.Action {
	switch p := a.Payload.(type) {
	case action.SetupPayload:
		p.Token = redactedToken
		a.Payload = p
	case *action.SetupPayload:
		if p != nil {
			cp := *p
			cp.Token = redactedToken
			a.Payload = cp
		}
	case action.Action:
		a.Payload = redact(p)
	case *action.Action:
		if p != nil {
			a.Payload = redact(*p)
		}
	}
	return a
}
