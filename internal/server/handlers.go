package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/status"
)

type setupRequest struct {
	Token   string        `json:"token"`
	Options phone.Options `json:"options"`
}

type audioDeviceRequest struct {
	DeviceID string `json:"deviceId"`
}

// DispatchResponse acknowledges an action that went through the store.
// Handler faults surface later as unhandled-error actions on the stream.
type DispatchResponse struct {
	Type      string `json:"type"`
	DeviceID  string `json:"deviceId,omitempty"`
	Timestamp string `json:"timestamp"`
}

// StateResponse is the device status view plus the live registry.
type StateResponse struct {
	status.State
	Registered []string `json:"registered"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := StateResponse{State: s.store.State(), Registered: []string{}}
	if resp.Devices == nil {
		resp.Devices = map[string]status.DeviceStatus{}
	}
	if s.devices != nil {
		if ids := s.devices.DeviceIDs(); ids != nil {
			resp.Registered = ids
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	var req setupRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}
	s.dispatch(w, s.actions.Setup(req.Token, req.Options, chi.URLParam(r, "id")))
}

func (s *Server) handleDestroy(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, s.actions.Destroy(chi.URLParam(r, "id")))
}

func (s *Server) handleTestOutput(w http.ResponseWriter, r *http.Request) {
	s.dispatch(w, s.actions.TestOutputDevice(chi.URLParam(r, "id")))
}

func (s *Server) handleAudioDevice(cmd action.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req audioDeviceRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		id := strings.TrimSpace(req.DeviceID)
		if id == "" {
			writeError(w, http.StatusBadRequest, "deviceId is required")
			return
		}
		if cmd == action.CommandSetInputDevice {
			s.dispatch(w, s.actions.SetInputDevice(id))
			return
		}
		s.dispatch(w, s.actions.SetOutputDevice(id))
	}
}

func (s *Server) dispatch(w http.ResponseWriter, a action.Action) {
	result := s.store.Dispatch(a)
	writeJSON(w, http.StatusAccepted, DispatchResponse{
		Type:      result.Type,
		DeviceID:  action.DeviceOf(result),
		Timestamp: result.Meta.Timestamp,
	})
}
