package voice

import (
	"runtime/debug"

	"github.com/nupi-ai/voxflux/internal/flux"
	"github.com/nupi-ai/voxflux/internal/phone"
	"github.com/nupi-ai/voxflux/internal/prefs"
)

// listen registers one listener per client event. Listeners run on the
// client's goroutine and only ever hand plain data to the store.
func (a *Adapter) listen(api flux.API, id string, client phone.Client) {
	f := a.actions

	client.On(phone.EventCancel, a.guard(api, id, func(d phone.EventData) {
		api.Dispatch(f.OnCancel(id, connection(d.Call)))
	}))
	client.On(phone.EventConnect, a.guard(api, id, func(d phone.EventData) {
		api.Dispatch(f.OnConnect(id, connection(d.Call)))
	}))
	client.On(phone.EventError, a.guard(api, id, func(d phone.EventData) {
		api.Dispatch(f.OnError(id, clientError(d.Err)))
	}))
	client.On(phone.EventDisconnect, a.guard(api, id, func(d phone.EventData) {
		api.Dispatch(f.OnDisconnect(id, connection(d.Call)))
	}))
	client.On(phone.EventIncoming, a.guard(api, id, func(d phone.EventData) {
		notification := api.Dispatch(f.OnIncoming(id, connection(d.Call)))
		if !a.connectOnIncoming {
			return
		}
		if err := client.AcceptIncoming(a.constraints()); err != nil {
			a.fail(api, &notification, err, string(debug.Stack()))
		}
	}))
	client.On(phone.EventOffline, a.guard(api, id, func(d phone.EventData) {
		api.Dispatch(f.OnOffline(id, device(d.Device)))
	}))
	client.On(phone.EventReady, a.guard(api, id, func(d phone.EventData) {
		notification := api.Dispatch(f.OnReady(id, device(d.Device)))
		if output, ok := a.preference(prefs.KeyOutputDevice); ok {
			if err := client.SelectOutputDevice(output); err != nil {
				a.fail(api, &notification, err, string(debug.Stack()))
				return
			}
		}
		if err := client.TestOutputDevice(); err != nil {
			a.fail(api, &notification, err, string(debug.Stack()))
		}
	}))
}

// guard keeps a panicking listener from taking down the client goroutine.
func (a *Adapter) guard(api flux.API, id string, fn phone.Listener) phone.Listener {
	return func(d phone.EventData) {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error().Str("device_id", id).Interface("panic", r).Msg("Voice listener panicked")
				api.Dispatch(a.actions.ErrorWithStack(nil, panicError(r), string(debug.Stack())))
			}
		}()
		fn(d)
	}
}

func (a *Adapter) constraints() phone.AudioConstraints {
	input, ok := a.preference(prefs.KeyInputDevice)
	if !ok {
		return phone.AudioConstraints{}
	}
	return phone.AudioConstraints{DeviceID: input}
}
