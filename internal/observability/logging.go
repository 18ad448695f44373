package observability

import (
	"github.com/rs/zerolog"

	"github.com/nupi-ai/voxflux/internal/action"
	"github.com/nupi-ai/voxflux/internal/flux"
)

// Logging logs every action at debug level. Payloads are never logged since
// setup actions carry access tokens; unhandled errors are logged at warn with
// their serialized fault.
func Logging(logger zerolog.Logger) flux.Middleware {
	return func(flux.API) func(flux.Next) flux.Next {
		return func(next flux.Next) flux.Next {
			return func(a action.Action) action.Action {
				evt := logger.Debug()
				if a.Meta.Error != nil {
					evt = logger.Warn().
						Str("fault", a.Meta.Error.Name).
						Str("fault_message", a.Meta.Error.Message)
				}
				evt.Str("type", a.Type).
					Str("device_id", action.DeviceOf(a)).
					Str("ts", a.Meta.Timestamp).
					Msg("Action dispatched")
				return next(a)
			}
		}
	}
}
