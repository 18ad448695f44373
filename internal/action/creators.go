package action

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nupi-ai/voxflux/internal/phone"
)

// Factory builds actions namespaced with one prefix.
type Factory struct {
	prefix string
	now    func() time.Time
}

// FactoryOption customises a Factory.
type FactoryOption func(*Factory)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) FactoryOption {
	return func(f *Factory) {
		if now != nil {
			f.now = now
		}
	}
}

// NewFactory returns a factory for prefix. An empty prefix uses DefaultPrefix.
func NewFactory(prefix string, opts ...FactoryOption) *Factory {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	f := &Factory{prefix: prefix, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Default is the factory behind the package-level creators.
var Default = NewFactory(DefaultPrefix)

// Prefix returns the namespace of the factory.
func (f *Factory) Prefix() string {
	return f.prefix
}

// Type returns the namespaced type for name.
func (f *Factory) Type(name string) string {
	return TypeFor(f.prefix, name)
}

func (f *Factory) build(name, deviceID string, payload any) Action {
	return Action{
		Type: f.Type(name),
		Meta: Meta{
			Timestamp: f.now().UTC().Format(time.RFC3339Nano),
			DeviceID:  deviceID,
		},
		Payload: payload,
	}
}

// Setup builds the setup command.
func (f *Factory) Setup(token string, opts phone.Options, deviceID string) Action {
	deviceID = deviceOrDefault(deviceID)
	return f.build(NameSetup, "", SetupPayload{Token: token, Options: opts, DeviceID: deviceID})
}

// Destroy builds the destroy command.
func (f *Factory) Destroy(deviceID string) Action {
	return f.build(NameDestroy, "", DevicePayload{DeviceID: deviceOrDefault(deviceID)})
}

// SetInputDevice builds the command persisting the preferred input.
func (f *Factory) SetInputDevice(audioDeviceID string) Action {
	return f.build(NameSetInputDevice, "", AudioDevicePayload{AudioDeviceID: audioDeviceID})
}

// SetOutputDevice builds the command persisting the preferred output.
func (f *Factory) SetOutputDevice(audioDeviceID string) Action {
	return f.build(NameSetOutputDevice, "", AudioDevicePayload{AudioDeviceID: audioDeviceID})
}

// TestOutputDevice builds the command running the output self-test.
func (f *Factory) TestOutputDevice(deviceID string) Action {
	return f.build(NameTestOutputDevice, "", DevicePayload{DeviceID: deviceOrDefault(deviceID)})
}

func (f *Factory) OnCancel(deviceID string, conn Connection) Action {
	return f.build(NameCancel, deviceOrDefault(deviceID), conn)
}

func (f *Factory) OnConnect(deviceID string, conn Connection) Action {
	return f.build(NameConnect, deviceOrDefault(deviceID), conn)
}

func (f *Factory) OnDisconnect(deviceID string, conn Connection) Action {
	return f.build(NameDisconnect, deviceOrDefault(deviceID), conn)
}

func (f *Factory) OnIncoming(deviceID string, conn Connection) Action {
	return f.build(NameIncoming, deviceOrDefault(deviceID), conn)
}

func (f *Factory) OnError(deviceID string, clientErr ClientError) Action {
	return f.build(NameError, deviceOrDefault(deviceID), clientErr)
}

func (f *Factory) OnOffline(deviceID string, device Device) Action {
	return f.build(NameOffline, deviceOrDefault(deviceID), device)
}

func (f *Factory) OnReady(deviceID string, device Device) Action {
	return f.build(NameReady, deviceOrDefault(deviceID), device)
}

// Error wraps original (which may be nil) and fault into an unhandled-error
// action. The fault is reduced to its name, message and the current stack.
func (f *Factory) Error(original *Action, fault error) Action {
	return f.ErrorWithStack(original, fault, string(debug.Stack()))
}

// ErrorWithStack is Error with an explicit stack, used when the stack was
// captured earlier (for example while recovering a panic).
func (f *Factory) ErrorWithStack(original *Action, fault error, stack string) Action {
	var payload any
	deviceID := ""
	if original != nil {
		payload = *original
		deviceID = DeviceOf(*original)
	}
	a := f.build(NameUnhandledError, deviceID, payload)
	serialized := SerializeError(fault)
	serialized.Stack = stack
	a.Meta.Error = &serialized
	return a
}

// SerializeError reduces err to its type name and message.
func SerializeError(err error) SerializedError {
	if err == nil {
		return SerializedError{Name: "error", Message: ""}
	}
	return SerializedError{
		Name:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}

func Setup(token string, opts phone.Options, deviceID string) Action {
	return Default.Setup(token, opts, deviceID)
}

func Destroy(deviceID string) Action {
	return Default.Destroy(deviceID)
}

func SetInputDevice(audioDeviceID string) Action {
	return Default.SetInputDevice(audioDeviceID)
}

func SetOutputDevice(audioDeviceID string) Action {
	return Default.SetOutputDevice(audioDeviceID)
}

func TestOutputDevice(deviceID string) Action {
	return Default.TestOutputDevice(deviceID)
}

func Error(original *Action, fault error) Action {
	return Default.Error(original, fault)
}
