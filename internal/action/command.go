package action

// Command enumerates the inbound actions the voice middleware handles.
type Command int

const (
	CommandSetup Command = iota + 1
	CommandDestroy
	CommandSetInputDevice
	CommandSetOutputDevice
	CommandTestOutputDevice
)

// Inbound action names.
const (
	NameSetup            = "setup"
	NameDestroy          = "destroy"
	NameSetInputDevice   = "set-input-device"
	NameSetOutputDevice  = "set-output-device"
	NameTestOutputDevice = "test-output-device"
)

// Outbound action names.
const (
	NameCancel         = "cancel"
	NameConnect        = "connect"
	NameError          = "error"
	NameDisconnect     = "disconnect"
	NameIncoming       = "incoming"
	NameOffline        = "offline"
	NameReady          = "ready"
	NameUnhandledError = "unhandled-error"
)

var commandNames = map[Command]string{
	CommandSetup:            NameSetup,
	CommandDestroy:          NameDestroy,
	CommandSetInputDevice:   NameSetInputDevice,
	CommandSetOutputDevice:  NameSetOutputDevice,
	CommandTestOutputDevice: NameTestOutputDevice,
}

// String returns the wire name of the command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// ParseCommand resolves a base type (prefix already stripped).
func ParseCommand(base string) (Command, bool) {
	switch base {
	case NameSetup:
		return CommandSetup, true
	case NameDestroy:
		return CommandDestroy, true
	case NameSetInputDevice:
		return CommandSetInputDevice, true
	case NameSetOutputDevice:
		return CommandSetOutputDevice, true
	case NameTestOutputDevice:
		return CommandTestOutputDevice, true
	default:
		return 0, false
	}
}
