package proto

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEnvelope is returned when a line cannot be decoded into an Envelope.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// Target says who must consume an envelope.
type Target string

const (
	TargetServer Target = "SERVER"
	TargetClient Target = "CLIENT"
)

// Command is the verb carried by an envelope.
type Command string

const (
	// Client -> server requests.
	CommandLogin       Command = "LOGIN"
	CommandRegister    Command = "REGISTER"
	CommandGetMessages Command = "GET_MESSAGES"
	CommandSendMessage Command = "SEND_MESSAGE"
	CommandShutdown    Command = "SHUTDOWN"

	// Server -> client responses and notifications.
	CommandConnected  Command = "CONNECTED"
	CommandFailed     Command = "FAILED"
	CommandMessage    Command = "MESSAGE"
	CommandNewMessage Command = "NEW_MESSAGE"
)

var knownCommands = map[Command]Target{
	CommandLogin:       TargetServer,
	CommandRegister:    TargetServer,
	CommandGetMessages: TargetServer,
	CommandSendMessage: TargetServer,
	CommandShutdown:    TargetServer,
	CommandConnected:   TargetClient,
	CommandFailed:      TargetClient,
	CommandMessage:     TargetClient,
	CommandNewMessage:  TargetClient,
}

// Direction returns the target a command is meant for and whether the command is known.
func (c Command) Direction() (Target, bool) {
	t, ok := knownCommands[c]
	return t, ok
}

// Envelope is one routed protocol unit.
//
// ClientID always names a client: the consumer of a CLIENT envelope, or the
// issuer of a SERVER envelope (responses are addressed back to it).
type Envelope struct {
	Target   Target
	ClientID string
	Command  Command
	Payload  string
}

// ToServer builds a request envelope issued by clientID.
func ToServer(clientID string, cmd Command, payload string) Envelope {
	return Envelope{Target: TargetServer, ClientID: clientID, Command: cmd, Payload: payload}
}

// ToClient builds an envelope consumed by clientID.
func ToClient(clientID string, cmd Command, payload string) Envelope {
	return Envelope{Target: TargetClient, ClientID: clientID, Command: cmd, Payload: payload}
}

// String returns the wire form of the envelope.
func (e Envelope) String() string {
	return Encode(e)
}

// Encode renders an envelope as a single space separated line.
// The payload is the last field and may contain spaces.
func Encode(e Envelope) string {
	var b strings.Builder
	b.Grow(len(e.Target) + len(e.ClientID) + len(e.Command) + len(e.Payload) + 3)
	b.WriteString(string(e.Target))
	b.WriteByte(' ')
	b.WriteString(e.ClientID)
	b.WriteByte(' ')
	b.WriteString(string(e.Command))
	if e.Payload != "" {
		b.WriteByte(' ')
		b.WriteString(e.Payload)
	}
	return b.String()
}

// Decode parses a wire line. Everything after the third space is the payload.
func Decode(line string) (Envelope, error) {
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 4)
	if len(parts) < 3 {
		return Envelope{}, fmt.Errorf("%w: expected at least 3 fields, got %d", ErrMalformedEnvelope, len(parts))
	}

	env := Envelope{
		Target:   Target(parts[0]),
		ClientID: parts[1],
		Command:  Command(parts[2]),
	}
	if len(parts) == 4 {
		env.Payload = parts[3]
	}

	if env.Target != TargetServer && env.Target != TargetClient {
		return Envelope{}, fmt.Errorf("%w: unknown target %q", ErrMalformedEnvelope, parts[0])
	}
	if env.ClientID == "" {
		return Envelope{}, fmt.Errorf("%w: empty client id", ErrMalformedEnvelope)
	}
	if _, ok := env.Command.Direction(); !ok {
		return Envelope{}, fmt.Errorf("%w: unknown command %q", ErrMalformedEnvelope, parts[2])
	}

	return env, nil
}
