package mailbox

import (
	"slices"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Filter selects envelopes by address and command. Zero fields match anything.
type Filter struct {
	Target   proto.Target
	ClientID string
	Commands []proto.Command
}

// ForServer matches every request addressed to the dispatcher.
func ForServer() Filter {
	return Filter{Target: proto.TargetServer}
}

// ForClient matches frames consumed by clientID, optionally restricted to cmds.
func ForClient(clientID string, cmds ...proto.Command) Filter {
	return Filter{Target: proto.TargetClient, ClientID: clientID, Commands: cmds}
}

// Match reports whether env is selected by the filter.
func (f Filter) Match(env proto.Envelope) bool {
	if f.Target != "" && env.Target != f.Target {
		return false
	}
	if f.ClientID != "" && env.ClientID != f.ClientID {
		return false
	}
	if len(f.Commands) > 0 && !slices.Contains(f.Commands, env.Command) {
		return false
	}
	return true
}
