package proto

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadPayload is returned when a command payload does not have the expected shape.
var ErrBadPayload = errors.New("bad payload")

const (
	// HistoryEmpty is the remaining counter of the empty-history sentinel frame.
	HistoryEmpty = -1
	// HistoryLast is the remaining counter of the final history frame.
	HistoryLast = 0

	emptyHistoryBody = "EMPTY"
)

// Credentials is the LOGIN/REGISTER payload.
type Credentials struct {
	User  string
	Token string
}

// FormatCredentials renders "user token".
func FormatCredentials(user, token string) string {
	return user + " " + token
}

// ParseCredentials splits "user token". Both parts are required and the user
// name cannot contain spaces.
func ParseCredentials(payload string) (Credentials, error) {
	user, token, ok := strings.Cut(payload, " ")
	if !ok || user == "" || token == "" {
		return Credentials{}, fmt.Errorf("%w: expected \"user credential\"", ErrBadPayload)
	}
	return Credentials{User: user, Token: token}, nil
}

// Direct is a SEND_MESSAGE payload, and also the NEW_MESSAGE payload where
// Peer holds the sender name.
type Direct struct {
	Peer string
	Body string
}

// FormatDirect renders "peer body".
func FormatDirect(peer, body string) string {
	return peer + " " + body
}

// ParseDirect splits "peer body...". The body keeps its spaces and may be empty.
func ParseDirect(payload string) (Direct, error) {
	peer, body, ok := strings.Cut(payload, " ")
	if !ok || peer == "" {
		return Direct{}, fmt.Errorf("%w: expected \"user message\"", ErrBadPayload)
	}
	return Direct{Peer: peer, Body: body}, nil
}

// HistoryFrame is one MESSAGE payload of a history stream.
type HistoryFrame struct {
	Remaining int
	Body      string
}

// Empty reports whether the frame is the empty-history sentinel.
func (f HistoryFrame) Empty() bool {
	return f.Remaining == HistoryEmpty
}

// Last reports whether no more frames follow this one.
func (f HistoryFrame) Last() bool {
	return f.Remaining == HistoryLast
}

// FormatHistory renders "remaining body".
func FormatHistory(remaining int, body string) string {
	return strconv.Itoa(remaining) + " " + body
}

// FormatEmptyHistory renders the sentinel frame payload.
func FormatEmptyHistory() string {
	return FormatHistory(HistoryEmpty, emptyHistoryBody)
}

// ParseHistory splits "remaining body" and validates the counter.
func ParseHistory(payload string) (HistoryFrame, error) {
	counter, body, _ := strings.Cut(payload, " ")
	remaining, err := strconv.Atoi(counter)
	if err != nil {
		return HistoryFrame{}, fmt.Errorf("%w: remaining counter %q", ErrBadPayload, counter)
	}
	if remaining < HistoryEmpty {
		return HistoryFrame{}, fmt.Errorf("%w: negative remaining counter %d", ErrBadPayload, remaining)
	}
	frame := HistoryFrame{Remaining: remaining, Body: body}
	if frame.Empty() {
		frame.Body = ""
	}
	return frame, nil
}
