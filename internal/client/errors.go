package client

import (
	"fmt"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// FailedError carries the reason of a FAILED frame.
type FailedError struct {
	Reason string
}

func (e *FailedError) Error() string {
	return "request failed: " + e.Reason
}

// ProtocolError reports a frame the client did not expect at this point of an exchange.
type ProtocolError struct {
	Expecting string
	Frame     proto.Envelope
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol violation while expecting %s: %s: %v", e.Expecting, e.Frame, e.Err)
	}
	return fmt.Sprintf("protocol violation while expecting %s: got %s", e.Expecting, e.Frame)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
