package xecho

import (
	"strconv"
	"time"
)

type OutcomeKind int

const (
	Matched OutcomeKind = iota
	Mismatched
	SendFailed
	ReceiveFailed
	TimedOut

	numOutcomeKinds
)

var outcomeNames = [numOutcomeKinds]string{"matched", "mismatched", "send_failed", "receive_failed", "timed_out"}

func (k OutcomeKind) String() string {
	if k < 0 || k >= numOutcomeKinds {
		return "outcome(" + strconv.Itoa(int(k)) + ")"
	}
	return outcomeNames[k]
}

// Outcome is the result of one round trip attempt.
type Outcome struct {
	Kind  OutcomeKind
	Bytes int           // bytes received
	RTT   time.Duration // Matched/Mismatched only
	Err   error         // SendFailed/ReceiveFailed/TimedOut cause
}

// Completed reports whether a full reply was received, matching or not.
func (o Outcome) Completed() bool {
	return o.Kind == Matched || o.Kind == Mismatched
}
