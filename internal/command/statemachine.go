package command

import (
	"context"
	"fmt"

	"botvac-bridge/internal/utils"

	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"
)

// Lifecycle states
const (
	StatePending   = "pending"
	StateSent      = "sent"
	StateSucceeded = "succeeded"
	StateRejected  = "rejected"
	StateFailed    = "failed"
)

// Lifecycle events
const (
	EventSent         = "sent"
	EventAcknowledged = "acknowledged"
	EventRejected     = "rejected"
	EventFailed       = "failed"
)

// Lifecycle tracks one request from pending to a final state.
type Lifecycle struct {
	FSM    *fsm.FSM
	ID     string
	Action Action
	Reason string

	log *logrus.Entry
}

// NewLifecycle returns a lifecycle in the pending state.
func NewLifecycle(id, serial string, action Action) *Lifecycle {
	l := &Lifecycle{
		ID:     id,
		Action: action,
		log:    utils.ForRobot(serial).WithField("execution_id", id),
	}

	l.FSM = fsm.NewFSM(
		StatePending,
		fsm.Events{
			{Name: EventSent, Src: []string{StatePending}, Dst: StateSent},
			{Name: EventAcknowledged, Src: []string{StateSent}, Dst: StateSucceeded},
			{Name: EventRejected, Src: []string{StateSent}, Dst: StateRejected},
			{Name: EventFailed, Src: []string{StatePending, StateSent}, Dst: StateFailed},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				l.log.Debugf("COMMAND '%s': state changed from %s -> %s (Event: %s)", l.Action, e.Src, e.Dst, e.Event)
			},
			"enter_" + StateRejected: func(ctx context.Context, e *fsm.Event) {
				l.Reason = reason(e.Args)
				l.log.Warnf("COMMAND '%s' rejected by robot: %s", l.Action, l.Reason)
			},
			"enter_" + StateFailed: func(ctx context.Context, e *fsm.Event) {
				l.Reason = reason(e.Args)
				l.log.Errorf("COMMAND '%s' failed: %s", l.Action, l.Reason)
			},
		},
	)
	return l
}

func reason(args []interface{}) string {
	if len(args) == 0 {
		return ""
	}
	switch v := args[0].(type) {
	case string:
		return v
	case error:
		return v.Error()
	}
	return fmt.Sprint(args[0])
}

func (l *Lifecycle) Sent() error {
	return l.FSM.Event(context.Background(), EventSent)
}

func (l *Lifecycle) Acknowledge() error {
	return l.FSM.Event(context.Background(), EventAcknowledged)
}

func (l *Lifecycle) Reject(reason string) error {
	return l.FSM.Event(context.Background(), EventRejected, reason)
}

func (l *Lifecycle) Fail(err error) error {
	return l.FSM.Event(context.Background(), EventFailed, err)
}

func (l *Lifecycle) Current() string {
	return l.FSM.Current()
}

// Done reports whether the lifecycle reached a final state.
func (l *Lifecycle) Done() bool {
	switch l.FSM.Current() {
	case StateSucceeded, StateRejected, StateFailed:
		return true
	}
	return false
}
