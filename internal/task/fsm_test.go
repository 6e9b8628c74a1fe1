package task

import (
	"errors"
	"testing"

	"github.com/prismbot/prism/pkg/models"
)

func newTestFSM() *FSM {
	return newFSM("t1", &Context{InputText: "hello", Channel: models.ChannelCoordinate{Type: models.ChannelCLI, ChannelID: "main"}})
}

func TestHappyPathTransitions(t *testing.T) {
	fsm := newTestFSM()
	path := []Status{
		StatusReasoning, StatusPlanning, StatusActing, StatusActing,
		StatusReflecting, StatusReasoning, StatusPlanning, StatusActing,
		StatusReflecting, StatusCompleted,
	}
	for _, next := range path {
		if err := fsm.Transition(next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}
	if !fsm.Terminal() {
		t.Fatal("task not terminal after COMPLETED")
	}
}

func TestIllegalTransitionFailsTask(t *testing.T) {
	fsm := newTestFSM()
	err := fsm.Transition(StatusReflecting) // PENDING -> REFLECTING is illegal
	if err == nil {
		t.Fatal("expected error for illegal transition")
	}
	var invalid *InvalidStateTransition
	if !errors.As(err, &invalid) {
		t.Fatalf("error type = %T, want *InvalidStateTransition", err)
	}
	if invalid.From != StatusPending || invalid.To != StatusReflecting {
		t.Fatalf("recorded transition %s -> %s", invalid.From, invalid.To)
	}
	if fsm.Status() != StatusFailed {
		t.Fatalf("status = %s, want FAILED after illegal transition", fsm.Status())
	}
	if fsm.Failure() == nil {
		t.Fatal("failure not recorded")
	}
}

func TestTerminalStatesAreFrozen(t *testing.T) {
	fsm := newTestFSM()
	fsm.Fail(errors.New("boom"))
	if fsm.Status() != StatusFailed {
		t.Fatalf("status = %s, want FAILED", fsm.Status())
	}

	if err := fsm.Transition(StatusReasoning); err == nil {
		t.Fatal("transition out of terminal state succeeded")
	}
	if fsm.Status() != StatusFailed {
		t.Fatalf("terminal status changed to %s", fsm.Status())
	}
	if fsm.Cancel() {
		t.Fatal("cancel took effect on a terminal task")
	}
}

func TestCancel(t *testing.T) {
	fsm := newTestFSM()
	if err := fsm.Transition(StatusReasoning); err != nil {
		t.Fatal(err)
	}
	if !fsm.Cancel() {
		t.Fatal("cancel did not take effect")
	}
	if fsm.Status() != StatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", fsm.Status())
	}
}

func TestCanTransitionTable(t *testing.T) {
	legal := [][2]Status{
		{StatusPending, StatusReasoning},
		{StatusReasoning, StatusPlanning},
		{StatusPlanning, StatusActing},
		{StatusActing, StatusActing},
		{StatusActing, StatusReflecting},
		{StatusReflecting, StatusReasoning},
		{StatusReflecting, StatusCompleted},
	}
	for _, pair := range legal {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be legal", pair[0], pair[1])
		}
	}
	illegal := [][2]Status{
		{StatusPending, StatusActing},
		{StatusReasoning, StatusReflecting},
		{StatusCompleted, StatusReasoning},
		{StatusFailed, StatusPending},
		{StatusActing, StatusPlanning},
	}
	for _, pair := range illegal {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("%s -> %s should be illegal", pair[0], pair[1])
		}
	}
}
