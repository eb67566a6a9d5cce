package engine

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/statekit"

	"shelter/internal/domain"
)

const adoptionMachineID = "adoption"

// Events understood by the adoption chart.
const (
	evApprove statekit.EventType = "APPROVE"
	evReject  statekit.EventType = "REJECT"
	evReturn  statekit.EventType = "RETURN"
)

// chartRun is the per-transition machine context. fired is set only when a
// transition was actually taken.
type chartRun struct {
	fired bool
}

func markFired(ctx **chartRun, _ statekit.Event) {
	if ctx != nil && *ctx != nil {
		(*ctx).fired = true
	}
}

// newAdoptionChart declares the adoption status chart:
// pending -> approved | rejected, approved -> returned | rejected,
// rejected -> rejected (reason update only), returned is final.
func newAdoptionChart() (*statekit.MachineConfig[*chartRun], error) {
	pending := statekit.StateID(domain.AdoptionPending)
	approved := statekit.StateID(domain.AdoptionApproved)
	rejected := statekit.StateID(domain.AdoptionRejected)
	returned := statekit.StateID(domain.AdoptionReturned)
	return statekit.NewMachine[*chartRun](adoptionMachineID).
		WithInitial(pending).
		WithContext(&chartRun{}).
		WithAction("fired", markFired).
		State(pending).
			On(evApprove).Target(approved).Do("fired").
			On(evReject).Target(rejected).Do("fired").
			Done().
		State(approved).
			On(evReturn).Target(returned).Do("fired").
			On(evReject).Target(rejected).Do("fired").
			Done().
		State(rejected).
			On(evReject).Target(rejected).Do("fired").
			Done().
		State(returned).
			Final().
			Done().
		Build()
}

type statusChart struct {
	machine *statekit.MachineConfig[*chartRun]
}

func mustAdoptionChart() statusChart {
	m, err := newAdoptionChart()
	if err != nil {
		panic(fmt.Sprintf("adoption chart: %v", err))
	}
	return statusChart{machine: m}
}

// next returns the status reached from `from` on event ev, or ErrInvalidState
// when the chart does not allow it. Each call runs its own interpreter.
func (c statusChart) next(from string, ev statekit.EventType) (string, error) {
	if !domain.ValidAdoptionStatus(from) {
		return "", fmt.Errorf("%w: unknown adoption status %q", ErrInvalidState, from)
	}
	run := &chartRun{}
	interp := statekit.NewInterpreter(c.machine)
	interp.UpdateContext(func(ctx **chartRun) { *ctx = run })
	interp.Start()
	if from != domain.AdoptionPending {
		if err := interp.Restore(statekit.Snapshot[*chartRun]{
			MachineID:    adoptionMachineID,
			CurrentState: statekit.StateID(from),
			Context:      run,
			CreatedAt:    time.Now(),
		}); err != nil {
			return "", fmt.Errorf("restore adoption chart at %s: %w", from, err)
		}
	}
	interp.Send(statekit.Event{Type: ev})
	if !run.fired {
		return "", fmt.Errorf("%w: adoption is %s", ErrInvalidState, from)
	}
	return string(interp.State().Value), nil
}
