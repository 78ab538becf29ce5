package fsm

import (
	"context"
	"errors"

	loopfsm "github.com/looplab/fsm"

	"github.com/neomorfeo/rehome/internal/domain"
)

// Compile-time check: Validator implements domain.TransitionValidator.
var _ domain.TransitionValidator = (*Validator)(nil)

// buildEvents converts a domain transition table into looplab/fsm EventDesc format.
// It consolidates transitions with the same event+destination into a single
// EventDesc with multiple source states (e.g., deactivate from "available"
// and "under_review" both go to "inactive").
func buildEvents(transitions []domain.Transition) []loopfsm.EventDesc {
	type key struct {
		event string
		dst   string
	}
	grouped := make(map[key][]string)
	order := make([]key, 0)

	for _, t := range transitions {
		k := key{event: string(t.Event), dst: t.Dst}
		if _, exists := grouped[k]; !exists {
			order = append(order, k)
		}
		grouped[k] = append(grouped[k], t.Src)
	}

	out := make([]loopfsm.EventDesc, 0, len(order))
	for _, k := range order {
		out = append(out, loopfsm.EventDesc{
			Name: k.event,
			Src:  grouped[k],
			Dst:  k.dst,
		})
	}
	return out
}

// Validator implements domain.TransitionValidator using looplab/fsm.
// It creates a short-lived FSM instance per Apply call, initialized with
// the record's current state, because looplab/fsm tracks state internally.
// Apply is safe for concurrent use.
type Validator struct {
	machines map[domain.Machine][]loopfsm.EventDesc
}

// New creates a validator for the moderation, availability and application machines.
func New() *Validator {
	return &Validator{
		machines: map[domain.Machine][]loopfsm.EventDesc{
			domain.MachineModeration:   buildEvents(domain.ModerationTransitions),
			domain.MachineAvailability: buildEvents(domain.AvailabilityTransitions),
			domain.MachineApplication:  buildEvents(domain.ApplicationTransitions),
		},
	}
}

// Apply checks if the given event is valid from the current state of the
// machine and returns the destination state. Returns a domain.TransitionError
// if the transition is not allowed.
func (v *Validator) Apply(ctx context.Context, machine domain.Machine, current string, event domain.Event) (string, error) {
	events, ok := v.machines[machine]
	if !ok {
		return "", &domain.TransitionError{Machine: machine, Event: event, Current: current}
	}

	m := loopfsm.NewFSM(current, events, nil)

	if err := m.Event(ctx, string(event)); err != nil {
		var invalidEvent loopfsm.InvalidEventError
		var unknownEvent loopfsm.UnknownEventError
		var noTransition loopfsm.NoTransitionError
		if errors.As(err, &invalidEvent) || errors.As(err, &unknownEvent) || errors.As(err, &noTransition) {
			return "", &domain.TransitionError{
				Machine: machine,
				Event:   event,
				Current: current,
			}
		}
		return "", err
	}

	return m.Current(), nil
}
