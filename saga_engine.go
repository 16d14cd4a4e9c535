package tram

import (
	"context"
	"encoding/json"
	"fmt"
)

// SagaExecutionState is the position of a saga within its definition.
// It is stored as JSON in SagaInstance.StateName.
type SagaExecutionState struct {
	// CurrentlyExecuting is the index of the step awaiting a reply, or -1 before start.
	CurrentlyExecuting int  `json:"currentlyExecuting"`
	Compensating       bool `json:"compensating"`
	EndState           bool `json:"endState"`
	Failed             bool `json:"failed"`
}

// InitialExecutionState is the state of a saga that has not run any step.
func InitialExecutionState() SagaExecutionState {
	return SagaExecutionState{CurrentlyExecuting: -1}
}

// Encode returns the JSON form stored in SagaInstance.StateName.
func (s SagaExecutionState) Encode() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// DecodeExecutionState parses a SagaInstance.StateName.
// An empty string decodes to InitialExecutionState.
func DecodeExecutionState(stateName string) (SagaExecutionState, error) {
	if stateName == "" {
		return InitialExecutionState(), nil
	}
	var s SagaExecutionState
	if err := json.Unmarshal([]byte(stateName), &s); err != nil {
		return SagaExecutionState{}, NewSerializationError("SagaExecutionState", "deserialize", err)
	}
	return s, nil
}

// SagaActions is what the engine asks its caller to do after one step of work.
type SagaActions struct {
	// Commands to send, in order. At most one per step.
	Commands []CommandWithDestination

	// State is the new execution state.
	State SagaExecutionState

	// LocalError is the local step failure that switched the saga to compensation.
	LocalError error

	// Err is a terminal failure. The caller persists State and then reports Err.
	Err error
}

// Start runs the definition from the beginning for data.
func (d *SagaDefinition[D]) Start(ctx context.Context, data *D) (SagaActions, error) {
	return d.advance(ctx, data, InitialExecutionState())
}

// HandleReply applies a participant reply to a saga in state and moves it on.
// The handler registered for the reply type, if any, runs before the saga advances.
func (d *SagaDefinition[D]) HandleReply(ctx context.Context, state SagaExecutionState, data *D, reply *SagaReply) (SagaActions, error) {
	if state.EndState {
		return SagaActions{}, ErrSagaEnded
	}
	if state.CurrentlyExecuting < 0 || state.CurrentlyExecuting >= len(d.steps) {
		return SagaActions{}, fmt.Errorf("tram: saga %s has no step %d awaiting a reply: %w",
			d.sagaType, state.CurrentlyExecuting, ErrUnexpectedReply)
	}

	step := d.steps[state.CurrentlyExecuting]
	if handler, ok := step.replyHandlers[reply.Type()]; ok {
		if err := handler(ctx, data, reply); err != nil {
			return SagaActions{}, fmt.Errorf("tram: reply handler for %s failed: %w", reply.Type(), err)
		}
	}

	if reply.IsSuccess() {
		return d.advance(ctx, data, state)
	}

	if state.Compensating {
		state.EndState = true
		state.Failed = true
		return SagaActions{
			State: state,
			Err: &SagaFailedError{
				SagaType: d.sagaType,
				Step:     state.CurrentlyExecuting,
				Cause:    ErrCompensationFailed,
			},
		}, nil
	}

	state.Compensating = true
	return d.advance(ctx, data, state)
}

// advance walks the steps in the saga's direction from the current step until
// a command must be sent or the steps run out.
func (d *SagaDefinition[D]) advance(ctx context.Context, data *D, state SagaExecutionState) (SagaActions, error) {
	var actions SagaActions

	i := state.CurrentlyExecuting
	for {
		if state.Compensating {
			i--
		} else {
			i++
		}
		if i < 0 || i >= len(d.steps) {
			break
		}
		step := d.steps[i]

		if !state.Compensating {
			if step.local != nil {
				if err := step.local(ctx, data); err != nil {
					actions.LocalError = err
					state.Compensating = true
				}
				continue
			}
			if step.participant == nil || (step.participantIf != nil && !step.participantIf(data)) {
				continue
			}
			state.CurrentlyExecuting = i
			actions.Commands = append(actions.Commands, step.participant(data))
			actions.State = state
			return actions, nil
		}

		if step.localCompensation != nil {
			if err := step.localCompensation(ctx, data); err != nil {
				state.CurrentlyExecuting = i
				state.EndState = true
				state.Failed = true
				actions.State = state
				actions.Err = &SagaFailedError{
					SagaType: d.sagaType,
					Step:     i,
					Cause:    fmt.Errorf("%w: %v", ErrCompensationFailed, err),
				}
				return actions, nil
			}
			continue
		}
		if step.compensation == nil || (step.compensationIf != nil && !step.compensationIf(data)) {
			continue
		}
		state.CurrentlyExecuting = i
		actions.Commands = append(actions.Commands, step.compensation(data))
		actions.State = state
		return actions, nil
	}

	// A finished rollback is not a failure: Failed is only set when a
	// compensation itself fails.
	state.EndState = true
	actions.State = state
	return actions, nil
}
