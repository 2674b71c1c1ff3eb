package services

import "fmt"

// Phase is a named state of the fetch pipeline. Phases are explicit and
// transitions go through a single pure function, so illegal sequences fail
// loudly instead of leaving stuck boolean flags behind.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseFetchingStages  Phase = "fetchingStages"
	PhaseStagesReady     Phase = "stagesReady"
	PhaseFetchingDeals   Phase = "fetchingDeals"
	PhaseDealsReady      Phase = "dealsReady"
	PhaseFetchingDerived Phase = "fetchingDerived"
	PhaseSettled         Phase = "settled"
	PhaseFailed          Phase = "failed"
)

// PipelineState is the observable state of one pipeline run.
type PipelineState struct {
	Phase Phase `json:"phase"`
	// ActiveStage is the resolved stage name, set from StagesReady onward.
	ActiveStage string `json:"activeStage,omitempty"`
	// FailedKey names the collection whose fetch failed, set only in the
	// failed phase.
	FailedKey string `json:"failedKey,omitempty"`
}

// PipelineEvent drives a pipeline state transition.
type PipelineEvent struct {
	Kind  EventKind
	Stage string // stage name for resolved; collection key for failure
}

// EventKind enumerates the pipeline events.
type EventKind string

const (
	EventActivate      EventKind = "activate"
	EventStagesLoaded  EventKind = "stagesLoaded"
	EventStageResolved EventKind = "stageResolved"
	EventDealsLoaded   EventKind = "dealsLoaded"
	EventDerivedBegin  EventKind = "derivedBegin"
	EventSettled       EventKind = "settled"
	EventFailure       EventKind = "failure"
	EventReset         EventKind = "reset"
)

// transition is the pure pipeline transition function. It returns the next
// state, or an error when the event is illegal in the current phase. It
// never mutates its inputs and never touches the cache or the network.
func transition(state PipelineState, event PipelineEvent) (PipelineState, error) {
	// Failure, reset and activation are legal from every phase. A failure
	// names the collection that broke; a reset returns to idle; an
	// activation starts a new run over whatever phase the superseded run
	// left behind, so the newest request always wins.
	switch event.Kind {
	case EventFailure:
		return PipelineState{Phase: PhaseFailed, ActiveStage: state.ActiveStage, FailedKey: event.Stage}, nil
	case EventReset:
		return PipelineState{Phase: PhaseIdle}, nil
	case EventActivate:
		return PipelineState{Phase: PhaseFetchingStages}, nil
	}

	switch state.Phase {
	case PhaseFetchingStages:
		if event.Kind == EventStagesLoaded {
			return PipelineState{Phase: PhaseStagesReady}, nil
		}
	case PhaseStagesReady:
		if event.Kind == EventStageResolved {
			return PipelineState{Phase: PhaseFetchingDeals, ActiveStage: event.Stage}, nil
		}
	case PhaseFetchingDeals:
		if event.Kind == EventDealsLoaded {
			return PipelineState{Phase: PhaseDealsReady, ActiveStage: state.ActiveStage}, nil
		}
	case PhaseDealsReady:
		if event.Kind == EventDerivedBegin {
			return PipelineState{Phase: PhaseFetchingDerived, ActiveStage: state.ActiveStage}, nil
		}
	case PhaseFetchingDerived:
		if event.Kind == EventSettled {
			return PipelineState{Phase: PhaseSettled, ActiveStage: state.ActiveStage}, nil
		}
	}

	return state, fmt.Errorf("illegal pipeline transition: %s in phase %s", event.Kind, state.Phase)
}
