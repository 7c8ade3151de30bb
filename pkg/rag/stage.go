package rag

// Stage is a step of the per-query state machine. A query moves strictly
// forward from Idle to Done; Errored is reachable from any stage.
type Stage int

const (
	StageIdle Stage = iota
	StageClassified
	StageRetrieved
	StageGenerated
	StageValidated
	StageDone
	StageErrored
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageClassified:
		return "classified"
	case StageRetrieved:
		return "retrieved"
	case StageGenerated:
		return "generated"
	case StageValidated:
		return "validated"
	case StageDone:
		return "done"
	case StageErrored:
		return "errored"
	default:
		return "unknown"
	}
}
