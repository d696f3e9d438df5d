package enrich

import (
	"fmt"

	"github.com/starford/noteweave/internal/apperr"
)

// Stage names the step of an attempt that failed.
type Stage string

const (
	StageSurrogate  Stage = "surrogate"
	StageCompletion Stage = "completion"
	StageEmbedding  Stage = "embedding"
	StageParse      Stage = "parse"
	StageValidate   Stage = "validate"
	StageTimeout    Stage = "timeout"
	StageCanceled   Stage = "canceled"
	StagePersist    Stage = "persist"
)

// EnrichmentError reports a failed attempt. The note has been marked FAILED
// with Diagnostic() as its retained reason.
type EnrichmentError struct {
	NoteID    string
	AttemptID string
	Stage     Stage
	Err       error
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("enrich note %s: %s: %v", e.NoteID, e.Stage, e.Err)
}

// Diagnostic is the operator-facing reason stored on the note.
func (e *EnrichmentError) Diagnostic() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *EnrichmentError) Unwrap() []error {
	return []error{apperr.ErrEnrichmentFailed, e.Err}
}

// stageError tags an error with the stage it came from.
type stageError struct {
	stage Stage
	err   error
}

func (e *stageError) Error() string { return string(e.stage) + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }
