package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies the failures that can end processing of a single item.
type Kind string

const (
	KindPlanGeneration   Kind = "plan_generation"
	KindNoPlanFound      Kind = "no_plan_found"
	KindPlanMerge        Kind = "plan_merge"
	KindSchemaCollection Kind = "schema_collection"
	KindEmptyContext     Kind = "empty_context"
	KindInference        Kind = "inference"
)

// Stage identifies where in the per-item sequence a failure occurred.
type Stage string

const (
	StagePlan      Stage = "plan"
	StageMerge     Stage = "merge"
	StageExtract   Stage = "extract"
	StageSchema    Stage = "schema"
	StagePrompt    Stage = "prompt"
	StageInfer     Stage = "infer"
	StageSummarize Stage = "summarize"
)

// Error is a classified pipeline failure. Object names the database object
// involved when one is known. Detail carries a raw diagnostic payload, such
// as an inference response body.
type Error struct {
	Kind   Kind
	Stage  Stage
	Object string
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s at stage %s", e.Kind, e.Stage)
	if e.Object != "" {
		msg += fmt.Sprintf(" (%s)", e.Object)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether any error in err's chain is a pipeline Error of the
// given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == kind
}

// KindOf returns the kind of the first pipeline Error in err's chain, or an
// empty kind when there is none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
