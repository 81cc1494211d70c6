// Package pipeline holds the one error type every pipeline stage shares:
// a contract violation, distinguished from plugin/transport errors so a
// join barrier can tell "this observation is broken" (abort, no retry)
// from "a plugin call failed" (also aborts today, per spec.md §7, but is a
// different failure mode a caller may one day want to retry).
package pipeline

import "fmt"

// ContractError marks a violation of one of spec.md §7's "contract
// violations": null summary text when embedding is requested, an engram id
// collision, an empty index array, missing engram context, and similar
// invariant breaks. It is always fatal to the current observation.
type ContractError struct {
	Stage string
	Msg   string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: contract violation: %s", e.Stage, e.Msg)
}

// NewContractError constructs a ContractError for stage, formatted like
// fmt.Errorf.
func NewContractError(stage, format string, args ...any) *ContractError {
	return &ContractError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}
