package model

import (
	"fmt"
	"strings"
)

// NotFoundError signals an unknown scenario or result id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e NotFoundError) Error() string {
	if e.Kind == "" {
		return "not found"
	}

	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// GenerationError signals that the generator could not produce a usable
// scenario.
type GenerationError struct {
	Err error
}

func (e GenerationError) Error() string {
	return fmt.Sprintf("generating scenario: %v", e.Err)
}

func (e GenerationError) Unwrap() error {
	return e.Err
}

// PersistenceError wraps a repository read or write failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e PersistenceError) Unwrap() error {
	return e.Err
}

// NoExecutorError signals that no registered executor declares capability
// for the scenario's test type.
type NoExecutorError struct {
	Type TestType
}

func (e NoExecutorError) Error() string {
	return fmt.Sprintf("no executor registered for test type %q", e.Type)
}

// ExecutionError signals an unexpected executor fault, distinct from a
// normal failed assertion step.
type ExecutionError struct {
	Executor   string
	ScenarioID string
	Err        error
}

func (e ExecutionError) Error() string {
	return fmt.Sprintf("executor %q failed running scenario %q: %v", e.Executor, e.ScenarioID, e.Err)
}

func (e ExecutionError) Unwrap() error {
	return e.Err
}

// ValidationError carries the structural issues of an invalid scenario.
type ValidationError struct {
	Issues []string
}

func (e ValidationError) Error() string {
	return "invalid scenario: " + strings.Join(e.Issues, "; ")
}
