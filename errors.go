package memora

import (
	"errors"
	"fmt"
)

// ErrTemplateNotFound is returned by PromptStore.Get when no template file
// with the requested name exists on disk or in the embedded defaults.
type ErrTemplateNotFound struct {
	Name string
}

func (e *ErrTemplateNotFound) Error() string {
	return fmt.Sprintf("prompt template not found: %s", e.Name)
}

// ErrCategoryConfig is returned by Registry.Register on a name conflict,
// a missing dependency reference, or a self-dependency.
type ErrCategoryConfig struct {
	Category string
	Reason   string
}

func (e *ErrCategoryConfig) Error() string {
	return fmt.Sprintf("category config %s: %s", e.Category, e.Reason)
}

// ErrUnknownCategory is returned when an operation references a category
// that is not registered.
type ErrUnknownCategory struct {
	Category string
}

func (e *ErrUnknownCategory) Error() string {
	return fmt.Sprintf("unknown category: %s", e.Category)
}

// ErrCycleDetected is returned by Registry.DependencyOrder when the
// dependency graph is not a DAG. Remaining lists the categories that could
// not be ordered.
type ErrCycleDetected struct {
	Remaining []string
}

func (e *ErrCycleDetected) Error() string {
	return fmt.Sprintf("dependency cycle among categories: %v", e.Remaining)
}

// ErrStorageIO wraps an I/O failure from a storage backend. Retriable at
// the caller's discretion; the core does not retry internally.
type ErrStorageIO struct {
	Op  string
	Err error
}

func (e *ErrStorageIO) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *ErrStorageIO) Unwrap() error { return e.Err }

// ErrLLM wraps a provider failure (including timeouts). Surfaces to the
// caller within the current operation.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx response from a provider endpoint.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrAgentGeneration wraps an LLM failure inside a category agent step.
// Reported per-agent in the ingestion report; independent agents continue.
type ErrAgentGeneration struct {
	Category string
	Err      error
}

func (e *ErrAgentGeneration) Error() string {
	return fmt.Sprintf("agent %s: generation failed: %v", e.Category, e.Err)
}

func (e *ErrAgentGeneration) Unwrap() error { return e.Err }

// ErrDependencyUnavailable marks a category agent skipped because an
// upstream dependency failed or produced empty output.
type ErrDependencyUnavailable struct {
	Category   string
	Dependency string
}

func (e *ErrDependencyUnavailable) Error() string {
	return fmt.Sprintf("agent %s: dependency %s unavailable", e.Category, e.Dependency)
}

// ErrCancelled is returned when a cooperative stop signal was observed
// mid-operation. Partial describes how far the operation got.
type ErrCancelled struct {
	Partial string
}

func (e *ErrCancelled) Error() string {
	return "cancelled: " + e.Partial
}

// ErrEmbedding marks an embedding generation failure. Always swallowed
// inside an agent's write path; surfaces only when embedding is invoked
// explicitly.
var ErrEmbedding = errors.New("embedding generation failed")
