package ai

import (
	"context"
	"errors"
	"fmt"
)

// Criterion describes one rubric dimension.
type Criterion struct {
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// Rubric maps dimension names to their weight and description.
type Rubric map[string]Criterion

// DefaultRubric is used when a challenge does not define its own rubric.
func DefaultRubric() Rubric {
	return Rubric{
		"innovation":          {Weight: 25, Description: "Originality of the idea and approach"},
		"technical_execution": {Weight: 30, Description: "Code quality, architecture and technical depth"},
		"impact":              {Weight: 20, Description: "Potential value for users or the challenge sponsor"},
		"presentation":        {Weight: 15, Description: "Clarity of the write-up, pitch deck and demo"},
		"completeness":        {Weight: 10, Description: "How much of the proposed solution actually works"},
	}
}

// ScoringInput contains the submission fields and gathered evidence sent to the model.
type ScoringInput struct {
	Title    string
	RepoURL  string
	DeckURL  string
	DemoURL  string
	Writeup  string
	Rubric   Rubric
	Evidence string
}

// ScoringResult is the validated, range-clamped model response.
type ScoringResult struct {
	Score     float64                `json:"score"`
	SubScores map[string]float64     `json:"subscores"`
	Rationale string                 `json:"rationale"`
	Detailed  map[string]interface{} `json:"detailed_analysis,omitempty"`
	Provider  string                 `json:"provider"`
	Model     string                 `json:"model"`
}

// Scorer grades a hackathon submission with an LLM.
type Scorer interface {
	Score(ctx context.Context, input ScoringInput) (ScoringResult, error)
}

// ErrorKind classifies scoring failures.
type ErrorKind string

const (
	// ErrorKindUnavailable covers transport and upstream service errors.
	ErrorKindUnavailable ErrorKind = "unavailable"
	// ErrorKindMalformed covers empty, non-JSON or schema-violating responses.
	ErrorKindMalformed ErrorKind = "malformed"
	// ErrorKindTimeout is returned when the call exceeded its time budget.
	ErrorKindTimeout ErrorKind = "timeout"
)

// ScoringError is returned by every Scorer implementation on failure.
// Its message is meant for logs, not for API responses.
type ScoringError struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *ScoringError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s scoring %s", e.Provider, e.Kind)
	}
	return fmt.Sprintf("%s scoring %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ScoringError) Unwrap() error {
	return e.Err
}

// AsScoringError extracts a *ScoringError from err.
func AsScoringError(err error) (*ScoringError, bool) {
	var scoringErr *ScoringError
	if errors.As(err, &scoringErr) {
		return scoringErr, true
	}
	return nil, false
}

func upstreamError(ctx context.Context, provider string, err error) *ScoringError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ScoringError{Kind: ErrorKindTimeout, Provider: provider, Err: err}
	}
	return &ScoringError{Kind: ErrorKindUnavailable, Provider: provider, Err: err}
}

func malformedError(provider string, err error) *ScoringError {
	return &ScoringError{Kind: ErrorKindMalformed, Provider: provider, Err: err}
}
