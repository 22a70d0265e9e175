package chat

import "errors"

// Sentinel errors for chat turn processing.
var (
	// ErrEmptyPrompt indicates the user submitted a blank prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")

	// ErrAgentInvocation indicates the session's agent failed to produce a
	// reply. The underlying cause is wrapped alongside it.
	ErrAgentInvocation = errors.New("agent invocation failed")
)
