package agent

import "errors"

// Sentinel errors for agent construction and invocation.
var (
	// ErrConfiguration indicates the agent could not be constructed:
	// missing dependencies or an unreachable backend. Requests failing
	// with it should surface as server errors, not user errors.
	ErrConfiguration = errors.New("agent configuration failed")
)
