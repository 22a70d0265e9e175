// Package agent builds identity-bound conversational agents over the
// amenity catalog. Each agent carries the credentials of the user it was
// created for and holds resources that must be released when the user's
// session ends.
package agent

import (
	"context"

	"github.com/firebase/genkit/go/ai"
)

// Agent is one user's conversational assistant.
//
// Implementations are safe for concurrent Invoke calls; callers that need
// ordered conversation turns must serialize above this interface.
type Agent interface {
	// Invoke runs one conversation turn. history is the prior turns in
	// order; input is the new user message. Returns the assistant's reply.
	Invoke(ctx context.Context, input string, history []*ai.Message) (string, error)

	// Close releases resources held by the agent. Safe to call more than
	// once; Invoke after Close is undefined.
	Close(ctx context.Context) error
}
