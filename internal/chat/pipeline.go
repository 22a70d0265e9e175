// Package chat orchestrates a single conversation turn: validate the
// prompt, run the session's agent, and commit the exchange to the session.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/registry"
)

// Sessions resolves live sessions. The pipeline never creates sessions;
// the HTTP boundary must have resolved one first.
type Sessions interface {
	Session(ctx context.Context, id uuid.UUID) (*registry.Session, error)
}

// Pipeline processes chat turns.
//
// Turns within one session run strictly one at a time: interleaved agent
// invocations against the same history would commit turns out of
// conversation order. Different sessions proceed in parallel. The
// serialization lock lives on the session itself, so it is collected with
// the session when the registry disposes it.
type Pipeline struct {
	sessions Sessions
	logger   *slog.Logger
}

// NewPipeline creates a Pipeline over the given session resolver.
func NewPipeline(sessions Sessions, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		sessions: sessions,
		logger:   logger,
	}
}

// Turn runs one chat turn for the session identified by id.
//
// The user turn is committed before the agent runs; a failed invocation
// leaves it in place but never commits a partial assistant turn. Failures
// surface as ErrAgentInvocation wrapping the cause.
func (p *Pipeline) Turn(ctx context.Context, id uuid.UUID, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	sess, err := p.sessions.Session(ctx, id)
	if err != nil {
		return "", fmt.Errorf("resolving session: %w", err)
	}

	lock := sess.TurnLock()
	lock.Lock()
	defer lock.Unlock()

	// History snapshot excludes the new prompt; the agent appends it to
	// the model conversation itself.
	history := sess.Messages()
	sess.AppendUser(prompt)

	reply, err := sess.Agent().Invoke(ctx, prompt, history)
	if err != nil {
		p.logger.Error("agent invocation failed",
			"session_id", id,
			"error", err,
		)
		return "", fmt.Errorf("%w: %w", ErrAgentInvocation, err)
	}

	sess.AppendAssistant(reply)
	p.logger.Debug("chat turn completed",
		"session_id", id,
		"prompt_len", len(prompt),
		"reply_len", len(reply),
	)
	return reply, nil
}
