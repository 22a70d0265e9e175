// Package registry owns the process-wide mapping from session identifier to
// live agent. It is the only shared mutable state in the service; all
// access goes through Registry methods.
package registry

import (
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/gatewise/gatewise/internal/agent"
	"github.com/gatewise/gatewise/internal/identity"
)

// Greeting is the assistant turn every new session starts with.
const Greeting = "How can I help you?"

// Role identifies who authored a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable entry in a session's conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Session is one browser session: its agent and the ordered conversation.
// Turns only grow; nothing rewrites committed history.
//
// Safe for concurrent use.
type Session struct {
	id       uuid.UUID
	identity *identity.Token
	agent    agent.Agent

	// turnMu serializes whole chat turns. It lives on the session so it is
	// released for collection when the session is disposed.
	turnMu sync.Mutex

	mu    sync.RWMutex
	turns []Turn
}

func newSession(id uuid.UUID, token *identity.Token, ag agent.Agent) *Session {
	return &Session{
		id:       id,
		identity: token,
		agent:    ag,
		turns:    []Turn{{Role: RoleAssistant, Content: Greeting}},
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID { return s.id }

// Identity returns the verified identity the session is bound to,
// or nil for anonymous sessions.
func (s *Session) Identity() *identity.Token { return s.identity }

// Agent returns the session's agent.
func (s *Session) Agent() agent.Agent { return s.agent }

// TurnLock returns the lock serializing chat turns on this session. Holders
// run one full turn (history snapshot, agent invocation, commit) at a time;
// turns on other sessions proceed in parallel.
func (s *Session) TurnLock() *sync.Mutex { return &s.turnMu }

// AppendUser commits a user turn.
func (s *Session) AppendUser(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: RoleUser, Content: content})
}

// AppendAssistant commits an assistant turn.
func (s *Session) AppendAssistant(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: content})
}

// Turns returns a copy of the conversation in chronological order.
func (s *Session) Turns() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Turn(nil), s.turns...)
}

// Messages renders the conversation as model messages. Fresh structs are
// built on every call; Genkit mutates message content in place during
// rendering, so shared instances would race across concurrent generations.
func (s *Session) Messages() []*ai.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]*ai.Message, len(s.turns))
	for i, t := range s.turns {
		switch t.Role {
		case RoleUser:
			msgs[i] = ai.NewUserMessage(ai.NewTextPart(t.Content))
		default:
			msgs[i] = ai.NewModelMessage(ai.NewTextPart(t.Content))
		}
	}
	return msgs
}
