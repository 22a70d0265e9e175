// Package testutil provides deterministic Genkit test doubles shared by
// package tests: a scripted mock model and a hash-based mock embedder.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the provider-qualified name tests pass as ModelName.
const MockModelName = "mock/concierge-model"

// MockModel is a deterministic stand-in for the concierge LLM.
// Replies are scripted per substring of the latest user message; when
// nothing matches, Fallback is returned. An empty Fallback produces an
// empty model response, which exercises callers' empty-reply handling.
//
// Safe for concurrent use.
type MockModel struct {
	Fallback string

	mu      sync.Mutex
	scripts []script
	inputs  []string
}

type script struct {
	match string
	reply string
}

// Script registers a reply for user messages containing match
// (case-insensitive). Earlier scripts win.
func (m *MockModel) Script(match, reply string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, script{match: strings.ToLower(match), reply: reply})
}

// Inputs returns the user messages seen so far, in call order.
func (m *MockModel) Inputs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.inputs...)
}

// Register installs the mock under MockModelName.
func (m *MockModel) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Concierge Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			Tools:      true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockModel) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var userText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			userText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	m.inputs = append(m.inputs, userText)
	reply := m.Fallback
	lower := strings.ToLower(userText)
	for _, s := range m.scripts {
		if strings.Contains(lower, s.match) {
			reply = s.reply
			break
		}
	}
	m.mu.Unlock()

	return &ai.ModelResponse{
		Request: req,
		Message: ai.NewModelMessage(ai.NewTextPart(reply)),
	}, nil
}

// MockEmbedder yields stable embeddings derived from the input text's
// SHA-256 hash, so identical text always embeds identically. Pinned
// vectors can be set for exact similarity control.
type MockEmbedder struct {
	Dim int

	mu     sync.Mutex
	pinned map[string][]float32
}

// Pin fixes the vector returned for exactly this text.
func (e *MockEmbedder) Pin(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pinned == nil {
		e.pinned = make(map[string][]float32)
	}
	e.pinned[text] = vec
}

// Register installs the mock under "mock/concierge-embedder".
func (e *MockEmbedder) Register(g *genkit.Genkit) ai.Embedder {
	return genkit.DefineEmbedder(g, "mock/concierge-embedder", &ai.EmbedderOptions{
		Label:      "Mock Concierge Embedder",
		Dimensions: e.Dim,
	}, e.embed)
}

func (e *MockEmbedder) embed(_ context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	out := make([]*ai.Embedding, len(req.Input))
	for i, doc := range req.Input {
		var sb strings.Builder
		for _, p := range doc.Content {
			if p.Kind == ai.PartText {
				sb.WriteString(p.Text)
			}
		}
		out[i] = &ai.Embedding{Embedding: e.vectorFor(sb.String())}
	}
	return &ai.EmbedResponse{Embeddings: out}, nil
}

func (e *MockEmbedder) vectorFor(text string) []float32 {
	e.mu.Lock()
	v, ok := e.pinned[text]
	e.mu.Unlock()
	if ok {
		return v
	}

	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, e.Dim)
	for i := range vec {
		idx := (i * 4) % len(hash)
		bits := binary.LittleEndian.Uint32([]byte{
			hash[idx%32], hash[(idx+1)%32], hash[(idx+2)%32], hash[(idx+3)%32],
		})
		vec[i] = (float32(bits)/float32(math.MaxUint32))*2 - 1
	}

	var norm float32
	for _, f := range vec {
		norm += f * f
	}
	if norm > 0 {
		scale := 1 / float32(math.Sqrt(float64(norm)))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

// Logger returns a silent slog.Logger for tests.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
