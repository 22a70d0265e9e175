package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/gatewise/gatewise/internal/catalog"
	"github.com/gatewise/gatewise/internal/identity"
)

const (
	// searchToolName is the retrieval tool exposed to the model.
	searchToolName = "search_amenities"

	searchToolDescription = "Search the airport amenity catalog for places and services " +
		"matching a traveler's request. Use this whenever the user asks about food, " +
		"shops, lounges, services, or anything available at the airport."

	// toolSearchLimit is how many amenities one tool call retrieves.
	toolSearchLimit = 5

	// lookupToolName is the by-id amenity lookup tool exposed to the model.
	lookupToolName = "get_amenity"

	lookupToolDescription = "Get details for one specific airport amenity by its id. " +
		"Never guess an id; use the id returned by search_amenities."

	// createTimeout bounds the backend reachability check during Create.
	createTimeout = 10 * time.Second

	// fallbackResponse is returned when the model produces no text.
	fallbackResponse = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	systemPrompt = `You are a friendly and helpful airport concierge. You answer travelers'
questions about amenities at the airport: restaurants, shops, lounges, and services.

Always ground your answers in the search_amenities tool. If the tool returns no
matching amenities, say so plainly instead of inventing one. To get details on a
specific amenity, call get_amenity with an id from an earlier search_amenities
result; never guess an id. Include the location and terminal when you recommend
a place. Keep answers short and conversational.`
)

// Retriever is the catalog surface agents depend on.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]catalog.ScoredAmenity, error)
	Amenity(ctx context.Context, id int64) (*catalog.Amenity, error)
	Ping(ctx context.Context) error
}

// searchToolInput is the schema the model fills when calling the tool.
type searchToolInput struct {
	Query string `json:"query" jsonschema_description:"Free-text description of what the traveler is looking for"`
}

// lookupToolInput is the schema for the by-id lookup tool.
type lookupToolInput struct {
	ID int64 `json:"id" jsonschema_description:"Amenity id from a previous search_amenities result"`
}

// lookupToolOutput reports a missing amenity to the model instead of
// aborting the whole generation.
type lookupToolOutput struct {
	Found   bool             `json:"found"`
	Amenity *catalog.Amenity `json:"amenity,omitempty"`
}

// FactoryConfig contains all required parameters for the agent factory.
type FactoryConfig struct {
	Genkit    *genkit.Genkit
	Retriever Retriever
	Logger    *slog.Logger

	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	MaxTurns  int    // maximum agentic loop turns (tool call rounds)
}

// validate checks if all required parameters are present.
func (cfg FactoryConfig) validate() error {
	if cfg.Genkit == nil {
		return errors.New("genkit instance is required")
	}
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.ModelName == "" {
		return errors.New("model name is required")
	}
	return nil
}

// Factory creates identity-bound concierge agents.
//
// The catalog tools are registered with Genkit once at construction; Genkit
// tool names are process-global, so per-agent registration would collide.
// All agents share the tools, which are stateless.
type Factory struct {
	g         *genkit.Genkit
	retriever Retriever
	logger    *slog.Logger
	modelName string
	maxTurns  int
	tools     []ai.ToolRef
}

// NewFactory creates a Factory and registers the amenity search tool.
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 5
	}

	f := &Factory{
		g:         cfg.Genkit,
		retriever: cfg.Retriever,
		logger:    cfg.Logger,
		modelName: cfg.ModelName,
		maxTurns:  maxTurns,
	}

	f.tools = []ai.ToolRef{
		genkit.DefineTool(cfg.Genkit, searchToolName, searchToolDescription, f.runSearchTool),
		genkit.DefineTool(cfg.Genkit, lookupToolName, lookupToolDescription, f.runLookupTool),
	}

	f.logger.Info("agent factory initialized",
		"model", f.modelName,
		"max_turns", f.maxTurns,
	)
	return f, nil
}

// runSearchTool handles one search_amenities call from the model.
func (f *Factory) runSearchTool(toolCtx *ai.ToolContext, input searchToolInput) ([]catalog.ScoredAmenity, error) {
	results, err := f.retriever.Search(toolCtx.Context, input.Query, toolSearchLimit)
	if err != nil {
		return nil, fmt.Errorf("amenity search tool: %w", err)
	}
	f.logger.Debug("amenity search tool invoked",
		"query_len", len(input.Query),
		"result_count", len(results),
	)
	return results, nil
}

// runLookupTool handles one get_amenity call from the model. An unknown id
// is a model mistake, not a failure: the tool reports found=false so the
// model can recover within the same turn.
func (f *Factory) runLookupTool(toolCtx *ai.ToolContext, input lookupToolInput) (lookupToolOutput, error) {
	a, err := f.retriever.Amenity(toolCtx.Context, input.ID)
	if errors.Is(err, catalog.ErrAmenityNotFound) {
		f.logger.Debug("amenity lookup missed", "id", input.ID)
		return lookupToolOutput{Found: false}, nil
	}
	if err != nil {
		return lookupToolOutput{}, fmt.Errorf("amenity lookup tool: %w", err)
	}
	return lookupToolOutput{Found: true, Amenity: a}, nil
}

// Create builds an agent bound to the given verified identity.
//
// Construction fails fast with ErrConfiguration when the catalog backend is
// unreachable, so a broken deployment surfaces on the first chat request
// instead of on the first tool call mid-conversation.
func (f *Factory) Create(ctx context.Context, token *identity.Token) (Agent, error) {
	pingCtx, cancel := context.WithTimeout(ctx, createTimeout)
	defer cancel()

	if err := f.retriever.Ping(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: catalog backend unreachable: %v", ErrConfiguration, err)
	}

	// Each agent gets its own HTTP client carrying the user's credential,
	// for authenticated downstream calls. The client is the agent's
	// releasable resource; Close drains its connections.
	var transport http.RoundTripper = http.DefaultTransport.(*http.Transport).Clone()
	if token != nil && token.Raw != "" {
		transport = &bearerTransport{credential: token.Raw, base: transport}
	}

	subject := ""
	if token != nil {
		subject = token.Subject
	}

	f.logger.Debug("created concierge agent", "subject", subject)

	return &concierge{
		g:         f.g,
		logger:    f.logger,
		modelName: f.modelName,
		maxTurns:  f.maxTurns,
		tools:     f.tools,
		subject:   subject,
		client:    &http.Client{Transport: transport},
	}, nil
}

// bearerTransport injects the user's credential into outgoing requests.
type bearerTransport struct {
	credential string
	base       http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.credential)
	return t.base.RoundTrip(clone)
}

// concierge is the Genkit-backed Agent implementation.
type concierge struct {
	g         *genkit.Genkit
	logger    *slog.Logger
	modelName string
	maxTurns  int
	tools     []ai.ToolRef
	subject   string
	client    *http.Client

	closeOnce sync.Once
}

// Invoke implements Agent.
func (c *concierge) Invoke(ctx context.Context, input string, history []*ai.Message) (string, error) {
	messages := make([]*ai.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(input)))

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithSystem(systemPrompt),
		ai.WithMessages(messages...),
		ai.WithTools(c.tools...),
		ai.WithMaxTurns(c.maxTurns),
	)
	if err != nil {
		return "", fmt.Errorf("generating response: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		c.logger.Warn("model returned empty response", "subject", c.subject)
		text = fallbackResponse
	}
	return text, nil
}

// Close implements Agent.
func (c *concierge) Close(context.Context) error {
	c.closeOnce.Do(func() {
		c.client.CloseIdleConnections()
		c.logger.Debug("closed concierge agent", "subject", c.subject)
	})
	return nil
}
