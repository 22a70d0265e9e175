package agent

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"

	"github.com/gatewise/gatewise/internal/catalog"
	"github.com/gatewise/gatewise/internal/identity"
	"github.com/gatewise/gatewise/internal/testutil"
)

// stubRetriever is a scripted Retriever for factory tests.
type stubRetriever struct {
	results      []catalog.ScoredAmenity
	amenity      *catalog.Amenity
	searchErr    error
	amenityErr   error
	pingErr      error
	searchCalls  int
	lookupCalls  int
	pingCalls    int
	lastLookupID int64
}

func (s *stubRetriever) Search(_ context.Context, _ string, _ int) ([]catalog.ScoredAmenity, error) {
	s.searchCalls++
	return s.results, s.searchErr
}

func (s *stubRetriever) Amenity(_ context.Context, id int64) (*catalog.Amenity, error) {
	s.lookupCalls++
	s.lastLookupID = id
	if s.amenityErr != nil {
		return nil, s.amenityErr
	}
	return s.amenity, nil
}

func (s *stubRetriever) Ping(context.Context) error {
	s.pingCalls++
	return s.pingErr
}

func testToken() *identity.Token {
	return &identity.Token{
		Subject: "user-42",
		Email:   "traveler@example.com",
		Raw:     "raw-credential",
	}
}

func TestNewFactory_Validation(t *testing.T) {
	g := genkit.Init(context.Background())
	logger := testutil.Logger()
	retriever := &stubRetriever{}

	tests := []struct {
		name string
		cfg  FactoryConfig
	}{
		{"missing genkit", FactoryConfig{Retriever: retriever, Logger: logger, ModelName: "m/x"}},
		{"missing retriever", FactoryConfig{Genkit: g, Logger: logger, ModelName: "m/x"}},
		{"missing logger", FactoryConfig{Genkit: g, Retriever: retriever, ModelName: "m/x"}},
		{"missing model name", FactoryConfig{Genkit: g, Retriever: retriever, Logger: logger}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFactory(tt.cfg)
			if !errors.Is(err, ErrConfiguration) {
				t.Errorf("NewFactory() = %v, want ErrConfiguration", err)
			}
		})
	}
}

func newTestFactory(t *testing.T, retriever *stubRetriever, model *testutil.MockModel) *Factory {
	t.Helper()

	g := genkit.Init(context.Background())
	model.Register(g)

	f, err := NewFactory(FactoryConfig{
		Genkit:    g,
		Retriever: retriever,
		Logger:    testutil.Logger(),
		ModelName: testutil.MockModelName,
		MaxTurns:  3,
	})
	if err != nil {
		t.Fatalf("NewFactory() error: %v", err)
	}
	return f
}

func TestNewFactory_RegistersCatalogTools(t *testing.T) {
	f := newTestFactory(t, &stubRetriever{}, &testutil.MockModel{})

	if len(f.tools) != 2 {
		t.Fatalf("factory holds %d tools, want 2", len(f.tools))
	}
	names := map[string]bool{}
	for _, tool := range f.tools {
		names[tool.Name()] = true
	}
	if !names[searchToolName] || !names[lookupToolName] {
		t.Errorf("registered tools = %v, want %s and %s", names, searchToolName, lookupToolName)
	}
}

func TestFactory_RunLookupTool(t *testing.T) {
	retriever := &stubRetriever{
		amenity: &catalog.Amenity{ID: 7, Name: "Coffee Corner", Terminal: "Terminal 2"},
	}
	f := newTestFactory(t, retriever, &testutil.MockModel{})

	out, err := f.runLookupTool(&ai.ToolContext{Context: context.Background()}, lookupToolInput{ID: 7})
	if err != nil {
		t.Fatalf("runLookupTool() error: %v", err)
	}
	if !out.Found || out.Amenity == nil || out.Amenity.Name != "Coffee Corner" {
		t.Errorf("runLookupTool() = %+v, want Coffee Corner", out)
	}
	if retriever.lastLookupID != 7 {
		t.Errorf("retriever saw id %d, want 7", retriever.lastLookupID)
	}
}

func TestFactory_RunLookupTool_UnknownID(t *testing.T) {
	retriever := &stubRetriever{amenityErr: catalog.ErrAmenityNotFound}
	f := newTestFactory(t, retriever, &testutil.MockModel{})

	// A missed lookup is reported to the model, not surfaced as an error.
	out, err := f.runLookupTool(&ai.ToolContext{Context: context.Background()}, lookupToolInput{ID: 404})
	if err != nil {
		t.Fatalf("runLookupTool() error: %v", err)
	}
	if out.Found || out.Amenity != nil {
		t.Errorf("runLookupTool() = %+v, want found=false", out)
	}
}

func TestFactory_RunLookupTool_BackendError(t *testing.T) {
	retriever := &stubRetriever{amenityErr: errors.New("connection reset")}
	f := newTestFactory(t, retriever, &testutil.MockModel{})

	if _, err := f.runLookupTool(&ai.ToolContext{Context: context.Background()}, lookupToolInput{ID: 1}); err == nil {
		t.Error("runLookupTool() should surface backend failures")
	}
}

func TestFactory_Create_BackendUnreachable(t *testing.T) {
	retriever := &stubRetriever{pingErr: errors.New("connection refused")}
	f := newTestFactory(t, retriever, &testutil.MockModel{})

	_, err := f.Create(context.Background(), testToken())
	if !errors.Is(err, ErrConfiguration) {
		t.Fatalf("Create() = %v, want ErrConfiguration", err)
	}
	if retriever.pingCalls != 1 {
		t.Errorf("ping called %d times, want 1", retriever.pingCalls)
	}
}

func TestFactory_Create_And_Invoke(t *testing.T) {
	retriever := &stubRetriever{}
	model := &testutil.MockModel{Fallback: "happy to help"}
	model.Script("coffee", "Try Coffee Corner near gate B12 in Terminal 2.")
	f := newTestFactory(t, retriever, model)

	a, err := f.Create(context.Background(), testToken())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer a.Close(context.Background())

	history := []*ai.Message{
		ai.NewModelMessage(ai.NewTextPart("How can I help you?")),
	}
	reply, err := a.Invoke(context.Background(), "where can I get coffee?", history)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if reply != "Try Coffee Corner near gate B12 in Terminal 2." {
		t.Errorf("Invoke() = %q", reply)
	}

	inputs := model.Inputs()
	if len(inputs) != 1 || inputs[0] != "where can I get coffee?" {
		t.Errorf("model saw inputs %v", inputs)
	}
}

func TestFactory_Create_NilToken(t *testing.T) {
	f := newTestFactory(t, &stubRetriever{}, &testutil.MockModel{Fallback: "hello"})

	a, err := f.Create(context.Background(), nil)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer a.Close(context.Background())

	if _, err := a.Invoke(context.Background(), "hi", nil); err != nil {
		t.Errorf("Invoke() error: %v", err)
	}
}

func TestConcierge_Invoke_EmptyResponseFallback(t *testing.T) {
	f := newTestFactory(t, &stubRetriever{}, &testutil.MockModel{})

	a, err := f.Create(context.Background(), testToken())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer a.Close(context.Background())

	reply, err := a.Invoke(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("Invoke() error: %v", err)
	}
	if reply != fallbackResponse {
		t.Errorf("Invoke() = %q, want fallback", reply)
	}
}

func TestConcierge_Close_Idempotent(t *testing.T) {
	f := newTestFactory(t, &stubRetriever{}, &testutil.MockModel{Fallback: "x"})

	a, err := f.Create(context.Background(), testToken())
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("first Close() error: %v", err)
	}
	if err := a.Close(context.Background()); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestBearerTransport_SetsAuthorization(t *testing.T) {
	var seen string
	rt := &bearerTransport{
		credential: "cred-123",
		base: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			seen = req.Header.Get("Authorization")
			return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
		}),
	}

	req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip() error: %v", err)
	}
	resp.Body.Close()

	if seen != "Bearer cred-123" {
		t.Errorf("Authorization = %q, want Bearer cred-123", seen)
	}
	if req.Header.Get("Authorization") != "" {
		t.Error("original request must not be mutated")
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}
