package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/internal/intent"
	"github.com/docsense/backend/internal/llm"
	"github.com/docsense/backend/internal/mode"
	"github.com/docsense/backend/internal/prompt"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/internal/validate"
)

type fakeStore struct {
	count int
}

func (f *fakeStore) Add(ctx context.Context, records []chunkstore.Record) error { return nil }
func (f *fakeStore) Query(ctx context.Context, text string, k int) ([]chunkstore.Match, error) {
	return nil, nil
}
func (f *fakeStore) Count(ctx context.Context) (int, error) { return f.count, nil }
func (f *fakeStore) Clear(ctx context.Context) error        { return nil }

type fakeRetriever struct {
	candidates []retrieval.Candidate
	calls      int
}

func (f *fakeRetriever) Retrieve(ctx context.Context, query string) []retrieval.Candidate {
	f.calls++
	return f.candidates
}

// fakeGenerator scripts per-call errors, then streams reply word by word.
type fakeGenerator struct {
	reply    string
	errs     []error
	calls    int
	lastMsgs []llm.Message
}

func (f *fakeGenerator) StreamCompletion(ctx context.Context, messages []llm.Message, p llm.GenParams) (<-chan llm.StreamToken, error) {
	f.calls++
	f.lastMsgs = messages

	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	ch := make(chan llm.StreamToken, 64)
	go func() {
		defer close(ch)
		for _, w := range strings.Fields(f.reply) {
			ch <- llm.StreamToken{Content: w + " "}
		}
		ch <- llm.StreamToken{Done: true}
	}()
	return ch, nil
}

func newTestOrchestrator(store chunkstore.Store, r Retriever, gen Generator) *Orchestrator {
	return New(store, r, prompt.NewBuilder(prompt.Config{}), validate.New(), gen, Config{})
}

func drain(a Answer) string {
	var sb strings.Builder
	for tok := range a.Tokens {
		sb.WriteString(tok)
	}
	for range a.Validation {
	}
	return sb.String()
}

func wellCandidates() []retrieval.Candidate {
	return []retrieval.Candidate{
		{
			Chunk:      retrieval.Chunk{ID: "w1", Text: "pressure readings at Well-7: 3124 psi", Source: "wells.csv", IsStructured: true},
			Similarity: 0.95,
		},
		{
			Chunk:      retrieval.Chunk{ID: "w2", Text: "temperature at Well-7: 212 degF", Source: "wells.csv", IsStructured: true},
			Similarity: 0.90,
		},
		{
			Chunk:      retrieval.Chunk{ID: "w3", Text: "daily operations log for the field crew", Source: "log.txt"},
			Similarity: 0.60,
		},
	}
}

func TestCasualShortCircuit(t *testing.T) {
	store := &fakeStore{count: 0}
	r := &fakeRetriever{}
	gen := &fakeGenerator{reply: "unused"}
	o := newTestOrchestrator(store, r, gen)

	answer := o.Answer(context.Background(), Request{Query: "hello"})
	text := drain(answer)

	if !answer.Metadata.RetrievalSkipped {
		t.Error("retrieval_skipped not set for casual query")
	}
	if answer.Metadata.Mode != mode.ModeCasual {
		t.Errorf("mode = %v, want casual", answer.Metadata.Mode)
	}
	if r.calls != 0 {
		t.Errorf("retriever called %d times for casual query", r.calls)
	}
	if gen.calls != 0 {
		t.Errorf("generator called %d times for casual query", gen.calls)
	}
	if text == "" {
		t.Error("casual answer stream is empty")
	}
}

// Casual beats the empty-store check: "hi" against no documents still gets
// the greeting, not the upload prompt.
func TestCasualBeatsNoDocuments(t *testing.T) {
	o := newTestOrchestrator(&fakeStore{count: 0}, &fakeRetriever{}, &fakeGenerator{})

	answer := o.Answer(context.Background(), Request{Query: "hi"})
	drain(answer)

	if answer.Metadata.Error != nil {
		t.Fatalf("casual query surfaced error %v", answer.Metadata.Error.Kind)
	}
}

func TestNoDocumentsPath(t *testing.T) {
	r := &fakeRetriever{}
	gen := &fakeGenerator{reply: "unused"}
	o := newTestOrchestrator(&fakeStore{count: 0}, r, gen)

	answer := o.Answer(context.Background(), Request{Query: "explain the findings"})
	text := drain(answer)

	if answer.Metadata.Error == nil || answer.Metadata.Error.Kind != ErrNoDocuments {
		t.Fatalf("error = %+v, want NoDocuments", answer.Metadata.Error)
	}
	if !strings.Contains(text, "upload") {
		t.Errorf("answer %q does not prompt for upload", text)
	}
	if r.calls != 0 {
		t.Errorf("retriever called on empty store")
	}
	if gen.calls != 0 {
		t.Errorf("generator called on empty store")
	}
}

func TestExtractionQueryGetsTabularMode(t *testing.T) {
	r := &fakeRetriever{candidates: wellCandidates()}
	gen := &fakeGenerator{reply: "| Entity | Parameter | Value | Unit | Source |"}
	o := newTestOrchestrator(&fakeStore{count: 3}, r, gen)

	answer := o.Answer(context.Background(), Request{Query: "extract all values at each location"})
	text := drain(answer)

	if answer.Metadata.Mode != mode.ModeTabular {
		t.Fatalf("mode = %v, want tabular", answer.Metadata.Mode)
	}
	if answer.Metadata.ChunksRetrieved != 3 {
		t.Errorf("chunks_retrieved = %d, want 3", answer.Metadata.ChunksRetrieved)
	}
	if len(answer.Selection) == 0 {
		t.Error("selection is empty")
	}
	if !strings.Contains(text, "| Entity |") {
		t.Errorf("tokens not streamed through: %q", text)
	}

	// The tabular contract must reach the model.
	if !strings.Contains(gen.lastMsgs[0].Content, "data extraction") {
		t.Errorf("system prompt is not the tabular contract")
	}
}

func TestEmptyRetrievalDegradesToSummaryFallback(t *testing.T) {
	r := &fakeRetriever{candidates: nil}
	gen := &fakeGenerator{reply: "best effort summary"}
	o := newTestOrchestrator(&fakeStore{count: 5}, r, gen)

	answer := o.Answer(context.Background(), Request{Query: "describe the maintenance history"})
	text := drain(answer)

	if !answer.Metadata.Degraded {
		t.Fatal("degraded flag not set")
	}
	if answer.Metadata.Mode != mode.ModeNarrative {
		t.Errorf("mode = %v, want narrative for degraded path", answer.Metadata.Mode)
	}
	if answer.Metadata.DetectedLevel != intent.DetailBrief {
		t.Errorf("detected level = %v, want brief for degraded path", answer.Metadata.DetectedLevel)
	}
	if answer.Metadata.Error != nil {
		t.Errorf("degraded path surfaced error %v", answer.Metadata.Error.Kind)
	}
	if !strings.Contains(text, "best effort summary") {
		t.Errorf("tokens not streamed: %q", text)
	}
}

func TestRateLimitNeverRetried(t *testing.T) {
	gen := &fakeGenerator{errs: []error{llm.ErrRateLimited}}
	o := newTestOrchestrator(&fakeStore{count: 3}, &fakeRetriever{candidates: wellCandidates()}, gen)

	answer := o.Answer(context.Background(), Request{Query: "describe the wells"})
	text := drain(answer)

	if answer.Metadata.Error == nil || answer.Metadata.Error.Kind != ErrRateLimited {
		t.Fatalf("error = %+v, want RateLimited", answer.Metadata.Error)
	}
	if gen.calls != 1 {
		t.Errorf("generator called %d times, rate limits must not be retried", gen.calls)
	}
	if !strings.Contains(text, "rate limited") {
		t.Errorf("answer %q does not explain the rate limit", text)
	}
}

func TestGenerationFailureRetriedOnce(t *testing.T) {
	gen := &fakeGenerator{
		reply: "recovered answer",
		errs:  []error{errors.New("upstream hiccup"), nil},
	}
	o := newTestOrchestrator(&fakeStore{count: 3}, &fakeRetriever{candidates: wellCandidates()}, gen)

	answer := o.Answer(context.Background(), Request{Query: "describe the wells"})
	text := drain(answer)

	if answer.Metadata.Error != nil {
		t.Fatalf("recovered stream still surfaced error %v", answer.Metadata.Error.Kind)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want initial + one retry", gen.calls)
	}
	if !strings.Contains(text, "recovered answer") {
		t.Errorf("tokens not streamed after retry: %q", text)
	}
}

func TestGenerationFailureAfterRetrySurfacesApology(t *testing.T) {
	gen := &fakeGenerator{
		errs: []error{errors.New("down"), errors.New("still down")},
	}
	o := newTestOrchestrator(&fakeStore{count: 3}, &fakeRetriever{candidates: wellCandidates()}, gen)

	answer := o.Answer(context.Background(), Request{Query: "describe the wells"})
	text := drain(answer)

	if answer.Metadata.Error == nil || answer.Metadata.Error.Kind != ErrGenerationFailed {
		t.Fatalf("error = %+v, want GenerationFailed", answer.Metadata.Error)
	}
	if gen.calls != 2 {
		t.Errorf("generator called %d times, want exactly 2", gen.calls)
	}
	if text == "" || strings.Contains(text, "still down") {
		t.Errorf("raw transport error leaked to the user: %q", text)
	}
}

func TestModeOverrideSkipsDetection(t *testing.T) {
	gen := &fakeGenerator{reply: "hybrid answer"}
	o := newTestOrchestrator(&fakeStore{count: 3}, &fakeRetriever{candidates: wellCandidates()}, gen)

	answer := o.Answer(context.Background(), Request{
		Query:        "extract all values at each location",
		ModeOverride: mode.ModeHybrid,
	})
	drain(answer)

	if answer.Metadata.Mode != mode.ModeHybrid {
		t.Fatalf("mode = %v, want hybrid override", answer.Metadata.Mode)
	}
}

func TestValidationResultDelivered(t *testing.T) {
	gen := &fakeGenerator{reply: "short narrative"}
	o := newTestOrchestrator(&fakeStore{count: 3}, &fakeRetriever{candidates: wellCandidates()}, gen)

	answer := o.Answer(context.Background(), Request{Query: "describe the wells briefly"})
	for range answer.Tokens {
	}

	result, ok := <-answer.Validation
	if !ok {
		t.Fatal("validation channel closed without a result")
	}
	// A two-word narrative answer is a depth violation, advisory only.
	if result.Valid {
		t.Error("two-word answer passed depth validation")
	}
}
