// Package orchestrator drives a user query through the full answer pipeline:
// intent classification, retrieval, diversity selection, mode detection,
// prompt construction, streamed generation, and advisory validation.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docsense/backend/internal/chunkstore"
	"github.com/docsense/backend/internal/intent"
	"github.com/docsense/backend/internal/llm"
	"github.com/docsense/backend/internal/metrics"
	"github.com/docsense/backend/internal/mode"
	"github.com/docsense/backend/internal/prompt"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/internal/validate"
	"github.com/docsense/backend/pkg/logger"
)

// State names the pipeline's current step. Exposed for logging and tests.
type State string

const (
	StateIdle        State = "IDLE"
	StateClassifying State = "CLASSIFYING"
	StateRetrieving  State = "RETRIEVING"
	StateSelecting   State = "SELECTING"
	StateModeDetect  State = "MODE_DETECT"
	StatePrompting   State = "PROMPTING"
	StateStreaming   State = "STREAMING"
	StateDone        State = "DONE"
	StateError       State = "ERROR"
)

// ErrorKind tags a pipeline failure. Failures are carried in metadata, never
// raised across the boundary; the caller always receives a token stream.
type ErrorKind string

const (
	ErrNoDocuments      ErrorKind = "NoDocuments"
	ErrRateLimited      ErrorKind = "RateLimited"
	ErrRetrievalTimeout ErrorKind = "RetrievalTimeout"
	ErrGenerationFailed ErrorKind = "GenerationFailed"
)

// PipelineError is the tagged error surfaced in answer metadata.
type PipelineError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

const (
	casualReply = "Hey! You're in document mode. Ask a question about your uploaded files, or just keep chatting."

	noDocumentsReply = "No documents uploaded yet. Please upload PDF, TXT, or CSV files to begin document-based Q&A."

	rateLimitedReply = "The language model is currently rate limited. Please wait a few minutes and try again, or configure a different model."

	generationFailedReply = "Sorry, something went wrong while generating the answer. Please try again."
)

// Request is one user turn. History and detail level are caller-scoped; the
// orchestrator holds no cross-session state.
type Request struct {
	Query       string
	DetailLevel intent.DetailLevel
	History     []prompt.ConversationTurn
	// ModeOverride forces a response mode (e.g. hybrid) instead of detection.
	ModeOverride mode.ResponseMode
}

// Metadata describes how the answer was produced.
type Metadata struct {
	Mode             mode.ResponseMode  `json:"mode"`
	ChunksRetrieved  int                `json:"chunks_retrieved"`
	RetrievalSkipped bool               `json:"retrieval_skipped"`
	DetectedLevel    intent.DetailLevel `json:"detected_level"`
	Degraded         bool               `json:"degraded"`
	Error            *PipelineError     `json:"error,omitempty"`
}

// Answer is the result of one turn. Tokens is finite and non-restartable; the
// consumer may stop reading at any time without leaking resources, since
// retrieval and prompting complete before streaming begins.
type Answer struct {
	Tokens    <-chan string
	Selection retrieval.Selection
	Metadata  Metadata
	// Validation yields at most one advisory result once the stream has been
	// fully consumed, then closes. Canned and failed streams close it empty.
	Validation <-chan validate.Result
}

// Generator is the LLM transport surface the orchestrator depends on.
type Generator interface {
	StreamCompletion(ctx context.Context, messages []llm.Message, p llm.GenParams) (<-chan llm.StreamToken, error)
}

// Retriever fetches scored candidates for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) []retrieval.Candidate
}

// Config holds the orchestrator's tunables.
type Config struct {
	TopK      int
	MMRLambda float64
}

// Orchestrator wires the pipeline stages together.
type Orchestrator struct {
	store     chunkstore.Store
	retriever Retriever
	builder   *prompt.Builder
	validator *validate.Validator
	llm       Generator
	topK      int
	mmrLambda float64
	log       *zap.Logger
}

func New(store chunkstore.Store, r Retriever, b *prompt.Builder, v *validate.Validator, gen Generator, cfg Config) *Orchestrator {
	o := &Orchestrator{
		store:     store,
		retriever: r,
		builder:   b,
		validator: v,
		llm:       gen,
		topK:      cfg.TopK,
		mmrLambda: cfg.MMRLambda,
		log:       logger.GetLogger(),
	}
	if o.topK <= 0 {
		o.topK = retrieval.DefaultTopK
	}
	if o.mmrLambda <= 0 || o.mmrLambda > 1 {
		o.mmrLambda = retrieval.DefaultMMRLambda
	}
	return o
}

// Answer runs one user turn end to end. It never returns an error: every
// failure path still yields a valid token stream, with the failure tagged in
// metadata.
func (o *Orchestrator) Answer(ctx context.Context, req Request) Answer {
	start := time.Now()
	state := StateClassifying
	o.logState(state, req.Query)

	level := intent.DetectDetailLevel(req.Query, req.DetailLevel)

	if intent.Classify(req.Query) == intent.IntentCasual {
		metrics.RetrievalSkipped.Inc()
		metrics.QueryTotal.WithLabelValues("casual").Inc()
		o.logState(StateDone, req.Query)
		return Answer{
			Tokens: cannedStream(casualReply),
			Metadata: Metadata{
				Mode:             mode.ModeCasual,
				RetrievalSkipped: true,
				DetectedLevel:    level,
			},
			Validation: closedValidation(),
		}
	}

	count, err := o.store.Count(ctx)
	if err != nil {
		o.log.Warn("chunk store count failed, treating as empty", zap.Error(err))
	}
	if count == 0 {
		metrics.QueryTotal.WithLabelValues("no_documents").Inc()
		o.logState(StateError, req.Query)
		return Answer{
			Tokens: cannedStream(noDocumentsReply),
			Metadata: Metadata{
				Mode:          mode.ModeNarrative,
				DetectedLevel: level,
				Error:         &PipelineError{Kind: ErrNoDocuments, Message: noDocumentsReply},
			},
			Validation: closedValidation(),
		}
	}

	state = StateRetrieving
	o.logState(state, req.Query)
	candidates := o.retriever.Retrieve(ctx, req.Query)
	metrics.ChunksRetrieved.Observe(float64(len(candidates)))

	meta := Metadata{ChunksRetrieved: len(candidates), DetectedLevel: level}

	var (
		messages  []llm.Message
		params    llm.GenParams
		selection retrieval.Selection
	)

	if len(candidates) == 0 {
		// Degraded path: no usable context, fall back to a best-effort
		// summary prompt at narrative-brief.
		meta.Degraded = true
		meta.Mode = mode.ModeNarrative
		level = intent.DetailBrief
		meta.DetectedLevel = level
		o.logState(StatePrompting, req.Query)
		messages, params = o.builder.BuildDegraded(req.Query, candidates, req.History)
	} else {
		state = StateSelecting
		o.logState(state, req.Query)
		selection = retrieval.SelectDiverse(candidates, o.topK, o.mmrLambda)

		state = StateModeDetect
		o.logState(state, req.Query)
		m := req.ModeOverride
		if m == "" {
			m = mode.Detect(req.Query, selection)
		}
		meta.Mode = m

		state = StatePrompting
		o.logState(state, req.Query)
		messages, params = o.builder.Build(req.Query, selection, m, level, req.History)
	}

	o.logState(StateStreaming, req.Query)
	tokens, validation, pipeErr := o.stream(ctx, messages, params, meta.Mode, level)
	meta.Error = pipeErr

	status := "ok"
	if pipeErr != nil {
		status = string(pipeErr.Kind)
	}
	metrics.QueryTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(string(meta.Mode)).Observe(time.Since(start).Seconds())

	return Answer{Tokens: tokens, Selection: selection, Metadata: meta, Validation: validation}
}

// stream starts generation, retrying once on a transport failure that is not
// a rate limit. Mid-stream failures after content has been emitted are not
// retried; the stream is closed with a trailing message instead.
func (o *Orchestrator) stream(ctx context.Context, messages []llm.Message, params llm.GenParams, m mode.ResponseMode, level intent.DetailLevel) (<-chan string, <-chan validate.Result, *PipelineError) {
	src, err := o.llm.StreamCompletion(ctx, messages, params)
	if err != nil {
		if errors.Is(err, llm.ErrRateLimited) {
			o.log.Warn("generation rate limited", zap.Error(err))
			return cannedStream(rateLimitedReply), closedValidation(), &PipelineError{Kind: ErrRateLimited, Message: rateLimitedReply}
		}
		o.log.Warn("generation failed, retrying once", zap.Error(err))
		src, err = o.llm.StreamCompletion(ctx, messages, params)
		if err != nil {
			if errors.Is(err, llm.ErrRateLimited) {
				return cannedStream(rateLimitedReply), closedValidation(), &PipelineError{Kind: ErrRateLimited, Message: rateLimitedReply}
			}
			o.log.Error("generation failed after retry", zap.Error(err))
			return cannedStream(generationFailedReply), closedValidation(), &PipelineError{Kind: ErrGenerationFailed, Message: generationFailedReply}
		}
	}

	out := make(chan string, 64)
	validation := make(chan validate.Result, 1)
	go o.forward(ctx, src, out, validation, m, level)
	return out, validation, nil
}

// forward relays tokens FIFO to the consumer, accumulating the full text for
// post-hoc validation. It stops producing once the consumer stops reading.
func (o *Orchestrator) forward(ctx context.Context, src <-chan llm.StreamToken, out chan<- string, validation chan<- validate.Result, m mode.ResponseMode, level intent.DetailLevel) {
	defer close(validation)
	defer close(out)

	var full strings.Builder
	for tok := range src {
		if tok.Err != nil {
			if errors.Is(tok.Err, llm.ErrRateLimited) {
				o.log.Warn("stream interrupted by rate limit", zap.Error(tok.Err))
				o.emit(ctx, out, "\n\n"+rateLimitedReply)
			} else {
				o.log.Error("stream interrupted", zap.Error(tok.Err))
				o.emit(ctx, out, "\n\n"+generationFailedReply)
			}
			return
		}
		if tok.Done {
			break
		}
		if tok.Content == "" {
			continue
		}
		full.WriteString(tok.Content)
		if !o.emit(ctx, out, tok.Content) {
			return
		}
	}

	// Advisory only: a violation is logged and counted, never withheld.
	validation <- o.validator.Check(full.String(), m, level)
}

func (o *Orchestrator) emit(ctx context.Context, out chan<- string, s string) bool {
	select {
	case out <- s:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) logState(s State, query string) {
	preview := query
	if len(preview) > 40 {
		preview = preview[:40]
	}
	o.log.Debug("pipeline state", zap.String("state", string(s)), zap.String("query", preview))
}

func cannedStream(msg string) <-chan string {
	ch := make(chan string, 1)
	ch <- msg
	close(ch)
	return ch
}

func closedValidation() <-chan validate.Result {
	ch := make(chan validate.Result)
	close(ch)
	return ch
}
