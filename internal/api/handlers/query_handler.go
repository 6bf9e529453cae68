package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/cache/redis"
	"github.com/docsense/backend/internal/intent"
	"github.com/docsense/backend/internal/mode"
	"github.com/docsense/backend/internal/orchestrator"
	"github.com/docsense/backend/internal/prompt"
	"github.com/docsense/backend/internal/storage/models"
	"github.com/docsense/backend/internal/storage/sqlite"
	"github.com/docsense/backend/pkg/logger"
)

// QueryRequest is the HTTP request body for a query.
type QueryRequest struct {
	Query       string                    `json:"query"`
	DetailLevel string                    `json:"detail_level"`
	Mode        string                    `json:"mode"`
	History     []prompt.ConversationTurn `json:"history"`
}

// SourceRef describes one selected chunk in a response.
type SourceRef struct {
	ChunkID      string  `json:"chunk_id"`
	Source       string  `json:"source"`
	Similarity   float64 `json:"similarity"`
	IsStructured bool    `json:"is_structured"`
}

// QueryResponse is the drained, non-streaming form of an answer.
type QueryResponse struct {
	ID        string                `json:"id"`
	Query     string                `json:"query"`
	Answer    string                `json:"answer"`
	Sources   []SourceRef           `json:"sources"`
	Metadata  orchestrator.Metadata `json:"metadata"`
	LatencyMS int                   `json:"latency_ms"`
}

type QueryHandler struct {
	orch      *orchestrator.Orchestrator
	db        *sqlite.Client
	cache     *redis.Client
	answerTTL time.Duration
}

// NewQueryHandler builds the handler. cache may be nil; caching is then
// skipped entirely.
func NewQueryHandler(orch *orchestrator.Orchestrator, db *sqlite.Client, cache *redis.Client, answerTTL time.Duration) *QueryHandler {
	return &QueryHandler{orch: orch, db: db, cache: cache, answerTTL: answerTTL}
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Query is required",
		})
	}

	cacheKey := redis.HashText(req.Query + "|" + req.DetailLevel + "|" + req.Mode)
	if h.cache != nil && len(req.History) == 0 {
		var cached QueryResponse
		if hit, err := h.cache.GetAnswer(c.Context(), cacheKey, &cached); err == nil && hit {
			return c.JSON(cached)
		}
	}

	start := time.Now()
	answer := h.orch.Answer(c.Context(), orchestrator.Request{
		Query:        req.Query,
		DetailLevel:  parseDetailLevel(req.DetailLevel),
		History:      req.History,
		ModeOverride: parseModeOverride(req.Mode),
	})

	var full strings.Builder
	for token := range answer.Tokens {
		full.WriteString(token)
	}

	resp := QueryResponse{
		ID:        uuid.NewString(),
		Query:     req.Query,
		Answer:    full.String(),
		Sources:   sourceRefs(answer),
		Metadata:  answer.Metadata,
		LatencyMS: int(time.Since(start).Milliseconds()),
	}

	h.record(resp, answer)

	cacheable := answer.Metadata.Error == nil && answer.Metadata.Mode != mode.ModeCasual
	if h.cache != nil && len(req.History) == 0 && cacheable {
		if err := h.cache.SetAnswer(c.Context(), cacheKey, resp, h.answerTTL); err != nil {
			logger.Debug("answer cache write failed", zap.Error(err))
		}
	}

	return c.JSON(resp)
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := h.db.GetQueryHistory(limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}

	return c.JSON(fiber.Map{"history": records})
}

// record persists the query outcome and, when present, the advisory
// validation result. Persistence failures are logged, never surfaced.
func (h *QueryHandler) record(resp QueryResponse, answer orchestrator.Answer) {
	errorKind := ""
	if answer.Metadata.Error != nil {
		errorKind = string(answer.Metadata.Error.Kind)
	}

	rec := &models.QueryRecord{
		ID:               resp.ID,
		QueryText:        resp.Query,
		Mode:             string(answer.Metadata.Mode),
		DetailLevel:      string(answer.Metadata.DetectedLevel),
		ChunksRetrieved:  answer.Metadata.ChunksRetrieved,
		RetrievalSkipped: answer.Metadata.RetrievalSkipped,
		Degraded:         answer.Metadata.Degraded,
		ErrorKind:        errorKind,
		LatencyMS:        resp.LatencyMS,
		CreatedAt:        time.Now(),
	}
	if err := h.db.InsertQueryRecord(rec); err != nil {
		logger.Warn("failed to record query", zap.Error(err))
		return
	}

	if result, ok := <-answer.Validation; ok {
		vr := &models.ValidationResult{
			QueryID:   resp.ID,
			Mode:      string(answer.Metadata.Mode),
			Valid:     result.Valid,
			Reason:    result.Reason,
			CreatedAt: time.Now(),
		}
		if err := h.db.InsertValidationResult(vr); err != nil {
			logger.Warn("failed to record validation result", zap.Error(err))
		}
	}
}

func sourceRefs(answer orchestrator.Answer) []SourceRef {
	refs := make([]SourceRef, 0, len(answer.Selection))
	for _, c := range answer.Selection {
		refs = append(refs, SourceRef{
			ChunkID:      c.Chunk.ID,
			Source:       c.Chunk.Source,
			Similarity:   c.Similarity,
			IsStructured: c.Chunk.IsStructured,
		})
	}
	return refs
}

func parseDetailLevel(s string) intent.DetailLevel {
	switch intent.DetailLevel(strings.ToLower(s)) {
	case intent.DetailBrief:
		return intent.DetailBrief
	case intent.DetailDetailed:
		return intent.DetailDetailed
	default:
		return intent.DetailAuto
	}
}

func parseModeOverride(s string) mode.ResponseMode {
	if mode.ResponseMode(strings.ToLower(s)) == mode.ModeHybrid {
		return mode.ModeHybrid
	}
	return ""
}
