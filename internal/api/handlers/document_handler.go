package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/docsense/backend/internal/cache/redis"
	"github.com/docsense/backend/internal/ingestion"
	"github.com/docsense/backend/internal/storage/sqlite"
	"github.com/docsense/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	db        *sqlite.Client
	cache     *redis.Client
}

func NewDocumentHandler(processor *ingestion.Processor, db *sqlite.Client, cache *redis.Client) *DocumentHandler {
	return &DocumentHandler{processor: processor, db: db, cache: cache}
}

// UploadDocuments ingests one or more multipart files under the "files" field.
func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		logger.Error("Failed to parse multipart form", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Multipart form with a 'files' field is required",
		})
	}

	files := form.File["files"]
	if len(files) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one file is required",
		})
	}

	type uploadResult struct {
		Name   string `json:"name"`
		Chunks int    `json:"chunks,omitempty"`
		Error  string `json:"error,omitempty"`
	}

	results := make([]uploadResult, 0, len(files))
	processed := 0

	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			results = append(results, uploadResult{Name: fh.Filename, Error: "failed to open file"})
			continue
		}

		doc, err := ingestion.NewReaderDocument(fh.Filename, f)
		f.Close()
		if err != nil {
			results = append(results, uploadResult{Name: fh.Filename, Error: "failed to read file"})
			continue
		}

		chunks, err := h.processor.ProcessDocument(c.Context(), doc)
		if err != nil {
			logger.Error("Failed to process document",
				zap.String("name", fh.Filename), zap.Error(err))
			results = append(results, uploadResult{Name: fh.Filename, Error: "failed to process document"})
			continue
		}

		processed++
		results = append(results, uploadResult{Name: fh.Filename, Chunks: chunks})
	}

	// Existing cached answers were generated against the old corpus.
	if h.cache != nil && processed > 0 {
		if err := h.cache.InvalidateAnswers(c.Context()); err != nil {
			logger.Warn("failed to invalidate answer cache", zap.Error(err))
		}
	}

	status := fiber.StatusOK
	if processed == 0 {
		status = fiber.StatusUnprocessableEntity
	}

	return c.Status(status).JSON(fiber.Map{
		"processed": processed,
		"results":   results,
	})
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.db.ListDocuments()
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list documents",
		})
	}

	return c.JSON(fiber.Map{"documents": docs})
}

// ClearDocuments drops the vector index, relational records, and cached
// answers.
func (h *DocumentHandler) ClearDocuments(c *fiber.Ctx) error {
	if err := h.processor.ClearAll(c.Context()); err != nil {
		logger.Error("Failed to clear documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear documents",
		})
	}

	if h.cache != nil {
		if err := h.cache.InvalidateAnswers(c.Context()); err != nil {
			logger.Warn("failed to invalidate answer cache", zap.Error(err))
		}
	}

	return c.JSON(fiber.Map{"message": "All documents cleared"})
}
