package handlers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docshare/backend/internal/graph/neo4j"
	"github.com/docshare/backend/internal/ingestion"
	"github.com/docshare/backend/internal/moderation"
	"github.com/docshare/backend/internal/storage/models"
	"github.com/docshare/backend/internal/storage/sqlite"
	"github.com/docshare/backend/pkg/config"
	"github.com/docshare/backend/pkg/logger"
)

// ModerationHandler serves document submission and the moderation review
// surface.
type ModerationHandler struct {
	engine        *moderation.Engine
	fingerprinter *ingestion.Fingerprinter
	store         *sqlite.Client
	graph         *neo4j.Client
}

func NewModerationHandler(engine *moderation.Engine, fingerprinter *ingestion.Fingerprinter, store *sqlite.Client, graph *neo4j.Client) *ModerationHandler {
	return &ModerationHandler{
		engine:        engine,
		fingerprinter: fingerprinter,
		store:         store,
		graph:         graph,
	}
}

func (h *ModerationHandler) SubmitDocument(c *fiber.Ctx) error {
	var req struct {
		OwnerID     string `json:"owner_id"`
		HTMLContent string `json:"html_content"`
		Visibility  string `json:"visibility"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.OwnerID == "" || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "owner_id and html_content are required",
		})
	}
	if req.Visibility == "" {
		req.Visibility = "private"
	}

	fp, err := h.fingerprinter.Fingerprint(req.HTMLContent)
	if err != nil {
		logger.Warn("Failed to fingerprint document", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document content could not be processed",
		})
	}

	now := time.Now()
	doc := &models.Document{
		ID:          uuid.New().String(),
		OwnerID:     req.OwnerID,
		Title:       fp.Title,
		ContentHash: fp.ContentHash,
		CleanText:   fp.CleanText,
		TokenSet:    fp.TokenSet,
		Visibility:  req.Visibility,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	record, err := h.engine.Submit(c.Context(), doc)
	if err != nil {
		logger.Error("Failed to evaluate document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"document":   doc,
		"moderation": record,
	})
}

func (h *ModerationHandler) ResubmitDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")

	var req struct {
		HTMLContent string `json:"html_content"`
	}
	if err := c.BodyParser(&req); err != nil || req.HTMLContent == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "html_content is required",
		})
	}

	existing, err := h.store.GetDocument(documentID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Document not found",
			})
		}
		logger.Error("Failed to load document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load document",
		})
	}

	fp, err := h.fingerprinter.Fingerprint(req.HTMLContent)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Document content could not be processed",
		})
	}

	doc := &models.Document{
		ID:          existing.ID,
		OwnerID:     existing.OwnerID,
		Title:       fp.Title,
		ContentHash: fp.ContentHash,
		CleanText:   fp.CleanText,
		TokenSet:    fp.TokenSet,
		Visibility:  existing.Visibility,
		CreatedAt:   existing.CreatedAt,
		UpdatedAt:   time.Now(),
	}

	record, err := h.engine.Resubmit(c.Context(), doc)
	if err != nil {
		logger.Error("Failed to re-evaluate document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process document",
		})
	}

	return c.JSON(fiber.Map{
		"document":   doc,
		"moderation": record,
	})
}

// GetModeration returns the latest moderation record for a document plus
// every similarity match recorded against it.
func (h *ModerationHandler) GetModeration(c *fiber.Ctx) error {
	documentID := c.Params("documentId")

	record, err := h.store.GetLatestModerationRecord(documentID)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No moderation record for document",
			})
		}
		logger.Error("Failed to load moderation record", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load moderation record",
		})
	}

	matches, err := h.store.GetMatchesByDocument(documentID)
	if err != nil {
		logger.Error("Failed to load similarity matches", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load similarity matches",
		})
	}

	return c.JSON(fiber.Map{
		"moderation": record,
		"matches":    matches,
	})
}

func (h *ModerationHandler) RecordDecision(c *fiber.Ctx) error {
	documentID := c.Params("documentId")

	var req struct {
		Action string `json:"action"`
		Notes  string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil || req.Action == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "action is required",
		})
	}

	record, err := h.engine.RecordHumanDecision(c.Context(), documentID, req.Action, req.Notes)
	if err != nil {
		if errors.Is(err, sqlite.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "No moderation record for document",
			})
		}
		logger.Error("Failed to record decision", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"moderation": record,
	})
}

func (h *ModerationHandler) ResolveMatch(c *fiber.Ctx) error {
	matchID := c.Params("matchId")

	var req struct {
		Decision string `json:"decision"`
		Notes    string `json:"notes"`
	}
	if err := c.BodyParser(&req); err != nil || req.Decision == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "decision is required",
		})
	}

	match, err := h.engine.ResolveMatch(c.Context(), matchID, req.Decision, req.Notes)
	if err != nil {
		switch {
		case errors.Is(err, sqlite.ErrNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Similarity match not found",
			})
		case errors.Is(err, sqlite.ErrMatchResolved):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "Similarity match already resolved",
			})
		default:
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	return c.JSON(fiber.Map{
		"match": match,
	})
}

// GetDuplicates walks the duplicate graph for documents transitively
// confirmed as copies of the given one.
func (h *ModerationHandler) GetDuplicates(c *fiber.Ctx) error {
	documentID := c.Params("id")

	if h.graph == nil {
		return c.JSON(fiber.Map{
			"document_id": documentID,
			"duplicates":  []interface{}{},
		})
	}

	duplicates, err := h.graph.GetDuplicates(c.Context(), documentID)
	if err != nil {
		logger.Error("Failed to query duplicate graph", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to query duplicates",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"duplicates":  duplicates,
	})
}

func (h *ModerationHandler) GetPolicy(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"policy": h.engine.Policy(),
	})
}

// UpdatePolicy swaps the decision thresholds at runtime. An invalid policy is
// refused and the active one stays in effect.
func (h *ModerationHandler) UpdatePolicy(c *fiber.Ctx) error {
	var policy config.ModerationConfig
	if err := c.BodyParser(&policy); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.engine.SetPolicy(policy); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(fiber.Map{
		"policy": h.engine.Policy(),
	})
}
