package handlers

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/xsuryanshx/cognitive-load/internal/models"
	"github.com/xsuryanshx/cognitive-load/internal/session"
)

// SessionHandler exposes the session/test-section lifecycle over HTTP.
type SessionHandler struct {
	log      *zap.Logger
	registry *session.Registry
	bank     *models.SentenceBank
}

func NewSessionHandler(log *zap.Logger, registry *session.Registry, bank *models.SentenceBank) *SessionHandler {
	return &SessionHandler{log: log, registry: registry, bank: bank}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet("user").(*models.User)
}

// CreateSession starts a new typing test sitting for the caller.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	user := currentUser(c)

	var req models.SessionCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session request"})
		return
	}

	result := h.registry.StartSession(user.UserID, user.Email, req.QuestionCount)

	c.JSON(http.StatusOK, models.SessionResponse{
		ParticipantID: result.ParticipantID,
		TestSectionID: result.TestSectionID,
		Message:       fmt.Sprintf("Session created successfully with %d questions", result.QuestionCount),
	})
}

// CreateTestSection opens a new test section for one sentence.
func (h *SessionHandler) CreateTestSection(c *gin.Context) {
	user := currentUser(c)

	var req models.TestSectionCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid test section request"})
		return
	}

	testSectionID, err := h.registry.OpenTestSection(req.ParticipantID, req.Sentence, user.UserID)
	if err != nil {
		h.abortRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, models.TestSectionResponse{
		TestSectionID: testSectionID,
		Message:       "Test section created successfully",
	})
}

// SubmitKeystrokes journals a keystroke batch and returns the next sequence
// id for the section.
func (h *SessionHandler) SubmitKeystrokes(c *gin.Context) {
	user := currentUser(c)

	var batch models.KeystrokeBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid keystroke batch"})
		return
	}

	result, err := h.registry.IngestKeystrokes(&batch, user.UserID)
	if err != nil {
		h.abortRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":           "Keystrokes saved successfully",
		"count":             result.Count,
		"next_keystroke_id": result.NextKeystrokeID,
	})
}

// SentenceComplete folds a finished sentence into the sitting's metrics.
func (h *SessionHandler) SentenceComplete(c *gin.Context) {
	user := currentUser(c)

	var batch models.KeystrokeBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid keystroke batch"})
		return
	}

	result, err := h.registry.CompleteSentence(&batch, user.UserID)
	if err != nil {
		h.abortRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":         "Sentence completed",
		"keystroke_count": result.KeystrokeCount,
		"sentence_wpm":    math.Round(result.SentenceWPM*100) / 100,
		"rhythm":          result.Rhythm,
	})
}

// EndTest finalizes the sitting and releases all in-memory state for it.
func (h *SessionHandler) EndTest(c *gin.Context) {
	user := currentUser(c)

	var req models.EndTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end test request"})
		return
	}

	result, err := h.registry.EndTest(req.ParticipantID, req.TestSectionIDs, user.UserID)
	if err != nil {
		h.abortRegistryError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":          "Test ended successfully",
		"total_sentences":  result.SentenceCount,
		"total_keystrokes": result.TotalKeystrokes,
		"average_wpm":      math.Round(result.AverageWPM*100) / 100,
	})
}

// SessionStats serves the read-only snapshot for one test section.
func (h *SessionHandler) SessionStats(c *gin.Context) {
	stats, err := h.registry.SectionStats(c.Param("test_section_id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Sentences returns a shuffled selection of typing prompts.
func (h *SessionHandler) Sentences(c *gin.Context) {
	count := 10
	var req struct {
		Count int `form:"count" binding:"omitempty,min=1,max=50"`
	}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid count"})
		return
	}
	if req.Count > 0 {
		count = req.Count
	}
	c.JSON(http.StatusOK, gin.H{"sentences": h.bank.Pick(count)})
}

func (h *SessionHandler) abortRegistryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized participant"})
	case errors.Is(err, session.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		h.log.Error("Session operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
