package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/learning/sm2"
	"github.com/yungbote/pagenode-backend/internal/services"
)

type QuizHandler struct {
	reviews services.ReviewService
}

func NewQuizHandler(reviews services.ReviewService) *QuizHandler {
	return &QuizHandler{reviews: reviews}
}

func (qh *QuizHandler) ListDue(c *gin.Context) {
	limit := intQuery(c, "limit", 20)
	docID := optionalUUIDQuery(c, "doc_id")

	items, err := qh.reviews.ListDue(c.Request.Context(), docID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

type reviewRequest struct {
	Grade *int `json:"grade" binding:"required"`
}

func (qh *QuizHandler) Review(c *gin.Context) {
	id, ok := pathUUID(c, "card_id")
	if !ok {
		return
	}
	var body reviewRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "grade is required"})
		return
	}

	result, err := qh.reviews.SubmitReview(c.Request.Context(), id, sm2.Grade(*body.Grade))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidGrade):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Flashcard not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

func (qh *QuizHandler) ListCards(c *gin.Context) {
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)
	docID := optionalUUIDQuery(c, "doc_id")

	items, total, err := qh.reviews.ListCards(c.Request.Context(), docID, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (qh *QuizHandler) Stats(c *gin.Context) {
	stats, err := qh.reviews.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (qh *QuizHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "card_id")
	if !ok {
		return
	}
	card, err := qh.reviews.GetCard(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Flashcard not found")
		return
	}
	c.JSON(http.StatusOK, card)
}

type cardUpdateRequest struct {
	Question string `json:"question" binding:"required"`
	Answer   string `json:"answer" binding:"required"`
}

func (qh *QuizHandler) Update(c *gin.Context) {
	id, ok := pathUUID(c, "card_id")
	if !ok {
		return
	}
	var body cardUpdateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	card, err := qh.reviews.UpdateCard(c.Request.Context(), id, body.Question, body.Answer)
	if err != nil {
		respondServiceError(c, err, "Flashcard not found")
		return
	}
	c.JSON(http.StatusOK, card)
}

func (qh *QuizHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "card_id")
	if !ok {
		return
	}
	if err := qh.reviews.DeleteCard(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "Flashcard not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func optionalUUIDQuery(c *gin.Context, name string) *uuid.UUID {
	raw := c.Query(name)
	if raw == "" {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
