package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/pagenode-backend/internal/services"
)

type DocumentHandler struct {
	documents services.DocumentService
}

func NewDocumentHandler(documents services.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

func (dh *DocumentHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file field is required"})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, err := dh.documents.Upload(c.Request.Context(), fileHeader.Filename, content)
	if err != nil {
		var dup *services.DuplicateError
		switch {
		case errors.Is(err, services.ErrUnsupportedFileType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, gin.H{
				"error":                "duplicate file",
				"existing_document_id": dup.ExistingID.String(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, doc)
}

func (dh *DocumentHandler) List(c *gin.Context) {
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)

	items, total, err := dh.documents.List(c.Request.Context(), offset, limit)
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

func (dh *DocumentHandler) Get(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	doc, err := dh.documents.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Document not found")
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (dh *DocumentHandler) Update(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	var body map[string]any
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := dh.documents.Update(c.Request.Context(), id, body)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Document not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (dh *DocumentHandler) Delete(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	if err := dh.documents.Delete(c.Request.Context(), id); err != nil {
		respondServiceError(c, err, "Document not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (dh *DocumentHandler) Status(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	info, err := dh.documents.Status(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Document not found")
		return
	}
	c.JSON(http.StatusOK, info)
}

func (dh *DocumentHandler) ListChunks(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)

	items, total, err := dh.documents.ListChunks(c.Request.Context(), id, offset, limit)
	if err != nil {
		respondServiceError(c, err, "Document not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"items":  items,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (dh *DocumentHandler) ListToc(c *gin.Context) {
	id, ok := pathUUID(c, "doc_id")
	if !ok {
		return
	}
	items, err := dh.documents.ListToc(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err, "Document not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// --- shared helpers ---

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func respondServiceError(c *gin.Context, err error, notFoundMsg string) {
	if errors.Is(err, services.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMsg})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
