package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/pagenode-backend/internal/repos"
)

type SettingsHandler struct {
	settings repos.SettingRepo
}

func NewSettingsHandler(settings repos.SettingRepo) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (sh *SettingsHandler) List(c *gin.Context) {
	all, err := sh.settings.All(c.Request.Context(), nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, all)
}

type settingRequest struct {
	Key   string `json:"key" binding:"required"`
	Value string `json:"value"`
}

func (sh *SettingsHandler) Update(c *gin.Context) {
	var body settingRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "key must not be blank"})
		return
	}
	if err := sh.settings.Set(c.Request.Context(), nil, key, body.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": body.Value})
}
