package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	messagedomain "github.com/tribewave/tribewave/internal/message/domain"
	"github.com/tribewave/tribewave/internal/segment"
)

type createMessageRequest struct {
	Title        string           `json:"title"`
	TemplateName string           `json:"template_name"`
	Language     string           `json:"language"`
	Params       map[string]any   `json:"params"`
	Audience     segment.Audience `json:"audience"`
	ScheduledAt  string           `json:"scheduled_at"`
}

func (s *Server) CreateMessage(c *gin.Context) {
	var req createMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, strings.TrimSpace(req.ScheduledAt))
	if err != nil {
		AbortWithError(c, newValidationError("scheduled_at", "invalid_scheduled_at", "invalid scheduled_at"))
		return
	}

	resp, err := s.messageSvc.Create(c.Request.Context(), messagedomain.CreateMessageRequest{
		Title:        req.Title,
		TemplateName: req.TemplateName,
		Language:     req.Language,
		Params:       req.Params,
		Audience:     req.Audience,
		ScheduledAt:  scheduledAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetMessageByID(c *gin.Context) {
	resp, err := s.messageSvc.GetByID(c.Request.Context(), messagedomain.GetMessageRequest{
		ID: c.Param("id"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListMessageDeliveries(c *gin.Context) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil || id == 0 {
		AbortWithError(c, messagedomain.ErrInvalidID)
		return
	}

	entries, err := s.deliveryLogs.ListByMessage(c.Request.Context(), s.db, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": entries})
}
