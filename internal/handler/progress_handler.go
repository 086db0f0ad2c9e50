package handler

import (
	"errors"
	"net/http"
	"strconv"

	"somahub/internal/middleware"
	"somahub/internal/models"
	"somahub/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ProgressHandler struct {
	progressSvc *service.ProgressService
}

func NewProgressHandler(progressSvc *service.ProgressService) *ProgressHandler {
	return &ProgressHandler{progressSvc: progressSvc}
}

func courseIDParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return 0, false
	}
	return uint(id), true
}

func (h *ProgressHandler) Get(c *gin.Context) {
	courseID, ok := courseIDParam(c)
	if !ok {
		return
	}
	p, err := h.progressSvc.Get(middleware.GetUserID(c), courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not enrolled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": p})
}

type progressUpdateRequest struct {
	Sections []models.SectionProgress `json:"sections" binding:"required"`
}

// Update merges a partial completion delta into the stored record. Clients
// send only the sections/chapters they touched; repeats are harmless.
func (h *ProgressHandler) Update(c *gin.Context) {
	courseID, ok := courseIDParam(c)
	if !ok {
		return
	}
	var req progressUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.progressSvc.ApplyUpdate(middleware.GetUserID(c), courseID, req.Sections)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not enrolled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update progress"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"progress": p})
}
