package handler

import (
	"net/http"
	"strconv"

	"somahub/internal/middleware"
	"somahub/internal/models"
	"somahub/internal/repository"

	"github.com/gin-gonic/gin"
)

type CourseHandler struct {
	courseRepo *repository.CourseRepository
}

func NewCourseHandler(courseRepo *repository.CourseRepository) *CourseHandler {
	return &CourseHandler{courseRepo: courseRepo}
}

func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courseRepo.ListPublished()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list courses"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"courses": courses})
}

func (h *CourseHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid course id"})
		return
	}
	course, err := h.courseRepo.GetByID(uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "course not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"course": course})
}

type createCourseRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	Instructor  string `json:"instructor"`
	PriceCents  int64  `json:"price_cents" binding:"min=0"`
	Currency    string `json:"currency"`
	Published   bool   `json:"published"`
	Sections    []struct {
		Title    string `json:"title" binding:"required"`
		Chapters []struct {
			Title    string `json:"title" binding:"required"`
			VideoURL string `json:"video_url"`
		} `json:"chapters"`
	} `json:"sections"`
}

// Create builds a course with its section/chapter structure. Admin only; the
// structure laid down here is what settlement seeds progress records from.
func (h *CourseHandler) Create(c *gin.Context) {
	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Currency == "" {
		req.Currency = "KES"
	}
	course := &models.Course{
		Title:       req.Title,
		Description: req.Description,
		Instructor:  req.Instructor,
		PriceCents:  req.PriceCents,
		Currency:    req.Currency,
		Published:   req.Published,
	}
	for i, sec := range req.Sections {
		s := models.Section{Title: sec.Title, Position: i}
		for j, ch := range sec.Chapters {
			s.Chapters = append(s.Chapters, models.Chapter{Title: ch.Title, VideoURL: ch.VideoURL, Position: j})
		}
		course.Sections = append(course.Sections, s)
	}
	if err := h.courseRepo.Create(course); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "course create failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"course": course})
}

// MyEnrollments lists the authenticated user's enrollments.
func (h *CourseHandler) MyEnrollments(c *gin.Context) {
	userID := middleware.GetUserID(c)
	enrollments, err := h.courseRepo.ListEnrollments(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list enrollments"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"enrollments": enrollments})
}
