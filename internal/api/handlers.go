package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sympfindx-server/internal/domain"
	"github.com/sympfindx-server/internal/middleware"
	"github.com/sympfindx-server/internal/service"
)

// statusForCode maps engine error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case domain.CodeInvalidObservation, domain.CodeWeightMismatch, domain.CodeInvalidInput:
		return http.StatusBadRequest
	case domain.CodeCaseNotFound:
		return http.StatusNotFound
	case domain.CodeAlreadyReviewed:
		return http.StatusConflict
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders an engine error as a structured JSON response.
func (s *Server) writeError(c *gin.Context, err error) {
	code := domain.CodeForError(err)
	status := statusForCode(code)

	if status == http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Request.URL.Path).Error("Request failed")
	}

	c.JSON(status, domain.NewAPIError(code, err.Error(), "", c.GetString("correlation_id")))
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK

	if err := s.store.Health(c.Request.Context()); err != nil {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
		s.logger.WithError(err).Warn("Case store health check failed")
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC(),
	})
}

// handleAnalyze runs the triage pipeline on one submission.
func (s *Server) handleAnalyze(c *gin.Context) {
	var req service.AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.CodeInvalidInput, "invalid request body", err.Error(),
			c.GetString("correlation_id")))
		return
	}

	record, err := s.triage.Analyze(c.Request.Context(), middleware.ActorFrom(c), &req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, record)
}

// handleHistory lists the caller's own cases.
func (s *Server) handleHistory(c *gin.Context) {
	limit, offset := pageParams(c)

	cases, err := s.triage.History(c.Request.Context(), middleware.ActorFrom(c), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

// handleGetCase returns one case, subject to read access.
func (s *Server) handleGetCase(c *gin.Context) {
	record, err := s.triage.GetCase(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handlePendingCases returns the specialist review queue. The queue holds
// routing-recommended cases unless the caller opts out with
// ?recommended=false, and sorts newest first unless ?sort=oldest.
func (s *Server) handlePendingCases(c *gin.Context) {
	limit, offset := pageParams(c)
	recommendedOnly := c.DefaultQuery("recommended", "true") != "false"
	newestFirst := c.DefaultQuery("sort", "newest") != "oldest"

	cases, err := s.review.PendingCases(c.Request.Context(), middleware.ActorFrom(c), recommendedOnly, newestFirst, limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

// handleClaimCase claims a pending case for the calling specialist.
func (s *Server) handleClaimCase(c *gin.Context) {
	record, err := s.review.ClaimCase(c.Request.Context(), middleware.ActorFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleSubmitReview records a specialist review.
func (s *Server) handleSubmitReview(c *gin.Context) {
	var submission domain.ReviewSubmission
	if err := c.ShouldBindJSON(&submission); err != nil {
		c.JSON(http.StatusBadRequest, domain.NewAPIError(
			domain.CodeInvalidInput, "invalid request body", err.Error(),
			c.GetString("correlation_id")))
		return
	}

	record, err := s.review.SubmitReview(c.Request.Context(), middleware.ActorFrom(c), &submission)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// handleReviewedCases lists the calling specialist's completed reviews.
func (s *Server) handleReviewedCases(c *gin.Context) {
	limit, offset := pageParams(c)

	cases, err := s.review.ReviewedCases(c.Request.Context(), middleware.ActorFrom(c), limit, offset)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cases": cases, "count": len(cases)})
}

// handleStats returns the calling specialist's workload statistics.
func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.review.Stats(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// pageParams parses limit/offset query parameters, leaving zero values for
// the service layer to normalize.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	return limit, offset
}
