package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"claimverifier-backend/models"
	"claimverifier-backend/repository"
	"claimverifier-backend/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VerificationHandler handles HTTP requests for the claim verification pipeline
type VerificationHandler struct {
	extraction   *service.ExtractionService
	indexing     *service.IndexService
	retrieval    *service.RetrievalService
	verification *service.VerificationService
	claims       service.ClaimStore
	verdicts     service.VerdictStore
	jobs         service.JobStore
}

// NewVerificationHandler creates a new verification handler
func NewVerificationHandler(
	extraction *service.ExtractionService,
	indexing *service.IndexService,
	retrieval *service.RetrievalService,
	verification *service.VerificationService,
	claims service.ClaimStore,
	verdicts service.VerdictStore,
	jobs service.JobStore,
) *VerificationHandler {
	return &VerificationHandler{
		extraction:   extraction,
		indexing:     indexing,
		retrieval:    retrieval,
		verification: verification,
		claims:       claims,
		verdicts:     verdicts,
		jobs:         jobs,
	}
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

// scopeFromQuery reads the ticker/year/quarter triple common to the
// scope-level endpoints.
func scopeFromQuery(c *gin.Context) (service.Scope, bool) {
	ticker := c.Query("ticker")
	year, errY := strconv.Atoi(c.Query("year"))
	quarter, errQ := strconv.Atoi(c.Query("quarter"))
	if ticker == "" || errY != nil || errQ != nil || quarter < 1 || quarter > 4 {
		errorResponse(c, http.StatusBadRequest, "INVALID_SCOPE", "ticker, year and quarter (1-4) query parameters are required")
		return service.Scope{}, false
	}
	return service.Scope{Ticker: ticker, Year: year, Quarter: quarter}, true
}

// ExtractClaims handles POST /api/transcripts/extract
func (h *VerificationHandler) ExtractClaims(c *gin.Context) {
	var transcript models.Transcript
	if err := c.ShouldBindJSON(&transcript); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if transcript.Ticker == "" || transcript.Quarter < 1 || transcript.Quarter > 4 {
		errorResponse(c, http.StatusBadRequest, "INVALID_SCOPE", "transcript must carry ticker, year and quarter (1-4)")
		return
	}

	result, err := h.extraction.ExtractTranscript(c.Request.Context(), &transcript)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "EXTRACTION_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    result,
	})
}

// IndexFiling handles POST /api/filings/index
func (h *VerificationHandler) IndexFiling(c *gin.Context) {
	var doc models.FilingDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	stats, err := h.indexing.IndexFiling(c.Request.Context(), &doc)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "INDEXING_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// ListClaims handles GET /api/claims?ticker=&year=&quarter=
func (h *VerificationHandler) ListClaims(c *gin.Context) {
	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	claims, err := h.claims.ListByScope(c.Request.Context(), scope.Ticker, scope.Year, scope.Quarter)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    claims,
	})
}

// GetClaim handles GET /api/claims/:id
func (h *VerificationHandler) GetClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid claim ID format")
		return
	}

	claim, err := h.claims.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Claim not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    claim,
	})
}

// VerifyClaim handles POST /api/claims/:id/verify
func (h *VerificationHandler) VerifyClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid claim ID format")
		return
	}

	verdict, err := h.verification.VerifyClaim(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Claim not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "VERIFICATION_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    verdict,
	})
}

// GetVerdict handles GET /api/claims/:id/verdict
func (h *VerificationHandler) GetVerdict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid claim ID format")
		return
	}

	verdict, err := h.verdicts.GetByClaimID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "NOT_FOUND", "No verdict exists for this claim")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    verdict,
	})
}

// StartBatchRequest represents the request body for starting a batch run
type StartBatchRequest struct {
	Ticker  string `json:"ticker" binding:"required"`
	Year    int    `json:"year" binding:"required"`
	Quarter int    `json:"quarter" binding:"required"`
}

// StartBatch handles POST /api/verify/batch
func (h *VerificationHandler) StartBatch(c *gin.Context) {
	var req StartBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if req.Quarter < 1 || req.Quarter > 4 {
		errorResponse(c, http.StatusBadRequest, "INVALID_SCOPE", "quarter must be between 1 and 4")
		return
	}

	jobID, err := h.verification.StartBatch(c.Request.Context(), service.Scope{
		Ticker:  req.Ticker,
		Year:    req.Year,
		Quarter: req.Quarter,
	})
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "BATCH_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"job_id":  jobID,
			"status":  "pending",
			"message": "Verification job created. Poll /api/jobs/:id for updates.",
		},
	})
}

// GetJobStatus handles GET /api/jobs/:id
func (h *VerificationHandler) GetJobStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ID", "Invalid job ID format")
		return
	}

	job, err := h.jobs.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Verification job not found")
			return
		}
		errorResponse(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    job,
	})
}

// ListVerdicts handles GET /api/verdicts?ticker=&year=&quarter=
func (h *VerificationHandler) ListVerdicts(c *gin.Context) {
	scope, ok := scopeFromQuery(c)
	if !ok {
		return
	}

	verdicts, err := h.verdicts.ListByScope(c.Request.Context(), scope.Ticker, scope.Year, scope.Quarter)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "RETRIEVAL_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    verdicts,
	})
}

// SearchRequest represents the request body for an evidence search
type SearchRequest struct {
	Ticker  string `json:"ticker" binding:"required"`
	Year    int    `json:"year" binding:"required"`
	Quarter int    `json:"quarter" binding:"required"`
	Query   string `json:"query" binding:"required"`
}

// SearchEvidence handles POST /api/search
func (h *VerificationHandler) SearchEvidence(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	candidates, err := h.retrieval.Search(c.Request.Context(), service.Scope{
		Ticker:  req.Ticker,
		Year:    req.Year,
		Quarter: req.Quarter,
	}, req.Query)
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "SEARCH_FAILED", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    candidates,
	})
}
