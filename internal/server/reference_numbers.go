package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	referencedomain "github.com/smallbiznis/rentledger/internal/reference/domain"
)

type issueReferenceRequest struct {
	Kind string `json:"kind"`
	At   string `json:"at"`
}

// IssueReferenceNumber claims the next reference number for document
// families whose records live outside the ledger, such as offer letters.
func (s *Server) IssueReferenceNumber(c *gin.Context) {
	var req issueReferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	kind := referencedomain.Kind(strings.ToUpper(strings.TrimSpace(req.Kind)))
	if kind == "" {
		AbortWithError(c, newValidationError("kind", "required", "kind is required"))
		return
	}
	at, err := parseDate("at", req.At)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if at.IsZero() {
		at = s.clock.Now()
	}

	value, err := s.references.Next(c.Request.Context(), s.db.WithContext(c.Request.Context()), kind, at)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": gin.H{
		"kind":             kind,
		"reference_number": value,
	}})
}
