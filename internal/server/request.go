package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return 0, newValidationError(name, "invalid_id", "invalid id")
	}
	return id, nil
}

func parseOptionalID(field, raw string) (*snowflake.ID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := snowflake.ParseString(raw)
	if err != nil || id <= 0 {
		return nil, newValidationError(field, "invalid_id", "invalid id")
	}
	return &id, nil
}

// parseDate accepts a calendar date or an RFC 3339 timestamp. An empty
// value yields the zero time so callers can apply their own default.
func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, newValidationError(field, "invalid_date", "expected YYYY-MM-DD or RFC 3339")
	}
	return t.UTC(), nil
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}
