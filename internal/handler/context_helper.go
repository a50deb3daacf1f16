package handler

import (
	"time"

	"github.com/gin-gonic/gin"
)

// actorFrom resolves the acting identity for audit rows. Authentication is
// handled upstream by the gateway, which forwards the identity in a header.
func actorFrom(c *gin.Context) string {
	if actor := c.GetHeader("X-Actor-ID"); actor != "" {
		return actor
	}
	return "system"
}

// parseDate parses a YYYY-MM-DD path or query value as a UTC day.
func parseDate(value string) (time.Time, error) {
	return time.Parse("2006-01-02", value)
}

// parseMonth parses a YYYY-MM query value.
func parseMonth(value string) (int, time.Month, error) {
	t, err := time.Parse("2006-01", value)
	if err != nil {
		return 0, 0, err
	}
	return t.Year(), t.Month(), nil
}
