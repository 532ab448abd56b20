package handlers

import (
	"fmt"
	"strconv"
	"time"

	"city311-api/models"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// PaginationParams select one page of model runs, newest first. Before is the
// started_at cursor of the previous page.
type PaginationParams struct {
	Limit  int
	Before *time.Time
	Status string
}

type CursorResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
	HasMore    bool        `json:"has_more"`
}

// ParsePagination reads limit, before and status from the query string. A bad
// limit falls back to the default; a bad cursor or status is an error.
func ParsePagination(c *gin.Context) (PaginationParams, error) {
	p := PaginationParams{Limit: DefaultLimit}

	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			p.Limit = min(l, MaxLimit)
		}
	}

	if beforeStr := c.Query("before"); beforeStr != "" {
		t, err := time.Parse(time.RFC3339Nano, beforeStr)
		if err != nil {
			return p, fmt.Errorf("invalid cursor %q", beforeStr)
		}
		p.Before = &t
	}

	switch p.Status = c.Query("status"); p.Status {
	case "", models.RunStarted, models.RunSucceeded, models.RunFailed:
	default:
		return p, fmt.Errorf("invalid status filter %q", p.Status)
	}

	return p, nil
}

func (p PaginationParams) cacheKey() string {
	before := ""
	if p.Before != nil {
		before = p.Before.UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("runs:list:%s:%d:%s", p.Status, p.Limit, before)
}

// runsPage trims a query result fetched with Limit+1 rows into a page.
func runsPage(rows []models.ModelRun, limit int) CursorResponse {
	resp := CursorResponse{HasMore: len(rows) > limit}
	if resp.HasMore {
		rows = rows[:limit]
		resp.NextCursor = rows[len(rows)-1].StartedAt.Format(time.RFC3339Nano)
	}
	if rows == nil {
		rows = []models.ModelRun{}
	}
	resp.Data = rows
	return resp
}
