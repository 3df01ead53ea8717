// Package pagination extracts cursor pagination parameters from
// requests and shapes paginated responses. Cursors are opaque resume
// tokens issued by the repositories; this package never inspects them.
package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Cursor string
}

// FromContext extracts pagination parameters from the echo context,
// clamping the limit into [1, MaxLimit].
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return Params{Limit: limit, Cursor: c.QueryParam("cursor")}
}

// Response wraps a paginated API response. NextCursor is present only
// when more pages remain.
type Response struct {
	Data       interface{} `json:"data"`
	HasMore    bool        `json:"has_more"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func NewResponse(data interface{}, hasMore bool, nextCursor string) *Response {
	return &Response{Data: data, HasMore: hasMore, NextCursor: nextCursor}
}
