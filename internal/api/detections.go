package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
)

// listDetections returns the newest detections, or those in [from, to)
// when both RFC 3339 bounds are given.
func (s *Server) listDetections(c echo.Context) error {
	if s.history == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "detection history disabled")
	}
	ctx := c.Request().Context()

	fromParam, toParam := c.QueryParam("from"), c.QueryParam("to")
	if fromParam != "" || toParam != "" {
		from, err := time.Parse(time.RFC3339, fromParam)
		if err != nil {
			return badRequest("from must be an RFC 3339 time")
		}
		to, err := time.Parse(time.RFC3339, toParam)
		if err != nil {
			return badRequest("to must be an RFC 3339 time")
		}
		detections, err := s.history.Between(ctx, from, to)
		if err != nil {
			return s.handleError(c, err, "failed to query detections")
		}
		return c.JSON(http.StatusOK, detections)
	}

	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest("limit must be a non-negative integer")
		}
		limit = n
	}
	detections, err := s.history.Recent(ctx, limit)
	if err != nil {
		return s.handleError(c, err, "failed to query detections")
	}
	return c.JSON(http.StatusOK, detections)
}
