package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/pagd-project/pagd-go/internal/logger"
	"github.com/pagd-project/pagd-go/internal/observability/metrics"
)

const sseWriteTimeout = 10 * time.Second

func (s *Server) httpMetrics() *metrics.HTTPMetrics {
	if s.metrics == nil {
		return nil
	}
	return s.metrics.HTTP
}

// streamResults streams the active classifier's results as server-sent
// events, following selector switches.
func (s *Server) streamResults(c echo.Context) error {
	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	h := c.Response().Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set(echo.HeaderCacheControl, "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	log := s.log.With(logger.String("client_id", clientID), logger.String("ip", c.RealIP()))

	results := s.selector.ActiveResults(ctx)
	s.httpMetrics().SSEConnected(1)
	defer s.httpMetrics().SSEConnected(-1)

	active, _ := s.selector.Active()
	if err := sendSSEMessage(c, "connected", map[string]string{
		"clientId": clientID,
		"active":   active,
	}); err != nil {
		return nil
	}
	log.Info("stream client connected")
	defer log.Info("stream client disconnected")

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case r, ok := <-results:
			if !ok {
				return nil
			}
			if err := sendSSEMessage(c, "result", r); err != nil {
				log.Debug("stream write failed", logger.Error(err))
				return nil
			}
			s.httpMetrics().SSEMessageSent()

		case <-ticker.C:
			if err := sendSSEMessage(c, "heartbeat", map[string]int64{"timestamp": time.Now().Unix()}); err != nil {
				log.Debug("stream heartbeat failed, client likely disconnected", logger.Error(err))
				return nil
			}

		case <-ctx.Done():
			return nil

		case <-s.closing:
			return nil
		}
	}
}

func sendSSEMessage(c echo.Context, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE data: %w", err)
	}

	rc := http.NewResponseController(c.Response().Writer)
	// not every writer supports deadlines
	_ = rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout))

	if _, err := fmt.Fprintf(c.Response(), "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("failed to write SSE message: %w", err)
	}
	c.Response().Flush()
	return nil
}
