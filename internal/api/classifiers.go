package api

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pagd-project/pagd-go/internal/classifier"
	"github.com/pagd-project/pagd-go/internal/errors"
	"github.com/pagd-project/pagd-go/internal/selector"
)

// ClassifierStatus describes one classifier.
type ClassifierStatus struct {
	Name                  string  `json:"name"`
	Active                bool    `json:"active"`
	Recording             bool    `json:"recording"`
	Threshold             float32 `json:"threshold"`
	DelayMs               int64   `json:"delayMs"`
	WindowSize            int     `json:"windowSize"`
	AllCategoriesIncluded bool    `json:"allCategoriesIncluded"`
	Subscribers           int     `json:"subscribers"`
}

type activeRequest struct {
	Name string `json:"name"`
}

type thresholdBody struct {
	Threshold *float32 `json:"threshold"`
}

type delayBody struct {
	DelayMs *int64 `json:"delayMs"`
}

// maxDelayMs is the longest cycle period a time.Duration can hold.
const maxDelayMs = math.MaxInt64 / int64(time.Millisecond)

type categoryBody struct {
	Included *bool `json:"included"`
}

func (s *Server) status(cl *classifier.Classifier) ClassifierStatus {
	active, _ := s.selector.Active()
	return ClassifierStatus{
		Name:                  cl.Name(),
		Active:                cl.Name() == active,
		Recording:             cl.IsRecording(),
		Threshold:             cl.Threshold(),
		DelayMs:               cl.CyclePeriod().Milliseconds(),
		WindowSize:            cl.Scorer().WindowSize(),
		AllCategoriesIncluded: cl.AllCategoriesIncluded(),
		Subscribers:           cl.Subscribers(),
	}
}

// pathParam returns an unescaped path parameter.
func pathParam(c echo.Context, name string) string {
	raw := c.Param(name)
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}

func (s *Server) lookup(c echo.Context) (*classifier.Classifier, error) {
	name := pathParam(c, "name")
	cl, ok := s.selector.Get(name)
	if !ok {
		return nil, errors.New(fmt.Errorf("%w: %q", selector.ErrUnknownClassifier, name)).
			Component("api").
			Category(errors.CategoryNotFound).
			Build()
	}
	return cl, nil
}

func (s *Server) listClassifiers(c echo.Context) error {
	classifiers := s.selector.Classifiers()
	out := make([]ClassifierStatus, len(classifiers))
	for i, cl := range classifiers {
		out[i] = s.status(cl)
	}
	return c.JSON(http.StatusOK, out)
}

func (s *Server) getActive(c echo.Context) error {
	_, cl := s.selector.Active()
	return c.JSON(http.StatusOK, s.status(cl))
}

func (s *Server) switchActive(c echo.Context) error {
	var req activeRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return badRequest("body must be {\"name\": string}")
	}
	if err := s.selector.SwitchActive(req.Name); err != nil {
		return s.handleError(c, err, "failed to switch classifier")
	}
	return s.getActive(c)
}

func (s *Server) getClassifier(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	return c.JSON(http.StatusOK, s.status(cl))
}

func (s *Server) startClassifier(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	if err := cl.Start(c.Request().Context()); err != nil {
		return s.handleError(c, err, "failed to start recording")
	}
	return c.JSON(http.StatusOK, s.status(cl))
}

func (s *Server) stopClassifier(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	if err := cl.Stop(); err != nil {
		return s.handleError(c, err, "failed to stop recording")
	}
	return c.JSON(http.StatusOK, s.status(cl))
}

func (s *Server) getThreshold(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	t := cl.Threshold()
	return c.JSON(http.StatusOK, thresholdBody{Threshold: &t})
}

func (s *Server) setThreshold(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	var body thresholdBody
	if err := c.Bind(&body); err != nil || body.Threshold == nil {
		return badRequest("body must be {\"threshold\": number}")
	}
	if err := cl.SetThreshold(*body.Threshold); err != nil {
		return s.handleError(c, err, "invalid threshold")
	}
	return s.getThreshold(c)
}

func (s *Server) getDelay(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	ms := cl.CyclePeriod().Milliseconds()
	return c.JSON(http.StatusOK, delayBody{DelayMs: &ms})
}

func (s *Server) setDelay(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	var body delayBody
	if err := c.Bind(&body); err != nil || body.DelayMs == nil {
		return badRequest("body must be {\"delayMs\": integer}")
	}
	if *body.DelayMs > maxDelayMs {
		return badRequest(fmt.Sprintf("delayMs must not exceed %d", maxDelayMs))
	}
	if err := cl.SetCyclePeriod(time.Duration(*body.DelayMs) * time.Millisecond); err != nil {
		return s.handleError(c, err, "invalid delay")
	}
	return s.getDelay(c)
}

func (s *Server) getCategories(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	return c.JSON(http.StatusOK, cl.Categories())
}

func (s *Server) setCategory(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	var body categoryBody
	if err := c.Bind(&body); err != nil || body.Included == nil {
		return badRequest("body must be {\"included\": bool}")
	}

	title := pathParam(c, "category")
	if *body.Included {
		err = cl.IncludeCategory(title)
	} else {
		err = cl.ExcludeCategory(title)
	}
	if err != nil {
		return s.handleError(c, err, "failed to update category")
	}
	return c.JSON(http.StatusOK, cl.Categories())
}

func (s *Server) includeAll(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	cl.IncludeAll()
	return c.JSON(http.StatusOK, cl.Categories())
}

func (s *Server) excludeAll(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	cl.ExcludeAll()
	return c.JSON(http.StatusOK, cl.Categories())
}

func (s *Server) getLatest(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	r, ok := cl.Latest()
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, r)
}

func (s *Server) getSummary(c echo.Context) error {
	cl, err := s.lookup(c)
	if err != nil {
		return s.handleError(c, err, "classifier not found")
	}
	return c.JSON(http.StatusOK, map[string]string{"summary": cl.Summary()})
}
