package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/guarzo/cardpulse/internal/market"
	"github.com/guarzo/cardpulse/internal/model"
	"github.com/guarzo/cardpulse/internal/pipeline"
)

type errorResponse struct {
	Error      string            `json:"error"`
	Outcome    string            `json:"outcome,omitempty"`
	RetryAfter int               `json:"retryAfter,omitempty"`
	Details    []ValidationError `json:"details,omitempty"`
}

type scrapeResponse struct {
	RequestID string               `json:"requestId"`
	Groups    []model.VariantGroup `json:"groups"`
	Count     int                  `json:"count"`
	Outcome   string               `json:"outcome"`
	Message   string               `json:"message,omitempty"`
}

type analyzeRequest struct {
	Group model.VariantGroup `json:"group"`
	ROI   float64            `json:"roi" validate:"gte=-100,lte=10000"`
	IsRaw bool               `json:"isRaw"`
}

type gradingRequest struct {
	Query model.TargetQuery `json:"query"`
	Odds  market.GradeOdds  `json:"odds"`
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) scrape(c echo.Context) error {
	var q model.TargetQuery
	if verrs := bindAndValidate(c, &q); verrs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Details: verrs})
	}

	res, err := s.engine.Search(c.Request().Context(), q)
	outcome := pipeline.Outcome(err, res)
	if err != nil {
		s.log.Warn().Err(err).Msg("scrape failed")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:   outcome.Message(),
			Outcome: outcome.String(),
		})
	}

	return c.JSON(http.StatusOK, scrapeResponse{
		RequestID: res.RequestID,
		Groups:    res.Groups,
		Count:     len(res.Groups),
		Outcome:   outcome.String(),
		Message:   outcome.Message(),
	})
}

func (s *Server) analyze(c echo.Context) error {
	var req analyzeRequest
	if verrs := bindAndValidate(c, &req); verrs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Details: verrs})
	}
	return c.JSON(http.StatusOK, s.engine.Analyze(req.Group, req.ROI, req.IsRaw))
}

func (s *Server) grading(c echo.Context) error {
	var req gradingRequest
	if verrs := bindAndValidate(c, &req); verrs != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Details: verrs})
	}

	out, err := s.engine.GradingOutlook(c.Request().Context(), req.Query, req.Odds, s.costs)
	if err != nil {
		outcome := pipeline.Outcome(err, nil)
		status := http.StatusServiceUnavailable
		if outcome == pipeline.OutcomeNoResults {
			status = http.StatusNotFound
		}
		s.log.Warn().Err(err).Msg("grading outlook failed")
		return c.JSON(status, errorResponse{Error: outcome.Message(), Outcome: outcome.String()})
	}
	return c.JSON(http.StatusOK, out)
}
