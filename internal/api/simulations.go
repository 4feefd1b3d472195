package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/managers"
	"github.com/udovin/robojudge/internal/models"
)

func (v *View) registerSimulationHandlers(g *echo.Group) {
	g.POST("/v0/simulation", v.simulate)
	g.DELETE("/v0/simulation", v.cancelRun)
	g.GET("/v0/runs/current", v.currentRun)
}

type simulationResponse struct {
	Message        string              `json:"message"`
	Status         models.Status       `json:"status"`
	RunID          string              `json:"run_id,omitempty"`
	MotionDetected bool                `json:"motion_detected"`
	LogFile        string              `json:"log_file"`
	Ticks          []models.TickResult `json:"ticks,omitempty"`
}

func (v *View) simulate(c echo.Context) error {
	var form managers.SimulateOptions
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&form); err != nil {
			c.Logger().Warn(err)
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: "Invalid form",
				Status:  errorStatus,
			}
		}
	}
	result, err := v.simulations.Simulate(getContext(c), form)
	if err != nil {
		switch {
		case errors.Is(err, managers.ErrNoReport):
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: "Please run code check first.",
				Status:  errorStatus,
			}
		case errors.Is(err, managers.ErrCheckFailed):
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: "Simulation aborted: Code checker failed.",
				Status:  abortedStatus,
			}
		case errors.Is(err, managers.ErrUnknownExecutable):
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: err.Error(),
				Status:  errorStatus,
			}
		case errors.Is(err, core.ErrRunInProgress):
			return errorResponse{
				Code:    http.StatusConflict,
				Message: "Another run is in progress",
				Status:  errorStatus,
			}
		}
		if result.RunID == "" {
			return err
		}
		// Session has finished with failure, its log is still available.
		return c.JSON(http.StatusOK, simulationResponse{
			Message:        "Simulation failed: " + err.Error(),
			Status:         result.Status,
			RunID:          result.RunID,
			MotionDetected: result.MotionDetected,
			LogFile:        managers.LogKey,
			Ticks:          result.Ticks,
		})
	}
	return c.JSON(http.StatusOK, simulationResponse{
		Message:        "Simulation complete.",
		Status:         result.Status,
		RunID:          result.RunID,
		MotionDetected: result.MotionDetected,
		LogFile:        managers.LogKey,
		Ticks:          result.Ticks,
	})
}

type cancelResponse struct {
	Message string         `json:"message"`
	Run     models.RunInfo `json:"run"`
}

func (v *View) cancelRun(c echo.Context) error {
	info, ok := v.core.Runs.Current()
	if !ok || !v.core.Runs.Cancel() {
		return errorResponse{
			Code:    http.StatusNotFound,
			Message: "No active run",
		}
	}
	return c.JSON(http.StatusOK, cancelResponse{
		Message: "Run canceled.",
		Run:     info,
	})
}

func (v *View) currentRun(c echo.Context) error {
	info, ok := v.core.Runs.Current()
	if !ok {
		return errorResponse{
			Code:    http.StatusNotFound,
			Message: "No active run",
		}
	}
	return c.JSON(http.StatusOK, info)
}
