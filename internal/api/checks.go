package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/managers"
	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/archives"
)

func (v *View) registerCheckHandlers(g *echo.Group) {
	g.POST("/v0/upload", v.upload, v.bodyLimit())
	g.GET("/v0/status", v.status)
}

type uploadResponse struct {
	Message string        `json:"message"`
	Status  models.Status `json:"status"`
	Report  models.Report `json:"report"`
}

func (v *View) upload(c echo.Context) error {
	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: "No file part",
				Status:  errorStatus,
			}
		}
		c.Logger().Warn("Cannot parse upload", err)
		return errorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid upload",
			Status:  errorStatus,
		}
	}
	if header.Filename == "" {
		return errorResponse{
			Code:    http.StatusBadRequest,
			Message: "No selected file",
			Status:  errorStatus,
		}
	}
	if !archives.IsSupported(header.Filename) {
		return errorResponse{
			Code:    http.StatusBadRequest,
			Message: "File type not allowed",
			Status:  errorStatus,
		}
	}
	file, err := header.Open()
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	report, err := v.checks.Upload(getContext(c), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, core.ErrRunInProgress):
			return errorResponse{
				Code:    http.StatusConflict,
				Message: "Another run is in progress",
				Status:  errorStatus,
			}
		case errors.Is(err, managers.ErrUnsupportedArchive):
			return errorResponse{
				Code:    http.StatusBadRequest,
				Message: "File type not allowed",
				Status:  errorStatus,
			}
		}
		return err
	}
	return c.JSON(http.StatusOK, uploadResponse{
		Message: fmt.Sprintf("File uploaded and checked. Status: %s", report.Status),
		Status:  report.Status,
		Report:  report,
	})
}

type statusResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message,omitempty"`
	Report  *models.Report `json:"report,omitempty"`
}

func (v *View) status(c echo.Context) error {
	report, err := v.checks.LastReport(getContext(c))
	if err != nil {
		if errors.Is(err, managers.ErrNoReport) {
			return c.JSON(http.StatusOK, statusResponse{
				Status:  pendingStatus,
				Message: "No report found. Upload code first.",
			})
		}
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{
		Status: report.Status.String(),
		Report: &report,
	})
}
