package api

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/managers"
	"github.com/udovin/robojudge/internal/pkg/logs"
)

// View represents API view.
type View struct {
	core        *core.Core
	checks      *managers.CheckManager
	simulations *managers.SimulationManager

	// tailInterval contains interval between log file polls.
	tailInterval time.Duration
}

// Register registers handlers in specified group.
func (v *View) Register(g *echo.Group) {
	g.Use(wrapResponse)
	g.GET("/ping", v.ping)
	g.GET("/health", v.health)
	v.registerCheckHandlers(g)
	v.registerSimulationHandlers(g)
	v.registerLogHandlers(g)
}

// ping returns pong.
func (v *View) ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}

// health returns current healthiness status.
func (v *View) health(c echo.Context) error {
	file, err := v.core.Storage.Get(getContext(c), managers.ReportKey)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			c.Logger().Error(err)
			return c.String(http.StatusInternalServerError, "unhealthy")
		}
	} else {
		_ = file.Close()
	}
	return c.String(http.StatusOK, "healthy")
}

// NewView returns a new instance of view.
func NewView(c *core.Core) (*View, error) {
	checks := managers.NewCheckManager(c)
	simulations, err := managers.NewSimulationManager(c, checks)
	if err != nil {
		return nil, err
	}
	return &View{
		core:         c,
		checks:       checks,
		simulations:  simulations,
		tailInterval: 500 * time.Millisecond,
	}, nil
}

func (v *View) bodyLimit() echo.MiddlewareFunc {
	if s := v.core.Config.Server; s != nil && s.BodyLimit != "" {
		return middleware.BodyLimit(s.BodyLimit)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return next
	}
}

const (
	errorStatus   = "ERROR"
	abortedStatus = "ABORTED"
	pendingStatus = "PENDING"
)

type errorResponse struct {
	// Code.
	Code int `json:"-"`
	// Message.
	Message string `json:"message"`
	// Status contains status of rejected operation.
	Status string `json:"status,omitempty"`
}

// StatusCode returns response status code.
func (r errorResponse) StatusCode() int {
	return r.Code
}

// Error returns response error message.
func (r errorResponse) Error() string {
	if r.Status != "" {
		return fmt.Sprintf("%s (status: %s)", r.Message, r.Status)
	}
	return r.Message
}

type statusCodeResponse interface {
	StatusCode() int
}

var (
	rnd      = rand.NewSource(time.Now().UnixNano())
	rndMutex = sync.Mutex{}
)

func randUint32() uint32 {
	rndMutex.Lock()
	defer rndMutex.Unlock()
	return uint32(rnd.Int63() >> 32)
}

func wrapResponse(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		reqID := c.Request().Header.Get(echo.HeaderXRequestID)
		if reqID == "" {
			reqID = fmt.Sprintf("%d-%d", time.Now().UnixMilli(), randUint32())
		}
		logger := c.Logger().(*logs.Logger).With(logs.Any("req_id", reqID))
		c.SetLogger(logger)
		c.Response().Header().Add(echo.HeaderXRequestID, reqID)
		c.Response().Header().Add("X-Robojudge-Version", config.Version)
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if err != nil {
			status = http.StatusInternalServerError
			if resp, ok := err.(*echo.HTTPError); ok {
				status = resp.Code
			}
		}
		defer func() {
			finish := time.Now()
			message := fmt.Sprintf("%s %s", c.Request().Method, c.Request().RequestURI)
			params := map[string]string{}
			for _, name := range c.ParamNames() {
				params[name] = c.Param(name)
			}
			args := []any{
				message,
				logs.Any("status", status),
				logs.Any("method", c.Request().Method),
				logs.Any("path", c.Path()),
				logs.Any("params", params),
				logs.Any("remote_ip", c.RealIP()),
				logs.Any("latency", finish.Sub(start)),
			}
			if err != nil {
				args = append(args, err)
			}
			switch {
			case status >= 500:
				logger.Error(args...)
			case status >= 400:
				logger.Warn(args...)
			default:
				logger.Info(args...)
			}
		}()
		if resp, ok := err.(statusCodeResponse); ok {
			status = resp.StatusCode()
			if status == 0 {
				status = http.StatusInternalServerError
			}
			return c.JSON(status, resp)
		}
		return err
	}
}

func getContext(c echo.Context) context.Context {
	return c.Request().Context()
}
