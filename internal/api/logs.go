package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/udovin/robojudge/internal/managers"
)

func (v *View) registerLogHandlers(g *echo.Group) {
	g.GET("/v0/logs/stream", v.streamLog)
	g.GET("/v0/logs/:name", v.getLog)
}

var logContentTypes = map[string]string{
	managers.LogKey:    echo.MIMETextPlainCharsetUTF8,
	managers.ReportKey: echo.MIMEApplicationJSONCharsetUTF8,
}

func (v *View) getLog(c echo.Context) error {
	name := c.Param("name")
	contentType, ok := logContentTypes[name]
	if !ok {
		return errorResponse{
			Code:    http.StatusBadRequest,
			Message: "Invalid log file request",
		}
	}
	file, err := v.core.Storage.Get(getContext(c), name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errorResponse{
				Code:    http.StatusNotFound,
				Message: "Log file not found",
			}
		}
		return err
	}
	defer func() { _ = file.Close() }()
	return c.Stream(http.StatusOK, contentType, file)
}

const (
	tailChunkSize    = 32 * 1024
	tailWriteTimeout = 10 * time.Second
)

var logUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: tailChunkSize,
}

// streamLog sends live simulation log to websocket client.
//
// Log is truncated at the start of every run, in that case the stream
// restarts from the beginning of the file.
func (v *View) streamLog(c echo.Context) error {
	conn, err := logUpgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrader has already replied with error.
		c.Logger().Warn("Cannot upgrade connection", err)
		return nil
	}
	defer func() { _ = conn.Close() }()
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	ticker := time.NewTicker(v.tailInterval)
	defer ticker.Stop()
	var offset int64
	buffer := make([]byte, tailChunkSize)
	for {
		offset, err = v.sendLogTail(conn, offset, buffer)
		if err != nil {
			c.Logger().Warn("Cannot send log", err)
			return nil
		}
		select {
		case <-closed:
			return nil
		case <-v.core.Context().Done():
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
				time.Now().Add(time.Second),
			)
			return nil
		case <-ticker.C:
		}
	}
}

func (v *View) sendLogTail(conn *websocket.Conn, offset int64, buffer []byte) (int64, error) {
	file, err := os.Open(v.simulations.LogFile())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return offset, err
	}
	defer func() { _ = file.Close() }()
	stat, err := file.Stat()
	if err != nil {
		return offset, err
	}
	if stat.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return offset, err
	}
	for {
		n, err := file.Read(buffer)
		if n > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(tailWriteTimeout)); err != nil {
				return offset, err
			}
			if err := conn.WriteMessage(websocket.TextMessage, buffer[:n]); err != nil {
				return offset, err
			}
			offset += int64(n)
		}
		if err == io.EOF {
			return offset, nil
		}
		if err != nil {
			return offset, err
		}
	}
}
