package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
	"github.com/nsf/jsondiff"

	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/managers"
	"github.com/udovin/robojudge/internal/models"
)

func testExpect[T any](tb testing.TB, value, expected T) {
	if !reflect.DeepEqual(value, expected) {
		tb.Fatalf("Expected %v, got %v", expected, value)
	}
}

type testEnv struct {
	core *core.Core
	view *View
	srv  *echo.Echo
}

func newTestEnv(t *testing.T, server *config.Server) *testEnv {
	dir := t.TempDir()
	c, err := core.NewCore(config.Config{
		Server: server,
		Analyzer: config.Analyzer{
			CodeDir:   filepath.Join(dir, "uploads", "user_code"),
			UploadDir: filepath.Join(dir, "uploads"),
			Linter:    []string{"sh", "-c", "exit 0", "flake8"},
		},
		Simulator: config.Simulator{
			Shell:              "sh",
			EnvironmentCommand: "echo environment started; sleep 30",
			UserCommand:        "echo running {{.Package}}/{{.Executable}}; sleep 30",
			TelemetryCommand:   "echo position",
			Workspace:          dir,
			LogFile:            filepath.Join(dir, "logs", "sim_output.log"),
			SettleTime:         config.Duration(10 * time.Millisecond),
			Duration:           config.Duration(100 * time.Millisecond),
			PollInterval:       config.Duration(50 * time.Millisecond),
			QueryTimeout:       config.Duration(5 * time.Second),
			GracePeriod:        config.Duration(10 * time.Millisecond),
		},
		Storage: &config.Storage{
			Options: config.LocalStorageOptions{FilesDir: filepath.Join(dir, "data")},
		},
		LogLevel: config.LogLevel(log.OFF),
	})
	if err != nil {
		t.Fatal("Error:", err)
	}
	if err := c.Start(); err != nil {
		t.Fatal("Error:", err)
	}
	t.Cleanup(c.Stop)
	v, err := NewView(c)
	if err != nil {
		t.Fatal("Error:", err)
	}
	v.tailInterval = 10 * time.Millisecond
	srv := echo.New()
	srv.Logger = c.Logger()
	v.Register(srv.Group("/api"))
	return &testEnv{core: c, view: v, srv: srv}
}

func (e *testEnv) do(t *testing.T, req *http.Request, resp any) int {
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	if resp != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
			t.Fatalf("Cannot parse %q: %v", rec.Body.String(), err)
		}
	}
	return rec.Code
}

func expectBody(tb testing.TB, rec *httptest.ResponseRecorder, expected string) {
	options := jsondiff.DefaultConsoleOptions()
	diff, text := jsondiff.Compare(rec.Body.Bytes(), []byte(expected), &options)
	if diff != jsondiff.FullMatch {
		tb.Fatalf("Unexpected response: %s", text)
	}
}

func (e *testEnv) upload(t *testing.T, name string, content []byte, resp any) int {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	if name != "" {
		part, err := writer.CreateFormFile("file", name)
		if err != nil {
			t.Fatal("Error:", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatal("Error:", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal("Error:", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v0/upload", &body)
	req.Header.Set(echo.HeaderContentType, writer.FormDataContentType())
	return e.do(t, req, resp)
}

func testArchive(t *testing.T, files map[string]string) []byte {
	var buffer bytes.Buffer
	writer := zip.NewWriter(&buffer)
	for name, content := range files {
		w, err := writer.Create(name)
		if err != nil {
			t.Fatal("Error:", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal("Error:", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal("Error:", err)
	}
	return buffer.Bytes()
}

var testPackage = map[string]string{
	"package.xml":    "<package><name>picker</name></package>\n",
	"setup.py":       "entry_points={'console_scripts': ['pick_node = picker.pick:main']}\n",
	"picker/pick.py": "import rclpy\nrclpy.init()\n",
}

func TestPing(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	testExpect(t, rec.Code, http.StatusOK)
	testExpect(t, rec.Body.String(), "pong")
	if rec.Header().Get(echo.HeaderXRequestID) == "" {
		t.Fatal("Expected request identifier")
	}
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	testExpect(t, rec.Code, http.StatusOK)
	testExpect(t, rec.Body.String(), "healthy")
}

func TestUpload(t *testing.T) {
	e := newTestEnv(t, nil)
	var status statusResponse
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/status", nil), &status)
	testExpect(t, code, http.StatusOK)
	testExpect(t, status, statusResponse{
		Status:  "PENDING",
		Message: "No report found. Upload code first.",
	})
	var failure errorResponse
	testExpect(t, e.upload(t, "", nil, &failure), http.StatusBadRequest)
	testExpect(t, failure.Message, "No file part")
	testExpect(t, failure.Status, "ERROR")
	testExpect(t, e.upload(t, "solution.rar", []byte("rar"), &failure), http.StatusBadRequest)
	testExpect(t, failure.Message, "File type not allowed")
	var upload uploadResponse
	testExpect(t, e.upload(t, "solution.zip", testArchive(t, testPackage), &upload), http.StatusOK)
	testExpect(t, upload.Message, "File uploaded and checked. Status: PASS")
	testExpect(t, upload.Status, models.PassStatus)
	testExpect(t, upload.Report.Summary, "Code Passed Checks")
	status = statusResponse{}
	code = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/status", nil), &status)
	testExpect(t, code, http.StatusOK)
	testExpect(t, status.Status, "PASS")
	if status.Report == nil || status.Report.RunID != upload.Report.RunID {
		t.Fatalf("Unexpected report: %+v", status.Report)
	}
}

func TestResponseBodies(t *testing.T) {
	e := newTestEnv(t, nil)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v0/status", nil))
	testExpect(t, rec.Code, http.StatusOK)
	expectBody(t, rec, `{"status":"PENDING","message":"No report found. Upload code first."}`)
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v0/runs/current", nil))
	testExpect(t, rec.Code, http.StatusNotFound)
	expectBody(t, rec, `{"message":"No active run"}`)
	rec = httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v0/logs/secret.txt", nil))
	testExpect(t, rec.Code, http.StatusBadRequest)
	expectBody(t, rec, `{"message":"Invalid log file request"}`)
}

func TestUploadBodyLimit(t *testing.T) {
	e := newTestEnv(t, &config.Server{BodyLimit: "1K"})
	content := bytes.Repeat([]byte{'x'}, 4096)
	testExpect(t, e.upload(t, "solution.zip", content, nil), http.StatusRequestEntityTooLarge)
}

func TestUploadBusy(t *testing.T) {
	e := newTestEnv(t, nil)
	guard, err := e.core.Runs.Acquire(context.Background(), models.SimulationRun)
	if err != nil {
		t.Fatal("Error:", err)
	}
	defer guard.Release()
	var failure errorResponse
	testExpect(t, e.upload(t, "solution.zip", testArchive(t, testPackage), &failure), http.StatusConflict)
}

func newSimulateRequest(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v0/simulation", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func TestSimulation(t *testing.T) {
	e := newTestEnv(t, nil)
	var failure errorResponse
	testExpect(t, e.do(t, newSimulateRequest(""), &failure), http.StatusBadRequest)
	testExpect(t, failure.Message, "Please run code check first.")
	testExpect(t, failure.Status, "ERROR")
	// Failed check aborts simulation.
	data, err := json.Marshal(models.Report{Status: models.FailStatus})
	if err != nil {
		t.Fatal("Error:", err)
	}
	if err := e.core.Storage.Put(context.Background(), managers.ReportKey, bytes.NewReader(data)); err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, e.do(t, newSimulateRequest(""), &failure), http.StatusBadRequest)
	testExpect(t, failure.Message, "Simulation aborted: Code checker failed.")
	testExpect(t, failure.Status, "ABORTED")
	testExpect(t, e.upload(t, "solution.zip", testArchive(t, testPackage), nil), http.StatusOK)
	testExpect(t, e.do(t, newSimulateRequest(`{"executable":"missing"}`), &failure), http.StatusBadRequest)
	var result simulationResponse
	testExpect(t, e.do(t, newSimulateRequest(`{"executable":"pick_node"}`), &result), http.StatusOK)
	testExpect(t, result.Message, "Simulation complete.")
	testExpect(t, result.Status, models.PassStatus)
	testExpect(t, result.MotionDetected, true)
	testExpect(t, result.LogFile, "sim_output.log")
	testExpect(t, len(result.Ticks), 2)
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v0/logs/sim_output.log", nil))
	testExpect(t, rec.Code, http.StatusOK)
	for _, line := range []string{
		"environment started",
		"running picker/pick_node",
		"Simulation Result: PASS",
	} {
		if !strings.Contains(rec.Body.String(), line) {
			t.Fatalf("Log does not contain %q: %q", line, rec.Body.String())
		}
	}
	var report models.Report
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/logs/checker_report.json", nil), &report)
	testExpect(t, code, http.StatusOK)
	testExpect(t, report.Status, models.PassStatus)
	code = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/logs/config.json", nil), &failure)
	testExpect(t, code, http.StatusBadRequest)
	testExpect(t, failure.Message, "Invalid log file request")
}

func TestLogsNotFound(t *testing.T) {
	e := newTestEnv(t, nil)
	var failure errorResponse
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/logs/sim_output.log", nil), &failure)
	testExpect(t, code, http.StatusNotFound)
}

func TestRuns(t *testing.T) {
	e := newTestEnv(t, nil)
	var failure errorResponse
	code := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/runs/current", nil), &failure)
	testExpect(t, code, http.StatusNotFound)
	code = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/v0/simulation", nil), &failure)
	testExpect(t, code, http.StatusNotFound)
	guard, err := e.core.Runs.Acquire(context.Background(), models.SimulationRun)
	if err != nil {
		t.Fatal("Error:", err)
	}
	defer guard.Release()
	var info struct {
		ID   string `json:"id"`
		Kind string `json:"kind"`
	}
	code = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v0/runs/current", nil), &info)
	testExpect(t, code, http.StatusOK)
	testExpect(t, info.ID, guard.Info().ID)
	testExpect(t, info.Kind, "simulation")
	var canceled struct {
		Message string `json:"message"`
	}
	code = e.do(t, httptest.NewRequest(http.MethodDelete, "/api/v0/simulation", nil), &canceled)
	testExpect(t, code, http.StatusOK)
	testExpect(t, canceled.Message, "Run canceled.")
	if guard.Context().Err() == nil {
		t.Fatal("Run should be canceled")
	}
}

func TestLogStream(t *testing.T) {
	e := newTestEnv(t, nil)
	server := httptest.NewServer(e.srv)
	defer server.Close()
	logFile := e.view.simulations.LogFile()
	if err := os.MkdirAll(filepath.Dir(logFile), os.ModePerm); err != nil {
		t.Fatal("Error:", err)
	}
	if err := os.WriteFile(logFile, []byte("--- Simulation Start ---\n"), 0644); err != nil {
		t.Fatal("Error:", err)
	}
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v0/logs/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal("Error:", err)
	}
	defer func() { _ = conn.Close() }()
	if err := conn.SetReadDeadline(time.Now().Add(10 * time.Second)); err != nil {
		t.Fatal("Error:", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, string(data), "--- Simulation Start ---\n")
	// Truncated log is streamed from the beginning.
	if err := os.WriteFile(logFile, []byte("restart\n"), 0644); err != nil {
		t.Fatal("Error:", err)
	}
	_, data, err = conn.ReadMessage()
	if err != nil {
		t.Fatal("Error:", err)
	}
	testExpect(t, string(data), "restart\n")
}
