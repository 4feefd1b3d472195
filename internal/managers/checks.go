package managers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/udovin/robojudge/internal/analyzer"
	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/archives"
	"github.com/udovin/robojudge/internal/pkg/logs"
	"github.com/udovin/robojudge/internal/pkg/storage"
)

const (
	// ReportKey contains storage key of check report.
	ReportKey = "checker_report.json"

	defaultUploadDir   = "uploads"
	uploadName         = "user_code"
	interruptedSummary = "Analysis interrupted"
)

var (
	// ErrNoReport means that submission was not checked yet.
	ErrNoReport = errors.New("no report found")
	// ErrUnsupportedArchive means that uploaded file is not supported archive.
	ErrUnsupportedArchive = errors.New("file type not allowed")
)

// CheckManager runs analysis of submissions and stores reports.
type CheckManager struct {
	core      *core.Core
	analyzer  *analyzer.Analyzer
	uploadDir string
}

// NewCheckManager creates manager from core config.
func NewCheckManager(c *core.Core) *CheckManager {
	uploadDir := c.Config.Analyzer.UploadDir
	if uploadDir == "" {
		uploadDir = defaultUploadDir
	}
	return &CheckManager{
		core:      c,
		analyzer:  analyzer.NewAnalyzer(c.Config.Analyzer, c.Logger()),
		uploadDir: uploadDir,
	}
}

// CodeDir returns directory with extracted submission.
func (m *CheckManager) CodeDir() string {
	return m.analyzer.CodeDir()
}

// Upload saves uploaded archive and checks it.
//
// Archive with the same name is replaced, so only the latest submission
// is kept.
func (m *CheckManager) Upload(ctx context.Context, name string, r io.Reader) (models.Report, error) {
	ext := archives.Ext(name)
	if ext == "" {
		return models.Report{}, ErrUnsupportedArchive
	}
	guard, err := m.core.Runs.Acquire(ctx, models.CheckRun)
	if err != nil {
		return models.Report{}, err
	}
	defer guard.Release()
	if err := os.MkdirAll(m.uploadDir, os.ModePerm); err != nil {
		return models.Report{}, fmt.Errorf("cannot create upload dir: %w", err)
	}
	path := filepath.Join(m.uploadDir, uploadName+ext)
	if err := writeUpload(path, r); err != nil {
		return models.Report{}, fmt.Errorf("cannot save upload: %w", err)
	}
	return m.check(guard, path)
}

// Check checks archive that is already stored on disk.
func (m *CheckManager) Check(ctx context.Context, path string) (models.Report, error) {
	guard, err := m.core.Runs.Acquire(ctx, models.CheckRun)
	if err != nil {
		return models.Report{}, err
	}
	defer guard.Release()
	return m.check(guard, path)
}

func (m *CheckManager) check(guard *core.RunGuard, path string) (models.Report, error) {
	logger := m.core.Logger().With(logs.Any("run_id", guard.Info().ID))
	logger.Info("Check started", logs.Any("archive", filepath.Base(path)))
	report, err := m.analyzer.Analyze(guard.Context(), guard.Info().ID, path)
	if err != nil {
		logger.Error("Check failed", err)
		// Extracted submission is already replaced, so the previous
		// report can not be used by simulation anymore.
		failed := models.Report{
			RunID:      guard.Info().ID,
			Status:     models.FailStatus,
			Summary:    fmt.Sprintf("%s: %v", interruptedSummary, err),
			CreateTime: time.Now().Unix(),
		}
		if err := m.saveReport(guard.Context(), failed); err != nil {
			logger.Error("Cannot save report", err)
		}
		return models.Report{}, err
	}
	if err := m.saveReport(guard.Context(), report); err != nil {
		logger.Error("Cannot save report", err)
		return models.Report{}, fmt.Errorf("cannot save report: %w", err)
	}
	return report, nil
}

// saveReport replaces stored report.
//
// Report is saved even if run is canceled.
func (m *CheckManager) saveReport(ctx context.Context, report models.Report) error {
	data, err := json.MarshalIndent(report, "", "    ")
	if err != nil {
		return err
	}
	return m.core.Storage.Put(context.WithoutCancel(ctx), ReportKey, bytes.NewReader(data))
}

// LastReport returns report of the latest check.
func (m *CheckManager) LastReport(ctx context.Context) (models.Report, error) {
	data, err := storage.ReadAll(ctx, m.core.Storage, ReportKey)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.Report{}, ErrNoReport
		}
		return models.Report{}, err
	}
	var report models.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return models.Report{}, fmt.Errorf("cannot parse report: %w", err)
	}
	return report, nil
}

func writeUpload(path string, r io.Reader) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, r); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}
