package analyzer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/exp/slices"

	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/archives"
	"github.com/udovin/robojudge/internal/pkg/hash"
	"github.com/udovin/robojudge/internal/pkg/logs"
)

const (
	defaultCodeDir       = "uploads/user_code"
	defaultLinterTimeout = 2 * time.Minute

	passedSummary    = "Code Passed Checks"
	structureSummary = "Structure Warning: Missing package.xml or build file."
	pythonSummary    = "Code Failed: Python syntax errors found."
	cppSummary       = "Code Failed: C++ syntax errors found."
	safetySummary    = "Code Passed, but safety warnings found."
)

var (
	defaultLinter = []string{"flake8"}
	cppExtensions = []string{".cpp", ".cxx", ".cc", ".hpp", ".h"}
)

// Analyzer performs static checks of submission archives.
type Analyzer struct {
	codeDir       string
	linter        []string
	linterTimeout time.Duration
	outputLimit   int
	strictCpp     bool
	logger        *logs.Logger
	now           func() time.Time
}

// NewAnalyzer creates analyzer from config.
func NewAnalyzer(cfg config.Analyzer, logger *logs.Logger) *Analyzer {
	a := Analyzer{
		codeDir:       cfg.CodeDir,
		linter:        cfg.Linter,
		linterTimeout: cfg.LinterTimeout.OrElse(defaultLinterTimeout),
		outputLimit:   cfg.OutputLimit,
		strictCpp:     cfg.StrictCpp,
		logger:        logger,
		now:           time.Now,
	}
	if a.codeDir == "" {
		a.codeDir = defaultCodeDir
	}
	if len(a.linter) == 0 {
		a.linter = defaultLinter
	}
	if abs, err := filepath.Abs(a.codeDir); err == nil {
		a.codeDir = abs
	}
	return &a
}

// CodeDir returns directory with extracted submission.
func (a *Analyzer) CodeDir() string {
	return a.codeDir
}

// Analyze checks submission archive and returns report.
//
// Problems of submission are reported as report fields. Returned error
// means that analysis could not be completed (e.g. it was canceled).
func (a *Analyzer) Analyze(ctx context.Context, runID string, archivePath string) (models.Report, error) {
	logger := a.logger.With(logs.Any("run_id", runID))
	report := models.Report{
		RunID:      runID,
		Status:     models.PassStatus,
		Summary:    passedSummary,
		CreateTime: a.now().Unix(),
	}
	if err := os.RemoveAll(a.codeDir); err != nil {
		return models.Report{}, fmt.Errorf("cannot cleanup code dir: %w", err)
	}
	if err := os.MkdirAll(a.codeDir, os.ModePerm); err != nil {
		return models.Report{}, fmt.Errorf("cannot create code dir: %w", err)
	}
	digest, err := hash.FileDigest(archivePath)
	if err == nil {
		report.ArchiveDigest = digest
		err = archives.Extract(archivePath, a.codeDir)
	}
	if err != nil {
		logger.Warn("Cannot extract archive", err)
		report.Raise(models.FailStatus, fmt.Sprintf("Failed to extract archive: %v", err))
		return report, nil
	}
	files, err := listFiles(a.codeDir)
	if err != nil {
		return models.Report{}, fmt.Errorf("cannot list files: %w", err)
	}
	// Structure.
	structure, ok := checkStructure(a.codeDir)
	report.Details.StructureCheck = &structure
	if !ok {
		report.Raise(models.WarnStatus, structureSummary)
	}
	info, entries := readPackageInfo(a.codeDir)
	// Syntax.
	pythonFiles, err := readSources(a.codeDir, files, func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".py")
	})
	if err != nil {
		return models.Report{}, err
	}
	cppFiles, err := readSources(a.codeDir, files, func(path string) bool {
		return slices.Contains(cppExtensions, strings.ToLower(filepath.Ext(path)))
	})
	if err != nil {
		return models.Report{}, err
	}
	syntax := models.SyntaxCheck{}
	if syntax.Python, err = a.checkPython(ctx, a.codeDir, pythonFiles); err != nil {
		return models.Report{}, err
	}
	if syntax.Python.Status == models.CheckFailed {
		report.Raise(models.FailStatus, pythonSummary)
	}
	if syntax.Cpp, err = a.checkCpp(ctx, cppFiles); err != nil {
		return models.Report{}, err
	}
	if syntax.Cpp.Status == models.CheckFailed {
		report.Raise(models.FailStatus, cppSummary)
	}
	report.Details.SyntaxCheck = &syntax
	if info != nil {
		info.NodeExecutables = nodeExecutables(entries, pythonFiles, cppFiles)
	}
	report.Details.Package = info
	// Heuristics.
	analysis := scanSources(pythonFiles)
	report.Details.ROSAnalysis = &analysis
	if len(analysis.SafetyWarnings) > 0 {
		report.Raise(models.WarnStatus, safetySummary)
	}
	report.Details.ConfigCheck = checkParams(a.codeDir, files)
	logger.Info(
		"Analysis finished",
		logs.Any("status", report.Status),
		logs.Any("nodes_found", analysis.NodesFound),
		logs.Any("safety_warnings", len(analysis.SafetyWarnings)),
	)
	return report, nil
}

// listFiles returns sorted slash-separated paths of regular files.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

func readSources(root string, files []string, filter func(string) bool) ([]sourceFile, error) {
	var sources []sourceFile
	for _, path := range files {
		if !filter(path) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		if err != nil {
			return nil, fmt.Errorf("cannot read %q: %w", path, err)
		}
		sources = append(sources, sourceFile{Path: path, Content: string(data)})
	}
	return sources, nil
}
