package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/procgroup"
	"github.com/udovin/robojudge/internal/pkg/utils"
)

const (
	noPythonOutput  = "No Python files found."
	noCppOutput     = "No C++ files found."
	cppPassedOutput = "C++ files found, simplistic check passed (full build requires environment)."
)

// parseIssue represents syntax error found by tree-sitter.
type parseIssue struct {
	Path string
	Line uint32
}

func (i parseIssue) String() string {
	return fmt.Sprintf("%s:%d: syntax error", i.Path, i.Line)
}

func formatIssues(issues []parseIssue) string {
	lines := make([]string, 0, len(issues))
	for _, issue := range issues {
		lines = append(lines, issue.String())
	}
	return strings.Join(lines, "\n")
}

// firstErrorNode returns first erroneous or missing node in tree.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return node
}

// parseSources runs superficial tree-sitter parse over files.
func parseSources(
	ctx context.Context, language *sitter.Language, files []sourceFile,
) ([]parseIssue, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(language)
	var issues []parseIssue
	for _, file := range files {
		tree, err := parser.ParseCtx(ctx, nil, []byte(file.Content))
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("cannot parse %q: %w", file.Path, err)
		}
		if node := firstErrorNode(tree.RootNode()); node != nil {
			issues = append(issues, parseIssue{
				Path: file.Path,
				Line: node.StartPoint().Row + 1,
			})
		}
		tree.Close()
	}
	return issues, nil
}

// checkPython runs linter over submission and falls back to tree-sitter
// parse if linter can not be invoked.
func (a *Analyzer) checkPython(
	ctx context.Context, root string, files []sourceFile,
) (models.CheckResult, error) {
	if len(files) == 0 {
		return models.CheckResult{Status: models.CheckSkipped, Output: noPythonOutput}, nil
	}
	output := utils.NewTruncateBuffer(a.outputLimit)
	command := append(append([]string{}, a.linter...), root)
	report, err := procgroup.Run(ctx, procgroup.Config{
		Command: command,
		Workdir: root,
		Stdout:  output,
		Stderr:  output,
	}, a.linterTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.CheckResult{}, ctxErr
		}
		a.logger.Warn(
			"Cannot invoke linter, using fallback parser",
			err,
		)
		return a.checkPythonFallback(ctx, files, err)
	}
	text := strings.TrimSpace(strings.ReplaceAll(output.String(), root+"/", ""))
	if !report.Success() {
		return models.CheckResult{Status: models.CheckFailed, Output: text}, nil
	}
	return models.CheckResult{Status: models.CheckPassed, Output: text}, nil
}

func (a *Analyzer) checkPythonFallback(
	ctx context.Context, files []sourceFile, toolErr error,
) (models.CheckResult, error) {
	toolError := toolErr.Error()
	if errors.Is(toolErr, procgroup.ErrTimeout) {
		toolError = fmt.Sprintf("linter timed out after %s", a.linterTimeout.Round(time.Second))
	}
	issues, err := parseSources(ctx, python.GetLanguage(), files)
	if err != nil {
		return models.CheckResult{}, err
	}
	result := models.CheckResult{
		Status:    models.CheckPassed,
		Output:    "Linter is unavailable, checked with fallback parser.",
		ToolError: toolError,
	}
	if len(issues) > 0 {
		result.Status = models.CheckFailed
		result.Output += "\n" + formatIssues(issues)
	}
	return result, nil
}

// checkCpp yields placeholder result for C++ sources.
//
// Full build requires ROS environment, so only superficial parse issues
// are reported. Parse issues fail the check in strict mode only.
func (a *Analyzer) checkCpp(
	ctx context.Context, files []sourceFile,
) (models.CheckResult, error) {
	if len(files) == 0 {
		return models.CheckResult{Status: models.CheckSkipped, Output: noCppOutput}, nil
	}
	result := models.CheckResult{Status: models.CheckPassed, Output: cppPassedOutput}
	issues, err := parseSources(ctx, cpp.GetLanguage(), files)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.CheckResult{}, ctxErr
		}
		result.ToolError = err.Error()
		return result, nil
	}
	if len(issues) > 0 {
		result.Output += "\nParse issues:\n" + formatIssues(issues)
		if a.strictCpp {
			result.Status = models.CheckFailed
		}
	}
	return result, nil
}
