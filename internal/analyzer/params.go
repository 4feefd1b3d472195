package analyzer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/udovin/robojudge/internal/models"
)

func isParamsFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func validateYAML(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	decoder := yaml.NewDecoder(file)
	for {
		var value any
		if err := decoder.Decode(&value); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// checkParams validates YAML parameter files.
//
// Result of this check is informational and does not affect status
// of report.
func checkParams(root string, files []string) *models.ConfigCheck {
	check := models.ConfigCheck{
		Status: models.CheckSkipped,
		Output: "No parameter files found.",
		Files:  []string{},
	}
	var problems []string
	for _, path := range files {
		if !isParamsFile(path) {
			continue
		}
		check.Files = append(check.Files, path)
		if err := validateYAML(filepath.Join(root, filepath.FromSlash(path))); err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", path, err))
		}
	}
	if len(check.Files) == 0 {
		return &check
	}
	if len(problems) > 0 {
		check.Status = models.CheckWarned
		check.Output = "Invalid parameter files:\n" + strings.Join(problems, "\n")
		return &check
	}
	check.Status = models.CheckPassed
	check.Output = "Parameter files are valid."
	return &check
}
