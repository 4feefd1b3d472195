package analyzer

import (
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/udovin/robojudge/internal/models"
)

const (
	manifestFile   = "package.xml"
	cmakeBuildFile = "CMakeLists.txt"
	pythonBuild    = "setup.py"

	structurePassedOutput = "package.xml and build file found."
	structureFailedOutput = "Missing package.xml or build file."
)

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// checkStructure checks that manifest and build descriptor exist.
func checkStructure(root string) (models.CheckResult, bool) {
	hasManifest := fileExists(filepath.Join(root, manifestFile))
	hasBuild := fileExists(filepath.Join(root, cmakeBuildFile)) ||
		fileExists(filepath.Join(root, pythonBuild))
	if hasManifest && hasBuild {
		return models.CheckResult{
			Status: models.CheckPassed,
			Output: structurePassedOutput,
		}, true
	}
	return models.CheckResult{
		Status: models.CheckFailed,
		Output: structureFailedOutput,
	}, false
}

type packageManifest struct {
	Name   string `xml:"name"`
	Export struct {
		BuildType string `xml:"build_type"`
	} `xml:"export"`
}

var (
	consoleScriptRegexp = regexp.MustCompile(`['"]\s*([\w.-]+)\s*=\s*([\w.]+)\s*:\s*[\w.]+\s*['"]`)
	addExecutableRegexp = regexp.MustCompile(`(?i)add_executable\s*\(\s*([\w.-]+)([^)]*)\)?`)
)

// entryPoint contains candidate source paths of executable.
type entryPoint struct {
	Executable string
	Sources    []string
}

// pythonModuleSources returns candidate files of dotted module name.
func pythonModuleSources(module string) []string {
	path := strings.ReplaceAll(module, ".", "/")
	return []string{path + ".py", path + "/__init__.py"}
}

// cmakeSources returns literal source files of add_executable call.
func cmakeSources(args string) []string {
	var sources []string
	for _, field := range strings.Fields(args) {
		if strings.ContainsAny(field, "${}") {
			continue
		}
		sources = append(sources, strings.TrimPrefix(field, "./"))
	}
	return sources
}

// readPackageInfo extracts package metadata from manifest and build
// descriptors. Unreadable files are ignored.
func readPackageInfo(root string) (*models.PackageInfo, []entryPoint) {
	var info models.PackageInfo
	var entries []entryPoint
	found := false
	if data, err := os.ReadFile(filepath.Join(root, manifestFile)); err == nil {
		found = true
		var manifest packageManifest
		if err := xml.Unmarshal(data, &manifest); err == nil {
			info.Name = strings.TrimSpace(manifest.Name)
			info.BuildType = strings.TrimSpace(manifest.Export.BuildType)
		}
	}
	hasCMake, hasSetup := false, false
	if data, err := os.ReadFile(filepath.Join(root, cmakeBuildFile)); err == nil {
		found, hasCMake = true, true
		for _, match := range addExecutableRegexp.FindAllStringSubmatch(string(data), -1) {
			info.Executables = append(info.Executables, match[1])
			entries = append(entries, entryPoint{
				Executable: match[1],
				Sources:    cmakeSources(match[2]),
			})
		}
	}
	if data, err := os.ReadFile(filepath.Join(root, pythonBuild)); err == nil {
		found, hasSetup = true, true
		for _, match := range consoleScriptRegexp.FindAllStringSubmatch(string(data), -1) {
			info.Executables = append(info.Executables, match[1])
			entries = append(entries, entryPoint{
				Executable: match[1],
				Sources:    pythonModuleSources(match[2]),
			})
		}
	}
	if !found {
		return nil, nil
	}
	if info.BuildType == "" {
		switch {
		case hasCMake:
			info.BuildType = "ament_cmake"
		case hasSetup:
			info.BuildType = "ament_python"
		}
	}
	slices.Sort(info.Executables)
	info.Executables = slices.Compact(info.Executables)
	if info.Executables == nil {
		info.Executables = []string{}
	}
	info.NodeExecutables = []string{}
	return &info, entries
}

// findSource returns file matching source path of entry point.
//
// Sources are matched by path suffix, so packages nested into
// archive directory are resolved too.
func findSource(files []sourceFile, source string) (sourceFile, bool) {
	for _, file := range files {
		if file.Path == source || strings.HasSuffix(file.Path, "/"+source) {
			return file, true
		}
	}
	return sourceFile{}, false
}

// nodeExecutables returns executables whose entry source is node-like.
func nodeExecutables(entries []entryPoint, pythonFiles, cppFiles []sourceFile) []string {
	executables := []string{}
	for _, entry := range entries {
		for _, source := range entry.Sources {
			if file, ok := findSource(pythonFiles, source); ok && isNodeSource(file.Content) {
				executables = append(executables, entry.Executable)
				break
			}
			if file, ok := findSource(cppFiles, source); ok && isCppNodeSource(file.Content) {
				executables = append(executables, entry.Executable)
				break
			}
		}
	}
	slices.Sort(executables)
	return slices.Compact(executables)
}
