package analyzer

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/udovin/robojudge/internal/models"
)

// sourceFile represents source file of submission.
type sourceFile struct {
	// Path contains slash-separated path relative to submission root.
	Path    string
	Content string
}

var (
	nodeConstructorRegexp = regexp.MustCompile(`\b(?:Lifecycle)?Node\s*\(`)
	nodeClassRegexp       = regexp.MustCompile(`(?m)^\s*class\s+\w+\s*\([^)]*\b(?:Lifecycle)?Node\b`)
	publisherRegexp       = regexp.MustCompile(`create_publisher\s*\(\s*([\w.]+)\s*,\s*['"]([\w/]+)['"]`)
	subscriberRegexp      = regexp.MustCompile(`create_subscription\s*\(\s*([\w.]+)\s*,\s*['"]([\w/]+)['"]`)
	loopRegexp            = regexp.MustCompile(`^(\s*)while\s+(?:True|1)\s*:(.*)$`)
	decimalRegexp         = regexp.MustCompile(`(?:^|[^\w.])(\d+\.\d*(?:[eE][+-]?\d+)?|\.\d+(?:[eE][+-]?\d+)?)`)
)

// isNodeSource returns true if file looks like ROS node.
func isNodeSource(content string) bool {
	return strings.Contains(content, "rclpy.init") ||
		nodeConstructorRegexp.MatchString(content) ||
		nodeClassRegexp.MatchString(content)
}

var cppNodeRegexp = regexp.MustCompile(`\brclcpp::(?:init\s*\(|Node\b)`)

// isCppNodeSource reports whether C++ source initializes or defines node.
func isCppNodeSource(content string) bool {
	return cppNodeRegexp.MatchString(content)
}

func findEndpoints(re *regexp.Regexp, file sourceFile) []models.Endpoint {
	var endpoints []models.Endpoint
	for _, match := range re.FindAllStringSubmatch(file.Content, -1) {
		endpoints = append(endpoints, models.Endpoint{
			Topic: match[2],
			Type:  match[1],
			File:  file.Path,
		})
	}
	return endpoints
}

func leadingSpace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}

func isThrottled(text string) bool {
	return strings.Contains(text, "sleep") || strings.Contains(text, "rate")
}

// hasUnthrottledLoop returns true if file contains infinite loop whose
// body mentions neither sleep nor rate.
func hasUnthrottledLoop(content string) bool {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		match := loopRegexp.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		if body := strings.TrimSpace(match[2]); body != "" && !strings.HasPrefix(body, "#") {
			if !isThrottled(body) {
				return true
			}
			continue
		}
		indent := len(match[1])
		throttled := false
		for _, next := range lines[i+1:] {
			trimmed := strings.TrimSpace(next)
			if trimmed == "" || strings.HasPrefix(trimmed, "#") {
				continue
			}
			if len(leadingSpace(next)) <= indent {
				break
			}
			if isThrottled(next) {
				throttled = true
				break
			}
		}
		if !throttled {
			return true
		}
	}
	return false
}

// isUnsafeMagnitude returns true for values near pi or beyond 5.0.
func isUnsafeMagnitude(v float64) bool {
	v = math.Abs(v)
	return (v >= 3.14 && v < 3.2) || v >= 5.0
}

// findUnsafeMagnitude returns first suspicious decimal literal.
func findUnsafeMagnitude(content string) (string, bool) {
	for _, match := range decimalRegexp.FindAllStringSubmatch(content, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		if isUnsafeMagnitude(value) {
			return match[1], true
		}
	}
	return "", false
}

// scanSources applies heuristic rules to Python sources.
//
// Files should be sorted by path, results preserve source order.
func scanSources(files []sourceFile) models.ROSAnalysis {
	analysis := models.ROSAnalysis{
		Publishers:     []models.Endpoint{},
		Subscribers:    []models.Endpoint{},
		SafetyWarnings: []string{},
	}
	for _, file := range files {
		if isNodeSource(file.Content) {
			analysis.NodesFound++
		}
		analysis.Publishers = append(analysis.Publishers, findEndpoints(publisherRegexp, file)...)
		analysis.Subscribers = append(analysis.Subscribers, findEndpoints(subscriberRegexp, file)...)
		if hasUnthrottledLoop(file.Content) {
			analysis.SafetyWarnings = append(analysis.SafetyWarnings, fmt.Sprintf(
				"File %s: Potential un-throttled loop detected.", file.Path,
			))
		}
		if value, ok := findUnsafeMagnitude(file.Content); ok {
			analysis.SafetyWarnings = append(analysis.SafetyWarnings, fmt.Sprintf(
				"File %s: Hardcoded value %s that could be outside safe joint limits detected.", file.Path, value,
			))
		}
	}
	return analysis
}
