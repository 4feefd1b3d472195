package models

// Report represents result of submission analysis.
type Report struct {
	RunID         string        `json:"run_id"`
	Status        Status        `json:"status"`
	Summary       string        `json:"summary"`
	ArchiveDigest string        `json:"archive_digest,omitempty"`
	CreateTime    int64         `json:"create_time"`
	Details       ReportDetails `json:"details"`
}

// Raise moves report status up to specified one.
//
// Summary is replaced only when status actually grows, so it always
// explains the worst finding.
func (r *Report) Raise(status Status, summary string) {
	if joined := r.Status.Join(status); joined != r.Status {
		r.Status = joined
		r.Summary = summary
	}
}

// ReportDetails contains results of check stages.
//
// Details are empty when archive can not be extracted.
type ReportDetails struct {
	StructureCheck *CheckResult `json:"structure_check,omitempty"`
	SyntaxCheck    *SyntaxCheck `json:"syntax_check,omitempty"`
	ROSAnalysis    *ROSAnalysis `json:"ros_analysis,omitempty"`
	Package        *PackageInfo `json:"package,omitempty"`
	ConfigCheck    *ConfigCheck `json:"config_check,omitempty"`
}

// CheckResult represents result of single check stage.
type CheckResult struct {
	Status    CheckStatus `json:"status"`
	Output    string      `json:"output"`
	ToolError string      `json:"tool_error,omitempty"`
}

// SyntaxCheck contains per-language syntax check results.
type SyntaxCheck struct {
	Python CheckResult `json:"python"`
	Cpp    CheckResult `json:"cpp"`
}

// Endpoint represents publisher or subscriber declaration.
type Endpoint struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
	File  string `json:"file"`
}

// ROSAnalysis contains results of heuristic source scan.
type ROSAnalysis struct {
	NodesFound     int        `json:"nodes_found"`
	Publishers     []Endpoint `json:"publishers"`
	Subscribers    []Endpoint `json:"subscribers"`
	SafetyWarnings []string   `json:"safety_warnings"`
}

// PackageInfo contains metadata of submitted package.
type PackageInfo struct {
	Name        string   `json:"name"`
	BuildType   string   `json:"build_type"`
	Executables []string `json:"executables"`

	// NodeExecutables contains executables whose entry source creates
	// ROS node.
	NodeExecutables []string `json:"node_executables"`
}

// ConfigCheck contains result of parameter files validation.
type ConfigCheck struct {
	Status CheckStatus `json:"status"`
	Output string      `json:"output"`
	Files  []string    `json:"files"`
}
