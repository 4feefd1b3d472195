package managers

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/udovin/algo/futures"
	"golang.org/x/exp/slices"

	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/logs"
	"github.com/udovin/robojudge/internal/simulator"
)

const (
	// LogKey contains storage key of simulation log.
	LogKey = "sim_output.log"

	defaultPackage    = "user_package"
	defaultExecutable = "user_node_exec"
)

var (
	// ErrCheckFailed means that the latest report has FAIL status.
	ErrCheckFailed = errors.New("code checker failed")
	// ErrUnknownExecutable means that requested executable is not
	// declared by submitted package.
	ErrUnknownExecutable = errors.New("unknown executable")
)

// SimulateOptions contains requested user executable.
//
// Empty fields are resolved from the latest report and config.
type SimulateOptions struct {
	Package    string `json:"package,omitempty"`
	Executable string `json:"executable,omitempty"`
}

type simulationController interface {
	Run(ctx context.Context, runID string, options simulator.Options) (models.SimulationResult, error)
	LogFile() string
}

// SimulationManager runs gated simulation sessions.
type SimulationManager struct {
	core       *core.Core
	checks     *CheckManager
	controller simulationController
}

// NewSimulationManager creates manager from core config.
func NewSimulationManager(c *core.Core, checks *CheckManager) (*SimulationManager, error) {
	controller, err := simulator.NewController(c.Config.Simulator, c.Logger())
	if err != nil {
		return nil, err
	}
	return &SimulationManager{
		core:       c,
		checks:     checks,
		controller: controller,
	}, nil
}

// LogFile returns path of live simulation log.
func (m *SimulationManager) LogFile() string {
	return m.controller.LogFile()
}

// ResolveOptions checks that simulation is allowed and resolves user
// executable identity.
func (m *SimulationManager) ResolveOptions(
	ctx context.Context, options SimulateOptions,
) (simulator.Options, error) {
	report, err := m.checks.LastReport(ctx)
	if err != nil {
		return simulator.Options{}, err
	}
	if report.Status == models.FailStatus {
		return simulator.Options{}, ErrCheckFailed
	}
	var info models.PackageInfo
	if report.Details.Package != nil {
		info = *report.Details.Package
	}
	cfg := m.core.Config.Simulator
	resolved := simulator.Options{
		Package:    firstNonEmpty(options.Package, info.Name, cfg.DefaultPackage, defaultPackage),
		Executable: options.Executable,
	}
	if resolved.Executable != "" {
		if len(info.Executables) > 0 && !slices.Contains(info.Executables, resolved.Executable) {
			return simulator.Options{}, fmt.Errorf("%w: %q", ErrUnknownExecutable, resolved.Executable)
		}
		return resolved, nil
	}
	candidates := info.NodeExecutables
	if len(candidates) == 0 {
		candidates = info.Executables
	}
	switch len(candidates) {
	case 0:
		resolved.Executable = firstNonEmpty(cfg.DefaultExecutable, defaultExecutable)
	case 1:
		resolved.Executable = candidates[0]
	default:
		return simulator.Options{}, fmt.Errorf(
			"%w: executable should be one of: %s",
			ErrUnknownExecutable, strings.Join(candidates, ", "),
		)
	}
	return resolved, nil
}

// Simulate runs simulation of the latest checked submission.
//
// Run is executed as core task and is canceled only by core stop or
// registry cancellation, so cancellation of ctx only stops waiting.
// Report is read after the slot is acquired, so it can not be replaced
// by concurrent check.
func (m *SimulationManager) Simulate(
	ctx context.Context, options SimulateOptions,
) (models.SimulationResult, error) {
	guard, err := m.core.Runs.Acquire(m.core.Context(), models.SimulationRun)
	if err != nil {
		return models.SimulationResult{}, err
	}
	resolved, err := m.ResolveOptions(ctx, options)
	if err != nil {
		guard.Release()
		return models.SimulationResult{}, err
	}
	future, setResult := futures.New[models.SimulationResult]()
	m.core.StartTask("simulation", func(context.Context) {
		defer guard.Release()
		setResult(m.run(guard, resolved))
	})
	return future.Get(ctx)
}

func (m *SimulationManager) run(
	guard *core.RunGuard, options simulator.Options,
) (models.SimulationResult, error) {
	logger := m.core.Logger().With(logs.Any("run_id", guard.Info().ID))
	logger.Info(
		"Simulation started",
		logs.Any("package", options.Package),
		logs.Any("executable", options.Executable),
	)
	result, err := m.controller.Run(guard.Context(), guard.Info().ID, options)
	if archiveErr := m.archiveLog(); archiveErr != nil {
		logger.Warn("Cannot archive simulation log", archiveErr)
	}
	return result, err
}

// archiveLog copies live log into storage.
func (m *SimulationManager) archiveLog() error {
	file, err := os.Open(m.controller.LogFile())
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	return m.core.Storage.Put(context.Background(), LogKey, file)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
