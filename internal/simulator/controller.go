// Package simulator drives simulation sessions of submitted code.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/models"
	"github.com/udovin/robojudge/internal/pkg/logs"
	"github.com/udovin/robojudge/internal/pkg/procgroup"
)

const (
	defaultShell         = "/bin/bash"
	defaultSetup         = "~/workspaces/ur_gazebo/install/setup.bash"
	defaultWorld         = "worlds/task_world.sdf"
	defaultLaunchPackage = "ur_simulation_gazebo"
	defaultLaunchFile    = "ur_sim_control.launch.py"
	defaultTopic         = "/joint_states"
	defaultMarker        = "position"
	defaultLogFile       = "logs/sim_output.log"

	defaultSettleTime   = 15 * time.Second
	defaultDuration     = 20 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultQueryTimeout = 3 * time.Second
	defaultGracePeriod  = 2 * time.Second

	logTimeLayout = "2006-01-02 15:04:05"
)

// ErrLaunchFailed means that environment or user executable could not
// be started.
var ErrLaunchFailed = errors.New("launch failed")

// Options contains user executable identity.
type Options struct {
	Package    string
	Executable string
}

// Controller runs simulation sessions.
//
// Controller does not serialize runs, callers should guarantee that at
// most one run is active.
type Controller struct {
	templates    commandTemplates
	data         commandData
	marker       string
	logFile      string
	settleTime   time.Duration
	duration     time.Duration
	pollInterval time.Duration
	queryTimeout time.Duration
	gracePeriod  time.Duration
	launcher     Launcher
	prober       Prober
	clock        Clock
	logger       *logs.Logger
}

// NewController creates controller from config.
func NewController(cfg config.Simulator, logger *logs.Logger) (*Controller, error) {
	templates, err := parseCommands(cfg.EnvironmentCommand, cfg.UserCommand, cfg.TelemetryCommand)
	if err != nil {
		return nil, err
	}
	environ, err := readEnvFile(cfg.EnvFile)
	if err != nil {
		return nil, err
	}
	c := Controller{
		templates: templates,
		data: commandData{
			Setup:         orElse(cfg.Setup, defaultSetup),
			World:         orElse(cfg.World, defaultWorld),
			LaunchPackage: orElse(cfg.LaunchPackage, defaultLaunchPackage),
			LaunchFile:    orElse(cfg.LaunchFile, defaultLaunchFile),
			Topic:         orElse(cfg.TelemetryTopic, defaultTopic),
			Workspace:     cfg.Workspace,
		},
		marker:       orElse(cfg.TelemetryMarker, defaultMarker),
		logFile:      orElse(cfg.LogFile, defaultLogFile),
		settleTime:   cfg.SettleTime.OrElse(defaultSettleTime),
		duration:     cfg.Duration.OrElse(defaultDuration),
		pollInterval: cfg.PollInterval.OrElse(defaultPollInterval),
		queryTimeout: cfg.QueryTimeout.OrElse(defaultQueryTimeout),
		gracePeriod:  cfg.GracePeriod.OrElse(defaultGracePeriod),
		clock:        realClock{},
		logger:       logger,
	}
	if abs, err := filepath.Abs(c.data.World); err == nil {
		c.data.World = abs
	}
	shell := orElse(cfg.Shell, defaultShell)
	c.launcher = shellLauncher{shell: shell, workdir: cfg.Workspace, environ: environ}
	c.prober = shellProber{shell: shell, workdir: cfg.Workspace, environ: environ}
	return &c, nil
}

// LogFile returns path of simulation log.
func (c *Controller) LogFile() string {
	return c.logFile
}

// Ticks returns amount of telemetry polls in monitored window.
func (c *Controller) Ticks() int {
	ticks := int(c.duration / c.pollInterval)
	if ticks < 1 {
		return 1
	}
	return ticks
}

// Run runs simulation session and returns its verdict.
//
// Returned error wraps ErrLaunchFailed if any process could not be
// started and equals context error if run was canceled. In both cases
// result status is FAIL. Launched process groups are always terminated
// before Run returns.
func (c *Controller) Run(ctx context.Context, runID string, options Options) (models.SimulationResult, error) {
	result := models.SimulationResult{
		RunID:  runID,
		Status: models.FailStatus,
		Ticks:  []models.TickResult{},
	}
	logger := c.logger.With(logs.Any("run_id", runID))
	if err := os.MkdirAll(filepath.Dir(c.logFile), os.ModePerm); err != nil {
		return result, fmt.Errorf("cannot create log dir: %w", err)
	}
	file, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return result, fmt.Errorf("cannot create log file: %w", err)
	}
	defer func() { _ = file.Close() }()
	run := session{
		Controller: c,
		log:        file,
		logger:     logger,
	}
	run.printf("--- Simulation Start: %s (run %s) ---", c.clock.Now().Format(logTimeLayout), runID)
	err = run.execute(ctx, options, &result)
	run.teardown()
	if err == nil && result.MotionDetected {
		result.Status = models.PassStatus
	}
	run.printf("Simulation Result: %s", result.Status)
	logger.Info(
		"Simulation finished",
		logs.Any("status", result.Status),
		logs.Any("motion_detected", result.MotionDetected),
	)
	return result, err
}

// session represents state of single run.
type session struct {
	*Controller
	log       io.Writer
	logger    *logs.Logger
	processes []Process
	once      sync.Once
}

func (s *session) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.log, format+"\n", args...)
}

func (s *session) launch(name string, command string) error {
	process, err := s.launcher.Launch(command, s.log)
	if err != nil {
		s.printf("ERROR launching %s: %v", name, err)
		s.logger.Error("Cannot launch "+name, err)
		return fmt.Errorf("%w: %s: %v", ErrLaunchFailed, name, err)
	}
	s.processes = append(s.processes, process)
	s.printf("Launched %s with process group: %d", name, process.ID())
	return nil
}

func (s *session) execute(ctx context.Context, options Options, result *models.SimulationResult) error {
	data := s.data
	data.Package = options.Package
	data.Executable = options.Executable
	environment, err := renderCommand(s.templates.environment, data)
	if err != nil {
		return err
	}
	user, err := renderCommand(s.templates.user, data)
	if err != nil {
		return err
	}
	telemetry, err := renderCommand(s.templates.telemetry, data)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.launch("environment", environment); err != nil {
		return err
	}
	s.printf("Waiting %s for environment to stabilize...", s.settleTime)
	if err := s.clock.Sleep(ctx, s.settleTime); err != nil {
		s.printf("Simulation canceled")
		return err
	}
	if err := s.launch("user executable", user); err != nil {
		return err
	}
	s.printf("Running simulation for %s...", s.duration)
	for i := 0; i < s.Ticks(); i++ {
		if err := s.clock.Sleep(ctx, s.pollInterval); err != nil {
			s.printf("Simulation canceled")
			return err
		}
		offset := time.Duration(i+1) * s.pollInterval
		tick, err := s.poll(ctx, telemetry)
		if err != nil {
			s.printf("Simulation canceled")
			return err
		}
		tick.Index = i
		tick.Offset = offset.Seconds()
		switch tick.Outcome {
		case models.TickConfirmed:
			result.MotionDetected = true
			s.printf("Motion confirmed at time: %s", offset)
		case models.TickTimeout:
			s.printf("Telemetry query timed out at time: %s", offset)
		case models.TickError:
			s.printf("Telemetry query failed at time: %s: %s", offset, tick.Message)
		default:
			s.printf("No telemetry received at time: %s", offset)
		}
		result.Ticks = append(result.Ticks, tick)
	}
	return nil
}

// poll issues single telemetry query.
//
// Only cancellation of context is returned as error, all tool problems
// are reported as tick outcome.
func (s *session) poll(ctx context.Context, command string) (models.TickResult, error) {
	output, err := s.prober.Query(ctx, command, s.queryTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return models.TickResult{}, ctxErr
		}
		if errors.Is(err, procgroup.ErrTimeout) {
			return models.TickResult{Outcome: models.TickTimeout}, nil
		}
		s.logger.Warn("Telemetry query failed", err)
		return models.TickResult{Outcome: models.TickError, Message: err.Error()}, nil
	}
	if strings.Contains(output, s.marker) {
		return models.TickResult{Outcome: models.TickConfirmed}, nil
	}
	return models.TickResult{Outcome: models.TickUnconfirmed}, nil
}

// teardown terminates launched process groups in launch order.
//
// Errors are ignored since processes may already be gone.
func (s *session) teardown() {
	s.once.Do(func() {
		if len(s.processes) == 0 {
			return
		}
		s.printf("--- Simulation End, Killing processes ---")
		for _, process := range s.processes {
			_ = process.Terminate()
		}
		// Grace period is not interrupted by cancellation.
		_ = s.clock.Sleep(context.Background(), s.gracePeriod)
		for _, process := range s.processes {
			process.Release()
		}
	})
}

func orElse(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
