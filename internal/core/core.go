package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/labstack/gommon/log"

	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/pkg/logs"
	"github.com/udovin/robojudge/internal/pkg/storage"
)

// Core manages all available resources.
type Core struct {
	// Config contains config.
	Config config.Config
	// Storage contains storage for reports and logs.
	Storage storage.Storage
	// Runs contains registry of active run.
	Runs *RunRegistry
	//
	context context.Context
	cancel  context.CancelFunc
	waiter  sync.WaitGroup
	//
	taskContext context.Context
	taskCancel  context.CancelFunc
	taskWaiter  sync.WaitGroup
	// logger contains logger.
	logger *logs.Logger
}

// NewCore creates core instance from config.
func NewCore(cfg config.Config) (*Core, error) {
	storageCfg := config.DefaultStorage()
	if cfg.Storage != nil {
		storageCfg = *cfg.Storage
	}
	files, err := storage.NewStorage(storageCfg)
	if err != nil {
		return nil, fmt.Errorf("cannot create storage: %w", err)
	}
	logger := logs.NewLogger()
	logger.SetLevel(log.Lvl(cfg.LogLevel))
	return &Core{
		Config:  cfg,
		Storage: files,
		Runs:    NewRunRegistry(),
		logger:  logger,
	}, nil
}

// Logger returns logger instance.
func (c *Core) Logger() *logs.Logger {
	return c.logger
}

// Start starts application.
func (c *Core) Start() error {
	if c.cancel != nil {
		return fmt.Errorf("core already started")
	}
	c.Logger().Debug("Starting core")
	c.context, c.cancel = context.WithCancel(context.Background())
	c.taskContext, c.taskCancel = context.WithCancel(c.context)
	c.Logger().Debug("Core started")
	return nil
}

// Stop cancels active run and waits for all tasks.
func (c *Core) Stop() {
	if c.cancel == nil {
		return
	}
	c.Logger().Debug("Stopping core")
	defer c.Logger().Debug("Core stopped")
	c.Runs.Cancel()
	c.taskCancel()
	c.taskWaiter.Wait()
	c.cancel()
	c.waiter.Wait()
	c.context, c.cancel = nil, nil
}

// Context returns context of started core.
func (c *Core) Context() context.Context {
	return c.context
}

// StartTask starts task in new goroutine.
func (c *Core) StartTask(name string, task func(ctx context.Context)) {
	c.Logger().Info("Start task", logs.Any("task", name))
	c.taskWaiter.Add(1)
	c.startCoreTask(func() {
		defer c.taskWaiter.Done()
		defer c.Logger().Info("Task finished", logs.Any("task", name))
		task(c.taskContext)
	})
}

func (c *Core) startCoreTask(task func()) {
	c.waiter.Add(1)
	go func() {
		defer c.waiter.Done()
		task()
	}()
}
