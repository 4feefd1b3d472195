package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/udovin/robojudge/internal/api"
	"github.com/udovin/robojudge/internal/config"
	"github.com/udovin/robojudge/internal/core"
	"github.com/udovin/robojudge/internal/managers"
	"github.com/udovin/robojudge/internal/pkg/logs"
)

var testCtx, testCancel = context.WithCancel(context.Background())

func resolveFile(files ...string) (string, error) {
	for _, file := range files {
		if len(file) == 0 {
			continue
		}
		if _, err := os.Stat(file); err == nil {
			return file, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
	}
	return "", os.ErrNotExist
}

// getConfig reads config with filename from '--config' flag.
func getConfig(cmd *cobra.Command) (config.Config, error) {
	flagFilename, err := cmd.Flags().GetString("config")
	if err != nil {
		return config.Config{}, err
	}
	envFilename := os.Getenv("ROBOJUDGE_CONFIG")
	resolved, err := resolveFile(flagFilename, envFilename)
	if err != nil {
		return config.Config{}, err
	}
	return config.LoadFromFile(resolved)
}

// newStartedCore creates core from config and starts it.
func newStartedCore(cmd *cobra.Command) *core.Core {
	cfg, err := getConfig(cmd)
	if err != nil {
		panic(err)
	}
	c, err := core.NewCore(cfg)
	if err != nil {
		panic(err)
	}
	if err := c.Start(); err != nil {
		panic(err)
	}
	return c
}

func isServerError(err error) bool {
	return err != nil && err != http.ErrServerClosed
}

func newServer(logger *logs.Logger) *echo.Echo {
	srv := echo.New()
	srv.Logger = logger
	srv.HideBanner, srv.HidePort = true, true
	srv.Pre(middleware.RemoveTrailingSlash())
	srv.Use(middleware.Recover(), middleware.Gzip())
	return srv
}

// serverMain starts HTTP server.
//
// Active check or simulation is canceled on shutdown and its
// processes are terminated before exit.
func serverMain(cmd *cobra.Command, _ []string) {
	c := newStartedCore(cmd)
	defer c.Stop()
	if c.Config.Server == nil {
		panic("section 'server' should be configured")
	}
	v, err := api.NewView(c)
	if err != nil {
		panic(err)
	}
	var waiter sync.WaitGroup
	defer waiter.Wait()
	ctx, cancel := signal.NotifyContext(
		testCtx, os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()
	srv := newServer(c.Logger())
	v.Register(srv.Group("/api"))
	waiter.Add(1)
	go func() {
		defer waiter.Done()
		defer cancel()
		if err := srv.Start(c.Config.Server.Address()); isServerError(err) {
			c.Logger().Error(err)
		}
	}()
	defer func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), time.Minute,
		)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			c.Logger().Error(err)
		}
	}()
	select {
	case <-ctx.Done():
	case <-c.Context().Done():
	}
}

func printJSON(cmd *cobra.Command, value any) {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "    ")
	if err := encoder.Encode(value); err != nil {
		panic(err)
	}
}

// checkMain checks archive and prints report.
func checkMain(cmd *cobra.Command, args []string) {
	c := newStartedCore(cmd)
	defer c.Stop()
	checks := managers.NewCheckManager(c)
	report, err := checks.Check(c.Context(), args[0])
	if err != nil {
		panic(err)
	}
	printJSON(cmd, report)
}

// simulateMain runs simulation of the latest checked archive.
func simulateMain(cmd *cobra.Command, _ []string) {
	pkg, err := cmd.Flags().GetString("package")
	if err != nil {
		panic(err)
	}
	executable, err := cmd.Flags().GetString("executable")
	if err != nil {
		panic(err)
	}
	c := newStartedCore(cmd)
	defer c.Stop()
	simulations, err := managers.NewSimulationManager(c, managers.NewCheckManager(c))
	if err != nil {
		panic(err)
	}
	ctx, cancel := signal.NotifyContext(
		testCtx, os.Interrupt, syscall.SIGTERM,
	)
	defer cancel()
	result, err := simulations.Simulate(ctx, managers.SimulateOptions{
		Package:    pkg,
		Executable: executable,
	})
	if result.RunID != "" {
		printJSON(cmd, result)
	}
	if err != nil {
		panic(err)
	}
}

func versionMain(cmd *cobra.Command, _ []string) {
	fmt.Fprintln(cmd.OutOrStdout(), "robojudge version:", config.Version)
}

// main is a main entry point.
//
// Robojudge can be used as HTTP server or as CLI that checks archive
// and runs simulation without server.
func main() {
	rootCmd := cobra.Command{Use: os.Args[0]}
	rootCmd.PersistentFlags().String("config", "config.json", "")
	rootCmd.AddCommand(&cobra.Command{
		Use:   "server",
		Run:   serverMain,
		Short: "Starts API server",
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "check <archive>",
		Args:  cobra.ExactArgs(1),
		Run:   checkMain,
		Short: "Checks submission archive",
	})
	simulateCmd := cobra.Command{
		Use:   "simulate",
		Run:   simulateMain,
		Short: "Runs simulation of checked submission",
	}
	simulateCmd.Flags().String("package", "", "Package of user executable")
	simulateCmd.Flags().String("executable", "", "User executable")
	rootCmd.AddCommand(&simulateCmd)
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Run:   versionMain,
		Short: "Prints information about version",
	})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
