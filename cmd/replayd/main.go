// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"replay/pkg/config"
	"replay/pkg/log"
	"replay/pkg/playout"
	"replay/pkg/registry"
	"replay/pkg/storage"
	"replay/pkg/system"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run() error {
	envFlag := flag.String("env", "", "path to env.yaml")
	flag.Parse()

	if *envFlag == "" {
		flag.Usage()
		return nil
	}

	envPath, err := filepath.Abs(*envFlag)
	if err != nil {
		return fmt.Errorf("absolute path of env.yaml: %w", err)
	}

	wg := &sync.WaitGroup{}
	app, err := newApp(envPath, wg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fatal := make(chan error, 1)
	go func() { fatal <- app.run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-fatal:
		app.logger.Error().Src("app").Msgf("fatal error: %v", err)
	case sig := <-stop:
		app.logger.Info().Src("app").Msgf("received %v, stopping", sig)
	}

	cancel()
	app.scheduler.Wait()
	wg.Wait()
	return err
}

type app struct {
	wg        *sync.WaitGroup
	env       *config.Env
	logger    *log.Logger
	logDB     *log.DB
	registry  *registry.Registry
	storage   *storage.Manager
	scheduler *playout.Scheduler
	system    *system.System
}

func newApp(envPath string, wg *sync.WaitGroup) (*app, error) {
	envYAML, err := os.ReadFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("read env.yaml: %w", err)
	}

	env, err := config.NewEnv(envPath, envYAML)
	if err != nil {
		return nil, fmt.Errorf("environment config: %w", err)
	}

	logger := log.NewLogger(wg)
	logDB := log.NewDB(env.LogDBPath(), wg)

	reg := registry.New()
	storageManager := storage.NewManager(env.RecordingsDir(), reg, logger)
	scheduler := playout.NewScheduler(reg, logger)

	return &app{
		wg:        wg,
		env:       env,
		logger:    logger,
		logDB:     logDB,
		registry:  reg,
		storage:   storageManager,
		scheduler: scheduler,
		system:    system.New(env.StorageDir, logger),
	}, nil
}

func (a *app) run(ctx context.Context) error {
	a.logger.Start(ctx)
	go a.logger.LogToStdout(ctx)

	if err := a.logDB.Init(ctx); err != nil {
		// Continue even if log database is corrupt.
		time.Sleep(10 * time.Millisecond)
		a.logger.Error().Src("app").Msgf("initialize log database: %v", err)
	} else {
		go a.logDB.SaveLogs(ctx, a.logger)
		time.Sleep(10 * time.Millisecond)
	}

	a.logger.Info().Src("app").Msg("starting..")

	if err := a.env.PrepareEnvironment(); err != nil {
		return fmt.Errorf("prepare environment: %w", err)
	}

	if err := a.storage.Import(); err != nil {
		return fmt.Errorf("import recordings: %w", err)
	}
	a.logger.Info().Src("app").
		Msgf("serving %d recording(s) from %v",
			len(a.registry.ListCompleted()), a.storage.RecordingsDir())

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.system.StatusLoop(ctx)
		return nil
	})
	return g.Wait()
}
