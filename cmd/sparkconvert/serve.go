package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ah-its-andy/sparkconvert/internal/api"
	"github.com/ah-its-andy/sparkconvert/internal/config"
	"github.com/ah-its-andy/sparkconvert/internal/watcher"
	"github.com/ah-its-andy/sparkconvert/internal/worker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the local HTTP API, the background worker and the watch folder",
		Flags: append(conversionFlags(),
			&cli.StringFlag{
				Name:  "addr",
				Usage: "listen address (SPARK_HTTP_ADDR)",
			},
			&cli.StringSliceFlag{
				Name:  "watch",
				Usage: "directory to watch, repeatable (SPARK_WATCH_DIRS)",
			},
			&cli.StringFlag{
				Name:  "rules",
				Usage: "YAML file mapping media types to default targets (SPARK_RULES_FILE)",
			},
			&cli.BoolFlag{
				Name:  "scan",
				Usage: "submit files already in the watched directories at startup",
			},
		),
		Action: runServe,
	}
}

const logRetention = time.Hour

func runServe(c *cli.Context) error {
	cfg := loadConfig(c)
	if c.IsSet("addr") {
		cfg.HTTPAddr = c.String("addr")
	}
	if c.IsSet("watch") {
		cfg.WatchDirs = c.StringSlice("watch")
	}
	if c.IsSet("rules") {
		cfg.RulesFile = c.String("rules")
	}
	rules, err := config.LoadRules(cfg.RulesFile)
	if err != nil {
		return err
	}

	log.Println("Starting sparkconvert...")
	log.Printf("  Output Dir: %s", cfg.OutputDir)
	log.Printf("  DB Path: %s", cfg.DBPath)
	log.Printf("  Watch Dirs: %v", cfg.WatchDirs)
	log.Printf("  Compression: %s", cfg.Compression)
	log.Printf("  Preserve Metadata: %t", cfg.PreserveMetadata)
	checkExternalTools(cfg)

	s, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := worker.NewRunner(s.manager, worker.NewQueue())
	runnerDone := make(chan struct{})
	go func() {
		runner.Run(ctx)
		close(runnerDone)
	}()

	deps := api.Deps{
		Manager: s.manager,
		Router:  s.router,
		Runner:  runner,
		Logs:    s.logs,
		Store:   s.store,
	}
	if len(cfg.WatchDirs) > 0 {
		w, err := watcher.New(watcher.Options{
			Dirs:           cfg.WatchDirs,
			StabilityDelay: cfg.StabilityDelay,
			BatchSize:      cfg.MaxBatch,
			Rules:          rules,
			IgnoreDir:      cfg.OutputDir,
		}, s.manager, runner)
		if err != nil {
			return err
		}
		defer w.Close()
		go func() {
			if err := w.Start(ctx); err != nil {
				log.Printf("[Watcher] stopped: %v", err)
			}
		}()
		if c.Bool("scan") {
			go w.ScanAll()
		}
		deps.Watch = w
	}

	go func() {
		t := time.NewTicker(10 * time.Minute)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if n := s.logs.CleanOldLogs(logRetention); n > 0 {
					log.Printf("[API] dropped %d old job log(s)", n)
				}
			}
		}
	}()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: api.NewServer(deps).Router}
	errc := make(chan error, 1)
	go func() {
		log.Printf("API listening on http://%s/api", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		stop()
		<-runnerDone
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// A job that is converting is never interrupted; wait for it.
	<-runnerDone
	log.Println("Shutdown complete")
	return nil
}
