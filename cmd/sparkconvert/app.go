package main

import (
	"fmt"
	"log"
	"os/exec"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/ah-its-andy/sparkconvert/internal/config"
	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/db"
	"github.com/ah-its-andy/sparkconvert/internal/delivery"
	"github.com/ah-its-andy/sparkconvert/internal/job"
	"github.com/ah-its-andy/sparkconvert/internal/livelog"
)

// storeFlags locate the usage database.
func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "path of the sqlite database (SPARK_DB_PATH)",
		},
	}
}

// conversionFlags are shared by every command that converts.
func conversionFlags() []cli.Flag {
	return append(storeFlags(),
		&cli.StringFlag{
			Name:    "out",
			Aliases: []string{"o"},
			Usage:   "directory converted files are saved to (SPARK_OUTPUT_DIR)",
		},
		&cli.StringFlag{
			Name:  "compression",
			Usage: "none, low, medium or high (SPARK_COMPRESSION)",
		},
		&cli.BoolFlag{
			Name:  "strip-metadata",
			Usage: "drop EXIF and container metadata from outputs",
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "limit for a single conversion, 0 for none (SPARK_JOB_TIMEOUT)",
		},
	)
}

// loadConfig reads the environment, then applies the flags that were set.
func loadConfig(c *cli.Context) *config.Config {
	cfg := config.Load()
	if c.IsSet("db") {
		cfg.DBPath = c.String("db")
	}
	if c.IsSet("out") {
		cfg.OutputDir = c.String("out")
	}
	if c.IsSet("compression") {
		cfg.Compression = c.String("compression")
	}
	if c.IsSet("strip-metadata") {
		cfg.PreserveMetadata = !c.Bool("strip-metadata")
	}
	if c.IsSet("timeout") {
		cfg.JobTimeout = c.Duration("timeout")
	}
	return cfg
}

// session wires one manager to its strategies, store and output directory.
type session struct {
	cfg     *config.Config
	gdb     *gorm.DB
	store   *db.Store
	router  *converter.Router
	media   *converter.MediaStrategy
	logs    *livelog.Manager
	manager *job.Manager
}

func newSession(cfg *config.Config) (*session, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	gdb, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	store := db.NewStore(gdb)
	router, media := converter.NewDefaultRouter(cfg.Tools())
	logs := livelog.NewManager()
	m := job.NewManager(router, cfg.JobOptions(), job.Hooks{
		Delivery: delivery.NewFileSaver(cfg.OutputDir),
		Usage:    store,
		History:  store,
		Logs:     logs,
	})
	m.SetSettings(settings)
	return &session{cfg: cfg, gdb: gdb, store: store, router: router, media: media, logs: logs, manager: m}, nil
}

func (s *session) Close() {
	if err := s.media.Close(); err != nil {
		log.Printf("close transcoder: %v", err)
	}
	if err := db.Close(s.gdb); err != nil {
		log.Printf("close database: %v", err)
	}
}

// withStore opens only the database for read-only commands.
func withStore(f func(store *db.Store, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg := loadConfig(c)
		gdb, err := db.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer db.Close(gdb)
		return f(db.NewStore(gdb), c)
	}
}

// checkExternalTools reports which optional binaries were found.
func checkExternalTools(cfg *config.Config) {
	log.Println("Checking external tools:")
	for _, tool := range []struct{ name, bin, needed string }{
		{"ffmpeg", cfg.FFmpegBin, "video and audio"},
		{"cwebp", cfg.CWebPBin, "WebP output"},
	} {
		if _, err := exec.LookPath(tool.bin); err != nil {
			log.Printf("  %s: NOT FOUND (%s conversions will fail)", tool.name, tool.needed)
		} else {
			log.Printf("  %s: found", tool.name)
		}
	}
}
