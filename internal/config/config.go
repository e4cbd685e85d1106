package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ah-its-andy/sparkconvert/internal/converter"
	"github.com/ah-its-andy/sparkconvert/internal/job"
)

type Config struct {
	OutputDir        string
	DBPath           string
	HTTPAddr         string
	WatchDirs        []string
	RulesFile        string
	MaxBatch         int
	MaxFileSize      int64
	PreserveMetadata bool
	Compression      string
	JobTimeout       time.Duration
	FFmpegBin        string
	CWebPBin         string
	TempDir          string
	StabilityDelay   time.Duration
	MD5ChunkSize     int64
}

func Load() *Config {
	cfg := &Config{}
	cfg.OutputDir = getEnv("SPARK_OUTPUT_DIR", "./converted")
	cfg.DBPath = getEnv("SPARK_DB_PATH", "./data/sparkconvert.db")
	cfg.HTTPAddr = getEnv("SPARK_HTTP_ADDR", "127.0.0.1:8000")
	cfg.WatchDirs = splitAndTrim(os.Getenv("SPARK_WATCH_DIRS"))
	cfg.RulesFile = os.Getenv("SPARK_RULES_FILE")
	cfg.MaxBatch = getEnvInt("SPARK_MAX_BATCH", job.DefaultMaxBatch)
	cfg.MaxFileSize = getEnvInt64("SPARK_MAX_FILE_SIZE", job.DefaultMaxFileSize)
	cfg.PreserveMetadata = getEnvBool("SPARK_PRESERVE_METADATA", true)
	cfg.Compression = getEnv("SPARK_COMPRESSION", string(converter.CompressionMedium))
	cfg.JobTimeout = getEnvDuration("SPARK_JOB_TIMEOUT", 0)
	cfg.FFmpegBin = getEnv("SPARK_FFMPEG_BIN", "ffmpeg")
	cfg.CWebPBin = getEnv("SPARK_CWEBP_BIN", "cwebp")
	cfg.TempDir = os.Getenv("SPARK_TEMP_DIR")
	cfg.StabilityDelay = getEnvDuration("SPARK_STABILITY_DELAY", time.Second)
	cfg.MD5ChunkSize = getEnvInt64("SPARK_MD5_CHUNK_SIZE", 4*1024*1024)
	return cfg
}

// Settings are the ambient conversion settings the config asks for.
func (c *Config) Settings() (converter.Settings, error) {
	level, err := converter.ParseCompression(c.Compression)
	if err != nil {
		return converter.Settings{}, err
	}
	return converter.Settings{PreserveMetadata: c.PreserveMetadata, Compression: level}, nil
}

func (c *Config) JobOptions() job.Options {
	return job.Options{MaxBatch: c.MaxBatch, MaxFileSize: c.MaxFileSize, JobTimeout: c.JobTimeout}
}

func (c *Config) Tools() converter.Tools {
	return converter.Tools{FFmpegBin: c.FFmpegBin, CWebPBin: c.CWebPBin, TempDir: c.TempDir}
}

func splitAndTrim(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, v, def)
		return def
	}
	return i
}

func getEnvInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Printf("Warning: invalid integer value for %s: %s, using default: %d", key, v, def)
		return def
	}
	return i
}

func getEnvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Warning: invalid boolean value for %s: %s, using default: %t", key, v, def)
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Warning: invalid duration value for %s: %s, using default: %v", key, v, def)
		return def
	}
	return d
}
