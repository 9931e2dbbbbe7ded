package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"shepherd/pkg/chart"
)

// serverConfig is read from the environment once at startup.
type serverConfig struct {
	Port         string
	JWTSecret    string
	DocumentBase string
	TemplatePath string
	OCRTimeout   time.Duration
	OCRUpscale   int
	Workers      int
	AutoMigrate  bool

	// ShutdownTimeout bounds how long shutdown waits for in-flight runs.
	ShutdownTimeout time.Duration
}

func loadConfig() serverConfig {
	cfg := serverConfig{
		Port:         envOr("PORT", "8081"),
		JWTSecret:    envOr("JWT_SECRET", "dev-insecure-secret-change"), // development fallback
		DocumentBase: envOr("DOCUMENT_BASE", "documents"),
		TemplatePath: os.Getenv("CHART_TEMPLATE"),
		OCRTimeout:   10 * time.Second,
		AutoMigrate:  true,

		ShutdownTimeout: time.Minute,
	}
	if v := os.Getenv("OCR_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.OCRTimeout = d
		} else {
			log.Printf("ignoring invalid OCR_TIMEOUT %q", v)
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		} else {
			log.Printf("ignoring invalid SHUTDOWN_TIMEOUT %q", v)
		}
	}
	cfg.OCRUpscale = envInt("OCR_UPSCALE", 0)
	cfg.Workers = envInt("ANALYSIS_WORKERS", 0)
	// DB_AUTO_MIGRATE=false|0|no disables schema migration
	if v := os.Getenv("DB_AUTO_MIGRATE"); v != "" {
		lv := strings.ToLower(v)
		if lv == "false" || lv == "0" || lv == "no" {
			cfg.AutoMigrate = false
		}
	}
	return cfg
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("ignoring invalid %s %q", key, v)
		return def
	}
	return n
}

func mustTemplate(path string) chart.Template {
	tmpl, err := chart.LoadTemplate(path)
	if err != nil {
		log.Fatalf("load chart template: %v", err)
	}
	return tmpl
}
