package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"shepherd/pkg/chart"
	"shepherd/pkg/ocr"
	"shepherd/process/analyser"
	"shepherd/process/store"
)

var (
	cfg             serverConfig
	jwtSecret       []byte
	runs            runRepository
	chartTemplate   chart.Template
	recognizer      ocr.Recognizer
	analysisMetrics *analyser.Metrics
)

func main() {
	// ./.env is optional; variables already set win
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("reading .env: %v", err)
	}
	cfg = loadConfig()
	jwtSecret = []byte(cfg.JWTSecret)

	// `./shepherd migrate` runs AutoMigrate and seeding then exits.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		cfg.AutoMigrate = true
		initDB()
		fmt.Println("migration and seeding completed")
		return
	}

	initDB()
	initAnalysis()

	r := gin.Default()
	setupRoutes(r)
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := shutdown(shutdownCtx, srv); err != nil {
		log.Printf("shutdown: %v", err)
	}
	log.Println("shutdown complete")
}

// shutdown stops accepting requests, then waits for the runs started by
// createRunHandler so their rows are completed or failed before exit.
func shutdown(ctx context.Context, srv *http.Server) error {
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	done := make(chan struct{})
	go func() {
		pendingRuns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for runs: %w", ctx.Err())
	}
}

// initAnalysis wires the digitizer used by POST /runs.
func initAnalysis() {
	chartTemplate = mustTemplate(cfg.TemplatePath)
	tess := ocr.NewTesseract()
	tess.Upscale = cfg.OCRUpscale
	recognizer = tess
	analysisMetrics = analyser.NewMetrics()
	runs = store.New(db)
}
