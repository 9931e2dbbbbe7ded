package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"shepherd/models"
	"shepherd/pkg/chart"
	"shepherd/pkg/document"
	"shepherd/process/analyser"
	"shepherd/process/export"
	"shepherd/process/store"
)

// runRepository is the persistence used by the run endpoints.
type runRepository interface {
	StartRun(ctx context.Context, sess *analyser.Session, documentPath string, userID *uint, started time.Time) error
	FailRun(ctx context.Context, id string, cause error, finished time.Time) error
	SaveRun(ctx context.Context, table analyser.ResultTable, documentPath string, userID *uint) (*models.AnalysisRun, error)
	LoadRun(ctx context.Context, id string) (*models.AnalysisRun, analyser.ResultTable, error)
	ListRuns(ctx context.Context, userID *uint, limit int) ([]models.AnalysisRun, error)
}

// pendingRuns tracks analyses started by createRunHandler.
var pendingRuns sync.WaitGroup

var errOutsideBase = errors.New("document path escapes the document base")

// resolveDocument maps a client path onto the document base directory.
func resolveDocument(base, rel string) (string, error) {
	rel = strings.TrimSpace(rel)
	if rel == "" {
		return "", document.ErrNoDocument
	}
	if filepath.IsAbs(rel) {
		return "", errOutsideBase
	}
	clean := filepath.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errOutsideBase
	}
	return filepath.Join(base, clean), nil
}

// createRunHandler validates the request and document synchronously, then
// analyses it in the background. The response carries the run id to poll.
func createRunHandler(c *gin.Context) {
	var req struct {
		Document string `json:"document" binding:"required"`
		Mode     string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := chart.ParseMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	path, err := resolveDocument(cfg.DocumentBase, req.Document)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	doc, err := document.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(doc.Buildings) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": analyser.ErrNoBuildings.Error()})
		return
	}

	sess, err := analyser.NewSession(mode, chartTemplate, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var owner *uint
	if uid, ok := userIDFromContext(c); ok {
		owner = &uid
	}
	if err := runs.StartRun(c.Request.Context(), sess, req.Document, owner, time.Now()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record run"})
		return
	}

	a := analyser.New(chartTemplate, recognizer)
	a.Metrics = analysisMetrics
	if cfg.Workers > 0 {
		a.Workers = cfg.Workers
	}
	if cfg.OCRTimeout > 0 {
		a.OCRTimeout = cfg.OCRTimeout
	}
	pendingRuns.Add(1)
	go func() {
		defer pendingRuns.Done()
		ctx := context.Background()
		table, err := a.Run(ctx, doc, sess)
		if err != nil {
			log.Printf("run %s failed: %v", sess.ID, err)
			if ferr := runs.FailRun(ctx, sess.ID, err, time.Now()); ferr != nil {
				log.Printf("run %s: record failure: %v", sess.ID, ferr)
			}
			return
		}
		if _, err := runs.SaveRun(ctx, table, req.Document, owner); err != nil {
			log.Printf("run %s: save: %v", sess.ID, err)
			_ = runs.FailRun(ctx, sess.ID, err, time.Now())
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"id": sess.ID, "status": models.RunRunning, "buildings": len(doc.Buildings)})
}

func listRunsHandler(c *gin.Context) {
	var owner *uint
	if !isAdmin(c) {
		uid, ok := userIDFromContext(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		owner = &uid
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	items, err := runs.ListRuns(c.Request.Context(), owner, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}
	c.JSON(http.StatusOK, items)
}

// loadOwnedRun loads the run named in the URL if the caller may see it. It
// writes the error response itself and reports false on failure.
func loadOwnedRun(c *gin.Context) (*models.AnalysisRun, analyser.ResultTable, bool) {
	run, table, err := runs.LoadRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return nil, table, false
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, table, false
	}
	if !isAdmin(c) {
		uid, _ := userIDFromContext(c)
		if run.UserID == nil || *run.UserID != uid {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return nil, table, false
		}
	}
	return run, table, true
}

type recordView struct {
	Name        string    `json:"name"`
	Position    int       `json:"position"`
	Calibration string    `json:"calibration"`
	AxisText    string    `json:"axis_text,omitempty"`
	AxisMax     int       `json:"axis_max"`
	Values      []float64 `json:"values"`
}

func getRunHandler(c *gin.Context) {
	run, table, ok := loadOwnedRun(c)
	if !ok {
		return
	}
	records := make([]recordView, 0, len(table.Records))
	for _, r := range table.Records {
		records = append(records, recordView{
			Name:        r.Name(),
			Position:    r.Position(),
			Calibration: string(r.Calibration()),
			AxisText:    r.AxisText(),
			AxisMax:     r.AxisMax(),
			Values:      r.Values(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"run":     run,
		"columns": table.Columns,
		"records": records,
	})
}

func exportRunHandler(c *gin.Context) {
	run, table, ok := loadOwnedRun(c)
	if !ok {
		return
	}
	if run.Status != models.RunComplete {
		c.JSON(http.StatusConflict, gin.H{"error": "run is " + run.Status})
		return
	}
	opts := export.Options{Calibration: c.Query("calibration") == "1"}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fmt.Sprintf("%s_%s.csv", run.ID, run.Mode)))
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, table, opts); err != nil {
		log.Printf("export run %s: %v", run.ID, err)
	}
}
