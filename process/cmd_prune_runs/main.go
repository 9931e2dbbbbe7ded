package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// prune_runs closes runs left "running" by a crashed process and optionally
// deletes old runs. Building rows and values go with them through the
// cascading foreign keys.
func main() {
	staleAfter := flag.Duration("stale-after", 6*time.Hour, "mark runs still running after this long as failed")
	keep := flag.Duration("keep", 0, "delete runs that started longer ago than this (0 = keep all)")
	failedOnly := flag.Bool("failed-only", false, "with -keep, delete only failed runs")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	now := time.Now()
	res1, err := db.Exec(`UPDATE analysis_runs SET status='failed', error='abandoned while running', finished_at=$1, updated_at=$1 WHERE status='running' AND started_at < $2`, now, now.Add(-*staleAfter))
	if err != nil {
		log.Fatalf("close stale runs: %v", err)
	}
	n1, _ := res1.RowsAffected()

	var n2 int64
	if *keep > 0 {
		q := `DELETE FROM analysis_runs WHERE started_at < $1 AND status <> 'running'`
		if *failedOnly {
			q = `DELETE FROM analysis_runs WHERE started_at < $1 AND status = 'failed'`
		}
		res2, err := db.Exec(q, now.Add(-*keep))
		if err != nil {
			log.Fatalf("delete old runs: %v", err)
		}
		n2, _ = res2.RowsAffected()
	}
	fmt.Printf("prune done: stale runs closed=%d, runs deleted=%d\n", n1, n2)
}
