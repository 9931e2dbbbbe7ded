package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"shepherd/process/report"
)

func main() {
	id := flag.String("run", "", "run id to show (default: list latest runs)")
	limit := flag.Int("limit", 20, "number of runs to list")
	list := flag.Bool("list", false, "print every building row of the run")
	flag.Parse()

	_ = godotenv.Load()
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		fmt.Fprintln(os.Stderr, "DB_DSN not set; export DB_DSN and retry")
		os.Exit(2)
	}

	report.RunReport(*id, *limit, *list)
}
