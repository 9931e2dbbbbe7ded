package sanitize

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"shepherd/models"
	"shepherd/process/store"
)

// defaultTables are the run tables; pass -tables to include users and roles.
const defaultTables = "exceedance_values,building_results,analysis_runs"

var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validTables splits a comma-separated list and drops blank or unsafe names.
func validTables(list string) []string {
	parts := strings.Split(list, ",")
	wanted := make([]string, 0, len(parts))
	seen := map[string]bool{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		if !tableNameRe.MatchString(p) {
			log.Printf("warning: skipping invalid table name '%s'", p)
			continue
		}
		seen[p] = true
		wanted = append(wanted, p)
	}
	return wanted
}

// truncateStatement quotes the validated names into one TRUNCATE.
func truncateStatement(tables []string) string {
	quoted := make([]string, 0, len(tables))
	for _, t := range tables {
		quoted = append(quoted, fmt.Sprintf("\"%s\"", t))
	}
	return fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY CASCADE", strings.Join(quoted, ", "))
}

// Run executes the db_sanitize CLI behavior. Exported so a small cmd/main can call it.
func Run() {
	var (
		dryRun = flag.Bool("dry-run", true, "Don't perform destructive actions; show what would be done")
		yes    = flag.Bool("yes", false, "Confirm destructive action (required to actually truncate)")
		reseed = flag.Bool("reseed", false, "After truncation, reseed master roles and admin user")
		tables = flag.String("tables", defaultTables, "Comma-separated list of tables to truncate (default run tables)")
	)
	flag.Parse()

	if os.Getenv("DB_DSN") == "" {
		log.Fatal("DB_DSN must be set to run db_sanitize")
	}
	gdb := mustInitDBFromEnv()

	wanted := validTables(*tables)

	existing := []string{}
	// check presence individually to avoid any injection risk
	for _, t := range wanted {
		var cnt int64
		if err := gdb.Raw("SELECT count(*) FROM pg_tables WHERE schemaname = 'public' AND tablename = ?", t).Scan(&cnt).Error; err != nil {
			log.Fatalf("failed to query pg_tables for %s: %v", t, err)
		}
		if cnt > 0 {
			existing = append(existing, t)
		} else {
			log.Printf("info: table %s not found, skipping", t)
		}
	}
	if len(existing) == 0 {
		log.Println("no requested tables present in the database; nothing to do")
		return
	}

	fmt.Println("Tables considered for truncation:")
	for _, t := range existing {
		fmt.Printf(" - %s\n", t)
	}

	if *dryRun {
		fmt.Println("dry-run enabled; no changes will be made. Use --dry-run=false --yes to execute.")
		return
	}
	if !*yes {
		fmt.Println("Destructive operation. Pass --yes to confirm execution. Aborting.")
		return
	}

	stmt := truncateStatement(existing)
	log.Printf("Executing: %s", stmt)
	// execute with a timeout context
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := gdb.WithContext(ctx).Exec(stmt).Error; err != nil {
		log.Fatalf("truncate failed: %v", err)
	}
	log.Println("Truncate completed.")

	if *reseed {
		if err := reseedRolesAndAdmin(gdb); err != nil {
			log.Fatalf("reseed failed: %v", err)
		}
	}
}

func reseedRolesAndAdmin(gdb *gorm.DB) error {
	roles := []models.Role{{Name: "administrator", Description: "full access"}, {Name: "user", Description: "regular user"}}
	for _, r := range roles {
		if err := gdb.Where("name = ?", r.Name).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to ensure role %s: %w", r.Name, err)
		}
	}
	var role models.Role
	if err := gdb.Where("name = ?", "administrator").First(&role).Error; err != nil {
		return fmt.Errorf("failed to find administrator role: %w", err)
	}
	rid := role.ID
	hashed, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin := models.User{Username: "admin", HashedPassword: hashed, RoleID: &rid}
	if err := gdb.Where("username = ?", admin.Username).FirstOrCreate(&admin).Error; err != nil {
		return fmt.Errorf("failed to ensure admin user: %w", err)
	}
	return nil
}

// mustInitDBFromEnv is a light DB initializer used by this CLI.
func mustInitDBFromEnv() *gorm.DB {
	gdb, err := store.Open(os.Getenv("DB_DSN"))
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	return gdb
}
