// Command jobmon-migrate applies or rolls back the schema migrations
// internal/store/postgres embeds, the sole way Jobmon's Postgres schema
// evolves. Grounded on cuemby-warren's cmd/warren-migrate for the
// "standalone flag-driven migration binary, separate from the server
// process" shape; the bbolt bucket-copy logic that repo implements by hand
// is here delegated to github.com/pressly/goose/v3 since Postgres schema
// migrations are goose's whole job.
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store/postgres"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	down := flag.Bool("down", false, "roll back exactly one migration instead of applying pending ones")
	flag.Parse()

	cfg, err := jobmonconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DB.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	if *down {
		if err := postgres.MigrateDown(db); err != nil {
			fmt.Fprintf(os.Stderr, "migration rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back one migration")
		return
	}

	if err := postgres.Migrate(db); err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}
