package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/warp/coinvault/internal/config"
	"github.com/warp/coinvault/internal/migrate"
)

func main() {
	direction := flag.String("cmd", "up", "migration command: up|down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	db, err := sql.Open("pgx", cfg.DB.Source)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open db:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		fmt.Fprintln(os.Stderr, "ping db:", err)
		os.Exit(1)
	}

	switch *direction {
	case "up":
		err = migrate.Up(db)
	case "down":
		err = migrate.Down(db)
	default:
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", *direction)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}

	fmt.Println("migrate", *direction, "finished successfully")
}
