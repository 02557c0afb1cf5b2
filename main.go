package main

import (
	"fmt"
	"log"
	"os"

	"github.com/replypilot/replypilot/config"
	"github.com/replypilot/replypilot/internal/database"
	"github.com/replypilot/replypilot/internal/repository"
	"github.com/replypilot/replypilot/server"
)

func usage() {
	fmt.Println("Usage: replypilot <command>")
	fmt.Println("Commands:")
	fmt.Println("  migrate   Run database migrations")
	fmt.Println("  server    Start the application server")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}

	db, err := database.NewConnection(cfg.Postgres.DatabaseConfig())
	if err != nil {
		log.Printf("Database initialization failed: %v", err)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "migrate":
		tuning := &repository.DatabaseTuning{
			MaxConn:         cfg.Postgres.MaxConn,
			MaxIdleConn:     cfg.Postgres.MaxIdleConn,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
		}
		if err := repository.MigrateDB(tuning, db); err != nil {
			log.Fatalf("Database migration failed: %v", err)
		}
		log.Println("Database migration completed successfully")

	case "server":
		srv, err := server.NewServer(cfg, db)
		if err != nil {
			log.Fatalf("Server setup failed: %v", err)
		}
		if err := srv.Run(); err != nil {
			log.Fatalf("Server startup failed: %v", err)
		}
		log.Println("Shutdown complete")

	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
}
