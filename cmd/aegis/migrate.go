package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/aegisframework/aegis/internal/migration"
	"github.com/aegisframework/aegis/persistence"
)

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	rest := fs.Args()
	if len(rest) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: aegis migrate [--config <path>] <up|down|status|goto <v>|force <v>>")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if cfg.Database.Driver == "" {
		fmt.Fprintln(os.Stderr, "No database configured (database.driver is empty)")
		os.Exit(1)
	}
	if cfg.Database.Driver == "sqlite" {
		// SQLite schema is created by GORM auto-migration at startup.
		fmt.Println("sqlite databases are migrated automatically at startup; nothing to do")
		return
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	db, err := persistence.OpenDatabase(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unwrap database connection: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	migrator, err := migration.NewMigrator(sqlDB, migration.Config{Driver: cfg.Database.Driver}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	defer migrator.Close()

	switch rest[0] {
	case "up":
		err = migrator.Up()
	case "down":
		err = migrator.Down()
	case "status", "version":
		err = printMigrationStatus(migrator, cfg.Database.Driver)
	case "goto":
		var v uint64
		v, err = parseVersionArg(rest)
		if err == nil {
			err = migrator.Goto(uint(v))
		}
	case "force":
		var v uint64
		v, err = parseVersionArg(rest)
		if err == nil {
			err = migrator.Force(int(v))
		}
	default:
		err = fmt.Errorf("unknown migrate subcommand: %s", rest[0])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

func parseVersionArg(rest []string) (uint64, error) {
	if len(rest) < 2 {
		return 0, fmt.Errorf("%s requires a version argument", rest[0])
	}
	return strconv.ParseUint(rest[1], 10, 32)
}

func printMigrationStatus(m *migration.Migrator, driver string) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}

	available, err := migration.Available(driver)
	if err != nil {
		return err
	}

	fmt.Printf("Current version: %d (dirty: %v)\n", version, dirty)
	fmt.Println("Available migrations:")
	for _, e := range available {
		marker := " "
		if e.Version <= version {
			marker = "*"
		}
		fmt.Printf("  %s %06d %s\n", marker, e.Version, e.Name)
	}
	return nil
}
