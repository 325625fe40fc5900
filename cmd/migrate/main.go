package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/angelmondragon/marketcore-backend/internal/bootstrap"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
	"github.com/angelmondragon/marketcore-backend/pkg/migrate"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	cmd := flag.String("cmd", "up", "migration command: up|down|status|version|verify|create|validate")
	dir := flag.String("dir", "", "migrations directory; empty uses the embedded set (create/validate default to "+migrate.DefaultDir+")")
	name := flag.String("name", "", "migration name (create)")
	noTx := flag.Bool("no-tx", false, "mark the new migration NO TRANSACTION (create)")
	version := flag.String("version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	// Source-tree commands never touch the database or need full config.
	switch *cmd {
	case "create":
		if *name == "" {
			exitf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(sourceDir(*dir), *name, migrate.CreateOptions{NoTransaction: *noTx})
		if err != nil {
			exitf("create migration: %v", err)
		}
		fmt.Println("created migration:", path)
		return
	case "validate":
		if err := migrate.ValidateDir(sourceDir(*dir)); err != nil {
			exitf("migration validation failed: %v", err)
		}
		fmt.Println("migration validation passed")
		return
	}

	rt, err := bootstrap.Load("migrate")
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	defer rt.Close()
	logg = rt.Logger
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd": *cmd,
		"dir": displayDir(*dir),
	})

	dbClient, err := rt.ConnectDB(ctx)
	if err != nil {
		rt.Fatal(ctx, "failed to bootstrap database", err)
	}

	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		rt.Fatal(ctx, "failed to extract sql.DB", err)
	}

	switch *cmd {
	case "up", "down", "status":
		err = migrate.Run(ctx, sqlDB, *dir, *cmd)
	case "version":
		if *version == "" {
			exitf("missing -version for version command")
		}
		err = migrate.MigrateToVersion(ctx, sqlDB, *dir, *version)
	case "verify":
		err = migrate.Verify(ctx, sqlDB)
	default:
		exitf("unknown -cmd value: %s", *cmd)
	}
	if err != nil {
		rt.Fatal(ctx, "migration command failed", err)
	}
	if *cmd == "up" {
		if err := migrate.Verify(ctx, sqlDB); err != nil {
			rt.Fatal(ctx, "schema verification failed after up", err)
		}
	}
	logg.Info(ctx, "migration command completed")
}

func sourceDir(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func displayDir(dir string) string {
	if dir == "" {
		return "embedded"
	}
	return dir
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
