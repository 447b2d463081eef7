package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/iliyamo/ticketing-system/internal/config"
	"github.com/iliyamo/ticketing-system/internal/database"
	"github.com/iliyamo/ticketing-system/internal/logging"
)

func main() {
	_ = godotenv.Load()

	cmd := pflag.StringP("cmd", "c", "up", "migration command: up|down|status|version|redo|reset")
	version := pflag.StringP("version", "v", "", "target version for --cmd=version")
	pflag.Parse()

	app, dbCfg, err := config.LoadDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(logging.Options{Service: "migrate", Env: app.Env, Level: app.LogLevel})

	dsn, _ := dbCfg.DataSource()
	db, err := database.Open(dbCfg.Driver, dsn)
	if err != nil {
		log.Fatal().Err(err).Str("driver", dbCfg.Driver).Msg("open database")
	}
	defer db.Close()

	ctx := context.Background()
	log.Info().Str("cmd", *cmd).Str("driver", dbCfg.Driver).Msg("migrate ready")

	switch *cmd {
	case "up", "down", "status", "redo", "reset":
		err = database.Run(ctx, db, dbCfg.Driver, *cmd)
	case "version":
		if *version == "" {
			fmt.Fprintln(os.Stderr, "missing --version for --cmd=version")
			os.Exit(1)
		}
		err = database.MigrateToVersion(ctx, db, dbCfg.Driver, *version)
	default:
		fmt.Fprintln(os.Stderr, "unknown --cmd value:", *cmd)
		os.Exit(1)
	}
	if err != nil {
		log.Error().Err(err).Str("cmd", *cmd).Msg("migration failed")
		os.Exit(1)
	}

	v, err := database.Version(db, dbCfg.Driver)
	if err != nil {
		log.Warn().Err(err).Msg("read schema version")
		return
	}
	log.Info().Int64("version", v).Msg("migrate done")
}
