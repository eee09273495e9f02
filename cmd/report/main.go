package main

import (
	"flag"
	"fmt"

	"invertrack-go/internal/config"
	"invertrack-go/internal/database"
	"invertrack-go/internal/logger"
	"invertrack-go/internal/report"
	"invertrack-go/internal/storage"

	"go.uber.org/zap"
)

// Generates a closed-trade report for one user from the command line,
// without going through the HTTP API.
func main() {
	username := flag.String("user", "", "username to report on")
	outDir := flag.String("out", "", "output directory (defaults to reports.dir from config)")
	flag.Parse()

	if *username == "" {
		fmt.Println("usage: report -user <username> [-out <dir>]")
		return
	}

	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	dir := cfg.Reports.Dir
	if *outDir != "" {
		dir = *outDir
	}

	store := storage.NewStore(db, log)
	gen := report.NewGenerator(log, store, dir)

	rep, path, err := gen.Write(*username)
	if err != nil {
		log.Fatal("Report generation failed", zap.String("user", *username), zap.Error(err))
	}

	fmt.Printf("report written to %s (%d closed lots, realized gain %s)\n",
		path, len(rep.ClosedLots), rep.RealizedGain.StringFixed(2))
}
