package main

import (
	"log"
	"os"

	"github.com/Brownie44l1/breed-classify/internal/app"
	"github.com/Brownie44l1/breed-classify/internal/config"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger := log.New(os.Stderr, "", log.Ltime|log.Lmicroseconds)
	a := app.New(cfg, app.OpenOrtSession, logger)

	switch {
	case cfg.ExportRun != "":
		if err := a.ExportRun(os.Stdout, cfg.ExportRun); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		return
	case cfg.ListRuns > 0:
		if err := a.ListRuns(os.Stdout, cfg.ListRuns); err != nil {
			log.Fatalf("Listing runs failed: %v", err)
		}
		return
	}

	cfg.Print(os.Stdout)
	a.ProgressOutput = os.Stderr

	res, err := a.Run()
	if err != nil {
		log.Fatalf("Classification failed: %v", err)
	}

	log.Printf("Results written to %s", res.OutputPath)
	log.Printf("Accuracy: %d/%d", res.Correct, len(res.Records))
}
