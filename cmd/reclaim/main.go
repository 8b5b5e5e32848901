// Command reclaim runs one quarantine sweep and exits.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"murmur/internal/config"
	"murmur/internal/media"
)

func main() {
	retention := flag.Duration("retention", 0, "Override STAGED_RETENTION")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *retention > 0 {
		cfg.StagedRetention = *retention
	}

	pipeline := media.NewPipeline(media.Options{
		QuarantineDir: cfg.UploadQuarantineDir,
		Retention:     cfg.StagedRetention,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	removed, err := pipeline.Reclaim(ctx, time.Now())
	if err != nil {
		log.Fatalf("Reclaim failed: %v", err)
	}
	log.Printf("Removed %d expired staged images from %s", removed, cfg.UploadQuarantineDir)
}
