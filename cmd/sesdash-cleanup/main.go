package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/znz-systems/sesdash/internal/blob"
	"github.com/znz-systems/sesdash/internal/config"
	"github.com/znz-systems/sesdash/internal/database"
	"github.com/znz-systems/sesdash/internal/models"
	"github.com/znz-systems/sesdash/internal/retention"
	"github.com/znz-systems/sesdash/internal/store/sqlstore"
	"github.com/znz-systems/sesdash/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(cfg.NewLogger())

	days := flag.Int("days", cfg.RetentionDays, "delete events older than this many days")
	dryRun := flag.Bool("dry-run", false, "show what would be deleted without deleting")
	flag.Parse()

	if *days <= 0 {
		slog.Error("-days must be positive", "days", *days)
		os.Exit(2)
	}

	if err := run(context.Background(), cfg, *days, *dryRun); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, days int, dryRun bool) error {
	db, err := database.NewDB(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.RunMigrations(migrations.FS, cfg.DatabaseDriver, cfg.DatabaseURL); err != nil {
		return err
	}

	dialect, err := sqlstore.DialectFor(cfg.DatabaseDriver)
	if err != nil {
		return err
	}

	blobs, err := blob.NewFromConfig(ctx, blob.Config{
		Backend:           cfg.BlobBackend,
		FSRoot:            cfg.BlobFSRoot,
		S3Bucket:          cfg.BlobS3Bucket,
		S3Prefix:          cfg.BlobS3Prefix,
		S3Region:          cfg.BlobS3Region,
		S3Endpoint:        cfg.BlobS3Endpoint,
		S3AccessKeyID:     cfg.BlobS3AccessKeyID,
		S3SecretAccessKey: cfg.BlobS3SecretAccessKey,
		S3ForcePathStyle:  cfg.BlobS3ForcePathStyle,
	})
	if err != nil {
		return fmt.Errorf("init blob storage: %w", err)
	}

	svc := retention.NewService(sqlstore.New(db, dialect), retention.Options{
		Days:  days,
		Blobs: blobs,
	})

	var counts models.CleanupCounts
	if dryRun {
		counts, err = svc.Preview(ctx)
	} else {
		counts, err = svc.Cleanup(ctx)
	}
	if err != nil {
		return err
	}

	verb := "deleted"
	if dryRun {
		verb = "would delete"
	}
	fmt.Printf("cutoff: %s (%d days)\n", time.Unix(counts.Cutoff, 0).In(cfg.Location).Format(time.RFC3339), days)
	fmt.Printf("email_events: %s %d rows\n", verb, counts.EmailEvents)
	fmt.Printf("raw_events:   %s %d rows\n", verb, counts.RawEvents)
	return nil
}
