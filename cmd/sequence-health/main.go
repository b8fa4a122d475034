// Package main provides an operations CLI for inspecting and repairing
// document sequence counters.
//
// Usage:
//
//	sequence-health check              verify counters for all types
//	sequence-health preview TYPE       show the next number for a type
//	sequence-health set TYPE VALUE     force a counter (migrations only)
//
// DATABASE_URL must point at the target database.
package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"numera/internal/core/docnum"
	"numera/internal/domain/sequence"
	"numera/internal/infrastructure/storage/postgres"
	"numera/pkg/logger"
)

func main() {
	log, err := logger.New(logger.Config{
		Level:       "info",
		Development: true,
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(dbURL))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txManager := postgres.NewTxManager(pool)
	store := postgres.NewSequenceStore(txManager)

	auditService, err := postgres.NewAuditService(txManager)
	if err != nil {
		log.Fatalw("failed to create audit service", "error", err)
	}

	svc := sequence.NewService(store, txManager, auditService)

	cmd := "check"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "check":
		runCheck(ctx, svc, log)
	case "preview":
		runPreview(ctx, svc, log)
	case "set":
		runSet(ctx, svc, log)
	default:
		log.Fatalw("unknown command", "command", cmd)
	}
}

func runCheck(ctx context.Context, svc *sequence.Service, log *logger.Logger) {
	report, err := svc.Health(ctx, time.Now())
	if err != nil {
		log.Fatalw("health check failed", "error", err)
	}

	types := make([]docnum.DocType, 0, len(report.Summary))
	for docType := range report.Summary {
		types = append(types, docType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	for _, docType := range types {
		health := report.Summary[docType]
		if health.LastUpdated == nil {
			fmt.Printf("%-16s current=%-8d (no counter yet)\n", docType, health.Current)
			continue
		}
		fmt.Printf("%-16s current=%-8d updated=%s\n",
			docType, health.Current, health.LastUpdated.Format(time.RFC3339))
	}

	if !report.Healthy {
		for _, issue := range report.Issues {
			log.Warnw("sequence issue", "detail", issue)
		}
		os.Exit(1)
	}

	log.Info("all sequences healthy")
}

func runPreview(ctx context.Context, svc *sequence.Service, log *logger.Logger) {
	if len(os.Args) < 3 {
		log.Fatal("usage: sequence-health preview TYPE")
	}
	docType := docnum.DocType(os.Args[2])

	next, err := svc.PreviewNext(ctx, docType, time.Now())
	if err != nil {
		log.Fatalw("preview failed", "type", docType, "error", err)
	}

	fmt.Printf("%s next: %s\n", docType, next)
}

func runSet(ctx context.Context, svc *sequence.Service, log *logger.Logger) {
	if len(os.Args) < 4 {
		log.Fatal("usage: sequence-health set TYPE VALUE")
	}
	docType := docnum.DocType(os.Args[2])

	value, err := strconv.ParseInt(os.Args[3], 10, 64)
	if err != nil {
		log.Fatalw("invalid value", "value", os.Args[3], "error", err)
	}

	if err := svc.SetNext(ctx, docType, time.Now(), value); err != nil {
		log.Fatalw("set failed", "type", docType, "error", err)
	}

	log.Infow("counter updated", "type", docType, "last_number", value)
}
