package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cadence-reader/cadence/internal/config"
	"github.com/cadence-reader/cadence/internal/inference"
	"github.com/cadence-reader/cadence/internal/pipeline"
	"github.com/cadence-reader/cadence/internal/store"
	"github.com/cadence-reader/cadence/internal/types"
)

var (
	ingestNoWait bool
	ingestDryRun bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <book.epub>",
	Short: "Ingest an EPUB and run the enrichment pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngest,
}

func init() {
	ingestCmd.Flags().BoolVar(&ingestNoWait, "no-wait", false,
		"exit after ingest without waiting for enrichment to finish")
	ingestCmd.Flags().BoolVar(&ingestDryRun, "dry-run", false,
		"run the pipeline against an in-memory store, persisting nothing")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return err
	}
	cfg := mgr.Get()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read epub: %w", err)
	}

	var docs *store.Documents
	if ingestDryRun {
		docs = store.NewMemoryDocuments()
	} else {
		dbPath, err := storePath(cfg.Store.Path)
		if err != nil {
			return err
		}
		docs, err = store.OpenDocuments(dbPath, logger)
		if err != nil {
			return err
		}
	}
	defer docs.Close()

	client := inference.NewOpenAIClient(cfg.ClientConfig())
	svc, err := inference.NewService(inference.ServiceConfig{
		Client:            client,
		Models:            cfg.Models(),
		RequestsPerMinute: cfg.Inference.RequestsPerMinute,
		Logger:            logger,
	})
	if err != nil {
		return err
	}

	p := pipeline.New(pipeline.Config{
		Docs:                docs,
		Inference:           svc,
		ChunkWords:          cfg.Pipeline.ChunkWords,
		SummaryExcerptChars: cfg.Pipeline.SummaryExcerptChars,
		RemoveJunk:          cfg.Pipeline.RemoveJunk,
		UseLogprobDensity:   cfg.Pipeline.UseLogprobDensity,
		Logger:              logger,
	})

	// Model changes in the config file apply to subsequently dispatched tasks.
	mgr.OnChange(func(c *config.Config) {
		svc.SetModel(inference.TierDensity, c.Inference.DensityModel)
		svc.SetModel(inference.TierSummary, c.Inference.SummaryModel)
	})
	mgr.WatchConfig()

	res, err := p.InitialIngest(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %q by %s (%d chapters)\n",
		res.Book.Data.Title, res.Book.Data.Author, len(res.Chapters))
	fmt.Printf("Book ID: %s\n", res.Book.ID)

	if err := p.ProcessChaptersInBackground(ctx, res.Book.ID); err != nil {
		return err
	}
	if ingestNoWait {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go p.Run(runCtx)

	return waitForBook(ctx, docs, res.Book.ID)
}

// waitForBook polls chapter statuses until every chapter settles (ready or
// error) or ctx is cancelled.
func waitForBook(ctx context.Context, docs *store.Documents, bookID string) error {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		book, err := docs.Books.Get(ctx, bookID)
		if err != nil {
			return err
		}

		settled := 0
		errored := 0
		for _, chapterID := range book.Data.ChapterIDs {
			ch, err := docs.Chapters.Get(ctx, chapterID)
			if err != nil {
				return err
			}
			switch ch.Data.Status {
			case types.ChapterReady:
				settled++
			case types.ChapterError:
				settled++
				errored++
			}
		}

		if settled == len(book.Data.ChapterIDs) {
			if errored > 0 {
				fmt.Printf("Done: %d chapters enriched, %d failed (re-run ingest to retry)\n",
					settled-errored, errored)
			} else {
				fmt.Printf("Done: %d chapters enriched\n", settled)
			}
			return nil
		}
	}
}
