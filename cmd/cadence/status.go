package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cadence-reader/cadence/internal/config"
	"github.com/cadence-reader/cadence/internal/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show books and per-chapter enrichment progress",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		mgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		dbPath, err := storePath(mgr.Get().Store.Path)
		if err != nil {
			return err
		}
		docs, err := store.OpenDocuments(dbPath, logger)
		if err != nil {
			return err
		}
		defer docs.Close()

		books, err := docs.Books.List(ctx)
		if err != nil {
			return err
		}
		if len(books) == 0 {
			fmt.Println("No books ingested.")
			return nil
		}

		for _, book := range books {
			fmt.Printf("%s by %s (%s)\n", book.Data.Title, book.Data.Author, book.ID)
			for _, chapterID := range book.Data.ChapterIDs {
				ch, err := docs.Chapters.Get(ctx, chapterID)
				if err != nil {
					return err
				}
				title := ch.Data.Title
				if title == "" {
					title = fmt.Sprintf("Chapter %d", ch.Data.SpineIndex+1)
				}
				fmt.Printf("  [%d] %-40s %-10s %5.1f%%  %d words\n",
					ch.Data.SpineIndex, title, ch.Data.Status, ch.Data.Progress,
					len(ch.Data.Content))
			}
		}
		return nil
	},
}
