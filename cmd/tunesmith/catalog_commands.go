package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"tunesmith/internal/catalog"
	"tunesmith/internal/config"
	"tunesmith/internal/logging"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	catalogCmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the metadata catalog",
	}
	catalogCmd.AddCommand(newCatalogListCommand(ctx))
	catalogCmd.AddCommand(newCatalogShowCommand(ctx))
	catalogCmd.AddCommand(newCatalogForgetCommand(ctx))
	return catalogCmd
}

func loadCatalog(ctx *commandContext) (*config.Config, *catalog.Catalog, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	cat, err := catalog.Load(cfg.CatalogPath(), ctx.loggerFor(cfg))
	if err != nil {
		return nil, nil, err
	}
	return cfg, cat, nil
}

type catalogEntryView struct {
	ID           string  `json:"id"`
	Title        string  `json:"title,omitempty"`
	Author       string  `json:"author,omitempty"`
	Length       float64 `json:"length,omitempty"`
	Downloaded   bool    `json:"downloaded"`
	DownloadedAt string  `json:"downloaded_at,omitempty"`
	SongTitle    string  `json:"song_title,omitempty"`
	SongArtist   string  `json:"song_artist,omitempty"`
	SongAlbum    string  `json:"song_album,omitempty"`
}

func entryView(e catalog.Entry) catalogEntryView {
	view := catalogEntryView{
		ID:         e.ID,
		Title:      e.Title,
		Author:     e.Author,
		Length:     e.Length,
		Downloaded: e.Downloaded(),
		SongTitle:  e.SongTitle,
		SongArtist: e.SongArtist,
		SongAlbum:  e.SongAlbum,
	}
	if view.Downloaded {
		view.DownloadedAt = e.DownloadedTime().UTC().Format("2006-01-02T15:04:05Z")
	}
	return view
}

func newCatalogListCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool
	var downloadedOnly bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cat, err := loadCatalog(ctx)
			if err != nil {
				return err
			}
			var entries []catalog.Entry
			for _, e := range cat.List() {
				if downloadedOnly && !e.Downloaded() {
					continue
				}
				entries = append(entries, e)
			}
			if jsonOut {
				views := make([]catalogEntryView, 0, len(entries))
				for _, e := range entries {
					views = append(views, entryView(e))
				}
				return writeJSON(cmd, views)
			}
			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "Catalog is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				downloaded := "-"
				if e.Downloaded() {
					downloaded = humanize.Time(e.DownloadedTime())
				}
				rows = append(rows, []string{e.ID, truncate(e.Title, 48), e.Author, downloaded})
			}
			fmt.Fprintln(out, renderTable(out, []string{"ID", "Title", "Author", "Downloaded"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit entries as JSON")
	cmd.Flags().BoolVar(&downloadedOnly, "downloaded", false, "Only list cached items")
	return cmd
}

func newCatalogShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show one catalog entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cat, err := loadCatalog(ctx)
			if err != nil {
				return err
			}
			entry, ok := cat.Lookup(args[0])
			if !ok {
				return fmt.Errorf("item %s is not in the catalog", args[0])
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %s\n", entry.ID)
			fmt.Fprintf(out, "Title:      %s\n", entry.Title)
			fmt.Fprintf(out, "Author:     %s\n", entry.Author)
			if entry.Length > 0 {
				fmt.Fprintf(out, "Length:     %s\n", formatSeconds(entry.Length))
			}
			if entry.SongTitle != "" || entry.SongArtist != "" {
				fmt.Fprintf(out, "Song:       %s - %s\n", entry.SongArtist, entry.SongTitle)
			}
			if entry.SongAlbum != "" {
				fmt.Fprintf(out, "Album:      %s\n", entry.SongAlbum)
			}
			if entry.Downloaded() {
				path := catalog.CachePath(cfg.Paths.CacheDir, entry.ID, cfg.CacheExtension())
				size := "missing"
				if info, err := os.Stat(path); err == nil {
					size = humanize.IBytes(uint64(info.Size()))
				}
				fmt.Fprintf(out, "Downloaded: %s (%s)\n", humanize.Time(entry.DownloadedTime()), size)
				fmt.Fprintf(out, "Cache file: %s\n", path)
			} else {
				fmt.Fprintln(out, "Downloaded: no")
			}
			return nil
		},
	}
}

func newCatalogForgetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "forget <item-id...>",
		Short: "Drop catalog entries and their cached media",
		Long: "Removes the entries and deletes their cache files so the next sync\n" +
			"downloads and re-reads them. Library files are left in place.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cat, err := loadCatalog(ctx)
			if err != nil {
				return err
			}
			logger := ctx.loggerFor(cfg)
			out := cmd.OutOrStdout()
			var missing []string
			for _, id := range args {
				if !cat.Remove(id) {
					missing = append(missing, id)
					continue
				}
				path := catalog.CachePath(cfg.Paths.CacheDir, id, cfg.CacheExtension())
				if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
					logger.Warn("failed to delete cache file", logging.String("path", path), logging.Error(err))
				}
				fmt.Fprintf(out, "Forgot %s\n", id)
			}
			if err := cat.Save(); err != nil {
				return err
			}
			if len(missing) > 0 {
				return fmt.Errorf("not in catalog: %s", strings.Join(missing, ", "))
			}
			return nil
		},
	}
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func formatSeconds(seconds float64) string {
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
