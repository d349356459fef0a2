package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"tunesmith/internal/config"
	"tunesmith/internal/fetch"
	"tunesmith/internal/library"
	"tunesmith/internal/logging"
)

func newCollectionCommand(ctx *commandContext) *cobra.Command {
	collectionCmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"coll"},
		Short:   "Create and edit collection files",
	}
	collectionCmd.AddCommand(newCollectionInitCommand())
	collectionCmd.AddCommand(newCollectionShowCommand())
	collectionCmd.AddCommand(newCollectionAddSourceCommand(ctx))
	collectionCmd.AddCommand(newCollectionIgnoreCommand())
	collectionCmd.AddCommand(newCollectionSetCommand())
	collectionCmd.AddCommand(newCollectionResetCommand())
	return collectionCmd
}

// editCollection loads the collection file at arg, applies fn, and saves it
// when fn reports a change.
func editCollection(arg string, fn func(*library.Declared) (bool, error)) error {
	path, err := config.ExpandPath(arg)
	if err != nil {
		return err
	}
	declared, err := library.LoadDeclared(path)
	if err != nil {
		return err
	}
	changed, err := fn(declared)
	if err != nil || !changed {
		return err
	}
	return library.SaveDeclared(path, declared)
}

func newCollectionInitCommand() *cobra.Command {
	var name string
	var outputDir string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Create an empty collection file",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !overwrite {
				return fmt.Errorf("collection file %s already exists (use --overwrite to replace it)", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			if strings.TrimSpace(name) == "" {
				name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			declared := library.NewDeclared(name)
			declared.OutputDir = strings.TrimSpace(outputDir)
			if err := library.SaveDeclared(path, declared); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created collection %q at %s\n", name, path)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Collection name (default: file name)")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Library directory for this collection (default: paths.library_dir)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Replace an existing file")
	return cmd
}

func newCollectionShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <path>",
		Short: "Summarize a collection file",
		Args:  cobra.ExactArgs(1),
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			declared, err := library.LoadDeclared(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:       %s\n", declared.Name)
			if declared.OutputDir != "" {
				fmt.Fprintf(out, "Output dir: %s\n", declared.OutputDir)
			}
			fmt.Fprintf(out, "Items:      %d declared, %d ignored\n", len(declared.Items), len(declared.Ignored))
			if len(declared.Sources) == 0 {
				fmt.Fprintln(out, "No sources")
				return nil
			}
			counts := make(map[string]int, len(declared.Sources))
			for _, item := range declared.Items {
				counts[item.SourceID]++
			}
			rows := make([][]string, 0, len(declared.Sources))
			for _, src := range declared.Sources {
				rows = append(rows, []string{src.ID, src.Title, src.Folder, strconv.Itoa(counts[src.ID])})
			}
			fmt.Fprintln(out, renderTable(out, []string{"Source", "Title", "Folder", "Items"}, rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func newCollectionAddSourceCommand(ctx *commandContext) *cobra.Command {
	var folder string
	var title string
	cmd := &cobra.Command{
		Use:   "add-source <path> <source-id|url>",
		Short: "Declare a remote playlist as a source",
		Long: "Adds the playlist to the collection. A playlist URL is reduced to its list id.\n" +
			"Without --title the playlist title is looked up remotely.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := sourceIDFromArg(args[1])
			if err != nil {
				return err
			}
			if strings.TrimSpace(title) == "" {
				title = lookupSourceTitle(cmd, ctx, id)
			}
			return editCollection(args[0], func(d *library.Declared) (bool, error) {
				d.AddSource(id, strings.TrimSpace(title), strings.TrimSpace(folder))
				fmt.Fprintf(cmd.OutOrStdout(), "Added source %s\n", id)
				return true, nil
			})
		},
	}
	cmd.Flags().StringVar(&folder, "folder", "", "Library subfolder for the source's items")
	cmd.Flags().StringVar(&title, "title", "", "Source title (skips the remote lookup)")
	return cmd
}

// sourceIDFromArg accepts a bare id or a URL carrying a list= parameter.
func sourceIDFromArg(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", errors.New("source id is required")
	}
	if !strings.Contains(arg, "://") {
		return arg, nil
	}
	u, err := url.Parse(arg)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	id := strings.TrimSpace(u.Query().Get("list"))
	if id == "" {
		return "", fmt.Errorf("url %s has no list parameter", arg)
	}
	return id, nil
}

func lookupSourceTitle(cmd *cobra.Command, ctx *commandContext, id string) string {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return ""
	}
	logger := ctx.loggerFor(cfg)
	client, err := fetch.New(cfg.Fetch)
	if err != nil {
		logger.Warn("source title lookup unavailable", logging.Error(err))
		return ""
	}
	info, err := client.Info(cmd.Context(), cfg.SourceURL(id))
	if err != nil {
		logger.Warn("source title lookup failed; adding without a title",
			logging.String(logging.FieldSourceID, id), logging.Error(err))
		return ""
	}
	return info.Title
}

func newCollectionIgnoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <path> <item-id...>",
		Short: "Never fetch or file the given items",
		Args:  cobra.MinimumNArgs(2),
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCollection(args[0], func(d *library.Declared) (bool, error) {
				changed := false
				for _, id := range args[1:] {
					if d.Ignore(id) {
						changed = true
						fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s\n", id)
					}
				}
				return changed, nil
			})
		},
	}
}

var itemKeys = []string{
	library.KeyOutputDir,
	library.KeyMediaExtension,
	library.KeyFolder,
	library.KeyFilename,
	library.KeyTitle,
	library.KeyArtist,
	library.KeyAlbum,
}

func checkItemKey(key string) error {
	for _, k := range itemKeys {
		if k == key {
			return nil
		}
	}
	return fmt.Errorf("unknown setting %q (expected one of %s)", key, strings.Join(itemKeys, ", "))
}

// parseSettingValue reads JSON scalars and falls back to the raw string.
func parseSettingValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		switch v.(type) {
		case string, bool, float64:
			return v
		}
	}
	return raw
}

func newCollectionSetCommand() *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "set <path> <item-id> <key> <value>",
		Short: "Override an item setting",
		Args:  cobra.ExactArgs(4),
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkItemKey(args[2]); err != nil {
				return err
			}
			return editCollection(args[0], func(d *library.Declared) (bool, error) {
				d.SetItem(args[1], sourceID, args[2], parseSettingValue(args[3]))
				return true, nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Source the item belongs to")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}

func newCollectionResetCommand() *cobra.Command {
	var sourceID string
	cmd := &cobra.Command{
		Use:   "reset <path> <item-id> <key>",
		Short: "Drop an item override so the derived value applies again",
		Args:  cobra.ExactArgs(3),
		Annotations: map[string]string{
			"skipConfigLoad": "true",
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return editCollection(args[0], func(d *library.Declared) (bool, error) {
				if !d.ResetItem(args[1], sourceID, args[2]) {
					return false, fmt.Errorf("item %s has no %s override", args[1], args[2])
				}
				return true, nil
			})
		},
	}
	cmd.Flags().StringVar(&sourceID, "source", "", "Source the item belongs to")
	_ = cmd.MarkFlagRequired("source")
	return cmd
}
