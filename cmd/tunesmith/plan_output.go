package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"tunesmith/internal/library"
	"tunesmith/internal/workflow"
)

type planChange struct {
	ItemID   string `json:"itemId"`
	SourceID string `json:"sourceId"`
	From     string `json:"from,omitempty"`
	To       string `json:"to"`
}

type planSuggestion struct {
	Path   string  `json:"path"`
	ItemID string  `json:"itemId"`
	Score  float64 `json:"score"`
}

type planOutput struct {
	Collection  string           `json:"collection"`
	Changes     []planChange     `json:"changes"`
	FromCache   []string         `json:"fromCache"`
	ToFetch     []string         `json:"toFetch"`
	Failed      []string         `json:"failed"`
	Untracked   []string         `json:"untracked"`
	Suggestions []planSuggestion `json:"suggestions"`
}

func planView(plan workflow.Plan) planOutput {
	out := planOutput{
		Collection:  plan.Collection,
		Changes:     []planChange{},
		FromCache:   itemIDs(plan.FromCache),
		ToFetch:     itemIDs(plan.ToFetch),
		Failed:      plan.Report.FailedIDs(),
		Untracked:   plan.Report.Untracked,
		Suggestions: []planSuggestion{},
	}
	for _, change := range plan.Changes {
		dest, _ := change.Item.Destination()
		out.Changes = append(out.Changes, planChange{
			ItemID:   change.Item.ID,
			SourceID: change.Item.SourceID,
			From:     change.Path,
			To:       dest,
		})
	}
	for _, s := range plan.Suggestions {
		out.Suggestions = append(out.Suggestions, planSuggestion{Path: s.Path, ItemID: s.Item.ID, Score: s.Score})
	}
	return out
}

func itemIDs(items []*library.Item) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	return ids
}

func printPlan(cmd *cobra.Command, plan workflow.Plan) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)
	fmt.Fprintln(out, renderSectionHeader(plan.Collection, colorize))
	if plan.Empty() && len(plan.Report.Failed) == 0 {
		fmt.Fprintln(out, "Library matches the collection; nothing to do.")
		return
	}

	view := planView(plan)
	if len(view.Changes) > 0 {
		rows := make([][]string, 0, len(view.Changes))
		for _, c := range view.Changes {
			action := "retag"
			if c.From != c.To {
				action = "move"
			}
			rows = append(rows, []string{action, c.ItemID, shortPath(c.From), shortPath(c.To)})
		}
		fmt.Fprintln(out, renderTable(out, []string{"Action", "Item", "From", "To"}, rows, nil))
	}
	fmt.Fprintln(out, renderStatusLine("From cache", statusInfo, countWithIDs(view.FromCache), colorize))
	fmt.Fprintln(out, renderStatusLine("To fetch", statusInfo, countWithIDs(view.ToFetch), colorize))
	if len(view.Failed) > 0 {
		fmt.Fprintln(out, renderStatusLine("Excluded", statusError, countWithIDs(view.Failed), colorize))
	}
	if len(view.Suggestions) > 0 {
		rows := make([][]string, 0, len(view.Suggestions))
		for _, s := range view.Suggestions {
			rows = append(rows, []string{filepath.Base(s.Path), s.ItemID, fmt.Sprintf("%.2f", s.Score)})
		}
		fmt.Fprintln(out, "Untracked files that look like missing items:")
		fmt.Fprintln(out, renderTable(out, []string{"File", "Item", "Score"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
	}
}

// shortPath keeps the folder and file name of a library path.
func shortPath(path string) string {
	if path == "" {
		return ""
	}
	root := filepath.Dir(filepath.Dir(path))
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
