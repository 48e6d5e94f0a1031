package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"calfilter/internal/ics"
	"calfilter/internal/model"
	"calfilter/internal/preview"
	"calfilter/internal/storage"
	"calfilter/internal/workspace"
)

// readEvents loads raw events from a JSON array or, for *.ics files, from
// an iCalendar document.
func readEvents(path string) ([]model.RawEvent, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".ics") {
		return ics.ParseICS(ics.Feed{ID: filepath.Base(path), URL: path}, body)
	}
	var raws []model.RawEvent
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return raws, nil
}

// offlineWorkspace builds a workspace over the events in path. Groups are
// loaded from the configured database only when withGroups is set.
func (a *app) offlineWorkspace(ctx context.Context, path string, withGroups bool) (*workspace.Workspace, func(), error) {
	raws, err := readEvents(path)
	if err != nil {
		return nil, nil, err
	}

	opts := workspace.Options{Location: resolveLocation(a.cfg.Timezone)}
	closeFn := func() {}
	if withGroups {
		db, err := storage.Open(a.cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		opts.Storage = db
		closeFn = func() { _ = db.Close() }
	}

	ws := workspace.New(opts)
	if err := ws.Load(ctx); err != nil {
		closeFn()
		return nil, nil, err
	}
	if _, err := ws.SetEvents(ctx, raws); err != nil {
		closeFn()
		return nil, nil, err
	}
	return ws, closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCategoriesCommand(a *app) *cobra.Command {
	var (
		eventsPath string
		query      string
		withGroups bool
	)

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List the categories of an event file with their counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ws, closeFn, err := a.offlineWorkspace(cmd.Context(), eventsPath, withGroups)
			if err != nil {
				return err
			}
			defer closeFn()
			return writeJSON(cmd.OutOrStdout(), ws.Categories(query))
		},
	}
	cmd.Flags().StringVar(&eventsPath, "events", "", "JSON or .ics file with events")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Only list categories containing this text")
	cmd.Flags().BoolVar(&withGroups, "with-groups", false, "Show group membership from the configured database")
	_ = cmd.MarkFlagRequired("events")
	return cmd
}

func newCompileCommand(a *app) *cobra.Command {
	var (
		eventsPath string
		selected   []string
		groups     []string
		mode       string
		groupBy    string
		order      string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a selection against an event file and print the preview",
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := model.ParseMode(mode)
			if err != nil {
				return err
			}
			key, err := preview.ParseGroupKey(groupBy)
			if err != nil {
				return err
			}
			ord, err := preview.ParseOrder(order)
			if err != nil {
				return err
			}

			ws, closeFn, err := a.offlineWorkspace(cmd.Context(), eventsPath, len(groups) > 0)
			if err != nil {
				return err
			}
			defer closeFn()

			sel := model.Selection{Categories: selected, Groups: groups, Mode: m}
			if sel.Categories == nil {
				sel.Categories = []string{}
			}
			p, err := ws.Preview(sel, key, ord)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), p)
		},
	}
	f := cmd.Flags()
	f.StringVar(&eventsPath, "events", "", "JSON or .ics file with events")
	f.StringSliceVar(&selected, "select", nil, "Category names to select (comma separated)")
	f.StringSliceVar(&groups, "group", nil, "Group ids to select; \"unassigned\" selects categories in no group")
	f.StringVar(&mode, "mode", "include", "include or exclude")
	f.StringVar(&groupBy, "group-by", "none", "none, category or month")
	f.StringVar(&order, "order", "asc", "asc or desc")
	_ = cmd.MarkFlagRequired("events")
	return cmd
}
