// Package workspace holds the live session: the current events, the
// categories derived from them, and the group store. It serializes every
// call and writes group changes back to storage after each mutation.
package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"calfilter/internal/apperr"
	"calfilter/internal/category"
	"calfilter/internal/filter"
	"calfilter/internal/group"
	appLog "calfilter/internal/log"
	"calfilter/internal/metrics"
	"calfilter/internal/model"
	"calfilter/internal/normalize"
	"calfilter/internal/preview"
	"calfilter/internal/rules"
	"calfilter/internal/storage"
)

// Options configures a Workspace. Storage and Metrics may be nil; without
// storage, groups live in memory only and saved filters are unavailable.
type Options struct {
	Storage      *storage.Store
	Metrics      *metrics.Metrics
	Location     *time.Location
	ReapplyRules bool
}

type Workspace struct {
	mu sync.Mutex

	db           *storage.Store
	metrics      *metrics.Metrics
	normalizer   normalize.Normalizer
	reapplyRules bool

	groups   *group.Store
	events   []model.Event
	cats     *category.Map
	degraded []*apperr.Error
	loadedAt time.Time

	now func() time.Time
}

func New(opts Options) *Workspace {
	return &Workspace{
		db:           opts.Storage,
		metrics:      opts.Metrics,
		normalizer:   normalize.Normalizer{Location: opts.Location},
		reapplyRules: opts.ReapplyRules,
		groups:       group.NewStore(),
		cats:         category.Extract(nil),
		now:          time.Now,
	}
}

// Load restores groups and rules from storage. It is a no-op without storage.
func (w *Workspace) Load(ctx context.Context) error {
	if w.db == nil {
		return nil
	}
	st, err := w.db.LoadGroups(ctx)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.groups.Restore(st); err != nil {
		return err
	}
	appLog.Info("workspace loaded", "groups", len(st.Groups), "rules", len(st.Rules))
	return nil
}

// RefreshReport summarizes one SetEvents call.
type RefreshReport struct {
	Events     int             `json:"events"`
	Categories int             `json:"categories"`
	Degraded   int             `json:"degraded"`
	Rules      []rules.Outcome `json:"rules,omitempty"`
}

// SetEvents replaces the event list, recomputes categories and, when
// enabled, re-applies every stored rule to the new categories.
func (w *Workspace) SetEvents(ctx context.Context, raws []model.RawEvent) (RefreshReport, error) {
	res := w.normalizer.Normalize(raws)
	cats := category.Extract(res.Events)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.events = res.Events
	w.cats = cats
	w.degraded = res.Degraded
	w.loadedAt = w.now()

	for _, d := range res.Degraded {
		appLog.Warn("event field degraded", "reason", d.Message, "detail", d.Detail)
	}

	report := RefreshReport{
		Events:     len(res.Events),
		Categories: cats.Len(),
		Degraded:   len(res.Degraded),
	}
	if w.metrics != nil {
		w.metrics.EventsLoaded.Set(float64(report.Events))
		w.metrics.CategoriesLoaded.Set(float64(report.Categories))
		w.metrics.DegradedEvents.Set(float64(report.Degraded))
	}

	if w.reapplyRules && len(w.groups.Rules()) > 0 {
		var outcomes []rules.Outcome
		err := w.mutate(ctx, "reapply", func() error {
			var err error
			outcomes, err = rules.ApplyAll(w.groups, w.cats)
			return err
		})
		if err != nil {
			return report, err
		}
		report.Rules = outcomes
		if w.metrics != nil {
			for _, o := range outcomes {
				w.metrics.RuleAssignments.Add(float64(len(o.Result.AssignedCategories)))
			}
		}
	}

	appLog.Info("events replaced",
		"events", report.Events,
		"categories", report.Categories,
		"degraded", report.Degraded,
	)
	return report, nil
}

// mutate runs fn against the group store and persists the result. When fn
// or the write-back fails the store is rolled back. Callers hold w.mu.
func (w *Workspace) mutate(ctx context.Context, op string, fn func() error) error {
	before := w.groups.Snapshot()
	rollback := func() {
		if rerr := w.groups.Restore(before); rerr != nil {
			appLog.Error("group store rollback failed", rerr, "op", op)
		}
	}
	if err := fn(); err != nil {
		rollback()
		return err
	}
	if w.db != nil {
		if err := w.db.SaveGroups(ctx, w.groups.Snapshot()); err != nil {
			rollback()
			return apperr.Wrap(err, apperr.KindInternal, "persist groups")
		}
	}
	if w.metrics != nil {
		w.metrics.GroupMutationsTotal.WithLabelValues(op).Inc()
	}
	return nil
}

// Status is the read-only summary exposed to operators.
type Status struct {
	Events           int              `json:"events"`
	Categories       int              `json:"categories"`
	MultiCategories  int              `json:"multi_event_categories"`
	SingleCategories int              `json:"single_event_categories"`
	Groups           int              `json:"groups"`
	Rules            int              `json:"rules"`
	LoadedAt         *time.Time       `json:"loaded_at,omitempty"`
	Degraded         []DegradedReport `json:"degraded"`
}

// DegradedReport is one field that could not be normalized.
type DegradedReport struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (w *Workspace) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()

	multi, single := w.cats.Split()
	st := Status{
		Events:           len(w.events),
		Categories:       w.cats.Len(),
		MultiCategories:  len(multi),
		SingleCategories: len(single),
		Groups:           len(w.groups.Groups()),
		Rules:            len(w.groups.Rules()),
		Degraded:         make([]DegradedReport, 0, len(w.degraded)),
	}
	if !w.loadedAt.IsZero() {
		t := w.loadedAt
		st.LoadedAt = &t
	}
	for _, d := range w.degraded {
		st.Degraded = append(st.Degraded, DegradedReport{Kind: d.Kind.String(), Message: d.Message, Detail: d.Detail})
	}
	return st
}

// CategoryView is a category as listed to users.
type CategoryView struct {
	Name      string   `json:"name"`
	Count     int      `json:"count"`
	Recurring bool     `json:"recurring"`
	Groups    []string `json:"groups"`
}

// CategoryListing splits the visible categories the way they are shown:
// multi-event categories first, single-event ones apart.
type CategoryListing struct {
	Multi  []CategoryView `json:"multi"`
	Single []CategoryView `json:"single"`
}

// Categories lists the categories whose name contains query.
func (w *Workspace) Categories(query string) CategoryListing {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := CategoryListing{Multi: []CategoryView{}, Single: []CategoryView{}}
	for _, name := range filter.Visible(w.cats, query) {
		c, _ := w.cats.Get(name)
		groups := w.groups.GroupsOf(name)
		if groups == nil {
			groups = []string{}
		}
		v := CategoryView{Name: c.Name, Count: c.Count(), Recurring: c.Recurring, Groups: groups}
		if c.SingleEvent() {
			out.Single = append(out.Single, v)
		} else {
			out.Multi = append(out.Multi, v)
		}
	}
	return out
}

func (w *Workspace) Groups() []model.Group {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groups.Groups()
}

func (w *Workspace) CreateGroup(ctx context.Context, name string) (model.Group, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var g model.Group
	err := w.mutate(ctx, "create", func() error {
		var err error
		g, err = w.groups.CreateGroup(name)
		return err
	})
	return g, err
}

func (w *Workspace) RenameGroup(ctx context.Context, id, name string) (model.Group, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var g model.Group
	err := w.mutate(ctx, "rename", func() error {
		var err error
		g, err = w.groups.RenameGroup(id, name)
		return err
	})
	return g, err
}

// DeleteGroup removes the group together with its rules and assignments.
func (w *Workspace) DeleteGroup(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mutate(ctx, "delete", func() error { return w.groups.DeleteGroup(id) })
}

// AssignCategories adds names to a group or, with group.AssignUnassign,
// removes them from every group. It returns the names that changed.
func (w *Workspace) AssignCategories(ctx context.Context, groupID string, names []string, mode group.AssignMode) ([]string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var changed []string
	err := w.mutate(ctx, "assign", func() error {
		var err error
		changed, err = w.groups.AssignCategories(groupID, names, mode)
		return err
	})
	return changed, err
}

func (w *Workspace) Rules() []model.AssignmentRule {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.groups.Rules()
}

// RulesFor returns the rules targeting groupID.
func (w *Workspace) RulesFor(groupID string) []model.AssignmentRule {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.groups.RulesFor(groupID)
	if out == nil {
		out = []model.AssignmentRule{}
	}
	return out
}

// CreateRule stores r and applies it once to the current categories.
func (w *Workspace) CreateRule(ctx context.Context, r model.AssignmentRule) (model.AssignmentRule, rules.Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var (
		stored model.AssignmentRule
		res    rules.Result
	)
	err := w.mutate(ctx, "rule_create", func() error {
		var err error
		stored, res, err = rules.CreateAndApply(w.groups, r, w.cats)
		return err
	})
	if err != nil {
		return model.AssignmentRule{}, rules.Result{}, err
	}
	if w.metrics != nil {
		w.metrics.RuleAssignments.Add(float64(len(res.AssignedCategories)))
	}
	return stored, res, nil
}

// DeleteRule removes a rule. Categories it assigned stay assigned.
func (w *Workspace) DeleteRule(ctx context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mutate(ctx, "rule_delete", func() error { return w.groups.DeleteRule(id) })
}

// Compile returns the events a selection keeps, in input order.
func (w *Workspace) Compile(sel model.Selection) ([]model.Event, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.compile(sel)
}

func (w *Workspace) compile(sel model.Selection) ([]model.Event, error) {
	events, err := filter.Compile(sel, w.cats, w.groups)
	if err != nil {
		return nil, err
	}
	if w.metrics != nil {
		mode := sel.Mode
		if mode == "" {
			mode = model.ModeInclude
		}
		w.metrics.CompilationsTotal.WithLabelValues(string(mode)).Inc()
		w.metrics.CompiledEvents.Observe(float64(len(events)))
	}
	return events, nil
}

// Preview compiles sel and projects the result for display.
func (w *Workspace) Preview(sel model.Selection, key preview.GroupKey, order preview.Order) (preview.Preview, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	events, err := w.compile(sel)
	if err != nil {
		return preview.Preview{}, err
	}
	return preview.Project(events, w.cats, key, order)
}

// SwitchMode flips sel's mode relative to the categories the view filtered
// by query currently shows.
func (w *Workspace) SwitchMode(sel model.Selection, query string) model.Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filter.SwitchMode(sel, filter.Visible(w.cats, query), w.cats, w.groups)
}

// Complement flips sel's mode over every known category.
func (w *Workspace) Complement(sel model.Selection) model.Selection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return filter.Complement(sel, w.cats, w.groups)
}

func (w *Workspace) requireStorage() error {
	if w.db == nil {
		return apperr.Validation("saved filters need a database")
	}
	return nil
}

func (w *Workspace) Filters(ctx context.Context) ([]model.SavedFilter, error) {
	if err := w.requireStorage(); err != nil {
		return nil, err
	}
	return w.db.ListFilters(ctx)
}

// SaveFilter persists sel under name. Names are unique case-insensitively.
func (w *Workspace) SaveFilter(ctx context.Context, name string, sel model.Selection) (model.SavedFilter, error) {
	if err := w.requireStorage(); err != nil {
		return model.SavedFilter{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return model.SavedFilter{}, apperr.Validation("filter name is empty")
	}
	mode, err := model.ParseMode(string(sel.Mode))
	if err != nil {
		return model.SavedFilter{}, apperr.Wrap(err, apperr.KindValidation, "invalid selection mode")
	}
	sel.Mode = mode
	if sel.Categories == nil {
		sel.Categories = []string{}
	}

	// The name check and the insert must not interleave with another save.
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, err := w.db.ListFilters(ctx)
	if err != nil {
		return model.SavedFilter{}, err
	}
	for _, f := range existing {
		if strings.EqualFold(f.Name, name) {
			return model.SavedFilter{}, apperr.Validation("duplicate filter name").WithDetail(name)
		}
	}

	f := model.SavedFilter{
		ID:        uuid.NewString(),
		Name:      name,
		Selection: sel,
		CreatedAt: w.now().UTC(),
	}
	if err := w.db.SaveFilter(ctx, f); err != nil {
		return model.SavedFilter{}, err
	}
	appLog.Info("saved filter created", "id", f.ID, "name", f.Name, "mode", string(f.Selection.Mode))
	return f, nil
}

func (w *Workspace) DeleteFilter(ctx context.Context, id string) error {
	if err := w.requireStorage(); err != nil {
		return err
	}
	return w.db.DeleteFilter(ctx, id)
}

// FilterPreview re-applies a saved filter to the current events.
func (w *Workspace) FilterPreview(ctx context.Context, id string, key preview.GroupKey, order preview.Order) (preview.Preview, error) {
	if err := w.requireStorage(); err != nil {
		return preview.Preview{}, err
	}
	f, err := w.db.GetFilter(ctx, id)
	if err != nil {
		return preview.Preview{}, err
	}
	return w.Preview(f.Selection, key, order)
}
