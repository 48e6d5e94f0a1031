// Package storage persists groups, assignment rules, assignments and saved
// filters in sqlite through gorm.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"calfilter/internal/apperr"
	"calfilter/internal/group"
	"calfilter/internal/model"
)

// GroupRow represents the groups table.
type GroupRow struct {
	ID       string `gorm:"primaryKey"`
	Name     string `gorm:"not null"`
	Position int    `gorm:"not null"`
}

func (GroupRow) TableName() string { return "groups" }

// AssignmentRow represents the group_categories table.
type AssignmentRow struct {
	GroupID  string `gorm:"primaryKey"`
	Category string `gorm:"primaryKey"`
}

func (AssignmentRow) TableName() string { return "group_categories" }

// RuleRow represents the assignment_rules table.
type RuleRow struct {
	ID            string `gorm:"primaryKey"`
	RuleType      string `gorm:"not null"`
	RuleValue     string `gorm:"not null"`
	TargetGroupID string `gorm:"index;not null"`
	Position      int    `gorm:"not null"`
}

func (RuleRow) TableName() string { return "assignment_rules" }

// SavedFilterRow represents the saved_filters table. Config holds the
// Selection as JSON.
type SavedFilterRow struct {
	ID        string    `gorm:"primaryKey"`
	Name      string    `gorm:"uniqueIndex;not null"`
	Config    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (SavedFilterRow) TableName() string { return "saved_filters" }

// Store is the sqlite-backed persistence layer.
type Store struct {
	db *gorm.DB
}

// Open opens (creating if needed) the database at path and migrates the
// schema. Use ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("storage: database path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("storage: create directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}

	if err := db.AutoMigrate(&GroupRow{}, &AssignmentRow{}, &RuleRow{}, &SavedFilterRow{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LoadGroups reads the persisted group store contents.
func (s *Store) LoadGroups(ctx context.Context) (group.State, error) {
	var st group.State
	db := s.db.WithContext(ctx)

	var groups []GroupRow
	if err := db.Order("position").Find(&groups).Error; err != nil {
		return st, fmt.Errorf("storage: load groups: %w", err)
	}
	var assigns []AssignmentRow
	if err := db.Order("group_id, category").Find(&assigns).Error; err != nil {
		return st, fmt.Errorf("storage: load assignments: %w", err)
	}
	var rules []RuleRow
	if err := db.Order("position").Find(&rules).Error; err != nil {
		return st, fmt.Errorf("storage: load rules: %w", err)
	}

	byGroup := make(map[string][]string)
	for _, a := range assigns {
		byGroup[a.GroupID] = append(byGroup[a.GroupID], a.Category)
	}

	st.Groups = make([]model.Group, 0, len(groups))
	for _, g := range groups {
		cats := byGroup[g.ID]
		if cats == nil {
			cats = []string{}
		}
		st.Groups = append(st.Groups, model.Group{ID: g.ID, Name: g.Name, Categories: cats})
	}

	st.Rules = make([]model.AssignmentRule, 0, len(rules))
	for _, r := range rules {
		t, err := model.ParseRuleType(r.RuleType)
		if err != nil {
			return st, fmt.Errorf("storage: rule %s: %w", r.ID, err)
		}
		st.Rules = append(st.Rules, model.AssignmentRule{
			ID:            r.ID,
			Type:          t,
			Value:         r.RuleValue,
			TargetGroupID: r.TargetGroupID,
		})
	}
	return st, nil
}

// SaveGroups replaces the persisted group store contents with st in one
// transaction.
func (s *Store) SaveGroups(ctx context.Context, st group.State) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, table := range []any{&AssignmentRow{}, &RuleRow{}, &GroupRow{}} {
			if err := tx.Where("1 = 1").Delete(table).Error; err != nil {
				return err
			}
		}

		for i, g := range st.Groups {
			if err := tx.Create(&GroupRow{ID: g.ID, Name: g.Name, Position: i}).Error; err != nil {
				return err
			}
			for _, c := range g.Categories {
				if err := tx.Create(&AssignmentRow{GroupID: g.ID, Category: c}).Error; err != nil {
					return err
				}
			}
		}
		for i, r := range st.Rules {
			row := RuleRow{
				ID:            r.ID,
				RuleType:      r.Type.String(),
				RuleValue:     r.Value,
				TargetGroupID: r.TargetGroupID,
				Position:      i,
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: save groups: %w", err)
	}
	return nil
}

// ListFilters returns saved filters ordered by name.
func (s *Store) ListFilters(ctx context.Context) ([]model.SavedFilter, error) {
	var rows []SavedFilterRow
	if err := s.db.WithContext(ctx).Order("name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list filters: %w", err)
	}
	out := make([]model.SavedFilter, 0, len(rows))
	for _, r := range rows {
		f, err := fromRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// GetFilter loads one saved filter.
func (s *Store) GetFilter(ctx context.Context, id string) (model.SavedFilter, error) {
	var row SavedFilterRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.SavedFilter{}, apperr.NotFound("saved filter not found").WithDetail("id=" + id)
	}
	if err != nil {
		return model.SavedFilter{}, fmt.Errorf("storage: get filter %s: %w", id, err)
	}
	return fromRow(row)
}

// SaveFilter inserts or replaces a saved filter.
func (s *Store) SaveFilter(ctx context.Context, f model.SavedFilter) error {
	blob, err := json.Marshal(f.Selection)
	if err != nil {
		return fmt.Errorf("storage: encode filter %s: %w", f.ID, err)
	}
	row := SavedFilterRow{ID: f.ID, Name: f.Name, Config: string(blob), CreatedAt: f.CreatedAt}
	if err := s.db.WithContext(ctx).Save(&row).Error; err != nil {
		return fmt.Errorf("storage: save filter %s: %w", f.ID, err)
	}
	return nil
}

// DeleteFilter removes a saved filter.
func (s *Store) DeleteFilter(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&SavedFilterRow{})
	if res.Error != nil {
		return fmt.Errorf("storage: delete filter %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("saved filter not found").WithDetail("id=" + id)
	}
	return nil
}

func fromRow(r SavedFilterRow) (model.SavedFilter, error) {
	var sel model.Selection
	if err := json.Unmarshal([]byte(r.Config), &sel); err != nil {
		return model.SavedFilter{}, fmt.Errorf("storage: decode filter %s: %w", r.ID, err)
	}
	return model.SavedFilter{ID: r.ID, Name: r.Name, Selection: sel, CreatedAt: r.CreatedAt}, nil
}
