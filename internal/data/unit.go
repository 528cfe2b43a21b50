package data

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// WrongAnswer holds the multiplicative penalties applied once, at creation,
// to a unit deployed after an incorrect quiz answer.
type WrongAnswer struct {
	HealthFactor float64 `yaml:"health_factor" json:"health_factor"`
	DpsFactor    float64 `yaml:"dps_factor" json:"dps_factor"`
}

// UnitTemplate holds static data for a unit type loaded from YAML.
type UnitTemplate struct {
	ID          string      `yaml:"id" json:"id"`
	Subject     string      `yaml:"subject" json:"subject"`
	Name        string      `yaml:"name" json:"name"`
	Health      int         `yaml:"health" json:"health"`
	Dps         int         `yaml:"dps" json:"dps"`
	Cost        int         `yaml:"cost" json:"cost"`
	Range       *float64    `yaml:"range,omitempty" json:"range,omitempty"` // nil = melee (1)
	Speed       float64     `yaml:"speed" json:"speed"`                     // lane pixels per second
	WrongAnswer WrongAnswer `yaml:"wrong_answer" json:"wrong_answer"`
}

// AttackRange returns the range in range units; melee when unset.
func (t *UnitTemplate) AttackRange() float64 {
	if t.Range == nil {
		return 1
	}
	return *t.Range
}

type unitListFile struct {
	Units []UnitTemplate `yaml:"units"`
}

// UnitTable holds all unit templates indexed by case-folded id.
// Read-only after load; safe to share between matches.
type UnitTable struct {
	templates map[string]*UnitTemplate
	ordered   []*UnitTemplate
}

// foldID normalizes a unit-type id for lookup. A Caser is stateful, so each
// call gets its own; tables are read from many match goroutines.
func foldID(id string) string {
	return cases.Fold().String(id)
}

// LoadUnitTable loads unit templates from a YAML file.
func LoadUnitTable(path string) (*UnitTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit_list: %w", err)
	}
	t, err := ParseUnitTable(data)
	if err != nil {
		return nil, fmt.Errorf("parse unit_list: %w", err)
	}
	return t, nil
}

// ParseUnitTable decodes and validates a unit list document.
func ParseUnitTable(data []byte) (*UnitTable, error) {
	var f unitListFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return NewUnitTable(f.Units)
}

// NewUnitTable builds a table from in-memory templates.
func NewUnitTable(units []UnitTemplate) (*UnitTable, error) {
	if len(units) == 0 {
		return nil, errors.New("no unit types defined")
	}
	t := &UnitTable{
		templates: make(map[string]*UnitTemplate, len(units)),
		ordered:   make([]*UnitTemplate, 0, len(units)),
	}
	for i := range units {
		u := units[i]
		if err := validateTemplate(&u); err != nil {
			return nil, err
		}
		key := foldID(u.ID)
		if _, dup := t.templates[key]; dup {
			return nil, fmt.Errorf("unit %q: duplicate id", u.ID)
		}
		t.templates[key] = &u
		t.ordered = append(t.ordered, &u)
	}
	sort.Slice(t.ordered, func(i, j int) bool {
		return t.ordered[i].ID < t.ordered[j].ID
	})
	return t, nil
}

func validateTemplate(u *UnitTemplate) error {
	if u.ID == "" {
		return errors.New("unit with empty id")
	}
	if u.Health <= 0 {
		return fmt.Errorf("unit %q: health must be positive", u.ID)
	}
	if u.Dps < 0 || u.Cost < 0 {
		return fmt.Errorf("unit %q: dps and cost must not be negative", u.ID)
	}
	if u.Speed <= 0 {
		return fmt.Errorf("unit %q: speed must be positive", u.ID)
	}
	if u.Range != nil && *u.Range <= 0 {
		return fmt.Errorf("unit %q: range must be positive", u.ID)
	}
	w := u.WrongAnswer
	if w.HealthFactor <= 0 || w.HealthFactor > 1 || w.DpsFactor <= 0 || w.DpsFactor > 1 {
		return fmt.Errorf("unit %q: wrong_answer factors must be in (0,1]", u.ID)
	}
	return nil
}

// Get returns a unit template by id (case-insensitive), or nil if not found.
func (t *UnitTable) Get(id string) *UnitTemplate {
	return t.templates[foldID(id)]
}

// Count returns the number of loaded templates.
func (t *UnitTable) Count() int {
	return len(t.ordered)
}

// All returns every template in id order. The slice must not be modified.
func (t *UnitTable) All() []*UnitTemplate {
	return t.ordered
}

// Types returns the ids of every template in id order.
func (t *UnitTable) Types() []string {
	ids := make([]string, len(t.ordered))
	for i, u := range t.ordered {
		ids[i] = u.ID
	}
	return ids
}
