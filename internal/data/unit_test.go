package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleUnits = `
units:
  - id: math_knight
    subject: math
    name: Math Knight
    health: 120
    dps: 15
    cost: 100
    speed: 40
    wrong_answer: {health_factor: 0.67, dps_factor: 0.5}
  - id: Chem_Archer
    subject: chemistry
    name: Chem Archer
    health: 70
    dps: 12
    cost: 150
    range: 3
    speed: 35
    wrong_answer: {health_factor: 0.8, dps_factor: 0.8}
`

func TestParseUnitTable(t *testing.T) {
	tbl, err := ParseUnitTable([]byte(sampleUnits))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("count = %d, want 2", tbl.Count())
	}

	knight := tbl.Get("math_knight")
	if knight == nil {
		t.Fatalf("math_knight missing")
	}
	if knight.AttackRange() != 1 {
		t.Fatalf("melee range = %v, want 1", knight.AttackRange())
	}
	if knight.WrongAnswer.HealthFactor != 0.67 {
		t.Fatalf("hp factor = %v", knight.WrongAnswer.HealthFactor)
	}

	archer := tbl.Get("chem_archer")
	if archer == nil {
		t.Fatalf("case-folded lookup failed")
	}
	if archer.AttackRange() != 3 {
		t.Fatalf("archer range = %v, want 3", archer.AttackRange())
	}
	if tbl.Get("MATH_KNIGHT") != knight {
		t.Fatalf("upper-case lookup should hit the same template")
	}
	if tbl.Get("dragon") != nil {
		t.Fatalf("unknown id should be nil")
	}

	if ids := tbl.Types(); len(ids) != 2 || ids[0] != "Chem_Archer" {
		t.Fatalf("types = %v", ids)
	}

	all := tbl.All()
	if all[0].ID != "Chem_Archer" || all[1].ID != "math_knight" {
		t.Fatalf("order = %s,%s", all[0].ID, all[1].ID)
	}
}

func TestParseUnitTableRejects(t *testing.T) {
	cases := map[string]string{
		"empty":     "units: []\n",
		"duplicate": sampleUnits + "  - {id: MATH_KNIGHT, health: 1, dps: 1, cost: 1, speed: 1, wrong_answer: {health_factor: 1, dps_factor: 1}}\n",
		"factor":    "units:\n  - {id: a, health: 1, dps: 1, cost: 1, speed: 1, wrong_answer: {health_factor: 1.5, dps_factor: 1}}\n",
		"health":    "units:\n  - {id: a, health: 0, dps: 1, cost: 1, speed: 1, wrong_answer: {health_factor: 1, dps_factor: 1}}\n",
		"speed":     "units:\n  - {id: a, health: 1, dps: 1, cost: 1, speed: 0, wrong_answer: {health_factor: 1, dps_factor: 1}}\n",
		"range":     "units:\n  - {id: a, health: 1, dps: 1, cost: 1, speed: 1, range: 0, wrong_answer: {health_factor: 1, dps_factor: 1}}\n",
		"no id":     "units:\n  - {health: 1, dps: 1, cost: 1, speed: 1, wrong_answer: {health_factor: 1, dps_factor: 1}}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseUnitTable([]byte(doc)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadUnitTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unit_list.yaml")
	if err := os.WriteFile(path, []byte(sampleUnits), 0o644); err != nil {
		t.Fatal(err)
	}
	tbl, err := LoadUnitTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tbl.Count() != 2 {
		t.Fatalf("count = %d", tbl.Count())
	}

	_, err = LoadUnitTable(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "read unit_list") {
		t.Fatalf("err = %v", err)
	}
}

func TestShippedUnitList(t *testing.T) {
	tbl, err := LoadUnitTable(filepath.Join("..", "..", "data", "yaml", "unit_list.yaml"))
	if err != nil {
		t.Fatalf("load shipped unit list: %v", err)
	}
	if tbl.Count() == 0 {
		t.Fatalf("shipped unit list is empty")
	}
}
