package main

import (
	"testing"

	"github.com/menta2k/spywhere/pkg/targets"
	"github.com/menta2k/spywhere/pkg/types"
)

func TestSuggestionEntry(t *testing.T) {
	cat := targets.NewCatalogue([]types.Target{
		{Name: "Lamp", Credit: "ana"},
		{Name: "Red Boat", Credit: "lee"},
	})
	poly := types.Polygon{{X: 1, Y: 2}, {X: 30, Y: 2}, {X: 30, Y: 40}, {X: 1, Y: 40}}

	entry, i, ok := suggestionEntry(cat, "red boat", poly)
	if !ok || i != 1 {
		t.Fatalf("Expected catalogue target 1, got %d (ok=%v)", i, ok)
	}
	if entry.Name != "Red Boat" || entry.Credit != "lee" {
		t.Errorf("Expected catalogue name and credit, got %+v", entry)
	}
	if len(entry.Polygons) != 1 || len(entry.Polygons[0]) != 4 {
		t.Errorf("Expected the suggested polygon, got %v", entry.Polygons)
	}

	entry, i, ok = suggestionEntry(targets.NewCatalogue(nil), "kite", poly)
	if ok || i != -1 || entry.Name != "kite" || entry.Credit != "" {
		t.Errorf("Expected a new entry, got %+v index=%d ok=%v", entry, i, ok)
	}
}
