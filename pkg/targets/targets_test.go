package targets

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/menta2k/spywhere/pkg/types"
)

const sampleTargets = `[
	["Lighthouse", "drawn by ana", [[[10, 10], [40, 10], [40, 60], [10, 60]]]],
	["Twin boats", "", [
		[[100, 100], [120, 100], [120, 110]],
		[[200, 100], [220, 100], [220, 110], [200, 110]]
	]]
]`

func quietLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestLoadFromReader(t *testing.T) {
	var logs bytes.Buffer
	cat, err := New(quietLogger(&logs)).LoadFromReader(strings.NewReader(sampleTargets))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if cat.Len() != 2 {
		t.Fatalf("Expected 2 targets, got %d", cat.Len())
	}

	first, ok := cat.Get(0)
	if !ok {
		t.Fatal("Expected target 0")
	}
	if first.Name != "Lighthouse" || first.Credit != "drawn by ana" {
		t.Errorf("Unexpected first target: %+v", first)
	}
	if len(first.Polygons) != 1 || len(first.Polygons[0]) != 4 {
		t.Errorf("Expected one 4-vertex polygon, got %v", first.Polygons)
	}
	if first.Polygons[0][2].X != 40 || first.Polygons[0][2].Y != 60 {
		t.Errorf("Unexpected vertex: %v", first.Polygons[0][2])
	}

	second, _ := cat.Get(1)
	if len(second.Polygons) != 2 {
		t.Errorf("Expected 2 polygons, got %d", len(second.Polygons))
	}
}

func TestGetOutOfRange(t *testing.T) {
	cat := NewCatalogue(nil)
	if _, ok := cat.Get(0); ok {
		t.Error("Expected no target in empty catalogue")
	}
	if _, ok := cat.Get(-1); ok {
		t.Error("Expected no target at negative index")
	}
}

func TestCatalogueCopiesPolygons(t *testing.T) {
	list := []types.Target{
		{Name: "Kite", Polygons: []types.Polygon{{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}}},
	}
	cat := NewCatalogue(list)

	list[0].Polygons[0][0].X = 99
	got, _ := cat.Get(0)
	if got.Polygons[0][0].X != 0 {
		t.Errorf("Catalogue shares polygons with the caller's list: %v", got.Polygons[0])
	}

	got.Polygons[0][1].Y = 99
	cat.All()[0].Polygons[0][2].X = 99
	again, _ := cat.Get(0)
	if again.Polygons[0][1].Y != 0 || again.Polygons[0][2].X != 10 {
		t.Errorf("Get and All must return copies, got %v", again.Polygons[0])
	}
}

func TestFind(t *testing.T) {
	cat, err := New(nil).LoadFromReader(strings.NewReader(sampleTargets))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	if i, ok := cat.Find("twin BOATS"); !ok || i != 1 {
		t.Errorf("Expected index 1, got %d (ok=%v)", i, ok)
	}
	if _, ok := cat.Find("submarine"); ok {
		t.Error("Expected no match for unknown name")
	}
}

func TestDegeneratePolygon(t *testing.T) {
	data := `[["Kite", "", [[[0, 0], [5, 5]]]]]`

	var logs bytes.Buffer
	cat, err := New(quietLogger(&logs)).LoadFromReader(strings.NewReader(data))
	if err != nil {
		t.Fatalf("Lenient loader should accept degenerate polygons: %v", err)
	}
	if cat.Len() != 1 {
		t.Errorf("Expected 1 target, got %d", cat.Len())
	}
	if !strings.Contains(logs.String(), "degenerate polygon") {
		t.Errorf("Expected a warning, got %q", logs.String())
	}

	strict := NewWithConfig(Config{Strict: true}, nil)
	if _, err := strict.LoadFromReader(strings.NewReader(data)); err == nil {
		t.Error("Strict loader should reject degenerate polygons")
	}
}

func TestInvalidTargets(t *testing.T) {
	tests := map[string]string{
		"not an array":   `{"name": "x"}`,
		"short tuple":    `[["Kite", ""]]`,
		"bad point":      `[["Kite", "", [[[0, 0, 0], [1, 1], [2, 0]]]]]`,
		"missing name":   `[["", "", [[[0, 0], [1, 1], [2, 0]]]]]`,
		"no polygons":    `[["Kite", "", []]]`,
		"string polygon": `[["Kite", "", "square"]]`,
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := New(nil).LoadFromReader(strings.NewReader(data)); err == nil {
				t.Errorf("Expected error for %s", name)
			}
		})
	}

	allowEmpty := NewWithConfig(Config{AllowEmpty: true}, nil)
	if _, err := allowEmpty.LoadFromReader(strings.NewReader(`[["Kite", "", []]]`)); err != nil {
		t.Errorf("AllowEmpty loader should accept targets without polygons: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.json")
	if err := os.WriteFile(path, []byte(sampleTargets), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := New(nil).Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cat.Len() != 2 {
		t.Errorf("Expected 2 targets, got %d", cat.Len())
	}

	if _, err := New(nil).Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
}
