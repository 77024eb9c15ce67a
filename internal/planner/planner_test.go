package planner

import (
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/shehryarbajwa/pagestitch/internal/geometry"
)

func TestRowStep(t *testing.T) {
	tests := []struct {
		visible int
		want    int
	}{
		{800, 560},
		{600, 360},
		{201, 1},
		{200, 160},
		{100, 60},
		{40, 1},
	}
	for _, tt := range tests {
		if got := RowStep(tt.visible); got != tt.want {
			t.Errorf("RowStep(%d) = %d, want %d", tt.visible, got, tt.want)
		}
	}
}

func TestNewTallWindowPage(t *testing.T) {
	plan := New(geometry.ScrollTarget{
		UseWindow:     true,
		FullWidth:     1000,
		FullHeight:    2000,
		VisibleWidth:  1000,
		VisibleHeight: 800,
	})

	want := []Tile{{0, 0}, {0, 560}, {0, 1120}, {0, 1200}}
	if !reflect.DeepEqual(plan.Tiles, want) {
		t.Fatalf("tiles = %v, want %v", plan.Tiles, want)
	}
	if plan.TotalWidth != 1000 || plan.TotalHeight != 2000 || !plan.UseWindow {
		t.Errorf("plan = %+v", plan)
	}
}

func TestNewShortPage(t *testing.T) {
	plan := New(geometry.ScrollTarget{FullWidth: 1000, FullHeight: 500, VisibleWidth: 1000, VisibleHeight: 800})
	if want := []Tile{{0, 0}}; !reflect.DeepEqual(plan.Tiles, want) {
		t.Fatalf("tiles = %v, want %v", plan.Tiles, want)
	}
}

func TestNewSnapsOnePixelOvershoot(t *testing.T) {
	plan := New(geometry.ScrollTarget{FullWidth: 1001, FullHeight: 800, VisibleWidth: 1000, VisibleHeight: 800})
	if want := []Tile{{0, 0}}; !reflect.DeepEqual(plan.Tiles, want) {
		t.Fatalf("tiles = %v, want %v", plan.Tiles, want)
	}
	if plan.TotalWidth != 1000 {
		t.Errorf("TotalWidth = %d, want 1000", plan.TotalWidth)
	}
}

func TestNewMultipleColumns(t *testing.T) {
	plan := New(geometry.ScrollTarget{FullWidth: 2500, FullHeight: 1400, VisibleWidth: 1000, VisibleHeight: 800})
	want := []Tile{
		{0, 0}, {1000, 0}, {2000, 0},
		{0, 560}, {1000, 560}, {2000, 560},
		{0, 600},
	}
	if !reflect.DeepEqual(plan.Tiles, want) {
		t.Fatalf("tiles = %v, want %v", plan.Tiles, want)
	}
}

func TestNewDoesNotRejectOversize(t *testing.T) {
	plan := New(geometry.ScrollTarget{FullWidth: 1000, FullHeight: 40000, VisibleWidth: 1000, VisibleHeight: 800})
	if plan.TotalHeight != 40000 {
		t.Fatalf("TotalHeight = %d, want 40000", plan.TotalHeight)
	}
	if last := plan.Tiles[len(plan.Tiles)-1]; last.Y != 39200 {
		t.Errorf("last tile = %v, want y=39200", last)
	}
}

func drawTarget(t *rapid.T) geometry.ScrollTarget {
	visibleWidth := rapid.IntRange(1, 3000).Draw(t, "visibleWidth")
	visibleHeight := rapid.IntRange(100, 2000).Draw(t, "visibleHeight")
	return geometry.ScrollTarget{
		UseWindow:     rapid.Bool().Draw(t, "useWindow"),
		FullWidth:     rapid.IntRange(0, 3*visibleWidth).Draw(t, "fullWidth"),
		FullHeight:    rapid.IntRange(0, 20000).Draw(t, "fullHeight"),
		VisibleWidth:  visibleWidth,
		VisibleHeight: visibleHeight,
	}
}

func TestPlanProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		target := drawTarget(t)
		plan := New(target)

		if len(plan.Tiles) == 0 {
			t.Fatal("plan has no tiles")
		}
		last := plan.Tiles[len(plan.Tiles)-1]
		if want := max(0, target.FullHeight-target.VisibleHeight); last.Y != want {
			t.Fatalf("last tile y = %d, want %d", last.Y, want)
		}
		for i := 1; i < len(plan.Tiles); i++ {
			prev, cur := plan.Tiles[i-1], plan.Tiles[i]
			if cur.Y < prev.Y || (cur.Y == prev.Y && cur.X <= prev.X) {
				t.Fatalf("tiles out of order at %d: %v then %v", i, prev, cur)
			}
		}
		if plan.UseWindow != target.UseWindow {
			t.Fatal("useWindow not carried through")
		}
		if again := New(target); !reflect.DeepEqual(plan, again) {
			t.Fatalf("re-planning differs: %v vs %v", plan, again)
		}
	})
}

func TestShortContentSingleTile(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		visibleWidth := rapid.IntRange(1, 3000).Draw(t, "visibleWidth")
		visibleHeight := rapid.IntRange(1, 2000).Draw(t, "visibleHeight")
		target := geometry.ScrollTarget{
			FullWidth:     rapid.IntRange(0, visibleWidth+1).Draw(t, "fullWidth"),
			FullHeight:    rapid.IntRange(0, visibleHeight).Draw(t, "fullHeight"),
			VisibleWidth:  visibleWidth,
			VisibleHeight: visibleHeight,
		}
		plan := New(target)
		if want := []Tile{{0, 0}}; !reflect.DeepEqual(plan.Tiles, want) {
			t.Fatalf("tiles = %v, want %v", plan.Tiles, want)
		}
	})
}
