package tui

import (
	"testing"

	"github.com/mmcdole/mediacovers/internal/domain"
)

func TestViewState_Bounds(t *testing.T) {
	v := NewViewState()
	v.setRows([]string{"a", "b", "c"})
	v.setWindow(1, 1, 80)

	if got := v.count(); got != 3 {
		t.Fatalf("count() = %d, want 3", got)
	}

	vp := v.viewport()
	if vp.Top != rowHeight || vp.Bottom != 2*rowHeight {
		t.Fatalf("viewport() = %+v", vp)
	}

	b := rowElement{view: v, key: "b"}.Bounds()
	if b.Top != vp.Top || b.Bottom != vp.Bottom {
		t.Errorf("row b = %+v, want the viewport row", b)
	}
	if c := v.bounds("c"); c.Top < vp.Bottom {
		t.Errorf("row c = %+v, should be below the viewport", c)
	}
	if gone := v.bounds("missing"); gone.Bottom > -1e6 {
		t.Errorf("hidden row = %+v, want far off screen", gone)
	}
}

func TestFilterEntries(t *testing.T) {
	entries := []domain.Entry{
		{Name: "Blue Train.flac"},
		{Name: "Kind of Blue.mp3"},
		{Name: "notes.txt"},
	}

	all := filterEntries(entries, "  ")
	if len(all) != 3 || all[2].Entry.Name != "notes.txt" || all[0].Matched != nil {
		t.Fatalf("empty query = %+v", all)
	}

	rows := filterEntries(entries, "BLUE")
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if len(r.Matched) != 4 {
			t.Errorf("%s matched %v, want 4 positions", r.Entry.Name, r.Matched)
		}
	}
}
