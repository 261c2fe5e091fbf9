package tui

import (
	"sync"

	"github.com/mmcdole/mediacovers/internal/visibility"
)

// rowHeight is the height of one list row in viewport units. The gate's
// margin is expressed in the same units.
const rowHeight = 24

// ViewState is the part of the layout the visibility gate reads from its own
// goroutines. It is created before the cover service so the gate's viewport
// function can read it, and handed to NewModel.
type ViewState struct {
	mu        sync.Mutex
	positions map[string]int // entry key -> index in the displayed rows
	offset    int            // first displayed row
	height    int            // rows that fit on screen
	width     int
}

// NewViewState creates an empty layout.
func NewViewState() *ViewState {
	return &ViewState{positions: make(map[string]int)}
}

// setRows records the display order of the current rows.
func (v *ViewState) setRows(keys []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.positions = make(map[string]int, len(keys))
	for i, k := range keys {
		v.positions[k] = i
	}
}

func (v *ViewState) setWindow(offset, height, width int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.offset = offset
	v.height = height
	v.width = width
}

// count is the number of rows the host currently renders.
func (v *ViewState) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.positions)
}

// viewport returns the visible window in row units.
func (v *ViewState) viewport() visibility.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	return visibility.Rect{
		Top:    float64(v.offset * rowHeight),
		Bottom: float64((v.offset + v.height) * rowHeight),
		Left:   0,
		Right:  float64(v.width),
	}
}

// bounds returns where the row of key is drawn. Rows filtered out of the
// display are placed far outside any viewport.
func (v *ViewState) bounds(key string) visibility.Rect {
	v.mu.Lock()
	defer v.mu.Unlock()
	i, ok := v.positions[key]
	if !ok {
		return visibility.Rect{Top: -1e9, Bottom: -1e9}
	}
	return visibility.Rect{
		Top:    float64(i * rowHeight),
		Bottom: float64((i + 1) * rowHeight),
		Left:   0,
		Right:  float64(v.width),
	}
}

// Viewport returns the viewport function for the visibility gate.
func (v *ViewState) Viewport() func() visibility.Rect {
	return v.viewport
}

// rowElement is the visibility.Element of one listing row.
type rowElement struct {
	view *ViewState
	key  string
}

func (r rowElement) Bounds() visibility.Rect {
	return r.view.bounds(r.key)
}
