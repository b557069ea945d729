package discovery

import "github.com/wgoossens/trackside/model"

const browsePageSize = 10
const searchPageSize = 20

// GrowTriggerDistance is how close to the end of the rendered list the
// viewport has to be before the window grows, in pixels.
const GrowTriggerDistance = 220

// Window is the infinite-scroll pagination state for one discovery view.
// It only ever grows for a fixed filter; any filter change must go through
// Reset.
type Window struct {
	visible    int
	latched    bool
	textActive bool
}

func NewWindow(textQueryActive bool) *Window {
	w := &Window{}
	w.Reset(textQueryActive)
	return w
}

// Reset returns the window to the base page size and re-arms the scroll
// trigger. Called whenever any filter dimension changes.
func (w *Window) Reset(textQueryActive bool) {
	w.textActive = textQueryActive
	w.visible = w.pageSize()
	w.latched = false
}

func (w *Window) pageSize() int {
	if w.textActive {
		return searchPageSize
	}
	return browsePageSize
}

func (w *Window) VisibleCount() int {
	return w.visible
}

// ReportScroll feeds the current distance to the list's end. Within the
// trigger distance the window grows by one page, at most once until the
// viewport moves away again (the latch), and never past total.
func (w *Window) ReportScroll(distanceToEnd, total int) {
	if distanceToEnd > GrowTriggerDistance {
		w.latched = false
		return
	}
	if w.latched || w.visible >= total {
		return
	}
	w.latched = true
	w.visible = min(w.visible+w.pageSize(), total)
}

// Restore rebuilds a window from a persisted visible count, e.g. a query
// parameter carried across stateless requests. Counts below the base page
// size are brought back up to it.
func (w *Window) Restore(visible int) {
	if visible > w.visible {
		w.visible = visible
	}
}

// Slice returns the visible prefix of an already filtered and ranked list.
func (w *Window) Slice(list []model.Event) []model.Event {
	return list[:min(w.visible, len(list))]
}
