package discovery_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wgoossens/trackside/discovery"
)

func TestWindowPageSizes(t *testing.T) {
	assert.Equal(t, 10, discovery.NewWindow(false).VisibleCount())
	assert.Equal(t, 20, discovery.NewWindow(true).VisibleCount())
}

func TestWindowGrowsNearEnd(t *testing.T) {
	w := discovery.NewWindow(false)

	w.ReportScroll(discovery.GrowTriggerDistance+1, 100)
	assert.Equal(t, 10, w.VisibleCount())

	w.ReportScroll(discovery.GrowTriggerDistance, 100)
	assert.Equal(t, 20, w.VisibleCount())
}

func TestWindowLatchBlocksRepeatedGrowth(t *testing.T) {
	w := discovery.NewWindow(false)

	w.ReportScroll(0, 100)
	assert.Equal(t, 20, w.VisibleCount())

	// Still inside the trigger distance, no second growth.
	w.ReportScroll(50, 100)
	w.ReportScroll(0, 100)
	assert.Equal(t, 20, w.VisibleCount())

	// Scrolling away re-arms the trigger.
	w.ReportScroll(500, 100)
	w.ReportScroll(10, 100)
	assert.Equal(t, 30, w.VisibleCount())
}

func TestWindowNeverPassesTotal(t *testing.T) {
	w := discovery.NewWindow(false)

	w.ReportScroll(0, 14)
	assert.Equal(t, 14, w.VisibleCount())

	w.ReportScroll(500, 14)
	w.ReportScroll(0, 14)
	assert.Equal(t, 14, w.VisibleCount())
}

func TestWindowReset(t *testing.T) {
	w := discovery.NewWindow(false)
	w.ReportScroll(0, 100)
	assert.Equal(t, 20, w.VisibleCount())

	w.Reset(true)
	assert.Equal(t, 20, w.VisibleCount())

	w.Reset(false)
	assert.Equal(t, 10, w.VisibleCount())

	// A reset window can grow again right away.
	w.ReportScroll(0, 100)
	assert.Equal(t, 20, w.VisibleCount())
}

func TestWindowRestore(t *testing.T) {
	w := discovery.NewWindow(false)
	w.Restore(30)
	assert.Equal(t, 30, w.VisibleCount())

	// Restoring below the base page size keeps the base.
	w = discovery.NewWindow(false)
	w.Restore(3)
	assert.Equal(t, 10, w.VisibleCount())
}
