package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
		IncVisitOpened()
		IncVisitTransition("confirm", "applied")
		IncVisitTransition("cancel", "conflict")
		IncCacheLookup("active_visits", "hit")
		IncSyncTask("completed")
	})
}
