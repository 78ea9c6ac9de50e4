package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/api/notifications", "GET", 200, 10*time.Millisecond)
	m.RecordRequest("/api/notifications", "GET", 200, 30*time.Millisecond)
	m.RecordError("/api/ticketing/assignment/reassign", "POST", "CONFLICT")

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.Requests["/api/notifications|GET|200"])
	assert.Equal(t, int64(20), snap.AvgLatencyMS["/api/notifications|GET|200"])
	assert.Equal(t, int64(1), snap.Errors["/api/ticketing/assignment/reassign|POST|CONFLICT"])
	assert.Equal(t, []string{"/api/notifications|GET|200"}, snap.Keys())
}

func TestNilMetricsIgnoresRecords(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRequest("/", "GET", 200, time.Millisecond)
		m.RecordError("/", "GET", "X")
	})
}
