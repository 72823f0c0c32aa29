package replication

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		raw  RawStatus
		want Status
	}{
		{RawStopped, Stopped},
		{RawOffline, Offline},
		{RawActive, Active},
		{RawIdle, Idle},
		{RawConnecting, Idle},
		{RawStatus(42), Idle},
		{RawStatus(-1), Idle},
	}
	for _, tt := range tests {
		t.Run(tt.raw.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, MapStatus(tt.raw))
		})
	}
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "Stopped", Stopped.String())
	assert.Equal(t, "Offline", Offline.String())
	assert.Equal(t, "Idle", Idle.String())
	assert.Equal(t, "Active", Active.String())
	assert.Equal(t, "Status(9)", Status(9).String())
	assert.Equal(t, "raw(42)", RawStatus(42).String())
}

func TestStatus_NumericValues(t *testing.T) {
	// Applications persist these values; they must not shift.
	assert.Equal(t, 0, int(Stopped))
	assert.Equal(t, 1, int(Offline))
	assert.Equal(t, 2, int(Idle))
	assert.Equal(t, 3, int(Active))
}
