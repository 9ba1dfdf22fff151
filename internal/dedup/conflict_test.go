package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaxSeverity(t *testing.T) {
	minor := DataConflict{Field: "category", Severity: SeverityMinor}
	major := DataConflict{Field: "name", Severity: SeverityMajor}
	critical := DataConflict{Field: "price", Severity: SeverityCritical}

	tests := []struct {
		name      string
		conflicts []DataConflict
		want      Severity
	}{
		{"empty", nil, SeverityNone},
		{"all minor", []DataConflict{minor, minor}, SeverityMinor},
		{"major without critical", []DataConflict{minor, major}, SeverityMajor},
		{"critical present", []DataConflict{major, critical, minor}, SeverityCritical},
		{"critical first", []DataConflict{critical, minor}, SeverityCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaxSeverity(tt.conflicts))
		})
	}
}

func TestAllAutoResolvable(t *testing.T) {
	yes := DataConflict{AutoResolvable: true}
	no := DataConflict{}

	assert.False(t, AllAutoResolvable(nil))
	assert.True(t, AllAutoResolvable([]DataConflict{yes, yes}))
	assert.False(t, AllAutoResolvable([]DataConflict{yes, no}))
}
