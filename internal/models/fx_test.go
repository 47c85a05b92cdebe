package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClearingWindow_IsOpen(t *testing.T) {
	tests := []struct {
		name   string
		window ClearingWindow
		hour   int
		want   bool
	}{
		{"equal hours always open at 0", ClearingWindow{OpenHour: 0, CloseHour: 0}, 0, true},
		{"equal hours always open at 23", ClearingWindow{OpenHour: 9, CloseHour: 9}, 23, true},
		{"normal before open", ClearingWindow{OpenHour: 13, CloseHour: 22}, 12, false},
		{"normal at open", ClearingWindow{OpenHour: 13, CloseHour: 22}, 13, true},
		{"normal last open hour", ClearingWindow{OpenHour: 13, CloseHour: 22}, 21, true},
		{"normal at close", ClearingWindow{OpenHour: 13, CloseHour: 22}, 22, false},
		{"wrapped before open", ClearingWindow{OpenHour: 22, CloseHour: 6}, 21, false},
		{"wrapped at open", ClearingWindow{OpenHour: 22, CloseHour: 6}, 22, true},
		{"wrapped at midnight", ClearingWindow{OpenHour: 22, CloseHour: 6}, 0, true},
		{"wrapped last open hour", ClearingWindow{OpenHour: 22, CloseHour: 6}, 5, true},
		{"wrapped at close", ClearingWindow{OpenHour: 22, CloseHour: 6}, 6, false},
		{"wrapped midday", ClearingWindow{OpenHour: 22, CloseHour: 6}, 12, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.IsOpen(tt.hour))
		})
	}
}
