package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name          string
		level         string
		format        string
		wantLevel     logrus.Level
		wantFormatter logrus.Formatter
	}{
		{name: "defaults", level: "info", format: "text", wantLevel: logrus.InfoLevel, wantFormatter: &logrus.TextFormatter{}},
		{name: "debug json", level: "debug", format: "JSON", wantLevel: logrus.DebugLevel, wantFormatter: &logrus.JSONFormatter{}},
		{name: "warn", level: " warn ", format: "", wantLevel: logrus.WarnLevel, wantFormatter: &logrus.TextFormatter{}},
		{name: "unknown level", level: "loud", format: "logfmt", wantLevel: logrus.InfoLevel, wantFormatter: &logrus.TextFormatter{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := New(tt.level, tt.format)
			assert.Equal(t, tt.wantLevel, log.GetLevel())
			assert.IsType(t, tt.wantFormatter, log.Formatter)
		})
	}
}
