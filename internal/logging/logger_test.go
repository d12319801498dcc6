package logging

import (
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"github.com/ETERNA-earkiv/ETERNA/internal/config"
)

func TestInitLogger(t *testing.T) {
	originalLevel := log.GetLevel()
	originalFormatter := log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(originalLevel)
		log.SetFormatter(originalFormatter)
	})

	tests := []struct {
		level string
		want  log.Level
	}{
		{"trace", log.TraceLevel},
		{"DEBUG", log.DebugLevel},
		{"info", log.InfoLevel},
		{"warn", log.WarnLevel},
		{"warning", log.WarnLevel},
		{"", log.ErrorLevel},
		{"bogus", log.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			InitLogger(&config.Config{LogLevel: tt.level})
			assert.Equal(t, tt.want, log.GetLevel())
		})
	}

	InitLogger(&config.Config{LogLevel: "info", LogFormat: "json"})
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	InitLogger(&config.Config{LogLevel: "info"})
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)
}
