package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestNew_LevelParsing(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, New("debug").GetLevel())
	assert.Equal(t, zerolog.WarnLevel, New("WARN").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, New("verbose").GetLevel()) // unknown falls back
	assert.Equal(t, zerolog.InfoLevel, New("").GetLevel())
}

func TestComponent_TagsEntries(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	log := Component(base, "gate")
	log.Info().Msg("ready")
	assert.Contains(t, buf.String(), `"component":"gate"`)
}
