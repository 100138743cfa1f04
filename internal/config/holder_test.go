package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHolder_UpdateIsVisibleToReaders(t *testing.T) {
	cfg1 := DefaultConfig()
	h := NewHolder(cfg1, "/tmp/config.toml")
	assert.Same(t, cfg1, h.Config())
	assert.Equal(t, "/tmp/config.toml", h.Path())

	cfg2 := DefaultConfig()
	cfg2.Logging.LogLevel = "debug"
	h.Update(cfg2)
	assert.Same(t, cfg2, h.Config())
}
