package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_EndsInConfigFileName(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory available in this environment")
	}
	assert.Contains(t, path, configFileName)
}

func TestBookkeepingDBPath_NamesBySDID(t *testing.T) {
	path := BookkeepingDBPath("abc-123")
	if path == "" {
		t.Skip("no home directory available in this environment")
	}
	assert.Contains(t, path, "sd-abc-123.db")
}
