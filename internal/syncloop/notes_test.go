package syncloop

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveTitle_FirstLineOnly(t *testing.T) {
	assert.Equal(t, "line one", deriveTitle("line one\nline two\nline three"))
}

func TestDeriveTitle_EmptyBody(t *testing.T) {
	assert.Equal(t, "", deriveTitle(""))
}

func TestDeriveTitle_TruncatesToRuneLimitWithoutSplittingRunes(t *testing.T) {
	body := strings.Repeat("é", titleMaxRunes+20)
	title := deriveTitle(body)
	assert.Equal(t, titleMaxRunes, len([]rune(title)))
	assert.True(t, strings.HasPrefix(body, title))
}

func TestDeriveTitle_NormalizesToNFC(t *testing.T) {
	// "e" + combining acute accent (NFD) should normalize to the precomposed
	// "é" (NFC), matching what a peer instance that typed the precomposed
	// form directly would see.
	nfd := "éllo"
	nfc := deriveTitle(nfd)
	assert.Equal(t, "éllo", nfc)
}
