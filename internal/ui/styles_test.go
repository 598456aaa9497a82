package ui

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageHelpersKeepText(t *testing.T) {
	for _, fn := range []func(string) string{Success, Warn, Err, Info, Hint, Addr, Val, Meta} {
		assert.Contains(t, fn("careful now"), "careful now")
	}
	assert.Contains(t, Success("done"), "✓")
	assert.Contains(t, Err("broken"), "✗")
}

func TestTruncateAddr(t *testing.T) {
	assert.Equal(t, "0xf39F…2266", TruncateAddr("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	assert.Equal(t, "0x1234", TruncateAddr("0x1234"))
	assert.Equal(t, "", TruncateAddr(""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "Commu…", Truncate("Community garden", 6))
	assert.Equal(t, "žluť…", Truncate("žluťoučký", 5))
	assert.Equal(t, "", Truncate("anything", 0))
}

func TestProgressBar(t *testing.T) {
	bar := ProgressBar(50, 10)
	assert.Equal(t, 5, strings.Count(bar, "█"))
	assert.Equal(t, 5, strings.Count(bar, "░"))

	over := ProgressBar(250, 10)
	assert.Equal(t, 10, strings.Count(over, "█"))

	assert.Equal(t, 10, strings.Count(ProgressBar(-3, 10), "░"))
	assert.Equal(t, "", ProgressBar(40, 0))
}
