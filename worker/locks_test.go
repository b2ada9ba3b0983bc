package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStopKeyword(t *testing.T) {
	for _, body := range []string{"stop", "STOP", " Stop ", "quit", "Cancel", "END", "\tend\n"} {
		assert.True(t, IsStopKeyword(body), body)
	}

	for _, body := range []string{
		"",
		"please stop",
		"stop!",
		"stopp",
		"I want to end this",
		"go",
	} {
		assert.False(t, IsStopKeyword(body), body)
	}
}
