package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		done, total, width int
		want               string
	}{
		{0, 4, 8, "░░░░░░░░   0%"},
		{2, 4, 8, "████░░░░  50%"},
		{4, 4, 8, "████████ 100%"},
		{0, 0, 2, "░░░░░   0%"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.done, tt.total, tt.width); got != tt.want {
			t.Errorf("ProgressBar(%d, %d, %d) = %q, want %q", tt.done, tt.total, tt.width, got, tt.want)
		}
	}
}

func TestPanelPadsToWidestLine(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")

	var buf bytes.Buffer
	Panel(&buf, []string{"ab", "abcd"})

	want := "+------+\n| ab   |\n| abcd |\n+------+\n"
	if buf.String() != want {
		t.Errorf("unexpected panel:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestOKAndFail(t *testing.T) {
	SetTheme("mono")
	defer SetTheme("classic")

	var buf bytes.Buffer
	OK(&buf, "added")
	Fail(&buf, "nope")
	Hint(&buf, "try again")
	if !strings.Contains(buf.String(), "x added\n") || !strings.Contains(buf.String(), "! nope\n") ||
		!strings.Contains(buf.String(), "> try again\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}
