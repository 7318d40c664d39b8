package extract

import "testing"

func TestIsNoMatch(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"", true},
		{"''", true},
		{`""`, true},
		{"No relevant information found.", true},
		{"NO RELEVANT INFORMATION FOUND", true},
		{"  no relevant information found!\n", true},
		{"Emails:\n- sales@example.com\n- help@example.com\nPhone numbers: no relevant information found.", false},
		{"No relevant information found for phones; email: help@example.com", false},
		{"- Widget: $10", false},
		{"Sorry, the store is closed on Sundays.", false},
	}
	for _, tt := range tests {
		if got := isNoMatch(tt.reply); got != tt.want {
			t.Errorf("isNoMatch(%q) = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestBuildPrompt_Deterministic(t *testing.T) {
	if BuildPrompt("a", "b") != BuildPrompt("a", "b") {
		t.Error("BuildPrompt is not deterministic")
	}
}
