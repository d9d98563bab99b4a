package topic

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		filter string
		name   string
		want   bool
	}{
		{"sensors/+/temp", "sensors/kitchen/temp", true},
		{"sensors/#", "sensors/a/b", true},
		{"sensors/+/temp", "sensors/kitchen/hum", false},
		{"a/+", "a/b/c", false},
		{"a/b", "a/b", true},
		{"a/b", "a/c", false},
		{"+", "a", true},
		{"+", "a/b", false},
		{"#", "a/b/c", true},
		{"a/#", "a", true},
		{"a/#/b", "a/x/b", false}, // '#' must be the final token
		{"+/b", "a/b", true},
		{"a/+/+", "a/b/c", true},
		{"a/+/+", "a/b", false},
		{"/a", "a", false}, // leading slash is significant
		{"/a", "/a", true},
		{"a/", "a", false}, // trailing slash is significant
		{"a/", "a/", true},
		{"+/+", "/a", true},
	}
	for _, tt := range tests {
		if got := Match(tt.filter, tt.name); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.filter, tt.name, got, tt.want)
		}
	}
}
