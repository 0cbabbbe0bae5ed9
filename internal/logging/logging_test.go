package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{"info", "json", false},
		{"debug", "console", false},
		{"warn", "", false},
		{"loud", "json", true},
		{"info", "xml", true},
	}
	for _, tt := range tests {
		logger, err := New(tt.level, tt.format)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) err = %v, wantErr %v", tt.level, tt.format, err, tt.wantErr)
			continue
		}
		if err == nil {
			logger.Sync()
		}
	}
}
