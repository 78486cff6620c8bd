package platform

import (
	"errors"
	"testing"
)

func TestRequireOwner(t *testing.T) {
	orig := geteuid
	t.Cleanup(func() { geteuid = orig })

	tests := []struct {
		name    string
		euid    int
		uid     int
		wantErr bool
	}{
		{"root updating root install", 0, 0, false},
		{"service user updating own install", 998, 998, false},
		{"unprivileged user on root install", 1000, 0, true},
		{"root on service user install", 0, 998, true},
		{"no uid support", -1, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geteuid = func() int { return tt.euid }
			err := RequireOwner(tt.uid)
			if tt.wantErr {
				if !errors.Is(err, ErrPrivilegeMismatch) {
					t.Errorf("expected ErrPrivilegeMismatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
