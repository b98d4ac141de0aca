package store

import "testing"

func TestCanTransition_Table(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProvisioning, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusDeleting, true},
		{StatusPending, StatusReady, false},
		{StatusPending, StatusDeleted, false},

		{StatusProvisioning, StatusReady, true},
		{StatusProvisioning, StatusFailed, true},
		{StatusProvisioning, StatusProvisioning, false},
		{StatusProvisioning, StatusDeleting, false},

		{StatusReady, StatusDeleting, true},
		{StatusReady, StatusFailed, false},
		{StatusReady, StatusProvisioning, false},

		{StatusFailed, StatusProvisioning, true},
		{StatusFailed, StatusDeleting, true},
		{StatusFailed, StatusReady, false},

		{StatusDeleting, StatusFailed, true},
		{StatusDeleting, StatusDeleted, true},
		{StatusDeleting, StatusReady, false},

		{StatusDeleted, StatusProvisioning, false},
		{StatusDeleted, StatusDeleted, false},
	}

	for _, tt := range tests {
		got := CanTransition(tt.from, tt.to)
		if got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestValidName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"ab", false},          // too short
		{"abc", true},          // minimum length
		{"abc-def", true},
		{"abc_def", false},     // underscore not allowed
		{"ABC", false},         // uppercase rejected
		{"123", true},
		{string(make([]byte, 50)), false}, // 50 NUL bytes, not matching charset
	}

	long50 := "a"
	for len(long50) < 50 {
		long50 += "a"
	}
	long51 := long50 + "a"

	tests = append(tests,
		struct {
			name string
			want bool
		}{long50, true},
		struct {
			name string
			want bool
		}{long51, false},
	)

	for _, tt := range tests {
		got := ValidName(tt.name)
		if got != tt.want {
			t.Errorf("ValidName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNamespaceFor(t *testing.T) {
	if got := NamespaceFor("abcd1234"); got != "store-abcd1234" {
		t.Errorf("NamespaceFor = %q, want store-abcd1234", got)
	}
}

func TestNewID_Shape(t *testing.T) {
	id, err := NewID()
	if err != nil {
		t.Fatalf("NewID: %v", err)
	}
	if len(id) != 8 {
		t.Errorf("len(id) = %d, want 8", len(id))
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= '2' && r <= '7')) {
			t.Errorf("id %q contains non-base32 char %q", id, r)
		}
	}
}

func TestIsActive(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{StatusPending, true},
		{StatusProvisioning, true},
		{StatusReady, true},
		{StatusDeleting, true},
		{StatusFailed, false},
		{StatusDeleted, false},
	}
	for _, tt := range tests {
		s := &Store{Status: tt.status}
		if got := s.IsActive(); got != tt.want {
			t.Errorf("IsActive(%s) = %v, want %v", tt.status, got, tt.want)
		}
	}
}
