package offramp

import "testing"

func TestSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Kotani Pay", "kotanipay"},
		{"  Ramp   Network ", "rampnetwork"},
		{"KotaniPay", "kotanipay"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Slug(tt.name); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in       string
		want     Status
		terminal bool
	}{
		{"PENDING", StatusPending, false},
		{"processing", StatusProcessing, false},
		{" Successful ", StatusSuccessful, true},
		{"CANCELLED", StatusCancelled, true},
		{"FAILED", StatusFailed, true},
		{"completed", StatusSuccessful, true},
		{"weird", StatusPending, false},
	}

	for _, tt := range tests {
		got := ParseStatus(tt.in)
		if got != tt.want {
			t.Errorf("ParseStatus(%q) = %v, want %v", tt.in, got, tt.want)
		}
		if got.IsTerminal() != tt.terminal {
			t.Errorf("%v.IsTerminal() = %v, want %v", got, got.IsTerminal(), tt.terminal)
		}
	}
}

func TestProviderKind(t *testing.T) {
	if got := (Provider{}).Kind(); got != KindUnknown {
		t.Errorf("Kind() = %v, want %v", got, KindUnknown)
	}
	p := Provider{Capabilities: Capabilities{Kind: KindMobileMoney}}
	if got := p.Kind(); got != KindMobileMoney {
		t.Errorf("Kind() = %v, want %v", got, KindMobileMoney)
	}
}
