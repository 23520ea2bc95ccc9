package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{"empty", "  ", "", ""},
		{"national with default region", "650-253-0000", "", "+16502530000"},
		{"international prefix", "+31 20 123 4567", "US", "+31201234567"},
		{"dutch national", "020 123 4567", "NL", "+31201234567"},
		{"unparseable kept", " call me ", "", "call me"},
		{"invalid kept", "123", "US", "123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeE164(tt.input, tt.region); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	if got := Display("+16502530000"); got != "+1 650-253-0000" {
		t.Fatalf("unexpected display %q", got)
	}
	if got := Display("call me"); got != "call me" {
		t.Fatalf("expected invalid input unchanged, got %q", got)
	}
}
