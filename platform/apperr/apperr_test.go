package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{KindNotFound, http.StatusNotFound},
		{KindValidation, http.StatusBadRequest},
		{KindConflict, http.StatusConflict},
		{KindForbidden, http.StatusForbidden},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInternal, http.StatusInternalServerError},
		{KindUnavailable, http.StatusBadGateway},
		{KindBlocked, http.StatusLocked},
		{KindTooManyRequests, http.StatusTooManyRequests},
		{KindUnknown, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := New(tt.kind, "x").HTTPStatus(); got != tt.want {
			t.Fatalf("kind %d: expected %d, got %d", tt.kind, tt.want, got)
		}
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := fmt.Errorf("list stages: %w", Wrap(KindUnavailable, "crm unreachable", cause))

	if !Is(err, KindUnavailable) {
		t.Fatalf("expected unavailable kind through fmt wrapping")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause reachable")
	}
	if GetKind(cause) != KindUnknown {
		t.Fatalf("expected plain errors to be unknown")
	}
}

func TestKindString(t *testing.T) {
	if KindBlocked.String() != "blocked" || Kind(99).String() != "unknown" {
		t.Fatalf("unexpected names %q %q", KindBlocked.String(), Kind(99).String())
	}
}

func TestMessageHidesCause(t *testing.T) {
	err := Wrap(KindUnavailable, "CRM unreachable", errors.New("dial tcp 10.0.0.1:443: refused"))
	if err.Error() != "CRM unreachable" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
