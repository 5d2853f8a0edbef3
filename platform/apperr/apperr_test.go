package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{NotFound("missing"), http.StatusNotFound},
		{Validation("bad"), http.StatusBadRequest},
		{Conflict("transition"), http.StatusConflict},
		{Unauthorized("token"), http.StatusUnauthorized},
		{Unavailable("db down", errors.New("dial tcp")), http.StatusServiceUnavailable},
		{Internal("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := tc.err.HTTPStatus(); got != tc.want {
			t.Fatalf("%q: expected status %d, got %d", tc.err.Message, tc.want, got)
		}
	}
}

func TestGetKindFollowsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("update alert status: %w", Conflict("alert already dismissed"))

	if !Is(wrapped, KindConflict) {
		t.Fatalf("expected wrapped error to be KindConflict, got %v", GetKind(wrapped))
	}
	if GetKind(errors.New("plain")) != KindUnknown {
		t.Fatal("expected plain errors to be KindUnknown")
	}
}

func TestErrorMessageIncludesOp(t *testing.T) {
	err := NotFound("lead score not found").WithOp("GetBySession")
	if err.Error() != "GetBySession: lead score not found" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
