package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cdpcore/core/system"
	"cdpcore/native/admin"
	nativecommon "cdpcore/native/common"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"unauthorized", fmt.Errorf("wrap: %w", admin.ErrUnauthorized), http.StatusForbidden},
		{"paused", nativecommon.ErrModulePaused, http.StatusServiceUnavailable},
		{"unknown collateral", fmt.Errorf("%w: doge", system.ErrUnknownCollateral), http.StatusNotFound},
		{"validation", nativecommon.NewError(nativecommon.ErrValidation, "bad"), http.StatusBadRequest},
		{"invariant", nativecommon.NewError(nativecommon.ErrInvariant, "icr"), http.StatusConflict},
		{"stale", nativecommon.NewError(nativecommon.ErrStaleData, "price"), http.StatusServiceUnavailable},
		{"arithmetic", nativecommon.NewError(nativecommon.ErrArithmetic, "overflow"), http.StatusUnprocessableEntity},
		{"internal", errors.New("disk"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := statusFor(tc.err); got != tc.want {
				t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestWriteEngineErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	writeEngineError(rec, errors.New("leveldb: corrupted block 17"))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "leveldb") {
		t.Fatalf("internal detail leaked: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	writeEngineError(rec, nativecommon.NewError(nativecommon.ErrInvariant, "troves: ICR below MCR"))
	if rec.Code != http.StatusConflict || !strings.Contains(rec.Body.String(), "ICR below MCR") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}
