package tests

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	env.api.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("health check returned %d", w.Code)
	}
}
