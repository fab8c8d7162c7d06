package app

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
)

func TestNewWiresHealthyApplication(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.DBDSN = ":memory:"
	cfg.PepperPath = filepath.Join(t.TempDir(), "pepper")
	require.NoError(t, cfg.Validate())

	app, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NotNil(t, app.keyRotationService)
	require.Nil(t, app.keyRotationService.Store, "ephemeral keys are not read from the store")

	for _, path := range []string{"/livez", "/readyz"} {
		rec := httptest.NewRecorder()
		app.server.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var health authsdk.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
		require.Equal(t, "ok", health.Status, path)
	}

	require.NoError(t, app.Shutdown())
}
