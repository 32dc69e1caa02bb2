package shared

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func contextWithAuth(header string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return e.NewContext(req, httptest.NewRecorder())
}

func TestExtractAPIKey(t *testing.T) {
	t.Parallel()

	key := strings.Repeat("k", APIKeyLength)

	got, err := ExtractAPIKey(contextWithAuth("Bearer " + key))
	require.NoError(t, err)
	require.Equal(t, key, got)

	_, err = ExtractAPIKey(contextWithAuth(""))
	require.ErrorIs(t, err, ErrMissingAuth)

	_, err = ExtractAPIKey(contextWithAuth("Basic " + key))
	require.ErrorIs(t, err, ErrInvalidFormat)

	_, err = ExtractAPIKey(contextWithAuth("Bearer short"))
	require.ErrorIs(t, err, ErrInvalidKeyLen)
}

func TestSafeEnv(t *testing.T) {
	t.Setenv("LANDUSE_TEST_ENV", "set")

	got, err := SafeEnv("LANDUSE_TEST_ENV")
	require.NoError(t, err)
	require.Equal(t, "set", got)

	_, err = SafeEnv("LANDUSE_TEST_ENV_MISSING")
	require.Error(t, err)
}
