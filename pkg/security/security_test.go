package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean name unchanged", "report-2024.pdf", "report-2024.pdf"},
		{"path separators removed", "../../etc/passwd", "etcpasswd"},
		{"special characters removed", "inv$oice!.xlsx", "invoice.xlsx"},
		{"spaces kept", "annual report.pdf", "annual report.pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeFilename(tt.input))
		})
	}
}

func TestMaskSensitive(t *testing.T) {
	assert.Equal(t, "sk-1**********", MaskSensitive("sk-1234567890a", 4))
	assert.Equal(t, "***", MaskSensitive("abc", 4), "short values fully masked")
	assert.Equal(t, "", MaskSensitive("", 4))
}

func TestHashSensitive(t *testing.T) {
	hash := HashSensitive("hello")
	assert.Len(t, hash, 64)
	assert.Equal(t, hash, HashSensitive("hello"), "deterministic")
	assert.NotEqual(t, hash, HashSensitive("hello2"))
}

func TestSessionToken(t *testing.T) {
	first, err := SessionToken()
	require.NoError(t, err)
	second, err := SessionToken()
	require.NoError(t, err)
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second)
}

func TestHeadersMiddleware(t *testing.T) {
	e := echo.New()
	e.Use(HeadersMiddleware())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}
