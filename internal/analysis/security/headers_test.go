// internal/analysis/security/headers_test.go
package security

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

func response(kv ...string) *schemas.NavigationResponse {
	h := http.Header{}
	for i := 0; i+1 < len(kv); i += 2 {
		h.Set(kv[i], kv[i+1])
	}
	return &schemas.NavigationResponse{URL: "https://example.com/", StatusCode: 200, Headers: h}
}

func bucket(fs []schemas.Finding, c schemas.Category) []string {
	var out []string
	for _, f := range fs {
		if f.Category == c {
			out = append(out, f.ID)
		}
	}
	return out
}

func TestCheckHeaders_MissingCSPAndHSTS(t *testing.T) {
	fs := checkHeaders(response(
		"X-Content-Type-Options", "nosniff",
		"X-Frame-Options", "DENY",
		"X-XSS-Protection", "1; mode=block",
		"Referrer-Policy", "no-referrer",
	))

	violations := bucket(fs, schemas.CategoryViolation)
	assert.Equal(t, []string{"strict-transport-security", "content-security-policy"}, violations)
	assert.Equal(t, []string{"x-content-type-options", "x-frame-options", "x-xss-protection", "referrer-policy"},
		bucket(fs, schemas.CategoryPassed))
	for _, f := range fs {
		require.NoError(t, f.Validate())
		if f.Category == schemas.CategoryViolation {
			assert.Equal(t, schemas.SeverityHigh, f.Severity)
			assert.NotEmpty(t, f.Recommendation)
		}
	}
}

func TestCheckHeaders_FullyConfigured(t *testing.T) {
	fs := checkHeaders(response(
		"Strict-Transport-Security", "max-age=63072000; includeSubDomains",
		"Content-Security-Policy", "default-src 'self'",
		"X-Content-Type-Options", "nosniff",
		"X-Frame-Options", "SAMEORIGIN",
		"X-XSS-Protection", "0",
		"Referrer-Policy", "strict-origin",
		"Permissions-Policy", "camera=()",
	))
	assert.Len(t, bucket(fs, schemas.CategoryPassed), 6)
	assert.Empty(t, bucket(fs, schemas.CategoryViolation))
	assert.Empty(t, bucket(fs, schemas.CategoryWarning))
}

func TestCheckHeaders_FrameAncestorsSatisfiesXFrameOptions(t *testing.T) {
	fs := checkHeaders(response("Content-Security-Policy", "default-src 'self'; frame-ancestors 'none'"))
	assert.Contains(t, bucket(fs, schemas.CategoryPassed), "x-frame-options")
	assert.NotContains(t, bucket(fs, schemas.CategoryViolation), "x-frame-options")

	fs = checkHeaders(response("Content-Security-Policy", "default-src 'self'"))
	assert.Contains(t, bucket(fs, schemas.CategoryViolation), "x-frame-options")
}

func TestCheckHeaders_NoResponse(t *testing.T) {
	fs := checkHeaders(nil)
	require.Len(t, fs, 1)
	assert.Equal(t, CheckHeadersAvailable, fs[0].ID)
	assert.Equal(t, schemas.CategoryWarning, fs[0].Category)
}

func TestCheckHeaders_PermissionsPolicyWarning(t *testing.T) {
	fs := checkHeaders(response())
	assert.Contains(t, bucket(fs, schemas.CategoryWarning), CheckPermissionsPolicy)

	fs = checkHeaders(response("Feature-Policy", "geolocation 'none'"))
	assert.NotContains(t, bucket(fs, schemas.CategoryWarning), CheckPermissionsPolicy)
}

func TestCheckHSTS(t *testing.T) {
	tests := []struct {
		value    string
		flagged  bool
		severity schemas.Severity
	}{
		{"", false, ""},
		{"max-age=31536000", false, ""},
		{"includeSubDomains", true, schemas.SeverityLow},
		{"max-age=0", true, schemas.SeverityMedium},
		{"max-age=3600", true, schemas.SeverityLow},
		{"max-age=99999999999999999999999", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			f, ok := checkHSTS(tt.value)
			assert.Equal(t, tt.flagged, ok)
			if ok {
				assert.Equal(t, CheckHSTSMaxAge, f.ID)
				assert.Equal(t, tt.severity, f.Severity)
			}
		})
	}
}

func TestCheckCSP(t *testing.T) {
	_, ok := checkCSP("script-src 'self' 'unsafe-inline'")
	assert.True(t, ok)
	_, ok = checkCSP("script-src 'self' 'unsafe-inline' 'nonce-abc123'")
	assert.False(t, ok)
	_, ok = checkCSP("script-src 'self' 'sha256-deadbeef' 'unsafe-inline'")
	assert.False(t, ok)
	_, ok = checkCSP("default-src 'self'")
	assert.False(t, ok)
}

func TestCheckDisclosure(t *testing.T) {
	f, ok := checkDisclosure(response("Server", "nginx/1.18.0", "X-Powered-By", "PHP/7.4"))
	require.True(t, ok)
	assert.Equal(t, CheckDisclosure, f.ID)
	require.Len(t, f.Nodes, 2)
	assert.Equal(t, "server: nginx/1.18.0", f.Nodes[0].Message)

	_, ok = checkDisclosure(response())
	assert.False(t, ok)
}
