// File: cmd/scan_test.go
package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/mocks"
)

type scanOutput struct {
	Tool  string `json:"tool"`
	Pages []struct {
		RunID string `json:"run_id"`
		URL   string `json:"url"`
		Error string `json:"error"`
	} `json:"pages"`
}

func decodeScan(t *testing.T, stdout string) scanOutput {
	t.Helper()
	var out scanOutput
	require.NoError(t, json.Unmarshal([]byte(stdout), &out), stdout)
	return out
}

func TestScanCmd_ReportsToStdout(t *testing.T) {
	testEnv(t)
	bm := failingBrowser(t)

	stdout, stderr, err := execute(t, testDeps(bm, nil), "scan", "example.com", "--run-id", "run-42")
	require.NoError(t, err)

	out := decodeScan(t, stdout)
	assert.Equal(t, "comet-monkey", out.Tool)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, "https://example.com", out.Pages[0].URL)
	assert.Equal(t, "run-42", out.Pages[0].RunID)
	assert.Contains(t, out.Pages[0].Error, "chrome not found")

	assert.Contains(t, stderr, "https://example.com")
	assert.Contains(t, stderr, "Run ID: run-42")
	bm.AssertCalled(t, "Shutdown", mock.Anything)
}

func TestScanCmd_NoArgsUsesBaseURL(t *testing.T) {
	testEnv(t)
	t.Setenv("COMET_TESTING_BASE_URL", "http://localhost:4000/app")

	stdout, _, err := execute(t, testDeps(failingBrowser(t), nil), "scan")
	require.NoError(t, err)

	out := decodeScan(t, stdout)
	require.Len(t, out.Pages, 1)
	assert.Equal(t, "http://localhost:4000/app", out.Pages[0].URL)
	assert.NotEmpty(t, out.Pages[0].RunID, "a run id is generated")
}

func TestScanCmd_FlagsOverrideConfig(t *testing.T) {
	testEnv(t)
	t.Setenv("COMET_BROWSER_CONCURRENCY", "2")

	var captured config.Interface
	bm := failingBrowser(t)
	deps := dependencies{
		newBrowser: func(cfg config.Interface, _ *zap.Logger) schemas.BrowserManager {
			captured = cfg
			return bm
		},
	}

	outDir := filepath.Join(t.TempDir(), "shots")
	_, _, err := execute(t, deps, "scan", "a.example", "http://b.example",
		"-j", "3", "-m", "7", "--headless=false", "--output-dir", outDir)
	require.NoError(t, err)
	require.NotNil(t, captured)

	assert.Equal(t, 3, captured.Browser().Concurrency)
	assert.False(t, captured.Browser().Headless)
	assert.Equal(t, 7, captured.Interaction().MaxInteractions)
	assert.Equal(t, outDir, captured.Report().OutputDir)
	assert.Equal(t, []string{"https://a.example", "http://b.example"}, captured.Scan().Targets)
	assert.Equal(t, config.FormatJSON, captured.Scan().Format)
}

func TestScanCmd_InvalidFlag(t *testing.T) {
	testEnv(t)
	_, _, err := execute(t, testDeps(failingBrowser(t), nil), "scan", "example.com", "--max-interactions=-1")
	assert.ErrorContains(t, err, "invalid scan options")
}

func TestScanCmd_WritesSARIFFile(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "out", "report.sarif")

	stdout, _, err := execute(t, testDeps(failingBrowser(t), nil), "scan", "example.com", "-f", "sarif", "-o", path)
	require.NoError(t, err)
	assert.Empty(t, stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version": "2.1.0"`)
	assert.Contains(t, string(data), "chrome not found", "page errors become notifications")
}

func TestScanCmd_Persistence(t *testing.T) {
	t.Run("reports are persisted when a database is configured", func(t *testing.T) {
		testEnv(t)
		t.Setenv("COMET_DATABASE_URL", "postgres://localhost/comet")

		st := new(mocks.MockStore)
		st.On("PersistReport", mock.Anything, mock.MatchedBy(func(r *schemas.PageReport) bool {
			return r.URL == "https://example.com" && r.RunID == "persisted"
		})).Return(nil).Once()
		provider := &fakeStoreProvider{store: st}

		_, _, err := execute(t, testDeps(failingBrowser(t), provider), "scan", "example.com", "--run-id", "persisted")
		require.NoError(t, err)
		st.AssertExpectations(t)
		assert.True(t, provider.cleaned)
	})

	t.Run("store failure aborts before any page opens", func(t *testing.T) {
		testEnv(t)
		t.Setenv("COMET_DATABASE_URL", "postgres://localhost/comet")

		bm := failingBrowser(t)
		provider := &fakeStoreProvider{err: errors.New("connection refused")}
		_, _, err := execute(t, testDeps(bm, provider), "scan", "example.com")
		assert.ErrorContains(t, err, "failed to initialize store: connection refused")
		bm.AssertNotCalled(t, "NewPage", mock.Anything)
		bm.AssertCalled(t, "Shutdown", mock.Anything)
	})

	t.Run("no database means no store", func(t *testing.T) {
		testEnv(t)
		provider := &fakeStoreProvider{err: errors.New("must not be called")}
		_, _, err := execute(t, testDeps(failingBrowser(t), provider), "scan", "example.com")
		require.NoError(t, err)
	})
}

func TestNormalizeTargets(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		fallback string
		want     []string
	}{
		{"adds https", []string{"example.com"}, "", []string{"https://example.com"}},
		{"keeps scheme", []string{"http://a.test", "https://b.test"}, "", []string{"http://a.test", "https://b.test"}},
		{"skips blanks", []string{" ", " c.test "}, "", []string{"https://c.test"}},
		{"fallback", nil, "http://localhost:3000", []string{"http://localhost:3000"}},
		{"nothing", nil, "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeTargets(tt.args, tt.fallback))
		})
	}
}
