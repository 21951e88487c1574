// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/mitchellh/go-homedir"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/mocks"
	"github.com/xkilldash9x/comet-monkey/internal/observability"
)

var errNoChrome = errors.New("chrome not found")

// fakeStoreProvider hands out a prepared store.
type fakeStoreProvider struct {
	store   runStore
	err     error
	cleaned bool
}

func (p *fakeStoreProvider) Create(ctx context.Context, cfg config.Interface) (runStore, func(), error) {
	if p.err != nil {
		return nil, nil, p.err
	}
	return p.store, func() { p.cleaned = true }, nil
}

// testEnv isolates a command execution: a silent global logger, no config
// file discovery outside a temp dir and no inherited COMET_* variables.
func testEnv(t *testing.T) {
	t.Helper()

	observability.ResetForTest()
	observability.Initialize(config.LoggerConfig{Level: "fatal", Format: "console"}, zapcore.AddSync(io.Discard))
	t.Cleanup(observability.ResetForTest)

	homedir.DisableCache = true
	t.Setenv("HOME", t.TempDir())
	t.Setenv("COMET_DATABASE_URL", "")

	t.Chdir(t.TempDir())
}

// failingBrowser returns a browser manager whose sessions never open, so a
// scan completes immediately with an error recorded per page.
func failingBrowser(t *testing.T) *mocks.MockBrowserManager {
	t.Helper()
	bm := new(mocks.MockBrowserManager)
	bm.On("NewPage", mock.Anything).Return(nil, errNoChrome)
	bm.On("Shutdown", mock.Anything).Return(nil)
	return bm
}

func testDeps(bm schemas.BrowserManager, stores storeProvider) dependencies {
	return dependencies{
		newBrowser: func(config.Interface, *zap.Logger) schemas.BrowserManager { return bm },
		stores:     stores,
	}
}

// execute runs a fresh root command and returns stdout and stderr.
func execute(t *testing.T, deps dependencies, args ...string) (string, string, error) {
	t.Helper()
	rootCmd := newRootCmd(deps)
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a config.yaml into dir.
func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mkdir(t *testing.T, dir string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	return dir
}

func newConfigForTest(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	require.NoError(t, cfg.Validate())
	return cfg
}
