// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/analysis/core"
	"github.com/xkilldash9x/comet-monkey/internal/config"
)

// -- Config Mock --

// MockConfig mocks the config.Interface.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

// --- Getters ---

func (m *MockConfig) Logger() config.LoggerConfig {
	args := m.Called()
	return args.Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Database() config.DatabaseConfig {
	args := m.Called()
	return args.Get(0).(config.DatabaseConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	args := m.Called()
	return args.Get(0).(config.BrowserConfig)
}

func (m *MockConfig) Network() config.NetworkConfig {
	args := m.Called()
	return args.Get(0).(config.NetworkConfig)
}

func (m *MockConfig) Interaction() schemas.EngineOptions {
	args := m.Called()
	return args.Get(0).(schemas.EngineOptions)
}

func (m *MockConfig) Audits() config.AuditsConfig {
	args := m.Called()
	return args.Get(0).(config.AuditsConfig)
}

func (m *MockConfig) Report() config.ReportConfig {
	args := m.Called()
	return args.Get(0).(config.ReportConfig)
}

func (m *MockConfig) Testing() config.TestingConfig {
	args := m.Called()
	return args.Get(0).(config.TestingConfig)
}

func (m *MockConfig) Scan() config.ScanConfig {
	args := m.Called()
	return args.Get(0).(config.ScanConfig)
}

// --- Setters ---

func (m *MockConfig) SetScanConfig(sc config.ScanConfig) {
	m.Called(sc)
}

func (m *MockConfig) SetBrowserHeadless(b bool)    { m.Called(b) }
func (m *MockConfig) SetBrowserConcurrency(n int)  { m.Called(n) }
func (m *MockConfig) SetMaxInteractions(n int)     { m.Called(n) }
func (m *MockConfig) SetInteractionDelay(ms int)   { m.Called(ms) }
func (m *MockConfig) SetInteractionTimeout(ms int) { m.Called(ms) }

// -- Page Mock --

// MockPage mocks schemas.Page.
type MockPage struct {
	mock.Mock
}

var _ schemas.PageSession = (*MockPage)(nil)

// NewMockPage returns a MockPage with no expectations.
func NewMockPage() *MockPage {
	return &MockPage{}
}

func (m *MockPage) ID() string { return m.Called().String(0) }
func (m *MockPage) Close()     { m.Called() }

func (m *MockPage) Navigate(ctx context.Context, url string) (*schemas.NavigationResponse, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.NavigationResponse), args.Error(1)
}

func (m *MockPage) Response() *schemas.NavigationResponse {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*schemas.NavigationResponse)
}

func (m *MockPage) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) QueryVisible(ctx context.Context, selector string) ([]schemas.ElementSnapshot, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ElementSnapshot), args.Error(1)
}

func (m *MockPage) QueryWithin(ctx context.Context, scope, selector string) ([]schemas.ElementSnapshot, error) {
	args := m.Called(ctx, scope, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.ElementSnapshot), args.Error(1)
}

func (m *MockPage) FindByText(ctx context.Context, selector, text string) (*schemas.ElementSnapshot, error) {
	args := m.Called(ctx, selector, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.ElementSnapshot), args.Error(1)
}

func (m *MockPage) Fill(ctx context.Context, locator, value string) error {
	return m.Called(ctx, locator, value).Error(0)
}
func (m *MockPage) Check(ctx context.Context, locator string) error {
	return m.Called(ctx, locator).Error(0)
}
func (m *MockPage) SelectOption(ctx context.Context, locator, value string) error {
	return m.Called(ctx, locator, value).Error(0)
}
func (m *MockPage) Click(ctx context.Context, locator string) error {
	return m.Called(ctx, locator).Error(0)
}
func (m *MockPage) WaitNetworkIdle(ctx context.Context, timeout time.Duration) error {
	return m.Called(ctx, timeout).Error(0)
}

func (m *MockPage) Cookies(ctx context.Context) ([]schemas.Cookie, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.Cookie), args.Error(1)
}

func (m *MockPage) Evaluate(ctx context.Context, script string, out interface{}) error {
	return m.Called(ctx, script, out).Error(0)
}

func (m *MockPage) InjectScript(ctx context.Context, src string) error {
	return m.Called(ctx, src).Error(0)
}

func (m *MockPage) Content(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPage) Screenshot(ctx context.Context, path string) error {
	return m.Called(ctx, path).Error(0)
}

func (m *MockPage) DrainEvents() schemas.EventBatch {
	args := m.Called()
	return args.Get(0).(schemas.EventBatch)
}

// DecodeResult is a Run function for Evaluate expectations. It decodes
// payload into the call's out argument the way the browser would.
func DecodeResult(payload string) func(mock.Arguments) {
	return func(args mock.Arguments) {
		if out := args.Get(2); out != nil {
			if err := json.Unmarshal([]byte(payload), out); err != nil {
				panic(err)
			}
		}
	}
}

// -- Browser Manager Mock --

// MockBrowserManager mocks schemas.BrowserManager.
type MockBrowserManager struct {
	mock.Mock
}

var _ schemas.BrowserManager = (*MockBrowserManager)(nil)

func (m *MockBrowserManager) NewPage(ctx context.Context) (schemas.PageSession, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(schemas.PageSession), args.Error(1)
}

func (m *MockBrowserManager) Shutdown(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

// -- Auditor Mock --

// MockAuditor mocks core.Auditor.
type MockAuditor struct {
	mock.Mock
}

var _ core.Auditor = (*MockAuditor)(nil)

func (m *MockAuditor) Name() string        { return m.Called().String(0) }
func (m *MockAuditor) Description() string { return m.Called().String(0) }

func (m *MockAuditor) Audit(ctx context.Context, page schemas.Page) (*schemas.AuditResult, error) {
	args := m.Called(ctx, page)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.AuditResult), args.Error(1)
}

// -- Store Mock --

// MockStore mocks schemas.Store.
type MockStore struct {
	mock.Mock
}

var _ schemas.Store = (*MockStore)(nil)

func (m *MockStore) PersistReport(ctx context.Context, report *schemas.PageReport) error {
	return m.Called(ctx, report).Error(0)
}

func (m *MockStore) GetReportsByRunID(ctx context.Context, runID string) ([]schemas.PageReport, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]schemas.PageReport), args.Error(1)
}

func (m *MockStore) LatestRunID(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
