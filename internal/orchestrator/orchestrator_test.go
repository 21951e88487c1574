// internal/orchestrator/orchestrator_test.go
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
	"github.com/xkilldash9x/comet-monkey/internal/config"
	"github.com/xkilldash9x/comet-monkey/internal/interaction"
	"github.com/xkilldash9x/comet-monkey/internal/mocks"
)

// -- Test Doubles --

// fakeInteractor counts runs and returns a canned result.
type fakeInteractor struct {
	mu      sync.Mutex
	calls   int
	summary *schemas.InteractionSummary
	err     error
}

func (f *fakeInteractor) Run(_ context.Context, _ schemas.Page, state *interaction.State) (*schemas.InteractionSummary, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if state == nil {
		return nil, errors.New("nil state")
	}
	summary := f.summary
	if summary == nil {
		summary = state.Summary()
	}
	return summary, f.err
}

func (f *fakeInteractor) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// -- Test Fixture Setup --

type orchestratorTestFixture struct {
	Logger     *zap.Logger
	Config     *config.Config
	Browser    *mocks.MockBrowserManager
	Interactor *fakeInteractor
}

func setupTest(t *testing.T) *orchestratorTestFixture {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.ReportCfg.OutputDir = t.TempDir()
	cfg.BrowserCfg.LaunchRate = 1000
	return &orchestratorTestFixture{
		Logger:     zap.NewNop(),
		Config:     cfg,
		Browser:    new(mocks.MockBrowserManager),
		Interactor: &fakeInteractor{},
	}
}

func (f *orchestratorTestFixture) orchestrator(t *testing.T, opts ...Option) *Orchestrator {
	t.Helper()
	opts = append([]Option{WithInteractor(f.Interactor)}, opts...)
	orch, err := New(f.Config, f.Logger, f.Browser, opts...)
	require.NoError(t, err)
	return orch
}

// loadedPage returns a page mock that navigates successfully to target.
func loadedPage(target string, events ...schemas.EventBatch) *mocks.MockPage {
	page := mocks.NewMockPage()
	page.On("ID").Return("session-1")
	page.On("Close").Return()
	page.On("Navigate", mock.Anything, target).Return(&schemas.NavigationResponse{URL: target, StatusCode: 200}, nil)
	page.On("CurrentURL", mock.Anything).Return(target, nil)
	page.On("Screenshot", mock.Anything, mock.AnythingOfType("string")).Return(nil)
	for _, batch := range events {
		page.On("DrainEvents").Return(batch).Once()
	}
	page.On("DrainEvents").Return(schemas.EventBatch{})
	return page
}

func auditorReturning(name string, result *schemas.AuditResult, err error) *mocks.MockAuditor {
	a := new(mocks.MockAuditor)
	a.On("Name").Return(name)
	a.On("Audit", mock.Anything, mock.Anything).Return(result, err)
	return a
}

func consoleError(msg string) schemas.PageEvent {
	return schemas.PageEvent{Kind: schemas.EventConsoleError, Message: msg}
}

// -- Test Cases --

func TestNew(t *testing.T) {
	fixture := setupTest(t)

	t.Run("rejects nil dependencies", func(t *testing.T) {
		_, err := New(nil, fixture.Logger, fixture.Browser)
		assert.Error(t, err)
		_, err = New(fixture.Config, nil, fixture.Browser)
		assert.Error(t, err)
		_, err = New(fixture.Config, fixture.Logger, nil)
		assert.Error(t, err)
	})

	t.Run("builds the enabled audits and the interaction engine from config", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.AuditsCfg.Performance.Enabled = false
		orch, err := New(cfg, fixture.Logger, fixture.Browser)
		require.NoError(t, err)

		var names []string
		for _, a := range orch.auditors {
			names = append(names, a.Name())
		}
		assert.Equal(t, []string{schemas.AuditAccessibility, schemas.AuditSecurity}, names)
		assert.IsType(t, &interaction.Engine{}, orch.interactor)
	})

	t.Run("invalid interaction options fail construction", func(t *testing.T) {
		cfg := config.NewDefaultConfig()
		cfg.InteractionCfg.MaxInteractions = 0
		_, err := New(cfg, fixture.Logger, fixture.Browser)
		assert.Error(t, err)
	})
}

func TestRunPage_FullPipeline(t *testing.T) {
	fixture := setupTest(t)
	const target = "https://example.com/login"

	first := schemas.EventBatch{ConsoleErrors: []schemas.PageEvent{consoleError("boom")}, Dropped: 2}
	last := schemas.EventBatch{
		ConsoleErrors:  []schemas.PageEvent{consoleError("late")},
		FailedRequests: []schemas.PageEvent{{Kind: schemas.EventRequestFailed, URL: "https://example.com/a.js"}},
	}
	page := loadedPage(target, first, last)
	fixture.Browser.On("NewPage", mock.Anything).Return(page, nil)
	fixture.Interactor.summary = &schemas.InteractionSummary{InteractionsPerformed: 3, FormsTested: 1}

	// The performance audit drains events itself; the report must still see them.
	perfResult := schemas.NewAuditResult(schemas.AuditPerformance)
	perf := new(mocks.MockAuditor)
	perf.On("Name").Return(schemas.AuditPerformance)
	perf.On("Audit", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		batch := args.Get(1).(schemas.Page).DrainEvents()
		assert.Len(t, batch.ConsoleErrors, 1)
	}).Return(perfResult, nil)

	secResult := schemas.NewAuditResult(schemas.AuditSecurity)
	secResult.Score = 60
	sec := auditorReturning(schemas.AuditSecurity, secResult, nil)

	orch := fixture.orchestrator(t, WithAuditors(perf, sec))
	report := orch.RunPage(context.Background(), target, "0123456789abcdef")

	assert.Empty(t, report.Error)
	assert.Equal(t, 200, report.StatusCode)
	assert.Equal(t, target, report.FinalURL)
	assert.Equal(t, 3, report.Interactions.InteractionsPerformed)
	assert.Equal(t, []string{schemas.AuditPerformance, schemas.AuditSecurity}, report.AuditNames())
	assert.Equal(t, 60, report.Audits[schemas.AuditSecurity].Score)

	assert.Equal(t, filepath.Join(fixture.Config.ReportCfg.OutputDir, "01234567_example.com_login.png"), report.Screenshot)
	page.AssertCalled(t, "Screenshot", mock.Anything, report.Screenshot)

	require.Len(t, report.ConsoleErrors, 2)
	assert.Equal(t, "boom", report.ConsoleErrors[0].Message)
	assert.Equal(t, "late", report.ConsoleErrors[1].Message)
	assert.Len(t, report.FailedRequests, 1)
	assert.Equal(t, 2, report.DroppedEvents)

	page.AssertNumberOfCalls(t, "Close", 1)
	assert.Equal(t, 1, fixture.Interactor.Calls())
}

func TestRunPage_NavigationFailure(t *testing.T) {
	fixture := setupTest(t)
	page := mocks.NewMockPage()
	page.On("ID").Return("session-1")
	page.On("Close").Return()
	page.On("Navigate", mock.Anything, "https://down.example").Return(nil, errors.New("net::ERR_CONNECTION_REFUSED"))
	page.On("DrainEvents").Return(schemas.EventBatch{})
	fixture.Browser.On("NewPage", mock.Anything).Return(page, nil)

	audit := auditorReturning(schemas.AuditSecurity, schemas.NewAuditResult(schemas.AuditSecurity), nil)
	orch := fixture.orchestrator(t, WithAuditors(audit))

	report := orch.RunPage(context.Background(), "https://down.example", "run")

	assert.Contains(t, report.Error, schemas.ErrPageUnreachable.Error())
	assert.Contains(t, report.Error, "ERR_CONNECTION_REFUSED")
	assert.Empty(t, report.Audits)
	assert.NotNil(t, report.ConsoleErrors)
	assert.Zero(t, fixture.Interactor.Calls())
	audit.AssertNotCalled(t, "Audit", mock.Anything, mock.Anything)
	page.AssertNumberOfCalls(t, "Close", 1)
	page.AssertNotCalled(t, "Screenshot", mock.Anything, mock.Anything)
}

func TestRunPage_InteractionOutcomes(t *testing.T) {
	const target = "https://example.com"

	tests := []struct {
		name        string
		err         error
		wantAudited bool
		wantError   bool
	}{
		{name: "clean run", err: nil, wantAudited: true},
		{name: "discovery failure skips audits", err: fmt.Errorf("%w: boom", interaction.ErrDiscovery), wantError: true},
		{name: "lost page skips audits", err: fmt.Errorf("%w: returning to start", schemas.ErrPageUnreachable), wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fixture := setupTest(t)
			fixture.Config.ReportCfg.Screenshots = false
			page := loadedPage(target)
			fixture.Browser.On("NewPage", mock.Anything).Return(page, nil)
			fixture.Interactor.err = tt.err

			audit := auditorReturning(schemas.AuditAccessibility, schemas.NewAuditResult(schemas.AuditAccessibility), nil)
			orch := fixture.orchestrator(t, WithAuditors(audit))
			report := orch.RunPage(context.Background(), target, "run")

			assert.Equal(t, tt.wantAudited, len(report.Audits) == 1)
			assert.Equal(t, tt.wantError, report.Error != "")
			assert.NotNil(t, report.Interactions)
			assert.Empty(t, report.Screenshot)
		})
	}
}

func TestRunPage_FailedAuditIsRecorded(t *testing.T) {
	fixture := setupTest(t)
	const target = "https://example.com"
	fixture.Browser.On("NewPage", mock.Anything).Return(loadedPage(target), nil)

	broken := auditorReturning(schemas.AuditAccessibility, nil, errors.New("axe exploded"))
	orch := fixture.orchestrator(t, WithAuditors(broken))
	report := orch.RunPage(context.Background(), target, "run")

	res := report.Audits[schemas.AuditAccessibility]
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Score)
	assert.Equal(t, schemas.GradePoor, res.Grade)
	assert.Equal(t, "axe exploded", res.Error)
	assert.Empty(t, report.Error)
}

func TestRunPage_SessionFailure(t *testing.T) {
	fixture := setupTest(t)
	fixture.Browser.On("NewPage", mock.Anything).Return(nil, errors.New("browser gone"))

	report := fixture.orchestrator(t, WithAuditors()).RunPage(context.Background(), "https://example.com", "run")

	assert.Contains(t, report.Error, "browser gone")
	assert.NotNil(t, report.Audits)
	assert.Zero(t, fixture.Interactor.Calls())
}

func TestRun_MultipleTargets(t *testing.T) {
	defer goleak.VerifyNone(t)

	fixture := setupTest(t)
	fixture.Config.BrowserCfg.Concurrency = 2
	fixture.Config.ReportCfg.Screenshots = false

	targets := []string{"https://a.example", "https://b.example", "https://c.example"}
	// One permissive session serves every target.
	shared := mocks.NewMockPage()
	shared.On("ID").Return("shared")
	shared.On("Close").Return()
	shared.On("Navigate", mock.Anything, mock.Anything).Return(&schemas.NavigationResponse{StatusCode: 200}, nil)
	shared.On("CurrentURL", mock.Anything).Return("", nil)
	shared.On("DrainEvents").Return(schemas.EventBatch{})
	fixture.Browser.On("NewPage", mock.Anything).Return(shared, nil)

	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.MatchedBy(func(r *schemas.PageReport) bool {
		return r.URL == "https://b.example"
	})).Return(errors.New("db down"))
	store.On("PersistReport", mock.Anything, mock.Anything).Return(nil)

	audit := auditorReturning(schemas.AuditSecurity, schemas.NewAuditResult(schemas.AuditSecurity), nil)
	orch := fixture.orchestrator(t, WithAuditors(audit), WithStore(store))

	reports, err := orch.Run(context.Background(), targets, "")
	require.NoError(t, err)
	require.Len(t, reports, 3)

	runID := reports[0].RunID
	assert.NotEmpty(t, runID)
	for i, r := range reports {
		assert.Equal(t, targets[i], r.URL, "reports keep target order")
		assert.Equal(t, runID, r.RunID)
		assert.Contains(t, r.Audits, schemas.AuditSecurity)
	}
	store.AssertNumberOfCalls(t, "PersistReport", 3)
	shared.AssertNumberOfCalls(t, "Close", 3)
	assert.Equal(t, 3, fixture.Interactor.Calls())
}

func TestRun_NoTargets(t *testing.T) {
	fixture := setupTest(t)
	_, err := fixture.orchestrator(t, WithAuditors()).Run(context.Background(), nil, "run")
	assert.Error(t, err)
}

func TestRun_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	fixture := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reports, err := fixture.orchestrator(t, WithAuditors()).Run(ctx, []string{"https://example.com"}, "run")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, reports)
	fixture.Browser.AssertNotCalled(t, "NewPage", mock.Anything)
}

func TestRunPage_UsesClock(t *testing.T) {
	fixture := setupTest(t)
	fixture.Browser.On("NewPage", mock.Anything).Return(nil, errors.New("no browser"))

	var mu sync.Mutex
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}

	report := fixture.orchestrator(t, WithAuditors(), WithClock(clock)).RunPage(context.Background(), "https://example.com", "run")
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC), report.StartedAt)
	assert.Equal(t, time.Second, report.Duration)
}
