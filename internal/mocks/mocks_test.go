// internal/mocks/mocks_test.go
package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/comet-monkey/api/schemas"
)

func TestMockPage_DecodeResult(t *testing.T) {
	page := NewMockPage()
	page.On("Evaluate", mock.Anything, "document.title", mock.Anything).
		Run(DecodeResult(`{"title":"Home"}`)).
		Return(nil)

	var out struct {
		Title string `json:"title"`
	}
	require.NoError(t, page.Evaluate(context.Background(), "document.title", &out))
	assert.Equal(t, "Home", out.Title)

	// A nil out is tolerated.
	require.NoError(t, page.Evaluate(context.Background(), "document.title", nil))
	page.AssertExpectations(t)
}

func TestMockPage_NilReturns(t *testing.T) {
	page := NewMockPage()
	boom := errors.New("boom")
	page.On("Navigate", mock.Anything, "http://app.test").Return(nil, boom)
	page.On("Response").Return(nil)
	page.On("FindByText", mock.Anything, "button", "Go").Return(nil, nil)

	resp, err := page.Navigate(context.Background(), "http://app.test")
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, page.Response())

	el, err := page.FindByText(context.Background(), "button", "Go")
	assert.Nil(t, el)
	assert.NoError(t, err)
}

func TestMockStore(t *testing.T) {
	store := &MockStore{}
	store.On("GetReportsByRunID", mock.Anything, "run-1").Return([]schemas.PageReport{{RunID: "run-1"}}, nil)

	reports, err := store.GetReportsByRunID(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "run-1", reports[0].RunID)
}
