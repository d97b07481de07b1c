package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/promptloom/internal/coordinator"
	"github.com/promptloom/internal/counter"
	"github.com/promptloom/internal/engagement"
	"github.com/promptloom/internal/lineage"
	"github.com/promptloom/internal/prompt"
	"github.com/promptloom/internal/revision"
)

func TestEngineError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"PromptNotFound", prompt.ErrNotFound, http.StatusNotFound},
		{"RevisionNotFound", revision.ErrNotFound, http.StatusNotFound},
		{"RemixRejected", &coordinator.RemixRejectedError{Cause: lineage.ErrParentNotFound}, http.StatusConflict},
		{"CycleWouldForm", lineage.ErrCycleWouldForm, http.StatusConflict},
		{"CycleDetected", lineage.ErrCycleDetected, http.StatusConflict},
		{"ContentionExhausted", revision.ErrConcurrencyExhausted, http.StatusServiceUnavailable},
		{"AlreadyLiked", engagement.ErrAlreadyLiked, http.StatusBadRequest},
		{"NotLiked", engagement.ErrNotLiked, http.StatusBadRequest},
		{"AlreadyVoted", engagement.ErrAlreadyVoted, http.StatusBadRequest},
		{"UnknownCounter", counter.ErrUnknownCounter, http.StatusBadRequest},
		{"Unclassified", errors.New("boom"), http.StatusInternalServerError},
	}

	e := echo.New()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			require.NoError(t, engineError(c, tc.err))
			assert.Equal(t, tc.code, rec.Code)
		})
	}
}

func TestEngineError_WrappedErrors(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	wrapped := &coordinator.RemixRejectedError{Cause: lineage.ErrCycleWouldForm}
	require.NoError(t, engineError(c, wrapped))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPromptRequestValidate(t *testing.T) {
	cases := []struct {
		name    string
		req     promptRequest
		wantErr bool
	}{
		{"Valid", promptRequest{Title: "T", Body: "B"}, false},
		{"EmptyTitle", promptRequest{Body: "B"}, true},
		{"WhitespaceTitle", promptRequest{Title: "   ", Body: "B"}, true},
		{"EmptyBody", promptRequest{Title: "T"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.validate()
			if tc.wantErr {
				var httpErr *echo.HTTPError
				require.ErrorAs(t, err, &httpErr)
				assert.Equal(t, http.StatusBadRequest, httpErr.Code)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPromptIDParam(t *testing.T) {
	e := echo.New()

	t.Run("Valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues("f47ac10b-58cc-4372-a567-0e02b2c3d479")

		id, err := promptIDParam(c)
		require.NoError(t, err)
		assert.Equal(t, "f47ac10b-58cc-4372-a567-0e02b2c3d479", id.String())
	})

	t.Run("Invalid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		c := e.NewContext(req, httptest.NewRecorder())
		c.SetParamNames("id")
		c.SetParamValues("not-a-uuid")

		_, err := promptIDParam(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})
}

func TestIPLimiter(t *testing.T) {
	t.Run("BurstThenBlocked", func(t *testing.T) {
		limiter := newIPLimiter(60, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, limiter.allow("10.0.0.1"), "request %d within burst", i)
		}
		assert.False(t, limiter.allow("10.0.0.1"))
	})

	t.Run("PerIPIsolation", func(t *testing.T) {
		limiter := newIPLimiter(60, 1)

		assert.True(t, limiter.allow("10.0.0.1"))
		assert.False(t, limiter.allow("10.0.0.1"))
		assert.True(t, limiter.allow("10.0.0.2"))
	})

	t.Run("ZeroConfigFallsBackToDefaults", func(t *testing.T) {
		limiter := newIPLimiter(0, 0)
		assert.True(t, limiter.allow("10.0.0.3"))
	})
}
