package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error   { return nil }
func down(context.Context) error { return errors.New("connection refused") }

func TestReport(t *testing.T) {
	tests := []struct {
		name     string
		checker  *Checker
		expected Status
	}{
		{"all healthy", NewChecker("test").Require("store", ok).Optional("redis", ok), StatusHealthy},
		{"optional down", NewChecker("test").Require("store", ok).Optional("redis", down), StatusDegraded},
		{"required down", NewChecker("test").Require("store", down).Optional("redis", down), StatusUnhealthy},
		{"no checks", NewChecker("test"), StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.checker.Report(context.Background()).Status)
		})
	}
}

func TestReadiness(t *testing.T) {
	e := echo.New()
	c := NewChecker("v1").Require("store", down)
	c.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Checks, "startup")

	c.SetReady(true)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "connection refused", resp.Checks["store"].Message)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
