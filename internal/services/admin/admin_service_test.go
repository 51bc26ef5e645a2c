package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/skillswap-api/internal/audit"
	"github.com/rajivgeraev/skillswap-api/internal/migration"
	"github.com/rajivgeraev/skillswap-api/internal/registry"
	"github.com/rajivgeraev/skillswap-api/internal/store"
	"github.com/rajivgeraev/skillswap-api/internal/store/memory"
)

const testOperator = "0d6f7a52-64a7-4f7a-9a4e-4f1c2b0c9e11"

type fakeHistory struct {
	runs []audit.RunRecord
}

func (f *fakeHistory) Runs(_ context.Context, limit int) ([]audit.RunRecord, error) {
	return f.runs[:min(limit, len(f.runs))], nil
}

func (f *fakeHistory) Batches(context.Context, string) ([]audit.BatchRecord, error) {
	return nil, nil
}

func setup(t *testing.T, history HistoryReader) (*AdminService, *fiber.App, *memory.Store) {
	t.Helper()
	s := memory.New()
	docs := make([]store.Document, 0, 20)
	for i := 0; i < 20; i++ {
		docs = append(docs, store.Document{ID: fmt.Sprintf("t-%02d", i), Data: map[string]any{
			"title":         "Обмен",
			"offeredSkills": []any{"Go"},
			"creatorId":     "u1",
		}})
	}
	s.Seed("trades", docs...)

	reg := registry.New(zerolog.Nop())
	reg.Initialize(s)
	engine := migration.New(s, reg, zerolog.Nop())

	defaults := migration.DefaultOptions()
	defaults.RateLimit = 0
	defaults.InitialBackoff = time.Millisecond
	defaults.MaxBackoff = time.Millisecond
	defaults.EnableZeroDowntime = false

	svc := NewAdminService(context.Background(), reg, engine, defaults, history, zerolog.Nop())

	app := fiber.New()
	svc.SetupRoutes(app, func(c fiber.Ctx) error {
		c.Locals("userID", testOperator)
		return c.Next()
	})
	t.Cleanup(svc.Wait)
	return svc, app, s
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestStatus(t *testing.T) {
	_, app, _ := setup(t, nil)

	resp, body := do(t, app, http.MethodGet, "/api/admin/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	reg := body["registry"].(map[string]any)
	assert.Equal(t, true, reg["initialized"])
	assert.Contains(t, body, "migration")
}

func TestRunMigrationCompletes(t *testing.T) {
	svc, app, s := setup(t, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/admin/migration/run", RunRequest{Collection: "trades", BatchSize: 5})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	svc.Wait()
	progress := svc.Status().Migration
	require.NotNil(t, progress.LastResult)
	assert.True(t, progress.LastResult.Success)
	assert.EqualValues(t, 20, progress.LastResult.Succeeded)

	doc, err := s.Get(context.Background(), "trades", "t-00")
	require.NoError(t, err)
	assert.EqualValues(t, 2, doc.Data["schemaVersion"])
}

func TestStartRunReturnsResult(t *testing.T) {
	svc, _, _ := setup(t, nil)

	done, err := svc.StartRun(context.Background(), RunRequest{Collection: "trades", DryRun: true}, testOperator)
	require.NoError(t, err)

	result := <-done
	require.NotNil(t, result)
	assert.True(t, result.DryRun)
	assert.Equal(t, migration.StateCompleted, result.State)
}

func TestRunMigrationRejectsBadInput(t *testing.T) {
	_, app, _ := setup(t, nil)

	cases := []struct {
		name string
		req  RunRequest
		code int
	}{
		{"без коллекции", RunRequest{}, http.StatusBadRequest},
		{"неизвестное преобразование", RunRequest{Collection: "trades", Transform: "users"}, http.StatusBadRequest},
		{"неверный rateLimit", RunRequest{Collection: "trades", RateLimit: "fast"}, http.StatusBadRequest},
		{"нет коллекции в хранилище", RunRequest{Collection: "messages"}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := do(t, app, http.MethodPost, "/api/admin/migration/run", tc.req)
			assert.Equal(t, tc.code, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	svc, _, _ := setup(t, nil)
	retries := 0
	zero := true

	opts, err := svc.Options(RunRequest{
		Collection:    "trades",
		BatchSize:     7,
		RateLimit:     "250ms",
		MaxRetries:    &retries,
		ZeroDowntime:  &zero,
		MinSampleSize: 10,
	}, testOperator)
	require.NoError(t, err)

	assert.Equal(t, 7, opts.BatchSize)
	assert.Equal(t, 250*time.Millisecond, opts.RateLimit)
	assert.Equal(t, 0, opts.MaxRetries)
	assert.True(t, opts.EnableZeroDowntime)
	assert.Equal(t, 10, opts.MinSampleSize)
	assert.Equal(t, testOperator, opts.Operator)
	assert.Equal(t, migration.DefaultOptions().ErrorThreshold, opts.ErrorThreshold)
}

func TestStopWithoutRun(t *testing.T) {
	_, app, _ := setup(t, nil)

	resp, _ := do(t, app, http.MethodPost, "/api/admin/migration/emergency-stop", map[string]string{"reason": "test"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = do(t, app, http.MethodPost, "/api/admin/migration/shutdown", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateMode(t *testing.T) {
	svc, app, _ := setup(t, nil)

	resp, body := do(t, app, http.MethodPut, "/api/admin/mode", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["migrationMode"])
	assert.True(t, svc.registry.MigrationMode())

	do(t, app, http.MethodPut, "/api/admin/mode", map[string]bool{"enabled": false})
	assert.False(t, svc.registry.MigrationMode())
}

func TestValidateMigration(t *testing.T) {
	_, app, _ := setup(t, nil)

	resp, body := do(t, app, http.MethodPost, "/api/admin/migration/validate", map[string]string{"collection": "trades"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["ready"])

	resp, _ = do(t, app, http.MethodPost, "/api/admin/migration/validate", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHistory(t *testing.T) {
	_, app, _ := setup(t, nil)
	resp, _ := do(t, app, http.MethodGet, "/api/admin/migration/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	history := &fakeHistory{runs: []audit.RunRecord{{RunID: "a"}, {RunID: "b"}, {RunID: "c"}}}
	_, app, _ = setup(t, history)
	resp, body := do(t, app, http.MethodGet, "/api/admin/migration/history?limit=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 2, body["count"])
}

func TestStopRejectsMalformedBody(t *testing.T) {
	_, app, _ := setup(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/migration/emergency-stop", bytes.NewBufferString("{reason"))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// без тела причина необязательна, но активного запуска нет
	resp, _ = do(t, app, http.MethodPost, "/api/admin/migration/emergency-stop", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
