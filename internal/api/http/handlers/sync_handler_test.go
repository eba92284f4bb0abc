package handlers

import (
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/request-desk/internal/config"
)

func TestSyncPolicyReportsConfiguredCadence(t *testing.T) {
	app := fiber.New()
	h := NewSyncHandler(config.SyncConfig{PollIntervalSeconds: 15, RecencyWindowMinutes: 10})
	app.Get("/sync/policy", h.Policy)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/sync/policy", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Data struct {
			PollIntervalSeconds  int `json:"poll_interval_seconds"`
			RecencyWindowMinutes int `json:"recency_window_minutes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 15, body.Data.PollIntervalSeconds)
	require.Equal(t, 10, body.Data.RecencyWindowMinutes)
}

func TestSyncPolicyAppliesDefaults(t *testing.T) {
	app := fiber.New()
	h := NewSyncHandler(config.SyncConfig{})
	app.Get("/sync/policy", h.Policy)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/sync/policy", nil))
	require.NoError(t, err)

	var body struct {
		Data struct {
			PollIntervalSeconds  int `json:"poll_interval_seconds"`
			RecencyWindowMinutes int `json:"recency_window_minutes"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, 30, body.Data.PollIntervalSeconds)
	require.Equal(t, 5, body.Data.RecencyWindowMinutes)
}
