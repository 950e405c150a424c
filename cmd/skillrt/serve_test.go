package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jingkaihe/skillrt/pkg/config"
	skillruntime "github.com/jingkaihe/skillrt/pkg/runtime"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime(t *testing.T, history bool) *skillruntime.Runtime {
	t.Helper()
	home := t.TempDir()

	v := viper.New()
	config.SetDefaults(v)
	v.Set("skills.project_dir", filepath.Join(home, "project"))
	v.Set("skills.user_dir", filepath.Join(home, "user"))
	v.Set("skills.adapters", []string{})
	v.Set("history.enabled", history)
	v.Set("history.path", filepath.Join(home, "history.db"))
	v.Set("executor.retry_base_delay", time.Millisecond)

	cfg, err := config.Load(v, home)
	require.NoError(t, err)

	rt, err := skillruntime.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { rt.Close() })
	rt.Discover(context.Background())
	return rt
}

func get(t *testing.T, h http.Handler, path string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestNewSkillServer(t *testing.T) {
	t.Run("serves the bundled catalog", func(t *testing.T) {
		rt := newTestRuntime(t, false)
		s, err := newSkillServer(rt)
		require.NoError(t, err)

		code, body := get(t, s.Handler(), "/api/skills/echo")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "echo", body["name"])
	})

	t.Run("performance is disabled without history", func(t *testing.T) {
		rt := newTestRuntime(t, false)
		require.Nil(t, rt.History)
		s, err := newSkillServer(rt)
		require.NoError(t, err)

		code, body := get(t, s.Handler(), "/api/performance")
		assert.Equal(t, http.StatusNotFound, code)
		assert.Equal(t, "execution history is disabled", body["error"])
	})

	t.Run("performance reports come from history", func(t *testing.T) {
		rt := newTestRuntime(t, true)
		require.NotNil(t, rt.History)
		result := rt.Execute(context.Background(), "echo", map[string]any{"message": "hi"}, skills.ExecutionContext{Task: "serve test"})
		require.True(t, result.Success, "echo failed: %v", result.Error)

		s, err := newSkillServer(rt)
		require.NoError(t, err)

		code, body := get(t, s.Handler(), "/api/performance/echo")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "echo", body["skill_name"])
		assert.Equal(t, float64(1), body["total_executions"])
	})

	t.Run("invalid port is rejected", func(t *testing.T) {
		rt := newTestRuntime(t, false)
		rt.Config.Server.Port = 70000
		_, err := newSkillServer(rt)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server configuration")
	})
}
