package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jingkaihe/skillrt/pkg/performance"
	"github.com/jingkaihe/skillrt/pkg/registry"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name    string
	params  map[string]any
	execCtx skills.ExecutionContext
	result  skills.SkillResult
}

func (f *fakeRunner) Execute(_ context.Context, name string, params map[string]any, execCtx skills.ExecutionContext) skills.SkillResult {
	f.name, f.params, f.execCtx = name, params, execCtx
	r := f.result
	r.SkillName = name
	return r
}

type fakeReporter struct {
	reports map[string]performance.Report
	err     error
}

func (f *fakeReporter) Report(_ context.Context, name string) (*performance.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.reports[name]
	if !ok {
		return nil, skills.NewError(skills.ErrNotFound, name, "no recorded executions")
	}
	return &r, nil
}

func (f *fakeReporter) Reports(_ context.Context) ([]performance.Report, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []performance.Report
	for _, r := range f.reports {
		out = append(out, r)
	}
	return out, nil
}

func testCatalog(t *testing.T) *registry.Registry {
	t.Helper()
	reg := registry.New()
	for _, s := range []*skills.Skill{
		{Name: "build", Version: "1.0.0", Description: "build it", Category: "utility",
			Execution: skills.Execution{Kind: skills.KindScript, Script: "make build"},
			Metadata:  skills.Metadata{Tags: []string{"build", "frontend"}}},
		{Name: "lint", Version: "1.0.0", Description: "lint it", Category: "quality",
			Execution: skills.Execution{Kind: skills.KindScript, Script: "make lint"},
			Metadata:  skills.Metadata{Tags: []string{"frontend"}}},
		{Name: "greet", Version: "2.0.0", Description: "say hi", Category: "utility",
			Execution: skills.Execution{Kind: skills.KindNative, Module: "demo", Method: "greet"}},
	} {
		require.NoError(t, reg.Register(s))
	}
	return reg
}

func newTestServer(t *testing.T, runner Runner, reporter Reporter) http.Handler {
	t.Helper()
	s, err := New(Config{Host: "127.0.0.1", Port: 8040}, testCatalog(t), runner, reporter)
	require.NoError(t, err)
	return s.Handler()
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), rec.Body.String())
	}
	return rec, decoded
}

func names(t *testing.T, body map[string]any) []string {
	t.Helper()
	list, ok := body["skills"].([]any)
	require.True(t, ok)
	out := []string{}
	for _, item := range list {
		out = append(out, item.(map[string]any)["name"].(string))
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, (&Config{Host: "", Port: 80}).Validate())
	assert.Error(t, (&Config{Host: "localhost", Port: 0}).Validate())
	assert.NoError(t, (&Config{Host: "localhost", Port: 80}).Validate())

	_, err := New(Config{}, registry.New(), &fakeRunner{}, nil)
	assert.ErrorContains(t, err, "invalid server configuration")
}

func TestListSkills(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}, nil)

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"build", "greet", "lint"}},
		{"?category=utility", []string{"build", "greet"}},
		{"?tag=frontend", []string{"build", "lint"}},
		{"?kind=native", []string{"greet"}},
		{"?domain=front&category=quality", []string{"lint"}},
		{"?tag=missing", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec, body := do(t, h, http.MethodGet, "/api/skills"+tt.query, nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.ElementsMatch(t, tt.want, names(t, body))
			assert.EqualValues(t, len(tt.want), body["count"])
		})
	}

	rec, body := do(t, h, http.MethodGet, "/api/skills?kind=wasm", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestGetSkill(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}, nil)

	rec, body := do(t, h, http.MethodGet, "/api/skills/greet", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "greet", body["name"])
	assert.Equal(t, "2.0.0", body["version"])
	execution := body["execution"].(map[string]any)
	assert.Equal(t, "native", execution["type"])

	rec, body = do(t, h, http.MethodGet, "/api/skills/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, string(skills.ErrNotFound), body["kind"])
}

func TestStats(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}, nil)

	rec, body := do(t, h, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total"])
	assert.EqualValues(t, 2, body["by_kind"].(map[string]any)["script"])
}

func TestExecute(t *testing.T) {
	runner := &fakeRunner{result: skills.SkillResult{ExecutionID: "exec_01234567", Success: true, Data: "hi", Attempts: 1, Duration: time.Millisecond}}
	h := newTestServer(t, runner, nil)

	body, _ := json.Marshal(ExecuteRequest{
		Parameters: map[string]any{"who": "world"},
		Context:    skills.ExecutionContext{Task: "greeting", Constraints: []string{"fast"}},
	})
	rec, resp := do(t, h, http.MethodPost, "/api/skills/greet/execute", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "hi", resp["data"])
	assert.Equal(t, "exec_01234567", resp["execution_id"])

	assert.Equal(t, "greet", runner.name)
	assert.Equal(t, map[string]any{"who": "world"}, runner.params)
	assert.Equal(t, "greeting", runner.execCtx.Task)
	assert.True(t, runner.execCtx.HasConstraint("fast"))
}

func TestExecuteStatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		result skills.SkillResult
		body   string
		want   int
	}{
		{
			name:   "empty body",
			result: skills.SkillResult{Success: true, Attempts: 1},
			want:   http.StatusOK,
		},
		{
			name: "malformed body",
			body: "{",
			want: http.StatusBadRequest,
		},
		{
			name: "unknown skill",
			result: skills.SkillResult{Error: skills.WrapError(
				skills.NewError(skills.ErrNotFound, "ghost", "skill is not registered"),
				skills.ErrSkillExecution, "ghost", "cannot resolve skill")},
			want: http.StatusNotFound,
		},
		{
			name:   "invalid parameters",
			result: skills.SkillResult{Error: skills.NewError(skills.ErrParameterValidation, "greet", "missing required parameter")},
			want:   http.StatusBadRequest,
		},
		{
			name:   "execution failure",
			result: skills.SkillResult{Attempts: 3, Error: skills.NewError(skills.ErrScriptExecution, "greet", "exit 1")},
			want:   http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, &fakeRunner{result: tt.result}, nil)
			rec, _ := do(t, h, http.MethodPost, "/api/skills/greet/execute", []byte(tt.body))
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestPerformance(t *testing.T) {
	reporter := &fakeReporter{reports: map[string]performance.Report{
		"build": {SkillName: "build", TotalExecutions: 4, SuccessRate: 0.75},
	}}
	h := newTestServer(t, &fakeRunner{}, reporter)

	rec, body := do(t, h, http.MethodGet, "/api/performance/build", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 4, body["total_executions"])
	assert.InDelta(t, 0.75, body["success_rate"], 1e-9)

	rec, _ = do(t, h, http.MethodGet, "/api/performance/lint", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, h, http.MethodGet, "/api/performance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	reporter.err = errors.New("disk on fire")
	rec, _ = do(t, h, http.MethodGet, "/api/performance/build", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPerformanceDisabled(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}, nil)

	rec, body := do(t, h, http.MethodGet, "/api/performance/build", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "execution history is disabled", body["error"])
}

func TestSkillDependencies(t *testing.T) {
	reg := testCatalog(t)
	require.NoError(t, reg.Register(&skills.Skill{
		Name: "release", Version: "1.0.0", Description: "ship it", Dependencies: []string{"lint", "build"},
		Execution: skills.Execution{Kind: skills.KindScript, Script: "make release"},
	}))
	s, err := New(Config{Host: "127.0.0.1", Port: 8040}, reg, &fakeRunner{}, nil)
	require.NoError(t, err)

	rec, body := do(t, s.Handler(), http.MethodGet, "/api/skills/release/dependencies", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	plan := body["plan"].(map[string]any)
	assert.Equal(t, []any{"build", "lint", "release"}, plan["execution_order"])
	assert.Equal(t, []any{[]any{"build", "lint"}, []any{"release"}}, plan["parallel_groups"])
	analysis := body["analysis"].(map[string]any)
	assert.Equal(t, []any{"lint", "build"}, analysis["direct_dependencies"])
	assert.Equal(t, true, analysis["is_exit_point"])

	rec, _ = do(t, s.Handler(), http.MethodGet, "/api/skills/deploy/dependencies", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	h := newTestServer(t, &fakeRunner{}, nil)

	tests := []struct {
		method string
		path   string
	}{
		{method: http.MethodDelete, path: "/api/skills/build"},
		{method: http.MethodGet, path: "/api/skills/build/execute"},
		{method: http.MethodPost, path: "/api/stats"},
		{method: http.MethodPut, path: "/healthz"},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartAndShutdown(t *testing.T) {
	port := freePort(t)
	s, err := New(Config{Host: "127.0.0.1", Port: port}, testCatalog(t), &fakeRunner{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}
