package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/SlpAus/flag-training-backend/internal/platform/config"
	"github.com/SlpAus/flag-training-backend/internal/platform/database/dbtest"
	"github.com/SlpAus/flag-training-backend/internal/platform/startup"
	"github.com/SlpAus/flag-training-backend/internal/scoring"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminToken = "test-admin-token"

type testServer struct {
	t      *testing.T
	router *gin.Engine
	app    *App
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := dbtest.New(t)
	require.NoError(t, startup.InitializeApplication(db, nil))

	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		Auth:      config.AuthConfig{UserHeader: "X-User-ID", AdminToken: adminToken},
		RateLimit: config.RateLimitConfig{PerSecond: 100, Burst: 100},
	}
	app := NewApp(cfg, db, nil, nil)
	return &testServer{t: t, router: app.NewRouter(nil), app: app}
}

// do 发送请求，userID 为0时不带用户身份
func (s *testServer) do(method, path string, userID int64, admin bool, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID > 0 {
		req.Header.Set("X-User-ID", fmt.Sprint(userID))
	}
	if admin {
		req.Header.Set("X-Admin-Token", adminToken)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createModule(body map[string]interface{}) int64 {
	s.t.Helper()
	w := s.do(http.MethodPost, "/api/admin/modules", 0, true, body)
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		ID int64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &created))
	return created.ID
}

func (s *testServer) derive(moduleID, userID int64) string {
	s.t.Helper()
	w := s.do(http.MethodGet, fmt.Sprintf("/api/admin/modules/%d/flags/%d", moduleID, userID), 0, true, nil)
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Flag string `json:"flag"`
	}
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Flag
}

func (s *testServer) submit(moduleID, userID int64, flag string) *httptest.ResponseRecorder {
	return s.do(http.MethodPost, fmt.Sprintf("/api/modules/%d/submissions", moduleID), userID, false, map[string]string{"flag": flag})
}

func decodeCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body struct {
		Code string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Code
}

func TestDynamicFlagLifecycle(t *testing.T) {
	s := newTestServer(t)
	moduleID := s.createModule(map[string]interface{}{
		"name": "sqli-101", "flagEnabled": true, "secret": "seed-1", "open": true,
	})

	flag := s.derive(moduleID, 1)
	assert.Len(t, flag, 128)

	// 错误的Flag被记录但不计分
	w := s.submit(moduleID, 1, "nope")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	// 另一个用户的Flag无效
	w = s.submit(moduleID, 2, flag)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":false`)

	// 大写形式同样有效
	w = s.submit(moduleID, 1, strings.ToUpper(flag))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"valid":true`)

	// 再次提交被拒绝
	w = s.submit(moduleID, 1, flag)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "already_solved", decodeCode(t, w))

	w = s.do(http.MethodGet, fmt.Sprintf("/api/modules/%d/solved", moduleID), 1, false, nil)
	assert.JSONEq(t, fmt.Sprintf(`{"moduleId":%d,"solved":true}`, moduleID), w.Body.String())

	w = s.do(http.MethodGet, "/api/me/solved", 1, false, nil)
	assert.JSONEq(t, fmt.Sprintf(`{"moduleIds":[%d]}`, moduleID), w.Body.String())

	w = s.do(http.MethodGet, "/api/me/submissions", 1, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history, 2)
	assert.NotContains(t, w.Body.String(), flag)
}

func TestExactFlagAndScoreboard(t *testing.T) {
	s := newTestServer(t)
	moduleID := s.createModule(map[string]interface{}{
		"name": "warmup", "flagEnabled": true, "flagExact": true, "secret": "FLAG{hello}",
	})

	w := s.do(http.MethodPut, fmt.Sprintf("/api/admin/modules/%d/rules", moduleID), 0, true,
		map[string]interface{}{"rules": map[string]int64{"0": 100, "1": 50, "2": 30, "3": 10}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	for _, userID := range []int64{3, 1, 2, 4} {
		w := s.submit(moduleID, userID, "flag{HELLO}")
		require.Equal(t, http.StatusOK, w.Code)
		require.Contains(t, w.Body.String(), `"valid":true`)
	}

	w = s.do(http.MethodGet, fmt.Sprintf("/api/admin/modules/%d/scores", moduleID), 0, true, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[
		{"userId":3,"score":150},
		{"userId":1,"score":130},
		{"userId":2,"score":110},
		{"userId":4,"score":100}
	]`, w.Body.String())

	w = s.do(http.MethodPost, "/api/admin/corrections", 0, true,
		map[string]interface{}{"userId": 4, "delta": 45, "reason": "writeup bonus"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/scoreboard", 0, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var board []scoring.Entry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &board))
	require.Len(t, board, 4)
	assert.Equal(t, scoring.Entry{UserID: 3, Rank: 1, Score: 150, Medals: scoring.Medals{Gold: 1}}, board[0])
	assert.Equal(t, scoring.Entry{UserID: 4, Rank: 2, Score: 145}, board[1])
	assert.Equal(t, int64(1), board[2].UserID)
	assert.Equal(t, int64(2), board[3].UserID)

	// 字面Flag模块不能派生
	w = s.do(http.MethodGet, fmt.Sprintf("/api/admin/modules/%d/flags/1", moduleID), 0, true, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "invalid_state", decodeCode(t, w))
}

func TestRotationChangesFutureFlagsOnly(t *testing.T) {
	s := newTestServer(t)
	solvedModule := s.createModule(map[string]interface{}{"name": "crypto", "flagEnabled": true, "secret": "seed"})
	openModule := s.createModule(map[string]interface{}{"name": "crypto-2", "flagEnabled": true, "secret": "seed-2"})

	before := s.derive(solvedModule, 5)
	staleFlag := s.derive(openModule, 5)
	w := s.submit(solvedModule, 5, before)
	require.Contains(t, w.Body.String(), `"valid":true`)

	w = s.do(http.MethodPost, "/api/admin/server-secret/rotate", 0, true, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	assert.NotEqual(t, before, s.derive(solvedModule, 5))

	// 轮换前派生的Flag不再有效，已有的有效提交保持不变
	w = s.submit(openModule, 5, staleFlag)
	assert.Contains(t, w.Body.String(), `"valid":false`)
	w = s.submit(openModule, 5, s.derive(openModule, 5))
	assert.Contains(t, w.Body.String(), `"valid":true`)

	w = s.do(http.MethodGet, fmt.Sprintf("/api/modules/%d/solved", solvedModule), 5, false, nil)
	assert.Contains(t, w.Body.String(), `"solved":true`)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	disabled := s.createModule(map[string]interface{}{"name": "draft"})

	tests := []struct {
		name     string
		method   string
		path     string
		userID   int64
		admin    bool
		body     interface{}
		wantCode int
		wantErr  string
	}{
		{name: "unknown module", method: http.MethodPost, path: "/api/modules/999/submissions", userID: 1, body: map[string]string{"flag": "x"}, wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "flag disabled", method: http.MethodPost, path: fmt.Sprintf("/api/modules/%d/submissions", disabled), userID: 1, body: map[string]string{"flag": "x"}, wantCode: http.StatusConflict, wantErr: "invalid_state"},
		{name: "missing flag", method: http.MethodPost, path: fmt.Sprintf("/api/modules/%d/submissions", disabled), userID: 1, body: map[string]string{}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
		{name: "nul byte in flag", method: http.MethodPost, path: fmt.Sprintf("/api/modules/%d/submissions", disabled), userID: 1, body: map[string]string{"flag": "a\u0000b"}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
		{name: "bad module id", method: http.MethodPost, path: "/api/modules/abc/submissions", userID: 1, body: map[string]string{"flag": "x"}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
		{name: "anonymous submission", method: http.MethodPost, path: "/api/modules/1/submissions", body: map[string]string{"flag": "x"}, wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "admin without token", method: http.MethodPost, path: "/api/admin/server-secret/rotate", wantCode: http.StatusForbidden, wantErr: "forbidden"},
		{name: "enabled module without secret", method: http.MethodPost, path: "/api/admin/modules", admin: true, body: map[string]interface{}{"name": "x", "flagEnabled": true}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
		{name: "update unknown module", method: http.MethodPut, path: "/api/admin/modules/999", admin: true, body: map[string]interface{}{"name": "x"}, wantCode: http.StatusNotFound, wantErr: "not_found"},
		{name: "zero correction", method: http.MethodPost, path: "/api/admin/corrections", admin: true, body: map[string]interface{}{"userId": 1, "delta": 0}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
		{name: "negative rank", method: http.MethodPut, path: "/api/admin/modules/1/rules", admin: true, body: map[string]interface{}{"rules": map[string]int64{"-1": 5}}, wantCode: http.StatusBadRequest, wantErr: "invalid_input"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.method, tt.path, tt.userID, tt.admin, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, tt.wantErr, decodeCode(t, w))
		})
	}
}

func TestSubmissionRateLimit(t *testing.T) {
	s := newTestServer(t)
	s.app.cfg.RateLimit = config.RateLimitConfig{PerSecond: 0.001, Burst: 2}
	s.app = NewApp(s.app.cfg, s.app.db, nil, nil)
	s.router = s.app.NewRouter(nil)

	moduleID := s.createModule(map[string]interface{}{"name": "brute", "flagEnabled": true, "secret": "seed"})

	assert.Equal(t, http.StatusOK, s.submit(moduleID, 1, "a").Code)
	assert.Equal(t, http.StatusOK, s.submit(moduleID, 1, "b").Code)
	w := s.submit(moduleID, 1, "c")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", decodeCode(t, w))

	// 其他用户不受影响
	assert.Equal(t, http.StatusOK, s.submit(moduleID, 2, "a").Code)
}

func TestPublicEndpoints(t *testing.T) {
	s := newTestServer(t)
	s.createModule(map[string]interface{}{"name": "hidden", "open": false})
	s.createModule(map[string]interface{}{"name": "visible", "open": true})

	w := s.do(http.MethodGet, "/api/modules", 0, false, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "visible")
	assert.NotContains(t, w.Body.String(), "hidden")

	w = s.do(http.MethodGet, "/api/solves/recent", 0, false, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = s.do(http.MethodGet, "/healthz", 0, false, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
}
