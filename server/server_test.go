package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/teranos/DMS/am"
	"github.com/teranos/DMS/auth"
	"github.com/teranos/DMS/document"
	"github.com/teranos/DMS/ingestion"
	dmstest "github.com/teranos/DMS/internal/testing"
)

const testPassword = "password123"

func TestMain(m *testing.M) {
	auth.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type testEnv struct {
	cfg       *am.Config
	srv       *Server
	users     *auth.Service
	documents *document.Service
	runner    *ingestion.Runner
	uploadDir string
	tokens    map[auth.Role]string
	ids       map[auth.Role]int64
}

func newTestEnv(t *testing.T, proc ingestion.Processor, configure ...func(*am.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()
	log := zaptest.NewLogger(t).Sugar()

	cfg := &am.Config{
		Server:  am.ServerConfig{AllowedOrigins: []string{"http://localhost:3000"}},
		Auth:    am.AuthConfig{SecretKey: "test-secret", AccessTokenExpiry: time.Hour, LoginRatePerMinute: 100},
		Storage: am.StorageConfig{UploadDir: filepath.Join(t.TempDir(), "uploads"), MaxUploadMB: 1},
	}
	for _, fn := range configure {
		fn(cfg)
	}

	conn := dmstest.CreateTestDB(t)
	jwt, err := auth.NewJWTManager(&cfg.Auth)
	require.NoError(t, err)
	users := auth.NewService(auth.NewStore(conn), jwt, log)
	docs := document.NewService(document.NewStore(conn),
		document.NewFileStorage(cfg.Storage.UploadDir, cfg.MaxUploadBytes()), log)

	if proc == nil {
		proc = ingestion.ProcessorFunc(func(context.Context, document.Document) error { return nil })
	}
	reg := prometheus.NewRegistry()
	runner := ingestion.NewRunner(docs, ingestion.NewSQLLogStore(conn), proc,
		ingestion.WithLogger(log), ingestion.WithMetrics(ingestion.NewMetrics(reg)))

	srv, err := New(Deps{Users: users, Documents: docs, Runner: runner, Gatherer: reg, Config: cfg, Logger: log})
	require.NoError(t, err)

	env := &testEnv{
		cfg: cfg, srv: srv, users: users, documents: docs, runner: runner,
		uploadDir: cfg.Storage.UploadDir,
		tokens:    map[auth.Role]string{},
		ids:       map[auth.Role]int64{},
	}
	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleEditor, auth.RoleViewer} {
		user, err := users.CreateUser(ctx, auth.UserCreate{
			Email:    string(role) + "@example.com",
			Password: testPassword,
			FullName: string(role),
			Role:     role,
		})
		require.NoError(t, err)
		token, err := users.IssueToken(user)
		require.NoError(t, err)
		env.tokens[role] = token.AccessToken
		env.ids[role] = user.ID
	}
	t.Cleanup(runner.Wait)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, role auth.Role, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+e.tokens[role])
	}
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func newRequest(method, path, token string) *http.Request {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(e *testEnv, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doJSON(t *testing.T, method, path string, role auth.Role, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	return e.do(t, method, path, role, r, "application/json")
}

// multipartBody builds a form with fields and an optional file part
func multipartBody(t *testing.T, fields map[string]string, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["detail"]
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestHandleRoot(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome to Document Management System API", decode[map[string]string](t, rec)["message"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.do(t, http.MethodGet, "/nope", "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "idle", body["ingestion"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/metrics", "", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "dms_ingestion_active")
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/documents", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	env.srv.SetAllowedOrigins([]string{"https://evil.example"})
	rec = httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "https://evil.example", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_StartStop(t *testing.T) {
	env := newTestEnv(t, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	served := make(chan error, 1)
	go func() { served <- env.srv.Serve(ln) }()

	require.Eventually(t, func() bool { return env.srv.State() == ServerStateRunning }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.srv.Stop(ctx))
	assert.NoError(t, <-served)
	assert.Equal(t, ServerStateStopped, env.srv.State())
}

func TestServer_StopWaitsForSweep(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	proc := ingestion.ProcessorFunc(func(context.Context, document.Document) error {
		entered <- struct{}{}
		<-release
		return nil
	})
	env := newTestEnv(t, proc)
	env.createDocument(t, auth.RoleEditor, "a.txt", []byte("a"))

	require.True(t, env.runner.Trigger(context.Background()))
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := env.srv.Stop(ctx)
	assert.Error(t, err, "stop must not return before the sweep finishes")

	close(release)
	env.runner.Wait()
	assert.False(t, env.runner.Status().IsProcessing)
}

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost", "https://app.example.com/"}
	assert.True(t, originAllowed("http://localhost", allowed))
	assert.True(t, originAllowed("http://localhost:3000", allowed))
	assert.True(t, originAllowed("https://app.example.com", allowed))
	assert.False(t, originAllowed("https://localhost:3000", allowed))
	assert.False(t, originAllowed("http://localhost.evil.com", allowed))
	assert.False(t, originAllowed("https://app.example.com.evil", allowed))
	assert.True(t, originAllowed("https://anything", []string{"*"}))
	assert.False(t, originAllowed("http://localhost", nil))
}
