package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/taskboard/apiserver/internal/auth"
	"github.com/taskboard/apiserver/internal/logging"
	"github.com/taskboard/apiserver/internal/services"
	"github.com/taskboard/apiserver/internal/storage"
	"github.com/taskboard/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

const testPassword = "correct horse"

type clock struct{ now time.Time }

func (c *clock) Now() time.Time { return c.now }

type testAPI struct {
	router      *chi.Mux
	clock       *clock
	tokens      *auth.TokenService
	user        types.User
	tasks       *memTasks
	attachments *memAttachments
	storage     *storage.Storage
}

// newTestAPI mounts the handlers the same way the server does, minus the
// access policy, which has its own tests.
func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)
	user := types.User{
		ID:           uuid.New(),
		Username:     "alice",
		Email:        "alice@example.com",
		FirstName:    "Alice",
		PasswordHash: string(hash),
		Active:       true,
	}

	local, err := storage.NewLocalClient(t.TempDir())
	require.NoError(t, err)
	blobs := storage.NewStorage(local)

	clk := &clock{now: time.Now().UTC().Truncate(time.Second)}
	tokens := auth.NewTokenService("test-secret", 24*time.Hour, auth.WithClock(clk.Now))
	log := logging.Discard()
	tasks := newMemTasks()
	atts := newMemAttachments()

	authSvc := services.NewAuthService(&memUsers{users: []types.User{user}}, tokens)
	taskSvc := services.NewTaskService(tasks, atts)
	attSvc := services.NewAttachmentService(atts, tasks, blobs, nil, log)
	attHandler := NewAttachmentHandler(attSvc, 1<<20, log)

	router := chi.NewRouter()
	router.Use(Authenticate(tokens, log))
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) { AuthRouter(r, authSvc, log) })
	router.Route("/tasks", func(r chi.Router) { TaskRouter(r, taskSvc, attHandler, true, log) })
	router.Route("/attachments", func(r chi.Router) { AttachmentRouter(r, attHandler) })
	router.Route("/debug", DebugRouter)

	return &testAPI{
		router:      router,
		clock:       clk,
		tokens:      tokens,
		user:        user,
		tasks:       tasks,
		attachments: atts,
		storage:     blobs,
	}
}

func (a *testAPI) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) doJSON(t *testing.T, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return a.do(t, method, path, body, map[string]string{"Content-Type": "application/json"})
}

func (a *testAPI) upload(t *testing.T, path, filename, contentType string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return a.do(t, http.MethodPost, path, &buf, map[string]string{"Content-Type": mw.FormDataContentType()})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
