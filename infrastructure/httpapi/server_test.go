package httpapi

import (
	"bytes"
	"chat-relay/auth"
	"chat-relay/repositories"
	"chat-relay/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

type apiFixture struct {
	mux    *http.ServeMux
	repo   repositories.MessageRepository
	issuer auth.TokenIssuer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, db.Close())
	})

	log := slog.Default()
	repo := repositories.NewMessageRepository(db, log)
	issuer := auth.NewTokenIssuer("test-secret", time.Hour)
	authService := services.NewAuthService(repositories.NewUserRepository(db), issuer)
	handler := NewHandler(log, repo, authService, issuer)
	return &apiFixture{mux: handler.Routes(), repo: repo, issuer: issuer}
}

func (f *apiFixture) request(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.mux.ServeHTTP(recorder, req)
	return recorder
}

func (f *apiFixture) token(t *testing.T) string {
	t.Helper()
	token, err := f.issuer.Generate("user-1", "Alice")
	require.NoError(t, err)
	return token
}

func TestAPI_RegisterThenLogin(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// When a user registers
	resp := f.request(t, http.MethodPost, "/api/auth/register", map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "Str0ngPassw0rd!",
	}, "")
	req.Equal(http.StatusCreated, resp.Code)

	// Then logging in yields a token
	resp = f.request(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "alice@example.com",
		"password": "Str0ngPassw0rd!",
	}, "")
	req.Equal(http.StatusOK, resp.Code)

	var body map[string]string
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &body))
	req.NotEmpty(body["token"])
}

func TestAPI_Register_Conflict(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	payload := map[string]string{
		"email":    "alice@example.com",
		"name":     "Alice",
		"password": "Str0ngPassw0rd!",
	}

	resp := f.request(t, http.MethodPost, "/api/auth/register", payload, "")
	req.Equal(http.StatusCreated, resp.Code)

	resp = f.request(t, http.MethodPost, "/api/auth/register", payload, "")
	req.Equal(http.StatusConflict, resp.Code)
}

func TestAPI_Login_BadCredentials(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email":    "nobody@example.com",
		"password": "Wr0ngPassword!!",
	}, "")

	req.Equal(http.StatusUnauthorized, resp.Code)
}

func TestAPI_MessageRoutesRequireToken(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	// Without a token
	resp := f.request(t, http.MethodGet, "/api/messages/room/general", nil, "")
	req.Equal(http.StatusUnauthorized, resp.Code)

	// With a token signed by someone else
	stranger := auth.NewTokenIssuer("other-secret", time.Hour)
	forged, err := stranger.Generate("user-1", "Alice")
	req.NoError(err)
	resp = f.request(t, http.MethodGet, "/api/messages/room/general", nil, forged)
	req.Equal(http.StatusUnauthorized, resp.Code)
}

func TestAPI_RoomMessages(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.repo.CreateMessage(ctx, "alice", "general", "hello")
	req.NoError(err)
	_, err = f.repo.CreateMessage(ctx, "bob", "general", "hi back")
	req.NoError(err)

	resp := f.request(t, http.MethodGet, "/api/messages/room/general", nil, f.token(t))
	req.Equal(http.StatusOK, resp.Code)

	var messages []messageResponse
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &messages))
	req.Len(messages, 2)
	req.Equal("hello", messages[0].Text)
	req.Equal("hi back", messages[1].Text)
}

func TestAPI_UnreadAndMarkRead(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	ctx := context.Background()

	_, err := f.repo.CreateMessage(ctx, "alice", "general", "unread")
	req.NoError(err)

	// Bob has one unread message
	resp := f.request(t, http.MethodGet, "/api/messages/unread/bob", nil, f.token(t))
	req.Equal(http.StatusOK, resp.Code)
	var messages []messageResponse
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &messages))
	req.Len(messages, 1)

	// When he marks the room read
	resp = f.request(t, http.MethodPut, "/api/messages/mark-read", map[string]string{
		"roomId": "general",
		"userId": "bob",
	}, f.token(t))
	req.Equal(http.StatusOK, resp.Code)
	var result map[string]any
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &result))
	req.EqualValues(1, result["updated"])

	// Then his backlog is empty
	resp = f.request(t, http.MethodGet, "/api/messages/unread/bob", nil, f.token(t))
	req.NoError(json.Unmarshal(resp.Body.Bytes(), &messages))
	req.Empty(messages)
}

func TestAPI_MarkRead_MissingFields(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)

	resp := f.request(t, http.MethodPut, "/api/messages/mark-read", map[string]string{
		"roomId": "general",
	}, f.token(t))

	req.Equal(http.StatusBadRequest, resp.Code)
}

func TestAPI_DeleteMessage(t *testing.T) {
	req := require.New(t)
	f := newAPIFixture(t)
	ctx := context.Background()

	created, err := f.repo.CreateMessage(ctx, "alice", "general", "oops")
	req.NoError(err)

	resp := f.request(t, http.MethodDelete, "/api/messages/"+created.ID.String(), nil, f.token(t))
	req.Equal(http.StatusOK, resp.Code)

	// Deleting it again is a 404
	resp = f.request(t, http.MethodDelete, "/api/messages/"+created.ID.String(), nil, f.token(t))
	req.Equal(http.StatusNotFound, resp.Code)

	// Garbage ids are a 400
	resp = f.request(t, http.MethodDelete, "/api/messages/not-a-uuid", nil, f.token(t))
	req.Equal(http.StatusBadRequest, resp.Code)
}
