package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"connect-service/controller"
	"connect-service/database/dbtest"
	"connect-service/graph"
	"connect-service/media"
	"connect-service/messenger"
	"connect-service/model"
	"connect-service/profile"
	"connect-service/push"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testSecret = []byte("test-access-key")

type envelope struct {
	Status  string          `json:"status"`
	Message *string         `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type api struct {
	t        *testing.T
	app      *fiber.App
	registry *push.Registry
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db := dbtest.Open(t)
	for _, u := range []model.User{
		{ID: "alice", Email: "alice@x.io", FullName: "Alice Moreau", Username: "alice"},
		{ID: "bob", Email: "bob@x.io", FullName: "Bob Okafor", Username: "bob"},
	} {
		u := u
		require.NoError(t, db.Create(&u).Error)
	}

	log := zaptest.NewLogger(t)
	clock := dbtest.NewClock()
	profiles := profile.NewGormReader(db)
	registry := push.NewRegistry(push.Options{Log: log})
	messages := messenger.NewGormStore(db)
	blobs := media.NewDatabaseStore(db, "/v1/messenger/media")

	h := &controller.Handler{
		Dispatcher: messenger.NewDispatcher(messenger.Options{
			Store:     messages,
			Publisher: registry,
			Profiles:  profiles,
			Log:       log,
			Now:       clock.Now,
		}),
		Aggregator: messenger.NewAggregator(messages, profiles, log),
		Negotiator: graph.NewNegotiator(graph.Options{
			Store:        graph.NewGormStore(db),
			Profiles:     profiles,
			Log:          log,
			Now:          clock.Now,
			RequestLimit: 1,
		}),
		Registry: registry,
		Profiles: profiles,
		Media:    blobs,
		Blobs:    blobs,
		Log:      log,
	}

	app := fiber.New(fiber.Config{StrictRouting: true})
	Rest(app, h, testSecret, nil)
	return &api{t: t, app: app, registry: registry}
}

func token(t *testing.T, id string, otp bool) string {
	t.Helper()
	claims := jwt.MapClaims{
		"id":  id,
		"otp": otp,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func (a *api) do(req *http.Request, user string) (*http.Response, envelope) {
	a.t.Helper()
	if user != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(a.t, user, false))
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(a.t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	var env envelope
	if strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(a.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func (a *api) call(method, path, user string, body any) (*http.Response, envelope) {
	a.t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return a.do(req, user)
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v), string(env.Data))
	return v
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	resp, env := a.call(http.MethodGet, "/v1/messenger/conversations", "", nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", env.Status)

	req := httptest.NewRequest(http.MethodGet, "/v1/messenger/conversations", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	resp, _ = a.do(req, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/v1/messenger/conversations", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(t, "alice", true))
	resp, _ = a.do(req, "")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/v1/messenger/conversations?token="+token(t, "alice", false), nil)
	resp, env = a.do(req, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "success", env.Status)
}

func TestMessagingFlow(t *testing.T) {
	a := newAPI(t)
	ch := a.registry.Register("bob")

	resp, env := a.call(http.MethodPost, "/v1/messenger/send", "alice", fiber.Map{"to_user_id": "bob", "text": "hello"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(env.Data))
	sent := decode[messenger.MessageView](t, env)
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, "Alice Moreau", sent.FromUser.FullName)
	assert.Len(t, ch.Events(), 1)

	resp, env = a.call(http.MethodPost, "/v1/messenger/send", "alice", fiber.Map{"to_user_id": "bob", "text": "  "})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "error", env.Status)

	_, env = a.call(http.MethodGet, "/v1/messenger/conversations", "bob", nil)
	summaries := decode[[]messenger.ConversationSummary](t, env)
	require.Len(t, summaries, 1)
	assert.Equal(t, "alice", summaries[0].PartnerID)
	assert.Equal(t, 1, summaries[0].UnreadCount)

	_, env = a.call(http.MethodGet, "/v1/messenger/history/alice", "bob", nil)
	history := decode[[]messenger.MessageView](t, env)
	require.Len(t, history, 1)
	assert.True(t, history[0].Seen)

	_, env = a.call(http.MethodGet, "/v1/messenger/conversations", "bob", nil)
	summaries = decode[[]messenger.ConversationSummary](t, env)
	assert.Equal(t, 0, summaries[0].UnreadCount)

	resp, env = a.call(http.MethodPost, "/v1/messenger/delete", "bob", fiber.Map{"message_id": sent.ID})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.NotNil(t, env.Message)
	assert.Equal(t, "Only the sender can delete this message", *env.Message)

	resp, _ = a.call(http.MethodPost, "/v1/messenger/delete", "alice", fiber.Map{"message_id": sent.ID})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = a.call(http.MethodPost, "/v1/messenger/delete", "alice", fiber.Map{"message_id": sent.ID})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSendImage(t *testing.T) {
	a := newAPI(t)

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("to_user_id", "bob"))
	require.NoError(t, w.WriteField("text", "sunset"))
	part, err := w.CreateFormFile("file", "sunset.png")
	require.NoError(t, err)
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/messenger/send", &body)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	resp, env := a.do(req, "alice")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(env.Data))

	sent := decode[messenger.MessageView](t, env)
	assert.Equal(t, model.MediaImage, sent.MediaKind)
	assert.Equal(t, "sunset", sent.Text)
	require.True(t, strings.HasPrefix(sent.MediaURL, "/v1/messenger/media/"), sent.MediaURL)

	resp, err = a.app.Test(httptest.NewRequest(http.MethodGet, sent.MediaURL, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get(fiber.HeaderContentType))
	got, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, png, got)
}

func TestConnectionFlow(t *testing.T) {
	a := newAPI(t)

	resp, env := a.call(http.MethodPost, "/v1/connections/request", "alice", fiber.Map{"id": "bob"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(env.Data))
	req := decode[model.ConnectionRequest](t, env)
	assert.Equal(t, model.RequestPending, req.Status)

	// The test negotiator allows one pending request per sender.
	resp, env = a.call(http.MethodPost, "/v1/connections/request", "alice", fiber.Map{"id": "carol"})
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
	limited := decode[map[string]time.Time](t, env)
	assert.True(t, limited["retry_at"].Equal(req.CreatedAt.Add(graph.DefaultRequestWindow)))

	resp, _ = a.call(http.MethodPost, "/v1/connections/request", "bob", fiber.Map{"id": "alice"})
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, _ = a.call(http.MethodPost, "/v1/connections/accept", "alice", fiber.Map{"id": req.ID})
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)

	resp, _ = a.call(http.MethodPost, "/v1/connections/accept", "bob", fiber.Map{"id": req.ID})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	_, env = a.call(http.MethodGet, "/v1/connections", "alice", nil)
	g := decode[graph.ConnectionGraph](t, env)
	require.Len(t, g.Connections, 1)
	assert.Equal(t, "bob", g.Connections[0].ID)

	resp, _ = a.call(http.MethodPost, "/v1/connections/disconnect", "bob", fiber.Map{"id": "alice"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	resp, _ = a.call(http.MethodPost, "/v1/connections/disconnect", "bob", fiber.Map{"id": "alice"})
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = a.call(http.MethodPost, "/v1/connections/follow", "bob", fiber.Map{"id": "alice"})
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	_, env = a.call(http.MethodGet, "/v1/connections", "alice", nil)
	g = decode[graph.ConnectionGraph](t, env)
	require.Len(t, g.Followers, 1)
	assert.Equal(t, "Bob Okafor", g.Followers[0].FullName)

	resp, _ = a.call(http.MethodPost, "/v1/connections/follow", "bob", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndProfile(t *testing.T) {
	a := newAPI(t)
	a.registry.Register("bob")

	resp, env := a.call(http.MethodGet, "/health", "", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"online":1}`, string(env.Data))

	_, env = a.call(http.MethodGet, "/v1/user/profile", "alice", nil)
	p := decode[model.PublicProfile](t, env)
	assert.Equal(t, "Alice Moreau", p.FullName)
}
