package router

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tagbox/internal/db"
	"tagbox/internal/gallery"
	"tagbox/internal/models"
	"tagbox/internal/search"
	"tagbox/internal/security"
	"tagbox/internal/storage"
)

type testServer struct {
	handler http.Handler
	auth    *security.Provider
	db      *db.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	database, err := db.Init("sqlite3", filepath.Join(dir, "router.sqlite3"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	blobs, err := storage.NewFSStore(filepath.Join(dir, "images"))
	require.NoError(t, err)
	g := gallery.New(database, blobs, nil)
	auth := security.NewProvider(database, security.NewSessionStore(), security.Options{BcryptCost: bcrypt.MinCost})

	h := Setup(Deps{
		DB:       database,
		Gallery:  g,
		Searcher: search.NewSearcher(g, 12),
		Auth:     auth,
		Cookies:  security.NewCookieTransport([]byte("test-secret-test-secret-test-sec"), time.Hour, false),
	})
	return &testServer{handler: h, auth: auth, db: database}
}

// client keeps the session cookie between requests.
type client struct {
	t      *testing.T
	srv    *testServer
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.srv.handler.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == security.TokenCookie {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) json(method, url string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	return c.do(httptest.NewRequest(method, url, &buf))
}

func (c *client) login(username, password string) *httptest.ResponseRecorder {
	return c.json(http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
}

func (c *client) upload(tags string) *httptest.ResponseRecorder {
	return c.uploadAs("image/png", tags)
}

// uploadAs sends a PNG while declaring contentType for the file part.
func (c *client) uploadAs(contentType, tags string) *httptest.ResponseRecorder {
	var img bytes.Buffer
	require.NoError(c.t, png.Encode(&img, image.NewGray(image.Rect(0, 0, 8, 8))))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image_file"; filename="a.png"`)
	header.Set("Content-Type", contentType)
	part, err := mw.CreatePart(header)
	require.NoError(c.t, err)
	part.Write(img.Bytes())
	mw.WriteField("tags", tags)
	mw.WriteField("summary", "a test image")
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func addUser(t *testing.T, srv *testServer, username, password string, rights ...models.Right) {
	t.Helper()
	user := models.NewUser(username, rights...)
	require.NoError(t, srv.auth.SetPassword(context.Background(), user, password))
}

func TestLoginMeLogout(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "jen", "pw", models.RightUser)
	c := &client{t: t, srv: srv}

	w := c.login("jen", "nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = c.login("jen", "pw")
	require.Equal(t, http.StatusOK, w.Code)

	var me models.UserView
	w = c.json(http.MethodGet, "/api/me", nil)
	decode(t, w, &me)
	assert.Equal(t, "jen", me.Username)

	w = c.json(http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = c.json(http.MethodGet, "/api/me", nil)
	decode(t, w, &me)
	assert.Equal(t, "guest", me.Username)
}

func TestPasswordResetIsEnforced(t *testing.T) {
	srv := newTestServer(t)
	password, err := srv.auth.EnsureAdmin(context.Background())
	require.NoError(t, err)
	c := &client{t: t, srv: srv}

	require.Equal(t, http.StatusOK, c.login("admin", password).Code)

	w := c.json(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = c.json(http.MethodPost, "/api/change_password", map[string]string{
		"old_password": password, "new_password": "fresh", "confirm_password": "fresh",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = c.json(http.MethodGet, "/api/admin/users", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuestSeesOnlyPublicImages(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "admin", "pw", models.RightAdmin)
	admin := &client{t: t, srv: srv}
	guest := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, admin.login("admin", "pw").Code)

	w := guest.upload(`["x"]`)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = admin.upload(`["x"]`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var img models.ImageView
	decode(t, w, &img)
	assert.Equal(t, []string{"user:admin", "x"}, img.Tags)

	var res searchResult
	decode(t, guest.json(http.MethodGet, "/api/search?query=x", nil), &res)
	assert.Equal(t, 0, res.Total)

	w = guest.json(http.MethodGet, "/images/"+img.Filename, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = admin.json(http.MethodPut, "/api/images/"+img.ID, map[string]any{"tags": []string{"x", "public"}})
	require.Equal(t, http.StatusOK, w.Code)

	decode(t, guest.json(http.MethodGet, "/api/search?query=x", nil), &res)
	assert.Equal(t, 1, res.Total)

	w = guest.json(http.MethodGet, "/images/mini/"+img.Filename, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = admin.json(http.MethodDelete, "/api/images/"+img.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = admin.json(http.MethodGet, "/api/images/"+img.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type searchResult struct {
	Total int `json:"total"`
}

func TestUploadRejectsUnsupportedMedia(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "up", "pw", models.RightUser, models.RightUpload)
	c := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, c.login("up", "pw").Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="image_file"; filename="a.zip"`)
	header.Set("Content-Type", "application/zip")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	part.Write([]byte("PK\x03\x04"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/images", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := c.do(req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestEditRequiresOwnership(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "owner", "pw", models.RightUser, models.RightUpload)
	addUser(t, srv, "other", "pw", models.RightUser, models.RightUpload)
	owner := &client{t: t, srv: srv}
	other := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, owner.login("owner", "pw").Code)
	require.Equal(t, http.StatusOK, other.login("other", "pw").Code)

	w := owner.upload("cats dogs")
	require.Equal(t, http.StatusCreated, w.Code)
	var img models.ImageView
	decode(t, w, &img)

	w = other.json(http.MethodPut, "/api/images/"+img.ID, map[string]any{"tags": []string{"mine"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = owner.json(http.MethodPut, "/api/images/"+img.ID, map[string]any{"tags": []string{"birds"}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &img)
	assert.Equal(t, []string{"birds", "user:owner"}, img.Tags)

	w = owner.json(http.MethodDelete, "/api/images/"+img.ID, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminManagesUsers(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "admin", "pw", models.RightAdmin)
	c := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, c.login("admin", "pw").Code)

	w := c.json(http.MethodPost, "/api/admin/users", map[string]any{"username": "newbie", "rights": []string{"user"}})
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	decode(t, w, &created)
	assert.NotEmpty(t, created["password"])

	w = c.json(http.MethodPost, "/api/admin/users", map[string]any{"username": "newbie"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = c.json(http.MethodPost, "/api/admin/users", map[string]any{"username": "guest", "rights": []string{"USER"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = c.json(http.MethodPut, "/api/admin/users/newbie/rights", map[string]any{"rights": []string{"USER", "UPLOAD"}})
	require.Equal(t, http.StatusOK, w.Code)
	var view models.UserView
	decode(t, w, &view)
	assert.Equal(t, []models.Right{models.RightUpload, models.RightUser}, view.Rights)
	assert.Equal(t, []models.Attribute{models.AttrPasswordResetRequired}, view.Attributes)

	w = c.json(http.MethodPut, "/api/admin/users/ghost/rights", map[string]any{"rights": []string{}})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestOwnershipTagsCannotBeForged(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "owner", "pw", models.RightUser, models.RightUpload)
	addUser(t, srv, "other", "pw", models.RightUser, models.RightUpload)
	owner := &client{t: t, srv: srv}
	other := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, owner.login("owner", "pw").Code)
	require.Equal(t, http.StatusOK, other.login("other", "pw").Code)

	w := owner.upload("x user:other")
	require.Equal(t, http.StatusCreated, w.Code)
	var img models.ImageView
	decode(t, w, &img)
	assert.Equal(t, []string{"user:owner", "x"}, img.Tags)

	w = owner.json(http.MethodPut, "/api/images/"+img.ID, map[string]any{"tags": []string{"cats", "user:other"}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &img)
	assert.Equal(t, []string{"cats", "user:owner"}, img.Tags)

	w = other.json(http.MethodPut, "/api/images/"+img.ID, map[string]any{"tags": []string{"hijacked"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUploadTrustsContentOverDeclaredType(t *testing.T) {
	srv := newTestServer(t)
	addUser(t, srv, "up", "pw", models.RightUser, models.RightUpload)
	c := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, c.login("up", "pw").Code)

	w := c.uploadAs("image/jpeg", "x")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var img models.ImageView
	decode(t, w, &img)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, img.ID+".png", img.Filename)
}

func TestChangePasswordNeedsOnlyALogin(t *testing.T) {
	srv := newTestServer(t)
	password, err := srv.auth.CreateUser(context.Background(), "uploader", "", models.RightUpload)
	require.NoError(t, err)

	guest := &client{t: t, srv: srv}
	w := guest.json(http.MethodPost, "/api/change_password", map[string]string{
		"old_password": "x", "new_password": "y", "confirm_password": "y",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	c := &client{t: t, srv: srv}
	require.Equal(t, http.StatusOK, c.login("uploader", password).Code)
	w = c.json(http.MethodPost, "/api/change_password", map[string]string{
		"old_password": password, "new_password": "fresh", "confirm_password": "fresh",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var me models.UserView
	decode(t, c.json(http.MethodGet, "/api/me", nil), &me)
	assert.Empty(t, me.Attributes)
}
