package handlers

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agjmills/drive/internal/auth"
	"github.com/agjmills/drive/internal/config"
	"github.com/agjmills/drive/internal/files"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (app *testApp) upload(t *testing.T, token, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/user/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(&http.Cookie{Name: auth.TokenCookie, Value: token})
	rec := httptest.NewRecorder()
	app.router.ServeHTTP(rec, req)
	return rec
}

func TestFileRoutes_RequireAuth(t *testing.T) {
	app := newTestApp(t)

	for _, path := range []string{"/home", "/user/file/abc.txt", "/user/file/drive-uploads/abc.txt"} {
		rec := app.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestUpload_ListAndStream(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "gina", "gina@example.com", strongPassword, "")
	token := app.tokenFor(t, user)

	rec := app.upload(t, token, "Report.PDF", "%PDF-1.4 content")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var record files.Record
	decodeBody(t, rec, &record)
	assert.True(t, strings.HasPrefix(record.StorageKey, "drive-uploads/"))
	assert.True(t, strings.HasSuffix(record.StorageKey, ".pdf"))
	assert.Equal(t, "Report.PDF", record.OriginalName)
	assert.True(t, app.provider.Exists(record.StorageKey))

	rec = app.do(t, http.MethodGet, "/home", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var home HomeResponse
	decodeBody(t, rec, &home)
	assert.Equal(t, "gina", home.User.Username)
	require.Len(t, home.Files, 1)
	assert.Equal(t, record.StorageKey, home.Files[0].StorageKey)

	// No public URL configured: content streams through the app.
	rec = app.do(t, http.MethodGet, "/user/file/"+record.StorageKey, nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 content", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))

	bare := strings.TrimPrefix(record.StorageKey, "drive-uploads/")
	rec = app.do(t, http.MethodGet, "/user/file/"+bare, nil, token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpload_Rejections(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.MaxUploadSize = 64 })
	user := app.createUser(t, "hank", "hank@example.com", strongPassword, "")
	token := app.tokenFor(t, user)

	rec := app.upload(t, token, "big.bin", strings.Repeat("x", 1024))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, app.provider.FileCount())

	rec = app.do(t, http.MethodPost, "/user/upload", map[string]string{"file": "nope"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServe_RedirectsToPublicURL(t *testing.T) {
	app := newTestApp(t, func(c *config.Config) { c.StoragePublicURL = "https://cdn.example.com" })
	user := app.createUser(t, "ivy", "ivy@example.com", strongPassword, "")
	token := app.tokenFor(t, user)
	app.setFiles(t, user, `[
		"drive-uploads/legacy-doc",
		{"publicId": "drive-uploads/photo1", "originalname": "Holiday.JPG"},
		{"filename": "drive-uploads/clip", "originalName": "clip.mp4", "cloudinaryUrl": "https://old.example.com/clip.mp4"}
	]`)

	tests := []struct {
		path     string
		location string
	}{
		{"/user/file/legacy-doc", "https://cdn.example.com/raw/upload/drive-uploads/legacy-doc"},
		{"/user/file/drive-uploads/photo1", "https://cdn.example.com/image/upload/drive-uploads/photo1"},
		{"/user/file/clip", "https://old.example.com/clip.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := app.do(t, http.MethodGet, tt.path, nil, token)
			require.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.location, rec.Header().Get("Location"))
		})
	}

	rec := app.do(t, http.MethodGet, "/user/file/missing", nil, token)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServe_OtherUsersFilesAreNotFound(t *testing.T) {
	app := newTestApp(t)
	owner := app.createUser(t, "jack", "jack@example.com", strongPassword, "")
	other := app.createUser(t, "jill", "jill@example.com", strongPassword, "")

	rec := app.upload(t, app.tokenFor(t, owner), "secret.txt", "owner only")
	require.Equal(t, http.StatusCreated, rec.Code)
	var record files.Record
	decodeBody(t, rec, &record)

	rec = app.do(t, http.MethodGet, "/user/file/"+record.StorageKey, nil, app.tokenFor(t, other))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteFile(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "kate", "kate@example.com", strongPassword, "")
	token := app.tokenFor(t, user)

	rec := app.upload(t, token, "a.txt", "aaa")
	require.Equal(t, http.StatusCreated, rec.Code)
	var record files.Record
	decodeBody(t, rec, &record)

	rec = app.do(t, http.MethodPost, "/user/delete-file", map[string]string{"filename": ""}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = app.do(t, http.MethodPost, "/user/delete-file", map[string]string{"filename": "drive-uploads"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, app.provider.Exists(record.StorageKey))

	rec = app.do(t, http.MethodPost, "/user/delete-file", map[string]string{"filename": record.StorageKey}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var result files.DeleteResult
	decodeBody(t, rec, &result)
	assert.True(t, result.LocalRemoved)
	assert.Equal(t, files.RemoteRemoved, result.Remote)
	assert.False(t, app.provider.Exists(record.StorageKey))

	rec = app.do(t, http.MethodPost, "/user/delete-file", map[string]string{"filename": record.StorageKey}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &result)
	assert.False(t, result.LocalRemoved)
	assert.Equal(t, files.RemoteSkipped, result.Remote)
}

func TestDeleteFile_RemoteFailureKeepsLocalRemoval(t *testing.T) {
	app := newTestApp(t)
	user := app.createUser(t, "liam", "liam@example.com", strongPassword, "")
	token := app.tokenFor(t, user)

	rec := app.upload(t, token, "b.txt", "bbb")
	require.Equal(t, http.StatusCreated, rec.Code)
	var record files.Record
	decodeBody(t, rec, &record)

	app.provider.FailDestroy = errors.New("provider unavailable")
	rec = app.do(t, http.MethodPost, "/user/delete-file", map[string]string{"filename": record.StorageKey}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var result files.DeleteResult
	decodeBody(t, rec, &result)
	assert.True(t, result.LocalRemoved)
	assert.Equal(t, files.RemoteFailed, result.Remote)
	assert.NotContains(t, rec.Body.String(), "provider unavailable")

	rec = app.do(t, http.MethodGet, "/home", nil, token)
	var home HomeResponse
	decodeBody(t, rec, &home)
	assert.Empty(t, home.Files)
}
