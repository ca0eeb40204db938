package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidsafe/media"
	"vidsafe/users"
)

func streamRequest(rangeHeader string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/videos/v/stream", nil)
	if rangeHeader != "" {
		req.Header.Set("Range", rangeHeader)
	}
	return req
}

func TestStreamRanges(t *testing.T) {
	env := newTestEnv(t)
	ed := env.addUser(t, "ed", users.RoleEditor, "acme")
	content := make([]byte, 1000)
	for i := range content {
		content[i] = byte(i)
	}
	env.addVideo(t, "v", ed, media.StatusCompleted, content)
	cookie := env.login(t, "ed")

	rec := env.do(streamRequest("bytes=0-99"), cookie)
	require.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "bytes 0-99/1000", rec.Header().Get("Content-Range"))
	assert.Equal(t, "100", rec.Header().Get("Content-Length"))
	assert.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	assert.Equal(t, content[:100], rec.Body.Bytes())

	rec = env.do(streamRequest(""), cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "1000", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, content, rec.Body.Bytes())

	rec = env.do(streamRequest("bytes=900-100"), cookie)
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */1000", rec.Header().Get("Content-Range"))
	assert.Empty(t, rec.Body.Bytes())

	rec = env.do(streamRequest("bytes=oops"), cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, rec.Body.Bytes(), 1000)
}

func TestStreamHead(t *testing.T) {
	env := newTestEnv(t)
	ed := env.addUser(t, "ed", users.RoleEditor, "acme")
	env.addVideo(t, "v", ed, media.StatusCompleted, make([]byte, 50))

	req := httptest.NewRequest(http.MethodHead, "/api/videos/v/stream", nil)
	rec := env.do(req, env.login(t, "ed"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "50", rec.Header().Get("Content-Length"))
	assert.Empty(t, rec.Body.Bytes())
}

func TestStreamRequiresCompleted(t *testing.T) {
	env := newTestEnv(t)
	ed := env.addUser(t, "ed", users.RoleEditor, "acme")
	env.addVideo(t, "v", ed, media.StatusProcessing, mp4Header)

	rec := env.do(streamRequest("bytes=0-1"), env.login(t, "ed"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStreamMissingFile(t *testing.T) {
	env := newTestEnv(t)
	ed := env.addUser(t, "ed", users.RoleEditor, "acme")
	video := env.addVideo(t, "v", ed, media.StatusCompleted, mp4Header)
	require.NoError(t, os.Remove(video.Filepath))

	rec := env.do(streamRequest(""), env.login(t, "ed"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStreamHonoursVisibility(t *testing.T) {
	env := newTestEnv(t)
	ed := env.addUser(t, "ed", users.RoleEditor, "acme")
	env.addUser(t, "oscar", users.RoleEditor, "globex")
	env.addVideo(t, "v", ed, media.StatusCompleted, mp4Header)

	rec := env.do(streamRequest(""), env.login(t, "oscar"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
