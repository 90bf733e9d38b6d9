package web

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/coreman2200/stripline/internal/engine"
)

type fakeSource struct {
	mu    sync.Mutex
	frame []byte
	seq   uint64
}

func (f *fakeSource) Latest(dst []byte) ([]byte, uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append(dst[:0], f.frame...), f.seq
}

func (f *fakeSource) Stats() engine.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return engine.Stats{Pixels: len(f.frame) / 3, Renderer: "rainbow", TargetFPS: 60, Frames: f.seq, Phase: 12}
}

func (f *fakeSource) publish(frame []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frame = frame
	f.seq++
}

func newServer(t *testing.T) (*Server, *bytes.Buffer) {
	t.Helper()
	var logs bytes.Buffer
	s := New(&fakeSource{frame: []byte{1, 2, 3}, seq: 1}, 814, zerolog.New(&logs))
	t.Cleanup(func() { s.Close() })
	return s, &logs
}

func TestGetReportsPixelCountOnAnyPath(t *testing.T) {
	s, _ := newServer(t)
	for _, path := range []string{"/", "/status", "/a/b/c?x=1"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
		assert.Contains(t, rec.Body.String(), "814", path)
		assert.Contains(t, rec.Body.String(), "rainbow")
		assert.Contains(t, rec.Body.String(), "#010203")
		assert.Equal(t, s.ID().String(), rec.Header().Get("X-Stripline-Instance"))
	}
}

func TestPostIsLogged(t *testing.T) {
	s, logs := newServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/anything", strings.NewReader("hello")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Contains(t, logs.String(), `"body":"hello"`)
	assert.Contains(t, logs.String(), `"path":"/anything"`)
}

func TestPostEmptyBody(t *testing.T) {
	s, logs := newServer(t)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, logs.String(), `"body":""`)
}

func TestPostLengthErrors(t *testing.T) {
	s, _ := newServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hello"))
	req.ContentLength = -1
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusLengthRequired, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hi"))
	req.ContentLength = 10
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("hi"))
	req.ContentLength = MaxBody + 1
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestOtherMethodsNotImplemented(t *testing.T) {
	s, _ := newServer(t)
	for _, m := range []string{http.MethodPut, http.MethodDelete, http.MethodPatch, http.MethodOptions, "BREW"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(m, "/", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code, m)
	}
}

func TestWebsocketStreamsFrames(t *testing.T) {
	defer goleak.VerifyNone(t)

	src := &fakeSource{frame: []byte{9, 8, 7}, seq: 1}
	s := New(src, 1, zerolog.Nop())
	s.StreamInterval = 5 * time.Millisecond
	ts := httptest.NewServer(s)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/frames", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	typ, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, typ)
	assert.Equal(t, []byte{9, 8, 7}, msg)

	src.publish([]byte{1, 1, 1})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1}, msg)

	// a repeat of the same bytes is still a new frame
	src.publish([]byte{1, 1, 1})
	_, msg, err = conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1, 1}, msg)

	require.NoError(t, s.Close())
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
}
