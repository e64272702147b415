package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ganesh7742/ShareTheCode/internal/hub"
	"github.com/Ganesh7742/ShareTheCode/internal/session"
	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

type fixture struct {
	doc    *session.Store
	hub    *hub.Hub
	server *Server
	ts     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doc := session.New(0)
	h := hub.New(hub.Options{BaseURL: "http://share.test"}, doc, snapshot.NewMemoryStore(0), nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	s := NewServer(h, "http://share.test", slog.Default())
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &fixture{doc: doc, hub: h, server: s, ts: ts}
}

func (f *fixture) request(t *testing.T, method, path string, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.ts.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestSnapshotLifecycle(t *testing.T) {
	f := newFixture(t)
	f.doc.SetDocument("hello")

	resp, body := f.request(t, http.MethodPost, "/snapshot", `{"name":"v1","username":"alice"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		URL     string `json:"url"`
		Creator string `json:"creator"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "v1", created.Name)
	assert.Equal(t, "http://share.test/s/"+created.ID, created.URL)
	assert.Equal(t, "alice", created.Creator)

	resp, body = f.request(t, http.MethodGet, "/snapshot/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		ID   string `json:"id"`
		Code string `json:"code"`
		Name string `json:"name"`
	}
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, created.ID, got.ID)
	assert.Equal(t, "hello", got.Code)
	assert.Equal(t, "v1", got.Name)

	// The copy is immutable: later document edits do not leak into it.
	f.doc.SetDocument("changed")
	_, body = f.request(t, http.MethodGet, "/snapshot/"+created.ID, "")
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "hello", got.Code)

	resp, body = f.request(t, http.MethodDelete, "/snapshot/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"success":true}`, string(body))

	// Second delete and subsequent get both report not found.
	resp, body = f.request(t, http.MethodDelete, "/snapshot/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Not found"}`, string(body))

	resp, _ = f.request(t, http.MethodGet, "/snapshot/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSnapshotDefaults(t *testing.T) {
	f := newFixture(t)

	resp, body := f.request(t, http.MethodPost, "/snapshot", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Creator string `json:"creator"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Snapshot "+created.ID, created.Name)
	assert.Empty(t, created.Creator)
}

func TestCreateSnapshotMalformedBody(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.request(t, http.MethodPost, "/snapshot", `{"name":`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestViewerPageEscapesContent(t *testing.T) {
	f := newFixture(t)
	f.doc.SetDocument(`<script>alert("pwned")</script>`)

	_, body := f.request(t, http.MethodPost, "/snapshot", `{"name":"evil"}`)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	resp, page := f.request(t, http.MethodGet, "/s/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	assert.NotContains(t, string(page), "<script>alert")
	assert.Contains(t, string(page), "&lt;script&gt;alert(&#34;pwned&#34;)&lt;/script&gt;")
}

func TestViewerPageNotFound(t *testing.T) {
	f := newFixture(t)

	resp, page := f.request(t, http.MethodGet, "/s/missing", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(page), "Snapshot not found")
}

func TestViewerGolden(t *testing.T) {
	s := NewServer(nil, "http://share.test", slog.Default())
	sn := snapshot.Snapshot{
		ID:        "abc123defg",
		Name:      "v1",
		Creator:   "alice",
		Code:      "<script>alert('x&y')</script>",
		CreatedAt: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	rec := httptest.NewRecorder()
	s.renderViewer(rec, sn)
	buf.Write(rec.Body.Bytes())

	g := goldie.New(t)
	g.Assert(t, "viewer", buf.Bytes())
}

// The end-to-end scenario: an update flows to the other client, a snapshot of
// it gets a share link, and the viewer page embeds the escaped text.
func TestShareScenario(t *testing.T) {
	f := newFixture(t)

	f.doc.SetDocument("hello")

	resp, body := f.request(t, http.MethodPost, "/snapshot", `{"name":"v1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "v1", created.Name)
	assert.Equal(t, fmt.Sprintf("http://share.test/s/%s", created.ID), created.URL)

	resp, page := f.request(t, http.MethodGet, "/s/"+created.ID, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(page), "hello")
	assert.Contains(t, string(page), "v1")
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	resp, _ := f.request(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
