package server

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringRoundTrip(t *testing.T) {
	var got string
	set := SetString(func(s string) error { got = s; return nil })
	w := httptest.NewRecorder()
	set(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"str":"yaml"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "yaml", got)

	w = httptest.NewRecorder()
	GetString(func() (string, error) { return got, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"str":"yaml"}`, w.Body.String())

	w = httptest.NewRecorder()
	set(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"str":`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBool(t *testing.T) {
	on := false
	w := httptest.NewRecorder()
	SetBool(func(b bool) error { on = b; return nil })(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"bool":true}`)))
	assert.True(t, on)

	w = httptest.NewRecorder()
	GetBool(func() (bool, error) { return on, nil })(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.JSONEq(t, `{"bool":true}`, w.Body.String())
}

func TestReplyWithFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yml"), []byte("rows: 1\n"), 0644))

	w := httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/", nil), "a.yml", dir)
	assert.Equal(t, "rows: 1\n", w.Body.String())

	w = httptest.NewRecorder()
	ReplyWithFile(w, httptest.NewRequest(http.MethodGet, "/", nil), "b.yml", dir)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListRoutes(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/frame", func(http.ResponseWriter, *http.Request) {})
	r.Post("/cancel", func(http.ResponseWriter, *http.Request) {})
	assert.Equal(t, []string{"GET /frame", "POST /cancel"}, ListRoutes(r))
}
