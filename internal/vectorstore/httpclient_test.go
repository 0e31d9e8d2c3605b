package vectorstore

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-ai/ragdesk/pkg/types"
)

func TestHTTPClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/collections/wiki_docs/points/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"id":"doc-1","score":0.91,"payload":{"title":"Reset VPN","url":"https://wiki/1","text_snippet":"steps..."}}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{URL: server.URL})
	hits, err := client.Search(t.Context(), "wiki_docs", types.Vector{0.1, 0.2}, 5, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc-1", hits[0].DocID)
	assert.Equal(t, 0.91, hits[0].Score)
	assert.Equal(t, "Reset VPN", hits[0].Payload.Title)
}

func TestHTTPClient_Search_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{URL: server.URL})
	_, err := client.Search(t.Context(), "wiki_docs", types.Vector{0.1}, 5, nil)
	require.Error(t, err)
}

func TestHTTPClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPConfig{URL: server.URL})
	assert.NoError(t, client.Ping(t.Context()))
}

func TestHTTPClient_Ping_Unreachable(t *testing.T) {
	client := NewHTTPClient(HTTPConfig{URL: "http://127.0.0.1:1"})
	assert.Error(t, client.Ping(t.Context()))
}
