package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestPutObjectUploadsUnderPrefix(t *testing.T) {
	t.Parallel()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/upload/storage/v1/b/captures/o")
		assert.Equal(t, "run-1/page.html", r.URL.Query().Get("name"))
		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), "<title>x</title>")
		fmt.Fprintln(w, `{"name":"run-1/page.html","bucket":"captures"}`)
	})
	server := httptest.NewServer(handler)
	defer server.Close()

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	store, err := New(client, Config{Bucket: "captures", Prefix: "/run-1/"})
	require.NoError(t, err)
	uri, err := store.PutObject(context.Background(), "page.html", "text/html", strings.NewReader("<title>x</title>"))
	require.NoError(t, err)
	require.Equal(t, "gs://captures/run-1/page.html", uri)
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer func() { _ = client.Close() }()
	_, err = New(client, Config{})
	require.Error(t, err)

	store, err := New(client, Config{Bucket: "b"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "", "", strings.NewReader(""))
	require.Error(t, err)
}
