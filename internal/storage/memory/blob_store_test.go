package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStoreKeepsIndependentCopies(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "page.html", "text/html", bytes.NewReader(payload))
	require.NoError(t, err)
	require.Equal(t, "memory://page.html", uri)

	payload[0] = 'C'
	obj, ok := store.Get("page.html")
	require.True(t, ok)
	require.Equal(t, "content", string(obj.Data))
	require.Equal(t, "text/html", obj.ContentType)

	obj.Data[0] = 'X'
	again, _ := store.Get("page.html")
	require.Equal(t, "content", string(again.Data))
}

func TestBlobStorePaths(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	for _, p := range []string{"b.json", "a.html", "b.html"} {
		_, err := store.PutObject(context.Background(), p, "", bytes.NewReader(nil))
		require.NoError(t, err)
	}
	require.Equal(t, []string{"a.html", "b.html", "b.json"}, store.Paths())

	_, ok := store.Get("missing")
	require.False(t, ok)
	_, err := store.PutObject(context.Background(), "", "", bytes.NewReader(nil))
	require.Error(t, err)
}
