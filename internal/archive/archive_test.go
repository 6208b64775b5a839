package archive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequiresEndpointAndBucket(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{Endpoint: "localhost:9000"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestKey(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	key := Key("user-1", "entry-1", "Day-1.pdf", at)

	assert.True(t, strings.HasPrefix(key, "user-1/entry-1/20240301T093000Z-"), key)
	assert.True(t, strings.HasSuffix(key, "-Day-1.pdf"), key)
	assert.NotEqual(t, key, Key("user-1", "entry-1", "Day-1.pdf", at))

	assert.True(t, strings.HasSuffix(Key("u", "e", "../../etc/passwd", at), "-passwd"))
	assert.True(t, strings.HasSuffix(Key("u", "e", "", at), "-entry"))
}

func TestPresignedURLIsOffline(t *testing.T) {
	store, err := New(Config{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "journal-archive"})
	require.NoError(t, err)

	link, err := store.PresignedURL(context.Background(), "u/e/Day-1.md")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/journal-archive/u/e/Day-1.md", u.Path)
	assert.Equal(t, "86400", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("response-content-disposition"), "Day-1.md")
}

// fakeS3 answers just enough of the S3 API for bucket checks and uploads.
func fakeS3(t *testing.T, bucketExists bool) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		switch {
		case r.Method == http.MethodHead && r.URL.Path == "/journal-archive/":
			if bucketExists {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case r.Method == http.MethodPut && r.URL.Path == "/journal-archive/":
			bucketExists = true
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotImplemented)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), calls...)
	}
}

func TestPutCreatesBucketAndUploads(t *testing.T) {
	srv, calls := fakeS3(t, false)
	store, err := New(Config{Endpoint: strings.TrimPrefix(srv.URL, "http://"), AccessKey: "ak", SecretKey: "sk", Bucket: "journal-archive"})
	require.NoError(t, err)
	fixed := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	obj, err := store.Put(context.Background(), "u/e/Day-1.md", []byte("# Day 1\n"), "text/markdown")
	require.NoError(t, err)

	assert.Equal(t, "journal-archive", obj.Bucket)
	assert.Equal(t, "u/e/Day-1.md", obj.Key)
	assert.Equal(t, fixed.Add(DefaultLinkTTL), obj.ExpiresAt)
	assert.Contains(t, obj.URL, "X-Amz-Signature")
	assert.Contains(t, calls(), "PUT /journal-archive/")
	assert.Contains(t, calls(), "PUT /journal-archive/u/e/Day-1.md")
}
