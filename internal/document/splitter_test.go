package document

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/pdfslicer/internal/imagerender"
	"github.com/local/pdfslicer/internal/pdftest"
	"github.com/local/pdfslicer/internal/storage"
)

func TestSplitProducesOrderedPages(t *testing.T) {
	src := pdftest.MustGenerate(4)

	pages, err := Split(context.Background(), src)
	require.NoError(t, err)
	require.Len(t, pages, 4)

	for i, p := range pages {
		assert.Equal(t, i, p.Index)
		assert.NotEmpty(t, p.Preview)
		assert.NotEmpty(t, p.Document)
		assert.Greater(t, p.Width, 0)
		assert.Greater(t, p.Height, 0)
	}
}

func TestSplitSinglePageRoundTrip(t *testing.T) {
	pages, err := Split(context.Background(), pdftest.MustGenerate(3))
	require.NoError(t, err)

	for i, p := range pages {
		n, err := imagerender.PageCount(p.Document)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = PageCount(p.Document)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		text, err := pdftest.PageText(p.Document, 0)
		require.NoError(t, err)
		assert.Contains(t, text, pdftest.Label(i))
	}
}

func TestSplitDoesNotAliasInput(t *testing.T) {
	src := pdftest.MustGenerate(2)
	orig := append([]byte(nil), src...)

	pages, err := Split(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, orig, src)

	for i := range src {
		src[i] = 0
	}
	n, err := PageCount(pages[1].Document)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSplitEmptyInput(t *testing.T) {
	pages, err := Split(context.Background(), nil)
	assert.Nil(t, pages)
	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, -1, le.Page)
	assert.True(t, IsLoadError(err))
}

func TestSplitNonPDF(t *testing.T) {
	_, err := Split(context.Background(), []byte("just some text"))
	assert.True(t, IsLoadError(err))
}

func TestSplitTruncatedPDF(t *testing.T) {
	src := pdftest.MustGenerate(2)
	_, err := Split(context.Background(), src[:40])
	assert.True(t, IsLoadError(err))
}

func TestSplitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	pages, err := Split(ctx, pdftest.MustGenerate(2))
	assert.Nil(t, pages)
	assert.True(t, IsLoadError(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetchFileAndHTTP(t *testing.T) {
	src := pdftest.MustGenerate(1)
	path := filepath.Join(t.TempDir(), "in.pdf")
	require.NoError(t, os.WriteFile(path, src, 0o644))

	b, err := Fetch(context.Background(), "file://"+path, FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, src, b)

	_, err = Fetch(context.Background(), path, FetchOptions{MaxBytes: 10})
	assert.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(src)
	}))
	defer srv.Close()

	b, err = Fetch(context.Background(), srv.URL+"/doc.pdf", FetchOptions{})
	require.NoError(t, err)
	assert.Equal(t, src, b)

	_, err = Fetch(context.Background(), srv.URL+"/missing", FetchOptions{})
	assert.Error(t, err)
}

func TestFetchS3OpensEncryptedExports(t *testing.T) {
	src := pdftest.MustGenerate(1)
	sealed, err := storage.EncryptGCM(src, "pw")
	require.NoError(t, err)

	objects := map[string][]byte{
		"/exports/doc/page_1.pdf": sealed,
		"/exports/plain.pdf":      src,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write(b)
	}))
	defer srv.Close()

	cli := s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	})
	ctx := context.Background()

	b, err := Fetch(ctx, "s3://exports/doc/page_1.pdf", FetchOptions{S3: cli, Password: "pw"})
	require.NoError(t, err)
	assert.Equal(t, src, b)

	b, err = Fetch(ctx, "s3://exports/plain.pdf", FetchOptions{S3: cli})
	require.NoError(t, err)
	assert.Equal(t, src, b)

	_, err = Fetch(ctx, "s3://exports/doc/page_1.pdf", FetchOptions{S3: cli, Password: "wrong"})
	assert.Error(t, err)

	_, err = Fetch(ctx, "s3://exports/plain.pdf", FetchOptions{S3: cli, MaxBytes: 10})
	assert.Error(t, err)

	_, err = Fetch(ctx, "s3://exports/", FetchOptions{S3: cli})
	assert.Error(t, err)
}
