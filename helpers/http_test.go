package helpers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	apperrors "sjsage522/bidnoticeworker/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"
)

func newTestClient(t *testing.T) *http.Client {
	client, err := NewHTTPClient(5*time.Second, "")
	require.NoError(t, err)
	return client
}

func TestFetchWithRandomHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check that headers are set
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("Accept"))
		assert.Contains(t, r.Header.Get("Accept-Language"), "ko-KR")
		assert.NotEmpty(t, r.Header.Get("Referer"))

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("<html><body>입찰공고 목록</body></html>"))
	}))
	defer server.Close()

	page, err := FetchWithRandomHeaders(context.Background(), newTestClient(t), server.URL+"/list")
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "입찰공고 목록")
	assert.Equal(t, server.URL+"/list", page.FinalURL)
}

func TestFetchWithRandomHeadersEUCKR(t *testing.T) {
	encoded, err := korean.EUCKR.NewEncoder().Bytes([]byte("<html><body>공사 입찰</body></html>"))
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		w.WriteHeader(http.StatusOK)
		w.Write(encoded)
	}))
	defer server.Close()

	page, err := FetchWithRandomHeaders(context.Background(), newTestClient(t), server.URL)
	require.NoError(t, err)
	assert.Contains(t, string(page.Body), "공사 입찰")
}

func TestFetchWithRandomHeadersError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := FetchWithRandomHeaders(context.Background(), newTestClient(t), server.URL)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status code: 500")

	// Test with rate limiting
	serverRateLimited := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer serverRateLimited.Close()

	_, err = FetchWithRandomHeaders(context.Background(), newTestClient(t), serverRateLimited.URL)
	assert.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeRateLimit))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestFetchWithRandomHeadersCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := FetchWithRandomHeaders(ctx, newTestClient(t), server.URL)
	assert.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNetwork))
}

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML([]byte("<!DOCTYPE html><html><head></head><body>...</body></html>")))
	assert.False(t, LooksLikeHTML([]byte(`{"response":{"header":{"resultCode":"00","resultMsg":"OK"}}}`)))
	assert.False(t, LooksLikeHTML([]byte("<html>")))
}

func TestNewHTTPClientInvalidProxy(t *testing.T) {
	_, err := NewHTTPClient(time.Second, "://bad")
	assert.Error(t, err)
}
