package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/storeit/dashboard/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOneMap serves the token and search endpoints and counts calls.
type fakeOneMap struct {
	authCalls   atomic.Int32
	searchCalls atomic.Int32
	expiry      int64
	rejectFirst atomic.Bool
	searchCode  int
}

func (f *fakeOneMap) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/post/getToken", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body tokenRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ops@example.com", body.Email)

		n := f.authCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"access_token":"token-%d","expiry_timestamp":"%d"}`, n, f.expiry)
	})
	mux.HandleFunc("/api/common/elastic/search", func(w http.ResponseWriter, r *http.Request) {
		f.searchCalls.Add(1)
		if f.rejectFirst.CompareAndSwap(true, false) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if f.searchCode != 0 {
			w.WriteHeader(f.searchCode)
			return
		}
		assert.Contains(t, r.Header.Get("Authorization"), "Bearer token-")
		assert.Equal(t, "Y", r.URL.Query().Get("returnGeom"))
		assert.Equal(t, "Y", r.URL.Query().Get("getAddrDetails"))
		assert.Equal(t, "1", r.URL.Query().Get("pageNum"))

		w.Header().Set("Content-Type", "application/json")
		switch postal := r.URL.Query().Get("searchVal"); postal {
		case "000000":
			io.WriteString(w, `{"found":0,"totalNumPages":0,"pageNum":1,"results":[]}`)
		default:
			fmt.Fprintf(w, `{"found":1,"results":[{"SEARCHVAL":"X","ADDRESS":"1 TEST ROAD SINGAPORE %s","POSTAL":"%s"}]}`, postal, postal)
		}
	})
	return mux
}

func newFakeOneMap(t *testing.T, expiry time.Time) (*fakeOneMap, *httptest.Server) {
	t.Helper()
	fake := &fakeOneMap{expiry: expiry.Unix()}
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)
	return fake, server
}

func quietLogger() *logger.Logger {
	return logger.NewWithWriter(io.Discard, zerolog.Disabled)
}

func TestTokenManager_ReusesTokenUntilExpiry(t *testing.T) {
	expiry := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	fake, server := newFakeOneMap(t, expiry)

	tm := NewTokenManager(server.Client(), server.URL, "ops@example.com", "pw")
	now := expiry.Add(-time.Hour)
	tm.now = func() time.Time { return now }

	token, err := tm.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)

	token, err = tm.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", token)
	assert.Equal(t, int32(1), fake.authCalls.Load())

	// At the expiry instant the token is treated as expired.
	now = expiry
	token, err = tm.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
	assert.Equal(t, int32(2), fake.authCalls.Load())
}

func TestTokenManager_Invalidate(t *testing.T) {
	fake, server := newFakeOneMap(t, time.Now().Add(time.Hour))
	tm := NewTokenManager(server.Client(), server.URL, "ops@example.com", "pw")

	_, err := tm.Token(context.Background())
	require.NoError(t, err)
	tm.Invalidate()
	_, err = tm.Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), fake.authCalls.Load())
}

func TestTokenManager_NoCredentials(t *testing.T) {
	tm := NewTokenManager(http.DefaultClient, "http://unused", "", "")
	_, err := tm.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestTokenManager_AuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	tm := NewTokenManager(server.Client(), server.URL, "ops@example.com", "bad")
	_, err := tm.Token(context.Background())
	assert.ErrorContains(t, err, "unexpected status 403")
}

func TestUnixSeconds_AcceptsNumberAndString(t *testing.T) {
	var tr tokenResponse
	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","expiry_timestamp":1735732800}`), &tr))
	assert.Equal(t, unixSeconds(1735732800), tr.ExpiryTimestamp)

	require.NoError(t, json.Unmarshal([]byte(`{"access_token":"a","expiry_timestamp":"1735732800"}`), &tr))
	assert.Equal(t, unixSeconds(1735732800), tr.ExpiryTimestamp)

	assert.Error(t, json.Unmarshal([]byte(`{"expiry_timestamp":"soon"}`), &tr))
}

func TestClient_SearchPostal(t *testing.T) {
	_, server := newFakeOneMap(t, time.Now().Add(time.Hour))
	client := NewClient(server.URL, "ops@example.com", "pw", 2*time.Second)

	results, err := client.SearchPostal(context.Background(), "018956")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "1 TEST ROAD SINGAPORE 018956", results[0].Address)

	results, err = client.SearchPostal(context.Background(), "000000")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestClient_SearchPostal_RetriesAfterUnauthorized(t *testing.T) {
	fake, server := newFakeOneMap(t, time.Now().Add(time.Hour))
	fake.rejectFirst.Store(true)
	client := NewClient(server.URL, "ops@example.com", "pw", 2*time.Second)

	results, err := client.SearchPostal(context.Background(), "123456")
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, int32(2), fake.authCalls.Load())
	assert.Equal(t, int32(2), fake.searchCalls.Load())
}

func TestClient_SearchPostal_ServerError(t *testing.T) {
	fake, server := newFakeOneMap(t, time.Now().Add(time.Hour))
	fake.searchCode = http.StatusBadGateway
	client := NewClient(server.URL, "ops@example.com", "pw", 2*time.Second)

	_, err := client.SearchPostal(context.Background(), "123456")
	assert.ErrorContains(t, err, "unexpected status 502")
}

// stubSearcher answers from a table and counts lookups per postal code.
type stubSearcher struct {
	mu        sync.Mutex
	calls     map[string]int
	addresses map[string]string
	failures  map[string]error
}

func newStubSearcher() *stubSearcher {
	return &stubSearcher{
		calls:     make(map[string]int),
		addresses: make(map[string]string),
		failures:  make(map[string]error),
	}
}

func (s *stubSearcher) SearchPostal(ctx context.Context, postalCode string) ([]Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[postalCode]++
	if err, ok := s.failures[postalCode]; ok {
		return nil, err
	}
	if address, ok := s.addresses[postalCode]; ok {
		return []Result{{Address: address, Postal: postalCode}, {Address: "ignored"}}, nil
	}
	return []Result{}, nil
}

func (s *stubSearcher) callCount(postalCode string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[postalCode]
}

func TestResolver_AddressCachesHits(t *testing.T) {
	stub := newStubSearcher()
	stub.addresses["018956"] = "10 BAYFRONT AVENUE"
	resolver := NewResolver(stub, 2, quietLogger())

	for i := 0; i < 3; i++ {
		address, ok := resolver.Address(context.Background(), "018956")
		assert.True(t, ok)
		assert.Equal(t, "10 BAYFRONT AVENUE", address)
	}
	assert.Equal(t, 1, stub.callCount("018956"))
}

func TestResolver_AddressDegradesOnFailure(t *testing.T) {
	stub := newStubSearcher()
	stub.failures["111111"] = errors.New("connection reset")
	resolver := NewResolver(stub, 2, quietLogger())

	address, ok := resolver.Address(context.Background(), "111111")
	assert.False(t, ok)
	assert.Empty(t, address)

	_, ok = resolver.Address(context.Background(), "222222")
	assert.False(t, ok, "empty result set means no address")

	_, ok = resolver.Address(context.Background(), "  ")
	assert.False(t, ok)

	// Misses are retried on the next call.
	resolver.Address(context.Background(), "111111")
	assert.Equal(t, 2, stub.callCount("111111"))
}

func TestResolver_AddressesDedupes(t *testing.T) {
	stub := newStubSearcher()
	stub.addresses["100001"] = "A ROAD"
	stub.addresses["100002"] = "B ROAD"
	stub.failures["100003"] = errors.New("timeout")
	resolver := NewResolver(stub, 3, quietLogger())

	addresses := resolver.Addresses(context.Background(),
		[]string{"100001", "100002", "100001", "100003", "", "100002"})

	assert.Equal(t, map[string]string{"100001": "A ROAD", "100002": "B ROAD"}, addresses)
	assert.Equal(t, 1, stub.callCount("100001"))
	assert.Equal(t, 1, stub.callCount("100002"))
	assert.Equal(t, 1, stub.callCount("100003"))
}

func TestResolver_AddressesEmpty(t *testing.T) {
	resolver := NewResolver(newStubSearcher(), 0, quietLogger())
	assert.Empty(t, resolver.Addresses(context.Background(), nil))
}
