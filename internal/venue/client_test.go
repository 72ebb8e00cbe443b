package venue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ReleaseReserves(t *testing.T) {
	var got releaseRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/release", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.ReleaseReserves(context.Background(), "mint-1", 1000, 2000)

	require.NoError(t, err)
	assert.Equal(t, "mint-1", got.Mint)
	assert.Equal(t, uint64(1000), got.BaseAmount)
	assert.Equal(t, uint64(2000), got.QuoteAmount)
}

func TestClient_CreatePool(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/pools", r.URL.Path)
		json.NewEncoder(w).Encode(createPoolResponse{PoolID: "pool-42"})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	poolID, err := client.CreatePool(context.Background(), "mint-1", 1000, 2000)

	require.NoError(t, err)
	assert.Equal(t, "pool-42", poolID)
}

func TestClient_CreatePool_EmptyPoolID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(createPoolResponse{})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.CreatePool(context.Background(), "mint-1", 1000, 2000)

	require.Error(t, err)
}

func TestClient_ErrorStatusSurfacesDetail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient funding balance", http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	err := client.ReleaseReserves(context.Background(), "mint-1", 1000, 2000)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "409")
	assert.Contains(t, err.Error(), "insufficient funding balance")
}
