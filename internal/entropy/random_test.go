package entropy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeedFromRandomOrg(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","result":{"random":{"data":[1,2]}},"id":1}`))
	}))
	defer srv.Close()

	s := NewSource("key")
	s.endpoint = srv.URL
	assert.Equal(t, int64(1<<31|2), s.Seed(context.Background()))
}

func TestSeedFallsBackToCrypto(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"jsonrpc":"2.0","error":{"message":"quota"},"id":1}`))
	}))
	defer srv.Close()

	s := NewSource("key")
	s.endpoint = srv.URL
	assert.NotZero(t, s.Seed(context.Background()))

	var none *Source
	assert.Nil(t, NewSource(""))
	assert.NotZero(t, none.Seed(context.Background()))
	assert.Positive(t, CryptoSeed())
}
