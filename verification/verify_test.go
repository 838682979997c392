package verification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/qwery/clients"
	"github.com/vitwit/qwery/types"
)

func newVerifyServer(t *testing.T, handler func(req types.VerifyRequest, w http.ResponseWriter)) (*VerificationService, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != clients.PathVerifyPayment || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		var req types.VerifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler(req, w)
	}))
	t.Cleanup(srv.Close)

	tr := clients.NewHTTPTransport(srv.URL, "k", time.Second, nil, nil)
	return NewVerificationService(tr, types.NetworkMainnet, time.Second, nil, nil), &calls
}

func confirmed(req types.VerifyRequest, w http.ResponseWriter) {
	if req.Network != "solana" {
		http.Error(w, "wrong network", http.StatusBadRequest)
		return
	}
	_, _ = fmt.Fprintf(w, `{"verified":true,"status":"confirmed","confirmations":%d}`, len(req.Signature))
}

func TestVerify(t *testing.T) {
	svc, calls := newVerifyServer(t, confirmed)

	resp, err := svc.Verify(context.Background(), "abc")
	require.NoError(t, err)
	assert.True(t, resp.Verified)
	assert.Equal(t, types.StatusConfirmed, resp.Status)
	require.NotNil(t, resp.Confirmations)
	assert.Equal(t, uint64(3), *resp.Confirmations)
	assert.Equal(t, int32(1), calls.Load())
}

func TestVerifyIsRepeatable(t *testing.T) {
	svc, calls := newVerifyServer(t, confirmed)

	first, err := svc.Verify(context.Background(), "abc")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := svc.Verify(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
	assert.Equal(t, int32(6), calls.Load())
}

func TestVerifyErrors(t *testing.T) {
	t.Run("empty signature", func(t *testing.T) {
		svc, calls := newVerifyServer(t, confirmed)
		_, err := svc.Verify(context.Background(), "  ")
		assert.ErrorIs(t, err, types.ErrInvalidReq)
		assert.Zero(t, calls.Load())
	})

	t.Run("unknown signature", func(t *testing.T) {
		svc, _ := newVerifyServer(t, func(_ types.VerifyRequest, w http.ResponseWriter) {
			http.Error(w, "signature not found", http.StatusNotFound)
		})
		_, err := svc.Verify(context.Background(), "abc")

		var qe *types.QweryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, types.ErrAPIError, qe.Code)
		assert.Equal(t, http.StatusNotFound, qe.StatusCode)
		assert.Equal(t, "signature not found\n", qe.Body)
	})
}

func TestBatchVerify(t *testing.T) {
	svc, calls := newVerifyServer(t, confirmed)
	svc.SetConcurrency(2)

	sigs := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results, err := svc.BatchVerify(context.Background(), sigs)
	require.NoError(t, err)
	require.Len(t, results, len(sigs))
	for i, r := range results {
		require.NotNil(t, r.Confirmations)
		assert.Equal(t, uint64(len(sigs[i])), *r.Confirmations, "result %d out of order", i)
	}
	assert.Equal(t, int32(len(sigs)), calls.Load())

	_, err = svc.BatchVerify(context.Background(), nil)
	assert.ErrorIs(t, err, types.ErrInvalidReq)
}

func TestBatchVerifyFirstErrorWins(t *testing.T) {
	svc, _ := newVerifyServer(t, func(req types.VerifyRequest, w http.ResponseWriter) {
		if req.Signature == "bad" {
			http.Error(w, "nope", http.StatusBadRequest)
			return
		}
		confirmed(req, w)
	})

	results, err := svc.BatchVerify(context.Background(), []string{"a", "bad", "c"})
	assert.Nil(t, results)
	assert.ErrorIs(t, err, types.ErrAPI)
}
