// Package verification queries the facilitator for the on-chain state of
// settled transactions.
package verification

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vitwit/qwery/clients"
	"github.com/vitwit/qwery/logger"
	"github.com/vitwit/qwery/metrics"
	"github.com/vitwit/qwery/types"
)

// DefaultBatchConcurrency bounds the number of verify calls BatchVerify keeps
// in flight.
const DefaultBatchConcurrency = 8

// Verifier reports the status of a settled transaction.
type Verifier interface {
	Verify(ctx context.Context, signature string) (*types.VerifyResponse, error)
}

// VerificationService verifies signatures on one network. Verification is
// read-only: repeating it has no side effects.
type VerificationService struct {
	transport   clients.Transport
	network     types.Network
	timeout     time.Duration
	concurrency int
	logger      logger.Logger
	metrics     metrics.Recorder
}

var _ Verifier = (*VerificationService)(nil)

// NewVerificationService creates a verification service.
func NewVerificationService(
	transport clients.Transport,
	network types.Network,
	timeout time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *VerificationService {
	return &VerificationService{
		transport:   transport,
		network:     network,
		timeout:     timeout,
		concurrency: DefaultBatchConcurrency,
		logger:      logger.OrNoop(log),
		metrics:     metrics.OrNoop(rec),
	}
}

// Verify asks the facilitator about signature on the service's network.
func (s *VerificationService) Verify(ctx context.Context, signature string) (_ *types.VerifyResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(s.metrics, metrics.OpVerifyPayment, start, err, s.labels())
	}()

	if strings.TrimSpace(signature) == "" {
		return nil, &types.QweryError{Code: types.ErrInvalidRequest, Message: "signature is required"}
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var resp types.VerifyResponse
	err = clients.Call(ctx, s.transport, clients.Request{
		Method: http.MethodPost,
		Path:   clients.PathVerifyPayment,
		Body: types.VerifyRequest{
			Signature: signature,
			Network:   s.network.String(),
		},
		Authenticated: true,
	}, &resp)
	if err != nil {
		s.logger.Warn("verification request failed", map[string]any{
			"signature": signature,
			"code":      types.CodeOf(err),
			"error":     err,
		})
		return nil, err
	}

	s.logger.Debug("payment verified", map[string]any{
		"signature": signature,
		"verified":  resp.Verified,
		"status":    resp.Status,
	})
	return &resp, nil
}

// BatchVerify verifies signatures concurrently. Results are in input order.
// The first failure cancels the remaining calls and is returned.
func (s *VerificationService) BatchVerify(ctx context.Context, signatures []string) ([]*types.VerifyResponse, error) {
	if len(signatures) == 0 {
		return nil, &types.QweryError{Code: types.ErrInvalidRequest, Message: "no signatures to verify"}
	}

	results := make([]*types.VerifyResponse, len(signatures))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, sig := range signatures {
		i, sig := i, sig
		g.Go(func() error {
			resp, err := s.Verify(gctx, sig)
			if err != nil {
				return err
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SetConcurrency changes the BatchVerify limit. Values below one are ignored.
func (s *VerificationService) SetConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *VerificationService) labels() map[string]string {
	return map[string]string{"network": s.network.String()}
}
