// Package settlement turns a facilitator-built payment into a signed
// settlement and submits it.
package settlement

import (
	"context"
	"net/http"
	"time"

	"github.com/vitwit/qwery/clients"
	"github.com/vitwit/qwery/logger"
	"github.com/vitwit/qwery/metrics"
	"github.com/vitwit/qwery/signer"
	"github.com/vitwit/qwery/transaction"
	"github.com/vitwit/qwery/types"
	"github.com/vitwit/qwery/utils"
)

// Settler submits signed payments.
type Settler interface {
	Settle(ctx context.Context, req *types.SettleRequest) (*types.SettleResponse, error)
}

// SettlementService signs payment envelopes and settles them through the
// facilitator.
type SettlementService struct {
	transport clients.Transport
	network   types.Network
	timeout   time.Duration
	logger    logger.Logger
	metrics   metrics.Recorder
}

var _ Settler = (*SettlementService)(nil)

// NewSettlementService creates a settlement service. A zero timeout leaves
// the caller's context deadline as the only bound.
func NewSettlementService(
	transport clients.Transport,
	network types.Network,
	timeout time.Duration,
	log logger.Logger,
	rec metrics.Recorder,
) *SettlementService {
	return &SettlementService{
		transport: transport,
		network:   network,
		timeout:   timeout,
		logger:    logger.OrNoop(log),
		metrics:   metrics.OrNoop(rec),
	}
}

// Prepare decodes the payment's transaction, adds kp's signature and
// re-encodes it. It performs no I/O and leaves payment untouched.
func (s *SettlementService) Prepare(payment *types.PaymentResponse, kp signer.Keypair) (*types.SettleRequest, error) {
	if payment == nil {
		return nil, &types.QweryError{Code: types.ErrInvalidRequest, Message: "payment is required"}
	}

	tx, err := transaction.Decode(payment.Transaction)
	if err != nil {
		return nil, err
	}
	signed, err := signer.Sign(tx, kp)
	if err != nil {
		return nil, err
	}
	encoded, err := transaction.Encode(signed)
	if err != nil {
		return nil, err
	}

	return &types.SettleRequest{
		PaymentID:         payment.PaymentID,
		SignedTransaction: encoded,
	}, nil
}

// SignAndSettle signs payment with kp and settles it. Decoding and signing
// failures are reported before any request is made.
func (s *SettlementService) SignAndSettle(
	ctx context.Context,
	payment *types.PaymentResponse,
	kp signer.Keypair,
) (_ *types.SettleResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(s.metrics, metrics.OpSignAndSettle, start, err, s.labels())
	}()

	req, err := s.Prepare(payment, kp)
	if err != nil {
		var paymentID string
		if payment != nil {
			paymentID = payment.PaymentID
		}
		s.logger.Error("payment signing failed", map[string]any{
			"payment_id": paymentID,
			"code":       types.CodeOf(err),
			"error":      err,
		})
		return nil, err
	}
	return s.Settle(ctx, req)
}

// Settle submits a signed transaction. Settling is not idempotent: on a
// network error, including a timeout, the payment may or may not have been
// settled, and the caller should verify before resubmitting.
func (s *SettlementService) Settle(ctx context.Context, req *types.SettleRequest) (_ *types.SettleResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(s.metrics, metrics.OpSettlePayment, start, err, s.labels())
	}()

	if req == nil {
		return nil, &types.QweryError{Code: types.ErrInvalidRequest, Message: "settle request is required"}
	}
	if err := utils.ValidateStruct(req, types.ErrInvalidRequest); err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	var resp types.SettleResponse
	err = clients.Call(ctx, s.transport, clients.Request{
		Method:        http.MethodPost,
		Path:          clients.PathSettlePayment,
		Body:          req,
		Authenticated: true,
	}, &resp)
	if err != nil {
		s.logger.Warn("settlement request failed", map[string]any{
			"payment_id": req.PaymentID,
			"code":       types.CodeOf(err),
			"error":      err,
		})
		return nil, err
	}

	fields := map[string]any{
		"payment_id": req.PaymentID,
		"status":     resp.Status,
	}
	if !resp.Success {
		if resp.Error != nil {
			fields["reason"] = *resp.Error
		}
		s.metrics.IncCounter(metrics.OpSettlePayment+"_declined", s.labels())
		s.logger.Warn("facilitator declined settlement", fields)
		return &resp, nil
	}
	s.logger.Info("payment settled", fields)
	return &resp, nil
}

func (s *SettlementService) labels() map[string]string {
	return map[string]string{"network": s.network.String()}
}
