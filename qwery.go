// Package qwery is a client for the Qwery payment facilitator. The
// facilitator builds Solana payment transactions; this client signs them
// locally and hands them back for settlement, so private keys never leave
// the caller.
package qwery

import (
	"context"
	"net/http"
	"time"

	"github.com/vitwit/qwery/clients"
	"github.com/vitwit/qwery/logger"
	"github.com/vitwit/qwery/metrics"
	"github.com/vitwit/qwery/settlement"
	"github.com/vitwit/qwery/signer"
	"github.com/vitwit/qwery/types"
	"github.com/vitwit/qwery/utils"
	"github.com/vitwit/qwery/verification"
)

// Version information
const (
	Version         = "1.0.0"
	ProtocolVersion = 1
)

// Client is a facilitator client bound to one network. It is immutable after
// New and safe for concurrent use.
type Client struct {
	config    types.ClientConfig
	transport clients.Transport

	settlementService   *settlement.SettlementService
	verificationService *verification.VerificationService

	logger  logger.Logger
	metrics metrics.Recorder
}

// New validates config and builds a client. Invalid configuration is
// reported as a CONFIG_ERROR.
func New(config types.ClientConfig, opts ...Option) (*Client, error) {
	o := options{
		timeout:          config.Timeout,
		batchConcurrency: verification.DefaultBatchConcurrency,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout == 0 {
		o.timeout = types.DefaultTimeout
	}
	config.Timeout = o.timeout

	if err := utils.ValidateConfig(&config); err != nil {
		return nil, err
	}

	if o.logger == nil {
		o.logger = logger.NoopLogger{}
		if config.LogLevel != "" {
			zl, err := logger.NewZapLogger(config.LogLevel)
			if err != nil {
				return nil, types.NewError(types.ErrConfigError, "cannot create logger", err)
			}
			o.logger = zl
		}
	}

	if o.metrics == nil {
		o.metrics = metrics.NoopRecorder{}
		if config.EnableMetrics {
			rec, err := metrics.NewPrometheusRecorder(o.registerer)
			if err != nil {
				return nil, types.NewError(types.ErrConfigError, "cannot register metrics", err)
			}
			o.metrics = rec
		}
	}

	if o.transport == nil {
		o.transport = clients.NewHTTPTransport(config.FacilitatorURL, config.APIKey, config.Timeout, o.httpClient, o.logger)
	}

	vs := verification.NewVerificationService(o.transport, config.Network, config.Timeout, o.logger, o.metrics)
	vs.SetConcurrency(o.batchConcurrency)

	c := &Client{
		config:              config,
		transport:           o.transport,
		settlementService:   settlement.NewSettlementService(o.transport, config.Network, config.Timeout, o.logger, o.metrics),
		verificationService: vs,
		logger:              o.logger,
		metrics:             o.metrics,
	}

	c.logger.Debug("client created", map[string]any{
		"facilitator": config.FacilitatorURL,
		"network":     config.Network.String(),
		"timeout":     config.Timeout.String(),
	})
	return c, nil
}

// NewWithNetwork builds a client for the public facilitator on network.
func NewWithNetwork(network types.Network, opts ...Option) (*Client, error) {
	config := types.DefaultConfig()
	config.Network = network
	return New(config, opts...)
}

// Config returns a copy of the client configuration.
func (c *Client) Config() types.ClientConfig {
	return c.config
}

// CreatePayment asks the facilitator to build a payment transaction. The
// request is validated locally first; nothing is sent if it is invalid.
func (c *Client) CreatePayment(ctx context.Context, req types.PaymentRequest) (_ *types.PaymentResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(c.metrics, metrics.OpCreatePayment, start, err, c.labels())
	}()

	if err := utils.ValidatePaymentRequest(&req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var resp types.PaymentResponse
	err = clients.Call(ctx, c.transport, clients.Request{
		Method: http.MethodPost,
		Path:   clients.PathCreatePayment,
		Body: types.CreatePaymentRequest{
			Amount:    req.Amount,
			Token:     req.Token,
			Recipient: req.Recipient,
			Network:   c.config.Network.String(),
			Metadata:  req.Metadata,
		},
		Authenticated: true,
	}, &resp)
	if err != nil {
		c.logger.Warn("create payment failed", map[string]any{
			"token": req.Token,
			"code":  types.CodeOf(err),
			"error": err,
		})
		return nil, err
	}

	c.logger.Info("payment created", map[string]any{
		"payment_id": resp.PaymentID,
		"amount":     resp.Amount.String(),
		"token":      resp.Token,
	})
	return &resp, nil
}

// SignAndSettle signs the payment's transaction with kp and submits it. The
// payment envelope is not modified. See SettlePayment for the meaning of a
// network error.
func (c *Client) SignAndSettle(ctx context.Context, payment *types.PaymentResponse, kp signer.Keypair) (*types.SettleResponse, error) {
	return c.settlementService.SignAndSettle(ctx, payment, kp)
}

// PrepareSettlement signs the payment's transaction without sending it.
func (c *Client) PrepareSettlement(payment *types.PaymentResponse, kp signer.Keypair) (*types.SettleRequest, error) {
	return c.settlementService.Prepare(payment, kp)
}

// SettlePayment submits an already signed transaction. It is not safe to
// retry blindly: after a NETWORK_ERROR the settlement may have happened, so
// check with VerifyPayment first.
func (c *Client) SettlePayment(ctx context.Context, req types.SettleRequest) (*types.SettleResponse, error) {
	return c.settlementService.Settle(ctx, &req)
}

// VerifyPayment reports the on-chain status of a settlement signature.
func (c *Client) VerifyPayment(ctx context.Context, signature string) (*types.VerifyResponse, error) {
	return c.verificationService.Verify(ctx, signature)
}

// BatchVerify verifies several signatures concurrently, returning results in
// input order.
func (c *Client) BatchVerify(ctx context.Context, signatures []string) ([]*types.VerifyResponse, error) {
	return c.verificationService.BatchVerify(ctx, signatures)
}

// Health fetches the facilitator status. It is not authenticated.
func (c *Client) Health(ctx context.Context) (_ *types.HealthResponse, err error) {
	start := time.Now()
	defer func() {
		metrics.Observe(c.metrics, metrics.OpHealth, start, err, c.labels())
	}()

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var resp types.HealthResponse
	err = clients.Call(ctx, c.transport, clients.Request{
		Method: http.MethodGet,
		Path:   clients.PathHealth,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Close releases idle connections held by the default transport.
func (c *Client) Close() {
	if t, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		t.CloseIdleConnections()
	}
}

func (c *Client) labels() map[string]string {
	return map[string]string{"network": c.config.Network.String()}
}
