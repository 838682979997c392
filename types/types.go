package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFacilitatorURL is the public Qwery facilitator.
const DefaultFacilitatorURL = "https://facilitator.qwery.xyz"

// DefaultTimeout bounds every facilitator call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Payment lifecycle status strings reported by the facilitator.
const (
	StatusPending   = "pending"
	StatusSettled   = "settled"
	StatusFailed    = "failed"
	StatusConfirmed = "confirmed"
)

// PaymentState is the client-side view of a payment's lifecycle. It is never
// persisted; the facilitator is the source of truth.
type PaymentState string

const (
	PaymentCreated PaymentState = "CREATED"
	PaymentSettled PaymentState = "SETTLED"
	PaymentFailed  PaymentState = "FAILED"
)

// Amount is a decimal token amount. It is sent as a bare JSON number and
// accepts either a number or a string when decoding.
type Amount struct {
	decimal.Decimal
}

// NewAmount parses a decimal string such as "0.01".
func NewAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{d}, nil
}

// MustAmount is NewAmount for constants; it panics on malformed input.
func MustAmount(s string) Amount {
	a, err := NewAmount(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AmountFromFloat converts a float amount, e.g. 0.01.
func AmountFromFloat(f float64) Amount {
	return Amount{decimal.NewFromFloat(f)}
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	return a.Decimal.UnmarshalJSON(data)
}

// ClientConfig configures a facilitator client. It is copied at construction
// and never mutated afterwards.
type ClientConfig struct {
	// FacilitatorURL is the base endpoint, without trailing slash.
	FacilitatorURL string `json:"facilitatorUrl" validate:"required,url,startswith=http"`

	Network Network `json:"network" validate:"required"`

	// APIKey is sent as a bearer token on payments/* calls when set.
	APIKey string `json:"apiKey,omitempty"`

	// Timeout bounds each facilitator call. Zero means DefaultTimeout.
	Timeout time.Duration `json:"timeout,omitempty" validate:"gte=0"`

	// LogLevel enables zap logging at the given level when no logger option
	// is supplied. Empty disables logging.
	LogLevel string `json:"logLevel,omitempty" validate:"omitempty,oneof=debug info warn error"`

	EnableMetrics bool `json:"enableMetrics,omitempty"`
}

// DefaultConfig returns a mainnet configuration for the public facilitator.
func DefaultConfig() ClientConfig {
	return ClientConfig{
		FacilitatorURL: DefaultFacilitatorURL,
		Network:        NetworkMainnet,
		Timeout:        DefaultTimeout,
	}
}

// PaymentRequest asks the facilitator to build a payment transaction.
type PaymentRequest struct {
	// Amount in whole tokens (e.g. 0.01 SOL). Must be positive.
	Amount Amount `json:"amount"`

	// Token symbol: SOL, USDC, USDT.
	Token string `json:"token" validate:"required"`

	// Recipient wallet address.
	Recipient string `json:"recipient" validate:"required"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// CreatePaymentRequest is the wire body of POST /payments/create.
type CreatePaymentRequest struct {
	Amount    Amount            `json:"amount"`
	Token     string            `json:"token"`
	Recipient string            `json:"recipient"`
	Network   string            `json:"network"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// PaymentResponse is the envelope returned by the facilitator for a new
// payment. Transaction holds the unsigned transaction in base64.
type PaymentResponse struct {
	PaymentID   string  `json:"payment_id" validate:"required"`
	Transaction string  `json:"transaction" validate:"required"`
	Amount      Amount  `json:"amount"`
	Token       string  `json:"token"`
	Recipient   string  `json:"recipient"`
	Network     string  `json:"network"`
	Status      string  `json:"status"`
	ExpiresAt   *string `json:"expires_at"`
}

// WithTransaction returns a copy of the envelope carrying tx in place of the
// original transaction blob. This is the only permitted change to an envelope.
func (p PaymentResponse) WithTransaction(tx string) *PaymentResponse {
	p.Transaction = tx
	return &p
}

// ExpiresAtTime parses ExpiresAt as RFC 3339. ok is false when the field is
// absent or not a timestamp.
func (p *PaymentResponse) ExpiresAtTime() (t time.Time, ok bool) {
	if p.ExpiresAt == nil {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, *p.ExpiresAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsExpired reports whether the facilitator-issued expiry lies before now.
// Payments without a parseable expiry never expire client-side.
func (p *PaymentResponse) IsExpired(now time.Time) bool {
	t, ok := p.ExpiresAtTime()
	return ok && now.After(t)
}

// SettleRequest is the wire body of POST /payments/settle.
type SettleRequest struct {
	PaymentID         string `json:"payment_id" validate:"required"`
	SignedTransaction string `json:"signed_transaction" validate:"required"`
}

// SettleResponse is the facilitator's settlement result. Signature is present
// iff Success; Error is present iff not.
type SettleResponse struct {
	Success   bool    `json:"success"`
	Signature *string `json:"signature"`
	Status    string  `json:"status"`
	Error     *string `json:"error"`
}

// State maps the settlement outcome to the payment lifecycle.
func (s *SettleResponse) State() PaymentState {
	if s.Success {
		return PaymentSettled
	}
	return PaymentFailed
}

// VerifyRequest is the wire body of POST /payments/verify.
type VerifyRequest struct {
	Signature string `json:"signature"`
	Network   string `json:"network"`
}

// VerifyResponse reports the on-chain state of a settled transaction.
type VerifyResponse struct {
	Verified      bool    `json:"verified"`
	Status        string  `json:"status"`
	Confirmations *uint64 `json:"confirmations"`
}

// HealthResponse is the facilitator's status report.
type HealthResponse struct {
	Status  string `json:"status" validate:"required"`
	Version string `json:"version"`

	// Networks maps a network identifier to that network's status.
	Networks map[string]string `json:"networks"`
}
