package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/vitwit/qwery/types"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct checks v against its `validate` tags and returns a
// QweryError with the given code listing every failing field.
func ValidateStruct(v any, code string) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return types.NewError(code, "validation failed", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return &types.QweryError{
		Code:    code,
		Message: "validation failed: " + strings.Join(fields, ", "),
		Err:     err,
	}
}

// ValidateAmount checks that a is strictly positive.
func ValidateAmount(a types.Amount) error {
	if !a.IsPositive() {
		return &types.QweryError{
			Code:    types.ErrInvalidRequest,
			Message: fmt.Sprintf("amount must be positive, got %s", a.String()),
		}
	}
	return nil
}

// ValidatePaymentRequest rejects a payment request before it reaches the
// network.
func ValidatePaymentRequest(req *types.PaymentRequest) error {
	if req == nil {
		return &types.QweryError{Code: types.ErrInvalidRequest, Message: "payment request is required"}
	}
	if err := ValidateAmount(req.Amount); err != nil {
		return err
	}
	return ValidateStruct(req, types.ErrInvalidRequest)
}

// ValidateConfig checks a client configuration.
func ValidateConfig(cfg *types.ClientConfig) error {
	if err := ValidateStruct(cfg, types.ErrConfigError); err != nil {
		return err
	}
	if !cfg.Network.IsValid() {
		return &types.QweryError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("unsupported network %q", cfg.Network),
		}
	}
	return nil
}
