package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vitwit/qwery/types"
)

// DecodeResponse parses a 2xx facilitator body into out and validates it.
// Unknown fields are ignored so newer facilitators stay compatible.
func DecodeResponse(data []byte, out any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &types.QweryError{Code: types.ErrInvalidResponse, Message: "empty response body"}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return types.NewError(types.ErrInvalidResponse, fmt.Sprintf("cannot parse response %.200q", data), err)
	}
	return ValidateStruct(out, types.ErrInvalidResponse)
}

// EncodeRequest serializes a request body.
func EncodeRequest(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "cannot encode request", err)
	}
	return b, nil
}
