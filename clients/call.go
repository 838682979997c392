package clients

import (
	"context"

	"github.com/vitwit/qwery/types"
	"github.com/vitwit/qwery/utils"
)

// Call performs req and decodes a 2xx body into out. A non-2xx answer
// becomes an API error carrying the status and raw body.
func Call(ctx context.Context, t Transport, req Request, out any) error {
	resp, err := t.Do(ctx, req)
	if err != nil {
		if types.CodeOf(err) == "" {
			return types.NewError(types.ErrNetworkError, req.Method+" "+req.Path+" failed", err)
		}
		return err
	}
	if !resp.OK() {
		return types.NewAPIError(resp.StatusCode, resp.Body)
	}
	return utils.DecodeResponse(resp.Body, out)
}
