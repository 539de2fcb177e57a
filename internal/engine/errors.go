package engine

import (
	"errors"
	"fmt"

	"github.com/seantiz/taskforge/internal/model"
	"github.com/seantiz/taskforge/internal/provider"
)

var (
	errEmptyInput    = errors.New("input is empty")
	errEmptyResponse = errors.New("provider returned an empty response")
)

// errorPayload converts a worker failure into the structured result stored on
// the execution. Its Error field is also the message streamed to readers.
func errorPayload(err error) model.ErrorPayload {
	var (
		httpErr      *provider.HTTPError
		protoErr     *provider.ProtocolError
		transportErr *provider.TransportError
	)

	switch {
	case errors.Is(err, errEmptyInput):
		return model.ErrorPayload{Error: err.Error(), Kind: model.ErrorKindInput}
	case errors.Is(err, provider.ErrNotConfigured):
		return model.ErrorPayload{Error: err.Error(), Kind: model.ErrorKindConfig}
	case errors.Is(err, errEmptyResponse):
		return model.ErrorPayload{Error: err.Error(), Kind: model.ErrorKindProviderProtocol}
	case errors.As(err, &httpErr):
		return model.ErrorPayload{
			Error:  fmt.Sprintf("provider %s returned HTTP %d", httpErr.Provider, httpErr.StatusCode),
			Kind:   model.ErrorKindProviderHTTP,
			Status: httpErr.StatusCode,
			Detail: httpErr.Body,
		}
	case errors.As(err, &protoErr):
		return model.ErrorPayload{
			Error: fmt.Sprintf("unexpected response from provider %s: %s", protoErr.Provider, protoErr.Reason),
			Kind:  model.ErrorKindProviderProtocol,
			Raw:   protoErr.Raw,
		}
	case errors.As(err, &transportErr):
		msg := fmt.Sprintf("provider %s request failed", transportErr.Provider)
		if transportErr.Timeout {
			msg = fmt.Sprintf("provider %s timed out", transportErr.Provider)
		}
		return model.ErrorPayload{Error: msg, Kind: model.ErrorKindTransport, Detail: transportErr.Error()}
	default:
		return model.ErrorPayload{Error: err.Error(), Kind: model.ErrorKindInternal}
	}
}
