package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// restClient is the shared HTTP plumbing for REST-style providers without an
// official Go SDK. Responses are decoded into generic maps; each adapter maps
// provider fields onto the normalized types itself.
type restClient struct {
	baseURL string
	client  *http.Client
	gateway string
	// authorize mutates the request with provider-specific auth headers.
	authorize func(req *http.Request)
}

func newRESTClient(gatewayName, baseURL string, authorize func(req *http.Request)) *restClient {
	return &restClient{
		baseURL:   baseURL,
		gateway:   gatewayName,
		authorize: authorize,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *restClient) do(ctx context.Context, method, path string, body map[string]any) (map[string]any, *Error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, NewError(c.gateway, ErrCodeInvalidRequest, ErrTypeBusiness, "encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, NewError(c.gateway, ErrCodeInvalidRequest, ErrTypeBusiness, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.authorize != nil {
		c.authorize(req)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, NewError(c.gateway, ErrCodeNetwork, ErrTypeTransient, "%v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewError(c.gateway, ErrCodeNetwork, ErrTypeTransient, "read response: %v", err)
	}

	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			return nil, NewError(c.gateway, ErrCodeUnknown, ErrTypeTransient, "malformed response (%d): %.200s", resp.StatusCode, string(raw))
		}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return decoded, nil
	}
	return nil, c.statusError(resp.StatusCode, decoded)
}

func (c *restClient) statusError(status int, body map[string]any) *Error {
	message := providerErrorMessage(body)
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return NewError(c.gateway, ErrCodeAuthentication, ErrTypeConfig, "%s", message)
	case status == http.StatusNotFound:
		return NewError(c.gateway, ErrCodeNotFound, ErrTypeBusiness, "%s", message)
	case status == http.StatusTooManyRequests:
		return NewError(c.gateway, ErrCodeRateLimited, ErrTypeTransient, "%s", message)
	case status >= 500:
		return NewError(c.gateway, ErrCodeNetwork, ErrTypeTransient, "%s", message)
	case status == http.StatusPaymentRequired:
		return NewError(c.gateway, ErrCodeCardDeclined, ErrTypeBusiness, "%s", message)
	default:
		return NewError(c.gateway, ErrCodeInvalidRequest, ErrTypeBusiness, "%s", message)
	}
}

func decodeJSONMap(payload []byte) (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// providerErrorMessage digs the human-readable error out of the common
// {"error": {"description": ...}} / {"message": ...} response shapes.
func providerErrorMessage(body map[string]any) string {
	if body == nil {
		return ""
	}
	if errObj, ok := body["error"].(map[string]any); ok {
		if desc := stringField(errObj, "description"); desc != "" {
			return desc
		}
		if msg := stringField(errObj, "message"); msg != "" {
			return msg
		}
	}
	if msg := stringField(body, "message"); msg != "" {
		return msg
	}
	return ""
}
