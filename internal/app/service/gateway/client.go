package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// apiError is a non-2xx provider response, handed back to the adapter so it
// can map business declines vs validation failures. 5xx never reaches here;
// it is classified as a NetworkError.
type apiError struct {
	StatusCode int
	Body       []byte
}

func (e *apiError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, string(e.Body))
}

// doJSON performs one JSON round trip. Transport failures and 5xx responses
// come back as *NetworkError; 4xx as *apiError; on 2xx the raw body is
// returned and optionally unmarshalled into out.
func doJSON(ctx context.Context, client *http.Client, op, method, url string, headers map[string]string, in any, out any) ([]byte, error) {
	var reqBody io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode >= 500 {
		return body, &NetworkError{Op: op, Err: fmt.Errorf("provider returned %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return body, &apiError{StatusCode: resp.StatusCode, Body: body}
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return body, fmt.Errorf("decode %s response: %w", op, err)
		}
	}
	return body, nil
}
