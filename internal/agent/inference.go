package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

type httpModelClient struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPModelClient returns a ModelClient that posts each request to an
// inference service as multipart form data and decodes a JSON ModelResponse.
func NewHTTPModelClient(endpoint string, timeout time.Duration) ModelClient {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpModelClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *httpModelClient) Analyze(ctx context.Context, mr ModelRequest) (*ModelResponse, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "study.dcm")
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(mr.Image); err != nil {
		return nil, err
	}

	metaJSON, err := json.Marshal(mr.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	contextJSON, err := json.Marshal(mr.Context)
	if err != nil {
		return nil, fmt.Errorf("encode clinical context: %w", err)
	}
	fields := map[string]string{
		"pass":     string(mr.Pass),
		"prompt":   mr.Prompt,
		"metadata": string(metaJSON),
		"context":  string(contextJSON),
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("inference API error: %s - %s", resp.Status, string(respBody))
	}

	var result ModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode inference response: %w", err)
	}
	return &result, nil
}
