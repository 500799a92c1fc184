// Package dispatch fans canonical events out to configured pixel
// destinations over the Conversions API.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/agenciamidas/capi-gateway/internal/domain"
)

const partnerAgent = "midas-capi/1.0"

// Responses are truncated before decoding; Graph API error bodies are small.
const maxResponseBytes = 64 * 1024

// Client posts event batches to the Graph API. The base URL is configurable
// so tests and the local mock endpoint can stand in for Meta.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	testEventCode string
}

func NewClient(baseURL, testEventCode string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL:       baseURL,
		testEventCode: testEventCode,
	}
}

type capiRequest struct {
	Data          []*domain.CanonicalEvent `json:"data"`
	PartnerAgent  string                   `json:"partner_agent"`
	TestEventCode string                   `json:"test_event_code,omitempty"`
}

// Send delivers one event to one pixel. Local failures land in Result.Err;
// any HTTP response, 2xx or not, lands in Status and Body.
func (c *Client) Send(ctx context.Context, pixel domain.Pixel, ev *domain.CanonicalEvent) domain.DispatchResult {
	result := domain.DispatchResult{PixelID: pixel.ID, PixelName: pixel.DisplayName()}

	body, err := json.Marshal(capiRequest{
		Data:          []*domain.CanonicalEvent{ev},
		PartnerAgent:  partnerAgent,
		TestEventCode: c.testEventCode,
	})
	if err != nil {
		result.Err = fmt.Sprintf("marshaling event: %v", err)
		return result
	}

	endpoint := fmt.Sprintf("%s/%s/events?access_token=%s", c.baseURL, pixel.ID, url.QueryEscape(pixel.AccessToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		result.Err = fmt.Sprintf("building request: %v", err)
		return result
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Err = fmt.Sprintf("request failed: %v", err)
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err == nil {
		result.Body = decoded
	} else if len(raw) > 0 {
		result.Body = string(raw)
	}
	return result
}
