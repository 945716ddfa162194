package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"callbridge/internal/config"
)

// Dialer is the provider-agnostic outbound-call contract used by business
// logic. No provider SDK calls outside this package.
type Dialer interface {
	// PlaceCall starts one outbound leg and returns the provider call SID.
	PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error)

	// FetchRecording downloads a finished call recording.
	FetchRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

type PlaceCallRequest struct {
	To   string
	From string

	// SignalURL is fetched by the provider when the leg is answered; it must
	// return the call-control script for this leg.
	SignalURL string

	// StatusCallbackURL receives asynchronous leg status events.
	StatusCallbackURL string

	// RecordingCallbackURL receives the recording-ready event.
	RecordingCallbackURL string

	// Record enables call recording from the provider side.
	Record bool
}

// ErrDialRejected is returned when the provider refuses to start a leg.
var ErrDialRejected = errors.New("telephony: dial rejected")

// TwilioClient is a thin REST invoker for the Twilio voice API.
// Keep request/response types provider-agnostic at the Dialer boundary;
// everything Twilio-shaped stays inside this file.
type TwilioClient struct {
	accountSID string
	authToken  string
	baseURL    string
	httpClient *http.Client
}

func NewTwilioClient(cfg config.TwilioConfig) (*TwilioClient, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("telephony: twilio credentials are required")
	}
	base := strings.TrimRight(cfg.APIBaseURL, "/")
	if base == "" {
		base = "https://api.twilio.com/2010-04-01"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &TwilioClient{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type twilioCallResponse struct {
	Sid    string `json:"sid"`
	Status string `json:"status"`
}

func (c *TwilioClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	if req.To == "" || req.From == "" {
		return "", fmt.Errorf("%w: to and from are required", ErrDialRejected)
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Url", req.SignalURL)
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackEvent", "initiated ringing answered completed")
	}
	if req.Record {
		form.Set("Record", "true")
		if req.RecordingCallbackURL != "" {
			form.Set("RecordingStatusCallback", req.RecordingCallbackURL)
		}
	}

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json", c.baseURL, c.accountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d: %s", ErrDialRejected, resp.StatusCode, truncate(string(body), 512))
	}

	var out twilioCallResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("telephony: decode call response: %w", err)
	}
	if out.Sid == "" {
		return "", fmt.Errorf("%w: response missing sid", ErrDialRejected)
	}
	return out.Sid, nil
}

func (c *TwilioClient) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, recordingURL, nil)
	if err != nil {
		return nil, err
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("telephony: recording fetch failed with status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
