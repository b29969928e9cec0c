package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"sengine/internal/logger"
)

const (
	defaultBaseURL = "https://api.twilio.com"
	apiVersion     = "2010-04-01"
	sendTimeout    = 10 * time.Second
)

// Credentials identifies the provider sub-account used for one send.
type Credentials struct {
	AccountSID string
	AuthToken  string
}

// SendRequest carries everything needed for a single outbound message.
// Credentials, when set, override the client's configured account.
type SendRequest struct {
	From           string
	To             string
	Body           string
	MediaURL       string
	StatusCallback string
	Credentials    *Credentials
}

// SendResult is the normalized outcome of a send attempt. Transport
// failures and provider rejections both land here with Success=false;
// the caller never sees a raw HTTP error.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Status            string
	SegmentCount      int
	MediaCount        int
	DateCreated       *time.Time
	ErrorCode         string
	ErrorMessage      string
}

// Client talks to the Twilio Messages endpoint.
type Client struct {
	baseURL     string
	credentials Credentials
	httpClient  *http.Client
	log         logger.Logger
}

// NewClient creates a gateway client with the default account credentials.
func NewClient(accountSID, authToken string, log logger.Logger) *Client {
	return &Client{
		baseURL:     defaultBaseURL,
		credentials: Credentials{AccountSID: accountSID, AuthToken: authToken},
		httpClient:  &http.Client{Timeout: sendTimeout},
		log:         log,
	}
}

// SetBaseURL overrides the API host, used for tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// messageResponse mirrors the provider's message resource.
type messageResponse struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	NumSegments  string  `json:"num_segments"`
	NumMedia     string  `json:"num_media"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	DateCreated  string  `json:"date_created"`
}

// errorResponse mirrors the provider's error envelope on 4xx/5xx.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// Send posts one message to the provider. It returns an error only when the
// request could not be built; every transport or provider failure is folded
// into the result with Success=false.
func (c *Client) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	creds := c.credentials
	if req.Credentials != nil && req.Credentials.AccountSID != "" {
		creds = *req.Credentials
	}
	if creds.AccountSID == "" || creds.AuthToken == "" {
		return nil, fmt.Errorf("gateway: missing account credentials")
	}

	form := url.Values{}
	form.Set("From", req.From)
	form.Set("To", req.To)
	form.Set("Body", req.Body)
	if req.MediaURL != "" {
		form.Set("MediaUrl", req.MediaURL)
	}
	if req.StatusCallback != "" {
		form.Set("StatusCallback", req.StatusCallback)
	}

	endpoint := fmt.Sprintf("%s/%s/Accounts/%s/Messages.json", c.baseURL, apiVersion, creds.AccountSID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build send request: %w", err)
	}
	httpReq.SetBasicAuth(creds.AccountSID, creds.AuthToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.log.WithFields(map[string]interface{}{
			"to":    req.To,
			"error": err.Error(),
		}).Warn("Gateway send transport failure")
		return &SendResult{
			Success:      false,
			ErrorCode:    "transport_error",
			ErrorMessage: err.Error(),
		}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &SendResult{
			Success:      false,
			ErrorCode:    "transport_error",
			ErrorMessage: fmt.Sprintf("failed to read response: %v", err),
		}, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.parseError(resp.StatusCode, body, req.To), nil
	}

	var msg messageResponse
	if err := json.Unmarshal(body, &msg); err != nil {
		return &SendResult{
			Success:      false,
			ErrorCode:    "invalid_response",
			ErrorMessage: fmt.Sprintf("failed to decode response: %v", err),
		}, nil
	}

	result := &SendResult{
		Success:           true,
		ProviderMessageID: msg.SID,
		Status:            msg.Status,
		SegmentCount:      atoiDefault(msg.NumSegments, 1),
		MediaCount:        atoiDefault(msg.NumMedia, 0),
	}
	if msg.DateCreated != "" {
		if t, err := time.Parse(time.RFC1123Z, msg.DateCreated); err == nil {
			result.DateCreated = &t
		}
	}
	if msg.ErrorCode != nil {
		result.ErrorCode = strconv.Itoa(*msg.ErrorCode)
	}
	if msg.ErrorMessage != nil {
		result.ErrorMessage = *msg.ErrorMessage
	}
	return result, nil
}

func (c *Client) parseError(statusCode int, body []byte, to string) *SendResult {
	result := &SendResult{Success: false}

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
		result.ErrorCode = strconv.Itoa(errResp.Code)
		result.ErrorMessage = errResp.Message
	} else {
		result.ErrorCode = strconv.Itoa(statusCode)
		result.ErrorMessage = fmt.Sprintf("provider returned HTTP %d", statusCode)
	}

	c.log.WithFields(map[string]interface{}{
		"to":         to,
		"statusCode": statusCode,
		"errorCode":  result.ErrorCode,
	}).Warn("Gateway send rejected")

	return result
}

func atoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}
