/**
 * @description
 * This package provides a client for the SMS gateway's HTTP API. It
 * encapsulates request construction, authentication, and response parsing for
 * the single send-message endpoint the membership-service uses. The client
 * satisfies the application's Notifier interface.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package smsclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the SMS gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	Sender     string
	HTTPClient *http.Client
}

// NewClient creates a new SMS gateway client. Sender is the number messages
// are sent from.
func NewClient(baseURL, apiKey, sender string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Sender:  sender,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendMessageRequest struct {
	Sender   string `json:"sender"`
	Receptor string `json:"receptor"`
	Message  string `json:"message"`
}

type sendMessageResponse struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// ErrorResponse represents an error returned by the SMS gateway.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("sms gateway error: %s - %s", e.Code, e.Message)
	}
	return fmt.Sprintf("sms gateway error: status %d", e.StatusCode)
}

// Send delivers a text message to the given phone number.
func (c *Client) Send(ctx context.Context, phoneNumber, message string) error {
	payload := sendMessageRequest{
		Sender:   c.Sender,
		Receptor: phoneNumber,
		Message:  message,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sms request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sms/send", c.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		if decodeErr := json.NewDecoder(resp.Body).Decode(apiErr); decodeErr != nil {
			return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
		}
		return apiErr
	}

	var sendResp sendMessageResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&sendResp); err != nil {
		// The message was accepted; a malformed body is not worth failing the send.
		return nil
	}
	return nil
}
