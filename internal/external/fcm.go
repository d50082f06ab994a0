package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fairground/internal/types"
)

// fcmAPIBase is the default FCM HTTP API base URL.
const fcmAPIBase = "https://fcm.googleapis.com"

// FCM result error codes that mean the device token is gone for good.
const (
	fcmErrNotRegistered       = "NotRegistered"
	fcmErrInvalidRegistration = "InvalidRegistration"
)

// FCMClientConfig holds the configuration for creating an FCMClient.
type FCMClientConfig struct {
	ServerKey string
	AppID     string // restricts delivery to this package name when set
	BaseURL   string // override for testing; defaults to fcmAPIBase
	Logger    types.Logger
}

// FCMClient implements PushProvider against the FCM HTTP send API through
// BaseClient. FCM reports per-token failures inside a 200 response, so the
// interesting error mapping happens on the result entries, not the status
// code.
type FCMClient struct {
	base      *BaseClient
	serverKey string
	appID     string
	baseURL   string
	logger    types.Logger
}

// NewFCMClient creates an FCMClient with its own BaseClient.
func NewFCMClient(httpClient *http.Client, cfg FCMClientConfig) *FCMClient {
	base := NewBaseClient(
		httpClient,
		"fcm",
		RetryPolicy{
			MaxRetries: 2,
			MinWait:    500 * time.Millisecond,
			MaxWait:    5 * time.Second,
		},
		"Fairground/1.0",
	)

	return NewFCMClientWithBase(base, cfg)
}

// NewFCMClientWithBase creates an FCMClient with a pre-configured BaseClient.
func NewFCMClientWithBase(base *BaseClient, cfg FCMClientConfig) *FCMClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fcmAPIBase
	}

	return &FCMClient{
		base:      base,
		serverKey: cfg.ServerKey,
		appID:     cfg.AppID,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    cfg.Logger,
	}
}

// fcmSendPayload is the FCM send request body for a single device token.
type fcmSendPayload struct {
	To                    string            `json:"to"`
	Notification          fcmNotification   `json:"notification"`
	Data                  map[string]string `json:"data,omitempty"`
	RestrictedPackageName string            `json:"restricted_package_name,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// fcmSendResponse is the FCM send response body.
type fcmSendResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// SendPush publishes a notification to a single device token.
//
// Error mapping:
//   - result error NotRegistered / InvalidRegistration -> types.ErrCodePushTokenExpired
//   - other result errors -> types.ErrCodeUpstreamPushProvider
//   - 401 -> types.ErrCodeUpstreamPushProvider (bad server key)
//   - 429 / 5xx -> handled by BaseClient
func (f *FCMClient) SendPush(ctx context.Context, input types.PushInput) (string, error) {
	payload := fcmSendPayload{
		To: input.Token,
		Notification: fcmNotification{
			Title: input.Title,
			Body:  input.Body,
		},
		Data:                  input.Data,
		RestrictedPackageName: f.appID,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal FCM send payload",
			err,
		)
	}

	reqURL := f.baseURL + "/fcm/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to create FCM request",
			err,
		)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.serverKey)

	resp, err := f.base.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPushProvider,
			fmt.Sprintf("FCM returned %d", resp.StatusCode),
			nil,
		)
	}

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPushProvider,
			"failed to read FCM response body",
			err,
		)
	}

	var parsed fcmSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPushProvider,
			"failed to parse FCM response body",
			err,
		)
	}

	if len(parsed.Results) == 0 {
		return "", types.NewAppError(
			types.ErrCodeUpstreamPushProvider,
			"FCM response contained no results",
			nil,
		)
	}

	result := parsed.Results[0]
	if result.Error != "" {
		return "", f.mapResultError(result.Error)
	}

	return result.MessageID, nil
}

func (f *FCMClient) mapResultError(code string) error {
	switch code {
	case fcmErrNotRegistered, fcmErrInvalidRegistration:
		return types.NewAppError(
			types.ErrCodePushTokenExpired,
			"device token is no longer registered: "+code,
			nil,
		)
	default:
		return types.NewAppError(
			types.ErrCodeUpstreamPushProvider,
			"FCM rejected the message: "+code,
			nil,
		)
	}
}

var _ PushProvider = (*FCMClient)(nil)
