// Package push delivers notify.Push messages through Firebase Cloud Messaging.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"call-signaling/internal/directory"
	"call-signaling/internal/notify"

	"golang.org/x/time/rate"
)

const defaultFCMEndpoint = "https://fcm.googleapis.com/fcm/send"

// maxLimiters bounds the per-token limiter table; it is reset when full.
const maxLimiters = 10000

var ErrRateLimited = errors.New("push: rate limited")

type FCMConfig struct {
	ServerKey string
	// Endpoint overrides the FCM URL (tests, proxies).
	Endpoint string
	// PerMinute caps notifications per device token.
	PerMinute int
	Timeout   time.Duration
}

// FCMSender implements notify.PushSender.
type FCMSender struct {
	serverKey string
	endpoint  string
	client    *http.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewFCMSender(cfg FCMConfig) (*FCMSender, error) {
	if cfg.ServerKey == "" {
		return nil, errors.New("push: FCM server key not configured")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultFCMEndpoint
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	burst := cfg.PerMinute / 6
	if burst < 1 {
		burst = 1
	}
	return &FCMSender{
		serverKey: cfg.ServerKey,
		endpoint:  cfg.Endpoint,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiters:  map[string]*rate.Limiter{},
		limit:     rate.Every(time.Minute / time.Duration(cfg.PerMinute)),
		burst:     burst,
	}, nil
}

func (f *FCMSender) Send(ctx context.Context, token directory.PushToken, p notify.Push) error {
	if token.Token == "" {
		return errors.New("push: empty device token")
	}
	if !f.limiter(token.Token).Allow() {
		return ErrRateLimited
	}

	payload := map[string]any{
		"to":       token.Token,
		"data":     p.Data,
		"priority": mapPriority(p.Priority),
	}
	if !p.DataOnly {
		payload["notification"] = map[string]any{
			"title": p.Title,
			"body":  p.Body,
			"sound": "default",
		}
	}
	if p.Priority == notify.PriorityHigh {
		// Ring pushes are useless once the ring is over.
		payload["time_to_live"] = 60
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "key="+f.serverKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("FCM error (%d): %s", resp.StatusCode, string(respBody))
	}

	var fcmResp struct {
		Failure int `json:"failure"`
		Results []struct {
			MessageID string `json:"message_id"`
			Error     string `json:"error"`
		} `json:"results"`
	}
	if err := json.Unmarshal(respBody, &fcmResp); err != nil {
		// A 200 without a parseable body still counts as accepted.
		return nil
	}
	if len(fcmResp.Results) > 0 && fcmResp.Results[0].Error != "" {
		return fmt.Errorf("FCM error: %s", fcmResp.Results[0].Error)
	}
	return nil
}

func (f *FCMSender) limiter(token string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.limiters[token]
	if !ok {
		if len(f.limiters) >= maxLimiters {
			f.limiters = map[string]*rate.Limiter{}
		}
		l = rate.NewLimiter(f.limit, f.burst)
		f.limiters[token] = l
	}
	return l
}

func mapPriority(p notify.Priority) string {
	if p == notify.PriorityHigh {
		return "high"
	}
	return "normal"
}
