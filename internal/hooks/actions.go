package hooks

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	log "github.com/sirupsen/logrus"
)

// RegisterBuiltInActions registers the default action handlers. force_tier is only available
// when a tier setter is given.
func RegisterBuiltInActions(m *HookManager, tiers TierSetter) {
	m.RegisterAction(ActionLogWarning, handleLogWarning)
	wh := NewWebhookHandler()
	m.RegisterAction(ActionNotifyWebhook, wh.Handle)
	if tiers != nil {
		m.RegisterAction(ActionForceTier, forceTierHandler(tiers))
	}
}

func handleLogWarning(hook *Hook, ctx *EventContext) error {
	msg, _ := hook.Params["message"].(string)
	if msg == "" {
		msg = "Hook triggered"
	}
	log.WithField("component", "hooks").Warnf("[Hook: %s] %s (Event: %s)", hook.Name, msg, ctx.Event)
	return nil
}

func forceTierHandler(tiers TierSetter) ActionHandler {
	return func(hook *Hook, ctx *EventContext) error {
		name, _ := hook.Params["tier"].(string)
		if name == "" {
			return fmt.Errorf("missing tier param")
		}
		if err := tiers.SetTier(name); err != nil {
			return fmt.Errorf("force tier %s: %w", name, err)
		}
		log.WithField("component", "hooks").Infof("[Hook: %s] Forced tier %s on %s", hook.Name, name, ctx.Event)
		return nil
	}
}

// WebhookHandler posts events to webhooks with per-URL rate limiting and retries.
type WebhookHandler struct {
	mu           sync.Mutex
	rateLimiters map[string]*rateLimiter
	client       *http.Client
	backoff      []time.Duration
	perMinute    int
}

type rateLimiter struct {
	count    int
	lastTime time.Time
}

func NewWebhookHandler() *WebhookHandler {
	return &WebhookHandler{
		rateLimiters: make(map[string]*rateLimiter),
		client:       &http.Client{Timeout: 5 * time.Second},
		backoff:      []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second},
		perMinute:    10,
	}
}

func (h *WebhookHandler) Handle(hook *Hook, ctx *EventContext) error {
	url, _ := hook.Params["url"].(string)
	if url == "" {
		return fmt.Errorf("missing webhook url")
	}
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://localhost") && !strings.HasPrefix(url, "http://127.0.0.1") {
		return fmt.Errorf("insecure webhook url (must be https or localhost): %s", url)
	}
	if !h.checkRateLimit(url) {
		return fmt.Errorf("rate limit exceeded for webhook: %s", url)
	}

	secret, _ := hook.Params["secret"].(string)
	body, err := json.Marshal(map[string]any{
		"event":     ctx.Event,
		"timestamp": ctx.Timestamp,
		"hook_id":   hook.ID,
		"data":      ctx.Data,
	})
	if err != nil {
		return err
	}

	var lastErr error
	for i := 0; i <= len(h.backoff); i++ {
		if i > 0 {
			time.Sleep(h.backoff[i-1])
		}
		if lastErr = h.post(url, secret, body); lastErr == nil {
			return nil
		}
		log.WithField("component", "hooks").Warnf("Webhook attempt %d failed: %v", i+1, lastErr)
	}
	return fmt.Errorf("webhook failed after retries: %w", lastErr)
}

func (h *WebhookHandler) post(url, secret string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "perfgov-hooks/1.0")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		req.Header.Set("X-Hook-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func (h *WebhookHandler) checkRateLimit(url string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := time.Now()
	limiter, exists := h.rateLimiters[url]
	if !exists {
		limiter = &rateLimiter{lastTime: now}
		h.rateLimiters[url] = limiter
	}
	if now.Sub(limiter.lastTime) > time.Minute {
		limiter.count = 0
		limiter.lastTime = now
	}
	if limiter.count >= h.perMinute {
		return false
	}
	limiter.count++
	return true
}
