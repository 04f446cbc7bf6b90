package bitkua

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"accountflow/logger"
)

const requestTimeout = 30 * time.Second

var validStatuses = map[string]bool{
	"active":   true,
	"stop":     true,
	"onlysell": true,
}

// Client talks to the bot platform. Every call carries the account username
// and token in the JSON body next to the action name; there is no signing.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu       sync.RWMutex
	username string
	token    string

	log *logger.Entry
}

func NewClient(baseURL, username, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: requestTimeout},
		username:   username,
		token:      token,
		log:        logger.GetLogger().WithComponent("bitkua_client"),
	}
}

func (c *Client) SetCredentials(username, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.username = username
	c.token = token
}

// request posts one action. The platform answers 200 with {success:false}
// on application errors, so both transport and body failures are checked.
func (c *Client) request(ctx context.Context, method, action string, fields map[string]interface{}) (*apiResponse, error) {
	c.mu.RLock()
	body := map[string]interface{}{
		"action":   action,
		"username": c.username,
		"token":    c.token,
	}
	c.mu.RUnlock()
	for k, v := range fields {
		body[k] = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", action, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", action, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s returned status %d: %s", action, resp.StatusCode, string(raw))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", action, err)
	}
	if !parsed.Success {
		msg := parsed.Message
		if msg == "" {
			msg = "request rejected"
		}
		return nil, fmt.Errorf("%s failed: %s", action, msg)
	}
	return &parsed, nil
}

// FetchBots returns the account's bot list as the platform reports it.
func (c *Client) FetchBots(ctx context.Context) ([]Bot, error) {
	resp, err := c.request(ctx, http.MethodGet, "info_bots", nil)
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// UpdateStatus switches a bot between active, stop and onlysell.
func (c *Client) UpdateStatus(ctx context.Context, botID, status string) error {
	if !validStatuses[status] {
		return fmt.Errorf("invalid bot status %q", status)
	}
	_, err := c.request(ctx, http.MethodPost, "update_status", map[string]interface{}{
		"id":     botID,
		"status": status,
	})
	return err
}

// UpdateAmount changes the per-order amount of a bot.
func (c *Client) UpdateAmount(ctx context.Context, botID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("invalid bot amount %v", amount)
	}
	_, err := c.request(ctx, http.MethodPost, "update_amount", map[string]interface{}{
		"id":     botID,
		"amount": amount,
	})
	return err
}

// CreateBot registers a new bot for the given market and strategy.
func (c *Client) CreateBot(ctx context.Context, action Action) error {
	if action.Symbol == "" || action.Exchange == "" {
		return fmt.Errorf("create requires symbol and exchange")
	}
	fields := map[string]interface{}{
		"symbol":       action.Symbol,
		"exchange":     action.Exchange,
		"estrategia":   action.Strategy,
		"positionside": action.PositionSide,
		"amount":       action.Amount,
	}
	if action.Safe != "" {
		fields["safe"] = action.Safe
	}
	_, err := c.request(ctx, http.MethodPost, "create_bot", fields)
	return err
}

// DeleteBot removes a bot permanently.
func (c *Client) DeleteBot(ctx context.Context, botID string) error {
	_, err := c.request(ctx, http.MethodPost, "delete_bot", map[string]interface{}{
		"id": botID,
	})
	return err
}

// ResetBot clears a bot's accumulated position and order count.
func (c *Client) ResetBot(ctx context.Context, botID string) error {
	_, err := c.request(ctx, http.MethodPost, "reset_bot", map[string]interface{}{
		"id": botID,
	})
	return err
}
