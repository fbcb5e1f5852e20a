package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	gametypes "github.com/cbodonnell/clash/pkg/game/types"
	"github.com/cbodonnell/clash/pkg/log"
)

const DefaultTimeout = 10 * time.Second

// maxErrorBody bounds how much of an error response is kept.
const maxErrorBody = 512

// Client calls the game REST API on behalf of the player owning the token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

type NewClientOptions struct {
	// BaseURL is the API root, e.g. http://localhost:8080/inoka
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewClient(opts NewClientOptions) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		token:      opts.Token,
		httpClient: httpClient,
	}
}

// RollInitiative rolls the player's initiative for the current clash.
func (c *Client) RollInitiative(ctx context.Context) (int, error) {
	var roll int
	if err := c.do(ctx, http.MethodGet, "/player/rollinit", "", &roll); err != nil {
		return 0, fmt.Errorf("failed to roll initiative: %w", err)
	}
	return roll, nil
}

// RemoveCardInPlay takes the player's depleted card out of the clash.
func (c *Client) RemoveCardInPlay(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "/player/cardInPlay", "", nil); err != nil {
		return fmt.Errorf("failed to remove card in play: %w", err)
	}
	return nil
}

// ClaimWin tells the server the player holds the last card in the clash.
func (c *Client) ClaimWin(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPut, "/player/wonClash", "", nil); err != nil {
		return fmt.Errorf("failed to claim clash win: %w", err)
	}
	return nil
}

// ClaimKnockout picks up the knockout bonus after a finishing blow.
func (c *Client) ClaimKnockout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPut, "/player/gotKnockout", "", nil); err != nil {
		return fmt.Errorf("failed to claim knockout: %w", err)
	}
	return nil
}

// SetReady marks the player ready in the lobby.
func (c *Client) SetReady(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPut, "/player/ready", "", nil); err != nil {
		return fmt.Errorf("failed to set ready: %w", err)
	}
	return nil
}

// StartClash asks the server to start the clash of gameID.
func (c *Client) StartClash(ctx context.Context, gameID string) error {
	if err := c.do(ctx, http.MethodPut, "/game/clash/start", gameID, nil); err != nil {
		return fmt.Errorf("failed to start clash: %w", err)
	}
	return nil
}

// ClashProcessed tells the server the last decision was shown.
func (c *Client) ClashProcessed(ctx context.Context, gameID string) error {
	if err := c.do(ctx, http.MethodPut, "/game/clash/processed", gameID, nil); err != nil {
		return fmt.Errorf("failed to mark clash processed: %w", err)
	}
	return nil
}

// FetchGameView returns the current snapshot of the player's game.
func (c *Client) FetchGameView(ctx context.Context) (*gametypes.GameSnapshot, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/game/find", "", &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch game view: %w", err)
	}
	snapshot, err := gametypes.ParseSnapshot(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse game view: %w", err)
	}
	return snapshot, nil
}

// FetchDeck returns the player's private hand.
func (c *Client) FetchDeck(ctx context.Context) ([]gametypes.Card, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/player/card/all", "", &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch deck: %w", err)
	}
	return gametypes.ParseDeck(raw)
}

// FetchSeat returns the seat the player occupies in their game.
func (c *Client) FetchSeat(ctx context.Context) (int, error) {
	var seat int
	if err := c.do(ctx, http.MethodGet, "/player/seat", "", &seat); err != nil {
		return 0, fmt.Errorf("failed to fetch seat: %w", err)
	}
	return seat, nil
}

func (c *Client) do(ctx context.Context, method, path string, body string, out interface{}) error {
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "text/plain")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	log.Trace("%s %s", method, path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		}
	}

	if out == nil {
		return nil
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %v", err)
	}
	// some endpoints answer with a bare number as text/plain
	if n, ok := out.(*int); ok {
		v, err := strconv.Atoi(strings.TrimSpace(string(b)))
		if err != nil {
			return fmt.Errorf("failed to decode integer response %q: %v", string(b), err)
		}
		*n = v
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode response: %v", err)
	}
	return nil
}
