// Package twitter looks up X follow relationships with an app-only token.
package twitter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/g8rswimmer/go-twitter/v2"
	"github.com/nexurateam/nexura-app-sub001/config"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// followingPageSize is the API maximum for the following endpoint.
const followingPageSize = 1000

// maxFollowingPages bounds a single lookup.
const maxFollowingPages = 15

var ErrNotConfigured = errors.New("twitter: api key/secret not configured")

type Client struct {
	cli       *twitter.Client
	refresher *tokenRefresher
	logger    *zap.Logger

	mu          sync.RWMutex
	accessToken string
}

// NewClient builds a client against cfg.APIURL. The bearer token is fetched
// lazily on first use. hc may be nil.
func NewClient(cfg config.TwitterConfig, hc *http.Client, logger *zap.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	c := &Client{
		refresher: &tokenRefresher{
			apiKey:     cfg.APIKey,
			apiSecret:  cfg.APISecret,
			refreshURL: cfg.TokenURL,
			hc:         hc,
		},
		logger: logger,
	}
	c.cli = &twitter.Client{
		Authorizer: c,
		Client:     hc,
		Host:       cfg.APIURL,
	}
	return c
}

// Add implements twitter.Authorizer.
func (c *Client) Add(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	req.Header.Add("Authorization", "Bearer "+c.accessToken)
}

// RefreshAccessToken fetches a new app-only bearer token.
func (c *Client) RefreshAccessToken(ctx context.Context) error {
	token, err := c.refresher.Refresh(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.accessToken = token
	c.mu.Unlock()
	return nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	have := c.accessToken != ""
	c.mu.RUnlock()
	if have {
		return nil
	}
	return c.RefreshAccessToken(ctx)
}

// FollowingIDs returns the ids of the accounts userID follows.
func (c *Client) FollowingIDs(ctx context.Context, userID string) ([]string, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	var ids []string
	next := ""
	for page := 0; page < maxFollowingPages; page++ {
		resp, err := c.cli.UserFollowingLookup(ctx, userID, twitter.UserFollowingLookupOpts{
			MaxResults:      followingPageSize,
			PaginationToken: next,
		})
		if err != nil {
			return nil, fmt.Errorf("twitter: following lookup for %s: %w", userID, err)
		}
		if resp.Raw != nil {
			for _, u := range resp.Raw.Users {
				if u != nil {
					ids = append(ids, u.ID)
				}
			}
		}
		if resp.Meta == nil || resp.Meta.NextToken == "" {
			return ids, nil
		}
		next = resp.Meta.NextToken
	}
	c.logger.Warn("following lookup truncated",
		zap.String("twitter_id", userID), zap.Int("ids", len(ids)))
	return ids, nil
}

type tokenRefresher struct {
	apiKey, apiSecret, refreshURL string
	hc                            *http.Client
}

func (r *tokenRefresher) Refresh(ctx context.Context) (string, error) {
	if r.apiKey == "" || r.apiSecret == "" {
		return "", ErrNotConfigured
	}
	post, err := http.NewRequestWithContext(ctx, http.MethodPost, r.refreshURL+"?grant_type=client_credentials", nil)
	if err != nil {
		return "", fmt.Errorf("twitter: create token request: %w", err)
	}
	post.Header.Add("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	post.SetBasicAuth(r.apiKey, r.apiSecret)
	resp, err := r.hc.Do(post)
	if err != nil {
		return "", fmt.Errorf("twitter: send token request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("twitter: read token response: %w", err)
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("twitter: no access token in response (status %d)", resp.StatusCode)
	}
	return token, nil
}
