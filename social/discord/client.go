// Package discord wraps the Discord OAuth2 code flow and the user-scoped
// REST calls made with the resulting bearer token.
package discord

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/nexurateam/nexura-app-sub001/config"
	"golang.org/x/oauth2"
)

// guildPageSize is the API maximum for GET /users/@me/guilds.
const guildPageSize = 200

// Endpoint is Discord's OAuth2 endpoint.
var Endpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  discordgo.EndpointOAuth2 + "token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type Client struct {
	oauth *oauth2.Config
	hc    *http.Client
}

// NewClient builds a client. hc may be nil; tests pass one that points the
// Discord hosts at a local server.
func NewClient(cfg config.DiscordConfig, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"identify", "guilds"}
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     Endpoint,
		},
		hc: hc,
	}
}

func (c *Client) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.hc)
}

// AuthCodeURL is where the user is sent to grant access.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a token pair.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := c.oauth.Exchange(c.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("discord: exchange code: %w", err)
	}
	return tok, nil
}

// session returns a bearer session for tok, refreshing tok first when it has
// expired. The token actually used is returned so callers can persist it.
func (c *Client) session(ctx context.Context, tok *oauth2.Token) (*discordgo.Session, *oauth2.Token, error) {
	fresh, err := c.oauth.TokenSource(c.ctx(ctx), tok).Token()
	if err != nil {
		return nil, nil, fmt.Errorf("discord: refresh token: %w", err)
	}
	s, err := discordgo.New("Bearer " + fresh.AccessToken)
	if err != nil {
		return nil, nil, err
	}
	s.Client = c.hc
	return s, fresh, nil
}

// CurrentUserID returns the Discord id of the token's owner.
func (c *Client) CurrentUserID(ctx context.Context, tok *oauth2.Token) (string, *oauth2.Token, error) {
	s, fresh, err := c.session(ctx, tok)
	if err != nil {
		return "", nil, err
	}
	u, err := s.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return "", nil, fmt.Errorf("discord: fetch @me: %w", err)
	}
	return u.ID, fresh, nil
}

// GuildIDs lists every guild the token's owner belongs to.
func (c *Client) GuildIDs(ctx context.Context, tok *oauth2.Token) ([]string, *oauth2.Token, error) {
	s, fresh, err := c.session(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	var ids []string
	after := ""
	for {
		page, err := s.UserGuilds(guildPageSize, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, nil, fmt.Errorf("discord: list guilds: %w", err)
		}
		for _, g := range page {
			ids = append(ids, g.ID)
		}
		if len(page) < guildPageSize {
			return ids, fresh, nil
		}
		after = page[len(page)-1].ID
	}
}
