// Package discord grants roles and sends direct messages through the
// Discord REST API using a bot token.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"crypto-role-subscription/internal/config"
	"crypto-role-subscription/internal/domain"
)

const defaultOrigin = "https://discord.com"

// restSession is the part of *discordgo.Session the adapters use.
type restSession interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Client wraps a REST-only discordgo session. Calls are paced by a token
// bucket shared by every caller of the client; retries are left to the caller.
type Client struct {
	s       restSession
	limiter *rate.Limiter
	log     *zerolog.Logger
}

func NewClient(cfg config.DiscordConfig, ratePerSecond float64, logger *zerolog.Logger) (*Client, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, fmt.Errorf("discord token is empty")
	}
	transport, err := originTransport(cfg.APIBase)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.ShouldRetryOnRateLimit = false
	s.MaxRestRetries = 0
	s.UserAgent = "DiscordBot (crypto-role-subscription, 1.0)"
	s.Client = &http.Client{Timeout: 15 * time.Second, Transport: transport}
	return newClient(s, ratePerSecond, logger), nil
}

func newClient(s restSession, ratePerSecond float64, logger *zerolog.Logger) *Client {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	l := logger.With().Str("component", "DiscordClient").Logger()
	return &Client{
		s:       s,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		log:     &l,
	}
}

// call waits for the limiter, runs fn with ctx attached and classifies its
// error: 429, 5xx and transport failures wrap domain.ErrEffectorFailed,
// any other 4xx wraps domain.ErrEffectorPermanent.
func (c *Client) call(ctx context.Context, op string, fn func(opt discordgo.RequestOption) error) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEffectorFailed, err)
	}
	err := fn(discordgo.WithContext(ctx))
	if err == nil {
		return nil
	}
	status := statusOf(err)
	if status == 0 || status == http.StatusTooManyRequests || status >= 500 {
		c.log.Warn().Err(err).Str("op", op).Int("status", status).Msg("discord call throttled or failed")
		return fmt.Errorf("%w: discord %s: %w", domain.ErrEffectorFailed, op, err)
	}
	return fmt.Errorf("%w: discord %s: %w", domain.ErrEffectorPermanent, op, err)
}

// statusOf reports the HTTP status behind a discordgo error, 0 when the
// request never got a response.
func statusOf(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode
	}
	var rlErr *discordgo.RateLimitError
	if errors.As(err, &rlErr) {
		return http.StatusTooManyRequests
	}
	return 0
}

// originTransport sends requests to base instead of discord.com when base
// names another origin, such as a proxy or a local stand-in.
func originTransport(base string) (http.RoundTripper, error) {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" || base == defaultOrigin {
		return http.DefaultTransport, nil
	}
	u, err := url.Parse(base)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid discord api base %q", base)
	}
	return rewriteOrigin{scheme: u.Scheme, host: u.Host, next: http.DefaultTransport}, nil
}

type rewriteOrigin struct {
	scheme, host string
	next         http.RoundTripper
}

func (t rewriteOrigin) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.URL.Scheme = t.scheme
	r.URL.Host = t.host
	r.Host = t.host
	return t.next.RoundTrip(r)
}

// parseIDs validates that every value is a Discord snowflake.
func parseIDs(values ...string) error {
	for _, v := range values {
		if _, err := snowflake.ParseString(strings.TrimSpace(v)); err != nil || strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: invalid snowflake %q", domain.ErrEffectorPermanent, v)
		}
	}
	return nil
}
