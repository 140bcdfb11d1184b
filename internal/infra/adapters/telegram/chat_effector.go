// Package telegram maps roles onto Telegram chat membership: a paying member
// may stay in the chat, an expired one is removed.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"crypto-role-subscription/internal/domain"
	"crypto-role-subscription/internal/domain/ports/adapter"
)

var (
	_ adapter.RoleEffector    = (*ChatEffector)(nil)
	_ adapter.MemberMessenger = (*ChatEffector)(nil)
)

// botAPI is the subset of *tgbotapi.BotAPI we call.
type botAPI interface {
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type ChatEffector struct {
	bot     botAPI
	limiter *rate.Limiter
}

// NewBot connects with token; NewBotAPI calls getMe.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	return tgbotapi.NewBotAPI(token)
}

func NewChatEffector(bot botAPI, ratePerSecond float64) *ChatEffector {
	if ratePerSecond <= 0 {
		ratePerSecond = 5
	}
	return &ChatEffector{bot: bot, limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1)}
}

// Grant lifts a ban so the member can (re)join. roleID is not used.
func (e *ChatEffector) Grant(ctx context.Context, chatID, memberID, roleID string) error {
	chat, user, err := parseIDs(chatID, memberID)
	if err != nil {
		return err
	}
	return e.request(ctx, tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chat, UserID: user},
		OnlyIfBanned:     true,
	})
}

// Revoke removes the member: ban then unban, so a later payment can rejoin.
func (e *ChatEffector) Revoke(ctx context.Context, chatID, memberID, roleID string) error {
	chat, user, err := parseIDs(chatID, memberID)
	if err != nil {
		return err
	}
	member := tgbotapi.ChatMemberConfig{ChatID: chat, UserID: user}
	if err := e.request(ctx, tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
		return err
	}
	return e.request(ctx, tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
}

func (e *ChatEffector) SendDirect(ctx context.Context, memberID, text string) error {
	user, err := strconv.ParseInt(strings.TrimSpace(memberID), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: invalid telegram user id %q", domain.ErrInvalidArgument, memberID)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err = e.bot.Send(tgbotapi.NewMessage(user, text))
	return err
}

func (e *ChatEffector) request(ctx context.Context, c tgbotapi.Chattable) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEffectorFailed, err)
	}
	_, err := e.bot.Request(c)
	return classify(err)
}

// classify maps Bot API errors: 429 and 5xx are retryable, other API
// errors are permanent, transport errors are retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 429 || apiErr.Code >= 500 {
			return fmt.Errorf("%w: %s", domain.ErrEffectorFailed, apiErr.Message)
		}
		return fmt.Errorf("%w: %s", domain.ErrEffectorPermanent, apiErr.Message)
	}
	return fmt.Errorf("%w: %v", domain.ErrEffectorFailed, err)
}

func parseIDs(chatID, memberID string) (int64, int64, error) {
	chat, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid chat id %q", domain.ErrEffectorPermanent, chatID)
	}
	user, err := strconv.ParseInt(strings.TrimSpace(memberID), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: invalid user id %q", domain.ErrEffectorPermanent, memberID)
	}
	return chat, user, nil
}
