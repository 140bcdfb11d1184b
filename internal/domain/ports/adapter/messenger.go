package adapter

import "context"

// MemberMessenger delivers a direct message to a community member.
type MemberMessenger interface {
	SendDirect(ctx context.Context, memberID, text string) error
}
