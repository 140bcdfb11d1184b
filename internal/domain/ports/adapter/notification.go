package adapter

import "context"

// NotificationSink posts a JSON payload to an external URL once.
type NotificationSink interface {
	Notify(ctx context.Context, url string, payload map[string]any) error
}
