package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"gopkg.in/yaml.v3"
)

//go:embed locales
var LocalesFS embed.FS

// Message keys used by the member-facing notifications.
const (
	KeyPaymentStarted         = "payment_started"
	KeyPaymentConfirmed       = "payment_confirmed"
	KeyPaymentConfirmedUntil  = "payment_confirmed_until"
	KeyPaymentPartial         = "payment_partial"
	KeyPaymentStatusUpdated   = "payment_status_updated"
	KeyPaymentSessionExpired  = "payment_session_expired"
	KeyPaymentUnknown         = "payment_unknown"
	KeySubscriptionExpiring   = "subscription_expiring"
	KeySubscriptionExpired    = "subscription_expired"
	KeySubscriptionMethodGone = "subscription_method_removed"
)

type Translator struct {
	translations map[string]string
}

// NewTranslator loads locales/<lang>.yaml from fsys.
func NewTranslator(fsys fs.FS, langCode string) (*Translator, error) {
	filePath := path.Join("locales", fmt.Sprintf("%s.yaml", langCode))
	data, err := fs.ReadFile(fsys, filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read translation file %s: %w", filePath, err)
	}
	return newTranslatorFromBytes(data)
}

func newTranslatorFromBytes(data []byte) (*Translator, error) {
	var translations map[string]string
	if err := yaml.Unmarshal(data, &translations); err != nil {
		return nil, fmt.Errorf("failed to parse translation file: %w", err)
	}
	return &Translator{translations: translations}, nil
}

// T formats the message stored under key; an unknown key is returned as is.
func (t *Translator) T(key string, args ...interface{}) string {
	format, ok := t.translations[key]
	if !ok {
		return key
	}
	if len(args) > 0 {
		return fmt.Sprintf(format, args...)
	}
	return format
}
