package transport

import (
	"fmt"

	"safecircle/internal/notification/models"
	dErrors "safecircle/pkg/domain-errors"
	"safecircle/pkg/platform/secrets"
)

// CallbackKeys holds, per channel, the bcrypt hash of the key that channel's
// provider sends with delivery callbacks. A channel without an entry accepts
// no callbacks.
type CallbackKeys map[models.Channel]string

// ParseCallbackKeys builds CallbackKeys from configuration keyed by channel
// name.
func ParseCallbackKeys(raw map[string]string) (CallbackKeys, error) {
	keys := make(CallbackKeys, len(raw))
	for name, hash := range raw {
		ch, err := models.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		if err := secrets.CheckHash(hash); err != nil {
			return nil, fmt.Errorf("callback key for %s: %w", ch, err)
		}
		keys[ch] = hash
	}
	return keys, nil
}

func (k CallbackKeys) Verify(ch models.Channel, key string) error {
	hash, ok := k[ch]
	if !ok {
		return dErrors.Newf(dErrors.CodeUnauthorized, "no callbacks accepted for %s", ch)
	}
	if key == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "provider key required")
	}
	return secrets.Verify(key, hash)
}
