package service

import (
	"encoding/base64"
	"strings"

	pkgerrors "PaykiPlatform/pkg/errors"
)

// DecodeVAPIDKey декодирует публичный VAPID ключ в base64url.
// Кавычки по краям и пробельные символы отбрасываются, padding не обязателен.
func DecodeVAPIDKey(key string) ([]byte, error) {
	cleaned := strings.Trim(strings.TrimSpace(key), `"`)
	cleaned = strings.Join(strings.Fields(cleaned), "")
	if cleaned == "" {
		return nil, pkgerrors.New(pkgerrors.ErrValidation, "VAPID public key is empty")
	}

	b64 := strings.NewReplacer("-", "+", "_", "/").Replace(cleaned)
	if pad := len(b64) % 4; pad != 0 {
		b64 += strings.Repeat("=", 4-pad)
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrValidation, "invalid VAPID public key (not Base64/Base64URL)")
	}
	return raw, nil
}
