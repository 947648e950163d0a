package controller

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// BuildHash хэш сборки приложения, задается при сборке:
//
//	go build -ldflags "-X PaykiPlatform/services/offline-cache/internal/controller.BuildHash=$(git rev-parse HEAD)"
var BuildHash = "dev"

// StrategyRevision меняется вместе с правилами классификации запросов
const StrategyRevision = "4"

// GenerationName возвращает имя поколения кэша для текущей сборки.
// Имя меняется при смене сборки, правил или списка предзагрузки.
func GenerationName(prefix string, precache []string) string {
	h := sha256.New()
	h.Write([]byte(BuildHash))
	h.Write([]byte{0})
	h.Write([]byte(StrategyRevision))
	for _, path := range precache {
		h.Write([]byte{0})
		h.Write([]byte(path))
	}
	sum := hex.EncodeToString(h.Sum(nil))[:12]

	prefix = strings.TrimSuffix(prefix, "-")
	if prefix == "" {
		return sum
	}
	return prefix + "-" + sum
}
