package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	pkgerrors "PaykiPlatform/pkg/errors"
	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/repository"
)

// RecentLimit число последних движений в сводке пассажира
const RecentLimit = 15

const activityDateLayout = "02/01/2006 15:04"

var fareLabels = map[string]string{
	"troncal":       "Troncal",
	"integrada":     "Integrada",
	"interburano":   "Interburbano",
	"interurbano":   "Interburbano",
	"urbano":        "Urbano",
	"zonal":         "Zonal",
	"general":       "General",
	"universitario": "Universitario",
	"escolar":       "Escolar",
}

// ActivityService собирает баланс и историю пассажира
type ActivityService struct {
	repo     repository.ActivityRepository
	logger   logger.Logger
	location *time.Location
}

// NewActivityService создает сервис; даты подписываются по времени Лимы
func NewActivityService(repo repository.ActivityRepository, log logger.Logger) *ActivityService {
	loc, err := time.LoadLocation("America/Lima")
	if err != nil {
		loc = time.FixedZone("PET", -5*60*60)
	}
	return &ActivityService{repo: repo, logger: log, location: loc}
}

// PassengerSummary возвращает баланс и последние поездки и пополнения
func (s *ActivityService) PassengerSummary(ctx context.Context, userID string) (*domain.PassengerSummary, error) {
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.ErrUnauthorized, "Inicia sesión.")
	}

	balance, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	txs, err := s.repo.RecentTransactions(ctx, userID, RecentLimit)
	if err != nil {
		return nil, err
	}

	recent := make([]domain.Activity, 0, len(txs))
	for _, tx := range txs {
		if tx.Type != domain.TransactionRide && tx.Type != domain.TransactionTopup {
			continue
		}
		recent = append(recent, domain.Activity{
			ID:     tx.ID,
			Type:   tx.Type,
			Label:  s.Label(tx),
			Amount: tx.Amount,
			Date:   tx.TS,
		})
	}

	s.logger.Debug("Passenger summary built",
		logger.String("user_id", userID),
		logger.Int("recent", len(recent)))

	return &domain.PassengerSummary{Balance: balance, Recent: recent}, nil
}

// Label формирует подпись движения, например "Viaje - Troncal - 05/03/2025 08:15"
func (s *ActivityService) Label(tx *domain.Transaction) string {
	when := tx.TS.In(s.location).Format(activityDateLayout)
	if tx.Type == domain.TransactionTopup {
		return fmt.Sprintf("Recarga - Tarjeta - %s", when)
	}
	return fmt.Sprintf("Viaje - %s - %s", FareLabel(tx.Meta), when)
}

// FareLabel выбирает название тарифа по fare_code, затем fare_label
func FareLabel(meta map[string]interface{}) string {
	if code, ok := meta["fare_code"].(string); ok && code != "" {
		if label, ok := fareLabels[strings.ToLower(code)]; ok {
			return label
		}
		return code
	}
	if label, ok := meta["fare_label"].(string); ok && label != "" {
		return label
	}
	return "Pasaje"
}
