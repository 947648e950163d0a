package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"PaykiPlatform/pkg/logger"
	"PaykiPlatform/services/session-sync/internal/domain"
	"PaykiPlatform/services/session-sync/internal/mocks"
)

func TestPassengerSummary(t *testing.T) {
	repo := new(mocks.MockActivityRepository)
	svc := NewActivityService(repo, logger.NewNopLogger())

	// 13:15 UTC = 08:15 в Лиме
	ride := &domain.Transaction{
		ID: "t1", Type: domain.TransactionRide, Amount: -1.5,
		TS:   time.Date(2025, 3, 5, 13, 15, 0, 0, time.UTC),
		Meta: map[string]interface{}{"fare_code": "TRONCAL"},
	}
	topup := &domain.Transaction{
		ID: "t2", Type: domain.TransactionTopup, Amount: 20,
		TS: time.Date(2025, 3, 4, 2, 5, 0, 0, time.UTC),
	}

	repo.On("GetBalance", mock.Anything, "u1").Return(18.5, nil)
	repo.On("RecentTransactions", mock.Anything, "u1", RecentLimit).Return([]*domain.Transaction{ride, topup}, nil)

	summary, err := svc.PassengerSummary(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, 18.5, summary.Balance)
	require.Len(t, summary.Recent, 2)
	assert.Equal(t, "Viaje - Troncal - 05/03/2025 08:15", summary.Recent[0].Label)
	assert.Equal(t, "Recarga - Tarjeta - 03/03/2025 21:05", summary.Recent[1].Label)
	assert.Equal(t, ride.TS, summary.Recent[0].Date)
}

func TestPassengerSummary_Errors(t *testing.T) {
	repo := new(mocks.MockActivityRepository)
	svc := NewActivityService(repo, logger.NewNopLogger())

	_, err := svc.PassengerSummary(context.Background(), "")
	assert.Error(t, err)

	repo.On("GetBalance", mock.Anything, "u1").Return(0.0, errors.New("rls"))
	_, err = svc.PassengerSummary(context.Background(), "u1")
	assert.EqualError(t, err, "rls")
}

func TestFareLabel(t *testing.T) {
	tests := []struct {
		meta map[string]interface{}
		want string
	}{
		{map[string]interface{}{"fare_code": "interburano"}, "Interburbano"},
		{map[string]interface{}{"fare_code": "Escolar"}, "Escolar"},
		{map[string]interface{}{"fare_code": "nocturno"}, "nocturno"},
		{map[string]interface{}{"fare_label": "Especial"}, "Especial"},
		{map[string]interface{}{"fare_code": "", "fare_label": "Especial"}, "Especial"},
		{nil, "Pasaje"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FareLabel(tt.meta))
	}
}
