package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrInvalidQR QR не содержит смену и тариф
var ErrInvalidQR = errors.New("QR inválido")

// ParseFareQR разбирает JSON из QR водителя
func ParseFareQR(raw string) (FareQR, error) {
	var qr FareQR
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &qr); err != nil {
		return FareQR{}, ErrInvalidQR
	}
	qr.Shift = strings.TrimSpace(qr.Shift)
	qr.Fare = strings.TrimSpace(qr.Fare)
	if qr.Shift == "" || qr.Fare == "" {
		return FareQR{}, ErrInvalidQR
	}
	return qr, nil
}

// Encode возвращает содержимое QR для показа пассажиру
func (q FareQR) Encode() string {
	data, _ := json.Marshal(q)
	return string(data)
}
