package cmd

import (
	"fmt"
	"strconv"

	"PaykiPlatform/services/session-sync/internal/domain"
)

// stateView представление состояния сессии для вывода
type stateView struct {
	domain.State `yaml:",inline"`
}

func newStateView(state domain.State) stateView {
	return stateView{State: state}
}

// Table реализует output.Tabular
func (v stateView) Table() ([]string, [][]string) {
	rows := [][]string{
		{"user", orDash(v.UserID)},
		{"email", orDash(v.Email)},
		{"online", strconv.FormatBool(v.Online)},
		{"syncing", strconv.FormatBool(v.Syncing)},
	}
	if p := v.Profile; p != nil {
		rows = append(rows,
			[]string{"name", orDash(p.FullName)},
			[]string{"role", string(p.Role)},
		)
		if p.Balance != nil {
			rows = append(rows, []string{"balance", money(*p.Balance)})
		}
	} else {
		rows = append(rows, []string{"profile", "-"})
	}
	if v.Error != "" {
		rows = append(rows, []string{"error", fmt.Sprintf("%s (%s)", v.Error, v.ErrorClass)})
	}
	return []string{"FIELD", "VALUE"}, rows
}

// summaryView история пассажира
type summaryView struct {
	domain.PassengerSummary `yaml:",inline"`
}

// Table реализует output.Tabular
func (v summaryView) Table() ([]string, [][]string) {
	rows := make([][]string, 0, len(v.Recent)+1)
	rows = append(rows, []string{"", "Saldo", money(v.Balance)})
	for _, a := range v.Recent {
		rows = append(rows, []string{a.ID, a.Label, money(a.Amount)})
	}
	return []string{"ID", "DETALLE", "MONTO"}, rows
}

func money(v float64) string {
	return fmt.Sprintf("S/ %.2f", v)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
