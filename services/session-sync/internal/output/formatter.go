package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v2"
)

// FormatType формат вывода команд
type FormatType string

const (
	FormatTable FormatType = "table"
	FormatJSON  FormatType = "json"
	FormatYAML  FormatType = "yaml"
)

// Tabular данные, которые умеют отображаться таблицей
type Tabular interface {
	Table() (headers []string, rows [][]string)
}

// ParseFormat разбирает значение флага --output
func ParseFormat(value string) (FormatType, error) {
	switch FormatType(strings.ToLower(value)) {
	case FormatTable, "":
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected table, json or yaml", value)
}

// Printer печатает результаты команд в выбранном формате
type Printer struct {
	format FormatType
	w      io.Writer
}

// NewPrinter создает принтер
func NewPrinter(format FormatType, w io.Writer) *Printer {
	return &Printer{format: format, w: w}
}

// Print выводит данные. Для table без Tabular используется YAML.
func (p *Printer) Print(data interface{}) error {
	switch p.format {
	case FormatJSON:
		out, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(p.w, string(out))
		return err
	case FormatTable:
		if t, ok := data.(Tabular); ok {
			return p.table(t)
		}
	}

	out, err := yaml.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = p.w.Write(out)
	return err
}

func (p *Printer) table(t Tabular) error {
	headers, rows := t.Table()
	if len(rows) == 0 {
		_, err := fmt.Fprintln(p.w, "Sin datos")
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	separators := make([]string, len(headers))
	for i, h := range headers {
		separators[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(separators, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}
