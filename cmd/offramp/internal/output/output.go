// Package output renders CLI results as styled text, tables or JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Stdout and Stderr are swapped out by tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

type tone int

const (
	toneNeutral tone = iota
	toneGood
	toneWaiting
	toneBad
)

var (
	styles = map[tone]lipgloss.Style{
		toneNeutral: lipgloss.NewStyle(),
		toneGood:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		toneWaiting: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		toneBad:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	amountStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
)

// statusTones covers session states, provider statuses and catalog states.
var statusTones = map[string]tone{
	"idle":               toneWaiting,
	"wallet_resolved":    toneGood,
	"transfer_pending":   toneWaiting,
	"transfer_confirmed": toneGood,
	"transfer_failed":    toneBad,
	"execution_pending":  toneWaiting,
	"execution_complete": toneGood,
	"execution_failed":   toneBad,
	"cancelled":          toneBad,
	"initiated":          toneWaiting,
	"pending":            toneWaiting,
	"processing":         toneWaiting,
	"successful":         toneGood,
	"failed":             toneBad,
	"found":              toneGood,
	"not_found":          toneBad,
	"loading":            toneWaiting,
	"active":             toneGood,
}

func toneOf(status string) tone {
	return statusTones[strings.ToLower(status)]
}

func JSON(v any) error {
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func Table(headers []string, rows [][]string) {
	t := tablewriter.NewWriter(Stdout)
	t.SetHeader(headers)
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("│")
	t.SetColumnSeparator("│")
	t.SetRowSeparator("─")
	t.AppendBulk(rows)
	t.Render()
}

// KeyValue prints aligned pairs. Pairs with an empty value are skipped.
func KeyValue(pairs [][]string) {
	width := 0
	for _, p := range pairs {
		width = max(width, len(p[0]))
	}
	for _, p := range pairs {
		if p[1] != "" {
			fmt.Fprintf(Stdout, "%s  %s\n", mutedStyle.Render(fmt.Sprintf("%-*s", width, p[0])), p[1])
		}
	}
}

func Success(msg string) { fmt.Fprintln(Stdout, styles[toneGood].Render("✓ ")+msg) }
func Warning(msg string) { fmt.Fprintln(Stdout, styles[toneWaiting].Render("⚠ ")+msg) }
func Error(msg string)   { fmt.Fprintln(Stderr, styles[toneBad].Render("✗ ")+msg) }
func Info(msg string)    { fmt.Fprintln(Stdout, mutedStyle.Render(msg)) }
func Header(msg string)  { fmt.Fprintln(Stdout, headerStyle.Render(msg)) }

// Amount formats a token or fiat amount without losing precision.
func Amount(amount decimal.Decimal, unit string) string {
	return amountStyle.Render(strings.TrimSpace(amount.String() + " " + unit))
}

// FormatStatus colours a session state or provider status by whether it is
// done, waiting or failed.
func FormatStatus(status string) string {
	return styles[toneOf(status)].Render(status)
}

// Short abbreviates long hashes and addresses for tables.
func Short(s string) string {
	if len(s) <= 14 {
		return s
	}
	return s[:8] + "…" + s[len(s)-4:]
}
