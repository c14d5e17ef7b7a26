package render

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"
)

// baseFuncMap returns the template functions available to every block
// and component. The "component" function is bound per render pass.
func baseFuncMap() template.FuncMap {
	return template.FuncMap{
		"formatMoney": formatMoney,
		"truncate":    truncateString,
		"upper":       strings.ToUpper,
		"lower":       strings.ToLower,
		"trim":        strings.TrimSpace,
		"replace":     strings.ReplaceAll,
		"join":        strings.Join,
		"default":     defaultFunc,
		"safeHTML":    safeHTML,
		"safeURL":     safeURL,
		"pct":         formatPercent,
	}
}

func formatMoney(amount decimal.Decimal, currency string) string {
	symbol := currencySymbol(currency)
	return symbol + amount.StringFixed(2)
}

func currencySymbol(currency string) string {
	switch strings.ToUpper(currency) {
	case "USD", "":
		return "$"
	case "EUR":
		return "€"
	case "GBP":
		return "£"
	case "JPY", "CNY":
		return "¥"
	default:
		return strings.ToUpper(currency) + " "
	}
}

func formatPercent(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

func truncateString(s string, n int) string {
	if n <= 0 || len([]rune(s)) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}

func defaultFunc(def, val interface{}) interface{} {
	if val == nil {
		return def
	}
	if s, ok := val.(string); ok && s == "" {
		return def
	}
	return val
}

func safeHTML(s string) template.HTML {
	return template.HTML(s)
}

func safeURL(s string) template.URL {
	return template.URL(s)
}
