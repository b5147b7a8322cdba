package price

import (
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Unknown — значение для отсутствующих полей.
const Unknown = "—"

var printer = message.NewPrinter(language.English)

// FormatNumber: |n| >= 1 — разделители тысяч и 2 знака, |n| < 1 — до 8 знаков без хвостовых нулей.
func FormatNumber(n *float64) string {
	if n == nil || math.IsNaN(*n) || math.IsInf(*n, 0) {
		return Unknown
	}
	v := *n
	if math.Abs(v) >= 1 {
		return printer.Sprintf("%.2f", v)
	}
	s := strconv.FormatFloat(v, 'f', 8, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "" || s == "-" || s == "-0" {
		return "0"
	}
	return s
}

// Caption — подпись к ответу о токене.
func Caption(info *TokenInfo) string {
	name := info.Name
	if name == "" {
		name = "Unknown"
	}
	symbol := info.Symbol
	if symbol == "" {
		symbol = Unknown
	}
	return strings.Join([]string{
		name + " (" + symbol + ")",
		"Price (USD): $" + FormatNumber(info.PriceUSD),
		"Native price: " + FormatNumber(info.PriceNative),
		"Market Cap: $" + FormatNumber(info.MarketCap),
	}, "\n")
}
