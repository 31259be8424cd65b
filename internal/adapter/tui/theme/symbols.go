package theme

import (
	"os"
	"strings"
)

// SymbolSet holds the status bar glyphs, with an ASCII fallback for
// terminals without Unicode.
type SymbolSet struct {
	Pass    string
	Fail    string
	Skip    string
	Blocked string
}

var unicodeSymbols = SymbolSet{
	Pass:    "✓",
	Fail:    "✗",
	Skip:    "↷",
	Blocked: "⚠",
}

var asciiSymbols = SymbolSet{
	Pass:    "[OK]",
	Fail:    "[FAIL]",
	Skip:    "[-]",
	Blocked: "[!]",
}

// Symbols is the active set, chosen at init.
var Symbols = unicodeSymbols

// DetectUnicodeSupport reports whether the terminal likely renders Unicode.
// WARRIOR_ASCII_SYMBOLS=1 forces ASCII; otherwise a non-UTF-8 locale does.
func DetectUnicodeSupport() bool {
	if v := os.Getenv("WARRIOR_ASCII_SYMBOLS"); v == "1" || strings.EqualFold(v, "true") {
		return false
	}
	for _, key := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := strings.ToLower(os.Getenv(key))
		if val == "" {
			continue
		}
		return strings.Contains(val, "utf-8") || strings.Contains(val, "utf8")
	}
	return true
}

// InitSymbols re-reads the environment and picks the symbol set.
func InitSymbols() {
	if DetectUnicodeSupport() {
		Symbols = unicodeSymbols
	} else {
		Symbols = asciiSymbols
	}
}

func init() {
	InitSymbols()
}
