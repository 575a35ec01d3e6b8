package usecase

import (
	"strings"

	"EconPulse/internal/domain/models"
)

type themeRule struct {
	theme models.Theme
	match func(title string) bool
}

func containsAny(keywords ...string) func(string) bool {
	return func(title string) bool {
		for _, k := range keywords {
			if strings.Contains(title, k) {
				return true
			}
		}
		return false
	}
}

// themeTable is evaluated top to bottom; a title takes the first theme it matches.
var themeTable = []themeRule{
	{models.ThemeLabor, containsAny("employment", "payroll", "non-farm", "nonfarm", "unemployment", "jobless", "earnings", "jobs", "claimant", "adp", "labor", "labour", "jolts", "wage")},
	{models.ThemeTrade, containsAny("trade balance", "exports", "imports", "current account", "trade")},
	{models.ThemeInflation, containsAny("cpi", "ppi", "pce", "inflation", "consumer price", "producer price", "import price", "export price", "hicp")},
	{models.ThemeGDP, containsAny("gdp", "gross domestic")},
	{models.ThemePMI, containsAny("pmi", "purchasing managers")},
	{models.ThemeHousing, containsAny("housing", "home sales", "building permits", "house price", "mortgage", "construction")},
	{models.ThemeSpeech, containsAny("speaks", "speech", "testifies", "testimony", "press conference")},
	{models.ThemeRate, containsAny("rate decision", "interest rate", "cash rate", "bank rate", "policy rate", "overnight rate", "fomc", "monetary policy", "rate statement")},
	{models.ThemeInventory, containsAny("inventories", "inventory", "storage", "stockpiles")},
}

// ThemeOf returns the first theme whose keywords match title, or "" when none does.
func ThemeOf(title string) models.Theme {
	t := models.NormalizeTitle(title)
	for _, rule := range themeTable {
		if rule.match(t) {
			return rule.theme
		}
	}
	return ""
}

// ClassifyTheme votes over member titles. The winner must cover at least
// half the members, otherwise the group is mixed. Ties go to the theme
// listed first in the table.
func ClassifyTheme(events []models.CanonicalEvent) models.Theme {
	if len(events) == 0 {
		return models.ThemeMixed
	}
	counts := make(map[models.Theme]int, len(themeTable))
	for _, ev := range events {
		if th := ThemeOf(ev.Title); th != "" {
			counts[th]++
		}
	}

	best, bestCount := models.ThemeMixed, 0
	for _, rule := range themeTable {
		if c := counts[rule.theme]; c > bestCount {
			best, bestCount = rule.theme, c
		}
	}
	if bestCount == 0 || bestCount*2 < len(events) {
		return models.ThemeMixed
	}
	return best
}

var currencyGlyphs = map[string]string{
	"USD": "🇺🇸",
	"EUR": "🇪🇺",
	"GBP": "🇬🇧",
	"JPY": "🇯🇵",
	"AUD": "🇦🇺",
	"NZD": "🇳🇿",
	"CAD": "🇨🇦",
	"CHF": "🇨🇭",
	"CNY": "🇨🇳",
}

// CurrencyGlyph is the flag shown before a currency's titles.
func CurrencyGlyph(currency string) string {
	if g, ok := currencyGlyphs[strings.ToUpper(strings.TrimSpace(currency))]; ok {
		return g
	}
	return "🌐"
}

var themeLabels = map[models.Theme]string{
	models.ThemeLabor:     "Labor market",
	models.ThemeTrade:     "Trade",
	models.ThemeInflation: "Inflation",
	models.ThemeGDP:       "Growth",
	models.ThemePMI:       "Business activity",
	models.ThemeHousing:   "Housing",
	models.ThemeSpeech:    "Central bank speakers",
	models.ThemeRate:      "Rates",
	models.ThemeInventory: "Inventories",
	models.ThemeMixed:     "Mixed releases",
}

func ThemeLabel(t models.Theme) string {
	if l, ok := themeLabels[t]; ok {
		return l
	}
	return themeLabels[models.ThemeMixed]
}
