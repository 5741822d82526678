package leads

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var specificModels = []string{
	"GLA", "GLC", "GLE", "GLS", "X1", "X3", "X5", "X7", "Q3", "Q5", "Q7",
	"A3", "A4", "A6", "A8", "520D", "320D", "DEFENDER", "EVOQUE", "VELAR", "DISCOVERY",
}

var matchBrands = []string{
	"MERCEDES", "BMW", "AUDI", "LAND ROVER", "JAGUAR", "VOLVO", "PORSCHE", "MINI", "COOPER",
}

var stopWords = map[string]bool{
	"A": true, "AN": true, "THE": true, "OR": true, "AND": true, "FOR": true, "UNDER": true,
	"OVER": true, "WITH": true, "IN": true, "AT": true, "TO": true, "OF": true, "LOOKING": true,
	"WANT": true, "NEED": true, "BUY": true, "CAR": true, "USED": true, "LUXURY": true,
	"SECOND": true, "HAND": true, "PRE": true, "OWNED": true, "BUDGET": true, "AROUND": true,
	"APPROX": true,
}

// budgetFigure matches bare numbers and lakh figures like "40L".
var budgetFigure = regexp.MustCompile(`^\d+L?$`)

var tokenSeparators = strings.NewReplacer("₹", " ", ",", " ", ".", " ")

// RequirementMatches reports whether a lead's free-text requirement fits a
// listed model. Specific model codes win, then brand plus any further word,
// then any remaining meaningful token.
//
//	"Looking for GLA or GLC under 40L" matches "MERCEDES BENZ GLA 200"
//	"Audi Q5"                          matches "AUDI Q5 PREMIUM PLUS"
func RequirementMatches(requirement, model string) bool {
	if strings.TrimSpace(requirement) == "" {
		return false
	}
	req := strings.ToUpper(requirement)
	car := strings.ToUpper(model)

	for _, m := range specificModels {
		if strings.Contains(req, m) && strings.Contains(car, m) {
			return true
		}
	}

	for _, brand := range matchBrands {
		if !strings.Contains(req, brand) || !strings.Contains(car, brand) {
			continue
		}
		remaining := strings.TrimSpace(strings.Replace(req, brand, "", 1))
		if remaining == "" {
			return true
		}
		var words []string
		for _, w := range strings.Fields(remaining) {
			if utf8.RuneCountInString(w) >= 2 {
				words = append(words, w)
			}
		}
		if len(words) == 0 {
			return true
		}
		for _, w := range words {
			if strings.Contains(car, w) {
				return true
			}
		}
	}

	for _, tok := range strings.Fields(tokenSeparators.Replace(req)) {
		if utf8.RuneCountInString(tok) < 2 || stopWords[tok] || budgetFigure.MatchString(tok) {
			continue
		}
		if strings.Contains(car, tok) {
			return true
		}
	}
	return false
}

// alreadyAlerted reports whether model appears in the lead's alert log.
func alreadyAlerted(log, model string) bool {
	return log != "" && strings.Contains(strings.ToUpper(log), strings.ToUpper(model))
}

// appendAlertLog adds model to a comma-separated alert log.
func appendAlertLog(log, model string) string {
	if strings.TrimSpace(log) == "" {
		return model
	}
	return log + ", " + model
}
