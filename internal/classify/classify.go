// Package classify filters feed entries for topical relevance and files
// them into regional categories. Both checks are plain substring scans
// over lower-cased text: short keywords can match inside longer words
// ("war" inside "warfare"). That looseness is deliberate, it tolerates
// inflected forms in the bilingual keyword set.
package classify

import (
	"strings"

	"geopulse/internal/model"
)

var keywordsIT = []string{
	"guerra", "conflitto", "militare", "esercito", "nato", "ucraina", "russia",
	"cina", "taiwan", "israele", "palestina", "gaza", "siria", "iran", "medio oriente",
	"geopolitica", "sanzioni", "missili", "bombe", "attacco", "offensiva", "difesa",
	"diplomazia", "accordo", "trattato", "embargo", "cremlino", "zelensky", "putin",
	"brics", "g7", "g20", "balcani", "africa", "sahel", "houthi", "hezbollah",
	"armi", "nucleare", "droni", "esercitazione", "invasione", "truppe", "fronte",
}

var keywordsEN = []string{
	"war", "conflict", "military", "army", "nato", "ukraine", "russia",
	"china", "taiwan", "israel", "palestine", "gaza", "syria", "iran", "middle east",
	"geopolitics", "sanctions", "missile", "bomb", "attack", "offensive", "defense",
	"diplomacy", "treaty", "embargo", "kremlin", "zelensky", "putin",
	"brics", "g7", "g20", "balkans", "africa", "sahel", "houthi", "hezbollah",
	"weapons", "nuclear", "drone", "exercise", "troops", "forces", "invasion",
	"ceasefire", "peace talks", "coup", "airstrike", "frontline", "casualties",
	"geopolitical", "security council", "pentagon", "warfare",
}

// relevanceKeywords is the deduplicated union of both language lists.
var relevanceKeywords = func() []string {
	seen := make(map[string]struct{}, len(keywordsIT)+len(keywordsEN))
	var all []string
	for _, kw := range append(append([]string{}, keywordsIT...), keywordsEN...) {
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		all = append(all, kw)
	}
	return all
}()

type categoryRule struct {
	name     string
	keywords []string
}

// categoryRules is scanned in declaration order and the first match
// wins. The ordering is load-bearing: an article mentioning both
// Ukraine and NATO is filed under Russia-Ukraine because that rule is
// checked first.
var categoryRules = []categoryRule{
	{model.CategoryRussiaUkraine, []string{
		"ucraina", "ukraine", "russia", "zelensky", "putin", "donbass", "kharkiv",
		"kherson", "zaporizhzhia", "crimea", "mosca", "kiev", "kyiv",
	}},
	{model.CategoryMiddleEast, []string{
		"israel", "israele", "palestin", "gaza", "hamas", "hezbollah", "iran",
		"libano", "lebanon", "houthi", "yemen", "siria", "syria", "netanyahu",
	}},
	{model.CategoryChinaIndoPacific, []string{
		"china", "cina", "taiwan", "asia", "indo-pacific", "south china sea",
		"japan", "giappone", "corea", "korea", "beijing", "pechino", "xi jinping",
	}},
	{model.CategoryAfricaSahel, []string{
		"africa", "sahel", "mali", "niger", "sudan", "ethiopia", "somalia",
		"congo", "burkina", "mozambico", "mozambique",
	}},
	{model.CategoryNATOWest, []string{
		"nato", "g7", "eu", "ue", "europa", "europe", "difesa", "defense",
		"allean", "pentagon", "washington", "bruxelles", "brussels",
	}},
}

// Relevant reports whether the lower-cased concatenation of title and
// summary contains at least one keyword from the bilingual set.
func Relevant(title, summary string) bool {
	text := strings.ToLower(title + " " + summary)
	for _, kw := range relevanceKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Category returns the first category whose keyword list matches the
// lower-cased text, or Other when none does.
func Category(text string) string {
	lower := strings.ToLower(text)
	for _, rule := range categoryRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.name
			}
		}
	}
	return model.CategoryOther
}

// Categories lists every known category in scan order, Other last.
func Categories() []string {
	names := make([]string, 0, len(categoryRules)+1)
	for _, rule := range categoryRules {
		names = append(names, rule.name)
	}
	return append(names, model.CategoryOther)
}
