package analysis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"geopulse/internal/model"
)

const (
	// maxPriorAnalyses caps how much history rides along in the prompt.
	maxPriorAnalyses = 2
	// excerpt caps, in runes.
	summaryExcerptLen = 300
	priorExcerptLen   = 600
)

// BuildPrompt assembles the narrative-mapping prompt: the selected
// articles grouped under their perspective labels, an explicit note on
// which configured perspectives have no coverage in this selection, and
// excerpts of the most recent prior analyses on the same keywords.
func BuildPrompt(keywords []string, articles []model.Article, prior []model.Analysis) string {
	var b strings.Builder

	b.WriteString("You are a geopolitical media analyst. Your method is narrative mapping: ")
	b.WriteString("summarize how each editorial perspective frames the story separately, never collapse them into one verdict.\n\n")
	fmt.Fprintf(&b, "TOPIC KEYWORDS: %s\n\n", strings.Join(keywords, ", "))

	present := make(map[model.Perspective]bool)
	var order []model.Perspective
	for _, a := range articles {
		if !present[a.Perspective] {
			present[a.Perspective] = true
			order = append(order, a.Perspective)
		}
	}

	fmt.Fprintf(&b, "ARTICLES (%d total, grouped by perspective):\n\n", len(articles))
	for _, p := range order {
		fmt.Fprintf(&b, "### %s\n", p.Label())
		for _, a := range articles {
			if a.Perspective != p {
				continue
			}
			fmt.Fprintf(&b, "- [%s] %s\n", a.Source, a.Title)
			if excerpt := truncateRunes(a.Summary, summaryExcerptLen); excerpt != "" {
				fmt.Fprintf(&b, "  %s\n", excerpt)
			}
		}
		b.WriteString("\n")
	}

	var missing []string
	for _, p := range model.AllPerspectives() {
		if !present[p] {
			missing = append(missing, p.Label())
		}
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "PERSPECTIVES WITH NO COVERAGE IN THIS SELECTION: %s\n", strings.Join(missing, "; "))
		b.WriteString("Factor this missing coverage into your assessment of what the combined picture can and cannot show.\n\n")
	}

	if len(prior) > 0 {
		b.WriteString("PRIOR ANALYSES ON THIS TOPIC (most recent first, for continuity):\n\n")
		for i, pa := range prior {
			if i >= maxPriorAnalyses {
				break
			}
			fmt.Fprintf(&b, "[%s] %s\n\n", pa.CreatedAt.Format("2006-01-02"), truncateRunes(pa.Summary, priorExcerptLen))
		}
		b.WriteString("Note developments since these analyses where relevant.\n\n")
	}

	b.WriteString("Respond in markdown with exactly these sections, keeping the headers verbatim:\n\n")
	fmt.Fprintf(&b, "## %s\nThe story in 4-6 sentences.\n\n", sectionSummary)
	fmt.Fprintf(&b, "## %s\nHow each perspective present above frames the story, one paragraph per perspective.\n\n", sectionNarratives)
	fmt.Fprintf(&b, "## %s\nWhere the framings agree and where they conflict.\n\n", sectionDivergences)
	fmt.Fprintf(&b, "## %s\nWhat the missing perspectives would likely emphasize; known unknowns.\n\n", sectionBlindSpots)
	fmt.Fprintf(&b, "## %s\nTwo or three plausible near-term scenarios.\n\n", sectionOutlook)
	fmt.Fprintf(&b, "## %s\nA 60-90 second spoken video script in a neutral, direct register.\n", sectionVideoScript)

	return b.String()
}

// truncateRunes cuts s to at most n runes, collapsing whitespace and
// trying to end on a sentence boundary.
func truncateRunes(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	trimmed := string(runes[:n])
	if idx := strings.LastIndex(trimmed, ". "); idx > n/3 {
		return trimmed[:idx+1]
	}
	return trimmed + "..."
}
