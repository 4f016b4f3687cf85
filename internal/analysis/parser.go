package analysis

import (
	"regexp"
	"strings"
)

// Canonical section headers the prompt asks the model to emit. The
// response is expected to contain markdown headers of the form
// "## <N>. <TITLE>"; each section runs until the next "## " header.
const (
	sectionSummary     = "1. EXECUTIVE SUMMARY"
	sectionNarratives  = "2. NARRATIVE MAP"
	sectionDivergences = "3. CONVERGENCES AND DIVERGENCES"
	sectionBlindSpots  = "4. COVERAGE GAPS"
	sectionOutlook     = "5. SCENARIOS AND OUTLOOK"
	sectionVideoScript = "6. VIDEO SCRIPT"
)

// videoScriptHint is the substring used for the fuzzy fallback when the
// model reworded the video-script header.
const videoScriptHint = "video"

var nextHeaderRe = regexp.MustCompile(`(?m)^##\s`)

// Sections holds the parsed pieces of one model response. Any section
// the response lacks stays empty; that is degraded output, not an
// error.
type Sections struct {
	Summary     string
	Narratives  string
	Divergences string
	BlindSpots  string
	Outlook     string
	VideoScript string
}

// ParseSections splits the raw model response into named sections. The
// video-script section gets a fuzzy second chance because its header
// wording is the least stable across completions.
func ParseSections(text string) Sections {
	s := Sections{
		Summary:     extractSection(text, sectionSummary),
		Narratives:  extractSection(text, sectionNarratives),
		Divergences: extractSection(text, sectionDivergences),
		BlindSpots:  extractSection(text, sectionBlindSpots),
		Outlook:     extractSection(text, sectionOutlook),
		VideoScript: extractSection(text, sectionVideoScript),
	}
	if s.VideoScript == "" {
		s.VideoScript = extractSectionFuzzy(text, videoScriptHint)
	}
	return s
}

// extractSection returns the trimmed content between the header line
// "## <title>" and the next "## " header (or end of text). Missing
// headers yield an empty string.
func extractSection(text, title string) string {
	re := regexp.MustCompile(`(?mi)^##\s*` + regexp.QuoteMeta(title) + `\s*$`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return sectionBody(text[loc[1]:])
}

// extractSectionFuzzy matches any "## " header line containing hint as
// a substring, case-insensitively.
func extractSectionFuzzy(text, hint string) string {
	re := regexp.MustCompile(`(?mi)^##[^\n]*` + regexp.QuoteMeta(hint) + `[^\n]*$`)
	loc := re.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	return sectionBody(text[loc[1]:])
}

func sectionBody(rest string) string {
	if next := nextHeaderRe.FindStringIndex(rest); next != nil {
		rest = rest[:next[0]]
	}
	return strings.TrimSpace(rest)
}
