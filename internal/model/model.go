// Package model holds the shared domain types: articles, perspectives,
// categories and analysis records.
package model

import "time"

// Perspective is the editorial-viewpoint tag attached to a feed source
// at configuration time. It is never inferred from article text.
type Perspective string

const (
	PerspectiveItalianMainstream Perspective = "italian_mainstream"
	PerspectiveWesternMainstream Perspective = "western_mainstream"
	PerspectiveAlternativeLeft   Perspective = "alternative_left"
	PerspectiveProIsrael         Perspective = "pro_israel"
	PerspectiveArabMedia         Perspective = "arab_media"
	PerspectiveRussianState      Perspective = "russian_state"
	PerspectiveChineseState      Perspective = "chinese_state"
	PerspectiveThinkTank         Perspective = "think_tank"
	PerspectiveOther             Perspective = "other"
)

// AllPerspectives lists the closed set of configured perspectives in a
// fixed order. Prompts use it to tell the model which viewpoints are
// missing from a selection.
func AllPerspectives() []Perspective {
	return []Perspective{
		PerspectiveItalianMainstream,
		PerspectiveWesternMainstream,
		PerspectiveAlternativeLeft,
		PerspectiveProIsrael,
		PerspectiveArabMedia,
		PerspectiveRussianState,
		PerspectiveChineseState,
		PerspectiveThinkTank,
		PerspectiveOther,
	}
}

var perspectiveLabels = map[Perspective]string{
	PerspectiveItalianMainstream: "Italian mainstream press",
	PerspectiveWesternMainstream: "Western mainstream press",
	PerspectiveAlternativeLeft:   "Alternative / anti-war outlets",
	PerspectiveProIsrael:         "Pro-Israel press",
	PerspectiveArabMedia:         "Arab media",
	PerspectiveRussianState:      "Russian state media",
	PerspectiveChineseState:      "Chinese state media",
	PerspectiveThinkTank:         "Think tanks and defense analysis",
	PerspectiveOther:             "Other sources",
}

// Label returns the human-readable name used in prompts and results.
func (p Perspective) Label() string {
	if l, ok := perspectiveLabels[p]; ok {
		return l
	}
	return string(p)
}

// Valid reports whether p belongs to the configured perspective set.
func (p Perspective) Valid() bool {
	_, ok := perspectiveLabels[p]
	return ok
}

// Topical-region categories assigned per article by keyword match.
const (
	CategoryRussiaUkraine    = "Russia-Ukraine"
	CategoryMiddleEast       = "Middle East"
	CategoryChinaIndoPacific = "China & Indo-Pacific"
	CategoryAfricaSahel      = "Africa & Sahel"
	CategoryNATOWest         = "NATO & West"
	CategoryOther            = "Other"
)

// Article is a single ingested feed entry. Identity is the link: the
// first successful insert wins, later fetches of the same link are
// no-ops. Category and perspective are assigned at ingestion time and
// never recomputed.
type Article struct {
	Source      string      `json:"source"`
	Title       string      `json:"title"`
	Link        string      `json:"link"`
	Summary     string      `json:"summary"`
	Published   string      `json:"published"`
	Category    string      `json:"category"`
	Perspective Perspective `json:"perspective"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// Analysis is one persisted narrative analysis, immutable once written.
// Older analyses sharing keywords are fed back into later prompts as
// historical context.
type Analysis struct {
	ID           int64     `json:"id"`
	Keywords     []string  `json:"keywords"`
	ArticleCount int       `json:"article_count"`
	Summary      string    `json:"summary"`
	Narratives   string    `json:"narratives"`
	Divergences  string    `json:"divergences"`
	BlindSpots   string    `json:"blind_spots"`
	Outlook      string    `json:"outlook"`
	VideoScript  string    `json:"video_script"`
	CreatedAt    time.Time `json:"created_at"`
}

// AnalysisResult is the full payload stored on a finished job record,
// echoing the inputs alongside the parsed analysis.
type AnalysisResult struct {
	Keywords          []string               `json:"keywords"`
	ArticleCount      int                    `json:"article_count"`
	Articles          []Article              `json:"articles"`
	PerspectiveLabels map[Perspective]string `json:"perspective_labels"`
	Analysis          Analysis               `json:"analysis"`
	HadHistory        bool                   `json:"had_history"`
}
