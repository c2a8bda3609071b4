package selector

import (
	"strings"
	"unicode"

	"github.com/TimothiousAI/YokeFlowEvo-sub000/pkg/models"
)

// Complexity scoring weights. The four dimensions sum to 1.0.
const (
	weightReasoning = 0.35
	weightCode      = 0.30
	weightDomain    = 0.20
	weightContext   = 0.15
)

// Tier thresholds on the weighted score.
const (
	cheapBelow = 0.3
	midUpTo    = 0.7
)

// Stems match anywhere in the lowercased text; exact tokens guard short
// words like "ml" against substring hits ("html").

var reasoningStems = []string{
	"architect", "algorithm", "optimiz", "workflow", "multi-step",
	"distributed", "concurren", "state machine", "trade-off", "tradeoff",
}

var createStems = []string{"creat", "implement", "build", "scaffold", "from scratch"}

var modifyStems = []string{"fix", "update", "tweak", "adjust", "rename", "bump"}

var structureStems = []string{"module", "schema", "database", "interface", "service"}

var structureTokens = []string{"api"}

var simpleStems = []string{"simple", "trivial", "minor", "typo", "cosmetic", "one-line"}

var specialistStems = []string{
	"machine learning", "crypto", "compiler", "graphics", "embedded",
	"kernel", "neural", "shader", "codec",
}

var specialistTokens = []string{"ml", "gpu", "simd", "jit"}

var webTokens = []string{"web", "html", "css", "crud", "form", "page"}

var contextStems = []string{
	"refactor", "integrat", "legacy", "migrat", "backward",
	"cross-cutting", "dependen",
}

// ComplexityScore is the per-dimension breakdown for one task.
type ComplexityScore struct {
	Reasoning float64
	Code      float64
	Domain    float64
	Context   float64
	Total     float64
}

// ScoreComplexity rates a task's complexity in [0,1] across four
// dimensions: reasoning depth (architecture/algorithm/optimization
// language), code complexity (predicted file spread, create-vs-modify
// verbs, structural surfaces, with simple/trivial/minor subtracting),
// domain specificity (specialist domains high, general web low), and
// context requirements (refactor/integration/legacy/migration work).
func ScoreComplexity(t *models.Task) ComplexityScore {
	text := strings.ToLower(t.Text())
	toks := tokens(text)

	var s ComplexityScore
	s.Reasoning = stemScore(text, reasoningStems)
	s.Code = codeScore(text, toks, len(t.Metadata.PredictedFiles))
	s.Domain = domainScore(text, toks)
	s.Context = stemScore(text, contextStems)
	s.Total = weightReasoning*s.Reasoning + weightCode*s.Code +
		weightDomain*s.Domain + weightContext*s.Context
	return s
}

// TierForScore maps a weighted score to a tier: below 0.3 is cheap, up
// to 0.7 is mid, above is premium.
func TierForScore(total float64) models.ModelTier {
	switch {
	case total < cheapBelow:
		return models.TierCheap
	case total <= midUpTo:
		return models.TierMid
	default:
		return models.TierPremium
	}
}

// codeScore rates how much code the task plausibly touches. Predicted
// file spread, create-from-nothing verbs, and structural surfaces push
// it up; simple/trivial/minor language pulls it down.
func codeScore(text string, toks map[string]bool, predictedFiles int) float64 {
	score := clamp01(float64(predictedFiles)/5.0) * 0.5

	switch {
	case anyStem(text, createStems):
		score += 0.4
	case anyStem(text, modifyStems):
		score += 0.15
	}

	structural := stemHits(text, structureStems) + tokenHits(toks, structureTokens)
	if structural > 2 {
		structural = 2
	}
	score += 0.2 * float64(structural)

	if anyStem(text, simpleStems) {
		score -= 0.4
	}
	return clamp01(score)
}

// domainScore is high for specialist domains and low for general web
// work; everything else contributes nothing.
func domainScore(text string, toks map[string]bool) float64 {
	if anyStem(text, specialistStems) || tokenHits(toks, specialistTokens) > 0 {
		return 1.0
	}
	if tokenHits(toks, webTokens) > 0 {
		return 0.2
	}
	return 0
}

func stemScore(text string, stems []string) float64 {
	return clamp01(float64(stemHits(text, stems)) / 2.0)
}

func stemHits(text string, stems []string) int {
	hits := 0
	for _, k := range stems {
		if strings.Contains(text, k) {
			hits++
		}
	}
	return hits
}

func anyStem(text string, stems []string) bool {
	return stemHits(text, stems) > 0
}

func tokenHits(toks map[string]bool, words []string) int {
	hits := 0
	for _, w := range words {
		if toks[w] {
			hits++
		}
	}
	return hits
}

func tokens(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		out[w] = true
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
