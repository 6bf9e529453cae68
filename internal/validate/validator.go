// Package validate checks a completed answer against the contract implied by
// its response mode. Validation is advisory: violations are logged and
// counted but never block delivery, because regenerating would double-invoke
// a paid model.
package validate

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docsense/backend/internal/intent"
	"github.com/docsense/backend/internal/metrics"
	"github.com/docsense/backend/internal/mode"
	"github.com/docsense/backend/pkg/logger"
)

const (
	// maxProsePrefixChars is the most non-whitespace text tolerated before
	// the first table or JSON marker in tabular mode.
	maxProsePrefixChars = 20

	detailedMinWords        = 1200
	briefMinWords           = 400
	detailedMinSectionPairs = 3
)

// bannedNarrativePhrases are prose tells that must not precede a table in
// tabular mode. Versioned constant table; review changes like config.
var bannedNarrativePhrases = []string{
	"based on the",
	"here is the",
	"introduction",
	"key insights",
	"findings",
	"in summary",
	"conclusion",
	"as we can see",
	"the data shows",
	"from the table",
	"analysis reveals",
	"observations",
}

// Result reports whether a response honored its mode contract.
type Result struct {
	Valid  bool
	Reason string
}

// Validator applies per-mode contract checks to materialized responses.
type Validator struct {
	log *zap.Logger
}

func New() *Validator {
	return &Validator{log: logger.GetLogger()}
}

// Check validates response against the mode it was generated under. It always
// returns; callers stream the answer regardless of the outcome.
func (v *Validator) Check(response string, m mode.ResponseMode, level intent.DetailLevel) Result {
	var res Result
	switch m {
	case mode.ModeTabular:
		res = checkTabular(response)
	case mode.ModeNarrative:
		res = checkNarrative(response, level)
	default:
		// Hybrid and casual responses carry no enforced contract.
		res = Result{Valid: true, Reason: "no contract for mode"}
	}

	if !res.Valid {
		v.log.Warn("response contract violation",
			zap.String("mode", string(m)),
			zap.String("detail_level", string(level)),
			zap.String("reason", res.Reason))
		metrics.ValidationViolations.WithLabelValues(string(m)).Inc()
	}
	return res
}

func checkTabular(response string) Result {
	hasTable := strings.Contains(response, "|")
	hasJSON := strings.Contains(response, "{") && strings.Contains(response, "}")
	if !hasTable && !hasJSON {
		return Result{Valid: false, Reason: "tabular mode requires table or JSON format"}
	}

	prefix := response
	if i := strings.IndexAny(response, "|{"); i >= 0 {
		prefix = response[:i]
	}
	prefixLower := strings.ToLower(prefix)

	if banned := matchBanned(prefixLower); len(banned) > 0 {
		return Result{
			Valid:  false,
			Reason: fmt.Sprintf("banned narrative phrases before table: %s", strings.Join(banned, ", ")),
		}
	}

	if stripped := strings.TrimSpace(prefix); len(stripped) > maxProsePrefixChars {
		if len(stripped) > 50 {
			stripped = stripped[:50]
		}
		return Result{
			Valid:  false,
			Reason: fmt.Sprintf("prose before table: %q", stripped),
		}
	}

	return Result{Valid: true, Reason: "tabular format valid"}
}

func checkNarrative(response string, level intent.DetailLevel) Result {
	words := len(strings.Fields(response))

	if level == intent.DetailDetailed {
		if words < detailedMinWords {
			return Result{
				Valid:  false,
				Reason: fmt.Sprintf("response too short: %d words (minimum %d for detailed)", words, detailedMinWords),
			}
		}
		if sections := strings.Count(response, "**") / 2; sections < detailedMinSectionPairs {
			return Result{Valid: false, Reason: "response lacks bolded section structure"}
		}
		return Result{Valid: true, Reason: "depth requirements met"}
	}

	if words < briefMinWords {
		return Result{
			Valid:  false,
			Reason: fmt.Sprintf("response too short: %d words (minimum %d for brief)", words, briefMinWords),
		}
	}
	return Result{Valid: true, Reason: "depth requirements met"}
}

func matchBanned(prefixLower string) []string {
	var hits []string
	for _, p := range bannedNarrativePhrases {
		if strings.Contains(prefixLower, p) {
			hits = append(hits, p)
		}
	}
	return hits
}
