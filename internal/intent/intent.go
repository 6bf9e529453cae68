// Package intent decides, before any index work happens, whether a query is
// small talk and what response depth it deserves.
package intent

import "strings"

type Intent string

const (
	// IntentCasual covers greetings and acknowledgements; the pipeline skips
	// retrieval entirely and answers with a canned nudge.
	IntentCasual Intent = "casual"
	// IntentNeedsRetrieval is everything else.
	IntentNeedsRetrieval Intent = "needs_retrieval"
)

// DetailLevel is the user-selected or auto-detected verbosity target.
type DetailLevel string

const (
	DetailBrief    DetailLevel = "brief"
	DetailDetailed DetailLevel = "detailed"
	// DetailAuto asks the classifier to pick one from the query.
	DetailAuto DetailLevel = "auto"
)

const casualMaxWords = 4

// casualPhrases is the reviewed trigger table, v2. A query counts as casual
// only when it is short and starts with one of these.
var casualPhrases = []string{
	"hi", "hello", "hey", "ok", "okay", "thanks", "thank you",
	"bye", "goodbye", "yes", "yeah", "no", "nope", "sure",
	"got it", "alright", "cool", "nice", "good", "great",
	"sup", "what's up", "wassup", "howdy",
}

// detailedTriggers marks analytical queries that warrant a research-depth
// answer.
var detailedTriggers = []string{
	"analyze", "discuss", "compare", "contrast", "evaluate",
	"explain in detail", "comprehensive", "in depth", "thoroughly",
	"what are the implications", "how does", "why does",
	"describe the relationship", "what factors", "reasoning behind",
	"pros and cons", "advantages and disadvantages", "strengths and weaknesses",
	"tell me about", "elaborate", "detail",
}

const longQueryWords = 15

// Classify is a pure function: trims, lowercases and checks the casual table.
// It never fails.
func Classify(query string) Intent {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return IntentCasual
	}

	if len(strings.Fields(normalized)) <= casualMaxWords {
		for _, phrase := range casualPhrases {
			if strings.HasPrefix(normalized, phrase) {
				return IntentCasual
			}
		}
	}

	return IntentNeedsRetrieval
}

// DetectDetailLevel resolves DetailAuto to brief or detailed. Explicit levels
// pass through unchanged.
func DetectDetailLevel(query string, requested DetailLevel) DetailLevel {
	if requested == DetailBrief || requested == DetailDetailed {
		return requested
	}

	normalized := strings.ToLower(strings.TrimSpace(query))
	for _, trigger := range detailedTriggers {
		if strings.Contains(normalized, trigger) {
			return DetailDetailed
		}
	}
	if len(strings.Fields(query)) > longQueryWords {
		return DetailDetailed
	}
	return DetailBrief
}
