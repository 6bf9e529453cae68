// Package mode decides the output contract a generated answer must follow.
// Detection is a pure function of the query text and the selected chunks, so
// the same inputs always produce the same mode.
package mode

import (
	"regexp"
	"strings"

	"github.com/docsense/backend/internal/retrieval"
)

// ResponseMode names the output contract the model is instructed to follow.
type ResponseMode string

const (
	// ModeNarrative produces cited prose analysis.
	ModeNarrative ResponseMode = "narrative"
	// ModeTabular produces a markdown table or JSON with no surrounding prose.
	ModeTabular ResponseMode = "tabular"
	// ModeHybrid produces a summary, a table, and an interpretation. It is
	// never chosen by Detect; callers request it explicitly.
	ModeHybrid ResponseMode = "hybrid"
	// ModeCasual is a canned greeting path that skips retrieval entirely.
	ModeCasual ResponseMode = "casual"
)

// The trigger tables below are versioned constants, not inline literals.
// Changing them changes user-visible behavior and should be reviewed like a
// config change.

// explanatoryPatterns force narrative mode. They are checked before every
// other rule: an analytical question about numeric content still gets prose,
// not a bare table.
var explanatoryPatterns = []string{
	"what is this about", "what does this mean", "explain", "describe",
	"tell me about", "what is", "what's", "why", "how does",
	"what other", "what else", "anything else", "more information",
	"summary", "overview", "context", "background", "purpose",

	"analyze", "interpret", "discuss", "compare", "contrast",
	"relationship", "impact", "significance", "implications",

	"tell me", "can you tell", "could you explain", "help me understand",
}

// strictExtractionPatterns force tabular mode when no explanatory pattern
// matched.
var strictExtractionPatterns = []string{
	"extract all", "extract data", "extract values", "give me all",
	"show all data", "list all", "get all values", "show data",

	"show all parameters", "list all parameters", "parameters for each",
	"for each entity", "all entities", "each entity", "entity data",
	"data for all", "values from document", "from document",

	"at each location", "by location", "at each well", "per location",
	"each location", "all locations", "every location",

	"in a table", "as a table", "table format", "spreadsheet",
	"show table", "as table", "in table",

	"what is the pressure", "what is the temperature",
	"pressure at", "temperature at", "value of", "values for",
	"volume at", "api at", "temperature of", "pressure of",
}

// unitTokens are measurement units; two or more distinct hits in a query is a
// strong signal the user wants raw values.
var unitTokens = []string{
	"psi", "psig", "bbl", "barrels", "°f", "°c", "degf", "degc",
	"mmbtu", "mcf", "ft³", "kg", "lb",
}

// genericDataWords only trigger tabular mode when the selection actually
// contains structured chunks.
var genericDataWords = []string{"data", "all data", "information", "values"}

var unitPatterns = compileUnitPatterns()

func compileUnitPatterns() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(unitTokens))
	for i, u := range unitTokens {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(u) + `\b`)
	}
	return out
}

// Detect classifies a query against its retrieved context. Rules apply in a
// fixed order and the first match wins:
//
//  1. explanatory pattern      -> narrative
//  2. strict extraction phrase -> tabular
//  3. >=2 distinct unit tokens -> tabular
//  4. structured chunks present and a generic data word -> tabular
//  5. default                  -> narrative
//
// A query like "explain why pressure values differ, listing each value" is
// both analytical and numeric; rule 1 deliberately wins. That precedence is a
// product decision, not an accident.
func Detect(query string, sel retrieval.Selection) ResponseMode {
	q := strings.ToLower(query)

	for _, p := range explanatoryPatterns {
		if strings.Contains(q, p) {
			return ModeNarrative
		}
	}

	for _, p := range strictExtractionPatterns {
		if strings.Contains(q, p) {
			return ModeTabular
		}
	}

	units := 0
	for _, re := range unitPatterns {
		if re.MatchString(q) {
			units++
		}
	}
	if units >= 2 {
		return ModeTabular
	}

	if sel.HasStructured() {
		for _, w := range genericDataWords {
			if strings.Contains(q, w) {
				return ModeTabular
			}
		}
	}

	return ModeNarrative
}
