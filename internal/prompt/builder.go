// Package prompt assembles model-ready message lists from retrieved context,
// the detected response mode, and conversation history.
package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docsense/backend/internal/intent"
	"github.com/docsense/backend/internal/llm"
	"github.com/docsense/backend/internal/mode"
	"github.com/docsense/backend/internal/retrieval"
	"github.com/docsense/backend/pkg/logger"
)

// ConversationTurn is one prior exchange. Only role and content are carried
// into the model request; citation metadata attached upstream never leaks
// into the message history.
type ConversationTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	// DefaultMaxChunkChars caps each chunk's contribution to the context block.
	DefaultMaxChunkChars = 1500
	// DefaultMaxContextChars caps the whole context block. Chunks past the
	// budget are dropped whole rather than truncated mid-sentence.
	DefaultMaxContextChars = 4800
	// DefaultHistoryTurns is how many prior turns are replayed verbatim.
	DefaultHistoryTurns = 10

	defaultTemperature = 0.65

	tabularMaxTokens  = 1500
	detailedMaxTokens = 4096
	briefMaxTokens    = 800
	hybridMaxTokens   = 3000
)

// Config tunes the builder's budgets. Zero values fall back to defaults.
type Config struct {
	MaxChunkChars   int
	MaxContextChars int
	HistoryTurns    int
}

// Builder constructs prompts. It is pure: no I/O, no failure paths.
type Builder struct {
	maxChunkChars   int
	maxContextChars int
	historyTurns    int
	log             *zap.Logger
}

func NewBuilder(cfg Config) *Builder {
	b := &Builder{
		maxChunkChars:   cfg.MaxChunkChars,
		maxContextChars: cfg.MaxContextChars,
		historyTurns:    cfg.HistoryTurns,
		log:             logger.GetLogger(),
	}
	if b.maxChunkChars <= 0 {
		b.maxChunkChars = DefaultMaxChunkChars
	}
	if b.maxContextChars <= 0 {
		b.maxContextChars = DefaultMaxContextChars
	}
	if b.historyTurns <= 0 {
		b.historyTurns = DefaultHistoryTurns
	}
	return b
}

// Build produces the full message list and generation parameters for a query
// answered from the given selection.
func (b *Builder) Build(query string, sel retrieval.Selection, m mode.ResponseMode, level intent.DetailLevel, history []ConversationTurn) ([]llm.Message, llm.GenParams) {
	system := systemInstructions(m, level)
	context := b.formatContext(sel)

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, b.trimHistory(history)...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Document context:\n%s\n\nQuestion: %s", context, query),
	})

	return messages, genParams(m, level)
}

// BuildDegraded produces a best-effort summary prompt straight from the raw
// candidate pool, used when diversity selection yielded nothing usable. The
// answer contract drops to narrative-brief.
func (b *Builder) BuildDegraded(query string, raw []retrieval.Candidate, history []ConversationTurn) ([]llm.Message, llm.GenParams) {
	system := `You are DocSense, a document analysis assistant. The retrieval step returned limited context for this question. Generate a best-effort summary of whatever relevant material appears below. Be honest about gaps: if the context does not answer the question, say so plainly rather than guessing. Cite sources as [Source N] where possible. Keep the answer to 2-3 paragraphs.`

	context := b.formatContext(retrieval.Selection(raw))
	if strings.TrimSpace(context) == "" {
		context = "No document context available."
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})
	messages = append(messages, b.trimHistory(history)...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: fmt.Sprintf("Available context:\n%s\n\nQuestion: %s", context, query),
	})

	return messages, llm.GenParams{MaxTokens: briefMaxTokens, Temperature: defaultTemperature}
}

// formatContext renders the selection as numbered [Source i: name] blocks
// separated by "---". Each chunk is capped at maxChunkChars; once the global
// budget is hit, remaining chunks are dropped whole and the drop is logged.
func (b *Builder) formatContext(sel retrieval.Selection) string {
	var sb strings.Builder
	used := 0
	dropped := 0

	for i, c := range sel {
		text := c.Chunk.Text
		if len(text) > b.maxChunkChars {
			text = text[:b.maxChunkChars]
		}

		block := fmt.Sprintf("[Source %d: %s]\n%s", i+1, c.Chunk.Source, text)
		if i > 0 {
			block = "\n---\n" + block
		}

		if used+len(block) > b.maxContextChars && used > 0 {
			dropped = len(sel) - i
			break
		}

		sb.WriteString(block)
		used += len(block)
	}

	if dropped > 0 {
		b.log.Info("context budget exceeded, dropping trailing chunks",
			zap.Int("dropped", dropped),
			zap.Int("kept", len(sel)-dropped),
			zap.Int("budget_chars", b.maxContextChars))
	}

	return sb.String()
}

func (b *Builder) trimHistory(history []ConversationTurn) []llm.Message {
	if len(history) > b.historyTurns {
		history = history[len(history)-b.historyTurns:]
	}
	out := make([]llm.Message, 0, len(history))
	for _, t := range history {
		out = append(out, llm.Message{Role: t.Role, Content: t.Content})
	}
	return out
}

func genParams(m mode.ResponseMode, level intent.DetailLevel) llm.GenParams {
	switch m {
	case mode.ModeTabular:
		return llm.GenParams{MaxTokens: tabularMaxTokens, Temperature: defaultTemperature}
	case mode.ModeHybrid:
		return llm.GenParams{MaxTokens: hybridMaxTokens, Temperature: defaultTemperature}
	default:
		if level == intent.DetailDetailed {
			return llm.GenParams{MaxTokens: detailedMaxTokens, Temperature: defaultTemperature}
		}
		return llm.GenParams{MaxTokens: briefMaxTokens, Temperature: defaultTemperature}
	}
}

func systemInstructions(m mode.ResponseMode, level intent.DetailLevel) string {
	switch m {
	case mode.ModeTabular:
		return tabularSystem
	case mode.ModeHybrid:
		return hybridSystem
	default:
		if level == intent.DetailDetailed {
			return narrativeDetailedSystem
		}
		return narrativeBriefSystem
	}
}

const narrativeDetailedSystem = `You are DocSense, a professional research assistant that analyzes and reasons over the provided document context.

Response rules:

1. DEPTH: write a detailed, paragraph-style analysis of at least 1200 words. Never provide shallow summaries.

2. STRUCTURE (mandatory sections, each with a bolded heading):
   - **Introduction**: context setup and scope (2-3 sentences)
   - **Key Insights & Findings**: detailed evidence from the sources
   - **Analytical Discussion**: relationships, patterns, implications
   - **Quantitative Analysis**: calculations and trends when numeric data is present
   - **Conclusion**: synthesized insight and takeaways

3. CITATIONS: support every factual claim with a [Source N] token referring to the numbered context blocks. Never cite sources that do not appear in the context.

4. ACCURACY: use only the provided context. If the context does not cover a point, say so explicitly rather than inventing material. Always include units with numeric values.`

const narrativeBriefSystem = `You are DocSense, a document analysis assistant.

Answer the question in 2-3 focused paragraphs (at least 400 words). Support every factual claim with a [Source N] citation referring to the numbered context blocks. Use only the provided context; if it does not answer the question, say so plainly. Include units with every numeric value.`

const tabularSystem = `You are DocSense in strict data extraction mode.

Output rules:

1. Output EXCLUSIVELY a markdown table (or a JSON object if the data does not fit a table). No introduction, no summary, no conclusion, no explanatory prose of any kind.
2. One row per (entity, parameter) pair found in the context, with columns: Entity, Parameter, Value, Unit, Source.
3. Missing values must appear as "—". Never omit a row silently and never fabricate a value.
4. Include the correct unit for every numeric value (psig, °F, bbl, MMBtu, mcf, kg, lb). Leave the unit empty for text values.
5. At most one calculation line is permitted after the table, and only if the question asked for a computed result.

Do not deviate from this format.`

const hybridSystem = `You are DocSense in hybrid analysis mode, combining textual analysis with data presentation.

Structure your answer in exactly three parts:

**Summary**: 2-3 sentences of contextual overview.

**Data**: a markdown table with columns Source, Parameter, Value, Unit, Notes. Extract exact values, mark missing data as "—", and include units.

**Interpretation**: 1-2 paragraphs connecting the numbers to the textual context, with [Source N] citations. Explain trends, patterns, or correlations; show inline calculations when relevant.

Use only the provided context and never fabricate values.`
