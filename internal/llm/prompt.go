package llm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/coderag/pkg/types"
)

// RetrievalOnlyAnswer is returned as the answer when no provider is configured
const RetrievalOnlyAnswer = "Retrieval-only mode (no LLM provider configured). See matches for context."

// NoInformationAnswer is what the prompt tells the model to say when the context is insufficient
const NoInformationAnswer = "I don't have enough information to answer that."

var citationPattern = regexp.MustCompile(`([a-zA-Z0-9/_.-]+):(\d+)-(\d+)`)

// BuildGroundingPrompt embeds the ranked matches as the only allowed context
func BuildGroundingPrompt(question string, matches []types.Match) string {
	parts := make([]string, len(matches))
	for i, m := range matches {
		parts[i] = fmt.Sprintf("[%d] File: %s (lines %d-%d)\n%s\n", i+1, m.Path, m.StartLine, m.EndLine, m.Snippet)
	}

	var b strings.Builder
	b.WriteString("You are a precise code assistant. Use ONLY the provided context to answer the question.\n")
	fmt.Fprintf(&b, "If you cannot answer based on the context, say %q\n", NoInformationAnswer)
	b.WriteString("Always include file:line citations in your answer.\n\n")
	b.WriteString("User question:\n")
	b.WriteString(question)
	b.WriteString("\n\nContext (ranked snippets with file and line numbers):\n")
	b.WriteString(strings.Join(parts, "\n"))
	b.WriteString("\nAnswer with a concise explanation. End with \"Sources:\" and list each citation as \"- path:start_line-end_line\".\n")
	return b.String()
}

// ExtractCitations parses path:start-end references out of an answer. When
// the answer cites nothing, every match becomes a citation.
func ExtractCitations(answer string, matches []types.Match) []types.Citation {
	found := citationPattern.FindAllStringSubmatch(answer, -1)

	citations := make([]types.Citation, 0, max(len(found), len(matches)))
	for _, f := range found {
		start, err1 := strconv.Atoi(f[2])
		end, err2 := strconv.Atoi(f[3])
		if err1 != nil || err2 != nil {
			continue
		}
		citations = append(citations, types.Citation{Path: f[1], StartLine: start, EndLine: end})
	}
	if len(citations) > 0 {
		return citations
	}

	return MatchCitations(matches)
}

// MatchCitations cites every match
func MatchCitations(matches []types.Match) []types.Citation {
	citations := make([]types.Citation, len(matches))
	for i, m := range matches {
		citations[i] = m.Citation()
	}
	return citations
}
