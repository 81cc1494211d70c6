package codify

import (
	"fmt"
	"strings"

	"github.com/EricP-Engramic/engramic/internal/core"
)

// buildCodifyPrompt asks the model to segment a completed exchange into
// discrete, independently-gradeable memory candidates plus a summary,
// mirroring the shape Consolidate and the data model expect: each engram
// candidate carries content, a small grounding context map, and
// accuracy/relevancy scores used later by merge filters (spec.md §3).
func buildCodifyPrompt(response core.Response) string {
	var b strings.Builder
	b.WriteString("Given the user prompt and the response below, extract discrete, independently useful memory segments and a summary.\n\n")
	fmt.Fprintf(&b, "<user_prompt>%s</user_prompt>\n", response.Prompt.PromptStr)
	fmt.Fprintf(&b, "<response>%s</response>\n\n", response.Text)
	b.WriteString("For each segment, provide its content, a small context map (e.g. a section header), ")
	b.WriteString("an accuracy score and a relevancy score (0-10, higher is better).\n")
	b.WriteString("Also provide a short summary_initial, a longer summary_full, and a keyword list for the whole exchange.\n")
	return b.String()
}
