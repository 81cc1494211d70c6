package respond

import (
	"fmt"
	"strings"

	"github.com/EricP-Engramic/engramic/internal/core"
)

// buildMainPrompt renders the main response prompt: the user's prompt
// string, the conversation direction derived by Retrieve, and pointers to
// the candidate engrams Retrieve selected. Memory content itself lives in
// the storage layer, out of scope here (spec.md §1) — Respond references
// candidate ids so the model knows what it is allowed to draw on.
func buildMainPrompt(prompt core.Prompt, result core.RetrieveResult) string {
	var b strings.Builder
	b.WriteString("Answer the user's prompt using your available memory where relevant.\n\n")
	fmt.Fprintf(&b, "<user_intent>%s</user_intent>\n", result.Analysis.ConversationDirection)
	if len(result.Analysis.WorkingMemory) > 0 {
		b.WriteString("<working_memory>\n")
		for k, v := range result.Analysis.WorkingMemory {
			fmt.Fprintf(&b, "  %s = %s\n", k, v)
		}
		b.WriteString("</working_memory>\n")
	}
	if len(result.CandidateEngramIDs) > 0 {
		fmt.Fprintf(&b, "<available_memory_ids>%s</available_memory_ids>\n", strings.Join(result.CandidateEngramIDs, ", "))
	}
	fmt.Fprintf(&b, "<user_prompt>%s</user_prompt>\n", prompt.PromptStr)
	return b.String()
}
