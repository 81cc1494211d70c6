package retrieve

import (
	"fmt"
	"strings"

	"github.com/EricP-Engramic/engramic/internal/core"
)

// BuildConversationPrompt renders the prompt that derives PromptAnalysis's
// conversation direction (SPEC_FULL.md §C.4), grounded on
// original_source's prompt_gen_conversation.py: it asks the model for a
// dense, keyword-form user_intent plus a working_memory register, given the
// current prompt and (when present) prior exchanges. history is ordered
// oldest-first; only the most recent entries need be supplied by the
// caller, matching the original's own soft cap.
func BuildConversationPrompt(prompt core.Prompt, history []core.Response) string {
	var b strings.Builder
	b.WriteString("Your name is Engramic and you are in a conversation with the user. ")
	b.WriteString("Review the current user input and provide the current user intent and a description of your working memory.\n\n")

	if len(history) > 0 {
		b.WriteString("<previous_exchange>\n")
		for _, r := range history {
			fmt.Fprintf(&b, "  <previous_user_prompt>%s</previous_user_prompt>\n", r.Prompt.PromptStr)
			fmt.Fprintf(&b, "  <previous_user_intent>%s</previous_user_intent>\n", r.Analysis.ConversationDirection)
			fmt.Fprintf(&b, "  <previous_response>%s</previous_response>\n", r.Text)
		}
		b.WriteString("</previous_exchange>\n\n")
	}

	b.WriteString("<current_user_input>\n")
	b.WriteString(prompt.PromptStr)
	b.WriteString("\n</current_user_input>\n\n")
	b.WriteString("Context is particularly important: a title or header grounds the paragraph that follows it.\n")
	b.WriteString("Working memory values are keyword phrases, integers, floats, or short arrays, never long sentences.\n")
	b.WriteString("current_user_intent: write in dense keywords what the current user input is really intending.\n")
	b.WriteString("working_memory: a flat map of variable -> value tracking the state of the conversation.\n")
	return b.String()
}

// buildIndicesPrompt renders the lookup-indices prompt (spec.md §3's
// PromptAnalysis.LookupIndices), grounded on
// original_source's prompt_gen_indices.py: it asks the model for search
// strings that would help answer the user's prompt, optionally grounded by
// prior domain knowledge summaries.
func buildIndicesPrompt(prompt core.Prompt, domainKnowledge []core.Meta) string {
	var b strings.Builder
	b.WriteString("Based on the user prompt, generate lookup strings that would help retrieve data useful for responding to it.\n\n")

	if len(domainKnowledge) > 0 {
		b.WriteString("<domain_knowledge>\n")
		for _, m := range domainKnowledge {
			fmt.Fprintf(&b, "  <knowledge>\n    locations: %s\n    keywords: %s\n    summary: %s\n  </knowledge>\n",
				strings.Join(m.Locations, " "), strings.Join(m.Keywords, " "), m.SummaryFull.Text)
		}
		b.WriteString("</domain_knowledge>\n\n")
	}

	b.WriteString("<user_prompt>\n")
	b.WriteString(prompt.PromptStr)
	b.WriteString("\n</user_prompt>\n")
	return b.String()
}
