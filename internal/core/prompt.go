package core

// Prompt is a user query. It is immutable once submitted: every field is set
// at construction and never mutated afterward.
type Prompt struct {
	ID               string         `json:"id"`
	PromptStr        string         `json:"prompt_str"`
	TrainingMode     bool           `json:"training_mode,omitempty"`
	SelectedRepoIDs  []string       `json:"selected_repo_ids,omitempty"`
	InputData        map[string]any `json:"input_data,omitempty"`
}

// NewPrompt constructs a Prompt with a fresh opaque id.
func NewPrompt(promptStr string, trainingMode bool, selectedRepoIDs []string, inputData map[string]any) Prompt {
	return Prompt{
		ID:              NewID(),
		PromptStr:       promptStr,
		TrainingMode:    trainingMode,
		SelectedRepoIDs: selectedRepoIDs,
		InputData:       inputData,
	}
}

// PromptAnalysis is the retrieve stage's derived facts, bound 1:1 to a Prompt.
type PromptAnalysis struct {
	PromptID           string            `json:"prompt_id"`
	ConversationDirection string         `json:"conversation_direction"`
	WorkingMemory      map[string]string `json:"working_memory,omitempty"`
	LookupIndices      []string          `json:"lookup_indices"`
}

// RetrieveOptions configures candidate selection in the retrieve stage.
type RetrieveOptions struct {
	NResults int     `json:"n_results"`
	Threshold float64 `json:"threshold"`
}

// DefaultRetrieveOptions matches spec.md §3's stated defaults.
func DefaultRetrieveOptions() RetrieveOptions {
	return RetrieveOptions{NResults: 2, Threshold: 0.5}
}

// RetrieveResult is the retrieve stage's output: the analysis plus an
// ordered list of candidate engram ids selected by vector search.
type RetrieveResult struct {
	Analysis        PromptAnalysis `json:"analysis"`
	CandidateEngramIDs []string    `json:"candidate_engram_ids"`
}

// RetrieveOutcome pairs a Prompt with its RetrieveResult: the payload
// published on RETRIEVE_COMPLETE, carrying everything Respond needs to call
// the language model.
type RetrieveOutcome struct {
	Prompt Prompt         `json:"prompt"`
	Result RetrieveResult `json:"retrieve_result"`
}

// Response is the model's answer, immutable and identified by a fresh id.
type Response struct {
	ID             string         `json:"id"`
	Text           string         `json:"response"`
	Prompt         Prompt         `json:"prompt"`
	Analysis       PromptAnalysis `json:"analysis"`
	RetrieveResult RetrieveResult `json:"retrieve_result"`
}

// NewResponse constructs a Response with a fresh opaque id.
func NewResponse(text string, prompt Prompt, analysis PromptAnalysis, rr RetrieveResult) Response {
	return Response{
		ID:             NewID(),
		Text:           text,
		Prompt:         prompt,
		Analysis:       analysis,
		RetrieveResult: rr,
	}
}
