package types

// ModelInfo describes the loaded model.
type ModelInfo struct {
	// Number of transformer blocks.
	// example: 16
	NumLayers int `json:"num_layers" example:"16"`
	// Vocabulary size.
	// example: 128256
	VocabSize int `json:"vocab_size" example:"128256"`
	// Residual stream width.
	// example: 2048
	HiddenSize int `json:"hidden_size" example:"2048"`
	// Identifier the model was loaded under.
	// example: meta-llama/Llama-3.2-1B
	ModelID string `json:"model_id" example:"meta-llama/Llama-3.2-1B"`
}

// ActivationsRequest is the body of POST /api/activations.
type ActivationsRequest struct {
	// Prompt to run through the model.
	// example: The Eiffel Tower is in
	Prompt string `json:"prompt" example:"The Eiffel Tower is in"`
	// Hidden-state indices to report. Defaults to every block input.
	// Negative values count from the end.
	// example: [0,1,2]
	LayerIndices []int `json:"layer_indices,omitempty" example:"0,1,2"`
}

// ActivationsResult holds per-token hidden state norms.
type ActivationsResult struct {
	// Map of "layer_<idx>" to the L2 norm of each token's hidden state.
	Activations map[string][]float32 `json:"activations"`
	// Each token decoded on its own.
	// example: ["<|begin_of_text|>","The"," E"]
	Tokens []string `json:"tokens"`
	// Token ids including BOS.
	// example: [128000,791,469]
	TokenIDs []int `json:"token_ids"`
}

// PatchscopeRequest is the body of POST /api/patchscope. Index fields are
// pointers so that absent fields can be told apart from zero.
type PatchscopeRequest struct {
	// Prompt the hidden state is taken from.
	// example: Harry
	SourcePrompt *string `json:"source_prompt" example:"Harry"`
	// Prompt whose generation is patched.
	// example: Respond only with the completion to this pattern: Man -> man, Car -> car, x ->
	TargetPrompt *string `json:"target_prompt" example:"Respond only with the completion to this pattern: Man -> man, Car -> car, x ->"`
	// Token position in the source prompt (negative counts from the end).
	// example: -1
	SourceTokenIdx *int `json:"source_token_idx" example:"-1"`
	// Token position overwritten in the target prompt.
	// example: -3
	TargetTokenIdx *int `json:"target_token_idx" example:"-3"`
	// Hidden-state index read from the source pass.
	// example: 2
	SourceLayerIdx *int `json:"source_layer_idx" example:"2"`
	// Block whose input is patched in the target pass.
	// example: 2
	TargetLayerIdx *int `json:"target_layer_idx" example:"2"`
	// Number of new tokens to generate (default 10).
	// example: 1
	NTokens *int `json:"n_tokens,omitempty" example:"1"`
}

// PatchConfig echoes the indices used.
type PatchConfig struct {
	SourceTokenIdx int `json:"source_token_idx" example:"-1"`
	TargetTokenIdx int `json:"target_token_idx" example:"-3"`
	SourceLayerIdx int `json:"source_layer_idx" example:"2"`
	TargetLayerIdx int `json:"target_layer_idx" example:"2"`
}

// PatchscopeResult compares the original and patched continuations.
type PatchscopeResult struct {
	SourcePrompt string `json:"source_prompt" example:"Harry"`
	TargetPrompt string `json:"target_prompt" example:"Respond only with the completion to this pattern: Man -> man, Car -> car, x ->"`
	// Greedy continuation of the unmodified target prompt.
	// example: x
	OriginalResponse string `json:"original_response" example:"x"`
	// Greedy continuation with the source hidden state patched in.
	// example: Harry
	PatchedResponse string `json:"patched_response" example:"Harry"`
	// llama.cpp continuation of the target prompt, when a reference backend is configured.
	BaselineResponse string      `json:"baseline_response,omitempty"`
	SourceTokens     []string    `json:"source_tokens"`
	TargetTokens     []string    `json:"target_tokens"`
	PatchConfig      PatchConfig `json:"patch_config"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	// example: healthy
	Status string `json:"status" example:"healthy"`
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
}

// SuccessResponse wraps a successful payload.
type SuccessResponse struct {
	// example: true
	Success bool `json:"success" example:"true"`
	Data    any  `json:"data"`
}

// ModelsResponse wraps the list of models returned by GET /api/models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// RunsResponse wraps GET /api/runs.
type RunsResponse struct {
	Runs []Run `json:"runs"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Always false.
	// example: false
	Success bool `json:"success" example:"false"`
	// Error message.
	// example: Prompt is required
	Error string `json:"error" example:"Prompt is required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}
