package types

// Model represents a GGUF model file discovered on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	// example: Llama-3.2-1B.Q8_0.gguf
	ID string `json:"id" example:"Llama-3.2-1B.Q8_0.gguf"`
	// Human-friendly name from general.name when readable.
	// example: Llama 3.2 1B
	Name string `json:"name" example:"Llama 3.2 1B"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/llm/Llama-3.2-1B.Q8_0.gguf
	Path string `json:"path" example:"/home/user/models/llm/Llama-3.2-1B.Q8_0.gguf"`
	// Dominant tensor storage type.
	// example: Q8_0
	Quant string `json:"quant,omitempty" example:"Q8_0"`
	// Architecture family from general.architecture.
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
	// File size in bytes.
	// example: 1321083392
	SizeBytes int64 `json:"size_bytes" example:"1321083392"`
	// Whether this is the model served by the running process.
	// example: true
	Loaded bool `json:"loaded"`
}

// Run is one persisted analysis request and its result.
type Run struct {
	// example: 2f1c3a9e-7c1b-4f57-9d55-0c9a0b3d2f11
	ID string `json:"id" example:"2f1c3a9e-7c1b-4f57-9d55-0c9a0b3d2f11"`
	// Operation kind: activations or patchscope.
	// example: patchscope
	Kind string `json:"kind" example:"patchscope"`
	// example: meta-llama/Llama-3.2-1B
	ModelID string `json:"model_id" example:"meta-llama/Llama-3.2-1B"`
	// Original request body.
	Request RawJSON `json:"request" swaggertype:"object"`
	// Result payload as returned to the client.
	Response RawJSON `json:"response" swaggertype:"object"`
	// Wall time spent in the engine.
	// example: 412
	DurationMS int64 `json:"duration_ms" example:"412"`
	// Creation time (unix seconds).
	// example: 1700000000
	CreatedUnix int64 `json:"created_unix" example:"1700000000"`
}

// RawJSON is a pre-encoded JSON value.
type RawJSON []byte

// MarshalJSON returns r unchanged, or null when empty.
func (r RawJSON) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON keeps a copy of the raw bytes.
func (r *RawJSON) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}
