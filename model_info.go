// model_info.go defines the list_models tool types and the model entries
// reported by the model proxy probe.
package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
)

// ListModelsArgs is the input for the list_models tool. No arguments needed.
type ListModelsArgs struct{}

// ListModelsOutput lists the model descriptors seen on recent tasks.
type ListModelsOutput struct {
	Models       []ModelDescriptor `json:"models,omitempty"`
	Current      string            `json:"current"`       // model new tasks are submitted with
	AdminDefault string            `json:"admin_default"` // admin fallback when no preference is set
}

// ProxyModel describes one model served behind the model proxy.
type ProxyModel struct {
	Name              string `json:"name"`
	Backend           string `json:"backend,omitempty"`            // LiteLLM upstream model, e.g. "openai/qwen3"
	ContextWindow     int    `json:"context_window,omitempty"`     // LiteLLM max_input_tokens
	Size              int64  `json:"size,omitempty"`               // Ollama size in bytes
	ParameterSize     string `json:"parameter_size,omitempty"`     // e.g. "14B", "7B"
	QuantizationLevel string `json:"quantization_level,omitempty"` // e.g. "Q4_K_M"
	Family            string `json:"family,omitempty"`             // e.g. "qwen2"
}

func (m ProxyModel) String() string {
	var details []string
	if m.Backend != "" {
		details = append(details, m.Backend)
	}
	if m.ContextWindow > 0 {
		details = append(details, humanize.Comma(int64(m.ContextWindow))+" tokens")
	}
	if m.Family != "" {
		details = append(details, m.Family)
	}
	if m.ParameterSize != "" {
		details = append(details, m.ParameterSize)
	}
	if m.QuantizationLevel != "" {
		details = append(details, m.QuantizationLevel)
	}
	if m.Size > 0 {
		details = append(details, humanize.Bytes(uint64(m.Size)))
	}
	if len(details) == 0 {
		return m.Name
	}
	return fmt.Sprintf("%s (%s)", m.Name, strings.Join(details, ", "))
}
