// model_proxy.go probes the optional model proxy that sits between the agent
// service and the model backend. It is diagnostics only: nothing else in the
// request path depends on it.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	"github.com/tidwall/gjson"
)

// ProxyReport is what a probe learned about the model proxy.
type ProxyReport struct {
	Kind      string       `json:"kind"`
	URL       string       `json:"url"`
	Available bool         `json:"available"`
	Version   string       `json:"version,omitempty"`
	Models    []ProxyModel `json:"models,omitempty"`
	Detail    string       `json:"detail,omitempty"`
}

// ModelProxy probes a model proxy.
type ModelProxy interface {
	Probe(ctx context.Context) ProxyReport
}

// NewModelProxy returns the prober for kind, or nil when no proxy URL is
// configured.
func NewModelProxy(kind, rawURL string, timeout time.Duration) (ModelProxy, error) {
	if rawURL == "" {
		return nil, nil
	}
	base, err := url.Parse(strings.TrimRight(rawURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse model proxy url %q: %w", rawURL, err)
	}
	httpClient := &http.Client{Timeout: timeout}
	switch kind {
	case ProxyKindOllama:
		return &ollamaProxy{base: base, client: api.NewClient(base, httpClient)}, nil
	case ProxyKindLiteLLM, "":
		return &liteLLMProxy{base: base, client: httpClient}, nil
	}
	return nil, fmt.Errorf("unknown model proxy kind %q", kind)
}

// liteLLMProxy probes GET {base}/model/info.
type liteLLMProxy struct {
	base   *url.URL
	client *http.Client
}

func (p *liteLLMProxy) Probe(ctx context.Context) ProxyReport {
	report := ProxyReport{Kind: ProxyKindLiteLLM, URL: p.base.String()}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base.String()+"/model/info", nil)
	if err != nil {
		report.Detail = err.Error()
		return report
	}
	resp, err := p.client.Do(req)
	if err != nil {
		report.Detail = fmt.Sprintf("not accessible: %v", err)
		return report
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		report.Detail = fmt.Sprintf("reading response body: %v", err)
		return report
	}
	if resp.StatusCode != http.StatusOK {
		report.Detail = fmt.Sprintf("returned status %d", resp.StatusCode)
		return report
	}
	report.Available = true
	// LiteLLM answers {"data": [{"model_name": ..., "litellm_params": {"model": ...}, "model_info": {...}}]}.
	for _, entry := range gjson.GetBytes(body, "data").Array() {
		report.Models = append(report.Models, ProxyModel{
			Name:          entry.Get("model_name").String(),
			Backend:       entry.Get("litellm_params.model").String(),
			ContextWindow: int(entry.Get("model_info.max_input_tokens").Int()),
		})
	}
	if len(report.Models) == 0 && gjson.ValidBytes(body) {
		report.Detail = "Response: " + truncateRunes(string(body), 100)
	}
	return report
}

// ollamaProxy probes an Ollama server through its API client.
type ollamaProxy struct {
	base   *url.URL
	client *api.Client
}

func (p *ollamaProxy) Probe(ctx context.Context) ProxyReport {
	report := ProxyReport{Kind: ProxyKindOllama, URL: p.base.String()}
	version, err := p.client.Version(ctx)
	if err != nil {
		report.Detail = fmt.Sprintf("not accessible: %v", err)
		return report
	}
	report.Available = true
	report.Version = version

	list, err := p.client.List(ctx)
	if err != nil {
		report.Detail = fmt.Sprintf("listing models: %v", err)
		return report
	}
	for _, m := range list.Models {
		report.Models = append(report.Models, ProxyModel{
			Name:              m.Name,
			Size:              m.Size,
			ParameterSize:     m.Details.ParameterSize,
			QuantizationLevel: m.Details.QuantizationLevel,
			Family:            m.Details.Family,
		})
	}
	return report
}

// proxyLines renders a probe for the check_connection diagnostics.
func proxyLines(r ProxyReport) []string {
	label := "LiteLLM proxy"
	if r.Kind == ProxyKindOllama {
		label = "Ollama server"
	}
	lines := []string{"", fmt.Sprintf("**%s Check:**", label)}
	if !r.Available {
		return append(lines, fmt.Sprintf("%s %s", label, r.Detail))
	}
	head := label + " available"
	if r.Version != "" {
		head += " (version " + r.Version + ")"
	}
	lines = append(lines, head)
	for _, m := range r.Models {
		lines = append(lines, "- "+m.String())
	}
	if r.Detail != "" {
		lines = append(lines, r.Detail)
	}
	return lines
}
