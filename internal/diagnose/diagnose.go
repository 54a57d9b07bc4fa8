// Package diagnose asks an LLM for a first-pass root-cause analysis of
// an incident. It is advisory tooling for operators, entirely optional,
// and disabled when no API key is configured
package diagnose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vigilhq/vigil/pkg/api"
)

type (
	// Diagnoser produces an analysis of one incident
	Diagnoser interface {
		Diagnose(ctx context.Context, req *Request) (string, error)
	}

	// Request bundles everything the model gets to see
	Request struct {
		Incident *api.Incident
		Flow     *api.Flow
		Run      *api.RunResult
	}

	// GeminiDiagnoser is the genai-backed implementation
	GeminiDiagnoser struct {
		client *genai.Client
		model  string
	}
)

const defaultModel = "gemini-2.0-flash"

var ErrEmptyResponse = errors.New("model returned no text")

var _ Diagnoser = (*GeminiDiagnoser)(nil)

// NewGeminiDiagnoser creates the client. The key must be present;
// callers gate on configuration before constructing one
func NewGeminiDiagnoser(
	ctx context.Context, apiKey string,
) (*GeminiDiagnoser, error) {
	if apiKey == "" {
		return nil, errors.New("missing GEMINI_API_KEY")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiDiagnoser{
		client: client,
		model:  defaultModel,
	}, nil
}

// Diagnose renders the incident into a prompt and returns the model's
// analysis
func (d *GeminiDiagnoser) Diagnose(
	ctx context.Context, req *Request,
) (string, error) {
	res, err := d.client.Models.GenerateContent(
		ctx, d.model, genai.Text(buildPrompt(req)), nil)
	if err != nil {
		return "", fmt.Errorf("generating diagnosis: %w", err)
	}
	text := res.Text()
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func buildPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString("You are an SRE assistant for a synthetic transaction ")
	b.WriteString("monitor. Analyze the following incident and suggest ")
	b.WriteString("the most likely root cause and next debugging steps. ")
	b.WriteString("Be concise and concrete.\n\n")

	fmt.Fprintf(&b, "Incident: %s (severity %s)\n",
		req.Incident.Title, req.Incident.Severity)
	fmt.Fprintf(&b, "Opened: %s\n",
		req.Incident.OpenedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Description: %s\n\n", req.Incident.Description)

	fmt.Fprintf(&b, "Flow: %s (%s, every %ds)\n",
		req.Flow.Name, req.Flow.Kind, req.Flow.IntervalSec)

	if req.Run != nil {
		fmt.Fprintf(&b, "\nTriggering run (%s, %dms):\n",
			req.Run.Status, req.Run.DurationMs)
		for _, sr := range req.Run.Steps {
			step := req.Flow.StepAt(sr.Position)
			name := fmt.Sprintf("step %d", sr.Position)
			if step != nil {
				name = step.Name
			}
			fmt.Fprintf(&b, "- %s: %s", name, sr.Status)
			if sr.LatencyMs != nil {
				fmt.Fprintf(&b, " (%dms)", *sr.LatencyMs)
			}
			if sr.Error != "" {
				fmt.Fprintf(&b, ": %s", sr.Error)
			}
			b.WriteString("\n")
			for _, line := range sr.Logs {
				fmt.Fprintf(&b, "    %s\n", line)
			}
		}
	}
	return b.String()
}
