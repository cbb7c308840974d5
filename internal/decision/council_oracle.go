package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/codenerd-labs/evolution-engine/internal/evotypes"
	"github.com/codenerd-labs/evolution-engine/internal/logging"
)

// GenAICouncilOracle consults a Gemini model as a one-vote council when the
// Decision Policy needs a second opinion on a risky proposal. It calls
// GenerateContent rather than EmbedContent, since the oracle needs a
// judgement, not a vector.
type GenAICouncilOracle struct {
	client *genai.Client
	model  string
}

// NewGenAICouncilOracle creates a council oracle backed by the Gemini API.
// model defaults to "gemini-2.0-flash" when empty.
func NewGenAICouncilOracle(apiKey, model string) (*GenAICouncilOracle, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("genai API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAICouncilOracle{client: client, model: model}, nil
}

// Consult asks the model whether p should be approved given a, parsing a
// strict one-word APPROVE/ESCALATE answer from the response. Any response
// that doesn't clearly start with APPROVE is treated as a decline, which
// the Policy turns into rejected rather than silently approving on a
// malformed reply.
func (o *GenAICouncilOracle) Consult(ctx context.Context, p *evotypes.Proposal, a *evotypes.Assessment) (bool, error) {
	prompt := buildCouncilPrompt(p, a)
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	start := time.Now()
	resp, err := o.client.Models.GenerateContent(ctx, o.model, contents, nil)
	logging.DecisionDebug("council oracle call for proposal %s took %v", p.ID, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("council oracle request failed: %w", err)
	}

	answer := strings.TrimSpace(strings.ToUpper(resp.Text()))
	return strings.HasPrefix(answer, "APPROVE"), nil
}

func buildCouncilPrompt(p *evotypes.Proposal, a *evotypes.Assessment) string {
	var b strings.Builder
	b.WriteString("A self-improvement engine wants to apply a proposed change autonomously.\n")
	fmt.Fprintf(&b, "Category: %s\nScope: %s\nRisk level: %s\nRisk score: %.2f\nConfidence: %.2f\n",
		p.Category, p.Payload.Scope(), a.RiskLevel, a.RiskScore, a.Confidence)
	b.WriteString("Factors:\n")
	for _, f := range a.Factors {
		fmt.Fprintf(&b, "- %s (weight %.2f, value %.2f): %s\n", f.Name, f.Weight, f.Value, f.Explanation)
	}
	b.WriteString("\nReply with exactly one word: APPROVE if this change is safe to apply without further human review, or ESCALATE if a human should look at it first.\n")
	return b.String()
}
