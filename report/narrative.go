package report

import (
	"context"
	"fmt"
	"os"
	"strings"

	"road-inspection/models"

	"google.golang.org/genai"
)

// Narrator produces a plain-language summary of a report for the
// presentation layer. It is optional: aggregation never depends on it.
type Narrator struct {
	client *genai.Client
	ctx    context.Context
}

func NewNarrator() (*Narrator, error) {
	ctx := context.Background()

	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %v", err)
	}

	return &Narrator{
		client: client,
		ctx:    ctx,
	}, nil
}

// Describe asks the model for a short maintenance-crew-facing summary
// of a report. Failures return an error and leave the report untouched.
func (n *Narrator) Describe(report *models.Report) (string, error) {
	systemPrompt := `You are a road maintenance report assistant. You summarize
road inspection results for municipal maintenance crews.
Be factual and concise: state how much damage was found, which classes
dominate, how severe it is, and whether immediate action is warranted.
Keep summaries under 120 words. Do not invent locations or measurements.`

	message := fmt.Sprintf(
		"Inspection %s found %d detections. By severity: %d low, %d medium, %d high, %d critical. "+
			"By class: %d potholes, %d cracks, %d other. Bounding area: (%.6f, %.6f) to (%.6f, %.6f).",
		report.VideoID,
		report.Summary.TotalDetections,
		report.Summary.BySeverity[models.SeverityLow],
		report.Summary.BySeverity[models.SeverityMedium],
		report.Summary.BySeverity[models.SeverityHigh],
		report.Summary.BySeverity[models.SeverityCritical],
		report.Summary.ByClass[models.ClassPothole],
		report.Summary.ByClass[models.ClassCrack],
		report.Summary.ByClass[models.ClassOther],
		report.Summary.RouteStartLat, report.Summary.RouteStartLng,
		report.Summary.RouteEndLat, report.Summary.RouteEndLng,
	)

	systemInstruction := genai.NewContentFromText(systemPrompt, genai.RoleModel)
	userContent := genai.NewContentFromText(message, genai.RoleUser)

	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       genai.Ptr(float32(0.4)),
		TopP:              genai.Ptr(float32(0.8)),
		TopK:              genai.Ptr(float32(40)),
		MaxOutputTokens:   int32(200),
	}

	resp, err := n.client.Models.GenerateContent(
		n.ctx,
		"gemini-2.5-flash",
		[]*genai.Content{userContent},
		config,
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %v", err)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("model returned an empty summary")
	}

	return strings.ReplaceAll(text, "*", ""), nil
}

func (n *Narrator) Close() error {
	// The client manages its resources automatically.
	return nil
}
