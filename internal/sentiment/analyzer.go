package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const analysisPrompt = `You analyze transcripts of automated voter-outreach calls for a political campaign.
Classify the overall sentiment of the voter (not the calling agent) as positive, neutral, or negative.
Score the sentiment from -1.0 (hostile) to 1.0 (enthusiastic).
Summarize the voter's concerns and commitments in at most two sentences.
Respond with JSON only.`

type analysisResponse struct {
	Sentiment string  `json:"sentiment" jsonschema:"enum=positive,enum=neutral,enum=negative"`
	Score     float64 `json:"score"`
	Summary   string  `json:"summary"`
}

var analysisSchema = generateSchema[analysisResponse]()

// Analyzer scores call transcripts with a chat model and returns a
// normalized verdict.
type Analyzer struct {
	client *openai.Client
	model  string
}

// NewAnalyzer builds an analyzer for the given model. baseURL overrides the
// default API endpoint and is meant for tests; leave it empty in production.
func NewAnalyzer(apiKey, baseURL, model string) *Analyzer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &Analyzer{client: &client, model: model}
}

// Model returns the configured model name, recorded alongside each analysis.
func (a *Analyzer) Model() string { return a.model }

// Analyze runs one transcript through the model. The transcript must be
// non-empty; callers are expected to skip calls without content.
func (a *Analyzer) Analyze(ctx context.Context, transcript string) (Result, error) {
	if a.client == nil {
		return Result{}, errors.New("sentiment: analyzer client is nil")
	}
	if a.model == "" {
		return Result{}, errors.New("sentiment: model is empty")
	}
	if strings.TrimSpace(transcript) == "" {
		return Result{}, errors.New("sentiment: empty transcript")
	}

	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "CallSentiment",
			Schema:      analysisSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Voter sentiment verdict JSON"),
			Type:        "json_schema",
		},
	}
	params := responses.ResponseNewParams{
		Model:           a.model,
		MaxOutputTokens: openai.Int(400),
		Instructions:    openai.String(analysisPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(transcript, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{Format: format},
	}

	resp, err := a.client.Responses.New(ctx, params)
	if err != nil {
		return Result{}, fmt.Errorf("sentiment: analyze: %w", err)
	}

	var out analysisResponse
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return Result{}, fmt.Errorf("sentiment: decode verdict: %w", err)
	}

	return Result{
		Label:   normalizeLabel(out.Sentiment),
		Score:   clampScore(out.Score),
		Summary: strings.TrimSpace(out.Summary),
	}, nil
}

// normalizeLabel maps free-form model output onto the fixed vocabulary.
// Anything unrecognized counts as neutral.
func normalizeLabel(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LabelPositive:
		return LabelPositive
	case LabelNegative:
		return LabelNegative
	default:
		return LabelNeutral
	}
}

func clampScore(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < -1 {
		return -1
	}
	return v
}

// decodeModelJSON unmarshals JSON from a model response, with some
// robustness for models that wrap the JSON in extra prose or whitespace.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return io.ErrUnexpectedEOF
	}

	if err := json.Unmarshal([]byte(s), v); err == nil {
		return nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	// An opening brace without a closing one means the output was cut off.
	if start != -1 && end == -1 {
		return io.ErrUnexpectedEOF
	}
	if start == -1 || end <= start {
		return fmt.Errorf("no JSON object in model output (len=%d)", len(s))
	}
	sub := s[start : end+1]
	if err := json.Unmarshal([]byte(sub), v); err != nil {
		return fmt.Errorf("unmarshal extracted JSON: %w", err)
	}
	return nil
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	ensureStrictSchema(m)
	return m
}

// ensureStrictSchema rewrites the reflected schema into the shape the
// structured-output endpoint requires: objects forbid additional properties
// and list every property as required.
func ensureStrictSchema(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false
		if props, ok := schema["properties"].(map[string]any); ok {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			if len(required) > 0 {
				schema["required"] = required
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for _, p := range props {
			if pm, ok := p.(map[string]any); ok {
				ensureStrictSchema(pm)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrictSchema(items)
	}
}
