package turn

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

const DefaultScorerModel = "gpt-4o-mini"

const importancePrompt = `You rate how worth remembering one exchange between a person and their digital twin is.

Score importance from 0 to 1:
- 0.0-0.3: small talk, greetings, acknowledgements
- 0.4-0.6: opinions, plans, preferences mentioned in passing
- 0.7-1.0: personal facts, life events, explicit requests to remember

Reply with JSON only.`

const sentimentPrompt = `You rate the emotional sentiment of one message.

Score sentiment from -1 (very negative) through 0 (neutral) to 1 (very positive).

Reply with JSON only.`

type importanceResponse struct {
	Importance float64 `json:"importance" jsonschema:"required,minimum=0,maximum=1,description=How worth remembering the exchange is"`
}

type sentimentResponse struct {
	Sentiment float64 `json:"sentiment" jsonschema:"required,minimum=-1,maximum=1,description=Emotional sentiment of the message"`
}

// LLM scores turns with an OpenAI model using structured JSON output.
type LLM struct {
	client *openai.Client
	model  string
}

// NewLLM creates a model-backed scorer. An empty baseURL uses the OpenAI
// default endpoint.
func NewLLM(apiKey, baseURL, model string, opts ...option.RequestOption) *LLM {
	if model == "" {
		model = DefaultScorerModel
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}
	reqOpts = append(reqOpts, opts...)
	client := openai.NewClient(reqOpts...)
	return &LLM{client: &client, model: model}
}

func (l *LLM) ScoreImportance(ctx context.Context, query, response string) (float64, error) {
	input := "Person: " + query + "\nTwin: " + response
	var out importanceResponse
	if err := l.call(ctx, importancePrompt, input, "TurnImportance", generateSchema[importanceResponse](), &out); err != nil {
		return 0, err
	}
	return out.Importance, nil
}

func (l *LLM) ScoreSentiment(ctx context.Context, text string) (float64, error) {
	var out sentimentResponse
	if err := l.call(ctx, sentimentPrompt, text, "MessageSentiment", generateSchema[sentimentResponse](), &out); err != nil {
		return 0, err
	}
	return out.Sentiment, nil
}

func (l *LLM) call(ctx context.Context, instructions, input, name string, schema map[string]any, v any) error {
	params := responses.ResponseNewParams{
		Model:           l.model,
		MaxOutputTokens: openai.Int(200),
		Instructions:    openai.String(instructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Name:        name,
					Schema:      schema,
					Strict:      openai.Bool(true),
					Description: openai.String(name + " JSON"),
					Type:        "json_schema",
				},
			},
		},
	}

	resp, err := l.client.Responses.New(ctx, params)
	if err != nil {
		return fmt.Errorf("openai scorer: %w", err)
	}
	if err := decodeModelJSON(resp.OutputText(), v); err != nil {
		return fmt.Errorf("openai scorer: %w", err)
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
	b, err := reflector.Reflect(v).MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	m["additionalProperties"] = false
	return m
}

// decodeModelJSON tolerates prose or whitespace around the JSON object.
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
	if start == -1 || end == -1 || end <= start {
		return errors.New("no JSON object found in model output")
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), v); err != nil {
		return fmt.Errorf("unmarshal model output: %w", err)
	}
	return nil
}

var (
	_ ImportanceScorer = (*LLM)(nil)
	_ SentimentScorer  = (*LLM)(nil)
)
