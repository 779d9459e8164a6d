package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/responses"

	"github.com/theimaginaryfoundation/inbox-o-matic/digest"
)

// Client implements digest.ThreadCategorizer and digest.CategorySummarizer on
// the OpenAI Responses API with strict structured outputs. Retry for rate
// limits and server errors is handled here; callers treat one Categorize or
// Summarize call as a single capability invocation.
type Client struct {
	client *openai.Client
	model  string
}

// New wraps an OpenAI client for the given model.
func New(client *openai.Client, model string) *Client {
	return &Client{client: client, model: model}
}

// categorizationResponse is the structured-output shape for categorization.
// Each thread entry must echo id, subject, and the message IDs it covers.
type categorizationResponse struct {
	Categories []categoryAssignment `json:"categories"`
}

type categoryAssignment struct {
	Name    string              `json:"name"`
	Threads []categorizedThread `json:"threads"`
}

type categorizedThread struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject"`
	Messages []string `json:"messages"`
}

// summarizeResponse is the structured-output shape for category summaries.
type summarizeResponse struct {
	Summaries []summaryItem `json:"summaries"`
}

type summaryItem struct {
	Title         string   `json:"title"`
	Headline      string   `json:"headline"`
	MessageID     string   `json:"message_id"`
	PriorityScore int      `json:"priority_score"`
	Insights      insights `json:"insights"`
}

type insights struct {
	KeyHighlights  []string `json:"key_highlights"`
	WhyThisMatters string   `json:"why_this_matters"`
	NextStep       []string `json:"next_step"`
}

var categorizationSchema = generateSchema[categorizationResponse]()
var summarizeSchema = generateSchema[summarizeResponse]()

// Categorize sends one chunk of simplified threads for category assignment.
func (c *Client) Categorize(ctx context.Context, chunk []digest.SimplifiedThread) (digest.CategorizationResult, error) {
	if c == nil || c.client == nil {
		return digest.CategorizationResult{}, errors.New("provider: client is nil")
	}
	if c.model == "" {
		return digest.CategorizationResult{}, errors.New("provider: model is empty")
	}

	input := buildCategorizeInput(chunk)
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "ThreadCategorization",
			Schema:      categorizationSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Thread categorization JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(categorizerPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, c.client, params)
	if err != nil {
		return digest.CategorizationResult{}, err
	}

	// Malformed output parses to empty; the reconciler sees those threads as
	// dropped and recovers them, so nothing is thrown here.
	result, _ := digest.ParseCategorizationJSON(resp.OutputText())
	return result, nil
}

// Summarize sends one category's threads for digest summarization.
func (c *Client) Summarize(ctx context.Context, category digest.Category, threads []digest.CategorizedThread) ([]digest.SummaryItem, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("provider: client is nil")
	}
	if c.model == "" {
		return nil, errors.New("provider: model is empty")
	}

	input := buildSummarizeInput(category, threads)
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "CategorySummaries",
			Schema:      summarizeSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Category summary JSON"),
			Type:        "json_schema",
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(4000),
		Instructions:    openai.String(summarizerPrompt),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(input, responses.EasyInputMessageRoleUser),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := callWithRetry(ctx, c.client, params)
	if err != nil {
		return nil, err
	}

	items, _ := digest.ParseSummaryItemsJSON(resp.OutputText())
	return items, nil
}

func callWithRetry(ctx context.Context, client *openai.Client, params responses.ResponseNewParams) (*responses.Response, error) {
	const maxRetries = 3
	rateLimitWaitTimes := []time.Duration{65 * time.Second, 100 * time.Second, 135 * time.Second}
	serverErrorWaitTimes := []time.Duration{5 * time.Second, 30 * time.Second, 60 * time.Second}

	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := client.Responses.New(ctx, params)
		if err != nil {
			if isRateLimitError(err) {
				if attempt < maxRetries-1 {
					time.Sleep(rateLimitWaitTimes[attempt])
					continue
				}
			} else if isServerError(err) {
				if attempt < maxRetries-1 {
					time.Sleep(serverErrorWaitTimes[attempt])
					continue
				}
			}
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("failed after %d attempts due to OpenAI API issues", maxRetries)
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "too many requests")
}

func isServerError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "internal server error") ||
		strings.Contains(errStr, "server_error")
}

// ---- Structured output schema helper ----

func generateSchema[T any]() map[string]interface{} {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	schema := reflector.Reflect(v)
	schemaObj, err := schemaToMap(schema)
	if err != nil {
		panic(err)
	}
	ensureOpenAICompliance(schemaObj)
	return schemaObj
}

func schemaToMap(schema *jsonschema.Schema) (map[string]interface{}, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

const (
	propertiesKey           = "properties"
	additionalPropertiesKey = "additionalProperties"
	typeKey                 = "type"
	requiredKey             = "required"
	itemsKey                = "items"
)

func ensureOpenAICompliance(schema map[string]interface{}) {
	if schemaType, ok := schema[typeKey].(string); ok && schemaType == "object" {
		schema[additionalPropertiesKey] = false

		if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
			var requiredFields []string
			for propName := range properties {
				requiredFields = append(requiredFields, propName)
			}
			if len(requiredFields) > 0 {
				schema[requiredKey] = requiredFields
			}
		}
	}

	if properties, ok := schema[propertiesKey].(map[string]interface{}); ok {
		for _, prop := range properties {
			if propMap, ok := prop.(map[string]interface{}); ok {
				ensureOpenAICompliance(propMap)
			}
		}
	}

	if items, ok := schema[itemsKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(items)
	}

	if additionalProps, ok := schema[additionalPropertiesKey].(map[string]interface{}); ok {
		ensureOpenAICompliance(additionalProps)
	}
}
