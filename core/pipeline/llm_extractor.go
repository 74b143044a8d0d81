package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/kaptinlin/jsonrepair"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/pkoukk/tiktoken-go"
	"github.com/siherrmann/pano/helper"
)

const tokenEncoding = "o200k_base"

// LLMExtractor asks an OpenAI compatible chat model to extract entities
// and connections from text.
type LLMExtractor struct {
	client      openai.Client
	model       string
	temperature float64
	maxTokens   int
	log         *slog.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
	encErr  error
}

// NewLLMExtractor creates an extractor for the configured model. Input
// longer than cfg.MaxTokens is truncated, zero disables truncation.
func NewLLMExtractor(cfg helper.LLMConfiguration, logger *slog.Logger, opts ...option.RequestOption) *LLMExtractor {
	if logger == nil {
		logger = slog.Default()
	}

	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	options = append(options, opts...)

	return &LLMExtractor{
		client:      openai.NewClient(options...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		log:         logger,
	}
}

// Extract implements GraphExtractFunc.
func (x *LLMExtractor) Extract(ctx context.Context, text string) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return &Extraction{}, nil
	}

	text, err := x.truncate(text)
	if err != nil {
		return nil, helper.NewError("truncate input", err)
	}

	body := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(x.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt()),
			openai.UserMessage(text),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        "investigation_graph",
					Description: openai.String("Entities and connections extracted from the text"),
					Schema:      GenerateSchema(Extraction{}),
					Strict:      openai.Bool(true),
				},
			},
		},
		Temperature: openai.Float(x.temperature),
	}

	response, err := x.client.Chat.Completions.New(ctx, body)
	if err != nil {
		return nil, helper.NewError("chat completion", err)
	}
	if len(response.Choices) == 0 {
		return nil, helper.NewError("chat completion", fmt.Errorf("no choices in response from model"))
	}
	message := response.Choices[0].Message.Content
	if message == "" {
		return nil, helper.NewError("chat completion", fmt.Errorf("empty response from model (finish_reason: %s)", response.Choices[0].FinishReason))
	}

	x.log.Debug("Extraction completed",
		slog.String("model", x.model),
		slog.Int64("prompt_tokens", response.Usage.PromptTokens),
		slog.Int64("completion_tokens", response.Usage.CompletionTokens),
	)

	var extraction Extraction
	if err := UnmarshalFlexible(message, &extraction); err != nil {
		return nil, helper.NewError("decode extraction", err)
	}
	return &extraction, nil
}

// truncate cuts text to the token budget.
func (x *LLMExtractor) truncate(text string) (string, error) {
	if x.maxTokens <= 0 {
		return text, nil
	}

	x.encOnce.Do(func() {
		x.enc, x.encErr = tiktoken.GetEncoding(tokenEncoding)
	})
	if x.encErr != nil {
		return "", x.encErr
	}

	tokens := x.enc.Encode(text, nil, nil)
	if len(tokens) <= x.maxTokens {
		return text, nil
	}

	x.log.Warn("Truncating extraction input", slog.Int("tokens", len(tokens)), slog.Int("max_tokens", x.maxTokens))
	return x.enc.Decode(tokens[:x.maxTokens]), nil
}

// GenerateSchema creates a JSON schema for structured model output from
// the given Go type.
func GenerateSchema(value any) any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}

	t := reflect.TypeOf(value)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	return reflector.Reflect(reflect.New(t).Interface())
}

// UnmarshalFlexible decodes model output. It accepts plain JSON, JSON
// encoded as a string, JSON wrapped in prose and malformed JSON that
// jsonrepair can fix.
func UnmarshalFlexible(input string, out any) error {
	input = strings.TrimSpace(input)

	if err := json.Unmarshal([]byte(input), out); err == nil {
		return nil
	}

	var asString string
	if err := json.Unmarshal([]byte(input), &asString); err == nil {
		asString = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(asString), out); err == nil {
			return nil
		}
		input = asString
	}

	if start, end := strings.Index(input, "{"), strings.LastIndex(input, "}"); start >= 0 && end > start {
		input = input[start : end+1]
	}

	repaired, err := jsonrepair.JSONRepair(input)
	if err != nil {
		return fmt.Errorf("json repair failed: %w (input: %s)", err, input)
	}

	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("unmarshal failed after repair: %w (repaired: %s)", err, repaired)
	}
	return nil
}
