// Package parser is the AI parser, Stage A of the enrichment pipeline
//: it turns a raw material description into a structured
// {parsed_unit, unit_coefficient, color} triple, using a forced function
// call against the
// chat-completions endpoint so the model's output is a JSON object rather
// than free text to be scraped.
package parser

import (
	"context"
	"encoding/json"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rs/zerolog"

	"materialscat/internal/apierrors"
	"materialscat/internal/config"
	"materialscat/internal/observability"
)

// Parsed is Stage A's output for one raw material description.
type Parsed struct {
	ParsedUnit      string  `json:"parsed_unit"`
	UnitCoefficient float64 `json:"unit_coefficient"`
	Color           string  `json:"color,omitempty"`
}

// Parser extracts Parsed facts from free-form material names/descriptions.
type Parser interface {
	Parse(ctx context.Context, name, description string) (Parsed, error)
}

const toolName = "emit_parsed_material"

// schema is the JSON Schema the model must satisfy; it mirrors Parsed.
var schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"parsed_unit": map[string]any{
			"type":        "string",
			"description": "Unit of measure exactly as it appears or is implied in the text, e.g. 'кг', 'шт', 'м2'.",
		},
		"unit_coefficient": map[string]any{
			"type":        "number",
			"description": "Multiplier converting one purchasable unit to parsed_unit (e.g. a 25kg bag of cement priced per bag has coefficient 25 when parsed_unit is кг). Defaults to 1.",
		},
		"color": map[string]any{
			"type":        "string",
			"description": "Color mentioned in the text, or omitted entirely if none is mentioned.",
		},
	},
	"required":             []string{"parsed_unit", "unit_coefficient"},
	"additionalProperties": false,
}

type openAIParser struct {
	sdk   openai.Client
	model string
	log   zerolog.Logger
}

// New constructs a Parser backed by the chat-completions endpoint.
func New(cfg config.EmbeddingConfig, log zerolog.Logger) Parser {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(observability.NewHTTPClient(nil)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &openAIParser{
		sdk:   openai.NewClient(opts...),
		model: cfg.ParserModel,
		log:   log.With().Str("component", "parser.Parser").Logger(),
	}
}

func (p *openAIParser) Parse(ctx context.Context, name, description string) (Parsed, error) {
	prompt := name
	if description != "" {
		prompt = name + "\n\n" + description
	}

	tool := openai.ChatCompletionToolUnionParam{
		OfFunction: &openai.ChatCompletionFunctionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        toolName,
				Description: openai.String("Emit the structured fields parsed from a construction material description."),
				Parameters:  shared.FunctionParameters(schema),
			},
		},
	}

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You extract structured fields from construction-material catalog entries. Always call " + toolName + " exactly once with your answer; never respond in plain text."),
			openai.UserMessage(prompt),
		},
		Tools: []openai.ChatCompletionToolUnionParam{tool},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfFunctionToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: toolName},
			},
		},
	}

	start := time.Now()
	comp, err := p.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		p.log.Error().Err(err).Dur("duration", dur).Msg("parser_chat_completion_error")
		return Parsed{}, apierrors.Wrap(apierrors.CodeInternal, "ai parser call failed", err)
	}
	if len(comp.Choices) == 0 || len(comp.Choices[0].Message.ToolCalls) == 0 {
		return Parsed{}, apierrors.New(apierrors.CodeInternal, "ai parser returned no tool call")
	}

	args := comp.Choices[0].Message.ToolCalls[0].Function.Arguments
	var out Parsed
	if err := json.Unmarshal([]byte(args), &out); err != nil {
		return Parsed{}, apierrors.Wrap(apierrors.CodeInternal, "ai parser returned malformed arguments", err)
	}
	if out.UnitCoefficient == 0 {
		out.UnitCoefficient = 1
	}
	if out.ParsedUnit == "" {
		return Parsed{}, apierrors.New(apierrors.CodeInternal, "ai parser did not return a unit")
	}

	p.log.Debug().Dur("duration", dur).Str("parsed_unit", out.ParsedUnit).Msg("parser_ok")
	return out, nil
}
