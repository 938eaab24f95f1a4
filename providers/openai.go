package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/pershow/cardagent/internal/logger"
	"go.uber.org/zap"
)

// OpenAIProvider talks to OpenAI or any OpenAI-compatible endpoint.
type OpenAIProvider struct {
	client           openai.Client
	model            string
	maxTokens        int
	streamingEnabled bool
}

// NewOpenAIProvider creates an OpenAI provider. apiKey is required; baseURL
// may be empty for the default endpoint.
func NewOpenAIProvider(apiKey, baseURL, model string, maxTokens int) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if model == "" {
		model = "gpt-4o"
	}

	clientOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client:           openai.NewClient(clientOpts...),
		model:            model,
		maxTokens:        maxTokens,
		streamingEnabled: true,
	}, nil
}

// SupportsStreaming reports whether streaming is enabled for this provider.
func (p *OpenAIProvider) SupportsStreaming() bool {
	return p.streamingEnabled
}

// Chat performs a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message, tools []ToolDefinition, options ...ChatOption) (*Response, error) {
	opts := &ChatOptions{
		Model:     p.model,
		MaxTokens: p.maxTokens,
	}
	for _, opt := range options {
		opt(opts)
	}

	req, err := p.buildRequest(messages, tools, opts)
	if err != nil {
		return nil, err
	}

	completion, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	if completion == nil || len(completion.Choices) == 0 {
		return nil, fmt.Errorf("no choices returned from model")
	}

	choice := completion.Choices[0]
	response := &Response{
		Content:      choice.Message.Content,
		ToolCalls:    parseOpenAIToolCalls(choice.Message.ToolCalls),
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if response.FinishReason == "" {
		response.FinishReason = "stop"
	}

	return response, nil
}

// ChatStream performs a streaming chat completion request. Content deltas are
// forwarded through callback as they arrive; tool-call argument fragments are
// accumulated and delivered parsed on the final Done chunk.
func (p *OpenAIProvider) ChatStream(ctx context.Context, messages []Message, tools []ToolDefinition, callback StreamCallback, options ...ChatOption) error {
	opts := &ChatOptions{
		Model:     p.model,
		MaxTokens: p.maxTokens,
	}
	for _, opt := range options {
		opt(opts)
	}

	req, err := p.buildRequest(messages, tools, opts)
	if err != nil {
		return err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, req)

	toolCallsMap := make(map[int]*ToolCall)
	var content strings.Builder

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			content.WriteString(delta.Content)
			callback(StreamChunk{
				Content: delta.Content,
				Done:    false,
			})
		}

		for _, tc := range delta.ToolCalls {
			idx := int(tc.Index)
			if _, exists := toolCallsMap[idx]; !exists {
				toolCallsMap[idx] = &ToolCall{
					ID:   tc.ID,
					Name: tc.Function.Name,
				}
			}
			if tc.Function.Arguments != "" {
				toolCallsMap[idx].rawArgs += tc.Function.Arguments
			}
		}

		if chunk.Choices[0].FinishReason != "" {
			break
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("stream error: %w", err)
	}

	var toolCalls []ToolCall
	for i := 0; i < len(toolCallsMap); i++ {
		tc := toolCallsMap[i]
		if tc == nil {
			continue
		}
		if tc.rawArgs != "" {
			var params map[string]interface{}
			if err := json.Unmarshal([]byte(tc.rawArgs), &params); err != nil {
				logger.Error("Failed to unmarshal streaming tool arguments",
					zap.String("tool", tc.Name),
					zap.Error(err))
				params = map[string]interface{}{}
			}
			tc.Params = params
		}
		if tc.Params == nil {
			tc.Params = map[string]interface{}{}
		}
		toolCalls = append(toolCalls, *tc)
	}

	callback(StreamChunk{
		Content:   content.String(),
		Done:      true,
		ToolCalls: toolCalls,
	})

	return nil
}

// Close closes provider resources.
func (p *OpenAIProvider) Close() error {
	return nil
}

func (p *OpenAIProvider) buildRequest(messages []Message, tools []ToolDefinition, opts *ChatOptions) (openai.ChatCompletionNewParams, error) {
	openAIMessages, err := convertMessagesToOpenAI(messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, fmt.Errorf("failed to convert messages: %w", err)
	}

	req := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: openAIMessages,
	}
	// Temperature is only sent when explicitly configured.
	if opts.Temperature > 0 {
		req.Temperature = openai.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if len(tools) > 0 {
		req.Tools = convertToolsToOpenAI(tools)
		if opts.ToolChoice != "" {
			req.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
				OfAuto: openai.String(string(opts.ToolChoice)),
			}
		}
	}
	return req, nil
}

func convertMessagesToOpenAI(messages []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		converted, err := convertMessageToOpenAI(msg)
		if err != nil {
			return nil, err
		}
		result = append(result, converted)
	}
	return result, nil
}

func convertMessageToOpenAI(msg Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case "system":
		return openai.SystemMessage(msg.Content), nil
	case "user":
		return openai.UserMessage(msg.Content), nil
	case "assistant":
		return convertAssistantMessageToOpenAI(msg), nil
	case "tool":
		if msg.ToolCallID == "" {
			return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("tool message is missing tool_call_id")
		}
		return openai.ToolMessage(msg.Content, msg.ToolCallID), nil
	default:
		return openai.UserMessage(msg.Content), nil
	}
}

func convertAssistantMessageToOpenAI(msg Message) openai.ChatCompletionMessageParamUnion {
	if len(msg.ToolCalls) == 0 {
		return openai.AssistantMessage(msg.Content)
	}

	assistant := openai.ChatCompletionAssistantMessageParam{}
	if msg.Content != "" {
		assistant.Content.OfString = openai.String(msg.Content)
	}

	assistant.ToolCalls = make([]openai.ChatCompletionMessageToolCallParam, 0, len(msg.ToolCalls))
	for i, tc := range msg.ToolCalls {
		rawArgs := "{}"
		if len(tc.Params) > 0 {
			args, err := json.Marshal(tc.Params)
			if err != nil {
				logger.Error("Failed to marshal assistant tool call arguments",
					zap.String("tool", tc.Name),
					zap.String("id", tc.ID),
					zap.Error(err))
			} else {
				rawArgs = string(args)
			}
		}

		toolCallID := tc.ID
		if toolCallID == "" {
			toolCallID = fmt.Sprintf("call_%d", i)
		}

		assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: toolCallID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: rawArgs,
			},
		})
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

func convertToolsToOpenAI(tools []ToolDefinition) []openai.ChatCompletionToolParam {
	result := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		function := shared.FunctionDefinitionParam{
			Name: tool.Name,
		}
		if tool.Description != "" {
			function.Description = openai.String(tool.Description)
		}
		if len(tool.Parameters) > 0 {
			function.Parameters = shared.FunctionParameters(tool.Parameters)
		}

		result = append(result, openai.ChatCompletionToolParam{
			Function: function,
		})
	}
	return result
}

func parseOpenAIToolCalls(toolCalls []openai.ChatCompletionMessageToolCall) []ToolCall {
	if len(toolCalls) == 0 {
		return nil
	}

	result := make([]ToolCall, 0, len(toolCalls))
	for _, tc := range toolCalls {
		var params map[string]interface{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
				logger.Error("Failed to unmarshal tool arguments",
					zap.String("tool", tc.Function.Name),
					zap.String("id", tc.ID),
					zap.Error(err),
					zap.String("raw_args", tc.Function.Arguments))
				params = map[string]interface{}{
					"__error__":         fmt.Sprintf("Failed to parse arguments: %v", err),
					"__raw_arguments__": tc.Function.Arguments,
				}
			}
		}
		if params == nil {
			params = map[string]interface{}{}
		}

		result = append(result, ToolCall{
			ID:     tc.ID,
			Name:   tc.Function.Name,
			Params: params,
		})
	}

	return result
}
