package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	errx "github.com/promptfn/runtime/internal/core/error"
	logx "github.com/promptfn/runtime/pkg/logger"
)

const geminiProvider = "gemini"

// GeminiConfig holds the configuration for the Gemini-backed engine,
// sourced from environment variables.
type GeminiConfig struct {
	APIKey      string  `envconfig:"GEMINI_API_KEY" required:"true"`
	BaseURL     string  `envconfig:"GEMINI_BASE_URL"`
	Model       string  `envconfig:"ENGINE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"ENGINE_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"ENGINE_TEMPERATURE" default:"0.4"`
}

// GeminiEngine executes typed prompt functions on a Gemini chat model.
type GeminiEngine struct {
	model     *gemini.ChatModel
	modelName string
}

// NewGeminiEngine creates the engine with the given configuration.
func NewGeminiEngine(ctx context.Context, cfg GeminiConfig) (*GeminiEngine, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	cm, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Model,
		Temperature: &cfg.Temperature,
		MaxTokens:   &cfg.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini chat model")
		return nil, fmt.Errorf("error creating Gemini chat model: %w", err)
	}

	return &GeminiEngine{model: cm, modelName: cfg.Model}, nil
}

// Invoke executes one function call and blocks until the model responds.
func (e *GeminiEngine) Invoke(ctx context.Context, call Call) (*schema.Message, error) {
	msgs, err := renderMessages(call)
	if err != nil {
		return nil, err
	}

	if call.Collector != nil {
		call.Collector.AddAttempt()
	}
	out, err := e.model.Generate(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("function", call.Function).Msg("Gemini generate failed")
		return nil, errx.WrapEngine(err)
	}

	if call.Collector != nil {
		call.Collector.SetProvider(geminiProvider)
		call.Collector.RecordResponseMeta(e.modelName, out.ResponseMeta)
	}
	return out, nil
}

// InvokeStream executes one function call in streaming mode, pushing each
// partial message through emit and returning the concatenated final value.
func (e *GeminiEngine) InvokeStream(ctx context.Context, call Call, emit func(*schema.Message)) (*schema.Message, error) {
	msgs, err := renderMessages(call)
	if err != nil {
		return nil, err
	}

	if call.Collector != nil {
		call.Collector.AddAttempt()
	}
	sr, err := e.model.Stream(ctx, msgs)
	if err != nil {
		logx.Error().Err(err).Str("function", call.Function).Msg("Gemini stream failed to open")
		return nil, errx.WrapEngine(err)
	}
	defer sr.Close()

	var (
		chunks   []*schema.Message
		lastMeta *schema.ResponseMeta
	)
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			logx.Error().Err(err).Str("function", call.Function).Msg("Gemini stream receive failed")
			return nil, errx.WrapEngine(err)
		}
		if chunk.ResponseMeta != nil {
			lastMeta = chunk.ResponseMeta
		}
		chunks = append(chunks, chunk)
		emit(chunk)
	}

	final, err := schema.ConcatMessages(chunks)
	if err != nil {
		return nil, errx.WrapEngine(err)
	}

	// Usage arrives on the trailing chunk, so it is recorded after the loop.
	if call.Collector != nil {
		call.Collector.SetProvider(geminiProvider)
		call.Collector.RecordResponseMeta(e.modelName, lastMeta)
	}
	return final, nil
}

// renderMessages turns a function call into the chat messages the model sees.
// The schema-aware prompt rendering lives in the generated bindings; the
// engine only needs a stable textual form of the call.
func renderMessages(call Call) ([]*schema.Message, error) {
	args, err := json.Marshal(call.Args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments for %s: %w", call.Function, err)
	}
	return []*schema.Message{
		schema.SystemMessage("You are executing the typed function " + call.Function + ". Reply with the function output only."),
		schema.UserMessage(fmt.Sprintf("Function: %s\nArguments: %s", call.Function, args)),
	}, nil
}

var _ Engine = (*GeminiEngine)(nil)
