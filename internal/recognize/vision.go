package recognize

import (
	"context"
	"encoding/base64"
	"log"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/attendsync/attendsync/internal/schema"
)

// DefaultVisionModel is used when no model is configured.
const DefaultVisionModel = "claude-sonnet-4-5"

const visionPrompt = `Transcribe all text printed on this receipt or attendance
voucher, line by line, exactly as it appears. Do not add commentary.`

// VisionConfig configures the model-backed recognizer.
type VisionConfig struct {
	// APIKey authenticates against the messages API.
	APIKey string

	// Model is the vision-capable model name.
	Model string

	// BaseURL overrides the API endpoint (tests, proxies).
	BaseURL string

	// Timeout bounds one recognition call. Zero means 30s.
	Timeout time.Duration

	// Logger for recognition activity.
	Logger *log.Logger

	// Now returns the reference time for relative dates.
	Now func() time.Time
}

// Vision recognizes text with a hosted vision model.
type Vision struct {
	client  anthropic.Client
	model   string
	timeout time.Duration
	logger  *log.Logger
	now     func() time.Time
	enabled bool
}

// NewVision creates a vision recognizer. An empty API key yields a
// recognizer that reports itself unavailable on every call.
func NewVision(cfg VisionConfig) *Vision {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(1)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stderr, "[recognize] ", log.LstdFlags)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Model == "" {
		cfg.Model = DefaultVisionModel
	}
	v := &Vision{
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		now:     cfg.Now,
	}
	if cfg.APIKey != "" {
		v.client = anthropic.NewClient(opts...)
		v.enabled = true
	}
	return v
}

// Recognize implements Recognizer.
func (v *Vision) Recognize(ctx context.Context, jpeg []byte) (*schema.RecognizedFields, error) {
	if v.model == "" || len(jpeg) == 0 {
		return nil, unavailable("no model or image")
	}
	if !v.enabled {
		return nil, unavailable("no API key configured")
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	msg, err := v.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(v.model),
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(
				anthropic.NewImageBlockBase64("image/jpeg", base64.StdEncoding.EncodeToString(jpeg)),
				anthropic.NewTextBlock(visionPrompt),
			),
		},
	})
	if err != nil {
		return nil, unavailable("vision request failed: %v", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
			sb.WriteString("\n")
		}
	}

	fields := ParseFields(sb.String(), v.now())
	if fields.Empty() {
		return nil, unavailable("no text recognized")
	}
	v.logger.Printf("Recognized %d chars (date=%q amount=%q)", len(fields.Text), fields.Date, fields.Amount)
	return fields, nil
}
