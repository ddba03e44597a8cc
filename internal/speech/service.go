package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/azure"

	"voicecart/internal/domain"
)

const (
	// rewriteTemperature keeps the cleanup model close to the source text
	// while still fixing recognition artifacts.
	rewriteTemperature = 0.6

	ttsOutputFormat = "audio-16khz-128kbitrate-mono-mp3"
)

// Service wraps the speech backend's one-shot recognition and synthesis
// endpoints and runs recognized text through a small cleanup model before it
// is shown to the user. The cleanup model is steered by the same serving
// instructions the realtime session uses, so both surfaces speak with one
// persona.
type Service struct {
	cfg          domain.SpeechConfig
	instructions func() string
	client       *http.Client
	logger       *slog.Logger

	// tests may replace
	sttBase string
	ttsBase string
	rewrite func(ctx context.Context, text string) (string, error)
}

// NewService builds a Service from the speech configuration. instructions
// supplies the system message for the cleanup model; when that model is not
// configured, recognized text passes through verbatim.
func NewService(cfg domain.SpeechConfig, instructions func() string, logger *slog.Logger) *Service {
	if instructions == nil {
		instructions = func() string { return "" }
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		cfg:          cfg,
		instructions: instructions,
		client:       &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
		sttBase:      fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region),
		ttsBase:      fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region),
	}
	s.rewrite = s.buildRewriter()
	return s
}

func (s *Service) buildRewriter() func(ctx context.Context, text string) (string, error) {
	if s.cfg.MiniEndpoint == "" || s.cfg.MiniDeployment == "" {
		return func(_ context.Context, text string) (string, error) { return text, nil }
	}
	client := openai.NewClient(
		azure.WithEndpoint(s.cfg.MiniEndpoint, "2024-06-01"),
		azure.WithAPIKey(s.cfg.MiniAPIKey),
	)
	model := openai.ChatModel(s.cfg.MiniDeployment)
	return func(ctx context.Context, text string) (string, error) {
		resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Model: model,
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.SystemMessage(s.instructions()),
				openai.UserMessage(text),
			},
			Temperature: openai.Float(rewriteTemperature),
		})
		if err != nil {
			return "", fmt.Errorf("rewrite completion: %w", err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("rewrite completion returned no choices")
		}
		return strings.TrimSpace(resp.Choices[0].Message.Content), nil
	}
}

type recognitionResult struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// Recognize runs one-shot speech recognition over a complete audio clip.
func (s *Service) Recognize(ctx context.Context, audio io.Reader, contentType string) (string, error) {
	u := s.sttBase + "/speech/recognition/conversation/cognitiveservices/v1?language=en-US"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, audio)
	if err != nil {
		return "", fmt.Errorf("build recognition request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.Key)
	if contentType == "" {
		contentType = "audio/wav"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognition request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("recognition failed: status %d: %s", resp.StatusCode, body)
	}

	var result recognitionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode recognition result: %w", err)
	}
	if result.RecognitionStatus != "Success" {
		return "", fmt.Errorf("recognition status %q", result.RecognitionStatus)
	}
	return result.DisplayText, nil
}

// Rewrite cleans up recognized text with the configured model.
func (s *Service) Rewrite(ctx context.Context, text string) (string, error) {
	return s.rewrite(ctx, text)
}

// Synthesize renders text to audio with the configured voice and returns the
// encoded audio bytes.
func (s *Service) Synthesize(ctx context.Context, text string) ([]byte, error) {
	voice := s.cfg.Voice
	ssml := fmt.Sprintf(
		`<speak version='1.0' xml:lang='en-US'><voice name='%s'>%s</voice></speak>`,
		voice, html.EscapeString(text))

	u := s.ttsBase + "/cognitiveservices/v1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewBufferString(ssml))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", s.cfg.Key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", ttsOutputFormat)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("synthesis failed: status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}
