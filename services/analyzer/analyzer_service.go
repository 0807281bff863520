package analyzer

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"golang.org/x/net/context"

	"github.com/outreachloop/followup/config"
	"github.com/outreachloop/followup/interfaces"
	"github.com/outreachloop/followup/internal/contact"
	"github.com/outreachloop/followup/internal/enum"
	"github.com/outreachloop/followup/internal/logger"
	"github.com/outreachloop/followup/internal/models"
	"github.com/outreachloop/followup/internal/tracing"
)

const (
	analysisTimeout = 10 * time.Second
	maxRetries      = 2
)

// TrainingRecorder captures classified samples for later model training.
// Recording failures must never affect the pipeline.
type TrainingRecorder interface {
	Record(body string, intent enum.Intent)
}

type analyzerService struct {
	groqConfig *config.GroqConfig
	httpClient *http.Client
	recorder   TrainingRecorder
	log        logger.Logger
}

func NewAnalyzerService(groqConfig *config.GroqConfig, recorder TrainingRecorder, log logger.Logger) interfaces.AnalyzerService {
	return &analyzerService{
		groqConfig: groqConfig,
		httpClient: &http.Client{Timeout: analysisTimeout},
		recorder:   recorder,
		log:        log,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type analysisPayload struct {
	Intent       string   `json:"intent"`
	PhoneNumbers []string `json:"phone_numbers"`
	HasAddress   bool     `json:"has_address"`
	AddressText  *string  `json:"address_text"`
}

// Analyze classifies one reply body. The classifier is never trusted with
// the decision: unknown intents collapse to UNCLEAR and every phone number
// is re-validated to E.164 before it counts as contact info.
func (s *analyzerService) Analyze(ctx context.Context, message *models.InboundMessage) (*models.EmailAnalysis, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "analyzerService.Analyze")
	defer span.Finish()
	tracing.TagComponentService(span)
	span.SetTag("message_id", message.MessageID)

	body := strings.TrimSpace(message.Body)
	if body == "" {
		span.LogKV("result", "empty body, defaulting to unclear")
		return &models.EmailAnalysis{Intent: enum.IntentUnclear}, nil
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return &models.EmailAnalysis{Intent: enum.IntentUnclear}, nil
			case <-time.After(wait):
			}
		}

		analysis, err := s.callGroq(ctx, body)
		if err != nil {
			lastErr = err
			s.log.Warnf("analyzer attempt %d/%d failed: %v", attempt+1, maxRetries+1, err)
			continue
		}

		if s.recorder != nil {
			s.recorder.Record(body, analysis.Intent)
		}
		span.LogKV("intent", analysis.Intent.String())
		return analysis, nil
	}

	// Classifier exhausted. Route to a human rather than guessing.
	tracing.TraceErr(span, lastErr)
	s.log.Errorf("analyzer exhausted retries, defaulting to unclear: %v", lastErr)
	return &models.EmailAnalysis{Intent: enum.IntentUnclear}, nil
}

func (s *analyzerService) callGroq(ctx context.Context, body string) (*models.EmailAnalysis, error) {
	requestBody, err := json.Marshal(chatRequest{
		Model: s.groqConfig.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: "Analyze this email:\n\n" + body},
		},
		Temperature: 0,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, analysisTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.groqConfig.URL, bytes.NewReader(requestBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.groqConfig.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "groq request failed")
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read groq response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("groq returned status %d: %s", resp.StatusCode, string(responseBody))
	}

	var chat chatResponse
	if err := json.Unmarshal(responseBody, &chat); err != nil {
		return nil, errors.Wrap(err, "failed to decode groq response")
	}
	if len(chat.Choices) == 0 {
		return nil, errors.New("groq response has no choices")
	}

	return parseAnalysis(chat.Choices[0].Message.Content)
}

// parseAnalysis extracts the JSON verdict, tolerating markdown fences the
// model sometimes wraps it in.
func parseAnalysis(content string) (*models.EmailAnalysis, error) {
	content = strings.TrimSpace(content)
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	} else if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
	}

	var payload analysisPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &payload); err != nil {
		return nil, errors.Wrap(err, "failed to parse analysis payload")
	}

	analysis := &models.EmailAnalysis{
		Intent:     enum.ParseIntent(strings.ToUpper(payload.Intent)),
		HasAddress: payload.HasAddress,
	}
	if payload.AddressText != nil {
		analysis.AddressText = *payload.AddressText
	}

	for _, raw := range payload.PhoneNumbers {
		if e164 := contact.ValidateE164(raw); e164 != "" {
			analysis.PhoneNumbers = append(analysis.PhoneNumbers, e164)
		}
	}

	return analysis, nil
}
