package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"callbridge/internal/config"
	"callbridge/pkg/logger"
)

// Gateway wraps the external speech-to-text/summarization service.
//
// Windowed mode runs on a hot timer during a live call: provider failures are
// swallowed (empty text, nil error) so a flaky upstream never interrupts the
// call. Final mode failures propagate; the caller decides what survives.
type Gateway interface {
	TranscribeWindow(ctx context.Context, wav []byte) (string, error)
	TranscribeFinal(ctx context.Context, recordingURL string) (FinalResult, error)
}

type FinalResult struct {
	Text    string
	Summary string
}

// RecordingFetcher downloads a finished call recording.
// Satisfied by the telephony client (recordings need provider auth).
type RecordingFetcher interface {
	FetchRecording(ctx context.Context, recordingURL string) ([]byte, error)
}

var ErrTranscription = errors.New("transcribe: transcription failed")

// minSummaryLength is the transcript size below which no summary is requested.
const minSummaryLength = 50

const summarySystemPrompt = "You are an AI assistant helping recruiters analyze candidate phone interviews. " +
	"Provide a concise summary highlighting key skills, experience, availability, and overall impression."

// OpenAIGateway implements Gateway against the OpenAI HTTP API:
// Whisper for transcription, chat completions for the summary.
type OpenAIGateway struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	fetcher    RecordingFetcher

	transcribeModel string
	summaryModel    string
}

func NewOpenAIGateway(cfg config.OpenAIConfig, fetcher RecordingFetcher) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("transcribe: openai api key is required")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGateway{
		apiKey:          cfg.APIKey,
		baseURL:         base,
		httpClient:      &http.Client{Timeout: timeout},
		fetcher:         fetcher,
		transcribeModel: "whisper-1",
		summaryModel:    "gpt-4o-mini",
	}, nil
}

// TranscribeWindow transcribes a short live-audio window. Provider errors are
// logged and swallowed; the caller only ever sees text or empty.
func (g *OpenAIGateway) TranscribeWindow(ctx context.Context, wav []byte) (string, error) {
	if len(wav) == 0 {
		return "", nil
	}
	text, err := g.transcribe(ctx, wav)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logger.From(ctx).Warn("windowed transcription failed", "err", err)
		return "", nil
	}
	return text, nil
}

// TranscribeFinal downloads the complete recording, transcribes it, and asks
// for a summary when the transcript is long enough to be worth one.
// Transcription errors propagate; a failed summary is not fatal.
func (g *OpenAIGateway) TranscribeFinal(ctx context.Context, recordingURL string) (FinalResult, error) {
	if g.fetcher == nil {
		return FinalResult{}, errors.New("transcribe: recording fetcher not configured")
	}
	audio, err := g.fetcher.FetchRecording(ctx, recordingURL)
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: download recording: %v", ErrTranscription, err)
	}

	text, err := g.transcribe(ctx, audio)
	if err != nil {
		return FinalResult{}, fmt.Errorf("%w: %v", ErrTranscription, err)
	}

	out := FinalResult{Text: text}
	if len(text) > minSummaryLength {
		summary, err := g.summarize(ctx, text)
		if err != nil {
			logger.From(ctx).Warn("summary generation failed", "err", err)
		} else {
			out.Summary = summary
		}
	}
	return out, nil
}

func (g *OpenAIGateway) transcribe(ctx context.Context, audio []byte) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", err
	}
	if _, err := fw.Write(audio); err != nil {
		return "", err
	}
	_ = mw.WriteField("model", g.transcribeModel)
	_ = mw.WriteField("response_format", "text")
	_ = mw.WriteField("language", "en")
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return strings.TrimSpace(string(respBody)), nil
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (g *OpenAIGateway) summarize(ctx context.Context, transcript string) (string, error) {
	payload := chatRequest{
		Model: g.summaryModel,
		Messages: []chatMessage{
			{Role: "system", Content: summarySystemPrompt},
			{Role: "user", Content: "Please summarize this recruitment call transcript:\n\n" + transcript},
		},
		MaxTokens: 300,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("summary status %d: %s", resp.StatusCode, truncate(string(respBody), 512))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", errors.New("summary response has no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
