package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"callbridge/internal/config"
)

type staticFetcher struct {
	audio []byte
	err   error
}

func (f staticFetcher) FetchRecording(ctx context.Context, recordingURL string) ([]byte, error) {
	return f.audio, f.err
}

func newTestGateway(t *testing.T, srv *httptest.Server, fetcher RecordingFetcher) *OpenAIGateway {
	t.Helper()
	g, err := NewOpenAIGateway(config.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL}, fetcher)
	if err != nil {
		t.Fatalf("gateway: %v", err)
	}
	return g
}

func TestTranscribeWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("bad auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		w.Write([]byte("hello from the call\n"))
	}))
	defer srv.Close()

	got, err := newTestGateway(t, srv, nil).TranscribeWindow(context.Background(), []byte("RIFF..."))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if got != "hello from the call" {
		t.Fatalf("text = %q", got)
	}
}

func TestTranscribeWindowSwallowsProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	got, err := newTestGateway(t, srv, nil).TranscribeWindow(context.Background(), []byte("RIFF..."))
	if err != nil {
		t.Fatalf("provider failure must not surface: %v", err)
	}
	if got != "" {
		t.Fatalf("text = %q, want empty", got)
	}
}

func TestTranscribeWindowEmptyAudio(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("no request expected for empty audio")
	}))
	defer srv.Close()

	got, err := newTestGateway(t, srv, nil).TranscribeWindow(context.Background(), nil)
	if err != nil || got != "" {
		t.Fatalf("got (%q, %v), want empty", got, err)
	}
}

func TestTranscribeFinalWithSummary(t *testing.T) {
	transcript := strings.Repeat("we talked about the role and availability. ", 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/audio/transcriptions":
			w.Write([]byte(transcript))
		case "/chat/completions":
			var req struct {
				Model    string `json:"model"`
				Messages []struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"messages"`
				MaxTokens int `json:"max_tokens"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode chat request: %v", err)
			}
			if req.Model != "gpt-4o-mini" || req.MaxTokens != 300 {
				t.Errorf("unexpected chat request: %+v", req)
			}
			if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
				t.Errorf("unexpected messages: %+v", req.Messages)
			}
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Good candidate."}}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, staticFetcher{audio: []byte("audio")})
	res, err := g.TranscribeFinal(context.Background(), "https://api.example.com/rec/RE1")
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if res.Text != strings.TrimSpace(transcript) {
		t.Fatalf("text = %q", res.Text)
	}
	if res.Summary != "Good candidate." {
		t.Fatalf("summary = %q", res.Summary)
	}
}

func TestTranscribeFinalShortTranscriptSkipsSummary(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/completions" {
			t.Errorf("summary requested for short transcript")
		}
		w.Write([]byte("hi"))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, staticFetcher{audio: []byte("audio")})
	res, err := g.TranscribeFinal(context.Background(), "https://api.example.com/rec/RE1")
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if res.Text != "hi" || res.Summary != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTranscribeFinalSummaryFailureNotFatal(t *testing.T) {
	transcript := strings.Repeat("long enough transcript text. ", 3)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/completions" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(transcript))
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, staticFetcher{audio: []byte("audio")})
	res, err := g.TranscribeFinal(context.Background(), "https://api.example.com/rec/RE1")
	if err != nil {
		t.Fatalf("final: %v", err)
	}
	if res.Text == "" || res.Summary != "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestTranscribeFinalPropagatesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGateway(t, srv, staticFetcher{audio: []byte("audio")})
	if _, err := g.TranscribeFinal(context.Background(), "url"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}

	g = newTestGateway(t, srv, staticFetcher{err: errors.New("download failed")})
	if _, err := g.TranscribeFinal(context.Background(), "url"); !errors.Is(err, ErrTranscription) {
		t.Fatalf("expected ErrTranscription, got %v", err)
	}
}
