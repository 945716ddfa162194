package telephony

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"callbridge/internal/config"
)

func testClient(t *testing.T, srv *httptest.Server) *TwilioClient {
	t.Helper()
	c, err := NewTwilioClient(config.TwilioConfig{
		AccountSID: "AC123",
		AuthToken:  "token",
		APIBaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return c
}

func TestPlaceCall(t *testing.T) {
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/Accounts/AC123/Calls.json" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "AC123" || pass != "token" {
			t.Errorf("missing basic auth")
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{}
		for k := range r.PostForm {
			gotForm[k] = r.PostFormValue(k)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"sid":"CA999","status":"queued"}`))
	}))
	defer srv.Close()

	sid, err := testClient(t, srv).PlaceCall(context.Background(), PlaceCallRequest{
		To:                   "+15551230001",
		From:                 "+15551230000",
		SignalURL:            "https://example.com/signal?callId=c1",
		StatusCallbackURL:    "https://example.com/webhook?callId=c1",
		RecordingCallbackURL: "https://example.com/webhook?callId=c1&type=recording",
		Record:               true,
	})
	if err != nil {
		t.Fatalf("place call: %v", err)
	}
	if sid != "CA999" {
		t.Fatalf("sid = %q, want CA999", sid)
	}

	if gotForm["To"] != "+15551230001" || gotForm["From"] != "+15551230000" {
		t.Fatalf("numbers not forwarded: %+v", gotForm)
	}
	if gotForm["Url"] != "https://example.com/signal?callId=c1" {
		t.Fatalf("signal url not forwarded: %+v", gotForm)
	}
	if gotForm["StatusCallbackEvent"] != "initiated ringing answered completed" {
		t.Fatalf("status events not requested: %+v", gotForm)
	}
	if gotForm["Record"] != "true" || gotForm["RecordingStatusCallback"] == "" {
		t.Fatalf("recording not requested: %+v", gotForm)
	}
}

func TestPlaceCallRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":21211,"message":"invalid to number"}`))
	}))
	defer srv.Close()

	_, err := testClient(t, srv).PlaceCall(context.Background(), PlaceCallRequest{To: "+1", From: "+2", SignalURL: "https://x"})
	if !errors.Is(err, ErrDialRejected) {
		t.Fatalf("expected ErrDialRejected, got %v", err)
	}
}

func TestPlaceCallValidatesNumbers(t *testing.T) {
	c, err := NewTwilioClient(config.TwilioConfig{AccountSID: "AC123", AuthToken: "token"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := c.PlaceCall(context.Background(), PlaceCallRequest{}); !errors.Is(err, ErrDialRejected) {
		t.Fatalf("expected ErrDialRejected, got %v", err)
	}
}

func TestFetchRecording(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Errorf("recording fetch must authenticate")
		}
		w.Write([]byte("audio-bytes"))
	}))
	defer srv.Close()

	got, err := testClient(t, srv).FetchRecording(context.Background(), srv.URL+"/recordings/RE1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if string(got) != "audio-bytes" {
		t.Fatalf("unexpected body %q", got)
	}
}

func TestNewTwilioClientRequiresCredentials(t *testing.T) {
	if _, err := NewTwilioClient(config.TwilioConfig{}); err == nil {
		t.Fatalf("expected credentials error")
	}
}
