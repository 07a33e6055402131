package summarizer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newLocalRuntime(t *testing.T, status int, body string, inspect func(localRequest)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req localRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("invalid runtime request: %v", err)
		}
		if inspect != nil {
			inspect(req)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func localOpts(url string) LocalOptions {
	return LocalOptions{
		RuntimeURL:      url,
		Checkpoint:      "/ckpt/t5-small_epoch3.pt",
		BaseModel:       "t5-small",
		MaxSourceTokens: 512,
		MaxOutputTokens: 150,
		NumBeams:        4,
	}
}

func TestLocal_Unavailable(t *testing.T) {
	l := NewLocal(LocalOptions{RuntimeURL: "http://127.0.0.1:1"}, nil)

	if l.Available() {
		t.Fatal("local tier without checkpoint reported available")
	}
	if res := l.Summarize(context.Background(), "text"); res.Status != StatusUnavailable {
		t.Errorf("Status = %v, want unavailable", res.Status)
	}
}

func TestLocal_Summarize(t *testing.T) {
	var got localRequest
	server := newLocalRuntime(t, http.StatusOK, `[{"summary_text": "  Cough and fever, 5 days. "}]`, func(r localRequest) { got = r })
	defer server.Close()

	res := NewLocal(localOpts(server.URL), server.Client()).Summarize(context.Background(), "report")

	if res.Status != StatusSucceeded || res.Text != "Cough and fever, 5 days." {
		t.Fatalf("result = %+v", res)
	}
	if got.Inputs != "report" || got.BaseModel != "t5-small" || got.Checkpoint != "/ckpt/t5-small_epoch3.pt" {
		t.Errorf("request = %+v", got)
	}
	p := got.Parameters
	if p.MaxInputLength != 512 || !p.Truncation || p.MaxLength != 150 || p.NumBeams != 4 || p.DoSample {
		t.Errorf("parameters = %+v", p)
	}
}

func TestLocal_ResponseShapes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   Status
		text   string
	}{
		{"single object", http.StatusOK, `{"summary_text": "s"}`, StatusSucceeded, "s"},
		{"generated text", http.StatusOK, `[{"generated_text": "g"}]`, StatusSucceeded, "g"},
		{"empty list", http.StatusOK, `[]`, StatusFailed, ""},
		{"blank text", http.StatusOK, `[{"summary_text": "   "}]`, StatusFailed, ""},
		{"not json", http.StatusOK, `oops`, StatusFailed, ""},
		{"server error", http.StatusInternalServerError, `{"error": "device"}`, StatusFailed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newLocalRuntime(t, tt.status, tt.body, nil)
			defer server.Close()

			res := NewLocal(localOpts(server.URL), server.Client()).Summarize(context.Background(), "x")
			if res.Status != tt.want || res.Text != tt.text {
				t.Errorf("result = %+v, want status %v text %q", res, tt.want, tt.text)
			}
			if tt.want == StatusFailed && res.Err == nil {
				t.Error("failed result carries no error")
			}
		})
	}
}

func TestLocal_RuntimeDown(t *testing.T) {
	server := newLocalRuntime(t, http.StatusOK, `[]`, nil)
	url := server.URL
	server.Close()

	res := NewLocal(localOpts(url), nil).Summarize(context.Background(), "x")
	if res.Status != StatusFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
}
