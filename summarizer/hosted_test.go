package summarizer

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeCompleter struct {
	system, user string
	out          string
	err          error
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.out, f.err
}

func TestHosted_NoCredential(t *testing.T) {
	h := NewHosted(nil)
	if h.Available() {
		t.Fatal("hosted tier without client reported available")
	}
	if res := h.Summarize(context.Background(), "x"); res.Status != StatusUnavailable {
		t.Errorf("Status = %v, want unavailable", res.Status)
	}
}

func TestHosted_Prompt(t *testing.T) {
	fake := &fakeCompleter{out: "Summary."}

	res := NewHosted(fake).Summarize(context.Background(), "BP 150/95")

	if res.Status != StatusSucceeded || res.Text != "Summary." {
		t.Fatalf("result = %+v", res)
	}
	if fake.system != "You are a concise medical summarizer." {
		t.Errorf("system = %q", fake.system)
	}
	if !strings.HasSuffix(fake.user, "for a clinician:\n\nBP 150/95") {
		t.Errorf("user = %q", fake.user)
	}
}

func TestHosted_Failure(t *testing.T) {
	res := NewHosted(&fakeCompleter{err: errors.New("429")}).Summarize(context.Background(), "x")
	if res.Status != StatusFailed || res.Err == nil {
		t.Errorf("result = %+v, want failed with error", res)
	}
}
