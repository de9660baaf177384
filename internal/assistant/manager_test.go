package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"aiboost/internal/cache"
	"aiboost/internal/core"
)

// fakeOpenAI serves just enough of the Assistants API for the flow tests.
type fakeOpenAI struct {
	mu             sync.Mutex
	assistantCalls int
	messageAdds    []string
	runStatuses    []string
	retrieveCalls  int
	lastErrorJSON  string
	replyText      string
}

func (f *fakeOpenAI) snapshot() (assistantCalls, retrieveCalls int, messageAdds []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assistantCalls, f.retrieveCalls, append([]string(nil), f.messageAdds...)
}

func (f *fakeOpenAI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/assistants", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.assistantCalls++
		f.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"id": "asst_test", "object": "assistant"}`)
	})
	mux.HandleFunc("POST /v1/threads", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "thread_t1", "object": "thread"}`)
	})
	mux.HandleFunc("POST /v1/threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.messageAdds = append(f.messageAdds, r.PathValue("id"))
		f.mu.Unlock()
		fmt.Fprint(w, `{"id": "msg_user", "object": "thread.message"}`)
	})
	mux.HandleFunc("POST /v1/threads/{id}/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id": "run_1", "object": "thread.run", "status": "queued"}`)
	})
	mux.HandleFunc("GET /v1/threads/{id}/runs/{runID}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		idx := f.retrieveCalls
		f.retrieveCalls++
		f.mu.Unlock()

		status := "completed"
		if idx < len(f.runStatuses) {
			status = f.runStatuses[idx]
		}
		if f.lastErrorJSON != "" && idx >= len(f.runStatuses)-1 {
			fmt.Fprintf(w, `{"id": "run_1", "status": %q, "last_error": %s}`, status, f.lastErrorJSON)
			return
		}
		fmt.Fprintf(w, `{"id": "run_1", "status": %q}`, status)
	})
	mux.HandleFunc("GET /v1/threads/{id}/messages", func(w http.ResponseWriter, r *http.Request) {
		reply := f.replyText
		if reply == "" {
			reply = "Hello from the assistant"
		}
		fmt.Fprintf(w, `{"object": "list", "data": [
			{"id": "msg_reply", "role": "assistant", "content": [
				{"type": "text", "text": {"value": %q, "annotations": []}}
			]}
		]}`, reply)
	})

	return mux
}

func newFakeClient(t *testing.T, f *fakeOpenAI) *openai.Client {
	t.Helper()
	server := httptest.NewServer(f.handler())
	t.Cleanup(server.Close)

	cfg := openai.DefaultConfig("sk-test")
	cfg.BaseURL = server.URL + "/v1"
	cfg.HTTPClient = server.Client()
	return openai.NewClientWithConfig(cfg)
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	cacheService := cache.NewCacheService()
	t.Cleanup(cacheService.Stop)
	return NewManager(cacheService, &core.NopLogger{})
}

func TestConverseFullFlow(t *testing.T) {
	fake := &fakeOpenAI{runStatuses: []string{"in_progress", "completed"}}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	result, err := m.Converse(context.Background(), client, "fp-1", "", "What is Go?", "gpt-4o-mini")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}

	if result.ThreadID != "thread_t1" {
		t.Errorf("Expected new thread id, got %q", result.ThreadID)
	}
	if result.Response != "Hello from the assistant" {
		t.Errorf("Unexpected reply: %q", result.Response)
	}
	if result.Model != "gpt-4o-mini" {
		t.Errorf("Expected the routed model, got %s", result.Model)
	}

	_, retrieves, adds := fake.snapshot()
	if len(adds) != 1 || adds[0] != "thread_t1" {
		t.Errorf("Expected one message on thread_t1, got %v", adds)
	}
	if retrieves != 2 {
		t.Errorf("Expected 2 run polls, got %d", retrieves)
	}
}

func TestConverseReusesThread(t *testing.T) {
	fake := &fakeOpenAI{runStatuses: []string{"completed"}}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	result, err := m.Converse(context.Background(), client, "fp-1", "thread_existing", "follow up", "")
	if err != nil {
		t.Fatalf("Converse failed: %v", err)
	}
	if result.ThreadID != "thread_existing" {
		t.Errorf("Expected reused thread, got %q", result.ThreadID)
	}
	if result.Model != core.AssistantModel {
		t.Errorf("Expected assistant default model, got %s", result.Model)
	}

	_, _, adds := fake.snapshot()
	if len(adds) != 1 || adds[0] != "thread_existing" {
		t.Errorf("Expected message on existing thread, got %v", adds)
	}
}

func TestEnsureAssistantSingleflight(t *testing.T) {
	fake := &fakeOpenAI{}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	var wg sync.WaitGroup
	var failures atomic.Int64
	ids := make([]string, 5)

	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id, err := m.EnsureAssistant(context.Background(), client, "fp-shared")
			if err != nil {
				failures.Add(1)
				return
			}
			ids[i] = id
		}(i)
	}
	wg.Wait()

	if failures.Load() != 0 {
		t.Fatalf("%d EnsureAssistant calls failed", failures.Load())
	}
	creates, _, _ := fake.snapshot()
	if creates != 1 {
		t.Errorf("Expected a single assistant creation, got %d", creates)
	}
	for _, id := range ids {
		if id != "asst_test" {
			t.Errorf("Expected asst_test, got %q", id)
		}
	}
}

func TestEnsureAssistantPerFingerprint(t *testing.T) {
	fake := &fakeOpenAI{}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	if _, err := m.EnsureAssistant(context.Background(), client, "fp-a"); err != nil {
		t.Fatalf("EnsureAssistant failed: %v", err)
	}
	if _, err := m.EnsureAssistant(context.Background(), client, "fp-b"); err != nil {
		t.Fatalf("EnsureAssistant failed: %v", err)
	}
	if _, err := m.EnsureAssistant(context.Background(), client, "fp-a"); err != nil {
		t.Fatalf("EnsureAssistant failed: %v", err)
	}

	creates, _, _ := fake.snapshot()
	if creates != 2 {
		t.Errorf("Expected one creation per fingerprint, got %d", creates)
	}
}

func TestRunAndWaitFailure(t *testing.T) {
	fake := &fakeOpenAI{
		runStatuses:   []string{"failed"},
		lastErrorJSON: `{"code": "rate_limit_exceeded", "message": "Rate limit reached"}`,
	}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	err := m.RunAndWait(context.Background(), client, "thread_t1", "asst_test", "")
	if err == nil {
		t.Fatal("Expected error for failed run")
	}
	if !strings.Contains(err.Error(), "Rate limit reached") || !strings.Contains(err.Error(), "rate_limit_exceeded") {
		t.Errorf("Expected last_error details, got %v", err)
	}
}

func TestRunAndWaitCancellation(t *testing.T) {
	fake := &fakeOpenAI{runStatuses: []string{"in_progress", "in_progress", "in_progress", "in_progress"}}
	client := newFakeClient(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	m := newTestManager(t)
	start := time.Now()
	err := m.RunAndWait(ctx, client, "thread_t1", "asst_test", "")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Cancellation took too long: %v", elapsed)
	}
}

func TestLatestAssistantReply(t *testing.T) {
	fake := &fakeOpenAI{replyText: "multi part answer"}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	reply, err := m.LatestAssistantReply(context.Background(), client, "thread_t1")
	if err != nil {
		t.Fatalf("LatestAssistantReply failed: %v", err)
	}
	if reply != "multi part answer" {
		t.Errorf("Unexpected reply: %q", reply)
	}
}

func TestThreadHistory(t *testing.T) {
	fake := &fakeOpenAI{replyText: "stored answer"}
	client := newFakeClient(t, fake)

	m := newTestManager(t)
	history, err := m.ThreadHistory(context.Background(), client, "thread_t1")
	if err != nil {
		t.Fatalf("ThreadHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(history))
	}
	if history[0].Role != core.RoleAssistant || history[0].Content != "stored answer" {
		t.Errorf("Unexpected history entry: %+v", history[0])
	}
}

func TestValidThreadID(t *testing.T) {
	cases := []struct {
		id   string
		want bool
	}{
		{"thread_abc123", true},
		{"thr_abc", false},
		{"", false},
		{"conv_20250101_120000_abcd1234", false},
	}
	for _, tc := range cases {
		if got := ValidThreadID(tc.id); got != tc.want {
			t.Errorf("ValidThreadID(%q) = %v, want %v", tc.id, got, tc.want)
		}
	}
}
