package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/taskforge/internal/model"
	"github.com/seantiz/taskforge/internal/provider"
)

const doneEvent = "event: done\ndata: {\"finished\":true}\n\n"

func submitAndDecode(t *testing.T, url, agentID, input string) model.Execution {
	t.Helper()
	resp := postExecution(t, url, `{"agent_id":"`+agentID+`","input":"`+input+`"}`)
	defer resp.Body.Close()
	var exec model.Execution
	if err := json.NewDecoder(resp.Body).Decode(&exec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return exec
}

func readStream(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return resp, string(body)
}

func TestStreamExecutionFragments(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{
		name: "fake", kind: provider.KindStreaming, configured: true,
		frags: []string{"Hel", "lo\nworld"},
	})
	agent := createTestAgent(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	exec := submitAndDecode(t, ts.URL, agent.ID, "hi")
	resp, body := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	want := "data: Hel\n\ndata: lo\ndata: world\n\n" + doneEvent
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamExecutionProviderError(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{
		name: "fake", kind: provider.KindStreaming, configured: true,
		err: &provider.HTTPError{Provider: "fake", StatusCode: 500, Body: "boom"},
	})
	agent := createTestAgent(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	exec := submitAndDecode(t, ts.URL, agent.ID, "hi")
	_, body := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")

	want := "event: error\ndata: provider fake returned HTTP 500\n\n" + doneEvent
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}

func TestStreamExecutionNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/executions/missing/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	if srv.engine.Bus().Len() != 0 {
		t.Error("stream request for unknown id opened a channel")
	}
}

func TestStreamReclaimedExecutionSendsDone(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{
		name: "fake", kind: provider.KindStreaming, configured: true, frags: []string{"x"},
	})
	agent := createTestAgent(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	exec := submitAndDecode(t, ts.URL, agent.ID, "hi")
	waitForStatus(t, srv, exec.ID, model.StatusCompleted, 5*time.Second)
	srv.engine.Wait()
	srv.engine.Bus().Reclaim(exec.ID)

	_, body := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")
	if body != doneEvent {
		t.Errorf("body = %q, want only the done event", body)
	}
	if srv.engine.Bus().Len() != 0 {
		t.Error("terminal stream reopened a channel")
	}
}

func TestStreamSecondReaderAfterDoneGetsDone(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{
		name: "fake", kind: provider.KindStreaming, configured: true, frags: []string{"x"},
	})
	agent := createTestAgent(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	exec := submitAndDecode(t, ts.URL, agent.ID, "hi")
	_, first := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")
	if first != "data: x\n\n"+doneEvent {
		t.Fatalf("first body = %q", first)
	}
	waitForStatus(t, srv, exec.ID, model.StatusCompleted, 5*time.Second)

	if _, ok := srv.engine.Bus().Lookup(exec.ID); !ok {
		t.Fatal("channel should still exist within the grace period")
	}

	start := time.Now()
	_, second := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")
	if second != doneEvent {
		t.Errorf("second body = %q, want only the done event", second)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("second reader took %v to finish", elapsed)
	}
}

func TestStreamCarriageReturnsSplitLines(t *testing.T) {
	srv := newTestServer(t, &fakeProvider{
		name: "fake", kind: provider.KindStreaming, configured: true, frags: []string{"line1\rline2"},
	})
	agent := createTestAgent(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	exec := submitAndDecode(t, ts.URL, agent.ID, "hi")
	_, body := readStream(t, ts.URL+"/v1/executions/"+exec.ID+"/stream")

	want := "data: line1\ndata: line2\n\n" + doneEvent
	if body != want {
		t.Errorf("body = %q, want %q", body, want)
	}
}
