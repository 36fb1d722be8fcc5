package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/workflow"
)

// createPendingJob stores a job without running it so tests control its events.
func createPendingJob(t *testing.T, srv *Server) *model.Job {
	t.Helper()
	now := time.Now().UTC()
	j := &model.Job{
		ID:        model.NewID(),
		Blueprint: workflow.BotRunnerName,
		State:     string(workflow.StateInit),
		Status:    model.StatusPending,
		Data:      map[string]any{"action": "list"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := srv.store.CreateJob(context.Background(), j); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return j
}

func TestStreamEventsNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/nonexistent/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestStreamEventsFinishedJob(t *testing.T) {
	srv := newTestServer(t)
	j := createPendingJob(t, srv)
	j.Status = model.StatusFailed
	if err := srv.store.UpdateJob(context.Background(), j); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/" + j.ID + "/events")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}
}

func TestStreamEventsReceivesEvents(t *testing.T) {
	srv := newTestServer(t)
	j := createPendingJob(t, srv)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", ts.URL+"/v1/jobs/"+j.ID+"/events", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	broker := srv.engine.Broker()
	broker.Publish(model.JobEvent{JobID: j.ID, Seq: 0, Kind: model.EventEnter, State: "init"})
	broker.Publish(model.JobEvent{JobID: j.ID, Seq: 1, Kind: model.EventDispatch, State: "list_bots", Detail: "list_bots"})
	broker.Close(j.ID)

	scanner := bufio.NewScanner(resp.Body)
	var names []string
	var events []model.JobEvent
	for scanner.Scan() {
		line := scanner.Text()
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
			continue
		}
		if data, ok := strings.CutPrefix(line, "data: "); ok && names[len(names)-1] != "done" {
			var ev model.JobEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("decode event %q: %v", data, err)
			}
			events = append(events, ev)
		}
	}

	wantNames := []string{model.EventEnter, model.EventDispatch, "done"}
	if strings.Join(names, ",") != strings.Join(wantNames, ",") {
		t.Errorf("event names = %v, want %v", names, wantNames)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[1].State != "list_bots" || events[1].Seq != 1 || events[1].JobID != j.ID {
		t.Errorf("event[1] = %+v", events[1])
	}
}

func TestEventHistory(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+workflow.BotRunnerEndpoint, `{"action":"status","bot_id":"b1"}`, nil)
	var accepted model.Job
	if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	srv.engine.Wait()

	resp, err := http.Get(ts.URL + "/v1/jobs/" + accepted.ID + "/events/history")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var history eventHistoryResponse
	if err := json.NewDecoder(resp.Body).Decode(&history); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if history.JobID != accepted.ID {
		t.Errorf("job_id = %q, want %q", history.JobID, accepted.ID)
	}
	if len(history.Events) == 0 {
		t.Fatal("no events recorded")
	}
	first, last := history.Events[0], history.Events[len(history.Events)-1]
	if first.Kind != model.EventEnter || first.State != string(workflow.StateInit) {
		t.Errorf("first event = %s/%s, want enter/init", first.Kind, first.State)
	}
	if last.Kind != model.EventFinish || last.State != string(workflow.StateCompleted) {
		t.Errorf("last event = %s/%s, want finish/completed", last.Kind, last.State)
	}
}

func TestEventHistoryNotFound(t *testing.T) {
	srv := newTestServer(t)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/jobs/nonexistent/events/history")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
