package sse

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients")
	}
	sub := b.Subscribe("")
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client")
	}
	b.Unsubscribe(sub)
	b.Unsubscribe(sub)
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after unsub")
	}
	if _, ok := <-sub.C; ok {
		t.Error("channel still open after unsubscribe")
	}
}

var idLine = regexp.MustCompile(`(?m)^id: [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

func TestNotify_AssignsIDAndDelivers(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	b.Notify("draft.saved", map[string]string{"branch": "main"})

	select {
	case e := <-sub.C:
		var buf bytes.Buffer
		if err := WriteFrame(&buf, e); err != nil {
			t.Fatal(err)
		}
		s := buf.String()
		if !strings.Contains(s, "event: draft.saved") || !strings.Contains(s, `"branch":"main"`) {
			t.Errorf("frame = %q", s)
		}
		if !idLine.MatchString(s) {
			t.Errorf("missing uuid id line in %q", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWriteFrame_KeepsExplicitID(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, Event{ID: "42", Type: "branch.changed", Data: map[string]string{"branch": "dev"}}); err != nil {
		t.Fatal(err)
	}
	want := "id: 42\nevent: branch.changed\ndata: {\"branch\":\"dev\"}\n\n"
	if buf.String() != want {
		t.Errorf("frame = %q", buf.String())
	}
}

func TestSubscribe_ReplaysAfterLastEventID(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	b.Publish(Event{ID: "1", Type: "a"})
	b.Publish(Event{ID: "2", Type: "b"})
	b.Publish(Event{ID: "3", Type: "c"})

	sub := b.Subscribe("1")
	defer b.Unsubscribe(sub)
	if len(sub.Missed) != 2 || sub.Missed[0].ID != "2" || sub.Missed[1].ID != "3" {
		t.Errorf("missed = %+v", sub.Missed)
	}

	unknown := b.Subscribe("gone")
	defer b.Unsubscribe(unknown)
	if len(unknown.Missed) != 0 {
		t.Errorf("unknown id replayed %d events", len(unknown.Missed))
	}
}

func TestPublish_HistoryIsBounded(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	b.history = 2

	b.Publish(Event{ID: "1", Type: "a"})
	b.Publish(Event{ID: "2", Type: "b"})
	b.Publish(Event{ID: "3", Type: "c"})

	if sub := b.Subscribe("1"); len(sub.Missed) != 0 {
		t.Errorf("evicted id still replayed: %+v", sub.Missed)
	}
	if sub := b.Subscribe("2"); len(sub.Missed) != 1 || sub.Missed[0].ID != "3" {
		t.Errorf("missed = %+v", sub.Missed)
	}
}

func TestPublish_DropsForSlowClient(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)

	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Type: "test"})
	}
	if n := len(sub.C); n != clientBuffer {
		t.Errorf("buffered = %d, want %d", n, clientBuffer)
	}
}

func TestServeHTTP(t *testing.T) {
	b := NewBroker(20 * time.Millisecond)
	defer b.Close()
	b.Publish(Event{ID: "before", Type: "navigation.updated"})
	b.Publish(Event{ID: "missed", Type: "draft.saved", Data: map[string]string{"branch": "main"}})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	req.Header.Set("Last-Event-ID", "before")
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for b.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ClientCount() != 1 {
		t.Fatal("handler did not subscribe")
	}
	b.Notify("branch.changed", map[string]string{"to": "dev"})
	time.Sleep(60 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	for _, want := range []string{"id: missed\nevent: draft.saved", "event: branch.changed", ": ping"} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q in %q", want, body)
		}
	}
	if strings.Contains(body, "id: before\n") {
		t.Error("event before Last-Event-ID was replayed")
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if b.ClientCount() != 0 {
		t.Error("client not removed after disconnect")
	}
}

func TestClose_DisconnectsClients(t *testing.T) {
	b := NewBroker(time.Second)
	sub := b.Subscribe("")

	b.Close()
	b.Close()

	if _, ok := <-sub.C; ok {
		t.Fatal("expected subscriber channel to be closed")
	}
	if b.ClientCount() != 0 {
		t.Fatalf("expected 0 clients after close")
	}
	b.Notify("content.changed", map[string]string{"path": "x.md"})
	b.Unsubscribe(sub)

	late := b.Subscribe("")
	if _, ok := <-late.C; ok {
		t.Error("subscription after close should be closed")
	}
}
