package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/john/gmodrelay/internal/buffer"
	"github.com/john/gmodrelay/internal/gate"
	"github.com/john/gmodrelay/internal/message"
	"github.com/john/gmodrelay/internal/status"
)

const trustedIP = "203.0.113.5"

type sentMessage struct {
	avatarURL string
	username  string
	content   string
}

// fakeSender records webhook sends and signals each one on a channel so
// tests can wait for the background relay goroutine.
type fakeSender struct {
	mu    sync.Mutex
	calls []sentMessage
	ch    chan sentMessage
}

func newFakeSender() *fakeSender {
	return &fakeSender{ch: make(chan sentMessage, 16)}
}

func (f *fakeSender) SendWebhook(avatarURL, username, content string) {
	f.mu.Lock()
	f.calls = append(f.calls, sentMessage{avatarURL, username, content})
	f.mu.Unlock()
	f.ch <- sentMessage{avatarURL, username, content}
}

func (f *fakeSender) wait(t *testing.T) sentMessage {
	t.Helper()
	select {
	case m := <-f.ch:
		return m
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for webhook send")
		return sentMessage{}
	}
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeResolver returns a fixed URL and counts calls.
type fakeResolver struct {
	mu    sync.Mutex
	calls int
	url   string
	err   error
}

func (f *fakeResolver) Resolve(ctx context.Context, steamID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, f.err
}

func (f *fakeResolver) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	server   *Server
	buffer   *buffer.Buffer
	sender   *fakeSender
	resolver *fakeResolver
	statuses *status.Store
}

func newFixture() *fixture {
	f := &fixture{
		buffer:   buffer.New(0),
		sender:   newFakeSender(),
		resolver: &fakeResolver{url: "http://x/a.png"},
		statuses: status.NewStore(),
	}
	f.server = New(":0", gate.New(trustedIP), f.buffer, f.resolver, f.sender, f.statuses, nil)
	return f
}

func (f *fixture) request(t *testing.T, method, path, body, remote string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.RemoteAddr = remote + ":51234"
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetMessagesDrainsBuffer(t *testing.T) {
	f := newFixture()
	f.buffer.Append(message.Event{Username: "Alice", Content: "hello"})

	rec := f.request(t, http.MethodGet, "/getmessages", "", trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var pairs [][2]string
	if err := json.Unmarshal(rec.Body.Bytes(), &pairs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(pairs) != 1 || pairs[0] != [2]string{"Alice", "hello"} {
		t.Fatalf("unexpected pairs: %v", pairs)
	}

	// Drain is a side effect: the next poll is empty.
	rec = f.request(t, http.MethodGet, "/getmessages", "", trustedIP)
	if err := json.Unmarshal(rec.Body.Bytes(), &pairs); err != nil {
		t.Fatalf("decode second response: %v", err)
	}
	if len(pairs) != 0 {
		t.Fatalf("expected empty second drain, got %v", pairs)
	}
}

func TestGetMessagesAppendsMediaURL(t *testing.T) {
	f := newFixture()
	f.buffer.Append(message.Event{Username: "Alice", Content: "look", MediaURL: "http://cdn/img.png"})

	rec := f.request(t, http.MethodGet, "/getmessages", "", trustedIP)

	var pairs [][2]string
	if err := json.Unmarshal(rec.Body.Bytes(), &pairs); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(pairs) != 1 || pairs[0][1] != "look\nhttp://cdn/img.png" {
		t.Fatalf("unexpected pairs: %v", pairs)
	}
}

func TestSendMessageResolvesAndRelays(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/sendmessage", `["76561198000000000","Bob","gg"]`, trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Fatalf("expected empty body, got %q", rec.Body.String())
	}

	sent := f.sender.wait(t)
	want := sentMessage{"http://x/a.png", "Bob", "gg"}
	if sent != want {
		t.Fatalf("sent = %+v, want %+v", sent, want)
	}
	if f.sender.count() != 1 {
		t.Fatalf("expected exactly one send, got %d", f.sender.count())
	}
	if f.resolver.count() != 1 {
		t.Fatalf("expected exactly one resolve, got %d", f.resolver.count())
	}
}

func TestSendMessageDropsOnResolutionFailure(t *testing.T) {
	f := newFixture()
	f.resolver.err = fmt.Errorf("steam API returned status 502")

	rec := f.request(t, http.MethodPost, "/sendmessage", `["76561198000000000","Bob","gg"]`, trustedIP)
	// The caller still sees 200; the failure is background-only.
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	select {
	case m := <-f.sender.ch:
		t.Fatalf("message should have been dropped, got %+v", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendMessageHookSkipsResolution(t *testing.T) {
	f := newFixture()

	rec := f.request(t, http.MethodPost, "/sendmessagehook", `["http://y/b.png","Carol","hi"]`, trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	sent := f.sender.wait(t)
	want := sentMessage{"http://y/b.png", "Carol", "hi"}
	if sent != want {
		t.Fatalf("sent = %+v, want %+v", sent, want)
	}
	if f.resolver.count() != 0 {
		t.Fatalf("hook endpoint must not resolve, got %d calls", f.resolver.count())
	}
}

func TestUntrustedOriginForbidden(t *testing.T) {
	f := newFixture()
	f.buffer.Append(message.Event{Username: "Alice", Content: "hello"})

	for _, c := range []struct {
		method, path, body string
	}{
		{http.MethodGet, "/getmessages", ""},
		{http.MethodPost, "/sendmessage", `["76561198000000000","Bob","gg"]`},
		{http.MethodPost, "/sendmessagehook", `["http://y/b.png","Carol","hi"]`},
		{http.MethodPost, "/status", `{"hostname":"h"}`},
	} {
		rec := f.request(t, c.method, c.path, c.body, "203.0.113.6")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s %s: status = %d, want 403", c.method, c.path, rec.Code)
		}
		if got := strings.TrimSpace(rec.Body.String()); got != "Forbidden" {
			t.Fatalf("%s %s: body = %q, want Forbidden", c.method, c.path, got)
		}
	}

	// No side effects from denied requests.
	if f.buffer.Len() != 1 {
		t.Fatalf("denied requests must not touch the buffer, len = %d", f.buffer.Len())
	}
	if f.resolver.count() != 0 {
		t.Fatalf("denied requests must not resolve, got %d calls", f.resolver.count())
	}
	if _, ok := f.statuses.Get(); ok {
		t.Fatalf("denied requests must not store status")
	}
}

func TestMalformedPushBodies(t *testing.T) {
	f := newFixture()

	for _, c := range []struct {
		path, body string
	}{
		{"/sendmessage", `not json`},
		{"/sendmessage", `["only","two"]`},
		{"/sendmessage", `{"an":"object"}`},
		{"/sendmessagehook", `["one","two","three","four"]`},
		{"/status", `[1,2,3]`},
	} {
		rec := f.request(t, http.MethodPost, c.path, c.body, trustedIP)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("POST %s with %q: status = %d, want 400", c.path, c.body, rec.Code)
		}
	}

	if f.resolver.count() != 0 {
		t.Fatalf("malformed bodies must not resolve, got %d calls", f.resolver.count())
	}
}

func TestStatusReplacesSnapshot(t *testing.T) {
	f := newFixture()

	body := `{"hostname":"srv","hostaddress":"203.0.113.10:27015","gamemode":"sandbox","map":"gm_construct","players":[{"name":"Alice","usergroup":"admin","score":3,"time":60,"bot":false}],"maxplayers":16}`
	rec := f.request(t, http.MethodPost, "/status", body, trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	snapshot, ok := f.statuses.Get()
	if !ok {
		t.Fatalf("expected stored snapshot")
	}
	if snapshot.Hostname != "srv" || len(snapshot.Players) != 1 || snapshot.Players[0].Name != "Alice" {
		t.Fatalf("unexpected snapshot: %+v", snapshot)
	}

	// Last write wins, wholesale.
	rec = f.request(t, http.MethodPost, "/status", `{"hostname":"other"}`, trustedIP)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	snapshot, _ = f.statuses.Get()
	if snapshot.Hostname != "other" || len(snapshot.Players) != 0 {
		t.Fatalf("expected wholesale replacement, got %+v", snapshot)
	}
}

func TestHealthIsUngated(t *testing.T) {
	f := newFixture()
	rec := f.request(t, http.MethodGet, "/health", "", "203.0.113.6")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
