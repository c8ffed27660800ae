package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMiddlewareTagsRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	global.Store(zap.New(core))
	t.Cleanup(InitNop)

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WithContext(r.Context()).Info("inside")
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	id := rec.Header().Get("X-Request-ID")
	if id == "" {
		t.Fatal("no X-Request-ID header")
	}
	inside := logs.FilterMessage("inside").All()
	if len(inside) != 1 || inside[0].ContextMap()["request_id"] != id {
		t.Errorf("handler log = %+v, want request_id %s", inside, id)
	}
	done := logs.FilterMessage("request").All()
	if len(done) != 1 || done[0].ContextMap()["status"] != int64(http.StatusTeapot) {
		t.Errorf("request log = %+v", done)
	}
}

func TestMiddlewareKeepsIncomingRequestID(t *testing.T) {
	InitNop()

	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("X-Request-ID"); got != "abc" {
		t.Errorf("X-Request-ID = %q, want abc", got)
	}
}

func TestWithContextFallsBackToGlobal(t *testing.T) {
	InitNop()
	if WithContext(context.Background()) != L() {
		t.Error("expected global logger for bare context")
	}
}

func TestGeneratedIDsDiffer(t *testing.T) {
	a, b := newRequestID(), newRequestID()
	if a == b {
		t.Errorf("ids collide: %s", a)
	}
}

func TestWithOwnerReplacesContextLogger(t *testing.T) {
	InitNop()
	ctx := WithOwner(context.Background(), "u1")
	if WithContext(ctx) == L() {
		t.Error("owner logger should differ from the global logger")
	}
}
