package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/files/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := Middleware(mux)

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/v1/files/{id}", "404"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/files/abc", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/files/def", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "GET /api/v1/files/{id}", "404"))

	if after-before != 2 {
		t.Errorf("counter delta = %v, want 2", after-before)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	c := storeOperationsTotal.WithLabelValues("memory", "insert", "error")
	before := testutil.ToFloat64(c)
	RecordStoreOperation("memory", "insert", time.Millisecond, false)
	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("delta = %v, want 1", got)
	}
}

func TestRecordAutosave(t *testing.T) {
	ok := autosavesTotal.WithLabelValues("success")
	before := testutil.ToFloat64(ok)
	RecordAutosave(true)
	if testutil.ToFloat64(ok)-before != 1 {
		t.Error("autosave success not counted")
	}
}

func TestSetTreeSize(t *testing.T) {
	SetTreeSize(7)
	if got := testutil.ToFloat64(treeSize); got != 7 {
		t.Errorf("tree size = %v", got)
	}
}
