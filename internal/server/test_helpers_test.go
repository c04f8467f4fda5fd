package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/floorboard/internal/floor"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type mapKV struct {
	mu        sync.Mutex
	values    map[string][]byte
	failWrite bool
}

func newMapKV() *mapKV {
	return &mapKV{values: make(map[string][]byte)}
}

func (m *mapKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *mapKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite {
		return errors.New("disk full")
	}
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000000)
}

func newTestFloorService(testContext *testing.T, kv floor.KeyValueStore) *floor.Service {
	testContext.Helper()
	store, err := floor.NewStore(floor.StoreConfig{Registry: floor.DefaultRegistry(), KV: kv})
	if err != nil {
		testContext.Fatalf("failed to construct store: %v", err)
	}
	service, err := floor.NewService(floor.ServiceConfig{Store: store, Clock: fixedClock})
	if err != nil {
		testContext.Fatalf("failed to construct floor service: %v", err)
	}
	if err := service.Load(context.Background()); err != nil {
		testContext.Fatalf("failed to load floor: %v", err)
	}
	return service
}

func newTestHandler(testContext *testing.T, deps Dependencies) http.Handler {
	testContext.Helper()
	gin.SetMode(gin.TestMode)
	if deps.FloorService == nil {
		deps.FloorService = newTestFloorService(testContext, newMapKV())
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		testContext.Fatalf("failed to construct http handler: %v", err)
	}
	return handler
}

func performRequest(handler http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		encoded, _ := json.Marshal(body)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	for name, value := range headers {
		request.Header.Set(name, value)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(testContext *testing.T, recorder *httptest.ResponseRecorder, target any) {
	testContext.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		testContext.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

type advanceResponse struct {
	Table struct {
		ID            string `json:"id"`
		State         string `json:"state"`
		Food          string `json:"food"`
		Drink         string `json:"drink"`
		LastOrderAtMs *int64 `json:"lo_time_ms"`
	} `json:"table"`
	CaptureRequired bool `json:"capture_required"`
	Capture         *struct {
		ID         string `json:"id"`
		TableID    string `json:"table_id"`
		CanConfirm bool   `json:"can_confirm"`
	} `json:"capture"`
	PersistWarning string `json:"persist_warning"`
}
