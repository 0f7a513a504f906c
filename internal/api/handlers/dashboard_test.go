package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/printdesk/fleet/internal/db"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := db.Init(db.Config{Path: ":memory:"}); err != nil {
		fmt.Fprintf(os.Stderr, "init test database: %v\n", err)
		os.Exit(1)
	}
	code := m.Run()
	db.Close()
	os.Exit(code)
}

func TestActivityListEndpoint(t *testing.T) {
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		if err := db.Activity.Insert(ctx, "system", fmt.Sprintf("dispatched-%d", i), "job", "order-7", ""); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	router := gin.New()
	router.GET("/activity", NewActivityHandler().List)

	var body struct {
		Activity []db.ActivityEntry `json:"activity"`
		Count    int                `json:"count"`
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 2 || len(body.Activity) != 2 {
		t.Fatalf("count = %d with %d entries, want 2", body.Count, len(body.Activity))
	}
	if body.Activity[0].Action != "dispatched-3" {
		t.Fatalf("first entry = %s, want newest first", body.Activity[0].Action)
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/activity?entity_type=job&entity_id=order-7", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", w.Code, w.Body.String())
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count != 3 {
		t.Fatalf("filtered count = %d, want 3", body.Count)
	}
	if body.Activity[0].Action != "dispatched-1" {
		t.Fatalf("first filtered entry = %s, want oldest first", body.Activity[0].Action)
	}
}
