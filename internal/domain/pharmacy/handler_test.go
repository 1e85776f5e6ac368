package pharmacy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

func TestHandler_SearchNearby_RequiredParams(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	tests := []struct {
		query string
		msg   string
	}{
		{"?lat=9&lng=38", "Name, latitude and longitude are required"},
		{"?name=amox&lng=38", "Name, latitude and longitude are required"},
		{"?name=amox&lat=abc&lng=38", "Invalid latitude or longitude"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines/search_nearby"+tt.query, nil)
			err := h.SearchNearby(e.NewContext(req, httptest.NewRecorder()))
			he, ok := err.(*echo.HTTPError)
			if !ok || he.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %v", err)
			}
			if he.Message != tt.msg {
				t.Errorf("expected %q, got %v", tt.msg, he.Message)
			}
		})
	}
}

func TestHandler_SearchNearby(t *testing.T) {
	svc, near, _ := seedNearby(t)
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines/search_nearby?name=Amox&lat=9.019&lng=38.752&radius=5", nil)
	rec := httptest.NewRecorder()
	if err := h.SearchNearby(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got []map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 result within 5 km, got %d", len(got))
	}
	ph := got[0]["pharmacy"].(map[string]interface{})
	if ph["id"] != near.ID.String() || got[0]["distance"] != 2.0 {
		t.Errorf("unexpected result %v", got[0])
	}
}

func TestHandler_CreateMedicine(t *testing.T) {
	svc, locs, _ := newTestService()
	ph := locs.add("ph", nil, nil, true)
	h := NewHandler(svc)
	e := echo.New()

	body := `{"name":"Metformin","price":"7.25","stock":12,"expiry_date":"2031-06-30"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/medicines", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithCaller(req.Context(), auth.Caller{UserID: ph.UserID, Role: auth.RolePharmacy}))
	rec := httptest.NewRecorder()

	if err := h.CreateMedicine(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var m Medicine
	json.Unmarshal(rec.Body.Bytes(), &m)
	if m.PharmacyID != ph.ID || m.Stock != 12 {
		t.Errorf("unexpected medicine %+v", m)
	}
}

func TestHandler_GetMedicine_InvalidID(t *testing.T) {
	svc, _, _ := newTestService()
	h := NewHandler(svc)
	e := echo.New()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("nope")
	err := h.GetMedicine(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
