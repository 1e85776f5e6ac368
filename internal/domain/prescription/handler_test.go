package prescription

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medconnect/medconnect/internal/platform/auth"
)

func callerRequest(method, target, body string, caller auth.Caller) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req.WithContext(auth.WithCaller(req.Context(), caller))
}

func TestHandler_SubmitPrescription(t *testing.T) {
	env := newTestEnv()
	two, _ := env.addPharmacy("two", 2)
	patient := env.addPatient("Kazanchis")
	h := NewHandler(env.matcher, env.svc)
	e := echo.New()

	body := `{"prescription_image":"https://img.example.com/rx.jpg","notes":"urgent","latitude":9.019,"longitude":38.752}`
	rec := httptest.NewRecorder()
	if err := h.SubmitPrescription(e.NewContext(callerRequest(http.MethodPost, "/api/v1/prescriptions", body, patient), rec)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var got struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		Order  struct {
			PharmacyID  string `json:"pharmacy_id"`
			TotalAmount string `json:"total_amount"`
		} `json:"order"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v (%s)", err, rec.Body.String())
	}
	if got.ID == "" || got.Status != StatusPending || got.Order.PharmacyID != two.ID.String() {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_AcceptPrescription_Conflict(t *testing.T) {
	env := newTestEnv()
	_, ph := env.addPharmacy("ph", 1)
	patient := env.addPatient("Kazanchis")
	h := NewHandler(env.matcher, env.svc)
	e := echo.New()

	sub, err := env.matcher.SubmitPrescription(callerRequest(http.MethodPost, "/", "", patient).Context(), patient, submitInput(nil, nil))
	if err != nil {
		t.Fatal(err)
	}

	accept := func() (*httptest.ResponseRecorder, error) {
		rec := httptest.NewRecorder()
		c := e.NewContext(callerRequest(http.MethodPost, "/", "", ph), rec)
		c.SetParamNames("id")
		c.SetParamValues(sub.Prescription.ID.String())
		return rec, h.AcceptPrescription(c)
	}

	rec, err := accept()
	if err != nil || rec.Code != http.StatusOK {
		t.Fatalf("first accept: %v (%d)", err, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "chat_room_id") {
		t.Errorf("expected chat room in body, got %s", rec.Body.String())
	}

	_, err = accept()
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_TransitionOrder_InvalidID(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.matcher, env.svc)
	e := echo.New()

	c := e.NewContext(callerRequest(http.MethodPost, "/", `{"status":"processing"}`, env.addPatient("x")), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("42")
	err := h.TransitionOrder(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
