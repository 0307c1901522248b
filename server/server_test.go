package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	reservation "github.com/chimerakang/reservation-go"
	"github.com/chimerakang/reservation-go/fake"
	"github.com/chimerakang/reservation-go/keys"
	"github.com/chimerakang/reservation-go/lifecycle"
	"github.com/chimerakang/reservation-go/metrics"
	"github.com/chimerakang/reservation-go/server"
	"github.com/chimerakang/reservation-go/store/memory"
	"github.com/chimerakang/reservation-go/token"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	handler  http.Handler
	issuer   *token.Issuer
	recorder *fake.Recorder
}

func newEnv(t *testing.T, mutate ...func(*server.Deps)) *env {
	t.Helper()
	issuer, err := token.NewIssuer(secret, "HS256")
	if err != nil {
		t.Fatalf("NewIssuer() error: %v", err)
	}
	rec := &fake.Recorder{}
	deps := server.Deps{
		Reservations: lifecycle.New(memory.New(), rec),
		Verifier:     token.NewVerifier(keys.NewStatic(secret)),
		Issuer:       issuer,
	}
	for _, m := range mutate {
		m(&deps)
	}
	return &env{
		handler:  server.New(reservation.Config{}, deps).Handler(),
		issuer:   issuer,
		recorder: rec,
	}
}

func (e *env) tokenFor(t *testing.T, subject string) string {
	t.Helper()
	tok, _, err := e.issuer.Issue(subject, 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (e *env) do(t *testing.T, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func payload(name string, party int) map[string]any {
	return map[string]any{
		"room_id":        "8f1a3b6e-8d3f-4c3e-9d9f-3d7c2a9c1b11",
		"from":           "2025-12-24T18:00:00Z",
		"to":             "2025-12-24T20:00:00Z",
		"customer_name":  name,
		"customer_email": "guest@example.com",
		"party_size":     party,
	}
}

func decodeReservation(t *testing.T, w *httptest.ResponseRecorder) server.ReservationResponse {
	t.Helper()
	var r server.ReservationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &r); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return body
}

func reservationPath(id string) string {
	return server.APIPrefix + "/reservations/" + id
}

func TestAliceScenario(t *testing.T) {
	e := newEnv(t)
	id := uuid.NewString()
	alice := e.tokenFor(t, "alice")

	w := e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 4))
	if w.Code != http.StatusCreated {
		t.Fatalf("anonymous PUT status = %d, want 201 (%s)", w.Code, w.Body.String())
	}

	w = e.do(t, http.MethodGet, reservationPath(id), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", w.Code)
	}
	got := decodeReservation(t, w)
	if got.Status != "pending" || got.DeletedAt != nil || got.ID != id {
		t.Fatalf("GET = %+v", got)
	}

	w = e.do(t, http.MethodDelete, reservationPath(id), "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("anonymous DELETE status = %d, want 403", w.Code)
	}
	if code := decodeError(t, w)["code"]; code != "NOT_AUTHENTICATED" {
		t.Errorf("code = %v, want NOT_AUTHENTICATED", code)
	}

	w = e.do(t, http.MethodDelete, reservationPath(id), alice, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("alice DELETE status = %d, want 204 (%s)", w.Code, w.Body.String())
	}
	if w.Body.Len() != 0 {
		t.Errorf("204 body = %q", w.Body.String())
	}

	w = e.do(t, http.MethodGet, reservationPath(id), "", nil)
	if got := decodeReservation(t, w); got.DeletedAt == nil {
		t.Fatal("deleted_at not set after delete")
	}

	w = e.do(t, http.MethodPut, reservationPath(id), alice, payload("Erika", 5))
	if w.Code != http.StatusOK {
		t.Fatalf("alice PUT status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	got = decodeReservation(t, w)
	if got.DeletedAt != nil || got.CustomerName != "Erika" || got.PartySize != 5 {
		t.Fatalf("restored = %+v", got)
	}

	var ops []string
	for _, ev := range e.recorder.Events() {
		ops = append(ops, ev.Operation+":"+ev.Identity.String())
	}
	want := "CREATE:anonymous READ:anonymous DELETE:alice READ:anonymous UPDATE:alice"
	if strings.Join(ops, " ") != want {
		t.Errorf("audit trail = %q, want %q", strings.Join(ops, " "), want)
	}
}

func TestUpsertExistingRequiresIdentity(t *testing.T) {
	e := newEnv(t)
	id := uuid.NewString()
	e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 2))

	w := e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 3))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
		t.Errorf("WWW-Authenticate = %q, want Bearer", got)
	}
}

func TestInvalidCredentials(t *testing.T) {
	e := newEnv(t)
	other, err := token.NewIssuer("another-secret", "HS256")
	if err != nil {
		t.Fatal(err)
	}
	forged, _, _ := other.Issue("mallory", 0, nil)
	expiredIssuer, _ := token.NewIssuer(secret, "HS256", token.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	expired, _, _ := expiredIssuer.Issue("alice", time.Minute, nil)

	for name, bearer := range map[string]string{"forged": forged, "expired": expired, "garbage": "not-a-jwt"} {
		t.Run(name, func(t *testing.T) {
			for _, req := range []struct{ method, path string }{
				{http.MethodGet, server.APIPrefix + "/reservations"},
				{http.MethodDelete, reservationPath(uuid.NewString())},
			} {
				w := e.do(t, req.method, req.path, bearer, nil)
				if w.Code != http.StatusUnauthorized {
					t.Fatalf("%s %s status = %d, want 401", req.method, req.path, w.Code)
				}
				if code := decodeError(t, w)["code"]; code != "UNAUTHORIZED" {
					t.Errorf("code = %v, want UNAUTHORIZED", code)
				}
				if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
					t.Errorf("WWW-Authenticate = %q, want Bearer", got)
				}
			}
		})
	}
}

func TestListFiltersDeleted(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice")
	keep, gone := uuid.NewString(), uuid.NewString()
	e.do(t, http.MethodPut, reservationPath(keep), "", payload("A", 1))
	e.do(t, http.MethodPut, reservationPath(gone), "", payload("B", 1))
	e.do(t, http.MethodDelete, reservationPath(gone), alice, nil)

	list := func(query string) []server.ReservationResponse {
		t.Helper()
		w := e.do(t, http.MethodGet, server.APIPrefix+"/reservations"+query, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("list%s status = %d", query, w.Code)
		}
		var resp server.ListResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatal(err)
		}
		return resp.Reservations
	}

	if got := list(""); len(got) != 1 || got[0].ID != keep {
		t.Errorf("default list = %+v, want only %s", got, keep)
	}
	if got := list("?include_deleted=true"); len(got) != 2 {
		t.Errorf("include_deleted list has %d entries, want 2", len(got))
	}

	w := e.do(t, http.MethodGet, server.APIPrefix+"/reservations?include_deleted=perhaps", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad include_deleted status = %d, want 400", w.Code)
	}
}

func TestEmptyListIsArray(t *testing.T) {
	e := newEnv(t)
	w := e.do(t, http.MethodGet, server.APIPrefix+"/reservations", "", nil)
	if !strings.Contains(w.Body.String(), `"reservations":[]`) {
		t.Errorf("body = %s, want an empty array", w.Body.String())
	}
}

func TestCreate(t *testing.T) {
	e := newEnv(t)
	body := payload("Max", 2)
	body["special_requests"] = "window seat"
	body["from"] = "2025-12-24"
	body["to"] = "2025-12-25"

	w := e.do(t, http.MethodPost, server.APIPrefix+"/reservations", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (%s)", w.Code, w.Body.String())
	}
	got := decodeReservation(t, w)
	if _, err := uuid.Parse(got.ID); err != nil {
		t.Errorf("id = %q, want a UUID", got.ID)
	}
	if got.From != "2025-12-24T00:00:00Z" {
		t.Errorf("from = %q", got.From)
	}
	if got.SpecialRequests == nil || *got.SpecialRequests != "window seat" {
		t.Errorf("special_requests = %v", got.SpecialRequests)
	}
}

func TestBadRequests(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice")
	id := uuid.NewString()
	e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 2))

	tests := []struct {
		name   string
		method string
		path   string
		bearer string
		body   any
	}{
		{"non-uuid get", http.MethodGet, reservationPath("42"), "", nil},
		{"non-uuid put", http.MethodPut, reservationPath("abc"), "", payload("Max", 2)},
		{"broken json", http.MethodPost, server.APIPrefix + "/reservations", "", `{"room_id":`},
		{"bad timestamp", http.MethodPost, server.APIPrefix + "/reservations", "", strings.Replace(mustJSON(t, payload("Max", 2)), "2025-12-24T18:00:00Z", "tomorrow", 1)},
		{"zero party", http.MethodPost, server.APIPrefix + "/reservations", "", payload("Max", 0)},
		{"missing name", http.MethodPut, reservationPath(uuid.NewString()), "", payload("", 2)},
		{"unknown status", http.MethodPatch, reservationPath(id) + "/status?new_status=archived", alice, nil},
		{"missing status", http.MethodPatch, reservationPath(id) + "/status", alice, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, tt.method, tt.path, tt.bearer, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (%s)", w.Code, w.Body.String())
			}
			if code := decodeError(t, w)["code"]; code != "INVALID_ARGUMENT" {
				t.Errorf("code = %v, want INVALID_ARGUMENT", code)
			}
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestNotFoundEchoesID(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice")
	id := uuid.NewString()

	for _, req := range []struct{ method, path, bearer string }{
		{http.MethodGet, reservationPath(id), ""},
		{http.MethodDelete, reservationPath(id), alice},
		{http.MethodPatch, reservationPath(id) + "/status?new_status=confirmed", alice},
	} {
		w := e.do(t, req.method, req.path, req.bearer, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("%s status = %d, want 404", req.method, w.Code)
		}
		body := decodeError(t, w)
		details, _ := body["details"].(map[string]any)
		if details["id"] != id {
			t.Errorf("%s details = %v, want id %s", req.method, body["details"], id)
		}
	}
}

func TestPatchStatus(t *testing.T) {
	e := newEnv(t)
	alice := e.tokenFor(t, "alice")
	id := uuid.NewString()
	e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 2))

	w := e.do(t, http.MethodPatch, reservationPath(id)+"/status?new_status=confirmed", "", nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("anonymous PATCH status = %d, want 403", w.Code)
	}

	w = e.do(t, http.MethodPatch, reservationPath(id)+"/status?new_status=confirmed", alice, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	if got := decodeReservation(t, w); got.Status != "confirmed" {
		t.Errorf("status = %q, want confirmed", got.Status)
	}
}

func TestDisabledAuth(t *testing.T) {
	e := newEnv(t, func(d *server.Deps) {
		d.Verifier = token.NewVerifier(keys.NewStatic(secret), token.WithDisabled(true))
	})
	id := uuid.NewString()
	e.do(t, http.MethodPut, reservationPath(id), "", payload("Max", 2))

	w := e.do(t, http.MethodDelete, reservationPath(id), "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("DELETE with auth disabled status = %d, want 401", w.Code)
	}
}

func TestToken(t *testing.T) {
	e := newEnv(t)

	w := e.do(t, http.MethodPost, "/auth/token?username=alice", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%s)", w.Code, w.Body.String())
	}
	var resp server.TokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.TokenType != "bearer" || resp.ExpiresIn != 1800 {
		t.Errorf("token response = %+v", resp)
	}

	id, err := token.NewVerifier(keys.NewStatic(secret)).Verify(context.Background(), resp.AccessToken)
	if err != nil || id.Subject != "alice" {
		t.Fatalf("Verify(issued) = %v, %v", id, err)
	}

	if w := e.do(t, http.MethodPost, "/auth/token", "", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing username status = %d, want 400", w.Code)
	}
}

func TestTokenDisabledWithoutIssuer(t *testing.T) {
	e := newEnv(t, func(d *server.Deps) { d.Issuer = nil })
	if w := e.do(t, http.MethodPost, "/auth/token?username=alice", "", nil); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestStatusAndHealth(t *testing.T) {
	ready := error(nil)
	e := newEnv(t, func(d *server.Deps) {
		d.Ready = func(context.Context) error { return ready }
	})

	w := e.do(t, http.MethodGet, server.APIPrefix+"/status", "", nil)
	if !strings.Contains(w.Body.String(), `"api_version":"3.0.0"`) {
		t.Errorf("status body = %s", w.Body.String())
	}
	for _, path := range []string{"/health", server.APIPrefix + "/health", server.APIPrefix + "/health/live", server.APIPrefix + "/health/ready"} {
		if w := e.do(t, http.MethodGet, path, "", nil); w.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, w.Code)
		}
	}

	ready = errors.New("database is down")
	if w := e.do(t, http.MethodGet, server.APIPrefix+"/health/ready", "", nil); w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready while down = %d, want 503", w.Code)
	}
	if w := e.do(t, http.MethodGet, server.APIPrefix+"/health/live", "", nil); w.Code != http.StatusOK {
		t.Errorf("live while down = %d, want 200", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	e := newEnv(t, func(d *server.Deps) {
		d.Gatherer = reg
		d.Reservations = lifecycle.New(memory.New(), nil, lifecycle.WithMetrics(m))
	})
	e.do(t, http.MethodPut, reservationPath(uuid.NewString()), "", payload("Max", 2))

	w := e.do(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `reservations_operations_total{operation="CREATE",result="created"} 1`) {
		t.Errorf("metrics output missing create counter:\n%s", w.Body.String())
	}
}

func TestRequestIDHeader(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodGet, server.APIPrefix+"/reservations", nil)
	req.Header.Set("X-Request-ID", "trace-7")
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "trace-7" {
		t.Errorf("X-Request-ID = %q, want trace-7", got)
	}
}
