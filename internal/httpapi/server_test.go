package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/verte-zerg/dedication/internal/export"
	"github.com/verte-zerg/dedication/internal/logging"
	"github.com/verte-zerg/dedication/internal/model"
)

type fakeSource struct {
	events []model.Event
	users  map[int64]model.User
	err    error
}

func (f *fakeSource) CourseFeed(_ context.Context, courseID, minTime, maxTime int64) ([]model.Event, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []model.Event
	for _, ev := range f.events {
		if ev.Time >= minTime && ev.Time <= maxTime {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) UserEvents(ctx context.Context, courseID, userID, minTime, maxTime int64) ([]model.Event, error) {
	feed, err := f.CourseFeed(ctx, courseID, minTime, maxTime)
	if err != nil {
		return nil, err
	}
	var out []model.Event
	for _, ev := range feed {
		if ev.UserID == userID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeSource) GroupMemberships(context.Context, int64) (map[int64][]int64, error) {
	return map[int64][]int64{}, nil
}

func (f *fakeSource) ListGroups(context.Context, int64) ([]model.Group, error) {
	return nil, nil
}

func (f *fakeSource) CourseUsers(context.Context, int64) ([]model.User, error) {
	return nil, nil
}

func (f *fakeSource) GetUser(_ context.Context, id int64) (model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return model.User{}, fmt.Errorf("user %d: %w", id, model.ErrNotFound)
}

func (f *fakeSource) GetCourse(_ context.Context, id int64) (model.Course, error) {
	return model.Course{ID: id, ShortName: "BIO"}, nil
}

var (
	since = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	until = time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)
)

func newTestServer(src *fakeSource) http.Handler {
	srv := NewServer(src, model.ReportConfig{})
	srv.now = func() time.Time { return until }
	return srv.Router()
}

func sampleSource() *fakeSource {
	t0 := since.Unix() + 3600
	return &fakeSource{
		events: []model.Event{
			{UserID: 1, Time: t0, Origin: "10.0.0.1"},
			{UserID: 1, Time: t0 + 100, Origin: "10.0.0.1"},
			{UserID: 1, Time: t0 + 4000, Origin: "10.0.0.2"},
			{UserID: 1, Time: t0 + 4030, Origin: "10.0.0.2"},
			{UserID: 2, Time: t0 + 86400, Origin: "10.0.0.3"},
		},
		users: map[int64]model.User{1: {ID: 1, FirstName: "Ada", LastName: "Lovelace"}},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(sampleSource()), "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health response %d %s", rec.Code, rec.Body.String())
	}
}

func TestRequestLogCarriesComponent(t *testing.T) {
	var buf bytes.Buffer
	logging.Init(logging.Config{Level: "info", Format: "json", Output: &buf})
	t.Cleanup(func() { logging.Init(logging.Config{}) })

	get(t, newTestServer(sampleSource()), "/healthz")
	out := buf.String()
	if !strings.Contains(out, `"component":"http"`) || !strings.Contains(out, `"path":"/healthz"`) || !strings.Contains(out, `"status":200`) {
		t.Fatalf("unexpected request log: %s", out)
	}
}

func TestCourseDedication(t *testing.T) {
	rec := get(t, newTestServer(sampleSource()), "/courses/3/dedication?since=2024-01-01&until=2024-01-11")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var doc struct {
		Rows []struct {
			UserID          int64   `json:"userid"`
			DedicationTime  int64   `json:"dedicationtime"`
			DistinctDays    int     `json:"distinctdays"`
			ConnectionRatio float64 `json:"connectionratio"`
		} `json:"rows"`
		Period export.Period `json:"period"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %+v", doc.Rows)
	}
	if doc.Rows[0].UserID != 1 || doc.Rows[0].DedicationTime != 130 || doc.Rows[0].ConnectionRatio != 0.1 {
		t.Fatalf("unexpected first row %+v", doc.Rows[0])
	}
	if doc.Rows[1].UserID != 2 || doc.Rows[1].DedicationTime != 0 || doc.Rows[1].DistinctDays != 1 {
		t.Fatalf("unexpected second row %+v", doc.Rows[1])
	}
	if doc.Period.Label != "10 days" {
		t.Fatalf("unexpected period %+v", doc.Period)
	}
}

func TestCourseDedicationLimitOverride(t *testing.T) {
	rec := get(t, newTestServer(sampleSource()), "/courses/3/dedication?since=2024-01-01&until=2024-01-11&limit=5000")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"dedicationtime":4030`) {
		t.Fatalf("expected merged session with larger limit: %s", rec.Body.String())
	}
}

func TestCourseDedicationCSV(t *testing.T) {
	rec := get(t, newTestServer(sampleSource()), "/courses/3/dedication?since=2024-01-01&until=2024-01-11&format=csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}
	if !strings.Contains(rec.Header().Get("Content-Disposition"), "BIO_dedication.csv") {
		t.Fatalf("unexpected disposition %q", rec.Header().Get("Content-Disposition"))
	}
	if !strings.Contains(rec.Body.String(), "Ada,Lovelace,,2,2 mins 10 secs,0.1") {
		t.Fatalf("unexpected csv body:\n%s", rec.Body.String())
	}
}

func TestUserDedication(t *testing.T) {
	h := newTestServer(sampleSource())
	rec := get(t, h, "/courses/3/users/1/dedication?since=2024-01-01&until=2024-01-11")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var doc struct {
		Total    int64                 `json:"total"`
		Sessions []model.SessionRecord `json:"sessions"`
		User     model.User            `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Total != 130 || doc.User.FirstName != "Ada" {
		t.Fatalf("unexpected user document %+v", doc)
	}
	if len(doc.Sessions) != 1 || doc.Sessions[0].Duration != 100 {
		t.Fatalf("expected the 30s session to be dropped, got %+v", doc.Sessions)
	}

	rec = get(t, h, "/courses/3/users/1/dedication?since=2024-01-01&until=2024-01-11&simple=true")
	if strings.TrimSpace(rec.Body.String()) != `{"total":130}` {
		t.Fatalf("unexpected simple body %s", rec.Body.String())
	}
}

func TestUserDedicationZeroIgnoreKeepsShortSessions(t *testing.T) {
	h := newTestServer(sampleSource())
	rec := get(t, h, "/courses/3/users/1/dedication?since=2024-01-01&until=2024-01-11&ignore=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	var doc struct {
		Total    int64                 `json:"total"`
		Sessions []model.SessionRecord `json:"sessions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Total != 130 || len(doc.Sessions) != 2 || doc.Sessions[1].Duration != 30 {
		t.Fatalf("expected both sessions with ignore=0, got %+v", doc)
	}
}

func TestBadRequests(t *testing.T) {
	h := newTestServer(sampleSource())
	cases := []string{
		"/courses/abc/dedication",
		"/courses/3/dedication?since=yesterday",
		"/courses/3/dedication?limit=-5",
		"/courses/3/users/1/dedication?ignore=-1",
		"/courses/3/dedication?inactive=maybe",
		"/courses/3/dedication?format=xlsx",
		"/courses/3/dedication?since=2024-01-05&until=2024-01-01",
		"/courses/3/users/0/dedication",
	}
	for _, target := range cases {
		rec := get(t, h, target)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d (%s)", target, rec.Code, rec.Body.String())
		}
	}
}

func TestEmptyPeriodIsBadRequestForSummaryOnly(t *testing.T) {
	h := newTestServer(sampleSource())
	rec := get(t, h, "/courses/3/dedication?since=2024-01-01&until=2024-01-01")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty summary period, got %d", rec.Code)
	}
	rec = get(t, h, "/courses/3/users/1/dedication?since=2024-01-01&until=2024-01-01")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty detail period, got %d", rec.Code)
	}
}

func TestSourceFailureIsInternalError(t *testing.T) {
	src := sampleSource()
	src.err = errors.New("connection reset")
	rec := get(t, newTestServer(src), "/courses/3/dedication")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection reset") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
}

func TestStatusForNotFound(t *testing.T) {
	if got := statusFor(fmt.Errorf("wrap: %w", model.ErrNotFound)); got != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", got)
	}
}
