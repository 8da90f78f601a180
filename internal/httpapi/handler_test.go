package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"presence/internal/auth"
	"presence/internal/checkin"
	"presence/internal/config"
)

// fakeStore backs the protocol service with fixtures instead of Postgres.
type fakeStore struct {
	sessions map[int64]*checkin.Session
	students map[string]*checkin.Student
	enrolled map[[2]int64]bool
	records  map[[2]int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[int64]*checkin.Session),
		students: make(map[string]*checkin.Student),
		enrolled: make(map[[2]int64]bool),
		records:  make(map[[2]int64]bool),
	}
}

func (f *fakeStore) SessionByID(_ context.Context, id int64) (*checkin.Session, error) {
	sess, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (f *fakeStore) Activate(_ context.Context, sessionID, courseID int64, credential string, expiresAt time.Time) error {
	for _, other := range f.sessions {
		if other.CourseID == courseID {
			other.Credential = nil
			other.ExpiresAt = nil
		}
	}
	sess := f.sessions[sessionID]
	sess.Credential = &credential
	sess.ExpiresAt = &expiresAt
	return nil
}

func (f *fakeStore) Deactivate(_ context.Context, sessionID int64) error {
	sess := f.sessions[sessionID]
	sess.Credential = nil
	sess.ExpiresAt = nil
	return nil
}

func (f *fakeStore) StudentByIndex(_ context.Context, index string) (*checkin.Student, error) {
	st, ok := f.students[index]
	if !ok {
		return nil, nil
	}
	return st, nil
}

func (f *fakeStore) Enrolled(_ context.Context, studentID, courseID int64) (bool, error) {
	return f.enrolled[[2]int64{studentID, courseID}], nil
}

func (f *fakeStore) HasRecord(_ context.Context, sessionID, studentID int64) (bool, error) {
	return f.records[[2]int64{sessionID, studentID}], nil
}

func (f *fakeStore) InsertRecord(_ context.Context, rec *checkin.Record) (bool, error) {
	key := [2]int64{rec.SessionID, rec.StudentID}
	if f.records[key] {
		return false, nil
	}
	f.records[key] = true
	return true, nil
}

func testConfig() config.App {
	return config.App{
		JWTIssuer:      "presence-test",
		JWTSigningKey:  "test-signing-key-not-for-production",
		AccessTTL:      time.Hour,
		CheckInBaseURL: "http://localhost:8080/checkin",
		QRDefaultTTL:   10 * time.Minute,
		QRImageSize:    128,
	}
}

func testRouter(t *testing.T, store *fakeStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &Handler{
		cfg:      testConfig(),
		protocol: checkin.NewService(store, nil),
	}
	r := gin.New()
	h.Routes(r)
	return r
}

func bearer(t *testing.T, cfg config.App, userID int64, username, role string, isAdmin bool) string {
	t.Helper()
	token, err := auth.Issue(userID, username, role, isAdmin, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token.Value
}

func doJSON(r *gin.Engine, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckInEndpointStatusCodes(t *testing.T) {
	store := newFakeStore()
	code := "11111111-2222-3333-4444-555555555555"
	expires := time.Now().Add(10 * time.Minute)
	store.sessions[1] = &checkin.Session{ID: 1, CourseID: 7, LecturerID: 2, Credential: &code, ExpiresAt: &expires}
	store.sessions[2] = &checkin.Session{ID: 2, CourseID: 8, LecturerID: 2} // never activated
	store.students["S100"] = &checkin.Student{ID: 10, IndexNumber: "S100"}
	store.students["S200"] = &checkin.Student{ID: 20, IndexNumber: "S200"}
	store.enrolled[[2]int64{10, 7}] = true

	r := testRouter(t, store)
	cfg := testConfig()
	studentToken := bearer(t, cfg, 5, "stud1", checkin.RoleStudent, false)

	cases := []struct {
		name string
		path string
		body string
		want int
	}{
		{"valid", "/api/sessions/1/attendance", `{"student_index_number":"S100","code":"` + code + `"}`, http.StatusCreated},
		{"duplicate", "/api/sessions/1/attendance", `{"student_index_number":"S100","code":"` + code + `"}`, http.StatusConflict},
		{"wrong code", "/api/sessions/1/attendance", `{"student_index_number":"S100","code":"bogus"}`, http.StatusBadRequest},
		{"not enrolled", "/api/sessions/1/attendance", `{"student_index_number":"S200","code":"` + code + `"}`, http.StatusForbidden},
		{"unknown student", "/api/sessions/1/attendance", `{"student_index_number":"S999","code":"` + code + `"}`, http.StatusNotFound},
		{"unknown session", "/api/sessions/99/attendance", `{"student_index_number":"S100","code":"` + code + `"}`, http.StatusNotFound},
		{"not collecting", "/api/sessions/2/attendance", `{"student_index_number":"S100","code":"` + code + `"}`, http.StatusForbidden},
		{"missing fields", "/api/sessions/1/attendance", `{}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, tc.path, studentToken, tc.body)
			if w.Code != tc.want {
				t.Fatalf("got %d, want %d (body %s)", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestCheckInEndpointRequiresToken(t *testing.T) {
	r := testRouter(t, newFakeStore())

	w := doJSON(r, http.MethodPost, "/api/sessions/1/attendance", "", `{"student_index_number":"S100","code":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
}

func TestActivateEndpointReturnsQR(t *testing.T) {
	store := newFakeStore()
	store.sessions[1] = &checkin.Session{ID: 1, CourseID: 7, LecturerID: 2}

	r := testRouter(t, store)
	cfg := testConfig()
	lecturerToken := bearer(t, cfg, 2, "lect1", checkin.RoleLecturer, false)

	w := doJSON(r, http.MethodPost, "/api/sessions/1/qr", lecturerToken, `{"duration_minutes":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200 (body %s)", w.Code, w.Body.String())
	}

	var resp struct {
		Code       string `json:"code"`
		CheckInURL string `json:"check_in_url"`
		QRPNG      []byte `json:"qr_png"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Code == "" {
		t.Error("response has no code")
	}
	if !strings.Contains(resp.CheckInURL, "session=1") || !strings.Contains(resp.CheckInURL, "code="+resp.Code) {
		t.Errorf("check_in_url %q does not carry session and code", resp.CheckInURL)
	}
	if len(resp.QRPNG) == 0 {
		t.Error("response has no qr image")
	}
}

func TestStaffRoutesRejectStudents(t *testing.T) {
	store := newFakeStore()
	store.sessions[1] = &checkin.Session{ID: 1, CourseID: 7, LecturerID: 2}

	r := testRouter(t, store)
	cfg := testConfig()
	studentToken := bearer(t, cfg, 5, "stud1", checkin.RoleStudent, false)

	w := doJSON(r, http.MethodPost, "/api/sessions/1/qr", studentToken, `{}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", w.Code)
	}
}

func TestActivateEndpointEnforcesOwnership(t *testing.T) {
	store := newFakeStore()
	store.sessions[1] = &checkin.Session{ID: 1, CourseID: 7, LecturerID: 2}

	r := testRouter(t, store)
	cfg := testConfig()
	otherLecturer := bearer(t, cfg, 3, "lect2", checkin.RoleLecturer, false)

	w := doJSON(r, http.MethodPost, "/api/sessions/1/qr", otherLecturer, `{}`)
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", w.Code)
	}
}
