package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"classhub/internal/auth"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// mockDatabase is an in-memory DatabaseManager for API testing
type mockDatabase struct {
	users       map[int64]*types.User
	classes     map[int64]*types.Class
	sessions    map[int64]*types.Session
	enrollments map[int64]map[int64]bool
	messages    map[int64][]*types.ChatMessage
	nextID      int64
	healthErr   error
}

func newMockDatabase() *mockDatabase {
	return &mockDatabase{
		users:       make(map[int64]*types.User),
		classes:     make(map[int64]*types.Class),
		sessions:    make(map[int64]*types.Session),
		enrollments: make(map[int64]map[int64]bool),
		messages:    make(map[int64][]*types.ChatMessage),
	}
}

func (m *mockDatabase) nextIdentifier() int64 {
	m.nextID++
	return m.nextID
}

func (m *mockDatabase) CreateUser(ctx context.Context, user *types.User) (int64, error) {
	for _, existing := range m.users {
		if existing.Email == user.Email {
			return 0, interfaces.ErrDuplicateEmail
		}
	}
	id := m.nextIdentifier()
	stored := *user
	stored.ID = id
	m.users[id] = &stored
	return id, nil
}

func (m *mockDatabase) GetUserByEmail(ctx context.Context, email string) (*types.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			return user, nil
		}
	}
	return nil, interfaces.ErrUserNotFound
}

func (m *mockDatabase) GetUserByID(ctx context.Context, userID int64) (*types.User, error) {
	user, ok := m.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	return user, nil
}

func (m *mockDatabase) CreateClass(ctx context.Context, class *types.Class) (int64, error) {
	id := m.nextIdentifier()
	stored := *class
	stored.ID = id
	m.classes[id] = &stored
	return id, nil
}

func (m *mockDatabase) GetClass(ctx context.Context, classID int64) (*types.Class, error) {
	class, ok := m.classes[classID]
	if !ok {
		return nil, interfaces.ErrClassNotFound
	}
	return class, nil
}

func (m *mockDatabase) ListClassesByTeacher(ctx context.Context, teacherID int64) ([]*types.Class, error) {
	var out []*types.Class
	for _, class := range m.classes {
		if class.TeacherID == teacherID {
			out = append(out, class)
		}
	}
	return out, nil
}

func (m *mockDatabase) ListClassesByStudent(ctx context.Context, studentID int64) ([]*types.Class, error) {
	var out []*types.Class
	for classID, byStudent := range m.enrollments {
		if byStudent[studentID] {
			out = append(out, m.classes[classID])
		}
	}
	return out, nil
}

func (m *mockDatabase) EnrollStudent(ctx context.Context, classID, studentID int64) error {
	if m.enrollments[classID] == nil {
		m.enrollments[classID] = make(map[int64]bool)
	}
	if m.enrollments[classID][studentID] {
		return interfaces.ErrAlreadyEnrolled
	}
	m.enrollments[classID][studentID] = true
	return nil
}

func (m *mockDatabase) IsEnrolled(ctx context.Context, classID, studentID int64) (bool, error) {
	return m.enrollments[classID][studentID], nil
}

func (m *mockDatabase) CreateSession(ctx context.Context, session *types.Session) (int64, error) {
	id := m.nextIdentifier()
	stored := *session
	stored.ID = id
	m.sessions[id] = &stored
	return id, nil
}

func (m *mockDatabase) GetSession(ctx context.Context, sessionID int64) (*types.Session, error) {
	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func (m *mockDatabase) ListActiveSessions(ctx context.Context) ([]*types.Session, error) {
	var out []*types.Session
	for _, session := range m.sessions {
		if session.Active() {
			out = append(out, session)
		}
	}
	return out, nil
}

func (m *mockDatabase) EndSession(ctx context.Context, sessionID int64, endTime time.Time) error {
	session, ok := m.sessions[sessionID]
	if !ok || !session.Active() {
		return interfaces.ErrSessionNotFound
	}
	session.EndTime = &endTime
	return nil
}

func (m *mockDatabase) GetSessionMessages(ctx context.Context, sessionID int64) ([]*types.ChatMessage, error) {
	return m.messages[sessionID], nil
}

func (m *mockDatabase) HealthCheck(ctx context.Context) error { return m.healthErr }
func (m *mockDatabase) Close() error                          { return nil }

// mockRegistry satisfies the Registry interface with no live connections
type mockRegistry struct{}

func (m *mockRegistry) ConnectionsInRoom(sessionID int64) []interfaces.Connection { return nil }
func (m *mockRegistry) GetStats() map[string]int {
	return map[string]int{"total_connections": 0, "active_rooms": 0}
}

type testAPI struct {
	server *httptest.Server
	db     *mockDatabase
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db := newMockDatabase()
	resolver := auth.NewResolver(db, "test-secret", time.Hour, time.Second)
	authorizer := auth.NewAuthorizer(db, time.Second)

	wsStub := func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotImplemented) }
	server := NewServer(db, resolver, authorizer, &mockRegistry{}, wsStub)

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return &testAPI{server: ts, db: db}
}

func (a *testAPI) request(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, a.server.URL+path, reader)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func (a *testAPI) registerUser(t *testing.T, name, email, role string) (string, int64) {
	t.Helper()
	resp := a.request(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Name: name, Email: email, Password: "password1", Role: role,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Registration failed with status %d", resp.StatusCode)
	}
	var out AuthResponse
	decode(t, resp, &out)
	return out.Token, out.User.ID
}

// TestAPI_RegisterAndLogin tests functional validation - account round trip
func TestAPI_RegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)

	token, userID := api.registerUser(t, "Alice", "alice@example.com", types.RoleTeacher)
	if token == "" || userID == 0 {
		t.Fatal("Expected token and user ID from registration")
	}

	// The token works immediately
	resp := api.request(t, http.MethodGet, "/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from /api/auth/me, got %d", resp.StatusCode)
	}
	var me types.User
	decode(t, resp, &me)
	if me.ID != userID || me.Email != "alice@example.com" {
		t.Errorf("Unexpected account: %+v", me)
	}

	// Login with the same credentials
	resp = api.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "alice@example.com", Password: "password1",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from login, got %d", resp.StatusCode)
	}

	// Wrong password is rejected
	resp = api.request(t, http.MethodPost, "/api/auth/login", "", LoginRequest{
		Email: "alice@example.com", Password: "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for wrong password, got %d", resp.StatusCode)
	}
}

// TestAPI_RegisterValidation tests edge case validation - rejected registrations
func TestAPI_RegisterValidation(t *testing.T) {
	api := newTestAPI(t)

	cases := []struct {
		name string
		req  RegisterRequest
		want int
	}{
		{"bad email", RegisterRequest{Name: "A", Email: "nope", Password: "password1", Role: types.RoleStudent}, http.StatusBadRequest},
		{"short password", RegisterRequest{Name: "A", Email: "a@b.co", Password: "pw", Role: types.RoleStudent}, http.StatusBadRequest},
		{"bad role", RegisterRequest{Name: "A", Email: "a@b.co", Password: "password1", Role: "admin"}, http.StatusBadRequest},
		{"missing name", RegisterRequest{Email: "a@b.co", Password: "password1", Role: types.RoleStudent}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		resp := api.request(t, http.MethodPost, "/api/auth/register", "", tc.req)
		if resp.StatusCode != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, resp.StatusCode)
		}
	}

	// Duplicate email
	api.registerUser(t, "Alice", "alice@example.com", types.RoleStudent)
	resp := api.request(t, http.MethodPost, "/api/auth/register", "", RegisterRequest{
		Name: "Alice2", Email: "alice@example.com", Password: "password1", Role: types.RoleStudent,
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate email, got %d", resp.StatusCode)
	}
}

// TestAPI_MissingToken tests security validation - protected endpoints
func TestAPI_MissingToken(t *testing.T) {
	api := newTestAPI(t)

	for _, path := range []string{"/api/auth/me", "/api/classes"} {
		resp := api.request(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %s without token, got %d", path, resp.StatusCode)
		}
	}

	resp := api.request(t, http.MethodGet, "/api/auth/me", "garbage-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("Expected 401 for invalid token, got %d", resp.StatusCode)
	}
}

// TestAPI_ClassesAndEnrollment tests functional validation - class membership flow
func TestAPI_ClassesAndEnrollment(t *testing.T) {
	api := newTestAPI(t)
	teacherToken, _ := api.registerUser(t, "Teacher", "teacher@example.com", types.RoleTeacher)
	studentToken, _ := api.registerUser(t, "Student", "student@example.com", types.RoleStudent)

	// Students cannot create classes
	resp := api.request(t, http.MethodPost, "/api/classes", studentToken, CreateClassRequest{Name: "Hacking 101"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for student class creation, got %d", resp.StatusCode)
	}

	resp = api.request(t, http.MethodPost, "/api/classes", teacherToken, CreateClassRequest{Name: "Algebra I"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 for class creation, got %d", resp.StatusCode)
	}
	var class types.Class
	decode(t, resp, &class)

	// Student enrolls, second attempt conflicts
	enrollPath := fmt.Sprintf("/api/classes/%d/enroll", class.ID)
	resp = api.request(t, http.MethodPost, enrollPath, studentToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for enrollment, got %d", resp.StatusCode)
	}
	resp = api.request(t, http.MethodPost, enrollPath, studentToken, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate enrollment, got %d", resp.StatusCode)
	}

	// Teachers cannot enroll
	resp = api.request(t, http.MethodPost, enrollPath, teacherToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for teacher enrollment, got %d", resp.StatusCode)
	}

	// Both sides see the class in their listings
	for _, token := range []string{teacherToken, studentToken} {
		resp = api.request(t, http.MethodGet, "/api/classes", token, nil)
		var classes []*types.Class
		decode(t, resp, &classes)
		if len(classes) != 1 || classes[0].Name != "Algebra I" {
			t.Errorf("Unexpected class listing: %+v", classes)
		}
	}

	// Enrolling in an absent class
	resp = api.request(t, http.MethodPost, "/api/classes/999/enroll", studentToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for absent class, got %d", resp.StatusCode)
	}
}

// TestAPI_SessionLifecycle tests functional validation - session endpoints
func TestAPI_SessionLifecycle(t *testing.T) {
	api := newTestAPI(t)
	teacherToken, teacherID := api.registerUser(t, "Teacher", "teacher@example.com", types.RoleTeacher)
	studentToken, _ := api.registerUser(t, "Student", "student@example.com", types.RoleStudent)

	// Students cannot create sessions
	resp := api.request(t, http.MethodPost, "/api/sessions", studentToken, CreateSessionRequest{
		Title: "Nope", SessionType: types.SessionTypeLive,
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for student session creation, got %d", resp.StatusCode)
	}

	resp = api.request(t, http.MethodPost, "/api/sessions", teacherToken, CreateSessionRequest{
		Title: "Live lecture", SessionType: types.SessionTypeLive,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201 for session creation, got %d", resp.StatusCode)
	}
	var session types.Session
	decode(t, resp, &session)
	if session.TeacherID != teacherID || !session.Active() {
		t.Errorf("Unexpected session: %+v", session)
	}

	// Listed while active
	resp = api.request(t, http.MethodGet, "/api/sessions", "", nil)
	var listing ListSessionsResponse
	decode(t, resp, &listing)
	if len(listing.Sessions) != 1 {
		t.Fatalf("Expected 1 active session, got %d", len(listing.Sessions))
	}

	// Fetch by ID
	resp = api.request(t, http.MethodGet, fmt.Sprintf("/api/sessions/%d", session.ID), "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200 for session fetch, got %d", resp.StatusCode)
	}

	// Only the owner may end it
	endPath := fmt.Sprintf("/api/sessions/%d/end", session.ID)
	resp = api.request(t, http.MethodPost, endPath, studentToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for non-owner end, got %d", resp.StatusCode)
	}
	resp = api.request(t, http.MethodPost, endPath, teacherToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for owner end, got %d", resp.StatusCode)
	}

	// Ending twice reports the session as already ended
	resp = api.request(t, http.MethodPost, endPath, teacherToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for double end, got %d", resp.StatusCode)
	}

	resp = api.request(t, http.MethodGet, "/api/sessions/999", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for absent session, got %d", resp.StatusCode)
	}
}

// TestAPI_SessionMessagesAuthorization tests security validation - history access rules
func TestAPI_SessionMessagesAuthorization(t *testing.T) {
	api := newTestAPI(t)
	teacherToken, teacherID := api.registerUser(t, "Teacher", "teacher@example.com", types.RoleTeacher)
	studentToken, _ := api.registerUser(t, "Student", "student@example.com", types.RoleStudent)

	// Class-bound session the student is not enrolled in
	resp := api.request(t, http.MethodPost, "/api/classes", teacherToken, CreateClassRequest{Name: "Physics"})
	var class types.Class
	decode(t, resp, &class)

	resp = api.request(t, http.MethodPost, "/api/sessions", teacherToken, CreateSessionRequest{
		Title: "Lab", SessionType: types.SessionTypeLive, ClassID: &class.ID,
	})
	var session types.Session
	decode(t, resp, &session)

	api.db.messages[session.ID] = []*types.ChatMessage{
		{ID: "m1", SessionID: session.ID, SenderID: teacherID, Text: "welcome", Timestamp: time.Now()},
	}

	messagesPath := fmt.Sprintf("/api/sessions/%d/messages", session.ID)

	resp = api.request(t, http.MethodGet, messagesPath, teacherToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected owner to read history, got %d", resp.StatusCode)
	}
	var messages []*types.ChatMessage
	decode(t, resp, &messages)
	if len(messages) != 1 || messages[0].Text != "welcome" {
		t.Errorf("Unexpected history: %+v", messages)
	}

	resp = api.request(t, http.MethodGet, messagesPath, studentToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403 for unenrolled student, got %d", resp.StatusCode)
	}

	resp = api.request(t, http.MethodGet, "/api/sessions/999/messages", teacherToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for absent session history, got %d", resp.StatusCode)
	}
}

// TestAPI_HealthCheck tests functional validation - health endpoint
func TestAPI_HealthCheck(t *testing.T) {
	api := newTestAPI(t)

	resp := api.request(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 from health check, got %d", resp.StatusCode)
	}
	var health HealthResponse
	decode(t, resp, &health)
	if health.Status != "healthy" || health.Database != "healthy" {
		t.Errorf("Unexpected health response: %+v", health)
	}

	api.db.healthErr = fmt.Errorf("disk full")
	resp = api.request(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when database is unhealthy, got %d", resp.StatusCode)
	}
}
