package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"classhub/internal/auth"
	"classhub/pkg/interfaces"
	"classhub/pkg/types"
)

// Registry interface to avoid tight coupling to the registry implementation
type Registry interface {
	ConnectionsInRoom(sessionID int64) []interfaces.Connection
	GetStats() map[string]int
}

// Authenticator groups the credential operations the API needs
type Authenticator interface {
	interfaces.IdentityResolver
	interfaces.TokenIssuer
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	db            interfaces.DatabaseManager
	authenticator Authenticator
	authorizer    interfaces.AccessAuthorizer
	registry      Registry
	wsHandler     http.HandlerFunc
	router        *http.ServeMux
}

// FUNCTIONAL DISCOVERY: Constructor initializes all dependencies and sets up routing
// Dependency injection pattern maintains architectural boundaries
func NewServer(db interfaces.DatabaseManager, authenticator Authenticator, authorizer interfaces.AccessAuthorizer, registry Registry, wsHandler http.HandlerFunc) *Server {
	s := &Server{
		db:            db,
		authenticator: authenticator,
		authorizer:    authorizer,
		registry:      registry,
		wsHandler:     wsHandler,
		router:        http.NewServeMux(),
	}

	s.setupRoutes()
	return s
}

// ARCHITECTURAL DISCOVERY: Method-qualified patterns replace per-handler method
// switches; CORS runs in ServeHTTP so preflight requests never reach the mux
func (s *Server) setupRoutes() {
	s.router.HandleFunc("POST /api/auth/register", s.register)
	s.router.HandleFunc("POST /api/auth/login", s.login)
	s.router.HandleFunc("GET /api/auth/me", s.requireAuth(s.currentUser))

	s.router.HandleFunc("POST /api/classes", s.requireAuth(s.createClass))
	s.router.HandleFunc("GET /api/classes", s.requireAuth(s.listClasses))
	s.router.HandleFunc("POST /api/classes/{classId}/enroll", s.requireAuth(s.enrollInClass))

	s.router.HandleFunc("POST /api/sessions", s.requireAuth(s.createSession))
	s.router.HandleFunc("GET /api/sessions", s.listSessions)
	s.router.HandleFunc("GET /api/sessions/{sessionId}", s.getSession)
	s.router.HandleFunc("POST /api/sessions/{sessionId}/end", s.requireAuth(s.endSession))
	s.router.HandleFunc("GET /api/sessions/{sessionId}/messages", s.requireAuth(s.listSessionMessages))

	s.router.HandleFunc("GET /health", s.healthCheck)

	// WebSocket endpoint bypasses the JSON content-type middleware
	s.router.HandleFunc("GET /ws/{sessionId}", s.wsHandler)
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// CORS headers for web client compatibility; preflight short-circuits
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "86400")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	if !strings.HasPrefix(r.URL.Path, "/ws/") {
		w.Header().Set("Content-Type", "application/json")
	}

	s.router.ServeHTTP(w, r)
}

// Request/Response types for JSON serialization

type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  *types.User `json:"user"`
}

type CreateClassRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CreateSessionRequest struct {
	Title       string `json:"title"`
	SessionType string `json:"sessionType"`
	ClassID     *int64 `json:"classId"`
}

type SessionResponse struct {
	Session         *types.Session `json:"session"`
	ConnectionCount int            `json:"connection_count"`
}

type ListSessionsResponse struct {
	Sessions []SessionWithConnections `json:"sessions"`
}

type SessionWithConnections struct {
	*types.Session
	ConnectionCount int `json:"connection_count"`
}

type HealthResponse struct {
	Status      string        `json:"status"`
	Timestamp   time.Time     `json:"timestamp"`
	Database    string        `json:"database"`
	Connections map[string]int `json:"connections"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// authedHandler receives the already-resolved caller identity
type authedHandler func(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity)

// requireAuth resolves the Authorization bearer token before the handler runs
// FUNCTIONAL DISCOVERY: The same resolver guards REST and WebSocket entry
// points, so a token is valid for both or neither
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			s.sendError(w, "Missing bearer token", http.StatusUnauthorized)
			return
		}

		identity, err := s.authenticator.ResolveIdentity(r.Context(), token)
		if err != nil {
			s.sendError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}

		next(w, r, identity)
	}
}

// FUNCTIONAL DISCOVERY: POST /api/auth/register - Create account and return a token
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if req.Name == "" {
		s.sendError(w, "Name is required", http.StatusBadRequest)
		return
	}
	if !types.IsValidEmail(req.Email) {
		s.sendError(w, "Invalid email address", http.StatusBadRequest)
		return
	}
	if len(req.Password) < 6 {
		s.sendError(w, "Password must be at least 6 characters", http.StatusBadRequest)
		return
	}
	if !types.IsValidRole(req.Role) {
		s.sendError(w, "Role must be 'teacher' or 'student'", http.StatusBadRequest)
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.sendError(w, "Failed to create account", http.StatusInternalServerError)
		return
	}

	user := &types.User{
		Name:           req.Name,
		Email:          req.Email,
		HashedPassword: hashed,
		Role:           req.Role,
	}
	id, err := s.db.CreateUser(r.Context(), user)
	if err != nil {
		if errors.Is(err, interfaces.ErrDuplicateEmail) {
			s.sendError(w, "Email already registered", http.StatusConflict)
		} else {
			s.sendError(w, "Failed to create account", http.StatusInternalServerError)
		}
		return
	}
	user.ID = id

	token, err := s.authenticator.IssueToken(user.Email)
	if err != nil {
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// FUNCTIONAL DISCOVERY: POST /api/auth/login - Verify credentials and return a token
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	user, err := s.db.GetUserByEmail(r.Context(), req.Email)
	if err != nil || !auth.VerifyPassword(req.Password, user.HashedPassword) {
		// Identical response for unknown email and wrong password
		s.sendError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	token, err := s.authenticator.IssueToken(user.Email)
	if err != nil {
		s.sendError(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(AuthResponse{Token: token, User: user})
}

// GET /api/auth/me - Return the caller's account
func (s *Server) currentUser(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	user, err := s.db.GetUserByID(r.Context(), identity.UserID)
	if err != nil {
		s.sendError(w, "User not found", http.StatusNotFound)
		return
	}
	json.NewEncoder(w).Encode(user)
}

// FUNCTIONAL DISCOVERY: POST /api/classes - Teachers create classes they own
func (s *Server) createClass(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	if identity.Role != types.RoleTeacher {
		s.sendError(w, "Only teachers can create classes", http.StatusForbidden)
		return
	}

	var req CreateClassRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	class := &types.Class{
		Name:        req.Name,
		Description: req.Description,
		TeacherID:   identity.UserID,
		CreatedAt:   time.Now(),
	}
	if err := class.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.db.CreateClass(r.Context(), class)
	if err != nil {
		s.sendError(w, "Failed to create class", http.StatusInternalServerError)
		return
	}
	class.ID = id

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(class)
}

// GET /api/classes - Teachers see classes they own, students classes they joined
func (s *Server) listClasses(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	var (
		classes []*types.Class
		err     error
	)
	if identity.Role == types.RoleTeacher {
		classes, err = s.db.ListClassesByTeacher(r.Context(), identity.UserID)
	} else {
		classes, err = s.db.ListClassesByStudent(r.Context(), identity.UserID)
	}
	if err != nil {
		s.sendError(w, "Failed to list classes", http.StatusInternalServerError)
		return
	}
	if classes == nil {
		classes = []*types.Class{}
	}
	json.NewEncoder(w).Encode(classes)
}

// FUNCTIONAL DISCOVERY: POST /api/classes/{classId}/enroll - Students enroll themselves
func (s *Server) enrollInClass(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	if identity.Role != types.RoleStudent {
		s.sendError(w, "Only students can enroll in classes", http.StatusForbidden)
		return
	}

	classID, err := strconv.ParseInt(r.PathValue("classId"), 10, 64)
	if err != nil {
		s.sendError(w, "Invalid class ID", http.StatusBadRequest)
		return
	}

	if _, err := s.db.GetClass(r.Context(), classID); err != nil {
		s.sendError(w, "Class not found", http.StatusNotFound)
		return
	}

	if err := s.db.EnrollStudent(r.Context(), classID, identity.UserID); err != nil {
		if errors.Is(err, interfaces.ErrAlreadyEnrolled) {
			s.sendError(w, "Already enrolled in this class", http.StatusConflict)
		} else {
			s.sendError(w, "Failed to enroll", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Enrolled successfully"})
}

// FUNCTIONAL DISCOVERY: POST /api/sessions - Teachers start sessions, optionally bound to a class
func (s *Server) createSession(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	if identity.Role != types.RoleTeacher {
		s.sendError(w, "Only teachers can create sessions", http.StatusForbidden)
		return
	}

	var req CreateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	// A class-bound session must reference a class the caller owns
	if req.ClassID != nil {
		class, err := s.db.GetClass(r.Context(), *req.ClassID)
		if err != nil {
			s.sendError(w, "Class not found", http.StatusNotFound)
			return
		}
		if class.TeacherID != identity.UserID {
			s.sendError(w, "Cannot create a session for another teacher's class", http.StatusForbidden)
			return
		}
	}

	session := &types.Session{
		Title:       req.Title,
		TeacherID:   identity.UserID,
		ClassID:     req.ClassID,
		SessionType: req.SessionType,
		StartTime:   time.Now(),
	}
	if err := session.Validate(); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	id, err := s.db.CreateSession(r.Context(), session)
	if err != nil {
		s.sendError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	session.ID = id

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(session)
}

// FUNCTIONAL DISCOVERY: GET /api/sessions - List active sessions with connection counts
func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.db.ListActiveSessions(r.Context())
	if err != nil {
		s.sendError(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}

	sessionsWithConnections := make([]SessionWithConnections, len(sessions))
	for i, session := range sessions {
		sessionsWithConnections[i] = SessionWithConnections{
			Session:         session,
			ConnectionCount: len(s.registry.ConnectionsInRoom(session.ID)),
		}
	}

	json.NewEncoder(w).Encode(ListSessionsResponse{Sessions: sessionsWithConnections})
}

// FUNCTIONAL DISCOVERY: GET /api/sessions/{id} - Get session details with connection count
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := strconv.ParseInt(r.PathValue("sessionId"), 10, 64)
	if err != nil {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session not found", http.StatusNotFound)
		} else {
			s.sendError(w, "Failed to get session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(SessionResponse{
		Session:         session,
		ConnectionCount: len(s.registry.ConnectionsInRoom(sessionID)),
	})
}

// FUNCTIONAL DISCOVERY: POST /api/sessions/{id}/end - Owner ends the session
// and every connected client is told before the record closes
func (s *Server) endSession(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	sessionID, err := strconv.ParseInt(r.PathValue("sessionId"), 10, 64)
	if err != nil {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	session, err := s.db.GetSession(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Session not found", http.StatusNotFound)
		return
	}
	if session.TeacherID != identity.UserID {
		s.sendError(w, "Only the session owner can end it", http.StatusForbidden)
		return
	}

	sessionEndedMsg := map[string]interface{}{
		"type":   "session_ended",
		"reason": "Session ended by teacher",
	}
	for _, conn := range s.registry.ConnectionsInRoom(sessionID) {
		if err := conn.WriteJSON(sessionEndedMsg); err != nil {
			log.Printf("Failed to send session_ended to user %d: %v", conn.GetUserID(), err)
		}
	}

	if err := s.db.EndSession(r.Context(), sessionID, time.Now()); err != nil {
		if errors.Is(err, interfaces.ErrSessionNotFound) {
			s.sendError(w, "Session already ended", http.StatusBadRequest)
		} else {
			s.sendError(w, "Failed to end session", http.StatusInternalServerError)
		}
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Session ended successfully"})
}

// GET /api/sessions/{id}/messages - Chat history, gated by the same access
// rules as joining the session live
func (s *Server) listSessionMessages(w http.ResponseWriter, r *http.Request, identity *types.UserIdentity) {
	sessionID, err := strconv.ParseInt(r.PathValue("sessionId"), 10, 64)
	if err != nil {
		s.sendError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}

	if err := s.authorizer.Authorize(r.Context(), identity, sessionID); err != nil {
		switch {
		case errors.Is(err, interfaces.ErrSessionNotFound):
			// Ended sessions stay readable for their participants
			if _, getErr := s.db.GetSession(r.Context(), sessionID); getErr != nil {
				s.sendError(w, "Session not found", http.StatusNotFound)
				return
			}
		case errors.Is(err, interfaces.ErrUnauthorized):
			s.sendError(w, "Not authorized for this session", http.StatusForbidden)
			return
		default:
			s.sendError(w, "Authorization check failed", http.StatusInternalServerError)
			return
		}
	}

	messages, err := s.db.GetSessionMessages(r.Context(), sessionID)
	if err != nil {
		s.sendError(w, "Failed to load messages", http.StatusInternalServerError)
		return
	}
	if messages == nil {
		messages = []*types.ChatMessage{}
	}
	json.NewEncoder(w).Encode(messages)
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	dbStatus := "healthy"

	if err := s.db.HealthCheck(ctx); err != nil {
		status = "unhealthy"
		dbStatus = fmt.Sprintf("error: %v", err)
	}

	response := HealthResponse{
		Status:      status,
		Timestamp:   time.Now(),
		Database:    dbStatus,
		Connections: s.registry.GetStats(),
	}

	if status == "unhealthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(response)
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func (s *Server) sendError(w http.ResponseWriter, message string, code int) {
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}
