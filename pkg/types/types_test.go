package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

// TestEvent_Type tests functional validation - event type extraction
func TestEvent_Type(t *testing.T) {
	event := Event{"type": "chat_message", "message": "hello"}
	if event.Type() != EventTypeChatMessage {
		t.Errorf("Expected type %q, got %q", EventTypeChatMessage, event.Type())
	}

	// Missing type field
	event = Event{"message": "hello"}
	if event.Type() != "" {
		t.Errorf("Expected empty type, got %q", event.Type())
	}

	// Non-string type field
	event = Event{"type": 42}
	if event.Type() != "" {
		t.Errorf("Expected empty type for numeric type field, got %q", event.Type())
	}
}

// TestEvent_Int64Field tests technical validation - JSON number conversion
func TestEvent_Int64Field(t *testing.T) {
	// JSON decoding produces float64 values for all numbers
	var event Event
	if err := json.Unmarshal([]byte(`{"type":"offer","targetUserId":7}`), &event); err != nil {
		t.Fatalf("Failed to unmarshal event: %v", err)
	}

	id, ok := event.Int64Field("targetUserId")
	if !ok {
		t.Fatal("Expected targetUserId to be extractable")
	}
	if id != 7 {
		t.Errorf("Expected targetUserId 7, got %d", id)
	}

	// Absent field
	if _, ok := event.Int64Field("missing"); ok {
		t.Error("Expected absent field to report not-ok")
	}

	// Non-numeric field
	event["targetUserId"] = "seven"
	if _, ok := event.Int64Field("targetUserId"); ok {
		t.Error("Expected string field to report not-ok")
	}
}

// TestEvent_StringField tests functional validation - string field extraction
func TestEvent_StringField(t *testing.T) {
	event := Event{"message": "hello", "count": 3}

	if s, ok := event.StringField("message"); !ok || s != "hello" {
		t.Errorf("Expected (hello, true), got (%q, %v)", s, ok)
	}
	if _, ok := event.StringField("count"); ok {
		t.Error("Expected numeric field to report not-ok")
	}
	if _, ok := event.StringField("absent"); ok {
		t.Error("Expected absent field to report not-ok")
	}
}

// TestSession_Active tests functional validation - session lifecycle state
func TestSession_Active(t *testing.T) {
	session := &Session{ID: 1, Title: "Algebra", TeacherID: 1, SessionType: SessionTypeLive, StartTime: time.Now()}
	if !session.Active() {
		t.Error("Session without end time should be active")
	}

	ended := time.Now()
	session.EndTime = &ended
	if session.Active() {
		t.Error("Session with end time should not be active")
	}
}

// TestSession_Validate tests functional validation - session field constraints
func TestSession_Validate(t *testing.T) {
	valid := &Session{Title: "Geometry review", TeacherID: 1, SessionType: SessionTypeLive, StartTime: time.Now()}
	if err := valid.Validate(); err != nil {
		t.Errorf("Expected valid session, got %v", err)
	}

	empty := &Session{Title: "", TeacherID: 1, SessionType: SessionTypeLive}
	if err := empty.Validate(); err == nil {
		t.Error("Expected error for empty title")
	}

	long := &Session{Title: string(make([]byte, 201)), TeacherID: 1, SessionType: SessionTypeLive}
	if err := long.Validate(); err == nil {
		t.Error("Expected error for title over 200 characters")
	}

	badType := &Session{Title: "Geometry", TeacherID: 1, SessionType: "lecture"}
	if err := badType.Validate(); err == nil {
		t.Error("Expected error for unknown session type")
	}
}

// TestIsValidRole tests functional validation - role constants
func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleTeacher) || !IsValidRole(RoleStudent) {
		t.Error("Expected teacher and student roles to be valid")
	}
	if IsValidRole("instructor") || IsValidRole("") {
		t.Error("Expected unknown roles to be invalid")
	}
}

// TestIsValidEmail tests functional validation - email format checking
func TestIsValidEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a.b+c@school.edu"}
	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Errorf("Expected %q to be valid", email)
		}
	}

	invalid := []string{"", "alice", "alice@", "@example.com", "alice @example.com"}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Errorf("Expected %q to be invalid", email)
		}
	}
}

// TestValidateChatText tests functional validation - chat message bounds
func TestValidateChatText(t *testing.T) {
	if err := ValidateChatText("hello"); err != nil {
		t.Errorf("Expected short message to be valid, got %v", err)
	}
	if err := ValidateChatText(""); err == nil {
		t.Error("Expected empty message to be rejected")
	}
	if err := ValidateChatText(string(make([]byte, 4097))); err == nil {
		t.Error("Expected oversized message to be rejected")
	}
}

// TestNewUserJoined tests functional validation - roster event construction
func TestNewUserJoined(t *testing.T) {
	identity := &UserIdentity{UserID: 5, Name: "Alice", Role: RoleStudent}

	joined := NewUserJoined(identity)
	if joined.Type != EventTypeUserJoined || joined.UserID != 5 || joined.UserName != "Alice" || joined.Role != RoleStudent {
		t.Errorf("Unexpected user_joined event: %+v", joined)
	}

	left := NewUserLeft(identity)
	if left.Type != EventTypeUserLeft || left.UserID != 5 || left.UserName != "Alice" {
		t.Errorf("Unexpected user_left event: %+v", left)
	}

	list := NewParticipantsList([]Participant{{UserID: 5, UserName: "Alice", Role: RoleStudent}})
	if list.Type != EventTypeParticipantsList || len(list.Participants) != 1 {
		t.Errorf("Unexpected participants_list event: %+v", list)
	}
}

// TestUser_Identity tests functional validation - identity projection
func TestUser_Identity(t *testing.T) {
	user := &User{ID: 9, Name: "Bob", Email: "bob@example.com", Role: RoleTeacher}
	identity := user.Identity()
	if identity.UserID != 9 || identity.Name != "Bob" || identity.Role != RoleTeacher {
		t.Errorf("Unexpected identity: %+v", identity)
	}
}

// TestUser_PasswordNeverSerialized tests security validation - password hash exclusion
func TestUser_PasswordNeverSerialized(t *testing.T) {
	user := &User{ID: 1, Name: "Alice", Email: "alice@example.com", HashedPassword: "secret-hash", Role: RoleStudent}
	data, err := json.Marshal(user)
	if err != nil {
		t.Fatalf("Failed to marshal user: %v", err)
	}
	if strings.Contains(string(data), "secret-hash") {
		t.Error("Hashed password must never appear in JSON output")
	}
}
