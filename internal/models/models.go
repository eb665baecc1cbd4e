package models

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CounterKind identifies which entity family a sequence counter belongs to.
// Counters for different kinds never share a row even when their keys collide.
type CounterKind string

const (
	CounterKindSchool   CounterKind = "school"
	CounterKindTeam     CounterKind = "team"
	CounterKindWorkshop CounterKind = "workshop"
)

// Counter is a durable monotonic sequence keyed by (kind, key).
type Counter struct {
	Kind          string `db:"kind"`
	Key           string `db:"key"`
	SequenceValue int    `db:"sequence_value"`
}

// School is a durable school registration record.
type School struct {
	ID                int64     `db:"id" json:"-"`
	SchoolRegID       string    `db:"school_reg_id" json:"school_reg_id"`
	SchoolName        string    `db:"school_name" json:"school_name"`
	PrincipalName     string    `db:"principal_name" json:"principal_name"`
	SchoolContact     string    `db:"school_contact" json:"school_contact"`
	SchoolEmail       string    `db:"school_email" json:"school_email"`
	CoordinatorName   string    `db:"coordinator_name" json:"coordinator_name"`
	CoordinatorNumber string    `db:"coordinator_number" json:"coordinator_number"`
	CoordinatorEmail  string    `db:"coordinator_email" json:"coordinator_email"`
	SchoolAddress     string    `db:"school_address" json:"school_address"`
	SchoolWebsite     string    `db:"school_website" json:"school_website"`
	State             string    `db:"state" json:"state"`
	District          string    `db:"district" json:"district"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// TeamMember is one student on a team. Stored inline on the team row as JSON.
type TeamMember struct {
	Name       string `json:"name"`
	ClassGrade string `json:"class_grade"`
	Gender     string `json:"gender"`
}

// MemberList marshals a member slice into a JSONB column.
type MemberList []TeamMember

func (m MemberList) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *MemberList) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("members: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, m)
}

// Team is a durable team registration record. TeamRegID is unique within
// (event, state) and immutable once created.
type Team struct {
	ID          int64      `db:"id" json:"-"`
	SchoolRegID string     `db:"school_reg_id" json:"school_reg_id"`
	TeamName    string     `db:"team_name" json:"team_name"`
	TeamNumber  int        `db:"team_number" json:"team_number"`
	TeamSize    int        `db:"team_size" json:"team_size"`
	Members     MemberList `db:"members" json:"members"`
	Event       string     `db:"event" json:"event"`
	State       string     `db:"state" json:"state"`
	TeamRegID   string     `db:"team_reg_id" json:"team_reg_id"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// Payment intent status. The enum is closed: Paid and Failed are terminal.
const (
	PaymentStatusCreated = "created"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment intent kinds.
const (
	IntentKindSchool = "school"
	IntentKindTeam   = "team"
)

// SchoolSnapshot is the validated registration payload captured when a school
// payment order is created, replayed by the webhook instead of trusting
// client-supplied data at verify time.
type SchoolSnapshot struct {
	SchoolName        string `json:"school_name"`
	PrincipalName     string `json:"principal_name"`
	SchoolContact     string `json:"school_contact"`
	SchoolEmail       string `json:"school_email"`
	CoordinatorName   string `json:"coordinator_name"`
	CoordinatorNumber string `json:"coordinator_number"`
	CoordinatorEmail  string `json:"coordinator_email"`
	SchoolAddress     string `json:"school_address"`
	SchoolWebsite     string `json:"school_website"`
	State             string `json:"state"`
	District          string `json:"district"`
}

// TeamSnapshot is one requested team inside a batch payment order.
type TeamSnapshot struct {
	TeamName   string       `json:"team_name"`
	TeamNumber int          `json:"team_number"`
	TeamSize   int          `json:"team_size"`
	Event      string       `json:"event"`
	Members    []TeamMember `json:"members"`
}

// SnapshotVersion guards against schema drift for in-flight intents.
const SnapshotVersion = 1

// IntentSnapshot is the versioned registration payload stored on a payment
// intent. Exactly one of School or Teams is populated, matching the intent kind.
type IntentSnapshot struct {
	Version     int             `json:"version"`
	School      *SchoolSnapshot `json:"school,omitempty"`
	SchoolRegID string          `json:"school_reg_id,omitempty"`
	Teams       []TeamSnapshot  `json:"teams,omitempty"`
}

func (s IntentSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *IntentSnapshot) Scan(src interface{}) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("snapshot: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, s)
}

// StringList marshals registration ID lists into a JSONB column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = nil
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("string list: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, l)
}

// PaymentIntent is the durable record of one payment-gateway order and its
// eventual outcome. Only the webhook path transitions it to a terminal state;
// Verified is true iff the registration rows from the snapshot exist.
type PaymentIntent struct {
	ID              int64          `db:"id" json:"-"`
	Kind            string         `db:"kind" json:"kind"`
	OrderID         string         `db:"order_id" json:"order_id"`
	PaymentID       sql.NullString `db:"payment_id" json:"payment_id,omitempty"`
	PayerEmail      string         `db:"payer_email" json:"payer_email"`
	SchoolRegID     sql.NullString `db:"school_reg_id" json:"school_reg_id,omitempty"`
	Amount          int64          `db:"amount" json:"amount"`
	Status          string         `db:"status" json:"status"`
	Verified        bool           `db:"verified" json:"verified"`
	FailureReason   sql.NullString `db:"failure_reason" json:"failure_reason,omitempty"`
	Snapshot        IntentSnapshot `db:"snapshot" json:"-"`
	RegistrationIDs StringList     `db:"registration_ids" json:"registration_ids,omitempty"`
	PDFName         sql.NullString `db:"pdf_name" json:"pdf_name,omitempty"`
	PDFBase64       sql.NullString `db:"pdf_base64" json:"-"`
	EmailSent       bool           `db:"email_sent" json:"email_sent"`
	PaidAt          sql.NullTime   `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at" json:"updated_at"`
}

// WorkshopRegistration is a direct (non-gateway) paid workshop signup.
type WorkshopRegistration struct {
	ID             int64     `db:"id" json:"-"`
	RegistrationID string    `db:"registration_id" json:"registration_id"`
	Name           string    `db:"name" json:"name"`
	Contact        string    `db:"contact" json:"contact"`
	Email          string    `db:"email" json:"email"`
	School         string    `db:"school" json:"school"`
	Paid           bool      `db:"paid" json:"paid"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Submission tracks.
const (
	TrackVideo = "video"
	TrackPDF   = "pdf"
	TrackText  = "text"
)

// Submission is one competition entry per team per track.
type Submission struct {
	ID        int64          `db:"id" json:"-"`
	TeamRegID string         `db:"team_reg_id" json:"team_reg_id"`
	Track     string         `db:"track" json:"track"`
	FileRef   sql.NullString `db:"file_ref" json:"file_ref,omitempty"`
	FileLink  sql.NullString `db:"file_link" json:"file_link,omitempty"`
	Message   sql.NullString `db:"message" json:"message,omitempty"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
