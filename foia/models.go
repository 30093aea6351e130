package foia

import (
	"fmt"
	"strings"
	"time"

	"github.com/newsapps/foiatracker/rolodex"
	"github.com/shopspring/decimal"
)

// Sender is a staffer who files requests by emailing them to the tracker
type Sender struct {
	ID        int64  `json:"id" db:"id"`
	Email     string `json:"email" db:"email"`
	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
}

func (s Sender) String() string {
	if s.FirstName != "" && s.LastName != "" {
		return fmt.Sprintf("%s %s", s.FirstName, s.LastName)
	}
	return s.Email
}

// Recipient is a person or organization a request was sent to
type Recipient struct {
	ID                    int64  `json:"id" db:"id"`
	Email                 string `json:"email" db:"email"`
	Name                  string `json:"name" db:"name"`
	Organization          string `json:"organization" db:"organization"`
	RolodexContactID      *int64 `json:"rolodex_contact_id" db:"rolodex_contact_id"`
	RolodexPersonID       *int64 `json:"rolodex_person_id" db:"rolodex_person_id"`
	RolodexOrganizationID *int64 `json:"rolodex_organization_id" db:"rolodex_organization_id"`
}

func (r Recipient) String() string {
	switch {
	case r.Name != "" && r.Organization != "":
		return fmt.Sprintf("%s (%s)", r.Organization, r.Name)
	case r.Name != "":
		return r.Name
	case r.Organization != "":
		return r.Organization
	}
	return r.Email
}

// HasRolodexMatch reports whether the recipient was matched to a person or organization
func (r Recipient) HasRolodexMatch() bool {
	return r.RolodexPersonID != nil || r.RolodexOrganizationID != nil
}

// ApplyMatch overwrites the directory fields with m
func (r *Recipient) ApplyMatch(m rolodex.Match) {
	r.RolodexContactID = m.ContactID
	r.RolodexPersonID = m.PersonID
	r.RolodexOrganizationID = m.OrganizationID
	r.Name = m.Name
	r.Organization = m.Organization
}

// RolodexLinks are the directory pages for a recipient's stored ids
type RolodexLinks struct {
	Contact      string `json:"contact,omitempty"`
	Person       string `json:"person,omitempty"`
	Organization string `json:"organization,omitempty"`
}

// LinkBuilder builds directory page urls from stored ids
type LinkBuilder interface {
	ContactURL(id *int64) string
	PersonURL(id *int64) string
	OrganizationURL(id *int64) string
}

// RolodexLinks returns the directory urls for the recipient. Ids that aren't set give empty links.
func (r Recipient) RolodexLinks(c LinkBuilder) RolodexLinks {
	return RolodexLinks{
		Contact:      c.ContactURL(r.RolodexContactID),
		Person:       c.PersonURL(r.RolodexPersonID),
		Organization: c.OrganizationURL(r.RolodexOrganizationID),
	}
}

// RecipientsString joins recipients for display
func RecipientsString(rs []Recipient) string {
	strs := make([]string, 0, len(rs))
	for _, r := range rs {
		strs = append(strs, r.String())
	}
	return strings.Join(strs, ", ")
}

// InboundEmail is a message received on the mailhook. It is never modified after it's saved apart from
// its processed flag.
type InboundEmail struct {
	ID        int64     `json:"id" db:"id"`
	UUID      string    `json:"uuid" db:"uuid"`
	Raw       string    `json:"-" db:"raw"`
	Text      string    `json:"text" db:"text"`
	HTML      string    `json:"html" db:"html"`
	Subject   string    `json:"subject" db:"subject"`
	Sent      time.Time `json:"sent" db:"sent"`
	SenderID  int64     `json:"sender_id" db:"sender_id"`
	Processed bool      `json:"processed" db:"processed"`
}

func (e InboundEmail) String() string {
	if e.Subject != "" {
		return e.Subject
	}
	return "- no subject -"
}

// Attachment is a file that came with an inbound email
type Attachment struct {
	ID          int64  `json:"id" db:"id"`
	EmailID     int64  `json:"email_id" db:"email_id"`
	Key         string `json:"-" db:"storage_key"`
	Filename    string `json:"filename" db:"filename"`
	ContentType string `json:"content_type" db:"content_type"`
	Size        int64  `json:"size" db:"size"`
	URL         string `json:"url" db:"url"`
}

var iconTypes = map[string]bool{
	"excel": true, "pdf": true, "sound": true, "word": true, "archive": true, "image": true, "photo": true,
	"zip": true, "audio": true, "text": true, "code": true, "powerpoint": true, "video": true,
}

// Icon returns the font awesome icon name for the attachment's content type
func (a Attachment) Icon() string {
	if a.ContentType == "" || !strings.Contains(a.ContentType, "/") || a.ContentType == "application/octet-stream" {
		return "file"
	}

	parts := strings.SplitN(a.ContentType, "/", 2)

	switch {
	case parts[0] == "image":
		return "file-image-o"
	case iconTypes[parts[1]]:
		return fmt.Sprintf("file-%s-o", parts[1])
	case strings.Contains(parts[1], "spreadsheet") || strings.Contains(parts[1], "excel"):
		return "file-excel-o"
	case strings.Contains(parts[1], "html"):
		return "file-code-o"
	}

	return "file-o"
}

// Request is a public records request. Sent is a date and carries no meaningful time of day.
type Request struct {
	ID        int64     `json:"id" db:"id"`
	EmailID   int64     `json:"email_id" db:"email_id"`
	Sent      time.Time `json:"sent" db:"sent"`
	Subject   string    `json:"subject" db:"subject"`
	Notes     string    `json:"notes" db:"notes"`
	Notified  bool      `json:"notified" db:"notified"`
	ProjectID *int64    `json:"project_id" db:"project_id"`
	AgencyID  string    `json:"agency_id" db:"agency_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

func (r Request) String() string {
	return r.Subject
}

// Event is a status update on a request
type Event struct {
	ID          int64               `json:"id" db:"id"`
	RequestID   int64               `json:"request_id" db:"request_id"`
	EmailID     *int64              `json:"email_id" db:"email_id"`
	Status      Status              `json:"status" db:"status"`
	UpdateDate  time.Time           `json:"update_date" db:"update_date"`
	AmountAsked decimal.NullDecimal `json:"amount_asked" db:"amount_asked"`
	AmountPaid  decimal.NullDecimal `json:"amount_paid" db:"amount_paid"`
	Notes       string              `json:"notes" db:"notes"`
	CreatedAt   time.Time           `json:"created_at" db:"created_at"`
}

func (e Event) String() string {
	return e.Status.Label()
}

// Reminder is a one off nudge to the request's sender. SentTime stays nil until it's dispatched.
type Reminder struct {
	ID            int64      `json:"id" db:"id"`
	RequestID     int64      `json:"request_id" db:"request_id"`
	ScheduledTime time.Time  `json:"scheduled_time" db:"scheduled_time"`
	SentTime      *time.Time `json:"sent_time" db:"sent_time"`
}

// Project groups requests that several staffers collaborate on
type Project struct {
	ID          int64     `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Slug        string    `json:"slug" db:"slug"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

func (p Project) String() string {
	return p.Name
}

// RequestFilter narrows ListRequests. Zero values don't filter.
type RequestFilter struct {
	SenderEmail string
	ProjectID   *int64
	// Search is matched case insensitively against the subject, notes and agency id
	Search string
}

// Now returns the current time the way it's stored: UTC to the second
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}

// Date returns t's calendar day as midnight UTC
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
