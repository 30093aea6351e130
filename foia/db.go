package foia

import (
	"time"

	"github.com/newsapps/foiatracker/matcher"
	"github.com/pkg/errors"
)

// ErrNotFound is returned when a lookup matches nothing
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique value is already taken
var ErrDuplicate = errors.New("already exists")

// ErrReminderAlreadySent is returned when rescheduling a reminder that went out
var ErrReminderAlreadySent = errors.New("reminder already sent")

// ErrAlreadyClassified is returned when an email already owns a request or event
var ErrAlreadyClassified = errors.New("email already classified")

// Database lists methods needed to implement a db
type Database interface {
	// Start is where you should do schema creation
	Start() error

	GetSenderByEmail(email string) (Sender, error)
	GetSenderByID(id int64) (Sender, error)
	// CreateSender inserts s unless its email is taken and returns the stored sender either way
	CreateSender(s Sender) (Sender, error)

	GetRecipientByEmail(email string) (Recipient, error)
	GetRecipientByID(id int64) (Recipient, error)
	// CreateRecipient inserts r unless its email is taken and returns the stored recipient either way
	CreateRecipient(r Recipient) (Recipient, error)
	UpdateRecipient(r Recipient) error
	ListRecipients() ([]Recipient, error)

	SaveNewEmail(e InboundEmail) (InboundEmail, error)
	GetEmailByID(id int64) (InboundEmail, error)
	GetEmailByUUID(uuid string) (InboundEmail, error)
	SetEmailRecipients(emailID int64, recipientIDs []int64) error
	GetEmailRecipients(emailID int64) ([]Recipient, error)
	SetEmailProcessed(emailID int64) error

	SaveAttachment(a Attachment) (Attachment, error)
	GetAttachmentsByEmailID(emailID int64) ([]Attachment, error)

	SaveNewRequest(r Request) (Request, error)
	GetRequestByID(id int64) (Request, error)
	GetRequestByEmailID(emailID int64) (Request, error)
	UpdateRequest(r Request) error
	DeleteRequest(id int64) error
	// ListRequests returns requests newest sent first, then newest created
	ListRequests(f RequestFilter) ([]Request, error)
	SetRequestRecipients(requestID int64, recipientIDs []int64) error
	GetRequestRecipients(requestID int64) ([]Recipient, error)
	SetRequestNotified(requestID int64) error

	SaveNewEvent(e Event) (Event, error)
	GetEventByID(id int64) (Event, error)
	GetEventByEmailID(emailID int64) (Event, error)
	GetEventsByRequestID(requestID int64) ([]Event, error)
	DeleteEvent(id int64) error

	SaveNewReminder(r Reminder) (Reminder, error)
	GetReminderByRequestID(requestID int64) (Reminder, error)
	UpdateReminder(r Reminder) error
	// GetDueReminders returns unsent reminders scheduled at or before now
	GetDueReminders(now time.Time) ([]Reminder, error)
	MarkRemindersSent(ids []int64, at time.Time) error

	SaveNewProject(p Project) (Project, error)
	GetProjectByID(id int64) (Project, error)
	GetProjectBySlug(slug string) (Project, error)
	SlugExists(slug string) (bool, error)
	SetProjectCollaborators(projectID int64, senderIDs []int64) error
	GetProjectCollaborators(projectID int64) ([]Sender, error)
	GetProjectIDsBySender(senderID int64) ([]int64, error)

	// GetMatchCandidates returns every request joined with its sender for ranking against a reply
	GetMatchCandidates() ([]matcher.Candidate, error)
}
