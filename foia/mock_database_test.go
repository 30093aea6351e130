package foia

import (
	"time"

	"github.com/newsapps/foiatracker/matcher"
	"github.com/stretchr/testify/mock"
)

type MockDatabase struct {
	mock.Mock
}

func (m *MockDatabase) Start() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockDatabase) GetSenderByEmail(email string) (Sender, error) {
	args := m.Called(email)
	return args.Get(0).(Sender), args.Error(1)
}

func (m *MockDatabase) GetSenderByID(id int64) (Sender, error) {
	args := m.Called(id)
	return args.Get(0).(Sender), args.Error(1)
}

func (m *MockDatabase) CreateSender(s Sender) (Sender, error) {
	args := m.Called(s)
	return args.Get(0).(Sender), args.Error(1)
}

func (m *MockDatabase) GetRecipientByEmail(email string) (Recipient, error) {
	args := m.Called(email)
	return args.Get(0).(Recipient), args.Error(1)
}

func (m *MockDatabase) GetRecipientByID(id int64) (Recipient, error) {
	args := m.Called(id)
	return args.Get(0).(Recipient), args.Error(1)
}

func (m *MockDatabase) CreateRecipient(r Recipient) (Recipient, error) {
	args := m.Called(r)
	return args.Get(0).(Recipient), args.Error(1)
}

func (m *MockDatabase) UpdateRecipient(r Recipient) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockDatabase) ListRecipients() ([]Recipient, error) {
	args := m.Called()
	return args.Get(0).([]Recipient), args.Error(1)
}

func (m *MockDatabase) SaveNewEmail(e InboundEmail) (InboundEmail, error) {
	args := m.Called(e)
	return args.Get(0).(InboundEmail), args.Error(1)
}

func (m *MockDatabase) GetEmailByID(id int64) (InboundEmail, error) {
	args := m.Called(id)
	return args.Get(0).(InboundEmail), args.Error(1)
}

func (m *MockDatabase) GetEmailByUUID(uuid string) (InboundEmail, error) {
	args := m.Called(uuid)
	return args.Get(0).(InboundEmail), args.Error(1)
}

func (m *MockDatabase) SetEmailRecipients(emailID int64, recipientIDs []int64) error {
	args := m.Called(emailID, recipientIDs)
	return args.Error(0)
}

func (m *MockDatabase) GetEmailRecipients(emailID int64) ([]Recipient, error) {
	args := m.Called(emailID)
	return args.Get(0).([]Recipient), args.Error(1)
}

func (m *MockDatabase) SetEmailProcessed(emailID int64) error {
	args := m.Called(emailID)
	return args.Error(0)
}

func (m *MockDatabase) SaveAttachment(a Attachment) (Attachment, error) {
	args := m.Called(a)
	return args.Get(0).(Attachment), args.Error(1)
}

func (m *MockDatabase) GetAttachmentsByEmailID(emailID int64) ([]Attachment, error) {
	args := m.Called(emailID)
	return args.Get(0).([]Attachment), args.Error(1)
}

func (m *MockDatabase) SaveNewRequest(r Request) (Request, error) {
	args := m.Called(r)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockDatabase) GetRequestByID(id int64) (Request, error) {
	args := m.Called(id)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockDatabase) GetRequestByEmailID(emailID int64) (Request, error) {
	args := m.Called(emailID)
	return args.Get(0).(Request), args.Error(1)
}

func (m *MockDatabase) UpdateRequest(r Request) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockDatabase) DeleteRequest(id int64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockDatabase) ListRequests(f RequestFilter) ([]Request, error) {
	args := m.Called(f)
	return args.Get(0).([]Request), args.Error(1)
}

func (m *MockDatabase) SetRequestRecipients(requestID int64, recipientIDs []int64) error {
	args := m.Called(requestID, recipientIDs)
	return args.Error(0)
}

func (m *MockDatabase) GetRequestRecipients(requestID int64) ([]Recipient, error) {
	args := m.Called(requestID)
	return args.Get(0).([]Recipient), args.Error(1)
}

func (m *MockDatabase) SetRequestNotified(requestID int64) error {
	args := m.Called(requestID)
	return args.Error(0)
}

func (m *MockDatabase) SaveNewEvent(e Event) (Event, error) {
	args := m.Called(e)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockDatabase) GetEventByID(id int64) (Event, error) {
	args := m.Called(id)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockDatabase) GetEventByEmailID(emailID int64) (Event, error) {
	args := m.Called(emailID)
	return args.Get(0).(Event), args.Error(1)
}

func (m *MockDatabase) GetEventsByRequestID(requestID int64) ([]Event, error) {
	args := m.Called(requestID)
	return args.Get(0).([]Event), args.Error(1)
}

func (m *MockDatabase) DeleteEvent(id int64) error {
	args := m.Called(id)
	return args.Error(0)
}

func (m *MockDatabase) SaveNewReminder(r Reminder) (Reminder, error) {
	args := m.Called(r)
	return args.Get(0).(Reminder), args.Error(1)
}

func (m *MockDatabase) GetReminderByRequestID(requestID int64) (Reminder, error) {
	args := m.Called(requestID)
	return args.Get(0).(Reminder), args.Error(1)
}

func (m *MockDatabase) UpdateReminder(r Reminder) error {
	args := m.Called(r)
	return args.Error(0)
}

func (m *MockDatabase) GetDueReminders(now time.Time) ([]Reminder, error) {
	args := m.Called(now)
	return args.Get(0).([]Reminder), args.Error(1)
}

func (m *MockDatabase) MarkRemindersSent(ids []int64, at time.Time) error {
	args := m.Called(ids, at)
	return args.Error(0)
}

func (m *MockDatabase) SaveNewProject(p Project) (Project, error) {
	args := m.Called(p)
	return args.Get(0).(Project), args.Error(1)
}

func (m *MockDatabase) GetProjectByID(id int64) (Project, error) {
	args := m.Called(id)
	return args.Get(0).(Project), args.Error(1)
}

func (m *MockDatabase) GetProjectBySlug(slug string) (Project, error) {
	args := m.Called(slug)
	return args.Get(0).(Project), args.Error(1)
}

func (m *MockDatabase) SlugExists(slug string) (bool, error) {
	args := m.Called(slug)
	return args.Bool(0), args.Error(1)
}

func (m *MockDatabase) SetProjectCollaborators(projectID int64, senderIDs []int64) error {
	args := m.Called(projectID, senderIDs)
	return args.Error(0)
}

func (m *MockDatabase) GetProjectCollaborators(projectID int64) ([]Sender, error) {
	args := m.Called(projectID)
	return args.Get(0).([]Sender), args.Error(1)
}

func (m *MockDatabase) GetProjectIDsBySender(senderID int64) ([]int64, error) {
	args := m.Called(senderID)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockDatabase) GetMatchCandidates() ([]matcher.Candidate, error) {
	args := m.Called()
	return args.Get(0).([]matcher.Candidate), args.Error(1)
}

var _ Database = &MockDatabase{}
