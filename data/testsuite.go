package data

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/newsapps/foiatracker/foia"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFunction is the signature for a testing function
type TestFunction = func(t *testing.T, db foia.Database)

// TestingFuncs contain the suite of funcs that a db implementation should be tested against
var TestingFuncs = []TestFunction{
	TestCreateSender,
	TestCreateRecipient,
	TestUpdateRecipient,
	TestSaveNewEmail,
	TestEmailRecipients,
	TestSetEmailProcessed,
	TestAttachments,
	TestSaveNewRequest,
	TestUpdateRequest,
	TestListRequests,
	TestRequestRecipients,
	TestEvents,
	TestReminders,
	TestDeleteRequest,
	TestProjects,
	TestGetMatchCandidates,
}

var day = time.Date(2019, time.March, 4, 0, 0, 0, 0, time.UTC)

// unique returns an address no other test in the suite uses
func unique(name string) string {
	return fmt.Sprintf("%s.%s@example.com", name, uuid.Must(uuid.NewRandom()).String()[:8])
}

func saveEmail(t *testing.T, db foia.Database, senderEmail, subject string) (foia.Sender, foia.InboundEmail) {
	s, err := db.CreateSender(foia.Sender{Email: senderEmail, FirstName: "Ada", LastName: "Lovelace"})
	require.NoError(t, err, "%v - failed to create sender", reflect.TypeOf(db))

	e, err := db.SaveNewEmail(foia.InboundEmail{
		UUID:     uuid.Must(uuid.NewRandom()).String(),
		Raw:      "raw",
		Text:     "text",
		HTML:     "<p>text</p>",
		Subject:  subject,
		Sent:     day.Add(9 * time.Hour),
		SenderID: s.ID,
	})
	require.NoError(t, err, "%v - failed to save email", reflect.TypeOf(db))

	return s, e
}

func saveRequest(t *testing.T, db foia.Database, e foia.InboundEmail, sent time.Time) foia.Request {
	r, err := db.SaveNewRequest(foia.Request{
		EmailID:   e.ID,
		Sent:      sent,
		Subject:   e.Subject,
		CreatedAt: foia.Now(),
	})
	require.NoError(t, err, "%v - failed to save request", reflect.TypeOf(db))
	return r
}

// TestCreateSender verifies that senders are created once per address regardless of case
func TestCreateSender(t *testing.T, db foia.Database) {
	email := unique("Sender")

	s, err := db.CreateSender(foia.Sender{Email: email, FirstName: "Ada", LastName: "Lovelace"})
	assert.NoError(t, err)
	assert.NotZero(t, s.ID)

	again, err := db.CreateSender(foia.Sender{Email: email, FirstName: "Someone", LastName: "Else"})
	assert.NoError(t, err)
	assert.Equal(t, s, again, "%v - TestCreateSender: second create should return the first sender", reflect.TypeOf(db))

	got, err := db.GetSenderByEmail(email)
	assert.NoError(t, err)
	assert.Equal(t, s, got)

	got, err = db.GetSenderByID(s.ID)
	assert.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.String())

	_, err = db.GetSenderByEmail(unique("nobody"))
	assert.Equal(t, foia.ErrNotFound, err)

	_, err = db.GetSenderByID(-1)
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestCreateRecipient verifies that recipients are created once per address
func TestCreateRecipient(t *testing.T, db foia.Database) {
	email := unique("records")

	r, err := db.CreateRecipient(foia.Recipient{Email: email})
	assert.NoError(t, err)
	assert.NotZero(t, r.ID)
	assert.False(t, r.HasRolodexMatch())

	again, err := db.CreateRecipient(foia.Recipient{Email: email, Name: "Ignored"})
	assert.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)
	assert.Equal(t, "", again.Name)

	got, err := db.GetRecipientByID(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = db.GetRecipientByID(-1)
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestUpdateRecipient verifies directory details can be stored on a recipient
func TestUpdateRecipient(t *testing.T, db foia.Database) {
	r, err := db.CreateRecipient(foia.Recipient{Email: unique("openrecords")})
	require.NoError(t, err)

	contact, person, org := int64(10), int64(20), int64(30)
	r.Name = "Jane Clerk"
	r.Organization = "City of Austin"
	r.RolodexContactID = &contact
	r.RolodexPersonID = &person
	r.RolodexOrganizationID = &org

	assert.NoError(t, db.UpdateRecipient(r))

	got, err := db.GetRecipientByEmail(r.Email)
	assert.NoError(t, err)
	assert.Equal(t, r, got)
	assert.True(t, got.HasRolodexMatch())

	all, err := db.ListRecipients()
	assert.NoError(t, err)
	assert.Contains(t, all, r)

	err = db.UpdateRecipient(foia.Recipient{ID: -1})
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestSaveNewEmail verifies emails round trip and uuids are unique
func TestSaveNewEmail(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Records about potholes")
	assert.NotZero(t, e.ID)

	got, err := db.GetEmailByID(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, e, got, "%v - TestSaveNewEmail: email not the same after retrieve", reflect.TypeOf(db))

	got, err = db.GetEmailByUUID(e.UUID)
	assert.NoError(t, err)
	assert.Equal(t, e, got)

	dup := e
	dup.ID = 0
	_, err = db.SaveNewEmail(dup)
	assert.Equal(t, foia.ErrDuplicate, err)

	_, err = db.GetEmailByUUID(uuid.Must(uuid.NewRandom()).String())
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestEmailRecipients verifies an email's recipients can be replaced
func TestEmailRecipients(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Budget")

	a, err := db.CreateRecipient(foia.Recipient{Email: unique("a")})
	require.NoError(t, err)
	b, err := db.CreateRecipient(foia.Recipient{Email: unique("b")})
	require.NoError(t, err)

	assert.NoError(t, db.SetEmailRecipients(e.ID, []int64{b.ID, a.ID, a.ID}))

	rs, err := db.GetEmailRecipients(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, []foia.Recipient{a, b}, rs)

	assert.NoError(t, db.SetEmailRecipients(e.ID, []int64{b.ID}))

	rs, err = db.GetEmailRecipients(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, []foia.Recipient{b}, rs)
}

// TestSetEmailProcessed verifies the processed flag is stored
func TestSetEmailProcessed(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Salaries")
	assert.False(t, e.Processed)

	assert.NoError(t, db.SetEmailProcessed(e.ID))

	got, err := db.GetEmailByID(e.ID)
	assert.NoError(t, err)
	assert.True(t, got.Processed)

	assert.Equal(t, foia.ErrNotFound, db.SetEmailProcessed(-1))
}

// TestAttachments verifies attachments are returned in the order they were saved
func TestAttachments(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Contracts")

	first, err := db.SaveAttachment(foia.Attachment{EmailID: e.ID, Key: "2019/03/a/letter.pdf", Filename: "letter.pdf",
		ContentType: "application/pdf", Size: 1024, URL: "https://files.example.com/2019/03/a/letter.pdf"})
	assert.NoError(t, err)
	assert.NotZero(t, first.ID)

	second, err := db.SaveAttachment(foia.Attachment{EmailID: e.ID, Key: "2019/03/b/data.csv", Filename: "data.csv",
		ContentType: "text/csv", Size: 12, URL: "https://files.example.com/2019/03/b/data.csv"})
	assert.NoError(t, err)

	as, err := db.GetAttachmentsByEmailID(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, []foia.Attachment{first, second}, as)

	as, err = db.GetAttachmentsByEmailID(-1)
	assert.NoError(t, err)
	assert.Empty(t, as)
}

// TestSaveNewRequest verifies requests round trip
func TestSaveNewRequest(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Police overtime")
	r := saveRequest(t, db, e, day)
	assert.NotZero(t, r.ID)

	got, err := db.GetRequestByID(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, r, got, "%v - TestSaveNewRequest: request not the same after retrieve", reflect.TypeOf(db))

	got, err = db.GetRequestByEmailID(e.ID)
	assert.NoError(t, err)
	assert.Equal(t, r, got)

	assert.NoError(t, db.SetRequestNotified(r.ID))
	got, err = db.GetRequestByID(r.ID)
	assert.NoError(t, err)
	assert.True(t, got.Notified)

	_, err = db.GetRequestByID(-1)
	assert.Equal(t, foia.ErrNotFound, err)

	_, err = db.GetRequestByEmailID(-1)
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestUpdateRequest verifies the editable fields of a request are stored
func TestUpdateRequest(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Jail records")
	r := saveRequest(t, db, e, day)

	p, err := db.SaveNewProject(foia.Project{Name: "Jails", Slug: "jails-" + uuid.Must(uuid.NewRandom()).String()[:8], CreatedAt: foia.Now()})
	require.NoError(t, err)

	r.Subject = "Jail intake records"
	r.Notes = "Follow up with the sheriff"
	r.AgencyID = "R012345"
	r.Sent = day.AddDate(0, 0, 1)
	r.ProjectID = &p.ID

	assert.NoError(t, db.UpdateRequest(r))

	got, err := db.GetRequestByID(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, r, got)

	r.ProjectID = nil
	assert.NoError(t, db.UpdateRequest(r))

	got, err = db.GetRequestByID(r.ID)
	assert.NoError(t, err)
	assert.Nil(t, got.ProjectID)

	assert.Equal(t, foia.ErrNotFound, db.UpdateRequest(foia.Request{ID: -1}))
}

// TestListRequests verifies filtering and ordering of requests
func TestListRequests(t *testing.T, db foia.Database) {
	sender := unique("lister")
	token := uuid.Must(uuid.NewRandom()).String()[:8]

	_, e1 := saveEmail(t, db, sender, "Older "+token)
	older := saveRequest(t, db, e1, day)

	_, e2 := saveEmail(t, db, sender, "Newer "+token)
	newer := saveRequest(t, db, e2, day.AddDate(0, 0, 2))

	_, e3 := saveEmail(t, db, unique("other"), "Unrelated")
	other := saveRequest(t, db, e3, day.AddDate(0, 0, 1))
	other.Notes = "mentions " + token
	require.NoError(t, db.UpdateRequest(other))

	rs, err := db.ListRequests(foia.RequestFilter{SenderEmail: sender})
	assert.NoError(t, err)
	assert.Equal(t, []int64{newer.ID, older.ID}, requestIDs(rs))

	rs, err = db.ListRequests(foia.RequestFilter{Search: token})
	assert.NoError(t, err)
	assert.Equal(t, []int64{newer.ID, other.ID, older.ID}, requestIDs(rs))

	rs, err = db.ListRequests(foia.RequestFilter{SenderEmail: sender, Search: "OLDER " + token})
	assert.NoError(t, err)
	assert.Equal(t, []int64{older.ID}, requestIDs(rs))

	p, err := db.SaveNewProject(foia.Project{Name: "Listing", Slug: "listing-" + token, CreatedAt: foia.Now()})
	require.NoError(t, err)
	older.ProjectID = &p.ID
	require.NoError(t, db.UpdateRequest(older))

	rs, err = db.ListRequests(foia.RequestFilter{ProjectID: &p.ID})
	assert.NoError(t, err)
	assert.Equal(t, []int64{older.ID}, requestIDs(rs))

	rs, err = db.ListRequests(foia.RequestFilter{SenderEmail: unique("nobody")})
	assert.NoError(t, err)
	assert.Empty(t, rs)
}

func requestIDs(rs []foia.Request) []int64 {
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

// TestRequestRecipients verifies a request's recipients can be replaced
func TestRequestRecipients(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Emails")
	r := saveRequest(t, db, e, day)

	rs, err := db.GetRequestRecipients(r.ID)
	assert.NoError(t, err)
	assert.Empty(t, rs)

	a, err := db.CreateRecipient(foia.Recipient{Email: unique("clerk")})
	require.NoError(t, err)

	assert.NoError(t, db.SetRequestRecipients(r.ID, []int64{a.ID}))

	rs, err = db.GetRequestRecipients(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, []foia.Recipient{a}, rs)

	assert.NoError(t, db.SetRequestRecipients(r.ID, nil))

	rs, err = db.GetRequestRecipients(r.ID)
	assert.NoError(t, err)
	assert.Empty(t, rs)
}

// TestEvents verifies events round trip and are returned latest first
func TestEvents(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Inspections")
	r := saveRequest(t, db, e, day)

	_, reply := saveEmail(t, db, unique("agency"), "RE: Inspections")

	created := foia.Now()
	kicked, err := db.SaveNewEvent(foia.Event{
		RequestID:   r.ID,
		EmailID:     &reply.ID,
		Status:      foia.Kicked,
		UpdateDate:  day.AddDate(0, 0, 5),
		AmountAsked: decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		Notes:       "sent to the AG",
		CreatedAt:   created,
	})
	assert.NoError(t, err)
	assert.NotZero(t, kicked.ID)

	released, err := db.SaveNewEvent(foia.Event{
		RequestID:  r.ID,
		Status:     foia.ReleasedByAgency,
		UpdateDate: day.AddDate(0, 0, 9),
		CreatedAt:  created,
	})
	assert.NoError(t, err)

	sameDay, err := db.SaveNewEvent(foia.Event{
		RequestID:  r.ID,
		Status:     foia.PartiallyReleasedByAgency,
		UpdateDate: day.AddDate(0, 0, 9),
		CreatedAt:  created.Add(time.Minute),
	})
	assert.NoError(t, err)

	got, err := db.GetEventByID(kicked.ID)
	assert.NoError(t, err)
	assertEventEqual(t, kicked, got)

	got, err = db.GetEventByEmailID(reply.ID)
	assert.NoError(t, err)
	assert.Equal(t, kicked.ID, got.ID)

	es, err := db.GetEventsByRequestID(r.ID)
	assert.NoError(t, err)
	if assert.Len(t, es, 3) {
		assert.Equal(t, sameDay.ID, es[0].ID)
		assert.Equal(t, released.ID, es[1].ID)
		assert.Equal(t, kicked.ID, es[2].ID)
		assert.False(t, es[1].AmountAsked.Valid)
	}

	assert.NoError(t, db.DeleteEvent(sameDay.ID))
	_, err = db.GetEventByID(sameDay.ID)
	assert.Equal(t, foia.ErrNotFound, err)
	assert.Equal(t, foia.ErrNotFound, db.DeleteEvent(sameDay.ID))

	_, err = db.GetEventByEmailID(-1)
	assert.Equal(t, foia.ErrNotFound, err)
}

func assertEventEqual(t *testing.T, want, got foia.Event) {
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RequestID, got.RequestID)
	assert.Equal(t, want.EmailID, got.EmailID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.UpdateDate, got.UpdateDate)
	assert.Equal(t, want.Notes, got.Notes)
	assert.Equal(t, want.CreatedAt, got.CreatedAt)
	assert.Equal(t, want.AmountAsked.Valid, got.AmountAsked.Valid)
	assert.True(t, want.AmountAsked.Decimal.Equal(got.AmountAsked.Decimal), "amount asked: want %v got %v", want.AmountAsked.Decimal, got.AmountAsked.Decimal)
	assert.Equal(t, want.AmountPaid.Valid, got.AmountPaid.Valid)
	assert.True(t, want.AmountPaid.Decimal.Equal(got.AmountPaid.Decimal), "amount paid: want %v got %v", want.AmountPaid.Decimal, got.AmountPaid.Decimal)
}

// TestReminders verifies reminders become due and are only marked sent once
func TestReminders(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Payroll")
	r := saveRequest(t, db, e, day)

	now := time.Date(2019, time.March, 18, 15, 0, 0, 0, time.UTC)

	due, err := db.SaveNewReminder(foia.Reminder{RequestID: r.ID, ScheduledTime: now.Add(-time.Hour)})
	assert.NoError(t, err)

	got, err := db.GetReminderByRequestID(r.ID)
	assert.NoError(t, err)
	assert.Equal(t, due, got)

	_, e2 := saveEmail(t, db, unique("reporter"), "Later")
	r2 := saveRequest(t, db, e2, day)
	later, err := db.SaveNewReminder(foia.Reminder{RequestID: r2.ID, ScheduledTime: now.Add(time.Hour)})
	assert.NoError(t, err)

	rs, err := db.GetDueReminders(now)
	assert.NoError(t, err)
	assert.Contains(t, reminderIDs(rs), due.ID)
	assert.NotContains(t, reminderIDs(rs), later.ID)

	sentAt := now.Add(time.Minute)
	assert.NoError(t, db.MarkRemindersSent([]int64{due.ID}, sentAt))
	assert.NoError(t, db.MarkRemindersSent([]int64{due.ID}, sentAt.Add(time.Hour)))
	assert.NoError(t, db.MarkRemindersSent(nil, sentAt))

	got, err = db.GetReminderByRequestID(r.ID)
	assert.NoError(t, err)
	if assert.NotNil(t, got.SentTime) {
		assert.Equal(t, sentAt, *got.SentTime)
	}

	rs, err = db.GetDueReminders(now)
	assert.NoError(t, err)
	assert.NotContains(t, reminderIDs(rs), due.ID)

	later.ScheduledTime = now.Add(-2 * time.Hour)
	assert.NoError(t, db.UpdateReminder(later))

	rs, err = db.GetDueReminders(now)
	assert.NoError(t, err)
	assert.Contains(t, reminderIDs(rs), later.ID)

	_, err = db.GetReminderByRequestID(-1)
	assert.Equal(t, foia.ErrNotFound, err)
	assert.Equal(t, foia.ErrNotFound, db.UpdateReminder(foia.Reminder{ID: -1, ScheduledTime: now}))
}

func reminderIDs(rs []foia.Reminder) []int64 {
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

// TestDeleteRequest verifies a request's events, reminders and recipients go with it
func TestDeleteRequest(t *testing.T, db foia.Database) {
	_, e := saveEmail(t, db, unique("reporter"), "Doomed")
	r := saveRequest(t, db, e, day)

	ev, err := db.SaveNewEvent(foia.Event{RequestID: r.ID, Status: foia.Withdrawn, UpdateDate: day, CreatedAt: foia.Now()})
	require.NoError(t, err)
	_, err = db.SaveNewReminder(foia.Reminder{RequestID: r.ID, ScheduledTime: day})
	require.NoError(t, err)
	rcpt, err := db.CreateRecipient(foia.Recipient{Email: unique("clerk")})
	require.NoError(t, err)
	require.NoError(t, db.SetRequestRecipients(r.ID, []int64{rcpt.ID}))

	assert.NoError(t, db.DeleteRequest(r.ID))

	_, err = db.GetRequestByID(r.ID)
	assert.Equal(t, foia.ErrNotFound, err)
	_, err = db.GetEventByID(ev.ID)
	assert.Equal(t, foia.ErrNotFound, err)
	_, err = db.GetReminderByRequestID(r.ID)
	assert.Equal(t, foia.ErrNotFound, err)

	rs, err := db.GetRequestRecipients(r.ID)
	assert.NoError(t, err)
	assert.Empty(t, rs)

	// the email and recipient outlive the request
	_, err = db.GetEmailByID(e.ID)
	assert.NoError(t, err)
	_, err = db.GetRecipientByID(rcpt.ID)
	assert.NoError(t, err)

	assert.Equal(t, foia.ErrNotFound, db.DeleteRequest(r.ID))
}

// TestProjects verifies projects, slugs and collaborators
func TestProjects(t *testing.T, db foia.Database) {
	slug := "city-hall-" + uuid.Must(uuid.NewRandom()).String()[:8]

	exists, err := db.SlugExists(slug)
	assert.NoError(t, err)
	assert.False(t, exists)

	p, err := db.SaveNewProject(foia.Project{Name: "City Hall", Description: "Council records", Slug: slug, CreatedAt: foia.Now()})
	assert.NoError(t, err)
	assert.NotZero(t, p.ID)

	exists, err = db.SlugExists(slug)
	assert.NoError(t, err)
	assert.True(t, exists)

	got, err := db.GetProjectByID(p.ID)
	assert.NoError(t, err)
	assert.Equal(t, p, got)

	got, err = db.GetProjectBySlug(slug)
	assert.NoError(t, err)
	assert.Equal(t, p, got)

	_, err = db.SaveNewProject(foia.Project{Name: "City Hall", Slug: slug, CreatedAt: foia.Now()})
	assert.Equal(t, foia.ErrDuplicate, err)

	zed, err := db.CreateSender(foia.Sender{Email: unique("zed"), FirstName: "Zed", LastName: "Zimmer"})
	require.NoError(t, err)
	amy, err := db.CreateSender(foia.Sender{Email: unique("amy"), FirstName: "Amy", LastName: "Adams"})
	require.NoError(t, err)

	assert.NoError(t, db.SetProjectCollaborators(p.ID, []int64{zed.ID, amy.ID}))

	ss, err := db.GetProjectCollaborators(p.ID)
	assert.NoError(t, err)
	assert.Equal(t, []foia.Sender{amy, zed}, ss)

	ids, err := db.GetProjectIDsBySender(amy.ID)
	assert.NoError(t, err)
	assert.Equal(t, []int64{p.ID}, ids)

	assert.NoError(t, db.SetProjectCollaborators(p.ID, []int64{zed.ID}))

	ids, err = db.GetProjectIDsBySender(amy.ID)
	assert.NoError(t, err)
	assert.Empty(t, ids)

	_, err = db.GetProjectBySlug("missing-" + slug)
	assert.Equal(t, foia.ErrNotFound, err)
}

// TestGetMatchCandidates verifies candidates carry their request's sender
func TestGetMatchCandidates(t *testing.T, db foia.Database) {
	s, e := saveEmail(t, db, unique("matcher"), "Water quality tests")
	r := saveRequest(t, db, e, day)

	cs, err := db.GetMatchCandidates()
	assert.NoError(t, err)

	var found bool
	for _, c := range cs {
		if c.RequestID != r.ID {
			continue
		}

		found = true
		assert.Equal(t, "Water quality tests", c.Subject)
		assert.Equal(t, day, c.Sent)
		assert.Equal(t, s.ID, c.SenderID)
		assert.Equal(t, "Lovelace", c.SenderLastName)
		assert.Nil(t, c.ProjectID)
	}

	assert.True(t, found, "%v - TestGetMatchCandidates: request %v missing from candidates", reflect.TypeOf(db), r.ID)
}
