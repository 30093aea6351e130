package sqldb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/newsapps/foiatracker/foia"
	"github.com/newsapps/foiatracker/matcher"
	"github.com/pkg/errors"
)

var _ foia.Database = &SQLDatabase{}

// Dialect holds what differs between the sql engines we run on
type Dialect struct {
	// Types replaces the {{id}}, {{time}} and {{decimal}} markers in the schema
	Types *strings.Replacer
	// IsUniqueViolation reports whether err came from a unique constraint
	IsUniqueViolation func(err error) bool
	// MaxOpenConns limits the pool when the engine can't handle concurrent writers. Zero means no limit.
	MaxOpenConns int
}

// SQLDatabase implements the database interface for sqldb
type SQLDatabase struct {
	*sqlx.DB
	dialect Dialect
}

// New opens a db or panics
func New(driver, dbURL string, d Dialect) *SQLDatabase {
	db := sqlx.MustOpen(driver, dbURL)
	if d.MaxOpenConns > 0 {
		db.SetMaxOpenConns(d.MaxOpenConns)
	}

	return &SQLDatabase{DB: db, dialect: d}
}

// Wrap returns a SQLDatabase using an existing connection
func Wrap(db *sqlx.DB, d Dialect) *SQLDatabase {
	return &SQLDatabase{DB: db, dialect: d}
}

const schema = `create table if not exists sender (
	id {{id}},
	email text not null unique,
	first_name text not null default '',
	last_name text not null default ''
);

create table if not exists recipient (
	id {{id}},
	email text not null unique,
	name text not null default '',
	organization text not null default '',
	rolodex_contact_id bigint,
	rolodex_person_id bigint,
	rolodex_organization_id bigint
);

create table if not exists inbound_email (
	id {{id}},
	uuid text not null unique,
	raw text not null default '',
	text text not null default '',
	html text not null default '',
	subject text not null default '',
	sent {{time}} not null,
	sender_id bigint not null references sender(id),
	processed boolean not null default false
);

create table if not exists email_recipient (
	email_id bigint not null references inbound_email(id) on delete cascade,
	recipient_id bigint not null references recipient(id) on delete cascade,
	primary key (email_id, recipient_id)
);

create table if not exists attachment (
	id {{id}},
	email_id bigint not null references inbound_email(id) on delete cascade,
	storage_key text not null,
	filename text not null default '',
	content_type text not null default '',
	size bigint not null default 0,
	url text not null default ''
);

create table if not exists project (
	id {{id}},
	name text not null,
	description text not null default '',
	slug text not null unique,
	created_at {{time}} not null
);

create table if not exists project_collaborator (
	project_id bigint not null references project(id) on delete cascade,
	sender_id bigint not null references sender(id) on delete cascade,
	primary key (project_id, sender_id)
);

create table if not exists request (
	id {{id}},
	email_id bigint not null references inbound_email(id) on delete cascade,
	sent {{time}} not null,
	subject text not null,
	notes text not null default '',
	notified boolean not null default false,
	project_id bigint references project(id) on delete set null,
	agency_id text not null default '',
	created_at {{time}} not null
);

create table if not exists request_recipient (
	request_id bigint not null references request(id) on delete cascade,
	recipient_id bigint not null references recipient(id) on delete cascade,
	primary key (request_id, recipient_id)
);

create table if not exists event (
	id {{id}},
	request_id bigint not null references request(id) on delete cascade,
	email_id bigint references inbound_email(id) on delete cascade,
	status text not null,
	update_date {{time}} not null,
	amount_asked {{decimal}},
	amount_paid {{decimal}},
	notes text not null default '',
	created_at {{time}} not null
);

create table if not exists reminder (
	id {{id}},
	request_id bigint not null references request(id) on delete cascade,
	scheduled_time {{time}} not null,
	sent_time {{time}}
);`

// Start creates the database tables
func (s *SQLDatabase) Start() error {
	for _, stmt := range strings.Split(s.dialect.Types.Replace(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}

		if _, err := s.Exec(stmt); err != nil {
			return errors.Wrap(err, "SQLDatabase.Start: failed to create tables")
		}
	}

	return nil
}

const (
	senderCols     = "id, email, first_name, last_name"
	recipientCols  = "id, email, name, organization, rolodex_contact_id, rolodex_person_id, rolodex_organization_id"
	emailCols      = "id, uuid, raw, text, html, subject, sent, sender_id, processed"
	attachmentCols = "id, email_id, storage_key, filename, content_type, size, url"
	requestCols    = "id, email_id, sent, subject, notes, notified, project_id, agency_id, created_at"
	eventCols      = "id, request_id, email_id, status, update_date, amount_asked, amount_paid, notes, created_at"
	reminderCols   = "id, request_id, scheduled_time, sent_time"
	projectCols    = "id, name, description, slug, created_at"
)

// notFound turns sql.ErrNoRows into foia.ErrNotFound
func notFound(err error) error {
	if err == sql.ErrNoRows {
		return foia.ErrNotFound
	}
	return err
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return foia.ErrNotFound
	}
	return nil
}

func (s *SQLDatabase) duplicate(err error) error {
	if err != nil && s.dialect.IsUniqueViolation != nil && s.dialect.IsUniqueViolation(err) {
		return foia.ErrDuplicate
	}
	return err
}

// GetSenderByEmail finds a sender ignoring case
func (s *SQLDatabase) GetSenderByEmail(email string) (foia.Sender, error) {
	var sender foia.Sender
	err := s.Get(&sender, "SELECT "+senderCols+" FROM sender WHERE lower(email) = lower($1)", email)
	return sender, notFound(err)
}

// GetSenderByID gets a sender
func (s *SQLDatabase) GetSenderByID(id int64) (foia.Sender, error) {
	var sender foia.Sender
	err := s.Get(&sender, "SELECT "+senderCols+" FROM sender WHERE id = $1", id)
	return sender, notFound(err)
}

// CreateSender inserts a sender unless the email is taken, then reads back whichever row won
func (s *SQLDatabase) CreateSender(sender foia.Sender) (foia.Sender, error) {
	email := strings.ToLower(sender.Email)

	_, err := s.Exec("INSERT INTO sender (email, first_name, last_name) VALUES ($1, $2, $3) ON CONFLICT (email) DO NOTHING",
		email, sender.FirstName, sender.LastName)
	if err != nil {
		return foia.Sender{}, errors.Wrap(err, "SQLDatabase.CreateSender: failed to insert")
	}

	return s.GetSenderByEmail(email)
}

// GetRecipientByEmail finds a recipient ignoring case
func (s *SQLDatabase) GetRecipientByEmail(email string) (foia.Recipient, error) {
	var r foia.Recipient
	err := s.Get(&r, "SELECT "+recipientCols+" FROM recipient WHERE lower(email) = lower($1)", email)
	return r, notFound(err)
}

// GetRecipientByID gets a recipient
func (s *SQLDatabase) GetRecipientByID(id int64) (foia.Recipient, error) {
	var r foia.Recipient
	err := s.Get(&r, "SELECT "+recipientCols+" FROM recipient WHERE id = $1", id)
	return r, notFound(err)
}

// CreateRecipient inserts a recipient unless the email is taken, then reads back whichever row won
func (s *SQLDatabase) CreateRecipient(r foia.Recipient) (foia.Recipient, error) {
	email := strings.ToLower(r.Email)

	_, err := s.Exec(`INSERT INTO recipient (email, name, organization, rolodex_contact_id, rolodex_person_id, rolodex_organization_id)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (email) DO NOTHING`,
		email, r.Name, r.Organization, r.RolodexContactID, r.RolodexPersonID, r.RolodexOrganizationID)
	if err != nil {
		return foia.Recipient{}, errors.Wrap(err, "SQLDatabase.CreateRecipient: failed to insert")
	}

	return s.GetRecipientByEmail(email)
}

// UpdateRecipient overwrites a recipient's name, organization and directory ids
func (s *SQLDatabase) UpdateRecipient(r foia.Recipient) error {
	return mustAffect(s.Exec(`UPDATE recipient SET name = $1, organization = $2, rolodex_contact_id = $3,
		rolodex_person_id = $4, rolodex_organization_id = $5 WHERE id = $6`,
		r.Name, r.Organization, r.RolodexContactID, r.RolodexPersonID, r.RolodexOrganizationID, r.ID))
}

// ListRecipients returns every recipient ordered by email
func (s *SQLDatabase) ListRecipients() ([]foia.Recipient, error) {
	rs := []foia.Recipient{}
	err := s.Select(&rs, "SELECT "+recipientCols+" FROM recipient ORDER BY email")
	return rs, err
}

// SaveNewEmail saves an inbound email and returns it with its id set
func (s *SQLDatabase) SaveNewEmail(e foia.InboundEmail) (foia.InboundEmail, error) {
	err := s.Get(&e.ID, `INSERT INTO inbound_email (uuid, raw, text, html, subject, sent, sender_id, processed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.UUID, e.Raw, e.Text, e.HTML, e.Subject, e.Sent.UTC(), e.SenderID, e.Processed)
	if err != nil {
		return foia.InboundEmail{}, s.duplicate(err)
	}
	return e, nil
}

// GetEmailByID gets an email
func (s *SQLDatabase) GetEmailByID(id int64) (foia.InboundEmail, error) {
	var e foia.InboundEmail
	err := s.Get(&e, "SELECT "+emailCols+" FROM inbound_email WHERE id = $1", id)
	e.Sent = e.Sent.UTC()
	return e, notFound(err)
}

// GetEmailByUUID gets an email by its public id
func (s *SQLDatabase) GetEmailByUUID(uuid string) (foia.InboundEmail, error) {
	var e foia.InboundEmail
	err := s.Get(&e, "SELECT "+emailCols+" FROM inbound_email WHERE uuid = $1", uuid)
	e.Sent = e.Sent.UTC()
	return e, notFound(err)
}

// SetEmailRecipients replaces the recipients of an email
func (s *SQLDatabase) SetEmailRecipients(emailID int64, recipientIDs []int64) error {
	return s.replaceLinks("email_recipient", "email_id", "recipient_id", emailID, recipientIDs)
}

// GetEmailRecipients returns the recipients of an email ordered by email
func (s *SQLDatabase) GetEmailRecipients(emailID int64) ([]foia.Recipient, error) {
	rs := []foia.Recipient{}
	err := s.Select(&rs, `SELECT r.id, r.email, r.name, r.organization, r.rolodex_contact_id, r.rolodex_person_id, r.rolodex_organization_id
		FROM recipient r JOIN email_recipient er ON er.recipient_id = r.id WHERE er.email_id = $1 ORDER BY r.email`, emailID)
	return rs, err
}

// SetEmailProcessed flags an email as classified
func (s *SQLDatabase) SetEmailProcessed(emailID int64) error {
	return mustAffect(s.Exec("UPDATE inbound_email SET processed = $1 WHERE id = $2", true, emailID))
}

// SaveAttachment saves attachment metadata
func (s *SQLDatabase) SaveAttachment(a foia.Attachment) (foia.Attachment, error) {
	err := s.Get(&a.ID, `INSERT INTO attachment (email_id, storage_key, filename, content_type, size, url)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		a.EmailID, a.Key, a.Filename, a.ContentType, a.Size, a.URL)
	return a, err
}

// GetAttachmentsByEmailID returns an email's attachments in the order they were saved
func (s *SQLDatabase) GetAttachmentsByEmailID(emailID int64) ([]foia.Attachment, error) {
	as := []foia.Attachment{}
	err := s.Select(&as, "SELECT "+attachmentCols+" FROM attachment WHERE email_id = $1 ORDER BY id", emailID)
	return as, err
}

func utcRequest(r foia.Request) foia.Request {
	r.Sent = r.Sent.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	return r
}

// SaveNewRequest saves a request and returns it with its id set
func (s *SQLDatabase) SaveNewRequest(r foia.Request) (foia.Request, error) {
	err := s.Get(&r.ID, `INSERT INTO request (email_id, sent, subject, notes, notified, project_id, agency_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		r.EmailID, r.Sent.UTC(), r.Subject, r.Notes, r.Notified, r.ProjectID, r.AgencyID, r.CreatedAt.UTC())
	return r, err
}

// GetRequestByID gets a request
func (s *SQLDatabase) GetRequestByID(id int64) (foia.Request, error) {
	var r foia.Request
	err := s.Get(&r, "SELECT "+requestCols+" FROM request WHERE id = $1", id)
	return utcRequest(r), notFound(err)
}

// GetRequestByEmailID gets the request created from an email
func (s *SQLDatabase) GetRequestByEmailID(emailID int64) (foia.Request, error) {
	var r foia.Request
	err := s.Get(&r, "SELECT "+requestCols+" FROM request WHERE email_id = $1 ORDER BY id LIMIT 1", emailID)
	return utcRequest(r), notFound(err)
}

// UpdateRequest replaces the editable fields of a request
func (s *SQLDatabase) UpdateRequest(r foia.Request) error {
	return mustAffect(s.Exec("UPDATE request SET sent = $1, subject = $2, notes = $3, project_id = $4, agency_id = $5 WHERE id = $6",
		r.Sent.UTC(), r.Subject, r.Notes, r.ProjectID, r.AgencyID, r.ID))
}

// DeleteRequest removes a request with its events, reminders and recipients
func (s *SQLDatabase) DeleteRequest(id int64) error {
	tx, err := s.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint: errcheck

	for _, q := range []string{
		"DELETE FROM event WHERE request_id = $1",
		"DELETE FROM reminder WHERE request_id = $1",
		"DELETE FROM request_recipient WHERE request_id = $1",
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return errors.Wrap(err, "SQLDatabase.DeleteRequest: failed to delete related rows")
		}
	}

	if err := mustAffect(tx.Exec("DELETE FROM request WHERE id = $1", id)); err != nil {
		return err
	}

	return tx.Commit()
}

// ListRequests returns requests matching f, newest sent first
func (s *SQLDatabase) ListRequests(f foia.RequestFilter) ([]foia.Request, error) {
	var where []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.SenderEmail != "" {
		where = append(where, "lower(s.email) = lower("+arg(f.SenderEmail)+")")
	}

	if f.ProjectID != nil {
		where = append(where, "r.project_id = "+arg(*f.ProjectID))
	}

	if f.Search != "" {
		p := arg("%" + strings.ToLower(f.Search) + "%")
		where = append(where, fmt.Sprintf("(lower(r.subject) LIKE %[1]s OR lower(r.notes) LIKE %[1]s OR lower(r.agency_id) LIKE %[1]s)", p))
	}

	q := `SELECT r.id, r.email_id, r.sent, r.subject, r.notes, r.notified, r.project_id, r.agency_id, r.created_at
		FROM request r JOIN inbound_email e ON e.id = r.email_id JOIN sender s ON s.id = e.sender_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY r.sent DESC, r.created_at DESC, r.id DESC"

	rs := []foia.Request{}
	if err := s.Select(&rs, q, args...); err != nil {
		return nil, err
	}

	for i := range rs {
		rs[i] = utcRequest(rs[i])
	}
	return rs, nil
}

// SetRequestRecipients replaces the recipients of a request
func (s *SQLDatabase) SetRequestRecipients(requestID int64, recipientIDs []int64) error {
	return s.replaceLinks("request_recipient", "request_id", "recipient_id", requestID, recipientIDs)
}

// GetRequestRecipients returns the recipients of a request ordered by email
func (s *SQLDatabase) GetRequestRecipients(requestID int64) ([]foia.Recipient, error) {
	rs := []foia.Recipient{}
	err := s.Select(&rs, `SELECT r.id, r.email, r.name, r.organization, r.rolodex_contact_id, r.rolodex_person_id, r.rolodex_organization_id
		FROM recipient r JOIN request_recipient rr ON rr.recipient_id = r.id WHERE rr.request_id = $1 ORDER BY r.email`, requestID)
	return rs, err
}

// SetRequestNotified flags that the chat announcement went out
func (s *SQLDatabase) SetRequestNotified(requestID int64) error {
	return mustAffect(s.Exec("UPDATE request SET notified = $1 WHERE id = $2", true, requestID))
}

func utcEvent(e foia.Event) foia.Event {
	e.UpdateDate = e.UpdateDate.UTC()
	e.CreatedAt = e.CreatedAt.UTC()
	return e
}

// SaveNewEvent saves an event and returns it with its id set
func (s *SQLDatabase) SaveNewEvent(e foia.Event) (foia.Event, error) {
	err := s.Get(&e.ID, `INSERT INTO event (request_id, email_id, status, update_date, amount_asked, amount_paid, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		e.RequestID, e.EmailID, e.Status, e.UpdateDate.UTC(), e.AmountAsked, e.AmountPaid, e.Notes, e.CreatedAt.UTC())
	return e, err
}

// GetEventByID gets an event
func (s *SQLDatabase) GetEventByID(id int64) (foia.Event, error) {
	var e foia.Event
	err := s.Get(&e, "SELECT "+eventCols+" FROM event WHERE id = $1", id)
	return utcEvent(e), notFound(err)
}

// GetEventByEmailID gets the event created from an email
func (s *SQLDatabase) GetEventByEmailID(emailID int64) (foia.Event, error) {
	var e foia.Event
	err := s.Get(&e, "SELECT "+eventCols+" FROM event WHERE email_id = $1 ORDER BY id LIMIT 1", emailID)
	return utcEvent(e), notFound(err)
}

// GetEventsByRequestID returns a request's events, latest first
func (s *SQLDatabase) GetEventsByRequestID(requestID int64) ([]foia.Event, error) {
	es := []foia.Event{}
	err := s.Select(&es, "SELECT "+eventCols+" FROM event WHERE request_id = $1 ORDER BY update_date DESC, created_at DESC, id DESC", requestID)
	for i := range es {
		es[i] = utcEvent(es[i])
	}
	return es, err
}

// DeleteEvent removes an event
func (s *SQLDatabase) DeleteEvent(id int64) error {
	return mustAffect(s.Exec("DELETE FROM event WHERE id = $1", id))
}

func utcReminder(r foia.Reminder) foia.Reminder {
	r.ScheduledTime = r.ScheduledTime.UTC()
	if r.SentTime != nil {
		sent := r.SentTime.UTC()
		r.SentTime = &sent
	}
	return r
}

// SaveNewReminder saves a reminder and returns it with its id set
func (s *SQLDatabase) SaveNewReminder(r foia.Reminder) (foia.Reminder, error) {
	var sent *time.Time
	if r.SentTime != nil {
		t := r.SentTime.UTC()
		sent = &t
	}

	err := s.Get(&r.ID, "INSERT INTO reminder (request_id, scheduled_time, sent_time) VALUES ($1, $2, $3) RETURNING id",
		r.RequestID, r.ScheduledTime.UTC(), sent)
	return r, err
}

// GetReminderByRequestID returns the request's earliest reminder
func (s *SQLDatabase) GetReminderByRequestID(requestID int64) (foia.Reminder, error) {
	var r foia.Reminder
	err := s.Get(&r, "SELECT "+reminderCols+" FROM reminder WHERE request_id = $1 ORDER BY id LIMIT 1", requestID)
	return utcReminder(r), notFound(err)
}

// UpdateReminder overwrites a reminder's schedule and sent time
func (s *SQLDatabase) UpdateReminder(r foia.Reminder) error {
	var sent *time.Time
	if r.SentTime != nil {
		t := r.SentTime.UTC()
		sent = &t
	}

	return mustAffect(s.Exec("UPDATE reminder SET scheduled_time = $1, sent_time = $2 WHERE id = $3",
		r.ScheduledTime.UTC(), sent, r.ID))
}

// GetDueReminders returns unsent reminders scheduled at or before now, oldest first
func (s *SQLDatabase) GetDueReminders(now time.Time) ([]foia.Reminder, error) {
	rs := []foia.Reminder{}
	err := s.Select(&rs, "SELECT "+reminderCols+" FROM reminder WHERE sent_time IS NULL AND scheduled_time <= $1 ORDER BY id", now.UTC())
	for i := range rs {
		rs[i] = utcReminder(rs[i])
	}
	return rs, err
}

// MarkRemindersSent sets the sent time on every given reminder that hasn't been sent in one statement
func (s *SQLDatabase) MarkRemindersSent(ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	q, args, err := sqlx.In("UPDATE reminder SET sent_time = ? WHERE sent_time IS NULL AND id IN (?)", at.UTC(), ids)
	if err != nil {
		return errors.Wrap(err, "SQLDatabase.MarkRemindersSent: failed to build query")
	}

	_, err = s.Exec(s.Rebind(q), args...)
	return err
}

// SaveNewProject saves a project. Slugs must be unique.
func (s *SQLDatabase) SaveNewProject(p foia.Project) (foia.Project, error) {
	err := s.Get(&p.ID, "INSERT INTO project (name, description, slug, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		p.Name, p.Description, p.Slug, p.CreatedAt.UTC())
	if err != nil {
		return foia.Project{}, s.duplicate(err)
	}
	return p, nil
}

// GetProjectByID gets a project
func (s *SQLDatabase) GetProjectByID(id int64) (foia.Project, error) {
	var p foia.Project
	err := s.Get(&p, "SELECT "+projectCols+" FROM project WHERE id = $1", id)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, notFound(err)
}

// GetProjectBySlug gets a project by its slug
func (s *SQLDatabase) GetProjectBySlug(slug string) (foia.Project, error) {
	var p foia.Project
	err := s.Get(&p, "SELECT "+projectCols+" FROM project WHERE slug = $1", slug)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, notFound(err)
}

// SlugExists reports whether a project already uses slug
func (s *SQLDatabase) SlugExists(slug string) (bool, error) {
	var count int
	err := s.Get(&count, "SELECT COUNT(*) FROM project WHERE slug = $1", slug)
	return count > 0, err
}

// SetProjectCollaborators replaces the collaborators on a project
func (s *SQLDatabase) SetProjectCollaborators(projectID int64, senderIDs []int64) error {
	return s.replaceLinks("project_collaborator", "project_id", "sender_id", projectID, senderIDs)
}

// GetProjectCollaborators returns a project's collaborators ordered by last then first name
func (s *SQLDatabase) GetProjectCollaborators(projectID int64) ([]foia.Sender, error) {
	ss := []foia.Sender{}
	err := s.Select(&ss, `SELECT s.id, s.email, s.first_name, s.last_name FROM sender s
		JOIN project_collaborator pc ON pc.sender_id = s.id WHERE pc.project_id = $1 ORDER BY s.last_name, s.first_name`, projectID)
	return ss, err
}

// GetProjectIDsBySender returns the projects a sender collaborates on
func (s *SQLDatabase) GetProjectIDsBySender(senderID int64) ([]int64, error) {
	ids := []int64{}
	err := s.Select(&ids, "SELECT project_id FROM project_collaborator WHERE sender_id = $1 ORDER BY project_id", senderID)
	return ids, err
}

// GetMatchCandidates returns every request with its sender, newest sent first
func (s *SQLDatabase) GetMatchCandidates() ([]matcher.Candidate, error) {
	cs := []matcher.Candidate{}
	err := s.Select(&cs, `SELECT r.id AS request_id, r.subject, r.sent, s.id AS sender_id, s.last_name AS sender_last_name, r.project_id
		FROM request r JOIN inbound_email e ON e.id = r.email_id JOIN sender s ON s.id = e.sender_id
		ORDER BY r.sent DESC, r.created_at DESC, r.id DESC`)
	for i := range cs {
		cs[i].Sent = cs[i].Sent.UTC()
	}
	return cs, err
}

// replaceLinks swaps the rows of a join table for owner in one transaction
func (s *SQLDatabase) replaceLinks(table, ownerCol, otherCol string, owner int64, ids []int64) error {
	tx, err := s.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback() // nolint: errcheck

	if _, err := tx.Exec(fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, ownerCol), owner); err != nil {
		return errors.Wrapf(err, "SQLDatabase: failed to clear %v", table)
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES ($1, $2) ON CONFLICT DO NOTHING", table, ownerCol, otherCol)
	for _, id := range ids {
		if _, err := tx.Exec(insert, owner, id); err != nil {
			return errors.Wrapf(err, "SQLDatabase: failed to link %v", table)
		}
	}

	return tx.Commit()
}
