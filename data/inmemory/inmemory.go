package inmemory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/newsapps/foiatracker/foia"
	"github.com/newsapps/foiatracker/matcher"
)

var _ foia.Database = &InMemory{}

// InMemory implements an in memory database
type InMemory struct {
	senders     map[int64]foia.Sender
	recipients  map[int64]foia.Recipient
	emails      map[int64]foia.InboundEmail
	attachments map[int64]foia.Attachment
	requests    map[int64]foia.Request
	events      map[int64]foia.Event
	reminders   map[int64]foia.Reminder
	projects    map[int64]foia.Project

	emailRecipients   map[int64][]int64
	requestRecipients map[int64][]int64
	collaborators     map[int64][]int64

	lastID int64
	m      sync.RWMutex
}

// GetInMemoryDB returns a new InMemoryDB to use
func GetInMemoryDB() *InMemory {
	return &InMemory{
		senders:           make(map[int64]foia.Sender),
		recipients:        make(map[int64]foia.Recipient),
		emails:            make(map[int64]foia.InboundEmail),
		attachments:       make(map[int64]foia.Attachment),
		requests:          make(map[int64]foia.Request),
		events:            make(map[int64]foia.Event),
		reminders:         make(map[int64]foia.Reminder),
		projects:          make(map[int64]foia.Project),
		emailRecipients:   make(map[int64][]int64),
		requestRecipients: make(map[int64][]int64),
		collaborators:     make(map[int64][]int64),
	}
}

// Start does nothing for the in memory db
func (im *InMemory) Start() error {
	return nil
}

// nextID must be called with the write lock held
func (im *InMemory) nextID() int64 {
	im.lastID++
	return im.lastID
}

// GetSenderByEmail finds a sender ignoring case
func (im *InMemory) GetSenderByEmail(email string) (foia.Sender, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	return im.senderByEmail(email)
}

func (im *InMemory) senderByEmail(email string) (foia.Sender, error) {
	for _, s := range im.senders {
		if strings.EqualFold(s.Email, email) {
			return s, nil
		}
	}
	return foia.Sender{}, foia.ErrNotFound
}

// GetSenderByID gets a sender
func (im *InMemory) GetSenderByID(id int64) (foia.Sender, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	s, ok := im.senders[id]
	if !ok {
		return foia.Sender{}, foia.ErrNotFound
	}
	return s, nil
}

// CreateSender inserts a sender unless one with the same email exists
func (im *InMemory) CreateSender(s foia.Sender) (foia.Sender, error) {
	im.m.Lock()
	defer im.m.Unlock()

	if existing, err := im.senderByEmail(s.Email); err == nil {
		return existing, nil
	}

	s.ID = im.nextID()
	s.Email = strings.ToLower(s.Email)
	im.senders[s.ID] = s

	return s, nil
}

// GetRecipientByEmail finds a recipient ignoring case
func (im *InMemory) GetRecipientByEmail(email string) (foia.Recipient, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	return im.recipientByEmail(email)
}

func (im *InMemory) recipientByEmail(email string) (foia.Recipient, error) {
	for _, r := range im.recipients {
		if strings.EqualFold(r.Email, email) {
			return r, nil
		}
	}
	return foia.Recipient{}, foia.ErrNotFound
}

// GetRecipientByID gets a recipient
func (im *InMemory) GetRecipientByID(id int64) (foia.Recipient, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	r, ok := im.recipients[id]
	if !ok {
		return foia.Recipient{}, foia.ErrNotFound
	}
	return r, nil
}

// CreateRecipient inserts a recipient unless one with the same email exists
func (im *InMemory) CreateRecipient(r foia.Recipient) (foia.Recipient, error) {
	im.m.Lock()
	defer im.m.Unlock()

	if existing, err := im.recipientByEmail(r.Email); err == nil {
		return existing, nil
	}

	r.ID = im.nextID()
	r.Email = strings.ToLower(r.Email)
	im.recipients[r.ID] = r

	return r, nil
}

// UpdateRecipient replaces a stored recipient
func (im *InMemory) UpdateRecipient(r foia.Recipient) error {
	im.m.Lock()
	defer im.m.Unlock()

	if _, ok := im.recipients[r.ID]; !ok {
		return foia.ErrNotFound
	}

	im.recipients[r.ID] = r
	return nil
}

// ListRecipients returns every recipient ordered by email
func (im *InMemory) ListRecipients() ([]foia.Recipient, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	rs := make([]foia.Recipient, 0, len(im.recipients))
	for _, r := range im.recipients {
		rs = append(rs, r)
	}

	sort.Slice(rs, func(i, j int) bool { return rs[i].Email < rs[j].Email })
	return rs, nil
}

// SaveNewEmail saves an inbound email. UUIDs must be unique.
func (im *InMemory) SaveNewEmail(e foia.InboundEmail) (foia.InboundEmail, error) {
	im.m.Lock()
	defer im.m.Unlock()

	for _, existing := range im.emails {
		if existing.UUID == e.UUID {
			return foia.InboundEmail{}, foia.ErrDuplicate
		}
	}

	e.ID = im.nextID()
	im.emails[e.ID] = e

	return e, nil
}

// GetEmailByID gets an email
func (im *InMemory) GetEmailByID(id int64) (foia.InboundEmail, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	e, ok := im.emails[id]
	if !ok {
		return foia.InboundEmail{}, foia.ErrNotFound
	}
	return e, nil
}

// GetEmailByUUID gets an email by its public id
func (im *InMemory) GetEmailByUUID(uuid string) (foia.InboundEmail, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, e := range im.emails {
		if e.UUID == uuid {
			return e, nil
		}
	}
	return foia.InboundEmail{}, foia.ErrNotFound
}

// SetEmailRecipients replaces the recipients of an email
func (im *InMemory) SetEmailRecipients(emailID int64, recipientIDs []int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.emailRecipients[emailID] = unique(recipientIDs)
	return nil
}

// GetEmailRecipients returns the recipients of an email ordered by email
func (im *InMemory) GetEmailRecipients(emailID int64) ([]foia.Recipient, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	return im.recipientsByID(im.emailRecipients[emailID]), nil
}

// SetEmailProcessed flags an email as classified
func (im *InMemory) SetEmailProcessed(emailID int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	e, ok := im.emails[emailID]
	if !ok {
		return foia.ErrNotFound
	}

	e.Processed = true
	im.emails[emailID] = e
	return nil
}

// SaveAttachment saves attachment metadata
func (im *InMemory) SaveAttachment(a foia.Attachment) (foia.Attachment, error) {
	im.m.Lock()
	defer im.m.Unlock()

	a.ID = im.nextID()
	im.attachments[a.ID] = a
	return a, nil
}

// GetAttachmentsByEmailID returns an email's attachments in the order they were saved
func (im *InMemory) GetAttachmentsByEmailID(emailID int64) ([]foia.Attachment, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	as := []foia.Attachment{}
	for _, a := range im.attachments {
		if a.EmailID == emailID {
			as = append(as, a)
		}
	}

	sort.Slice(as, func(i, j int) bool { return as[i].ID < as[j].ID })
	return as, nil
}

// SaveNewRequest saves a request
func (im *InMemory) SaveNewRequest(r foia.Request) (foia.Request, error) {
	im.m.Lock()
	defer im.m.Unlock()

	r.ID = im.nextID()
	im.requests[r.ID] = r
	return r, nil
}

// GetRequestByID gets a request
func (im *InMemory) GetRequestByID(id int64) (foia.Request, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	r, ok := im.requests[id]
	if !ok {
		return foia.Request{}, foia.ErrNotFound
	}
	return r, nil
}

// GetRequestByEmailID gets the request created from an email
func (im *InMemory) GetRequestByEmailID(emailID int64) (foia.Request, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, r := range im.requests {
		if r.EmailID == emailID {
			return r, nil
		}
	}
	return foia.Request{}, foia.ErrNotFound
}

// UpdateRequest replaces the editable fields of a request
func (im *InMemory) UpdateRequest(r foia.Request) error {
	im.m.Lock()
	defer im.m.Unlock()

	existing, ok := im.requests[r.ID]
	if !ok {
		return foia.ErrNotFound
	}

	existing.Sent = r.Sent
	existing.Subject = r.Subject
	existing.Notes = r.Notes
	existing.ProjectID = r.ProjectID
	existing.AgencyID = r.AgencyID
	im.requests[r.ID] = existing

	return nil
}

// DeleteRequest removes a request with its events, reminders and recipients
func (im *InMemory) DeleteRequest(id int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	if _, ok := im.requests[id]; !ok {
		return foia.ErrNotFound
	}

	delete(im.requests, id)
	delete(im.requestRecipients, id)

	for k, e := range im.events {
		if e.RequestID == id {
			delete(im.events, k)
		}
	}

	for k, r := range im.reminders {
		if r.RequestID == id {
			delete(im.reminders, k)
		}
	}

	return nil
}

// ListRequests returns requests matching f, newest sent first
func (im *InMemory) ListRequests(f foia.RequestFilter) ([]foia.Request, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	search := strings.ToLower(f.Search)

	rs := []foia.Request{}
	for _, r := range im.requests {
		if f.ProjectID != nil && (r.ProjectID == nil || *r.ProjectID != *f.ProjectID) {
			continue
		}

		if f.SenderEmail != "" {
			sender := im.senders[im.emails[r.EmailID].SenderID]
			if !strings.EqualFold(sender.Email, f.SenderEmail) {
				continue
			}
		}

		if search != "" &&
			!strings.Contains(strings.ToLower(r.Subject), search) &&
			!strings.Contains(strings.ToLower(r.Notes), search) &&
			!strings.Contains(strings.ToLower(r.AgencyID), search) {
			continue
		}

		rs = append(rs, r)
	}

	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].Sent.Equal(rs[j].Sent) {
			return rs[i].Sent.After(rs[j].Sent)
		}
		if !rs[i].CreatedAt.Equal(rs[j].CreatedAt) {
			return rs[i].CreatedAt.After(rs[j].CreatedAt)
		}
		return rs[i].ID > rs[j].ID
	})

	return rs, nil
}

// SetRequestRecipients replaces the recipients of a request
func (im *InMemory) SetRequestRecipients(requestID int64, recipientIDs []int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.requestRecipients[requestID] = unique(recipientIDs)
	return nil
}

// GetRequestRecipients returns the recipients of a request ordered by email
func (im *InMemory) GetRequestRecipients(requestID int64) ([]foia.Recipient, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	return im.recipientsByID(im.requestRecipients[requestID]), nil
}

// SetRequestNotified flags that the chat announcement went out
func (im *InMemory) SetRequestNotified(requestID int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	r, ok := im.requests[requestID]
	if !ok {
		return foia.ErrNotFound
	}

	r.Notified = true
	im.requests[requestID] = r
	return nil
}

// SaveNewEvent saves an event
func (im *InMemory) SaveNewEvent(e foia.Event) (foia.Event, error) {
	im.m.Lock()
	defer im.m.Unlock()

	e.ID = im.nextID()
	im.events[e.ID] = e
	return e, nil
}

// GetEventByID gets an event
func (im *InMemory) GetEventByID(id int64) (foia.Event, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	e, ok := im.events[id]
	if !ok {
		return foia.Event{}, foia.ErrNotFound
	}
	return e, nil
}

// GetEventByEmailID gets the event created from an email
func (im *InMemory) GetEventByEmailID(emailID int64) (foia.Event, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, e := range im.events {
		if e.EmailID != nil && *e.EmailID == emailID {
			return e, nil
		}
	}
	return foia.Event{}, foia.ErrNotFound
}

// GetEventsByRequestID returns a request's events, latest first
func (im *InMemory) GetEventsByRequestID(requestID int64) ([]foia.Event, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	es := []foia.Event{}
	for _, e := range im.events {
		if e.RequestID == requestID {
			es = append(es, e)
		}
	}

	foia.SortEvents(es)
	return es, nil
}

// DeleteEvent removes an event
func (im *InMemory) DeleteEvent(id int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	if _, ok := im.events[id]; !ok {
		return foia.ErrNotFound
	}

	delete(im.events, id)
	return nil
}

// SaveNewReminder saves a reminder
func (im *InMemory) SaveNewReminder(r foia.Reminder) (foia.Reminder, error) {
	im.m.Lock()
	defer im.m.Unlock()

	r.ID = im.nextID()
	im.reminders[r.ID] = r
	return r, nil
}

// GetReminderByRequestID returns the request's earliest reminder
func (im *InMemory) GetReminderByRequestID(requestID int64) (foia.Reminder, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	var found foia.Reminder
	for _, r := range im.reminders {
		if r.RequestID == requestID && (found.ID == 0 || r.ID < found.ID) {
			found = r
		}
	}

	if found.ID == 0 {
		return foia.Reminder{}, foia.ErrNotFound
	}
	return found, nil
}

// UpdateReminder replaces a stored reminder
func (im *InMemory) UpdateReminder(r foia.Reminder) error {
	im.m.Lock()
	defer im.m.Unlock()

	if _, ok := im.reminders[r.ID]; !ok {
		return foia.ErrNotFound
	}

	im.reminders[r.ID] = r
	return nil
}

// GetDueReminders returns unsent reminders scheduled at or before now, oldest first
func (im *InMemory) GetDueReminders(now time.Time) ([]foia.Reminder, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	rs := []foia.Reminder{}
	for _, r := range im.reminders {
		if r.SentTime == nil && !r.ScheduledTime.After(now) {
			rs = append(rs, r)
		}
	}

	sort.Slice(rs, func(i, j int) bool { return rs[i].ID < rs[j].ID })
	return rs, nil
}

// MarkRemindersSent sets the sent time on every given reminder that hasn't been sent
func (im *InMemory) MarkRemindersSent(ids []int64, at time.Time) error {
	im.m.Lock()
	defer im.m.Unlock()

	for _, id := range ids {
		r, ok := im.reminders[id]
		if !ok || r.SentTime != nil {
			continue
		}

		sent := at
		r.SentTime = &sent
		im.reminders[id] = r
	}

	return nil
}

// SaveNewProject saves a project. Slugs must be unique.
func (im *InMemory) SaveNewProject(p foia.Project) (foia.Project, error) {
	im.m.Lock()
	defer im.m.Unlock()

	for _, existing := range im.projects {
		if existing.Slug == p.Slug {
			return foia.Project{}, foia.ErrDuplicate
		}
	}

	p.ID = im.nextID()
	im.projects[p.ID] = p
	return p, nil
}

// GetProjectByID gets a project
func (im *InMemory) GetProjectByID(id int64) (foia.Project, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	p, ok := im.projects[id]
	if !ok {
		return foia.Project{}, foia.ErrNotFound
	}
	return p, nil
}

// GetProjectBySlug gets a project by its slug
func (im *InMemory) GetProjectBySlug(slug string) (foia.Project, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, p := range im.projects {
		if p.Slug == slug {
			return p, nil
		}
	}
	return foia.Project{}, foia.ErrNotFound
}

// SlugExists reports whether a project already uses slug
func (im *InMemory) SlugExists(slug string) (bool, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	for _, p := range im.projects {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// SetProjectCollaborators replaces the collaborators on a project
func (im *InMemory) SetProjectCollaborators(projectID int64, senderIDs []int64) error {
	im.m.Lock()
	defer im.m.Unlock()

	im.collaborators[projectID] = unique(senderIDs)
	return nil
}

// GetProjectCollaborators returns a project's collaborators ordered by last then first name
func (im *InMemory) GetProjectCollaborators(projectID int64) ([]foia.Sender, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	ss := []foia.Sender{}
	for _, id := range im.collaborators[projectID] {
		if s, ok := im.senders[id]; ok {
			ss = append(ss, s)
		}
	}

	sort.Slice(ss, func(i, j int) bool {
		if ss[i].LastName != ss[j].LastName {
			return ss[i].LastName < ss[j].LastName
		}
		return ss[i].FirstName < ss[j].FirstName
	})
	return ss, nil
}

// GetProjectIDsBySender returns the projects a sender collaborates on
func (im *InMemory) GetProjectIDsBySender(senderID int64) ([]int64, error) {
	im.m.RLock()
	defer im.m.RUnlock()

	ids := []int64{}
	for projectID, senders := range im.collaborators {
		for _, id := range senders {
			if id == senderID {
				ids = append(ids, projectID)
				break
			}
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// GetMatchCandidates returns every request with its sender, newest sent first
func (im *InMemory) GetMatchCandidates() ([]matcher.Candidate, error) {
	rs, err := im.ListRequests(foia.RequestFilter{})
	if err != nil {
		return nil, err
	}

	im.m.RLock()
	defer im.m.RUnlock()

	cs := make([]matcher.Candidate, 0, len(rs))
	for _, r := range rs {
		sender := im.senders[im.emails[r.EmailID].SenderID]
		cs = append(cs, matcher.Candidate{
			RequestID:      r.ID,
			Subject:        r.Subject,
			Sent:           r.Sent,
			SenderID:       sender.ID,
			SenderLastName: sender.LastName,
			ProjectID:      r.ProjectID,
		})
	}

	return cs, nil
}

// recipientsByID must be called with the lock held
func (im *InMemory) recipientsByID(ids []int64) []foia.Recipient {
	rs := []foia.Recipient{}
	for _, id := range ids {
		if r, ok := im.recipients[id]; ok {
			rs = append(rs, r)
		}
	}

	sort.Slice(rs, func(i, j int) bool { return rs[i].Email < rs[j].Email })
	return rs
}

func unique(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
