package foia

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/newsapps/foiatracker/email"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NotifyNewRequestTask is the queued task that announces a request in the chat channel
const NotifyNewRequestTask = "notify_new_request"

const dateLayout = "2006-01-02"

// RequestSummary is a request with its derived status
type RequestSummary struct {
	Request
	Status      Status    `json:"status"`
	StatusLabel string    `json:"status_label"`
	Complete    bool      `json:"complete"`
	Due         time.Time `json:"due"`
	Recipients  string    `json:"recipients"`
}

// EventDetail is an event with how long the agency took to get there
type EventDetail struct {
	Event
	StatusLabel         string `json:"status_label"`
	ElapsedBusinessDays int    `json:"elapsed_business_days"`
}

// RecipientDetail is a recipient with its directory links
type RecipientDetail struct {
	Recipient
	Label string       `json:"label"`
	Links RolodexLinks `json:"links"`
}

// AttachmentDetail is an attachment with its icon
type AttachmentDetail struct {
	Attachment
	Icon string `json:"icon"`
}

// RequestDetail is everything known about a request
type RequestDetail struct {
	RequestSummary
	Sender        Sender             `json:"sender"`
	Email         InboundEmail       `json:"email"`
	Project       *Project           `json:"project"`
	RecipientList []RecipientDetail  `json:"recipient_list"`
	Events        []EventDetail      `json:"events"`
	Attachments   []AttachmentDetail `json:"attachments"`
	Reminder      *Reminder          `json:"reminder"`
}

// requestRecipients returns the request's recipients, falling back to the ones on its email
func (s *Server) requestRecipients(r Request) ([]Recipient, error) {
	rs, err := s.db.GetRequestRecipients(r.ID)
	if err != nil {
		return nil, err
	}

	if len(rs) > 0 {
		return rs, nil
	}

	return s.db.GetEmailRecipients(r.EmailID)
}

func (s *Server) requestSummary(r Request) (RequestSummary, []Event, error) {
	events, err := s.db.GetEventsByRequestID(r.ID)
	if err != nil {
		return RequestSummary{}, nil, errors.Wrap(err, "failed to get events")
	}

	recipients, err := s.requestRecipients(r)
	if err != nil {
		return RequestSummary{}, nil, errors.Wrap(err, "failed to get recipients")
	}

	status, label := CurrentStatus(events)

	return RequestSummary{
		Request:     r,
		Status:      status,
		StatusLabel: label,
		Complete:    status.IsComplete(),
		Due:         DueDate(s.cal, r),
		Recipients:  RecipientsString(recipients),
	}, events, nil
}

func (s *Server) requestDetail(id int64) (RequestDetail, error) {
	r, err := s.db.GetRequestByID(id)
	if err != nil {
		return RequestDetail{}, err
	}

	summary, events, err := s.requestSummary(r)
	if err != nil {
		return RequestDetail{}, err
	}

	d := RequestDetail{RequestSummary: summary}

	d.Email, err = s.db.GetEmailByID(r.EmailID)
	if err != nil {
		return RequestDetail{}, errors.Wrap(err, "failed to get email")
	}

	d.Sender, err = s.db.GetSenderByID(d.Email.SenderID)
	if err != nil {
		return RequestDetail{}, errors.Wrap(err, "failed to get sender")
	}

	if r.ProjectID != nil {
		p, err := s.db.GetProjectByID(*r.ProjectID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return RequestDetail{}, errors.Wrap(err, "failed to get project")
		}
		if err == nil {
			d.Project = &p
		}
	}

	recipients, err := s.requestRecipients(r)
	if err != nil {
		return RequestDetail{}, errors.Wrap(err, "failed to get recipients")
	}

	d.RecipientList = make([]RecipientDetail, 0, len(recipients))
	for _, rc := range recipients {
		rd := RecipientDetail{Recipient: rc, Label: rc.String()}
		if s.directory != nil {
			rd.Links = rc.RolodexLinks(s.directory)
		}
		d.RecipientList = append(d.RecipientList, rd)
	}

	SortEvents(events)

	d.Events = make([]EventDetail, 0, len(events))
	for _, e := range events {
		d.Events = append(d.Events, EventDetail{
			Event:               e,
			StatusLabel:         e.Status.Label(),
			ElapsedBusinessDays: ElapsedBusinessDays(s.cal, r, e),
		})
	}

	attachments, err := s.db.GetAttachmentsByEmailID(r.EmailID)
	if err != nil {
		return RequestDetail{}, errors.Wrap(err, "failed to get attachments")
	}

	d.Attachments = make([]AttachmentDetail, 0, len(attachments))
	for _, a := range attachments {
		d.Attachments = append(d.Attachments, AttachmentDetail{Attachment: a, Icon: a.Icon()})
	}

	reminder, err := s.db.GetReminderByRequestID(r.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return RequestDetail{}, errors.Wrap(err, "failed to get reminder")
	}
	if err == nil {
		d.Reminder = &reminder
	}

	return d, nil
}

// ListRequests returns request summaries matching f. status may be "pending", "complete" or empty
// for both.
func (s *Server) ListRequests(f RequestFilter, status string) ([]RequestSummary, error) {
	rs, err := s.db.ListRequests(f)
	if err != nil {
		return nil, errors.Wrap(err, "ListRequests: failed to list requests")
	}

	out := make([]RequestSummary, 0, len(rs))
	for _, r := range rs {
		summary, _, err := s.requestSummary(r)
		if err != nil {
			return nil, errors.Wrapf(err, "ListRequests: request %v", r.ID)
		}

		if status == "pending" && summary.Complete || status == "complete" && !summary.Complete {
			continue
		}

		out = append(out, summary)
	}

	return out, nil
}

// ListRequestsJSON lists requests filtered by status, sender email and a search term
func (s *Server) ListRequestsJSON(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status := strings.ToLower(q.Get("status"))
	if status != "" && status != "pending" && status != "complete" {
		returnJSONError(w, r, http.StatusBadRequest, "status must be pending or complete")
		return
	}

	rs, err := s.ListRequests(RequestFilter{SenderEmail: q.Get("sender"), Search: q.Get("q")}, status)
	if err != nil {
		log.WithError(err).Error("ListRequestsJSON: failed to list requests")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to list requests")
		return
	}

	returnJSONResult(w, r, http.StatusOK, rs)
}

// idFromURL parses the numeric id route variable, writing a 400 when it's unusable
func idFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		returnJSONError(w, r, http.StatusBadRequest, "Invalid id")
		return 0, false
	}
	return id, true
}

// GetRequestJSON returns a request with its status, due date, events and recipients
func (s *Server) GetRequestJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	d, err := s.requestDetail(id)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Request not found")
		return
	} else if err != nil {
		log.WithField("request", id).WithError(err).Error("GetRequestJSON: failed to get request")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get request")
		return
	}

	returnJSONResult(w, r, http.StatusOK, d)
}

// requestUpdate holds the editable fields of a request. Missing fields are left alone.
type requestUpdate struct {
	Subject    *string   `json:"subject"`
	Notes      *string   `json:"notes"`
	Sent       *string   `json:"sent"`
	AgencyID   *string   `json:"agency_id"`
	Project    *string   `json:"project"`
	Recipients *[]string `json:"recipients"`
}

// UpdateRequestJSON edits a request and queues its chat announcement
func (s *Server) UpdateRequestJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	var in requestUpdate
	if err := decodeJSON(r, &in); err != nil {
		returnJSONError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	req, err := s.db.GetRequestByID(id)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Request not found")
		return
	} else if err != nil {
		log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to get request")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to update request")
		return
	}

	if in.Subject != nil {
		if strings.TrimSpace(*in.Subject) == "" {
			returnJSONError(w, r, http.StatusBadRequest, "subject can't be empty")
			return
		}
		req.Subject = *in.Subject
	}

	if in.Notes != nil {
		req.Notes = *in.Notes
	}

	if in.AgencyID != nil {
		req.AgencyID = *in.AgencyID
	}

	if in.Sent != nil {
		sent, err := time.Parse(dateLayout, *in.Sent)
		if err != nil {
			returnJSONError(w, r, http.StatusBadRequest, "sent must be a date like 2019-03-04")
			return
		}
		req.Sent = sent
	}

	if in.Project != nil {
		if *in.Project == "" {
			req.ProjectID = nil
		} else {
			p, err := s.db.GetProjectBySlug(*in.Project)
			if errors.Is(err, ErrNotFound) {
				returnJSONError(w, r, http.StatusBadRequest, "No project with that slug")
				return
			} else if err != nil {
				log.WithField("project", *in.Project).WithError(err).Error("UpdateRequestJSON: failed to get project")
				returnJSONError(w, r, http.StatusInternalServerError, "Failed to update request")
				return
			}
			req.ProjectID = &p.ID
		}
	}

	var addrs []string
	if in.Recipients != nil {
		addrs, err = recipientAddresses(*in.Recipients)
		if err != nil {
			returnJSONError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := s.db.UpdateRequest(req); err != nil {
		log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to save request")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to update request")
		return
	}

	if in.Recipients != nil {
		recipients, err := s.GetOrCreateRecipients(r.Context(), addrs)
		if err != nil {
			log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to resolve recipients")
			returnJSONError(w, r, http.StatusInternalServerError, "Failed to update request")
			return
		}

		if err := s.db.SetRequestRecipients(id, recipientIDs(recipients)); err != nil {
			log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to save recipients")
			returnJSONError(w, r, http.StatusInternalServerError, "Failed to update request")
			return
		}
	}

	if err := s.queue.Enqueue(r.Context(), NotifyNewRequestTask, notifyArgs{RequestID: id}); err != nil {
		log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to queue announcement")
	}

	d, err := s.requestDetail(id)
	if err != nil {
		log.WithField("request", id).WithError(err).Error("UpdateRequestJSON: failed to get request detail")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get request")
		return
	}

	returnJSONResult(w, r, http.StatusOK, d)
}

// recipientAddresses returns the bare addresses for the given recipients. Every value must be an
// email address.
func recipientAddresses(in []string) ([]string, error) {
	addrs := make([]string, 0, len(in))
	for _, raw := range in {
		a := email.ParseAddress(raw)
		if !strings.Contains(a, "@") {
			return nil, errors.Errorf("%q isn't an email address", raw)
		}
		addrs = append(addrs, a)
	}
	return addrs, nil
}

// DeleteRequestJSON removes a request along with its events and reminder
func (s *Server) DeleteRequestJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	err := s.db.DeleteRequest(id)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Request not found")
		return
	} else if err != nil {
		log.WithField("request", id).WithError(err).Error("DeleteRequestJSON: failed to delete request")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to delete request")
		return
	}

	returnJSONResult(w, r, http.StatusOK, nil)
}

// RescheduleReminder moves the request's reminder to at, creating one if the request has none.
// Reminders that already went out can't be moved.
func (s *Server) RescheduleReminder(requestID int64, at time.Time) (Reminder, error) {
	if _, err := s.db.GetRequestByID(requestID); err != nil {
		return Reminder{}, err
	}

	rm, err := s.db.GetReminderByRequestID(requestID)
	if errors.Is(err, ErrNotFound) {
		return s.db.SaveNewReminder(Reminder{RequestID: requestID, ScheduledTime: at.UTC()})
	} else if err != nil {
		return Reminder{}, err
	}

	if rm.SentTime != nil {
		return Reminder{}, ErrReminderAlreadySent
	}

	rm.ScheduledTime = at.UTC()
	if err := s.db.UpdateReminder(rm); err != nil {
		return Reminder{}, err
	}

	return rm, nil
}

type reminderUpdate struct {
	ScheduledTime time.Time `json:"scheduled_time"`
}

// UpdateReminderJSON reschedules a request's reminder
func (s *Server) UpdateReminderJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	var in reminderUpdate
	if err := decodeJSON(r, &in); err != nil || in.ScheduledTime.IsZero() {
		returnJSONError(w, r, http.StatusBadRequest, "scheduled_time must be an RFC 3339 time")
		return
	}

	rm, err := s.RescheduleReminder(id, in.ScheduledTime.Truncate(time.Second))
	switch {
	case errors.Is(err, ErrNotFound):
		returnJSONError(w, r, http.StatusNotFound, "Request not found")
	case errors.Is(err, ErrReminderAlreadySent):
		returnJSONError(w, r, http.StatusConflict, "That reminder was already sent")
	case err != nil:
		log.WithField("request", id).WithError(err).Error("UpdateReminderJSON: failed to reschedule reminder")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to reschedule reminder")
	default:
		returnJSONResult(w, r, http.StatusOK, rm)
	}
}
