package foia

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/newsapps/foiatracker/matcher"
	"github.com/newsapps/foiatracker/metrics"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Classification is what a staffer said an inbound email is. It's one of NewRequest, UpdateExisting
// or NeedsClassification.
type Classification interface {
	Kind() string
}

// NewRequest means the email started a request
type NewRequest struct {
	RequestID int64
}

// Kind implements Classification
func (NewRequest) Kind() string { return "new_request" }

// UpdateExisting means the email is about a request that was already tracked
type UpdateExisting struct {
	RequestID int64
	EventID   int64
}

// Kind implements Classification
func (UpdateExisting) Kind() string { return "update_existing" }

// NeedsClassification means nobody has said yet
type NeedsClassification struct{}

// Kind implements Classification
func (NeedsClassification) Kind() string { return "needs_classification" }

// Classify works out how an email has been classified from the request or event it owns
func (s *Server) Classify(e InboundEmail) (Classification, error) {
	r, err := s.db.GetRequestByEmailID(e.ID)
	if err == nil {
		return NewRequest{RequestID: r.ID}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "Classify: failed to get request")
	}

	ev, err := s.db.GetEventByEmailID(e.ID)
	if err == nil {
		return UpdateExisting{RequestID: ev.RequestID, EventID: ev.ID}, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, errors.Wrap(err, "Classify: failed to get event")
	}

	return NeedsClassification{}, nil
}

// CreateRequestFromEmail turns an unclassified email into a request with the email's subject, date and
// recipients, and schedules its default reminder. No chat announcement is made.
func (s *Server) CreateRequestFromEmail(ctx context.Context, e InboundEmail) (Request, error) {
	r, err := s.db.SaveNewRequest(Request{
		EmailID:   e.ID,
		Sent:      Date(e.Sent.In(s.loc)),
		Subject:   e.Subject,
		CreatedAt: s.now(),
	})
	if err != nil {
		return Request{}, errors.Wrap(err, "CreateRequestFromEmail: failed to save request")
	}

	if err := s.finishRequestFromEmail(e, r); err != nil {
		return Request{}, errors.Wrap(err, "CreateRequestFromEmail")
	}

	metrics.RequestsCreated.Inc()

	return r, nil
}

// finishRequestFromEmail copies the email's recipients onto r, schedules the default reminder unless
// one exists and marks the email processed. The email is marked last so a failed run can be finished
// by calling this again.
func (s *Server) finishRequestFromEmail(e InboundEmail, r Request) error {
	recipients, err := s.db.GetEmailRecipients(e.ID)
	if err != nil {
		return errors.Wrap(err, "failed to get email recipients")
	}

	if err := s.db.SetRequestRecipients(r.ID, recipientIDs(recipients)); err != nil {
		return errors.Wrap(err, "failed to copy recipients")
	}

	_, err = s.db.GetReminderByRequestID(r.ID)
	if errors.Is(err, ErrNotFound) {
		_, err = s.db.SaveNewReminder(Reminder{
			RequestID:     r.ID,
			ScheduledTime: DefaultReminderTime(s.cal, r, s.loc),
		})
	}
	if err != nil {
		return errors.Wrap(err, "failed to schedule reminder")
	}

	if err := s.db.SetEmailProcessed(e.ID); err != nil {
		return errors.Wrap(err, "failed to mark email processed")
	}

	return nil
}

// Matches ranks every tracked request against the email
func (s *Server) Matches(e InboundEmail) ([]matcher.Ranked, error) {
	candidates, err := s.db.GetMatchCandidates()
	if err != nil {
		return nil, errors.Wrap(err, "Matches: failed to get candidates")
	}

	projects, err := s.db.GetProjectIDsBySender(e.SenderID)
	if err != nil {
		return nil, errors.Wrap(err, "Matches: failed to get sender projects")
	}

	return matcher.Rank(matcher.Reply{
		Subject:          e.Subject,
		Sent:             Date(e.Sent.In(s.loc)),
		SenderID:         e.SenderID,
		SenderProjectIDs: projects,
	}, candidates), nil
}

// emailFromURL loads the email named in the url, writing the error response when it can't
func (s *Server) emailFromURL(w http.ResponseWriter, r *http.Request) (InboundEmail, bool) {
	id := mux.Vars(r)["uuid"]

	e, err := s.db.GetEmailByUUID(id)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Email not found")
		return InboundEmail{}, false
	} else if err != nil {
		log.WithField("email", id).WithError(err).Error("emailFromURL: failed to get email")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get email")
		return InboundEmail{}, false
	}

	return e, true
}

// CreateRequestFromEmailJSON classifies the email as a new request. Calling it again, or on an email
// already filed as an update, returns the request the email belongs to.
func (s *Server) CreateRequestFromEmailJSON(w http.ResponseWriter, r *http.Request) {
	e, ok := s.emailFromURL(w, r)
	if !ok {
		return
	}

	c, err := s.Classify(e)
	if err != nil {
		log.WithField("email", e.UUID).WithError(err).Error("CreateRequestFromEmailJSON: failed to classify email")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to create request")
		return
	}

	status := http.StatusOK
	var requestID int64

	switch c := c.(type) {
	case NewRequest:
		requestID = c.RequestID
		if !e.Processed {
			if err := s.resumeRequestFromEmail(e, requestID); err != nil {
				log.WithField("email", e.UUID).WithError(err).Error("CreateRequestFromEmailJSON: failed to finish request")
				returnJSONError(w, r, http.StatusInternalServerError, "Failed to create request")
				return
			}
		}
	case UpdateExisting:
		requestID = c.RequestID
	case NeedsClassification:
		req, err := s.CreateRequestFromEmail(r.Context(), e)
		if err != nil {
			log.WithField("email", e.UUID).WithError(err).Error("CreateRequestFromEmailJSON: failed to create request")
			returnJSONError(w, r, http.StatusInternalServerError, "Failed to create request")
			return
		}
		requestID = req.ID
		status = http.StatusCreated
	}

	detail, err := s.requestDetail(requestID)
	if err != nil {
		log.WithField("request", requestID).WithError(err).Error("CreateRequestFromEmailJSON: failed to get request detail")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get request")
		return
	}

	returnJSONResult(w, r, status, detail)
}

// resumeRequestFromEmail finishes a request whose creation failed part way
func (s *Server) resumeRequestFromEmail(e InboundEmail, requestID int64) error {
	req, err := s.db.GetRequestByID(requestID)
	if err != nil {
		return errors.Wrap(err, "failed to get request")
	}

	return s.finishRequestFromEmail(e, req)
}

type matchesOut struct {
	Email          InboundEmail     `json:"email"`
	Classification string           `json:"classification"`
	RequestID      *int64           `json:"request_id"`
	Matches        []matcher.Ranked `json:"matches"`
}

// GetMatchesJSON returns the requests an email could be an update to, best first. Emails that are
// already classified return the request they belong to and no matches.
func (s *Server) GetMatchesJSON(w http.ResponseWriter, r *http.Request) {
	e, ok := s.emailFromURL(w, r)
	if !ok {
		return
	}

	c, err := s.Classify(e)
	if err != nil {
		log.WithField("email", e.UUID).WithError(err).Error("GetMatchesJSON: failed to classify email")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to get matches")
		return
	}

	out := matchesOut{Email: e, Classification: c.Kind(), Matches: []matcher.Ranked{}}

	switch c := c.(type) {
	case NewRequest:
		out.RequestID = &c.RequestID
	case UpdateExisting:
		out.RequestID = &c.RequestID
	case NeedsClassification:
		out.Matches, err = s.Matches(e)
		if err != nil {
			log.WithField("email", e.UUID).WithError(err).Error("GetMatchesJSON: failed to rank requests")
			returnJSONError(w, r, http.StatusInternalServerError, "Failed to get matches")
			return
		}
	}

	returnJSONResult(w, r, http.StatusOK, out)
}
