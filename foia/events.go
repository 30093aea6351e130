package foia

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// eventIn is the body of a new event
type eventIn struct {
	RequestID   int64               `json:"request_id"`
	Status      Status              `json:"status"`
	UpdateDate  string              `json:"update_date"`
	AmountAsked decimal.NullDecimal `json:"amount_asked"`
	AmountPaid  decimal.NullDecimal `json:"amount_paid"`
	Notes       string              `json:"notes"`
	EmailUUID   string              `json:"email_uuid"`
}

// errBadEvent wraps validation failures on a new event
var errBadEvent = errors.New("invalid event")

// AddEvent records a status update on a request. When the update came in by email that email is
// linked to the event and marked processed. An email already filed as a request or an update can't be
// used again.
func (s *Server) AddEvent(in eventIn) (Event, error) {
	if !in.Status.Valid() {
		return Event{}, errors.Wrapf(errBadEvent, "unknown status %q", in.Status)
	}

	updated, err := time.Parse(dateLayout, in.UpdateDate)
	if err != nil {
		return Event{}, errors.Wrap(errBadEvent, "update_date must be a date like 2019-03-04")
	}

	if _, err := s.db.GetRequestByID(in.RequestID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Event{}, errors.Wrapf(errBadEvent, "no request %v", in.RequestID)
		}
		return Event{}, err
	}

	e := Event{
		RequestID:   in.RequestID,
		Status:      in.Status,
		UpdateDate:  updated,
		AmountAsked: in.AmountAsked,
		AmountPaid:  in.AmountPaid,
		Notes:       in.Notes,
		CreatedAt:   s.now(),
	}

	var inbound *InboundEmail
	if in.EmailUUID != "" {
		m, err := s.db.GetEmailByUUID(in.EmailUUID)
		if errors.Is(err, ErrNotFound) {
			return Event{}, errors.Wrapf(errBadEvent, "no email %v", in.EmailUUID)
		} else if err != nil {
			return Event{}, err
		}

		c, err := s.Classify(m)
		if err != nil {
			return Event{}, err
		}
		if _, ok := c.(NeedsClassification); !ok {
			return Event{}, ErrAlreadyClassified
		}

		inbound = &m
		e.EmailID = &m.ID
	}

	e, err = s.db.SaveNewEvent(e)
	if err != nil {
		return Event{}, errors.Wrap(err, "AddEvent: failed to save event")
	}

	if inbound != nil {
		if err := s.db.SetEmailProcessed(inbound.ID); err != nil {
			return Event{}, errors.Wrap(err, "AddEvent: failed to mark email processed")
		}
	}

	return e, nil
}

// NewEventJSON adds a status update to a request
func (s *Server) NewEventJSON(w http.ResponseWriter, r *http.Request) {
	var in eventIn
	if err := decodeJSON(r, &in); err != nil {
		returnJSONError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	e, err := s.AddEvent(in)
	switch {
	case errors.Is(err, errBadEvent):
		returnJSONError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrAlreadyClassified):
		returnJSONError(w, r, http.StatusConflict, "That email is already filed")
	case err != nil:
		log.WithField("request", in.RequestID).WithError(err).Error("NewEventJSON: failed to add event")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to add event")
	default:
		returnJSONResult(w, r, http.StatusCreated, EventDetail{Event: e, StatusLabel: e.Status.Label()})
	}
}

// DeleteEventJSON removes an event
func (s *Server) DeleteEventJSON(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromURL(w, r)
	if !ok {
		return
	}

	err := s.db.DeleteEvent(id)
	if errors.Is(err, ErrNotFound) {
		returnJSONError(w, r, http.StatusNotFound, "Event not found")
		return
	} else if err != nil {
		log.WithField("event", id).WithError(err).Error("DeleteEventJSON: failed to delete event")
		returnJSONError(w, r, http.StatusInternalServerError, "Failed to delete event")
		return
	}

	returnJSONResult(w, r, http.StatusOK, nil)
}
