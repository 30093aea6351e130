package foia

import (
	"context"
	"encoding/json"

	"github.com/newsapps/foiatracker/notify"
	"github.com/newsapps/foiatracker/queue"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type notifyArgs struct {
	RequestID int64 `json:"request_id"`
}

// RegisterTasks adds the server's background tasks to mx
func (s *Server) RegisterTasks(mx *queue.Mux) {
	mx.Handle(NotifyNewRequestTask, s.notifyNewRequestTask)
}

func (s *Server) notifyNewRequestTask(ctx context.Context, raw json.RawMessage) error {
	var args notifyArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return errors.Wrap(err, "notifyNewRequestTask: bad arguments")
	}

	return s.NotifyNewRequest(ctx, args.RequestID)
}

// NotifyNewRequest announces a request in the chat channel once. Requests that were already announced
// or have no recipients yet are left alone.
func (s *Server) NotifyNewRequest(ctx context.Context, requestID int64) error {
	r, err := s.db.GetRequestByID(requestID)
	if err != nil {
		return errors.Wrapf(err, "NotifyNewRequest: failed to get request %v", requestID)
	}

	if r.Notified {
		return nil
	}

	recipients, err := s.db.GetRequestRecipients(r.ID)
	if err != nil {
		return errors.Wrap(err, "NotifyNewRequest: failed to get recipients")
	}

	if len(recipients) == 0 {
		log.WithField("request", r.ID).Info("NotifyNewRequest: not announcing request without recipients")
		return nil
	}

	e, err := s.db.GetEmailByID(r.EmailID)
	if err != nil {
		return errors.Wrap(err, "NotifyNewRequest: failed to get email")
	}

	sender, err := s.db.GetSenderByID(e.SenderID)
	if err != nil {
		return errors.Wrap(err, "NotifyNewRequest: failed to get sender")
	}

	err = s.notifier.PostNewRequest(ctx, notify.NewRequest{
		Sender:      sender.String(),
		SenderEmail: sender.Email,
		Subject:     r.Subject,
		URL:         s.RequestURL(r.ID),
		Recipients:  RecipientsString(recipients),
		Due:         DueDate(s.cal, r),
		Text:        e.Text,
	})
	if err != nil {
		return err
	}

	return s.db.SetRequestNotified(r.ID)
}
