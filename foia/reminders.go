package foia

import (
	"bytes"
	"context"

	"github.com/newsapps/foiatracker/metrics"
	"github.com/newsapps/foiatracker/notify"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

type reminderOut struct {
	Subject        string
	URL            string
	UpdatesAddress string
}

// RenderReminder returns the reminder message for a request
func (s *Server) RenderReminder(r Request) (string, error) {
	var buf bytes.Buffer

	err := reminderTemplate.Execute(&buf, reminderOut{
		Subject:        r.Subject,
		URL:            s.RequestURL(r.ID),
		UpdatesAddress: s.cfg.UpdatesAddress,
	})
	if err != nil {
		return "", errors.Wrap(err, "RenderReminder: failed to execute template")
	}

	return buf.String(), nil
}

// SendReminders dispatches every due reminder to the sender of its request. Requests that are no
// longer pending get no message. Every reminder handled is marked sent in one go, whether or not its
// message went out, so running the sweep again never sends anything twice. It returns how many
// messages were sent.
func (s *Server) SendReminders(ctx context.Context) (int, error) {
	now := s.now()

	due, err := s.db.GetDueReminders(now)
	if err != nil {
		return 0, errors.Wrap(err, "SendReminders: failed to get due reminders")
	}

	handled := make([]int64, 0, len(due))
	var sent int

	for _, rm := range due {
		handled = append(handled, rm.ID)

		outcome, err := s.sendReminder(ctx, rm)
		if err != nil {
			log.WithFields(log.Fields{"reminder": rm.ID, "request": rm.RequestID}).WithError(err).Error("SendReminders: failed to send reminder")
		}

		metrics.Reminders.WithLabelValues(outcome).Inc()
		if outcome == "sent" {
			sent++
		}
	}

	if err := s.db.MarkRemindersSent(handled, now); err != nil {
		return sent, errors.Wrap(err, "SendReminders: failed to mark reminders sent")
	}

	return sent, nil
}

// sendReminder returns what happened to the reminder for the metrics
func (s *Server) sendReminder(ctx context.Context, rm Reminder) (string, error) {
	r, err := s.db.GetRequestByID(rm.RequestID)
	if err != nil {
		return "failed", errors.Wrap(err, "failed to get request")
	}

	events, err := s.db.GetEventsByRequestID(r.ID)
	if err != nil {
		return "failed", errors.Wrap(err, "failed to get events")
	}

	if status, _ := CurrentStatus(events); status != Pending {
		log.WithFields(log.Fields{"request": r.ID, "status": status}).Info("SendReminders: skipping reminder for request that isn't pending")
		return "skipped", nil
	}

	e, err := s.db.GetEmailByID(r.EmailID)
	if err != nil {
		return "failed", errors.Wrap(err, "failed to get email")
	}

	sender, err := s.db.GetSenderByID(e.SenderID)
	if err != nil {
		return "failed", errors.Wrap(err, "failed to get sender")
	}

	text, err := s.RenderReminder(r)
	if err != nil {
		return "failed", err
	}

	err = s.notifier.SendReminder(ctx, sender.Email, text)
	if errors.Is(err, notify.ErrUnknownUser) {
		log.WithField("sender", sender.Email).Warn("SendReminders: no chat user for sender")
		return "unknown_user", nil
	} else if err != nil {
		return "failed", err
	}

	return "sent", nil
}
