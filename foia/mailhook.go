package foia

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/newsapps/foiatracker/email"
	"github.com/newsapps/foiatracker/email/mailgunmail"
	"github.com/newsapps/foiatracker/metrics"
	"github.com/newsapps/foiatracker/storage"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// maxMailhookMemory is how much of a multipart webhook body is held in memory before spilling to disk
const maxMailhookMemory = 32 << 20

// Mailhook receives forwarded emails from Mailgun. Staff send or cc their requests to the tracker's
// address and every accepted message is stored and followed by a prompt asking how to classify it.
func (s *Server) Mailhook(w http.ResponseWriter, r *http.Request) {
	err := r.ParseMultipartForm(maxMailhookMemory)
	if err != nil && err != http.ErrNotMultipart {
		log.WithError(err).Error("Mailhook: failed to parse form")
		http.Error(w, "Failed to parse form.", http.StatusBadRequest)
		return
	}

	ok, err := s.mail.VerifyWebhookRequest(r)
	if err != nil {
		log.WithError(err).Error("Mailhook: failed to verify request")
	}
	if !ok {
		metrics.IncomingEmails.WithLabelValues("bad_signature").Inc()
		http.Error(w, "Failed Mailgun token validation.", http.StatusForbidden)
		return
	}

	rawSender, rawTo, rawDate := r.FormValue("sender"), r.FormValue("To"), r.FormValue("Date")
	if rawSender == "" || rawTo == "" || rawDate == "" {
		metrics.IncomingEmails.WithLabelValues("missing_field").Inc()
		http.Error(w, "Missing a required field.", http.StatusBadRequest)
		return
	}

	from := email.ParseAddress(rawSender)
	if !s.isAllowedDomain(from) {
		log.WithField("sender", from).Warn("Mailhook: rejected email from outside the newsroom")
		metrics.IncomingEmails.WithLabelValues("unauthorized_sender").Inc()
		http.Error(w, fmt.Sprintf("%q is not authorized to use FOIAtracker.", from), http.StatusForbidden)
		return
	}

	tk := r.FormValue("token")
	if tk != "" {
		isNew, err := s.seen.IsNew(r.Context(), tk)
		if err != nil {
			log.WithError(err).Warn("Mailhook: failed to check for redelivery")
		} else if !isNew {
			log.WithField("token", tk).Info("Mailhook: ignoring redelivered email")
			metrics.IncomingEmails.WithLabelValues("duplicate").Inc()
			w.WriteHeader(http.StatusOK)
			return
		}
	}

	e, recipients, err := s.saveInboundEmail(r, from, rawTo, rawDate)
	if err != nil {
		log.WithField("sender", from).WithError(err).Error("Mailhook: failed to save email")
		if tk != "" {
			// let mailgun's retry through
			if err := s.seen.Forget(r.Context(), tk); err != nil {
				log.WithField("token", tk).WithError(err).Error("Mailhook: failed to forget delivery")
			}
		}
		metrics.IncomingEmails.WithLabelValues("failed").Inc()
		http.Error(w, "Failed to save email.", http.StatusInternalServerError)
		return
	}

	s.sendPrompt(e, from, recipients)
	s.saveAttachments(r, e)

	metrics.IncomingEmails.WithLabelValues("saved").Inc()
	w.WriteHeader(http.StatusOK)
}

// saveInboundEmail resolves the sender and recipients and stores the message
func (s *Server) saveInboundEmail(r *http.Request, from, rawTo, rawDate string) (InboundEmail, []Recipient, error) {
	ctx := r.Context()

	sender, err := s.GetOrCreateSender(ctx, from)
	if err != nil {
		return InboundEmail{}, nil, err
	}

	recipients, err := s.GetOrCreateRecipients(ctx, email.ParseAddressList(rawTo))
	if err != nil {
		return InboundEmail{}, nil, err
	}

	html := r.FormValue("body-html")
	if html != "" {
		if h, err := email.AddTargetBlank(html); err == nil {
			html = h
		} else {
			log.WithError(err).Warn("Mailhook: failed to rewrite links in html body")
		}
	}

	text := r.FormValue("stripped-text")
	if text == "" {
		text = r.FormValue("body-plain")
	}

	e, err := s.db.SaveNewEmail(InboundEmail{
		UUID:     uuid.Must(uuid.NewRandom()).String(),
		Raw:      r.FormValue("body-plain"),
		Text:     text,
		HTML:     html,
		Subject:  r.FormValue("subject"),
		Sent:     email.ParseDate(rawDate, s.now()).UTC(),
		SenderID: sender.ID,
	})
	if err != nil {
		return InboundEmail{}, nil, errors.Wrap(err, "failed to save email")
	}

	if err := s.db.SetEmailRecipients(e.ID, recipientIDs(recipients)); err != nil {
		return InboundEmail{}, nil, errors.Wrap(err, "failed to save email recipients")
	}

	return e, recipients, nil
}

// sendPrompt asks the sender how to classify the email. Failures are only logged.
func (s *Server) sendPrompt(e InboundEmail, from string, recipients []Recipient) {
	sender, err := s.db.GetSenderByID(e.SenderID)
	if err != nil {
		log.WithField("email", e.UUID).WithError(err).Error("Mailhook: failed to get sender for prompt")
		return
	}

	name := sender.FirstName
	if name == "" {
		name = sender.String()
	}

	newURL, existingURL := s.classificationURLs(e.UUID)

	err = s.mail.SendPrompt(mailgunmail.Prompt{
		To:          from,
		SenderName:  name,
		Subject:     e.String(),
		Recipients:  recipientLabels(recipients),
		NewURL:      newURL,
		ExistingURL: existingURL,
	})
	if err != nil {
		log.WithField("email", e.UUID).WithError(err).Error("Mailhook: failed to send prompt")
	}
}

// saveAttachments stores attachment-1 to attachment-N. A malformed count is treated as zero and a
// file that can't be stored is skipped.
func (s *Server) saveAttachments(r *http.Request, e InboundEmail) {
	count, err := strconv.Atoi(r.FormValue("attachment-count"))
	if err != nil || count <= 0 || s.store == nil {
		return
	}

	for i := 1; i <= count; i++ {
		field := fmt.Sprintf("attachment-%d", i)
		if err := s.saveAttachment(r.Context(), r, field, e); err != nil {
			log.WithFields(log.Fields{"email": e.UUID, "field": field}).WithError(err).Error("Mailhook: failed to save attachment")
		}
	}
}

func (s *Server) saveAttachment(ctx context.Context, r *http.Request, field string, e InboundEmail) error {
	f, h, err := r.FormFile(field)
	if err != nil {
		return errors.Wrap(err, "missing file")
	}
	defer f.Close()

	contentType := h.Header.Get("Content-Type")
	key := storage.Key(s.now(), h.Filename)

	u, err := s.store.Put(ctx, key, contentType, f)
	if err != nil {
		return err
	}

	_, err = s.db.SaveAttachment(Attachment{
		EmailID:     e.ID,
		Key:         key,
		Filename:    h.Filename,
		ContentType: contentType,
		Size:        h.Size,
		URL:         u,
	})
	return err
}
