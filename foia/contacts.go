package foia

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// GetOrCreateSender returns the sender with the given address. Unknown senders are created with their
// name from the staff directory, or without one when the directory can't help.
func (s *Server) GetOrCreateSender(ctx context.Context, addr string) (Sender, error) {
	sender, err := s.db.GetSenderByEmail(addr)
	if err == nil {
		return sender, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Sender{}, errors.Wrap(err, "GetOrCreateSender: failed to look up sender")
	}

	sender = Sender{Email: strings.ToLower(addr)}

	if s.staff != nil {
		if st, ok := s.staff.Lookup(ctx, addr); ok {
			sender.FirstName = st.FirstName
			sender.LastName = st.LastName
		}
	}

	sender, err = s.db.CreateSender(sender)
	if err != nil {
		return Sender{}, errors.Wrap(err, "GetOrCreateSender: failed to create sender")
	}

	return sender, nil
}

// GetOrCreateRecipient returns the recipient with the given address, creating and syncing it with the
// directory on first sight
func (s *Server) GetOrCreateRecipient(ctx context.Context, addr string) (Recipient, error) {
	r, err := s.db.GetRecipientByEmail(addr)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Recipient{}, errors.Wrap(err, "GetOrCreateRecipient: failed to look up recipient")
	}

	r = Recipient{Email: strings.ToLower(addr)}

	if s.directory != nil {
		r.ApplyMatch(s.directory.Sync(ctx, r.Email))
	}

	r, err = s.db.CreateRecipient(r)
	if err != nil {
		return Recipient{}, errors.Wrap(err, "GetOrCreateRecipient: failed to create recipient")
	}

	return r, nil
}

// GetOrCreateRecipients resolves every address, skipping the newsroom's own
func (s *Server) GetOrCreateRecipients(ctx context.Context, addrs []string) ([]Recipient, error) {
	rs := make([]Recipient, 0, len(addrs))

	for _, addr := range addrs {
		if s.isAllowedDomain(addr) {
			continue
		}

		r, err := s.GetOrCreateRecipient(ctx, addr)
		if err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}

	return rs, nil
}

// SyncRecipient replaces a recipient's directory details with what the directory says now
func (s *Server) SyncRecipient(ctx context.Context, r Recipient) (Recipient, error) {
	r.ApplyMatch(s.directory.Sync(ctx, r.Email))

	if err := s.db.UpdateRecipient(r); err != nil {
		return Recipient{}, errors.Wrapf(err, "SyncRecipient: failed to update %v", r.Email)
	}

	return r, nil
}

// SyncRecipients re-syncs every stored recipient. Failures are logged and don't stop the run. It
// returns how many recipients were updated.
func (s *Server) SyncRecipients(ctx context.Context) (int, error) {
	rs, err := s.db.ListRecipients()
	if err != nil {
		return 0, errors.Wrap(err, "SyncRecipients: failed to list recipients")
	}

	var count int
	for _, r := range rs {
		if ctx.Err() != nil {
			return count, ctx.Err()
		}

		if _, err := s.SyncRecipient(ctx, r); err != nil {
			log.WithField("recipient", r.Email).WithError(err).Error("SyncRecipients: failed to sync")
			continue
		}
		count++
	}

	return count, nil
}

func recipientIDs(rs []Recipient) []int64 {
	ids := make([]int64, 0, len(rs))
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	return ids
}

func recipientLabels(rs []Recipient) []string {
	labels := make([]string, 0, len(rs))
	for _, r := range rs {
		labels = append(labels, r.String())
	}
	return labels
}
