package foia

import (
	"context"
	"net/http"

	"github.com/newsapps/foiatracker/email/mailgunmail"
	"github.com/newsapps/foiatracker/notify"
	"github.com/newsapps/foiatracker/rolodex"
	"github.com/newsapps/foiatracker/staff"
)

// Mailer verifies inbound webhooks and sends classification prompts
type Mailer interface {
	VerifyWebhookRequest(r *http.Request) (bool, error)
	SendPrompt(p mailgunmail.Prompt) error
}

// Notifier announces new requests and delivers reminders to staff
type Notifier interface {
	PostNewRequest(ctx context.Context, n notify.NewRequest) error
	SendReminder(ctx context.Context, email, text string) error
}

// Directory resolves external contacts
type Directory interface {
	LinkBuilder
	Sync(ctx context.Context, email string) rolodex.Match
}

// StaffDirectory resolves newsroom staff
type StaffDirectory interface {
	Lookup(ctx context.Context, email string) (staff.Staffer, bool)
}
