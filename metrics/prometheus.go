package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IncomingEmails is the metric for emails received on the mailhook, labelled by what happened to them
	IncomingEmails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foiatracker_incoming_emails",
			Help: "number of incoming emails",
		},
		[]string{"action"},
	)
	// DirectoryLookups counts calls to the rolodex and staff directories
	DirectoryLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foiatracker_directory_lookups",
			Help: "number of lookups against the contact and staff directories",
		},
		[]string{"directory", "result"},
	)
	// Reminders is the metric for processed reminders
	Reminders = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foiatracker_reminders",
			Help: "number of reminders processed by the reminder sweep",
		},
		[]string{"outcome"},
	)
	// RequestsCreated is the metric for records requests created from emails
	RequestsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "foiatracker_requests_created",
			Help: "number of records requests created",
		},
	)
	// Tasks counts queued tasks that were run
	Tasks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foiatracker_tasks",
			Help: "number of queued tasks run",
		},
		[]string{"task", "result"},
	)
)
