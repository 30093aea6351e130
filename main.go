package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haydenwoodhead/gateway"
	"github.com/newsapps/foiatracker/email/mailgunmail"
	"github.com/newsapps/foiatracker/foia"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var runSyncRecipients bool
var runSendReminders bool
var runWorker bool

func init() {
	flag.BoolVar(&runSyncRecipients, "sync-recipients", false, "when true will not run the server, only re-sync every recipient with the rolodex")
	flag.BoolVar(&runSendReminders, "send-reminders", false, "when true will not run the server, only send due reminders")
	flag.BoolVar(&runWorker, "worker", false, "when true will not run the server, only work through queued tasks")
	flag.Parse()
}

func main() {
	nsi := mustParseNewServerInput()

	log.SetOutput(os.Stderr)
	if nsi.Developing {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	} else {
		log.SetFormatter(&log.JSONFormatter{})
	}

	if mg, ok := nsi.Email.(*mailgunmail.MailgunMail); ok && mg.Permissive() {
		log.Warn("MG_SIGNING_KEY isn't set, mailhook requests won't be verified")
	}

	s, err := foia.New(nsi.Config, nsi.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to setup new foiatracker")
	}

	s.RegisterTasks(nsi.Tasks)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// if we are just running a one off job then do so and return
	switch {
	case runSyncRecipients:
		n, err := s.SyncRecipients(ctx)
		if err != nil {
			log.WithError(err).Fatal("Failed to sync recipients")
		}
		log.WithField("synced", n).Info("Recipient sync finished")
		return
	case runSendReminders:
		runSendRemindersFunc(ctx, s)
		return
	case runWorker:
		if nsi.Worker == nil {
			log.Fatal("REDIS_URL must be set to run a worker")
		}
		if err := nsi.Worker.Work(ctx, nsi.Tasks); err != nil && ctx.Err() == nil {
			log.WithError(err).Fatal("Worker stopped")
		}
		return
	}

	s.Router.Handle("/metrics", promhttp.Handler())
	if nsi.Files != nil {
		s.Router.PathPrefix("/files/").Handler(http.StripPrefix("/files", nsi.Files))
	}

	if nsi.UsingLambda {
		log.WithError(gateway.ListenAndServe("", s.Router)).Fatal("Server stopped")
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(1 * time.Hour):
				log.Info("calling send reminders func")
				runSendRemindersFunc(ctx, s)
			}
		}
	}()

	srv := &http.Server{Addr: ":8080", Handler: s.Router}
	go func() {
		<-ctx.Done()

		shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdown); err != nil {
			log.WithError(err).Error("Failed to shut down cleanly")
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("Server stopped")
	}
}

func runSendRemindersFunc(ctx context.Context, s *foia.Server) {
	n, err := s.SendReminders(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to send reminders")
	}

	log.WithField("sent", n).Info("Reminder sweep finished")
}
