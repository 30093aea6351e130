package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/newsapps/foiatracker/foia"
)

// jobs maps the JOB env var to the endpoint it triggers
var jobs = map[string]string{
	"send-reminders":  "/api/v1/jobs/send-reminders/",
	"sync-recipients": "/api/v1/jobs/sync-recipients/",
}

var url string
var key string

func callJob(ctx context.Context) error {
	c := http.Client{
		Timeout: 5 * time.Minute,
	}

	req, err := http.NewRequest(http.MethodPost, url, nil)
	if err != nil {
		return err
	}

	req.Header.Add(foia.JobKeyHeader, key)

	resp, err := c.Do(req.WithContext(ctx))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("returned error code not 200. Actually %v", resp.StatusCode)
	}

	log.WithField("url", url).Info("Job finished")
	return nil
}

func main() {
	log.SetHandler(json.New(os.Stderr))

	job := mustParseStringVar("JOB")
	path, ok := jobs[job]
	if !ok {
		log.Fatalf("Unknown JOB %q", job)
	}

	url = strings.TrimSuffix(mustParseStringVar("URL"), "/") + path
	key = mustParseStringVar("JOB_KEY")
	lambda.Start(callJob)
}

func mustParseStringVar(key string) (v string) {
	v = os.Getenv(key)

	if strings.Compare(v, "") == 0 {
		log.Fatalf("Env var %v cannot be empty", key)
	}

	return
}
