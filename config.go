package main

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/newsapps/foiatracker/cache"
	"github.com/newsapps/foiatracker/calendar"
	"github.com/newsapps/foiatracker/data/inmemory"
	"github.com/newsapps/foiatracker/data/postgresql"
	"github.com/newsapps/foiatracker/data/sqlite3"
	"github.com/newsapps/foiatracker/dedup"
	"github.com/newsapps/foiatracker/email/mailgunmail"
	"github.com/newsapps/foiatracker/foia"
	"github.com/newsapps/foiatracker/notify"
	"github.com/newsapps/foiatracker/queue"
	"github.com/newsapps/foiatracker/rolodex"
	"github.com/newsapps/foiatracker/staff"
	"github.com/newsapps/foiatracker/storage"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const inMemory = "memory"
const postgreSQL = "postgres"
const sqLite3 = "sqlite3"

const lookupTimeout = 10 * time.Second

// NewServerInput is everything main needs to build and run the server
type NewServerInput struct {
	foia.Config
	Database    foia.Database
	Developing  bool
	UsingLambda bool
	// Tasks routes queued tasks to the server once it exists
	Tasks *queue.Mux
	// Worker is set when tasks go through Redis
	Worker *queue.Redis
	// Files is set when attachments are kept in process and have to be served by us
	Files *storage.Memory
}

// fileConfig is the optional YAML file at CONFIG_PATH
type fileConfig struct {
	AllowedDomains []string `yaml:"allowed_domains"`
	// ExtraHolidays are one off office closures as 2006-01-02 dates
	ExtraHolidays []string `yaml:"extra_holidays"`
}

func mustParseNewServerInput() NewServerInput {
	developing := parseBoolVarWithDefault("DEVELOPING", false)
	if developing {
		if err := godotenv.Load(); err != nil {
			log.WithError(err).Warn("No .env file loaded, using the environment as is")
		}
	}

	fc := mustParseFileConfig(parseStringVar("CONFIG_PATH"))

	nsi := NewServerInput{
		Config: foia.Config{
			Key:            mustParseStringVar("KEY"),
			URL:            mustParseStringVar("WEBSITE_URL"),
			UpdatesAddress: mustParseStringVar("UPDATES_ADDRESS"),
			AllowedDomains: append(parseSliceVar("ALLOWED_DOMAINS"), fc.AllowedDomains...),
			Calendar:       calendar.Texas(mustParseDates(fc.ExtraHolidays)),
			Location:       mustLoadLocation(parseStringVarWithDefault("TZ_NAME", "America/Chicago")),
			RestoreRealIP:  parseBoolVarWithDefault("RESTORE_REAL_IP", false),
			JobKey:         parseStringVar("JOB_KEY"),
		},
		Database:    mustParseDatabase(),
		Developing:  developing,
		UsingLambda: parseBoolVarWithDefault("LAMBDA", false),
		Tasks:       queue.NewMux(),
	}

	if len(nsi.AllowedDomains) == 0 {
		log.Fatal("At least one allowed domain must be set in ALLOWED_DOMAINS or the config file")
	}

	mgDomain := mustParseStringVar("MG_DOMAIN")
	nsi.Email = mailgunmail.NewMailgunProvider(
		mgDomain,
		mustParseStringVar("MG_KEY"),
		parseStringVar("MG_SIGNING_KEY"),
		parseStringVarWithDefault("PROMPT_FROM", "FOIAtracker <foiatracker@"+mgDomain+">"),
	)

	nsi.Directory = rolodex.New(mustParseStringVar("ROLODEX_URL"), lookupTimeout)

	if u := parseStringVar("STAFF_API_URL"); u != "" {
		nsi.Staff = staff.New(u, lookupTimeout)
	}

	var c cache.Cache
	if u := parseStringVar("REDIS_URL"); u != "" {
		opt, err := redis.ParseURL(u)
		if err != nil {
			log.WithError(err).Fatal("Failed to parse REDIS_URL")
		}
		rdb := redis.NewClient(opt)

		nsi.Worker = queue.NewRedis(rdb, queue.DefaultQueue)
		nsi.Queue = nsi.Worker
		nsi.Dedup = dedup.NewRedis(rdb, dedup.DefaultTTL)
		c = cache.NewRedis(rdb)
	} else {
		nsi.Queue = queue.NewInline(nsi.Tasks)
		nsi.Dedup = dedup.NewMemory(dedup.DefaultTTL)
		c = cache.NewMemory()
	}

	nsi.Notifier = notify.New(mustParseStringVar("SLACK_TOKEN"), mustParseStringVar("SLACK_CHANNEL"), c)

	if bucket := parseStringVar("S3_BUCKET"); bucket != "" {
		nsi.Store = storage.NewS3(bucket)
	} else {
		nsi.Files = storage.NewMemory(strings.TrimSuffix(nsi.URL, "/") + "/files")
		nsi.Store = nsi.Files
	}

	return nsi
}

func mustParseDatabase() foia.Database {
	switch dbType := parseStringVarWithDefault("DB_TYPE", inMemory); dbType {
	case inMemory:
		return inmemory.GetInMemoryDB()
	case postgreSQL:
		return postgresql.GetPostgreSQLDB(mustParseStringVar("DATABASE_URL"))
	case sqLite3:
		return sqlite3.GetSQLite3DB(mustParseStringVar("DATABASE_URL"))
	default:
		log.Fatalf("Unknown DB_TYPE %q", dbType)
		return nil
	}
}

func mustParseFileConfig(path string) fileConfig {
	var fc fileConfig
	if path == "" {
		return fc
	}

	b, err := ioutil.ReadFile(path)
	if err != nil {
		log.WithField("path", path).WithError(err).Fatal("Failed to read config file")
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), &fc); err != nil {
		log.WithField("path", path).WithError(err).Fatal("Failed to parse config file")
	}

	return fc
}

func mustParseDates(dates []string) []time.Time {
	var out []time.Time
	for _, d := range dates {
		t, err := time.Parse("2006-01-02", d)
		if err != nil {
			log.Fatalf("Extra holiday %q must be a date like 2019-03-04", d)
		}
		out = append(out, t)
	}
	return out
}

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).Fatalf("Failed to load time zone %v", name)
	}
	return loc
}

func parseStringVar(key string) string {
	return os.Getenv(key)
}

func parseBoolVar(key string) (bool, error) {
	val := parseStringVar(key)
	return strconv.ParseBool(val)
}

func mustParseStringVar(key string) (v string) {
	v = parseStringVar(key)
	if strings.Compare(v, "") == 0 {
		log.Fatalf("Env var %v cannot be empty", key)
	}

	return
}

func parseSliceVar(key string) (v []string) {
	for _, s := range strings.Split(parseStringVar(key), ",") {
		if s = strings.TrimSpace(s); s != "" {
			v = append(v, s)
		}
	}

	return
}

func parseBoolVarWithDefault(key string, def bool) bool {
	v, err := parseBoolVar(key)
	if err != nil {
		return def
	}
	return v
}

func parseStringVarWithDefault(key, def string) string {
	v := parseStringVar(key)
	if v == "" {
		return def
	}
	return v
}
