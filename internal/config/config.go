package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/duesbot/internal/backup"
	"github.com/dukerupert/duesbot/internal/model"
)

// Channels holds the four guild channels the bot reads and writes.
type Channels struct {
	Proof   string
	Paid    string
	Unpaid  string
	Summary string
}

type Limits struct {
	UnpaidScan  int
	SummaryScan int
	Purge       int
}

type Schedule struct {
	PollInterval     time.Duration
	ReminderInterval time.Duration
	ResetWeekday     time.Weekday
	ResetHour        int
	Location         *time.Location
}

type Config struct {
	DiscordToken  string
	GuildID       string
	DBPath        string
	HTTPAddr      string
	LogLevel      string
	LogFormat     string
	Unit          string
	DefaultTarget int64
	Channels      Channels
	Limits        Limits
	Schedule      Schedule
	Backup        backup.Config
}

// LoadDotEnv reads path into the environment if it exists. Variables already
// set are left alone.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds the bot configuration from the environment. Every missing
// required key and every malformed value is reported in one error.
func Load() (Config, error) {
	r := &reader{}

	cfg := Config{
		DiscordToken:  r.required("DISCORD_TOKEN"),
		GuildID:       r.required("DUES_GUILD_ID"),
		DBPath:        r.str("DUES_DB_PATH", "duesbot.db"),
		HTTPAddr:      r.str("DUES_HTTP_ADDR", ":8080"),
		LogLevel:      r.str("DUES_LOG_LEVEL", "info"),
		LogFormat:     r.str("DUES_LOG_FORMAT", "text"),
		Unit:          r.str("DUES_UNIT", "folhas"),
		DefaultTarget: int64(r.positive("DUES_WEEKLY_TARGET", int(model.DefaultWeeklyTarget))),
		Channels: Channels{
			Proof:   r.required("DUES_PROOF_CHANNEL_ID"),
			Paid:    r.required("DUES_PAID_CHANNEL_ID"),
			Unpaid:  r.required("DUES_UNPAID_CHANNEL_ID"),
			Summary: r.required("DUES_SUMMARY_CHANNEL_ID"),
		},
		Limits: Limits{
			UnpaidScan:  r.positive("DUES_UNPAID_SCAN_LIMIT", 100),
			SummaryScan: r.positive("DUES_SUMMARY_SCAN_LIMIT", 5),
			Purge:       r.positive("DUES_PURGE_LIMIT", 100),
		},
		Schedule: Schedule{
			PollInterval:     r.duration("DUES_POLL_INTERVAL", 5*time.Minute),
			ReminderInterval: r.duration("DUES_REMINDER_INTERVAL", 12*time.Hour),
			ResetWeekday:     r.weekday("DUES_RESET_WEEKDAY", time.Monday),
			ResetHour:        r.hour("DUES_RESET_HOUR", 0),
			Location:         r.location("DUES_TIMEZONE", time.UTC),
		},
		Backup: loadBackup(r),
	}

	if err := r.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadStorage reads only the keys the offline ledger commands need.
func LoadStorage() (dbPath string, target int64, bk backup.Config, err error) {
	r := &reader{}
	dbPath = r.str("DUES_DB_PATH", "duesbot.db")
	target = int64(r.positive("DUES_WEEKLY_TARGET", int(model.DefaultWeeklyTarget)))
	bk = loadBackup(r)
	return dbPath, target, bk, r.err()
}

// loadBackup reads the encrypted S3 mirror settings. The mirror stays off
// unless bucket and passphrase are both set.
func loadBackup(r *reader) backup.Config {
	return backup.Config{
		Bucket:     r.str("DUES_S3_BUCKET", ""),
		Prefix:     r.str("DUES_S3_PREFIX", ""),
		Region:     r.str("DUES_S3_REGION", "us-east-1"),
		Endpoint:   r.str("DUES_S3_ENDPOINT", ""),
		AccessKey:  r.str("DUES_S3_ACCESS_KEY_ID", ""),
		SecretKey:  r.str("DUES_S3_SECRET_ACCESS_KEY", ""),
		Passphrase: r.str("DUES_MIRROR_PASSPHRASE", ""),
		Interval:   r.duration("DUES_MIRROR_INTERVAL", 10*time.Minute),
	}
}

// reader collects problems instead of stopping at the first one.
type reader struct {
	missing []string
	invalid []string
}

func (r *reader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (r *reader) required(key string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		r.missing = append(r.missing, key)
	}
	return v
}

func (r *reader) positive(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q (want a positive integer)", key, v))
		return def
	}
	return n
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q (want a positive duration)", key, v))
		return def
	}
	return d
}

func (r *reader) hour(key string, def int) int {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	h, err := strconv.Atoi(v)
	if err != nil || h < 0 || h > 23 {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q (want 0-23)", key, v))
		return def
	}
	return h
}

func (r *reader) weekday(key string, def time.Weekday) time.Weekday {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	if d, ok := ParseWeekday(v); ok {
		return d
	}
	r.invalid = append(r.invalid, fmt.Sprintf("%s=%q (want a weekday name)", key, v))
	return def
}

func (r *reader) location(key string, def *time.Location) *time.Location {
	v := r.str(key, "")
	if v == "" {
		return def
	}
	loc, err := time.LoadLocation(v)
	if err != nil {
		r.invalid = append(r.invalid, fmt.Sprintf("%s=%q (%v)", key, v, err))
		return def
	}
	return loc
}

func (r *reader) err() error {
	var parts []string
	if len(r.missing) > 0 {
		parts = append(parts, "missing "+strings.Join(r.missing, ", "))
	}
	if len(r.invalid) > 0 {
		parts = append(parts, "invalid "+strings.Join(r.invalid, ", "))
	}
	if len(parts) == 0 {
		return nil
	}
	return fmt.Errorf("config: %s", strings.Join(parts, "; "))
}

// ParseWeekday accepts full or three-letter English day names, any case.
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, true
		}
	}
	return 0, false
}
