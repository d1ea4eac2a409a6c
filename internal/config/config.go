package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration wraps every validation failure.
var ErrConfiguration = errors.New("invalid configuration")

const (
	DefaultTitle         = "Family Calendar"
	DefaultMaxEvents     = 100
	DefaultStartHour     = 8
	DefaultEndHour       = 21
	DefaultHeaderColor   = "var(--primary-color)"
	DefaultListen        = "127.0.0.1:8080"
	DefaultRefreshCron   = "* * * * *"
	DefaultCacheDir      = "./var/ics-cache"
	DefaultStaleness     = "60s"
	DefaultSourceTimeout = "20s"
	DefaultPastDays      = 30
	DefaultFutureDays    = 60
	DefaultMinDuration   = 15
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// ID is the source id; list it under entities to show the feed.
	ID   string `yaml:"id" toml:"id" json:"id"`
	URL  string `yaml:"url" toml:"url" json:"url"`
	Name string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
}

// GoogleCalendarConfig maps a source id to a public Google calendar.
type GoogleCalendarConfig struct {
	ID string `yaml:"id" toml:"id" json:"id"`
	// CalendarID defaults to ID.
	CalendarID string `yaml:"calendar_id,omitempty" toml:"calendar_id,omitempty" json:"calendar_id,omitempty"`
	Name       string `yaml:"name,omitempty" toml:"name,omitempty" json:"name,omitempty"`
}

type GoogleConfig struct {
	APIKey    string                 `yaml:"api_key,omitempty" toml:"api_key,omitempty" json:"-"`
	Calendars []GoogleCalendarConfig `yaml:"calendars,omitempty" toml:"calendars,omitempty" json:"calendars,omitempty"`
}

type HomeAssistantConfig struct {
	// URL is the instance base URL, e.g. http://homeassistant.local:8123.
	URL   string `yaml:"url,omitempty" toml:"url,omitempty" json:"url,omitempty"`
	Token string `yaml:"token,omitempty" toml:"token,omitempty" json:"-"`
}

type FetchConfig struct {
	// Staleness and SourceTimeout are Go duration strings ("60s").
	Staleness     string `yaml:"staleness" toml:"staleness" json:"staleness"`
	SourceTimeout string `yaml:"source_timeout" toml:"source_timeout" json:"source_timeout"`
	PastDays      int    `yaml:"past_days" toml:"past_days" json:"past_days"`
	FutureDays    int    `yaml:"future_days" toml:"future_days" json:"future_days"`
	// FollowAnchor centers the fetch band on the navigated date.
	FollowAnchor bool `yaml:"follow_anchor" toml:"follow_anchor" json:"follow_anchor"`
}

type LayoutConfig struct {
	// ColumnMode is "day" (shared width per day) or "cluster".
	ColumnMode         string `yaml:"column_mode" toml:"column_mode" json:"column_mode"`
	MinDurationMinutes *int   `yaml:"min_duration_minutes" toml:"min_duration_minutes" json:"min_duration_minutes"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled" toml:"enabled" json:"enabled"`
	// Tracing is "none" or "stdout".
	Tracing string `yaml:"tracing,omitempty" toml:"tracing,omitempty" json:"tracing,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"-"`
}

// Config is the top-level application configuration. The first block mirrors
// the card options; the second configures the service around it.
type Config struct {
	Title           string            `yaml:"title" toml:"title" json:"title"`
	Entities        []string          `yaml:"entities" toml:"entities" json:"entities"`
	ShowWeekNumbers *bool             `yaml:"show_week_numbers,omitempty" toml:"show_week_numbers,omitempty" json:"show_week_numbers"`
	FirstDayOfWeek  int               `yaml:"first_day_of_week" toml:"first_day_of_week" json:"first_day_of_week"`
	Colors          map[string]string `yaml:"colors,omitempty" toml:"colors,omitempty" json:"colors,omitempty"`
	MaxEvents       int               `yaml:"max_events" toml:"max_events" json:"max_events"`
	ViewMode        string            `yaml:"view_mode,omitempty" toml:"view_mode,omitempty" json:"view_mode,omitempty"`
	DefaultView     string            `yaml:"default_view,omitempty" toml:"default_view,omitempty" json:"default_view"`
	// WeekDays limits the week views to these weekdays (0 = Sunday).
	WeekDays []int `yaml:"week_days" toml:"week_days" json:"week_days"`
	// RollingDays switches the week views to today + N days. 0 is a valid
	// setting and shows the anchor day alone; leave the key out to keep the
	// regular week views.
	RollingDays   *int    `yaml:"rolling_days,omitempty" toml:"rolling_days,omitempty" json:"rolling_days,omitempty"`
	WeekStartHour *int    `yaml:"week_start_hour" toml:"week_start_hour" json:"week_start_hour"`
	WeekEndHour   *int    `yaml:"week_end_hour" toml:"week_end_hour" json:"week_end_hour"`
	CompactHeight bool    `yaml:"compact_height,omitempty" toml:"compact_height,omitempty" json:"compact_height"`
	HeightScale   float64 `yaml:"height_scale" toml:"height_scale" json:"height_scale"`
	CompactHeader bool    `yaml:"compact_header,omitempty" toml:"compact_header,omitempty" json:"compact_header"`
	HeaderColor   string  `yaml:"header_color,omitempty" toml:"header_color,omitempty" json:"header_color"`

	Listen string `yaml:"listen" toml:"listen" json:"listen"`
	// Timezone is the IANA display zone; empty means the host zone.
	Timezone string `yaml:"timezone,omitempty" toml:"timezone,omitempty" json:"timezone,omitempty"`
	// RefreshCron schedules the background (non-forced) refresh.
	RefreshCron string `yaml:"refresh" toml:"refresh" json:"refresh"`
	CacheDir    string `yaml:"cache_dir" toml:"cache_dir" json:"cache_dir"`

	HomeAssistant HomeAssistantConfig `yaml:"home_assistant,omitempty" toml:"home_assistant,omitempty" json:"home_assistant"`
	ICS           []ICSConfig         `yaml:"ics,omitempty" toml:"ics,omitempty" json:"ics,omitempty"`
	Google        GoogleConfig        `yaml:"google,omitempty" toml:"google,omitempty" json:"google"`
	Fetch         FetchConfig         `yaml:"fetch" toml:"fetch" json:"fetch"`
	Layout        LayoutConfig        `yaml:"layout" toml:"layout" json:"layout"`
	Metrics       MetricsConfig       `yaml:"metrics" toml:"metrics" json:"metrics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration. Entities is left
// empty, so it does not validate until at least one source is added.
func DefaultConfig() *Config {
	c := &Config{Entities: []string{}}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave. It never rejects anything; see Validate.
func (c *Config) Normalize() {
	if c.Title == "" {
		c.Title = DefaultTitle
	}
	if c.ShowWeekNumbers == nil {
		c.ShowWeekNumbers = boolPtr(true)
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = DefaultMaxEvents
	}
	if c.DefaultView == "" {
		c.DefaultView = c.ViewMode
	}
	if c.DefaultView == "" {
		c.DefaultView = "month"
	}
	if c.WeekDays == nil {
		c.WeekDays = []int{0, 1, 2, 3, 4, 5, 6}
	}
	if c.WeekStartHour == nil {
		c.WeekStartHour = intPtr(DefaultStartHour)
	}
	if c.WeekEndHour == nil {
		c.WeekEndHour = intPtr(DefaultEndHour)
	}
	if c.HeightScale <= 0 {
		c.HeightScale = 1.0
	}
	if c.HeaderColor == "" {
		c.HeaderColor = DefaultHeaderColor
	}

	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.RefreshCron == "" {
		c.RefreshCron = DefaultRefreshCron
	}
	if c.CacheDir == "" {
		c.CacheDir = DefaultCacheDir
	}
	if c.Fetch.Staleness == "" {
		c.Fetch.Staleness = DefaultStaleness
	}
	if c.Fetch.SourceTimeout == "" {
		c.Fetch.SourceTimeout = DefaultSourceTimeout
	}
	if c.Fetch.PastDays <= 0 {
		c.Fetch.PastDays = DefaultPastDays
	}
	if c.Fetch.FutureDays <= 0 {
		c.Fetch.FutureDays = DefaultFutureDays
	}
	if c.Layout.ColumnMode == "" {
		c.Layout.ColumnMode = "day"
	}
	if c.Layout.MinDurationMinutes == nil {
		c.Layout.MinDurationMinutes = intPtr(DefaultMinDuration)
	}
	if c.Metrics.Tracing == "" {
		c.Metrics.Tracing = "none"
	}
	if c.Colors == nil {
		c.Colors = map[string]string{}
	}
}

// Validate reports every problem at once, each wrapped in ErrConfiguration.
// It expects a normalized config.
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...))
	}

	if len(c.Entities) == 0 {
		bad("entities must list at least one calendar")
	}
	seen := make(map[string]bool, len(c.Entities))
	for _, id := range c.Entities {
		if id == "" {
			bad("entities contains an empty id")
			continue
		}
		if seen[id] {
			bad("entity %q is listed twice", id)
		}
		seen[id] = true
		if c.SourceKind(id) == SourceUnknown {
			bad("entity %q has no provider: it is not an ics or google id and home_assistant.url is empty", id)
		}
	}

	if c.FirstDayOfWeek < 0 || c.FirstDayOfWeek > 6 {
		bad("first_day_of_week must be 0-6, got %d", c.FirstDayOfWeek)
	}
	if len(c.WeekDays) == 0 {
		bad("week_days must not be empty")
	}
	for _, d := range c.WeekDays {
		if d < 0 || d > 6 {
			bad("week_days values must be 0-6, got %d", d)
		}
	}
	if c.RollingDays != nil && *c.RollingDays < 0 {
		bad("rolling_days must not be negative, got %d", *c.RollingDays)
	}

	start, end := c.StartHour(), c.EndHour()
	if start < 0 || start > 23 || end < 0 || end > 23 {
		bad("week_start_hour and week_end_hour must be 0-23, got %d-%d", start, end)
	} else if start > end {
		bad("week_start_hour %d is after week_end_hour %d", start, end)
	}

	for _, v := range []struct{ key, val string }{{"view_mode", c.ViewMode}, {"default_view", c.DefaultView}} {
		if v.val == "" {
			continue
		}
		switch v.val {
		case "month", "week-compact", "week-standard":
		default:
			bad("%s %q is not one of month, week-compact, week-standard", v.key, v.val)
		}
	}

	if _, err := time.ParseDuration(c.Fetch.Staleness); err != nil {
		bad("fetch.staleness: %v", err)
	}
	if _, err := time.ParseDuration(c.Fetch.SourceTimeout); err != nil {
		bad("fetch.source_timeout: %v", err)
	}
	switch c.Layout.ColumnMode {
	case "day", "cluster":
	default:
		bad("layout.column_mode must be day or cluster, got %q", c.Layout.ColumnMode)
	}
	if c.Layout.MinDurationMinutes != nil && *c.Layout.MinDurationMinutes < 0 {
		bad("layout.min_duration_minutes must not be negative")
	}
	switch c.Metrics.Tracing {
	case "none", "stdout":
	default:
		bad("metrics.tracing must be none or stdout, got %q", c.Metrics.Tracing)
	}
	if c.Timezone != "" {
		if _, err := time.LoadLocation(c.Timezone); err != nil {
			bad("timezone %q: %v", c.Timezone, err)
		}
	}
	for _, f := range c.ICS {
		if f.ID == "" || f.URL == "" {
			bad("ics entries need both id and url")
		}
	}
	if len(c.Google.Calendars) > 0 && c.Google.APIKey == "" {
		bad("google.api_key is required when google.calendars is set")
	}

	return errors.Join(errs...)
}

// SourceKind says which backend serves a source id.
type SourceKind int

const (
	SourceUnknown SourceKind = iota
	SourceHomeAssistant
	SourceICS
	SourceGoogle
)

// SourceKind resolves id: ICS ids first, then Google ids, then Home
// Assistant when it is configured.
func (c *Config) SourceKind(id string) SourceKind {
	for _, f := range c.ICS {
		if f.ID == id {
			return SourceICS
		}
	}
	for _, g := range c.Google.Calendars {
		if g.ID == id {
			return SourceGoogle
		}
	}
	if c.HomeAssistant.URL != "" {
		return SourceHomeAssistant
	}
	return SourceUnknown
}

// WeekNumbers reports whether the month grid shows ISO week numbers.
func (c *Config) WeekNumbers() bool {
	return c.ShowWeekNumbers == nil || *c.ShowWeekNumbers
}

func (c *Config) StartHour() int {
	if c.WeekStartHour == nil {
		return DefaultStartHour
	}
	return *c.WeekStartHour
}

func (c *Config) EndHour() int {
	if c.WeekEndHour == nil {
		return DefaultEndHour
	}
	return *c.WeekEndHour
}

// MinDuration is the layout clamp in minutes.
func (c *Config) MinDuration() int {
	if c.Layout.MinDurationMinutes == nil {
		return DefaultMinDuration
	}
	return *c.Layout.MinDurationMinutes
}

// Staleness parses Fetch.Staleness, falling back to the default.
func (c *Config) Staleness() time.Duration {
	return parseDurationOr(c.Fetch.Staleness, 60*time.Second)
}

// SourceTimeout parses Fetch.SourceTimeout, falling back to the default.
func (c *Config) SourceTimeout() time.Duration {
	return parseDurationOr(c.Fetch.SourceTimeout, 20*time.Second)
}

// Location resolves Timezone, or time.Local when unset or unknown.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func boolPtr(b bool) *bool { return &b }
func intPtr(n int) *int    { return &n }

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Load loads configuration from a YAML file, or TOML when path ends in
// ".toml".
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the file is decoded and normalized. Validation is left to
//     the caller.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if isTOML(path) {
		err = toml.Unmarshal(data, &cfg)
	} else {
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrConfiguration, filepath.Base(path), err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms,
// in the format implied by the extension.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	var data []byte
	var err error
	if isTOML(path) {
		data, err = toml.Marshal(cfg)
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".skycal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
