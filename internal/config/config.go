// internal/config/config.go

// Package config resolves runtime settings by layering defaults, an
// optional TOML file, and environment variables, in that order. The
// environment understands both the canonical AQSENTRY_* names and the
// legacy names older deployments exported, so an existing crontab entry
// keeps working unchanged.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

// Config captures every runtime setting the service needs. Values come
// from defaults, the TOML file, or the environment; later layers win.
type Config struct {
	// SensorID is the primary sensor to poll.
	SensorID string
	// BackupSensorIDs are consulted in order when the primary returns
	// unusable data in failover mode.
	BackupSensorIDs []string
	// SensorAPIBase is the sensor API base URL.
	SensorAPIBase string
	// SensorMode selects the acquisition policy: "failover" or "single".
	SensorMode string
	// StaleAfter is how old sub-sensor data may be before the candidate
	// counts as stale.
	StaleAfter time.Duration
	// FetchTimeout bounds one candidate acquisition end to end.
	FetchTimeout time.Duration

	// Threshold is the AQI level separating acceptable air from air
	// worth an alert.
	Threshold float64

	// IFTTTKey enables the webhook channel when set.
	IFTTTKey string
	// ServiceName is sent with webhook events so recipes can tell
	// installations apart.
	ServiceName string
	// TwilioAccountSID, TwilioAuthToken, SMSFrom, and SMSRecipients
	// together enable the SMS channel.
	TwilioAccountSID string
	TwilioAuthToken  string
	SMSFrom          string
	SMSRecipients    []string
	// PushoverToken and PushoverUser together enable the push channel.
	PushoverToken string
	PushoverUser  string

	// StoreDriver selects the persistence driver: "file" or "memory".
	// The memory driver loses every baseline on restart and exists for
	// short-lived runs only.
	StoreDriver string
	// StorePath is the JSONL reading store location for the file driver.
	StorePath string
	// Retention is how long stored readings are kept.
	Retention time.Duration

	// DailyCutoffHour is the earliest local hour for the daily digest.
	DailyCutoffHour int
	// DailyMinGap is the minimum spacing between digests.
	DailyMinGap time.Duration
	// AdhocDebounce is how long an on-demand reading is served from
	// cache.
	AdhocDebounce time.Duration
	// Timezone names the location used for digest scheduling. Empty or
	// "Local" means the host timezone.
	Timezone string

	// CheckSchedule, DigestSchedule, and HousekeepingSchedule are cron
	// expressions for the three background jobs.
	CheckSchedule        string
	DigestSchedule       string
	HousekeepingSchedule string

	// ListenAddress is the HTTP surface's TCP address.
	ListenAddress string
	// HTTPReadTimeout bounds the time to read incoming requests.
	HTTPReadTimeout time.Duration
	// HTTPWriteTimeout bounds the time to write responses.
	HTTPWriteTimeout time.Duration
	// ShutdownTimeout limits graceful shutdown attempts.
	ShutdownTimeout time.Duration

	// LogFilePath is the log file location; logs also go to stdout.
	LogFilePath string
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogPretty switches the stdout handler to colorized output.
	LogPretty bool

	// GeocoderEnabled turns reverse geocoding of sensor coordinates on.
	GeocoderEnabled bool
	// GeocoderBaseURL overrides the reverse-geocoding endpoint. Empty
	// uses the geocoder package default.
	GeocoderBaseURL string
	// GeocoderTTL is how long resolved place names are cached.
	GeocoderTTL time.Duration

	// HeartbeatURL, when set, is fetched after every successful check so
	// a dead-man's-switch service can alert on silence.
	HeartbeatURL string

	// EventsEnabled turns Kafka publishing of pipeline outcomes on.
	EventsEnabled bool
	// EventsTopic is the destination topic.
	EventsTopic string
	// KafkaBrokers lists the bootstrap brokers.
	KafkaBrokers []string
	// EventsAcks is the producer acknowledgement level (-1 for all).
	EventsAcks int
	// EventsPartitioner is "hash" or "roundrobin".
	EventsPartitioner string

	// ConfigPath records where the TOML file was looked for.
	ConfigPath string
}

const (
	defaultConfigPath    = "aqsentry.toml"
	defaultSensorAPIBase = "https://www.purpleair.com"
	defaultSensorMode    = "failover"
	defaultStaleAfter    = 10 * time.Minute
	defaultFetchTimeout  = 30 * time.Second
	defaultThreshold     = 65.0
	defaultStoreDriver   = "file"
	defaultStorePath     = "data/readings.jsonl"
	defaultRetention     = 4 * 7 * 24 * time.Hour
	defaultCutoffHour    = 8
	defaultDailyMinGap   = 23 * time.Hour
	defaultAdhocDebounce = 30 * time.Minute
	defaultCheckSched    = "* * * * *"
	defaultDigestSched   = "*/5 * * * *"
	defaultHousekeeping  = "47 3 * * *"
	defaultListenAddress = ":8083"
	defaultReadTimeout   = 5 * time.Second
	defaultWriteTimeout  = 10 * time.Second
	defaultShutdown      = 5 * time.Second
	defaultLogFile       = "logs/aqsentry.log"
	defaultLogLevel      = "info"
	defaultGeocoderTTL   = 24 * time.Hour
	defaultEventsTopic   = "aqsentry.events"
	defaultKafkaBrokers  = "kafka:9092"
	defaultServiceName   = "aqsentry"
)

// Load resolves configuration. An empty path falls back to
// AQSENTRY_CONFIG and then to aqsentry.toml; only an explicitly given
// path must exist. The result is not validated here because callers may
// still override fields from flags; call Validate before use.
func Load(path string) (Config, error) {
	cfg := defaults()

	explicit := strings.TrimSpace(path) != ""
	if !explicit {
		if v, ok := lookupEnvTrimmed("AQSENTRY_CONFIG"); ok && v != "" {
			path = v
			explicit = true
		} else {
			path = defaultConfigPath
		}
	}
	cfg.ConfigPath = path

	if err := applyFile(&cfg, path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrapf(err, "load config %s", path)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		SensorAPIBase:        defaultSensorAPIBase,
		SensorMode:           defaultSensorMode,
		StaleAfter:           defaultStaleAfter,
		FetchTimeout:         defaultFetchTimeout,
		Threshold:            defaultThreshold,
		ServiceName:          defaultServiceName,
		StoreDriver:          defaultStoreDriver,
		StorePath:            defaultStorePath,
		Retention:            defaultRetention,
		DailyCutoffHour:      defaultCutoffHour,
		DailyMinGap:          defaultDailyMinGap,
		AdhocDebounce:        defaultAdhocDebounce,
		CheckSchedule:        defaultCheckSched,
		DigestSchedule:       defaultDigestSched,
		HousekeepingSchedule: defaultHousekeeping,
		ListenAddress:        defaultListenAddress,
		HTTPReadTimeout:      defaultReadTimeout,
		HTTPWriteTimeout:     defaultWriteTimeout,
		ShutdownTimeout:      defaultShutdown,
		LogFilePath:          defaultLogFile,
		LogLevel:             defaultLogLevel,
		GeocoderEnabled:      true,
		GeocoderTTL:          defaultGeocoderTTL,
		EventsTopic:          defaultEventsTopic,
		KafkaBrokers:         splitAndTrim(defaultKafkaBrokers),
		EventsAcks:           -1,
		EventsPartitioner:    "hash",
	}
}

// Validate checks the resolved configuration for shape errors. Channel
// credential completeness is checked where the notifier is built, not
// here, because exactly-one-channel is a wiring concern.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SensorID) == "" {
		return errors.New("sensor id is required (sensor.id, AQSENTRY_SENSOR_ID, or PURPLE_AIR_SENSOR_ID)")
	}
	switch c.SensorMode {
	case "failover", "single":
	default:
		return errors.Errorf("unsupported sensor mode %q", c.SensorMode)
	}
	if c.Threshold <= 0 || c.Threshold > 500 {
		return errors.Errorf("threshold %.1f out of range (0, 500]", c.Threshold)
	}
	if c.DailyCutoffHour < 0 || c.DailyCutoffHour > 23 {
		return errors.Errorf("daily cutoff hour %d out of range", c.DailyCutoffHour)
	}
	if c.Retention <= 0 {
		return errors.New("retention must be positive")
	}
	switch c.StoreDriver {
	case "file":
		if strings.TrimSpace(c.StorePath) == "" {
			return errors.New("store path cannot be empty with the file driver")
		}
	case "memory":
	default:
		return errors.Errorf("unsupported store driver %q", c.StoreDriver)
	}
	if strings.TrimSpace(c.ListenAddress) == "" {
		return errors.New("listen address cannot be empty")
	}
	if _, err := c.Location(); err != nil {
		return errors.Wrapf(err, "timezone %q", c.Timezone)
	}
	if c.EventsEnabled {
		if strings.TrimSpace(c.EventsTopic) == "" {
			return errors.New("events topic cannot be empty when events are enabled")
		}
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka brokers cannot be empty when events are enabled")
		}
	}
	switch c.EventsPartitioner {
	case "", "hash", "roundrobin":
	default:
		return errors.Errorf("unsupported partitioner %q", c.EventsPartitioner)
	}
	return nil
}

// Location resolves the configured timezone.
func (c Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

// fileConfig mirrors the TOML layout. Pointer fields distinguish a key
// that is absent from one set to its zero value.
type fileConfig struct {
	Sensor struct {
		ID             *string  `toml:"id"`
		Backups        []string `toml:"backups"`
		APIBase        *string  `toml:"api_base"`
		Mode           *string  `toml:"mode"`
		StaleAfterMS   *int     `toml:"stale_after_ms"`
		FetchTimeoutMS *int     `toml:"fetch_timeout_ms"`
	} `toml:"sensor"`
	Threshold struct {
		AQI *float64 `toml:"aqi"`
	} `toml:"threshold"`
	Notify struct {
		IFTTTKey         *string  `toml:"ifttt_key"`
		ServiceName      *string  `toml:"service_name"`
		TwilioAccountSID *string  `toml:"twilio_account_sid"`
		TwilioAuthToken  *string  `toml:"twilio_auth_token"`
		SMSFrom          *string  `toml:"sms_from"`
		SMSRecipients    []string `toml:"sms_recipients"`
		PushoverToken    *string  `toml:"pushover_token"`
		PushoverUser     *string  `toml:"pushover_user"`
	} `toml:"notify"`
	Store struct {
		Driver         *string `toml:"driver"`
		Path           *string `toml:"path"`
		RetentionHours *int    `toml:"retention_hours"`
	} `toml:"store"`
	Report struct {
		DailyCutoffHour  *int    `toml:"daily_cutoff_hour"`
		DailyMinGapHours *int    `toml:"daily_min_gap_hours"`
		AdhocDebounceMS  *int    `toml:"adhoc_debounce_ms"`
		Timezone         *string `toml:"timezone"`
	} `toml:"report"`
	Schedule struct {
		Check        *string `toml:"check"`
		Digest       *string `toml:"digest"`
		Housekeeping *string `toml:"housekeeping"`
	} `toml:"schedule"`
	HTTP struct {
		ListenAddress     *string `toml:"listen_address"`
		ReadTimeoutMS     *int    `toml:"read_timeout_ms"`
		WriteTimeoutMS    *int    `toml:"write_timeout_ms"`
		ShutdownTimeoutMS *int    `toml:"shutdown_timeout_ms"`
	} `toml:"http"`
	Log struct {
		Path   *string `toml:"path"`
		Level  *string `toml:"level"`
		Pretty *bool   `toml:"pretty"`
	} `toml:"log"`
	Geocoder struct {
		Enabled       *bool   `toml:"enabled"`
		BaseURL       *string `toml:"base_url"`
		CacheTTLHours *int    `toml:"cache_ttl_hours"`
	} `toml:"geocoder"`
	Heartbeat struct {
		URL *string `toml:"url"`
	} `toml:"heartbeat"`
	Events struct {
		Enabled     *bool    `toml:"enabled"`
		Topic       *string  `toml:"topic"`
		Brokers     []string `toml:"brokers"`
		Acks        *int     `toml:"acks"`
		Partitioner *string  `toml:"partitioner"`
	} `toml:"events"`
}

func applyFile(cfg *Config, path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return err
	}

	setString(&cfg.SensorID, fc.Sensor.ID)
	if fc.Sensor.Backups != nil {
		cfg.BackupSensorIDs = trimAll(fc.Sensor.Backups)
	}
	setString(&cfg.SensorAPIBase, fc.Sensor.APIBase)
	setString(&cfg.SensorMode, fc.Sensor.Mode)
	if err := setMillis(&cfg.StaleAfter, fc.Sensor.StaleAfterMS, "sensor.stale_after_ms"); err != nil {
		return err
	}
	if err := setMillis(&cfg.FetchTimeout, fc.Sensor.FetchTimeoutMS, "sensor.fetch_timeout_ms"); err != nil {
		return err
	}

	if fc.Threshold.AQI != nil {
		cfg.Threshold = *fc.Threshold.AQI
	}

	setString(&cfg.IFTTTKey, fc.Notify.IFTTTKey)
	setString(&cfg.ServiceName, fc.Notify.ServiceName)
	setString(&cfg.TwilioAccountSID, fc.Notify.TwilioAccountSID)
	setString(&cfg.TwilioAuthToken, fc.Notify.TwilioAuthToken)
	setString(&cfg.SMSFrom, fc.Notify.SMSFrom)
	if fc.Notify.SMSRecipients != nil {
		cfg.SMSRecipients = trimAll(fc.Notify.SMSRecipients)
	}
	setString(&cfg.PushoverToken, fc.Notify.PushoverToken)
	setString(&cfg.PushoverUser, fc.Notify.PushoverUser)

	setString(&cfg.StoreDriver, fc.Store.Driver)
	setString(&cfg.StorePath, fc.Store.Path)
	if err := setHours(&cfg.Retention, fc.Store.RetentionHours, "store.retention_hours"); err != nil {
		return err
	}

	if fc.Report.DailyCutoffHour != nil {
		cfg.DailyCutoffHour = *fc.Report.DailyCutoffHour
	}
	if err := setHours(&cfg.DailyMinGap, fc.Report.DailyMinGapHours, "report.daily_min_gap_hours"); err != nil {
		return err
	}
	if err := setMillis(&cfg.AdhocDebounce, fc.Report.AdhocDebounceMS, "report.adhoc_debounce_ms"); err != nil {
		return err
	}
	setString(&cfg.Timezone, fc.Report.Timezone)

	setString(&cfg.CheckSchedule, fc.Schedule.Check)
	setString(&cfg.DigestSchedule, fc.Schedule.Digest)
	setString(&cfg.HousekeepingSchedule, fc.Schedule.Housekeeping)

	setString(&cfg.ListenAddress, fc.HTTP.ListenAddress)
	if err := setMillis(&cfg.HTTPReadTimeout, fc.HTTP.ReadTimeoutMS, "http.read_timeout_ms"); err != nil {
		return err
	}
	if err := setMillis(&cfg.HTTPWriteTimeout, fc.HTTP.WriteTimeoutMS, "http.write_timeout_ms"); err != nil {
		return err
	}
	if err := setMillis(&cfg.ShutdownTimeout, fc.HTTP.ShutdownTimeoutMS, "http.shutdown_timeout_ms"); err != nil {
		return err
	}

	setString(&cfg.LogFilePath, fc.Log.Path)
	setString(&cfg.LogLevel, fc.Log.Level)
	if fc.Log.Pretty != nil {
		cfg.LogPretty = *fc.Log.Pretty
	}

	if fc.Geocoder.Enabled != nil {
		cfg.GeocoderEnabled = *fc.Geocoder.Enabled
	}
	setString(&cfg.GeocoderBaseURL, fc.Geocoder.BaseURL)
	if err := setHours(&cfg.GeocoderTTL, fc.Geocoder.CacheTTLHours, "geocoder.cache_ttl_hours"); err != nil {
		return err
	}

	setString(&cfg.HeartbeatURL, fc.Heartbeat.URL)

	if fc.Events.Enabled != nil {
		cfg.EventsEnabled = *fc.Events.Enabled
	}
	setString(&cfg.EventsTopic, fc.Events.Topic)
	if fc.Events.Brokers != nil {
		cfg.KafkaBrokers = trimAll(fc.Events.Brokers)
	}
	if fc.Events.Acks != nil {
		cfg.EventsAcks = *fc.Events.Acks
	}
	setString(&cfg.EventsPartitioner, fc.Events.Partitioner)

	return nil
}

func applyEnv(cfg *Config) error {
	if err := envString(&cfg.SensorID, "AQSENTRY_SENSOR_ID", "PURPLE_AIR_SENSOR_ID"); err != nil {
		return err
	}
	if err := envList(&cfg.BackupSensorIDs, "AQSENTRY_BACKUP_SENSOR_IDS", "BACKUP_PURPLE_AIR_SENSOR_ID"); err != nil {
		return err
	}
	if err := envString(&cfg.SensorAPIBase, "AQSENTRY_SENSOR_API_BASE"); err != nil {
		return err
	}
	if err := envString(&cfg.SensorMode, "AQSENTRY_SENSOR_MODE"); err != nil {
		return err
	}
	if err := envMillis(&cfg.StaleAfter, "AQSENTRY_STALE_AFTER_MS"); err != nil {
		return err
	}
	if err := envMillis(&cfg.FetchTimeout, "AQSENTRY_FETCH_TIMEOUT_MS"); err != nil {
		return err
	}
	if err := envFloat(&cfg.Threshold, "AQSENTRY_THRESHOLD"); err != nil {
		return err
	}

	if err := envString(&cfg.IFTTTKey, "AQSENTRY_IFTTT_KEY", "IFTTT_WH_KEY"); err != nil {
		return err
	}
	if err := envString(&cfg.ServiceName, "AQSENTRY_SERVICE_NAME"); err != nil {
		return err
	}
	if err := envString(&cfg.TwilioAccountSID, "AQSENTRY_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID"); err != nil {
		return err
	}
	if err := envString(&cfg.TwilioAuthToken, "AQSENTRY_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN"); err != nil {
		return err
	}
	if err := envString(&cfg.SMSFrom, "AQSENTRY_SMS_FROM", "SMS_FROM"); err != nil {
		return err
	}
	if err := envList(&cfg.SMSRecipients, "AQSENTRY_SMS_RECIPIENTS", "SMS_RECIPIENTS"); err != nil {
		return err
	}
	if err := envString(&cfg.PushoverToken, "AQSENTRY_PUSHOVER_TOKEN"); err != nil {
		return err
	}
	if err := envString(&cfg.PushoverUser, "AQSENTRY_PUSHOVER_USER"); err != nil {
		return err
	}

	if err := envString(&cfg.StoreDriver, "AQSENTRY_STORE_DRIVER"); err != nil {
		return err
	}
	if err := envString(&cfg.StorePath, "AQSENTRY_STORE_PATH"); err != nil {
		return err
	}
	if err := envHours(&cfg.Retention, "AQSENTRY_RETENTION_HOURS"); err != nil {
		return err
	}

	if err := envInt(&cfg.DailyCutoffHour, "AQSENTRY_DAILY_CUTOFF_HOUR"); err != nil {
		return err
	}
	if err := envHours(&cfg.DailyMinGap, "AQSENTRY_DAILY_MIN_GAP_HOURS"); err != nil {
		return err
	}
	if err := envMillis(&cfg.AdhocDebounce, "AQSENTRY_ADHOC_DEBOUNCE_MS"); err != nil {
		return err
	}
	if err := envString(&cfg.Timezone, "AQSENTRY_TIMEZONE"); err != nil {
		return err
	}

	if err := envString(&cfg.CheckSchedule, "AQSENTRY_CHECK_SCHEDULE"); err != nil {
		return err
	}
	if err := envString(&cfg.DigestSchedule, "AQSENTRY_DIGEST_SCHEDULE"); err != nil {
		return err
	}
	if err := envString(&cfg.HousekeepingSchedule, "AQSENTRY_HOUSEKEEPING_SCHEDULE"); err != nil {
		return err
	}

	if err := envString(&cfg.ListenAddress, "AQSENTRY_LISTEN_ADDRESS"); err != nil {
		return err
	}
	if err := envMillis(&cfg.HTTPReadTimeout, "AQSENTRY_HTTP_READ_TIMEOUT_MS"); err != nil {
		return err
	}
	if err := envMillis(&cfg.HTTPWriteTimeout, "AQSENTRY_HTTP_WRITE_TIMEOUT_MS"); err != nil {
		return err
	}
	if err := envMillis(&cfg.ShutdownTimeout, "AQSENTRY_SHUTDOWN_TIMEOUT_MS"); err != nil {
		return err
	}

	if err := envString(&cfg.LogFilePath, "AQSENTRY_LOG_PATH"); err != nil {
		return err
	}
	if err := envString(&cfg.LogLevel, "AQSENTRY_LOG_LEVEL"); err != nil {
		return err
	}
	if err := envBool(&cfg.LogPretty, "AQSENTRY_LOG_PRETTY"); err != nil {
		return err
	}

	if err := envBool(&cfg.GeocoderEnabled, "AQSENTRY_GEOCODER_ENABLED"); err != nil {
		return err
	}
	if err := envString(&cfg.GeocoderBaseURL, "AQSENTRY_GEOCODER_BASE_URL"); err != nil {
		return err
	}
	if err := envHours(&cfg.GeocoderTTL, "AQSENTRY_GEOCODER_TTL_HOURS"); err != nil {
		return err
	}

	if err := envString(&cfg.HeartbeatURL, "AQSENTRY_HEARTBEAT_URL", "DEADMAN_SNITCH"); err != nil {
		return err
	}

	if err := envBool(&cfg.EventsEnabled, "AQSENTRY_EVENTS_ENABLED"); err != nil {
		return err
	}
	if err := envString(&cfg.EventsTopic, "AQSENTRY_EVENTS_TOPIC"); err != nil {
		return err
	}
	if err := envList(&cfg.KafkaBrokers, "AQSENTRY_KAFKA_BROKERS", "KAFKA_BROKERS"); err != nil {
		return err
	}
	if err := envInt(&cfg.EventsAcks, "AQSENTRY_EVENTS_ACKS"); err != nil {
		return err
	}
	if err := envString(&cfg.EventsPartitioner, "AQSENTRY_EVENTS_PARTITIONER"); err != nil {
		return err
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = strings.TrimSpace(*v)
	}
}

func setMillis(dst *time.Duration, v *int, key string) error {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		return errors.Errorf("%s must be greater than zero", key)
	}
	*dst = time.Duration(*v) * time.Millisecond
	return nil
}

func setHours(dst *time.Duration, v *int, key string) error {
	if v == nil {
		return nil
	}
	if *v <= 0 {
		return errors.Errorf("%s must be greater than zero", key)
	}
	*dst = time.Duration(*v) * time.Hour
	return nil
}

// envString sets dst from the first present key. A key that is present
// but empty is a deployment mistake and fails loudly.
func envString(dst *string, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		if v == "" {
			return errors.Errorf("%s cannot be empty", key)
		}
		*dst = v
		return nil
	}
	return nil
}

func envList(dst *[]string, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		items := splitAndTrim(v)
		if len(items) == 0 {
			return errors.Errorf("%s cannot be empty", key)
		}
		*dst = items
		return nil
	}
	return nil
}

func envMillis(dst *time.Duration, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		d, err := parsePositiveMillis(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = d
		return nil
	}
	return nil
}

func envHours(dst *time.Duration, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		if n <= 0 {
			return errors.Errorf("%s must be greater than zero", key)
		}
		*dst = time.Duration(n) * time.Hour
		return nil
	}
	return nil
}

func envInt(dst *int, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = n
		return nil
	}
	return nil
}

func envFloat(dst *float64, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "%s", key)
		}
		*dst = f
		return nil
	}
	return nil
}

func envBool(dst *bool, keys ...string) error {
	for _, key := range keys {
		v, ok := lookupEnvTrimmed(key)
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			*dst = true
		case "0", "false", "no", "off":
			*dst = false
		default:
			return errors.Errorf("%s: invalid boolean %q", key, v)
		}
		return nil
	}
	return nil
}

func lookupEnvTrimmed(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func splitAndTrim(raw string) []string {
	fields := strings.Split(raw, ",")
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		trimmed := strings.TrimSpace(field)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parsePositiveMillis(v string) (time.Duration, error) {
	ms, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrap(err, "invalid integer")
	}
	if ms <= 0 {
		return 0, errors.New("value must be greater than zero")
	}
	return time.Duration(ms) * time.Millisecond, nil
}
