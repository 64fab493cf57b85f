package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"
)

const (
	appSoftwareName = "lightWatch"
	defaultDataDir  = "data"

	defaultStatusAddr           = ":5000"
	defaultProbeInterval        = 10 * time.Second
	defaultOnThreshold          = 3
	defaultOffThreshold         = 3
	defaultProbeTimeout         = 2 * time.Second
	defaultMaxConcurrentProbes  = 8
	defaultScheduleCheckEvery   = time.Hour
	defaultScheduleEveningHour  = 20
	defaultScheduleGroup        = "2.1"
	defaultTimezone             = "Europe/Kyiv"
	defaultScheduleAPIBase      = "https://app.yasno.ua/api/blackout-service/public/shutdowns"
	defaultScheduleRegion       = 25
	defaultScheduleDSO          = 902
	defaultCombinePolicy        = policyAnyUp
)

type Config struct {
	// StatusAddr is the HTTP listen address for the report/read API.
	StatusAddr string
	// APIToken is the pre-shared token required on every authenticated
	// endpoint. Loaded exclusively from secrets.toml.
	APIToken string
	DataDir  string
	// TimezoneName selects the location used for schedule timestamps,
	// the evening digest hour, and digest date markers.
	TimezoneName string
	LogDebug     bool

	// Discord delivery. The bot token lives in secrets.toml; an empty
	// token or channel disables the notifier cleanly.
	DiscordBotToken        string
	DiscordServerID        string
	DiscordNotifyChannelID string

	// Outage-schedule monitoring.
	ScheduleEnabled       bool
	ScheduleAPIBaseURL    string
	ScheduleRegion        int
	ScheduleDSO           int
	ScheduleGroup         string
	ScheduleCheckInterval time.Duration
	ScheduleEveningHour   int

	// Watchdog (probe-side) settings, used when running with -watchdog.
	ReportURL           string
	ProbeInterval       time.Duration
	ProbeTimeout        time.Duration
	OnThreshold         int
	OffThreshold        int
	CombinePolicyName   string
	MaxConcurrentProbes int
	ProbeTargets        []probeTarget
}

// fileConfig mirrors Config with pointer fields so absent TOML keys keep
// their defaults instead of zeroing them.
type fileConfig struct {
	StatusAddr   *string `toml:"status_listen"`
	DataDir      *string `toml:"data_dir"`
	TimezoneName *string `toml:"timezone"`
	LogDebug     *bool   `toml:"log_debug"`

	DiscordServerID        *string `toml:"discord_server_id"`
	DiscordNotifyChannelID *string `toml:"discord_notify_channel_id"`

	ScheduleEnabled          *bool   `toml:"schedule_enabled"`
	ScheduleAPIBaseURL       *string `toml:"schedule_api_base_url"`
	ScheduleRegion           *int    `toml:"schedule_region"`
	ScheduleDSO              *int    `toml:"schedule_dso"`
	ScheduleGroup            *string `toml:"schedule_group"`
	ScheduleCheckIntervalSec *int    `toml:"schedule_check_interval_seconds"`
	ScheduleEveningHour      *int    `toml:"schedule_evening_hour"`

	ReportURL           *string            `toml:"report_url"`
	ProbeIntervalSec    *int               `toml:"probe_interval_seconds"`
	ProbeTimeoutSec     *int               `toml:"probe_timeout_seconds"`
	OnThreshold         *int               `toml:"on_threshold"`
	OffThreshold        *int               `toml:"off_threshold"`
	CombinePolicyName   *string            `toml:"combine_policy"`
	MaxConcurrentProbes *int               `toml:"max_concurrent_probes"`
	ProbeTargets        []probeTargetEntry `toml:"probe_targets"`
}

type probeTargetEntry struct {
	Name string `toml:"name"`
	Kind string `toml:"kind"`
	Addr string `toml:"addr"`
}

// secretsConfig holds sensitive values that operators keep out of the main
// config.toml so it can be checked into version control or shared freely.
type secretsConfig struct {
	APIToken        string `toml:"api_token"`
	DiscordBotToken string `toml:"discord_bot_token"`
}

func defaultConfig() Config {
	return Config{
		StatusAddr:            defaultStatusAddr,
		DataDir:               defaultDataDir,
		TimezoneName:          defaultTimezone,
		ScheduleEnabled:       true,
		ScheduleAPIBaseURL:    defaultScheduleAPIBase,
		ScheduleRegion:        defaultScheduleRegion,
		ScheduleDSO:           defaultScheduleDSO,
		ScheduleGroup:         defaultScheduleGroup,
		ScheduleCheckInterval: defaultScheduleCheckEvery,
		ScheduleEveningHour:   defaultScheduleEveningHour,
		ProbeInterval:         defaultProbeInterval,
		ProbeTimeout:          defaultProbeTimeout,
		OnThreshold:           defaultOnThreshold,
		OffThreshold:          defaultOffThreshold,
		CombinePolicyName:     defaultCombinePolicy,
		MaxConcurrentProbes:   defaultMaxConcurrentProbes,
	}
}

// defaultConfigPath returns the preferred path for the main config. Newer
// deployments keep config under data/state/config.toml; if that file is
// missing, we fall back to the legacy data/config.toml location.
func defaultConfigPath() string {
	stateCfg := filepath.Join(defaultDataDir, "state", "config.toml")
	if _, err := os.Stat(stateCfg); err == nil {
		return stateCfg
	}
	return filepath.Join(defaultDataDir, "config.toml")
}

func loadConfig(configPath, secretsPath string) Config {
	cfg := defaultConfig()

	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if fc, ok, err := loadConfigFile(configPath); err != nil {
		fatal("config file", err, "path", configPath)
	} else if ok {
		applyFileConfig(&cfg, *fc)
	} else {
		// Config file doesn't exist, write out defaults.
		if err := writeDefaultConfigFile(configPath, cfg); err != nil {
			fatal("write default config", err, "path", configPath)
		}
		logger.Info("created default config file", "path", configPath)
	}

	// Optional secrets overlay: values from secrets.toml override the
	// sensitive fields. Prefer data_dir/state/secrets.toml, fall back to
	// data_dir/secrets.toml.
	if secretsPath == "" {
		stateSecretsPath := filepath.Join(cfg.DataDir, "state", "secrets.toml")
		if _, err := os.Stat(stateSecretsPath); err == nil {
			secretsPath = stateSecretsPath
		} else {
			secretsPath = filepath.Join(cfg.DataDir, "secrets.toml")
		}
	}
	if sc, ok, err := loadSecretsFile(secretsPath); err != nil {
		fatal("secrets file", err, "path", secretsPath)
	} else if ok {
		applySecretsConfig(&cfg, *sc)
	}

	return cfg
}

func loadConfigFile(path string) (*fileConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg fileConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, true, nil
}

func loadSecretsFile(path string) (*secretsConfig, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", path, err)
	}

	var cfg secretsConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, true, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, true, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.StatusAddr != nil {
		cfg.StatusAddr = strings.TrimSpace(*fc.StatusAddr)
	}
	if fc.DataDir != nil && strings.TrimSpace(*fc.DataDir) != "" {
		cfg.DataDir = strings.TrimSpace(*fc.DataDir)
	}
	if fc.TimezoneName != nil && strings.TrimSpace(*fc.TimezoneName) != "" {
		cfg.TimezoneName = strings.TrimSpace(*fc.TimezoneName)
	}
	if fc.LogDebug != nil {
		cfg.LogDebug = *fc.LogDebug
	}
	if fc.DiscordServerID != nil {
		cfg.DiscordServerID = strings.TrimSpace(*fc.DiscordServerID)
	}
	if fc.DiscordNotifyChannelID != nil {
		cfg.DiscordNotifyChannelID = strings.TrimSpace(*fc.DiscordNotifyChannelID)
	}
	if fc.ScheduleEnabled != nil {
		cfg.ScheduleEnabled = *fc.ScheduleEnabled
	}
	if fc.ScheduleAPIBaseURL != nil && strings.TrimSpace(*fc.ScheduleAPIBaseURL) != "" {
		cfg.ScheduleAPIBaseURL = strings.TrimSpace(*fc.ScheduleAPIBaseURL)
	}
	if fc.ScheduleRegion != nil {
		cfg.ScheduleRegion = *fc.ScheduleRegion
	}
	if fc.ScheduleDSO != nil {
		cfg.ScheduleDSO = *fc.ScheduleDSO
	}
	if fc.ScheduleGroup != nil && strings.TrimSpace(*fc.ScheduleGroup) != "" {
		cfg.ScheduleGroup = strings.TrimSpace(*fc.ScheduleGroup)
	}
	if fc.ScheduleCheckIntervalSec != nil && *fc.ScheduleCheckIntervalSec > 0 {
		cfg.ScheduleCheckInterval = time.Duration(*fc.ScheduleCheckIntervalSec) * time.Second
	}
	if fc.ScheduleEveningHour != nil {
		cfg.ScheduleEveningHour = *fc.ScheduleEveningHour
	}
	if fc.ReportURL != nil {
		cfg.ReportURL = strings.TrimSpace(*fc.ReportURL)
	}
	if fc.ProbeIntervalSec != nil && *fc.ProbeIntervalSec > 0 {
		cfg.ProbeInterval = time.Duration(*fc.ProbeIntervalSec) * time.Second
	}
	if fc.ProbeTimeoutSec != nil && *fc.ProbeTimeoutSec > 0 {
		cfg.ProbeTimeout = time.Duration(*fc.ProbeTimeoutSec) * time.Second
	}
	if fc.OnThreshold != nil {
		cfg.OnThreshold = *fc.OnThreshold
	}
	if fc.OffThreshold != nil {
		cfg.OffThreshold = *fc.OffThreshold
	}
	if fc.CombinePolicyName != nil && strings.TrimSpace(*fc.CombinePolicyName) != "" {
		cfg.CombinePolicyName = strings.TrimSpace(*fc.CombinePolicyName)
	}
	if fc.MaxConcurrentProbes != nil && *fc.MaxConcurrentProbes > 0 {
		cfg.MaxConcurrentProbes = *fc.MaxConcurrentProbes
	}
	if len(fc.ProbeTargets) > 0 {
		targets := make([]probeTarget, 0, len(fc.ProbeTargets))
		for _, t := range fc.ProbeTargets {
			targets = append(targets, probeTarget{
				Name: strings.TrimSpace(t.Name),
				Kind: strings.ToLower(strings.TrimSpace(t.Kind)),
				Addr: strings.TrimSpace(t.Addr),
			})
		}
		cfg.ProbeTargets = targets
	}
}

func applySecretsConfig(cfg *Config, sc secretsConfig) {
	if strings.TrimSpace(sc.APIToken) != "" {
		cfg.APIToken = strings.TrimSpace(sc.APIToken)
	}
	if strings.TrimSpace(sc.DiscordBotToken) != "" {
		cfg.DiscordBotToken = strings.TrimSpace(sc.DiscordBotToken)
	}
}

func writeDefaultConfigFile(path string, cfg Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	strPtr := func(v string) *string { return &v }
	intPtr := func(v int) *int { return &v }
	boolPtr := func(v bool) *bool { return &v }

	fc := fileConfig{
		StatusAddr:               strPtr(cfg.StatusAddr),
		DataDir:                  strPtr(cfg.DataDir),
		TimezoneName:             strPtr(cfg.TimezoneName),
		LogDebug:                 boolPtr(cfg.LogDebug),
		DiscordServerID:          strPtr(cfg.DiscordServerID),
		DiscordNotifyChannelID:   strPtr(cfg.DiscordNotifyChannelID),
		ScheduleEnabled:          boolPtr(cfg.ScheduleEnabled),
		ScheduleAPIBaseURL:       strPtr(cfg.ScheduleAPIBaseURL),
		ScheduleRegion:           intPtr(cfg.ScheduleRegion),
		ScheduleDSO:              intPtr(cfg.ScheduleDSO),
		ScheduleGroup:            strPtr(cfg.ScheduleGroup),
		ScheduleCheckIntervalSec: intPtr(int(cfg.ScheduleCheckInterval / time.Second)),
		ScheduleEveningHour:      intPtr(cfg.ScheduleEveningHour),
		ReportURL:                strPtr(cfg.ReportURL),
		ProbeIntervalSec:         intPtr(int(cfg.ProbeInterval / time.Second)),
		ProbeTimeoutSec:          intPtr(int(cfg.ProbeTimeout / time.Second)),
		OnThreshold:              intPtr(cfg.OnThreshold),
		OffThreshold:             intPtr(cfg.OffThreshold),
		CombinePolicyName:        strPtr(cfg.CombinePolicyName),
		MaxConcurrentProbes:      intPtr(cfg.MaxConcurrentProbes),
		ProbeTargets: []probeTargetEntry{
			{Name: "router", Kind: "tcp", Addr: "192.168.1.1:80"},
		},
	}

	data, err := toml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	header := []byte("# Generated " + appSoftwareName + " config (edit and restart)\n\n")
	return os.WriteFile(path, append(header, data...), 0o644)
}

func validateConfig(cfg Config, watchdogMode bool) error {
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir must not be empty")
	}
	if _, err := time.LoadLocation(cfg.TimezoneName); err != nil {
		return fmt.Errorf("timezone %q: %w", cfg.TimezoneName, err)
	}
	if watchdogMode {
		if strings.TrimSpace(cfg.ReportURL) == "" {
			return errors.New("report_url is required in watchdog mode")
		}
		if strings.TrimSpace(cfg.APIToken) == "" {
			return errors.New("api_token is required in watchdog mode (secrets.toml)")
		}
		if cfg.OnThreshold < 1 {
			return fmt.Errorf("on_threshold must be >= 1, got %d", cfg.OnThreshold)
		}
		if cfg.OffThreshold < 1 {
			return fmt.Errorf("off_threshold must be >= 1, got %d", cfg.OffThreshold)
		}
		if len(cfg.ProbeTargets) == 0 {
			return errors.New("at least one probe target is required in watchdog mode")
		}
		for _, t := range cfg.ProbeTargets {
			if t.Addr == "" {
				return fmt.Errorf("probe target %q has no addr", t.Name)
			}
			switch t.Kind {
			case probeKindTCP, probeKindHTTP:
			default:
				return fmt.Errorf("probe target %q has unknown kind %q", t.Name, t.Kind)
			}
		}
		if _, err := combinePolicyByName(cfg.CombinePolicyName); err != nil {
			return err
		}
		return nil
	}
	if strings.TrimSpace(cfg.StatusAddr) == "" {
		return errors.New("status_listen must not be empty")
	}
	if strings.TrimSpace(cfg.APIToken) == "" {
		return errors.New("api_token is not set; add it to secrets.toml")
	}
	if cfg.ScheduleEnabled {
		if strings.TrimSpace(cfg.ScheduleGroup) == "" {
			return errors.New("schedule_group must not be empty")
		}
		if cfg.ScheduleEveningHour < 0 || cfg.ScheduleEveningHour > 23 {
			return fmt.Errorf("schedule_evening_hour must be 0-23, got %d", cfg.ScheduleEveningHour)
		}
	}
	return nil
}

// State file locations, one fixed path per deployment per record kind.

func (cfg Config) stateDir() string {
	return filepath.Join(cfg.DataDir, "state")
}

func (cfg Config) powerStateFilePath() string {
	return filepath.Join(cfg.stateDir(), "power_status.txt")
}

func (cfg Config) scheduleHashFilePath() string {
	key := fmt.Sprintf("schedule_hash_%d_%d_%s.txt", cfg.ScheduleRegion, cfg.ScheduleDSO, cfg.ScheduleGroup)
	return filepath.Join(cfg.stateDir(), key)
}

func (cfg Config) digestSentFilePath() string {
	return filepath.Join(cfg.stateDir(), "digest_sent_date.txt")
}

func (cfg Config) subscriberDBPath() string {
	return filepath.Join(cfg.stateDir(), "subscribers.db")
}

func (cfg Config) logFilePath() string {
	return filepath.Join(cfg.DataDir, "logs", "lightwatch.log")
}

func (cfg Config) debugLogFilePath() string {
	return filepath.Join(cfg.DataDir, "logs", "debug.log")
}
