// Package config loads the warmstandby configuration file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/FairForge/warmstandby/internal/cloud"
	"github.com/FairForge/warmstandby/internal/database"
	"github.com/FairForge/warmstandby/internal/ha"
	"github.com/FairForge/warmstandby/internal/logging"
)

type Config struct {
	Regions    RegionsConfig        `yaml:"regions"`
	AWS        AWSConfig            `yaml:"aws"`
	Server     ServerConfig         `yaml:"server"`
	Monitor    MonitorConfig        `yaml:"monitor"`
	Failover   FailoverConfig       `yaml:"failover"`
	Objectives ObjectivesConfig     `yaml:"objectives"`
	Notify     NotifyConfig         `yaml:"notify"`
	Archive    ArchiveConfig        `yaml:"archive"`
	Parameters ParametersConfig     `yaml:"parameters"`
	Database   database.Config      `yaml:"database"`
	Logging    logging.LoggerConfig `yaml:"logging"`
	Domains    []DomainConfig       `yaml:"domains"`
}

type RegionsConfig struct {
	Primary   string `yaml:"primary" default:"ap-southeast-2"`
	Secondary string `yaml:"secondary" default:"us-west-2"`
}

type AWSConfig struct {
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	Endpoint        string `yaml:"endpoint"` // localstack
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout time.Duration `yaml:"write_timeout" default:"15s"`
	JWTSecret    string        `yaml:"jwt_secret"`
	TriggerRate  float64       `yaml:"trigger_rate" default:"0.1"` // per second
	TriggerBurst int           `yaml:"trigger_burst" default:"3"`
}

type MonitorConfig struct {
	Enabled           bool          `yaml:"enabled" default:"true"`
	CheckInterval     time.Duration `yaml:"check_interval" default:"30s"`
	FailureThreshold  int           `yaml:"failure_threshold" default:"3"`
	RecoveryThreshold int           `yaml:"recovery_threshold" default:"2"`
	ProbeTimeout      time.Duration `yaml:"probe_timeout" default:"5s"`
}

type FailoverConfig struct {
	RunTimeout          time.Duration `yaml:"run_timeout" default:"60m"`
	PollInterval        time.Duration `yaml:"poll_interval" default:"30s"`
	PromotionTimeout    time.Duration `yaml:"promotion_timeout" default:"20m"`
	ScalingTimeout      time.Duration `yaml:"scaling_timeout" default:"10m"`
	DNSTimeout          time.Duration `yaml:"dns_timeout" default:"5m"`
	NotifyTimeout       time.Duration `yaml:"notify_timeout" default:"30s"`
	BackupRetentionDays int32         `yaml:"backup_retention_days" default:"7"`
}

type ObjectivesConfig struct {
	Tier           string        `yaml:"tier" default:"warm-standby"`
	RTO            time.Duration `yaml:"rto" default:"30m"`
	RPO            time.Duration `yaml:"rpo" default:"5m"`
	AlertThreshold float64       `yaml:"alert_threshold" default:"0.8"`
}

type NotifyConfig struct {
	TopicARN string `yaml:"topic_arn"`
}

type ArchiveConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix" default:"failover-runs"`
}

type ParametersConfig struct {
	Enabled         bool   `yaml:"enabled"`
	RecoveryPath    string `yaml:"recovery_path" default:"/dr-lab/recovery"`
	OperationalPath string `yaml:"operational_path" default:"/dr-lab/operational"`
}

// DomainConfig is one failover domain. Zero RTO/RPO fall back to Objectives.
type DomainConfig struct {
	Name               string        `yaml:"name"`
	PrimaryTarget      string        `yaml:"primary_target"`
	SecondaryTarget    string        `yaml:"secondary_target"`
	ReplicaIdentifier  string        `yaml:"replica_identifier"`
	Cluster            string        `yaml:"cluster"`
	Service            string        `yaml:"service"`
	DesiredCount       int32         `yaml:"desired_count"`
	HostedZoneID       string        `yaml:"hosted_zone_id"`
	RecordName         string        `yaml:"record_name"`
	SecondaryAliasDNS  string        `yaml:"secondary_alias_dns"`
	SecondaryAliasZone string        `yaml:"secondary_alias_zone"`
	AutoFailover       *bool         `yaml:"auto_failover"`
	RTO                time.Duration `yaml:"rto"`
	RPO                time.Duration `yaml:"rpo"`
}

// Default returns the configuration of the reference deployment.
func Default() *Config {
	return &Config{
		Regions: RegionsConfig{Primary: "ap-southeast-2", Secondary: "us-west-2"},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			TriggerRate:  0.1,
			TriggerBurst: 3,
		},
		Monitor: MonitorConfig{
			Enabled:           true,
			CheckInterval:     30 * time.Second,
			FailureThreshold:  3,
			RecoveryThreshold: 2,
			ProbeTimeout:      5 * time.Second,
		},
		Failover: FailoverConfig{
			RunTimeout:          60 * time.Minute,
			PollInterval:        30 * time.Second,
			PromotionTimeout:    20 * time.Minute,
			ScalingTimeout:      10 * time.Minute,
			DNSTimeout:          5 * time.Minute,
			NotifyTimeout:       30 * time.Second,
			BackupRetentionDays: 7,
		},
		Objectives: ObjectivesConfig{
			Tier:           string(ha.TierWarmStandby),
			RTO:            30 * time.Minute,
			RPO:            5 * time.Minute,
			AlertThreshold: 0.8,
		},
		Archive: ArchiveConfig{Prefix: "failover-runs"},
		Parameters: ParametersConfig{
			RecoveryPath:    cloud.DefaultParameterPath,
			OperationalPath: "/dr-lab/operational",
		},
		Logging: logging.LoggerConfig{Level: logging.LevelInfo, Format: logging.FormatJSON},
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	var errs []error
	if c.Regions.Primary == "" || c.Regions.Secondary == "" {
		errs = append(errs, errors.New("regions: primary and secondary are required"))
	} else if c.Regions.Primary == c.Regions.Secondary {
		errs = append(errs, errors.New("regions: primary and secondary must differ"))
	}
	if c.Monitor.CheckInterval <= 0 {
		errs = append(errs, errors.New("monitor: check_interval must be positive"))
	}
	if c.Monitor.FailureThreshold <= 0 {
		errs = append(errs, errors.New("monitor: failure_threshold must be positive"))
	}
	if c.Failover.RunTimeout <= 0 {
		errs = append(errs, errors.New("failover: run_timeout must be positive"))
	}
	if c.Failover.PollInterval <= 0 {
		errs = append(errs, errors.New("failover: poll_interval must be positive"))
	}
	if c.Server.TriggerRate < 0 || c.Server.TriggerBurst < 0 {
		errs = append(errs, errors.New("server: trigger rate and burst must not be negative"))
	}
	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Objectives.toRTORPO().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("objectives: %w", err))
	}

	seen := make(map[string]bool, len(c.Domains))
	for i, d := range c.Domains {
		if err := d.validate(); err != nil {
			errs = append(errs, fmt.Errorf("domains[%d]: %w", i, err))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("domains[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true
	}
	return errors.Join(errs...)
}

func (d DomainConfig) validate() error {
	required := []struct{ field, value string }{
		{"name", d.Name},
		{"primary_target", d.PrimaryTarget},
		{"replica_identifier", d.ReplicaIdentifier},
		{"cluster", d.Cluster},
		{"service", d.Service},
		{"hosted_zone_id", d.HostedZoneID},
		{"record_name", d.RecordName},
		{"secondary_alias_dns", d.SecondaryAliasDNS},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.field)
		}
	}
	if d.DesiredCount <= 0 {
		return errors.New("desired_count must be positive")
	}
	return nil
}

// ToDomains converts the configured domains for the orchestrator
func (c *Config) ToDomains() []ha.FailoverDomain {
	domains := make([]ha.FailoverDomain, 0, len(c.Domains))
	for _, d := range c.Domains {
		auto := true
		if d.AutoFailover != nil {
			auto = *d.AutoFailover
		}
		domains = append(domains, ha.FailoverDomain{
			Name:               d.Name,
			PrimaryRegion:      c.Regions.Primary,
			SecondaryRegion:    c.Regions.Secondary,
			PrimaryTarget:      d.PrimaryTarget,
			SecondaryTarget:    d.SecondaryTarget,
			ReplicaIdentifier:  d.ReplicaIdentifier,
			Cluster:            d.Cluster,
			Service:            d.Service,
			DesiredCount:       d.DesiredCount,
			HostedZoneID:       d.HostedZoneID,
			RecordName:         d.RecordName,
			SecondaryAliasDNS:  d.SecondaryAliasDNS,
			SecondaryAliasZone: d.SecondaryAliasZone,
			AutoFailover:       auto,
		})
	}
	return domains
}

// Domain returns the named domain
func (c *Config) Domain(name string) (ha.FailoverDomain, bool) {
	for _, d := range c.ToDomains() {
		if d.Name == name {
			return d, true
		}
	}
	return ha.FailoverDomain{}, false
}

// DRConfig returns the orchestrator timeouts
func (c *Config) DRConfig() *ha.DRConfig {
	return &ha.DRConfig{
		RunTimeout:       c.Failover.RunTimeout,
		PollInterval:     c.Failover.PollInterval,
		PromotionTimeout: c.Failover.PromotionTimeout,
		ScalingTimeout:   c.Failover.ScalingTimeout,
		DNSTimeout:       c.Failover.DNSTimeout,
		NotifyTimeout:    c.Failover.NotifyTimeout,
	}
}

// MonitorConfig returns the health monitor settings
func (c *Config) MonitorConfig() *ha.MonitorConfig {
	return &ha.MonitorConfig{
		CheckInterval:     c.Monitor.CheckInterval,
		FailureThreshold:  c.Monitor.FailureThreshold,
		RecoveryThreshold: c.Monitor.RecoveryThreshold,
	}
}

func (o ObjectivesConfig) toRTORPO() ha.RTORPOConfig {
	return ha.RTORPOConfig{
		RTO:            o.RTO,
		RPO:            o.RPO,
		Tier:           ha.ServiceTier(o.Tier),
		AlertThreshold: o.AlertThreshold,
	}
}

// Targets returns the default RTO/RPO targets and any per-domain overrides
func (c *Config) Targets() (ha.RTORPOConfig, map[string]ha.RTORPOConfig) {
	base := c.Objectives.toRTORPO()
	perDomain := make(map[string]ha.RTORPOConfig)
	for _, d := range c.Domains {
		if d.RTO == 0 && d.RPO == 0 {
			continue
		}
		cfg := base
		if d.RTO > 0 {
			cfg.RTO = d.RTO
		}
		if d.RPO > 0 {
			cfg.RPO = d.RPO
		}
		perDomain[d.Name] = cfg
	}
	return base, perDomain
}

// CloudSettings returns the AWS client settings
func (c *Config) CloudSettings() cloud.Settings {
	return cloud.Settings{
		PrimaryRegion:   c.Regions.Primary,
		SecondaryRegion: c.Regions.Secondary,
		AccessKeyID:     c.AWS.AccessKeyID,
		SecretAccessKey: c.AWS.SecretAccessKey,
		SessionToken:    c.AWS.SessionToken,
		Endpoint:        c.AWS.Endpoint,
	}
}
