package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path yields defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadWithParameters loads path and, when the parameter overlay is enabled,
// applies it from src and validates again.
func LoadWithParameters(ctx context.Context, path string, src ParameterSource) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	if !cfg.Parameters.Enabled || src == nil {
		return cfg, nil
	}
	if err := cfg.ApplyParameters(ctx, src); err != nil {
		return nil, fmt.Errorf("load recovery parameters: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config after parameter overlay: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ParameterSource loads parameters under an SSM path, keyed relative to it
type ParameterSource interface {
	Load(ctx context.Context, path string) (map[string]string, error)
}

// ApplyParameters overlays recovery and operational parameters from the
// parameter store. Recovery keys: primary_region, secondary_region,
// template_bucket and <domain>/<field>. Operational keys:
// rto_target_minutes, rpo_target_hours, backup_retention_days.
func (c *Config) ApplyParameters(ctx context.Context, src ParameterSource) error {
	recovery, err := src.Load(ctx, c.Parameters.RecoveryPath)
	if err != nil {
		return err
	}
	operational, err := src.Load(ctx, c.Parameters.OperationalPath)
	if err != nil {
		return err
	}

	if v := recovery["primary_region"]; v != "" {
		c.Regions.Primary = v
	}
	if v := recovery["secondary_region"]; v != "" {
		c.Regions.Secondary = v
	}
	if v := recovery["template_bucket"]; v != "" && c.Archive.Bucket == "" {
		c.Archive.Bucket = v
	}

	var errs []error
	for i := range c.Domains {
		d := &c.Domains[i]
		if err := d.applyParameters(recovery, d.Name+"/"); err != nil {
			errs = append(errs, fmt.Errorf("domain %s: %w", d.Name, err))
		}
	}

	if v := operational["rto_target_minutes"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("rto_target_minutes: %w", err))
		} else {
			c.Objectives.RTO = time.Duration(n) * time.Minute
		}
	}
	if v := operational["rpo_target_hours"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("rpo_target_hours: %w", err))
		} else {
			c.Objectives.RPO = time.Duration(n) * time.Hour
		}
	}
	if v := operational["backup_retention_days"]; v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			errs = append(errs, fmt.Errorf("backup_retention_days: %w", err))
		} else {
			c.Failover.BackupRetentionDays = int32(n)
		}
	}
	return errors.Join(errs...)
}

func (d *DomainConfig) applyParameters(params map[string]string, prefix string) error {
	for key, v := range params {
		field, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		switch field {
		case "primary_target":
			d.PrimaryTarget = v
		case "secondary_target":
			d.SecondaryTarget = v
		case "replica_identifier":
			d.ReplicaIdentifier = v
		case "cluster":
			d.Cluster = v
		case "service":
			d.Service = v
		case "hosted_zone_id":
			d.HostedZoneID = v
		case "record_name":
			d.RecordName = v
		case "secondary_alias_dns":
			d.SecondaryAliasDNS = v
		case "secondary_alias_zone":
			d.SecondaryAliasZone = v
		case "desired_count":
			n, err := strconv.ParseInt(v, 10, 32)
			if err != nil {
				return fmt.Errorf("desired_count: %w", err)
			}
			d.DesiredCount = int32(n)
		}
	}
	return nil
}
