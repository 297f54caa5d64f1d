// Package config maps the mdsync configuration file and MDSYNC_*
// environment variables onto typed settings.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const EnvPrefix = "MDSYNC"

type Config struct {
	MangaDex     MangaDex     `mapstructure:"mangadex"`
	MangaUpdates MangaUpdates `mapstructure:"mangaupdates"`
	Output       Output       `mapstructure:"output"`
	DB           DB           `mapstructure:"db"`
}

// MangaDex holds the personal API client credentials.
type MangaDex struct {
	Username     string        `mapstructure:"username" default:""`
	Password     string        `mapstructure:"password" default:""`
	ClientID     string        `mapstructure:"client_id" default:""`
	ClientSecret string        `mapstructure:"client_secret" default:""`
	Throttle     time.Duration `mapstructure:"throttle" default:"500ms"`
}

type MangaUpdates struct {
	Username string `mapstructure:"username" default:""`
	Password string `mapstructure:"password" default:""`
	// Mappings points to a JSON object remapping legacy identifiers.
	Mappings string        `mapstructure:"mappings" default:""`
	Throttle time.Duration `mapstructure:"throttle" default:"1100ms"`
}

type Output struct {
	Dir string `mapstructure:"dir" default:"."`
}

type DB struct {
	// Path defaults to ~/.config/mdsync/mdsync.sqlite when empty.
	Path string `mapstructure:"path" default:""`
}

// RegisterDefaults makes every key known to v, so AutomaticEnv can find
// it and a freshly written config file lists it.
func RegisterDefaults(v *viper.Viper) {
	bindValues(v, Config{}, "")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load decodes v into a Config. RegisterDefaults must have been called.
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("could not decode config: %w", err)
	}
	return &c, nil
}

func (c MangaDex) Validate() error {
	var missing []string
	for key, value := range map[string]string{
		"mangadex.username":      c.Username,
		"mangadex.password":      c.Password,
		"mangadex.client_id":     c.ClientID,
		"mangadex.client_secret": c.ClientSecret,
	} {
		if value == "" {
			missing = append(missing, key)
		}
	}
	if err := missingKeys(missing); err != nil {
		return err
	}
	if c.Throttle < 0 {
		return errors.New("mangadex.throttle cannot be negative")
	}
	return nil
}

func (c MangaUpdates) Validate() error {
	var missing []string
	if c.Username == "" {
		missing = append(missing, "mangaupdates.username")
	}
	if c.Password == "" {
		missing = append(missing, "mangaupdates.password")
	}
	if err := missingKeys(missing); err != nil {
		return err
	}
	if c.Throttle < 0 {
		return errors.New("mangaupdates.throttle cannot be negative")
	}
	return nil
}

func missingKeys(keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	slices.Sort(keys)
	return fmt.Errorf("missing configuration: %s", strings.Join(keys, ", "))
}

// bindValues walks the struct and registers the `default` tag of every
// leaf under its dotted mapstructure key.
func bindValues(v *viper.Viper, iface any, prefix string) {
	t := reflect.TypeOf(iface)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}

		key := tag
		if prefix != "" {
			key = prefix + "." + tag
		}

		if field.Type.Kind() == reflect.Struct {
			bindValues(v, reflect.New(field.Type).Elem().Interface(), key)
			continue
		}

		v.SetDefault(key, field.Tag.Get("default"))
	}
}
