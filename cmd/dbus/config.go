package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// config is the contents of the optional defaults file, for example:
//
//	session = true
//	timeout = "5s"
//	names = ["org.example.Echo"]
type config struct {
	Session bool     `toml:"session"`
	Verbose bool     `toml:"verbose"`
	Timeout string   `toml:"timeout"`
	Names   []string `toml:"names"`

	timeout time.Duration
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dbusmsg", "config.toml")
}

// readConfig reads the defaults file at path. If path is empty, the
// file in the user's config directory is used if it exists.
func readConfig(path string) (*config, error) {
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath()
		if path == "" {
			return &config{}, nil
		}
	}

	bs, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return &config{}, nil
	} else if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parseConfig(string(bs))
}

func parseConfig(s string) (*config, error) {
	var ret config
	md, err := toml.Decode(s, &ret)
	if err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if extra := md.Undecoded(); len(extra) > 0 {
		keys := make([]string, 0, len(extra))
		for _, k := range extra {
			keys = append(keys, k.String())
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	if ret.Timeout != "" {
		ret.timeout, err = time.ParseDuration(ret.Timeout)
		if err != nil {
			return nil, fmt.Errorf("parsing config timeout: %w", err)
		}
	}
	return &ret, nil
}
