package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "LANGRUN_"

// Load reads a configuration file over Default. The decoder is chosen by
// extension: .toml, or .yaml/.yml. Keys absent from the file keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := Decode(path, data, &cfg); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Decode parses data into cfg using the decoder for path's extension.
func Decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return decodeTOML(path, data, cfg)
	case ".yaml", ".yml":
		return decodeYAML(path, data, cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func decodeTOML(path string, data []byte, cfg *Config) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		pe := &ParseError{Path: path, Message: err.Error(), Err: err}
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			pe.Line, pe.Column = derr.Position()
		}
		var serr *toml.StrictMissingError
		if errors.As(err, &serr) {
			pe.Message = serr.String()
		}
		return pe
	}
	return nil
}

func decodeYAML(path string, data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		// An empty document leaves the defaults in place.
		if errors.Is(err, io.EOF) {
			return nil
		}
		pe := &ParseError{Path: path, Message: err.Error(), Err: err}
		var terr *yaml.TypeError
		if errors.As(err, &terr) && len(terr.Errors) > 0 {
			pe.Message = strings.Join(terr.Errors, "; ")
		}
		return pe
	}
	return nil
}

// envMapping maps environment variables to setters.
var envMapping = map[string]func(*Config, string) error{
	"LANGRUN_INPUT_DIR": func(c *Config, v string) error {
		c.Execution.InputDirectory = v
		return nil
	},
	"LANGRUN_RUNNING_FILE": func(c *Config, v string) error {
		c.Execution.SetRunningFile(v)
		return nil
	},
	"LANGRUN_COMPILE": func(c *Config, v string) error {
		return setBool(&c.Execution.Compile, v)
	},
	"LANGRUN_EXECUTE": func(c *Config, v string) error {
		return setBool(&c.Execution.Execute, v)
	},
	"LANGRUN_TOOLCHAIN_COMMAND": func(c *Config, v string) error {
		c.Toolchain.Command = v
		return nil
	},
	"LANGRUN_LSP_ENABLED": func(c *Config, v string) error {
		return setBool(&c.LanguageServer.Enabled, v)
	},
	"LANGRUN_LSP_COMMAND": func(c *Config, v string) error {
		c.LanguageServer.Command = v
		return nil
	},
	"LANGRUN_LSP_ARGS": func(c *Config, v string) error {
		c.LanguageServer.Args = strings.Fields(v)
		return nil
	},
	"LANGRUN_LSP_TIMEOUT": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		c.LanguageServer.TimeoutSeconds = n
		return nil
	},
	"LANGRUN_LOG_LEVEL": func(c *Config, v string) error {
		c.Log.Level = strings.ToLower(v)
		return nil
	},
	"LANGRUN_LOG_FORMAT": func(c *Config, v string) error {
		c.Log.Format = strings.ToLower(v)
		return nil
	},
}

// ApplyEnv applies LANGRUN_* overrides using lookup (usually os.LookupEnv).
// An empty value is a valid override, not an unset variable.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for name, set := range envMapping {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		if err := set(cfg, v); err != nil {
			return fmt.Errorf("invalid %s=%q: %w", name, v, err)
		}
	}
	return nil
}

func setBool(dst *bool, v string) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
