package llamadb

import (
	"os"

	"github.com/BurntSushi/toml"
)

// LoadConfigFile reads a llamadb.toml file (the format cmd/llamadb's
// `--config` flag points at) and overlays it onto DefaultConfig(). A
// missing file is not an error: callers get the defaults back.
func LoadConfigFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, NewCompileError(ErrCodeInvalidConfig, "cannot stat config file").WithCause(err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, NewCompileError(ErrCodeInvalidConfig, "cannot parse config file").WithCause(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
