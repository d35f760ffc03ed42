package config

import "github.com/jinzhu/copier"

// Snapshot returns a deep copy of cfg. Handlers only ever see snapshots, so a
// reload never changes the configuration under a running request.
func Snapshot(cfg *Config) (*Config, error) {
	snap := new(Config)
	if err := copier.CopyWithOption(snap, cfg, copier.Option{DeepCopy: true}); err != nil {
		return nil, err
	}
	return snap, nil
}
