package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (OPENTMI_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("host", os.Getenv("OPENTMI_HOST"), &cfg.Host)
	s.setString("token", os.Getenv("OPENTMI_TOKEN"), &cfg.Token)

	if err := s.setIntFromString("port", os.Getenv("OPENTMI_PORT"), &cfg.Port); err != nil {
		return err
	}
	if err := s.setDuration("timeout", os.Getenv("OPENTMI_TIMEOUT"), &cfg.Timeout); err != nil {
		return err
	}

	s.setBoolFromString("json", os.Getenv("OPENTMI_JSON"), &cfg.JSON)

	return nil
}
