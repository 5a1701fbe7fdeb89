// Package config manages dvdmaker application settings.
//
// Settings are resolved in priority order: built-in defaults, then a
// TOML config file, then DVDMAKER_* environment variables. The default
// config file lives at $XDG_CONFIG_HOME/dvdmaker/config.toml, falling
// back to ~/.config/dvdmaker/config.toml.
//
// # Usage
//
//	settings, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	if err := settings.CreateDirectories(); err != nil {
//		return err
//	}
package config
