// Package config handles application configuration loading and validation.
//
// Configuration is loaded from config.yml and validated using struct tags.
// Several named backends may be listed; clients pick one with SelectBackend.
package config
