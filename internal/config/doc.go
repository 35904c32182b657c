// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// A .env file in the working directory is loaded first if present, and
// DISCORD_WEBHOOK_URL / VAULT_ADDRESS override the file values when set.
package config
