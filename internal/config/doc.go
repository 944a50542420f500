// Package config loads the engine configuration from config.yaml.
//
// Config fields:
//   - Engine.SigmaMultiplier   — width of the control band in sigmas (default 3)
//   - Engine.WarningMultiplier — width of the warning band (default 2)
//   - Engine.WarningsEnabled   — toggles the warning band (default true)
//   - Ingest.Metric            — metric family read as measurements
//   - Ingest.ScopeLabels       — labels joined into the scope key
//
// Load(path) applies defaults before unmarshalling, then validates.
// Watch(ctx, path, onChange) hot-reloads the file on change so multiplier
// tuning does not require a restart.
package config
