// Package config provides 12-factor configuration management for the
// sandbox bridge.
//
// Configuration is loaded from environment variables with sensible
// defaults.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, CORS origins)
//   - Sandbox: sandbox API base URL, timeout, outbound rate limit
//   - Secrets: debounce window for environment-variable saves
//   - Transfer: transient handle TTL and size cap
//   - Logging: log level and output format
//   - RateLimit: per-IP inbound rate limiting
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Bridge running on %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//
// Environment Variables:
//   - PORT, HOST, ALLOW_ORIGINS
//   - SANDBOX_API_URL, SANDBOX_TIMEOUT, SANDBOX_RPS, SANDBOX_BURST
//   - SECRETS_DEBOUNCE, TRANSFER_HANDLE_TTL, TRANSFER_MAX_BYTES
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
