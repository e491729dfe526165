// Package config provides 12-factor configuration management for the game host.
//
// Configuration is layered: struct defaults, a .env file (joho/godotenv),
// environment variables (kelseyhightower/envconfig, prefix GAMEHOST), and
// finally an optional YAML or TOML file named by GAMEHOST_CONFIG.
//
// Configuration Sections:
//   - Server: listen address, CORS origins, shutdown timeout, /metrics
//   - Logging: level, development mode, output paths
//   - RateLimit: per-IP request rate limiting
//   - Sandbox: script execution budget and runtime pool
//   - Storage: backend selection (local, remote, s3) and local directory
//   - Remote, Generation: HTTP collaborators
//   - ObjectStore: S3 bucket for the s3 backend
//   - Analysis: findings cache size
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Server running on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - GAMEHOST_SERVER_PORT, GAMEHOST_SERVER_HOST, GAMEHOST_SERVER_ALLOWED_ORIGINS
//   - GAMEHOST_LOG_LEVEL, GAMEHOST_LOG_DEVELOPMENT
//   - GAMEHOST_RATE_LIMIT_RPS, GAMEHOST_RATE_LIMIT_BURST
//   - GAMEHOST_SANDBOX_TIMEOUT, GAMEHOST_SANDBOX_POOL_SIZE
//   - GAMEHOST_STORAGE_BACKEND, GAMEHOST_STORAGE_DIR
//   - GAMEHOST_REMOTE_URL, GAMEHOST_GENERATION_URL
//   - GAMEHOST_S3_ENDPOINT, GAMEHOST_S3_BUCKET, GAMEHOST_S3_ACCESS_KEY, GAMEHOST_S3_SECRET_KEY
package config
