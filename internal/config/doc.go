// Package config loads the dashboard configuration.
//
// Values are layered in increasing precedence:
//
//	1. Default()
//	2. config.yaml (or the file named by PETAKEU_CONFIG_FILE)
//	3. a .env file in the working directory
//	4. PETAKEU_* environment variables
//
// Nested sections map to underscored names, for example:
//
//	PETAKEU_SERVER_PORT=8080
//	PETAKEU_UPLOADS_VALIDATION_TIMEOUT=90s
//	PETAKEU_REPORTS_ASYNC=true
//	PETAKEU_DATABASE_DSN=postgres://petakeu@localhost:5432/petakeu
//
// An empty database DSN keeps payments and uploads in memory.
package config
