package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths contains the resolved absolute directories used at runtime
type Paths struct {
	BaseDir         string
	DataDir         string
	UploadsDir      string
	ErrorReportsDir string
	LogsDir         string
}

// ResolvePaths turns the configured paths into absolute directories
func ResolvePaths(cfg PathsConfig) (*Paths, error) {
	base := cfg.BaseDir
	if base == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		base = wd
	}
	base, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	resolve := func(p, fallback string) string {
		if p == "" {
			p = fallback
		}
		if filepath.IsAbs(p) {
			return filepath.Clean(p)
		}
		return filepath.Join(base, p)
	}

	dataDir := resolve(cfg.DataDir, "data")
	return &Paths{
		BaseDir:         base,
		DataDir:         dataDir,
		UploadsDir:      filepath.Join(dataDir, UploadsDirName),
		ErrorReportsDir: filepath.Join(dataDir, ErrorReportsDirName),
		LogsDir:         resolve(cfg.LogsDir, "logs"),
	}, nil
}

// EnsureDirectories creates every directory that does not exist yet
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.UploadsDir, p.ErrorReportsDir, p.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LogPathResolution logs the resolved directories
func (p *Paths) LogPathResolution(logger *slog.Logger) {
	logger.Info("paths resolved",
		slog.String("base_dir", p.BaseDir),
		slog.String("data_dir", p.DataDir),
		slog.String("uploads_dir", p.UploadsDir),
		slog.String("error_reports_dir", p.ErrorReportsDir),
		slog.String("logs_dir", p.LogsDir))
}
