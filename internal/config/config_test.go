package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Port:            "8080",
		Store:           StoreMemory,
		JWTSecret:       "secret",
		GeminiModel:     "gemini-2.5-flash",
		OCRTimeout:      30 * time.Second,
		URLFetchTimeout: 10 * time.Second,
		MaxUploadBytes:  1 << 20,
		LogFormat:       "console",
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(c *Config)
		wantErr     bool
		errorString string
	}{
		{
			name:    "valid memory store config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "valid postgres store config",
			mutate: func(c *Config) {
				c.Store = StorePostgres
				c.DatabaseURL = "postgres://localhost/receipts"
			},
			wantErr: false,
		},
		{
			name:        "invalid port - non-numeric",
			mutate:      func(c *Config) { c.Port = "abc" },
			wantErr:     true,
			errorString: "invalid port 'abc': must be a number",
		},
		{
			name:        "invalid port - out of range",
			mutate:      func(c *Config) { c.Port = "70000" },
			wantErr:     true,
			errorString: "invalid port 70000: must be between 1 and 65535",
		},
		{
			name:        "unknown store",
			mutate:      func(c *Config) { c.Store = "sqlite" },
			wantErr:     true,
			errorString: "invalid store 'sqlite'",
		},
		{
			name: "postgres without database url",
			mutate: func(c *Config) {
				c.Store = StorePostgres
				c.DatabaseURL = ""
			},
			wantErr:     true,
			errorString: "DATABASE_URL is required",
		},
		{
			name:        "missing jwt secret",
			mutate:      func(c *Config) { c.JWTSecret = "" },
			wantErr:     true,
			errorString: "JWT_SECRET is required",
		},
		{
			name:        "zero OCR timeout",
			mutate:      func(c *Config) { c.OCRTimeout = 0 },
			wantErr:     true,
			errorString: "invalid OCR timeout",
		},
		{
			name:        "bad log format",
			mutate:      func(c *Config) { c.LogFormat = "xml" },
			wantErr:     true,
			errorString: "invalid log format 'xml'",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error but got none")
					return
				}
				if tt.errorString != "" && !strings.Contains(err.Error(), tt.errorString) {
					t.Errorf("expected error to contain '%s', got: %s", tt.errorString, err.Error())
				}
			} else if err != nil {
				t.Errorf("expected no error but got: %v", err)
			}
		})
	}
}

func TestConfig_Validate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Port = "abc"
	cfg.JWTSecret = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "invalid port") || !strings.Contains(err.Error(), "JWT_SECRET") {
		t.Errorf("expected both problems reported, got: %s", err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STORE", "")
	t.Setenv("OCR_TIMEOUT", "")
	t.Setenv("GEMINI_MODEL", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Port)
	}
	if cfg.Store != StorePostgres {
		t.Errorf("expected default store postgres, got %s", cfg.Store)
	}
	if cfg.OCRTimeout != 30*time.Second {
		t.Errorf("expected default OCR timeout 30s, got %v", cfg.OCRTimeout)
	}
	if cfg.GeminiModel != "gemini-2.5-flash" {
		t.Errorf("expected default model, got %s", cfg.GeminiModel)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE", "memory")
	t.Setenv("OCR_TIMEOUT", "5s")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.Port != "9090" || cfg.Store != StoreMemory || cfg.OCRTimeout != 5*time.Second {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("expected unparsable int to fall back to default, got %d", cfg.MaxUploadBytes)
	}
}
