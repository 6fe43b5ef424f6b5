package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestManager_ReadWrite_RoundTrip(t *testing.T) {
	original := NewConfig("/home/user/.local/share/contactsync", []string{"/home/user/notes"})
	original.Scan.Categories = []string{"People"}
	original.Archive = ArchiveConfig{Type: "s3", S3Bucket: "archive", S3Prefix: "contacts/", S3Region: "eu-west-1"}
	original.Encryption.Type = "age"
	original.Schedule.RunOnStart = true

	var buf bytes.Buffer
	m := &Manager{}

	if err := m.Write(&buf, original); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != original.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, original.BaseDir)
	}
	if len(got.Scan.Roots) != 1 || got.Scan.Roots[0] != "/home/user/notes" {
		t.Errorf("Scan.Roots = %v, want [/home/user/notes]", got.Scan.Roots)
	}
	if len(got.Scan.Categories) != 1 {
		t.Errorf("Scan.Categories = %v, want [People]", got.Scan.Categories)
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "archive" || got.Archive.S3Region != "eu-west-1" {
		t.Errorf("Archive = %+v", got.Archive)
	}
	if got.Encryption.PrivateKeyPath != original.Encryption.PrivateKeyPath {
		t.Errorf("Encryption.PrivateKeyPath = %q, want %q", got.Encryption.PrivateKeyPath, original.Encryption.PrivateKeyPath)
	}
	if got.Database != original.Database {
		t.Errorf("Database = %+v, want %+v", got.Database, original.Database)
	}
	if got.Schedule != original.Schedule {
		t.Errorf("Schedule = %+v, want %+v", got.Schedule, original.Schedule)
	}
	if got.Log != original.Log {
		t.Errorf("Log = %+v, want %+v", got.Log, original.Log)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("Validate() after round trip error = %v", err)
	}
}

func TestNewConfig(t *testing.T) {
	cfg := NewConfig("/data/cs", []string{"/notes"})

	checks := map[string][2]string{
		"BaseDir":                   {cfg.BaseDir, "/data/cs"},
		"Database.Type":             {cfg.Database.Type, "sqlite"},
		"Database.DataDir":          {cfg.Database.DataDir, "/data/cs/db"},
		"Export.Dir":                {cfg.Export.Dir, "/data/cs/exports"},
		"Schedule.At":               {cfg.Schedule.At, "06:00"},
		"Archive.Type":              {cfg.Archive.Type, "none"},
		"Encryption.Type":           {cfg.Encryption.Type, "none"},
		"Encryption.PublicKeyPath":  {cfg.Encryption.PublicKeyPath, "/data/cs/keys/contactsync.pub"},
		"Encryption.PrivateKeyPath": {cfg.Encryption.PrivateKeyPath, "/data/cs/keys/contactsync.key"},
		"Log.Dir":                   {cfg.Log.Dir, "/data/cs/log"},
		"Log.Level":                 {cfg.Log.Level, "info"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults error = %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "memory database needs no data dir", mutate: func(c *Config) {
			c.Database = DatabaseConfig{Type: "memory"}
		}},
		{name: "unknown database type", mutate: func(c *Config) {
			c.Database.Type = "postgres"
		}, wantErr: "Database.Type"},
		{name: "sqlite without data dir", mutate: func(c *Config) {
			c.Database.DataDir = ""
		}, wantErr: "Database.DataDir"},
		{name: "no scan roots", mutate: func(c *Config) {
			c.Scan.Roots = nil
		}, wantErr: "Scan.Roots"},
		{name: "blank scan root", mutate: func(c *Config) {
			c.Scan.Roots = []string{""}
		}, wantErr: "Scan.Roots[0]"},
		{name: "bad schedule time", mutate: func(c *Config) {
			c.Schedule.At = "6am"
		}, wantErr: "Schedule.At"},
		{name: "filesystem archive without root", mutate: func(c *Config) {
			c.Archive = ArchiveConfig{Type: "filesystem"}
		}, wantErr: "Archive.FSRoot"},
		{name: "s3 archive without bucket", mutate: func(c *Config) {
			c.Archive = ArchiveConfig{Type: "s3"}
		}, wantErr: "Archive.S3Bucket"},
		{name: "age without key paths", mutate: func(c *Config) {
			c.Encryption = EncryptionConfig{Type: "age"}
		}, wantErr: "Encryption.PublicKeyPath"},
		{name: "unknown log level", mutate: func(c *Config) {
			c.Log.Level = "trace"
		}, wantErr: "Log.Level"},
		{name: "negative backups", mutate: func(c *Config) {
			c.Log.MaxBackups = -1
		}, wantErr: "Log.MaxBackups"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("/data/cs", []string{"/notes"})
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error mentioning %s", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestInit(t *testing.T) {
	t.Run("creates config file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "contactsync.toml")
		cfg := NewConfig(dir, []string{dir})

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		if _, err := os.Stat(path); err != nil {
			t.Fatalf("config file not created: %v", err)
		}
	})

	t.Run("fails if file already exists", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "contactsync.toml")
		cfg := NewConfig(dir, []string{dir})

		if err := Init(path, cfg); err != nil {
			t.Fatalf("first Init() error = %v", err)
		}

		err := Init(path, cfg)
		if err == nil {
			t.Fatal("second Init() expected error")
		}
	})

	t.Run("rejects invalid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "contactsync.toml")
		cfg := NewConfig(dir, nil)

		if err := Init(path, cfg); err == nil {
			t.Fatal("Init() expected validation error")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("invalid config should not be written")
		}
	})
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads valid config", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "contactsync.toml")
		cfg := NewConfig(dir, []string{"/notes"})
		cfg.Database = DatabaseConfig{Type: "memory"}

		if err := Init(path, cfg); err != nil {
			t.Fatalf("Init() error = %v", err)
		}

		got, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if got.Database.Type != "memory" {
			t.Errorf("Database.Type = %q, want %q", got.Database.Type, "memory")
		}
	})

	t.Run("returns error for missing file", func(t *testing.T) {
		_, err := ReadFromFile("/nonexistent/path/contactsync.toml")
		if err == nil {
			t.Fatal("ReadFromFile() expected error for missing file")
		}
	})
}
