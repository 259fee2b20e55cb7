// Package config loads the immutable settings shared by every service
// facade. Settings come from a YAML file or from FIREREST_* environment
// variables, with service URLs derived from the project id when unset.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAuthURL      = "https://identitytoolkit.googleapis.com/v1/accounts"
	DefaultTokenURL     = "https://securetoken.googleapis.com/v1/token"
	defaultFirestoreFmt = "https://firestore.googleapis.com/v1/projects/%s/databases/(default)/documents"
	defaultStorageFmt   = "https://firebasestorage.googleapis.com/v0/b/%s/o"
	defaultMessagingFmt = "https://fcm.googleapis.com/v1/projects/%s/messages:send"
)

// ErrInvalid is wrapped by Validate failures.
var ErrInvalid = errors.New("invalid settings")

// Settings is passed by value; a client keeps its own copy.
type Settings struct {
	ProjectID     string `yaml:"project_id"`
	APIKey        string `yaml:"api_key"`
	AuthURL       string `yaml:"auth_url"`
	TokenURL      string `yaml:"token_url"`
	DatabaseURL   string `yaml:"database_url"`
	FirestoreURL  string `yaml:"firestore_url"`
	StorageBucket string `yaml:"storage_bucket"`
	StorageURL    string `yaml:"storage_url"`
	MessagingURL  string `yaml:"messaging_url"`
}

// WithDefaults returns a copy with unset service URLs filled in.
func (s Settings) WithDefaults() Settings {
	if s.AuthURL == "" {
		s.AuthURL = DefaultAuthURL
	}
	if s.TokenURL == "" {
		s.TokenURL = DefaultTokenURL
	}
	if s.ProjectID != "" {
		if s.FirestoreURL == "" {
			s.FirestoreURL = fmt.Sprintf(defaultFirestoreFmt, s.ProjectID)
		}
		if s.StorageBucket == "" {
			s.StorageBucket = s.ProjectID + ".appspot.com"
		}
		if s.MessagingURL == "" {
			s.MessagingURL = fmt.Sprintf(defaultMessagingFmt, s.ProjectID)
		}
	}
	if s.StorageURL == "" && s.StorageBucket != "" {
		s.StorageURL = fmt.Sprintf(defaultStorageFmt, s.StorageBucket)
	}

	s.AuthURL = strings.TrimRight(s.AuthURL, "/")
	s.DatabaseURL = strings.TrimRight(s.DatabaseURL, "/")
	s.FirestoreURL = strings.TrimRight(s.FirestoreURL, "/")
	s.StorageURL = strings.TrimRight(s.StorageURL, "/")
	return s
}

// Validate requires an API key, a project id and a data-store URL.
func (s Settings) Validate() error {
	var missing []string
	if s.APIKey == "" {
		missing = append(missing, "api_key")
	}
	if s.ProjectID == "" {
		missing = append(missing, "project_id")
	}
	if s.DatabaseURL == "" {
		missing = append(missing, "database_url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalid, strings.Join(missing, ", "))
	}
	return nil
}

// Load reads settings from a YAML file and applies defaults.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML settings and applies defaults.
func Parse(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s.WithDefaults(), nil
}

// FromEnv reads FIREREST_* variables. A .env file in the working directory
// is loaded first when present; real environment variables win.
func FromEnv() Settings {
	_ = godotenv.Load()

	s := Settings{
		ProjectID:     os.Getenv("FIREREST_PROJECT_ID"),
		APIKey:        os.Getenv("FIREREST_API_KEY"),
		AuthURL:       os.Getenv("FIREREST_AUTH_URL"),
		TokenURL:      os.Getenv("FIREREST_TOKEN_URL"),
		DatabaseURL:   os.Getenv("FIREREST_DATABASE_URL"),
		FirestoreURL:  os.Getenv("FIREREST_FIRESTORE_URL"),
		StorageBucket: os.Getenv("FIREREST_STORAGE_BUCKET"),
		StorageURL:    os.Getenv("FIREREST_STORAGE_URL"),
		MessagingURL:  os.Getenv("FIREREST_MESSAGING_URL"),
	}
	return s.WithDefaults()
}
