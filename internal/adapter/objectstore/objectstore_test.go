package objectstore

import (
	"testing"

	"github.com/wardenworks/warden/internal/config"
)

func TestValidate(t *testing.T) {
	good := config.ObjectStore{
		Endpoint:  "localhost:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "warden-artifacts",
	}
	if err := validate(good); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.ObjectStore)
	}{
		{"missing endpoint", func(c *config.ObjectStore) { c.Endpoint = "" }},
		{"missing access key", func(c *config.ObjectStore) { c.AccessKey = "" }},
		{"missing secret key", func(c *config.ObjectStore) { c.SecretKey = "" }},
		{"missing bucket", func(c *config.ObjectStore) { c.Bucket = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := good
			tt.mutate(&cfg)
			if err := validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestNew_RequiresValidConfig(t *testing.T) {
	if _, err := New(config.ObjectStore{}); err == nil {
		t.Error("expected error for empty config")
	}
}
