package tds

import (
	"testing"
	"time"
)

func TestDefaultConfigFields(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Port != 1433 {
		t.Errorf("Port: got %d, want 1433", cfg.Port)
	}
	if cfg.ConnectTimeout != 15*time.Second {
		t.Errorf("ConnectTimeout: got %v, want 15s", cfg.ConnectTimeout)
	}
	if !cfg.UseUTC {
		t.Error("UseUTC: want true by default")
	}
}

func TestWithDefaultsFillsAmbientCollaborators(t *testing.T) {
	cfg := Config{Port: 1433}
	filled := cfg.withDefaults()
	if filled.Logger == nil {
		t.Error("Logger not defaulted")
	}
	if filled.InstanceLookup == nil {
		t.Error("InstanceLookup not defaulted")
	}
	if filled.PacketSize == 0 {
		t.Error("PacketSize not defaulted")
	}
}

func TestWithDefaultsEncryptWithoutTLSConfig(t *testing.T) {
	cfg := Config{Port: 1433, Encrypt: true}
	filled := cfg.withDefaults()
	if filled.TLSConfig == nil {
		t.Error("expected a default TLSConfig when Encrypt is set with none provided")
	}
}

func TestValidatePortAndInstanceNameMutuallyExclusive(t *testing.T) {
	cfg := Config{Port: 1433, InstanceName: "SQLEXPRESS"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected an error when both Port and InstanceName are set")
	}
}

func TestValidateRequiresPortOrInstanceName(t *testing.T) {
	cfg := Config{}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected an error when neither Port nor InstanceName is set")
	}
}

func TestValidatePortOutOfRange(t *testing.T) {
	cases := []int{-1, 65536, 100000}
	for _, p := range cases {
		cfg := Config{Port: p}
		if err := cfg.validate(); err == nil {
			t.Errorf("port %d: expected an out-of-range error", p)
		}
	}
}

func TestValidateInstanceNameAlone(t *testing.T) {
	cfg := Config{InstanceName: "SQLEXPRESS"}
	if err := cfg.validate(); err != nil {
		t.Errorf("InstanceName alone should validate: %v", err)
	}
}
