package config

import (
	"reflect"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestSecretStringUnmarshal(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantValue  string
		wantSecret bool
	}{
		{
			name:       "plain string",
			yaml:       "key: plainvalue",
			wantValue:  "plainvalue",
			wantSecret: false,
		},
		{
			name:       "secret string",
			yaml:       "key: !secret mysecret",
			wantValue:  "mysecret",
			wantSecret: true,
		},
		{
			name:       "empty secret",
			yaml:       "key: !secret \"\"",
			wantValue:  "",
			wantSecret: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var result struct {
				Key SecretString `yaml:"key"`
			}

			if err := yaml.Unmarshal([]byte(tt.yaml), &result); err != nil {
				t.Fatalf("unmarshal failed: %v", err)
			}

			if result.Key.Value() != tt.wantValue {
				t.Errorf("value = %q, want %q", result.Key.Value(), tt.wantValue)
			}

			if result.Key.IsSecret() != tt.wantSecret {
				t.Errorf("isSecret = %v, want %v", result.Key.IsSecret(), tt.wantSecret)
			}
		})
	}
}

func TestSecretStringString(t *testing.T) {
	tests := []struct {
		name string
		s    SecretString
		want string
	}{
		{"secret value", NewSecretString("mysecret"), "[hidden]"},
		{"empty secret", NewSecretString(""), ""},
		{"plain value", SecretString{value: "plain"}, "plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSecretStringMarshal(t *testing.T) {
	out, err := yaml.Marshal(struct {
		Password SecretString `yaml:"password"`
	}{NewSecretString("s3cret")})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "!secret s3cret") {
		t.Errorf("marshal = %q, want the !secret tag", out)
	}
}

func TestSecretTracker(t *testing.T) {
	tr := NewSecretTracker()
	tr.MarkSecret("environments.prod.password")
	tr.MarkSecret("environments.demo.password")

	if !tr.IsSecret("environments.prod.password") {
		t.Error("expected prod password to be secret")
	}
	if tr.IsSecret("environments.prod.username") {
		t.Error("username is not secret")
	}
	want := []string{"environments.demo.password", "environments.prod.password"}
	if got := tr.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}

func TestSecretStringOverride(t *testing.T) {
	plain := SecretString{value: "configured"}
	tests := []struct {
		name       string
		override   string
		wantValue  string
		wantSecret bool
	}{
		{"kept", "", "configured", false},
		{"replaced", "fromenv", "fromenv", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := plain.Override(tt.override)
			if got.Value() != tt.wantValue || got.IsSecret() != tt.wantSecret {
				t.Errorf("Override(%q) = %q secret=%v", tt.override, got.Value(), got.IsSecret())
			}
		})
	}
}
