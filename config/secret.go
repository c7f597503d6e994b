package config

import (
	"slices"

	"gopkg.in/yaml.v3"
)

// SecretString holds a password read from the configuration. Values
// tagged !secret print as "[hidden]" so a Connection can be logged.
type SecretString struct {
	value    string
	isSecret bool
}

// NewSecretString returns a hidden value.
func NewSecretString(value string) SecretString {
	return SecretString{value: value, isSecret: true}
}

// Value returns the clear text.
func (s SecretString) Value() string { return s.value }

// IsSecret reports whether the value was tagged !secret.
func (s SecretString) IsSecret() bool { return s.isSecret }

func (s SecretString) String() string {
	if s.isSecret && s.value != "" {
		return "[hidden]"
	}
	return s.value
}

// Override returns a hidden value holding v, or s itself when v is empty.
// Passwords given on the command line or in ODOORPC_PASSWORD take
// precedence over the configured one this way.
func (s SecretString) Override(v string) SecretString {
	if v == "" {
		return s
	}
	return NewSecretString(v)
}

// UnmarshalYAML reads a plain scalar or one tagged !secret.
func (s *SecretString) UnmarshalYAML(node *yaml.Node) error {
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	*s = SecretString{value: value, isSecret: node.Tag == "!secret"}
	return nil
}

// MarshalYAML keeps the !secret tag on the way out.
func (s SecretString) MarshalYAML() (any, error) {
	if !s.isSecret {
		return s.value, nil
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!secret", Value: s.value}, nil
}

// SecretTracker records the dotted paths of the configuration which hold
// hidden values, e.g. "environments.prod.password".
type SecretTracker struct {
	paths []string
}

// NewSecretTracker returns an empty tracker.
func NewSecretTracker() *SecretTracker {
	return &SecretTracker{}
}

// MarkSecret adds path.
func (t *SecretTracker) MarkSecret(path string) {
	i, found := slices.BinarySearch(t.paths, path)
	if !found {
		t.paths = slices.Insert(t.paths, i, path)
	}
}

// IsSecret reports whether path was marked.
func (t *SecretTracker) IsSecret(path string) bool {
	_, found := slices.BinarySearch(t.paths, path)
	return found
}

// Paths returns the marked paths, sorted.
func (t *SecretTracker) Paths() []string {
	return slices.Clone(t.paths)
}
