package main

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/pflag"

	"github.com/at-ishikawa/learnsync/internal/learning"
)

// enumFlag is a string flag restricted to a fixed set of values.
type enumFlag struct {
	value   string
	allowed []string
	name    string
}

func newEnumFlag(name, defaultValue string, allowed ...string) *enumFlag {
	return &enumFlag{value: defaultValue, allowed: allowed, name: name}
}

func newLevelFlag() *enumFlag {
	return newEnumFlag("level", "", string(learning.LevelBeginner), string(learning.LevelExpert))
}

func newRoleFlag() *enumFlag {
	return newEnumFlag("role", string(learning.RoleUser),
		string(learning.RoleUser), string(learning.RoleAssistant), string(learning.RoleSystem))
}

// Set implements pflag.Value.
func (f *enumFlag) Set(v string) error {
	if !slices.Contains(f.allowed, v) {
		return fmt.Errorf("invalid value %q, valid values are %s", v, strings.Join(f.allowed, ", "))
	}
	f.value = v
	return nil
}

// String implements pflag.Value.
func (f *enumFlag) String() string {
	if f == nil {
		return ""
	}
	return f.value
}

// Type implements pflag.Value.
func (f *enumFlag) Type() string {
	return f.name
}

var _ pflag.Value = (*enumFlag)(nil)
