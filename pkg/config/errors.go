// Configuration errors
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package config parses the INI configuration file of the shepherd,
// tracks which options were read and validates their values.
package config

import (
	"fmt"
	"strings"
)

// ConfigError reports a bad or missing setting, rendered as
// "[section] option: message".
type ConfigError struct {
	Section string
	Option  string
	Message string
	Cause   error
}

func (e *ConfigError) Error() string {
	var where []string
	if e.Section != "" {
		where = append(where, "["+e.Section+"]")
	}
	if e.Option != "" {
		where = append(where, e.Option)
	}
	if len(where) == 0 {
		return "config: " + e.Message
	}
	return "config: " + strings.Join(where, " ") + ": " + e.Message
}

func (e *ConfigError) Unwrap() error { return e.Cause }

func NewConfigError(section, option, message string) *ConfigError {
	return &ConfigError{Section: section, Option: option, Message: message}
}

func optionErrorf(section, option, format string, args ...any) *ConfigError {
	return NewConfigError(section, option, fmt.Sprintf(format, args...))
}

func ErrMissingOption(section, option string) *ConfigError {
	return NewConfigError(section, option, "must be specified")
}

func ErrMissingSection(section string) *ConfigError {
	return NewConfigError(section, "", "section not found")
}

func ErrInvalidValue(section, option, value, expected string) *ConfigError {
	return optionErrorf(section, option, "invalid value %q, expected %s", value, expected)
}

func ErrOutOfRange(section, option string, value float64, constraint string) *ConfigError {
	return optionErrorf(section, option, "value %v %s", value, constraint)
}

func ErrInvalidChoice(section, option, value string, choices []string) *ConfigError {
	return optionErrorf(section, option, "%q is not one of %s", value, strings.Join(choices, ", "))
}
