// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import (
	"errors"
	"strings"
)

// ComponentName is a validated, fully-qualified component name.
type ComponentName string

var errEmptyComponentName = errors.New("component name is empty")
var errWhitespaceComponentName = errors.New("component name has leading or trailing whitespace")
var errNulComponentName = errors.New("component name contains a NUL byte")

// ParseComponentName validates a raw discovery-supplied component name.
func ParseComponentName(raw string) (ComponentName, error) {
	if raw == "" {
		return "", &InvalidComponentNameError{Name: raw, Cause: errEmptyComponentName}
	}
	if strings.TrimSpace(raw) != raw {
		return "", &InvalidComponentNameError{Name: raw, Cause: errWhitespaceComponentName}
	}
	if strings.ContainsRune(raw, 0) {
		return "", &InvalidComponentNameError{Name: raw, Cause: errNulComponentName}
	}
	return ComponentName(raw), nil
}
