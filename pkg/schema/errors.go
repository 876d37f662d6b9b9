// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import "fmt"

// OverrideError is returned when a mutation would silently overwrite an
// existing resource without force being set.
type OverrideError struct {
	Resource string
}

func (e *OverrideError) Error() string {
	return fmt.Sprintf("%s already exists and force was not set", e.Resource)
}

// IncorrectIDError is returned when a requested deployment id conflicts with
// an existing deployment resolved by endpoint. Force never overrides this.
type IncorrectIDError struct {
	Requested DeploymentID
	Existing  DeploymentID
}

func (e *IncorrectIDError) Error() string {
	return fmt.Sprintf("requested deployment id %q does not match existing deployment %q at this endpoint", e.Requested, e.Existing)
}

// RemovedHandlersError is returned when a non-force deployment would drop
// handlers from an existing component.
type RemovedHandlersError struct {
	Component string
	Handlers  []string
}

func (e *RemovedHandlersError) Error() string {
	return fmt.Sprintf("deployment would remove handlers %v from component %q without force", e.Handlers, e.Component)
}

// DifferentTypeError is returned when a non-force deployment would change a
// component's type (Service <-> VirtualObject).
type DifferentTypeError struct {
	Component string
}

func (e *DifferentTypeError) Error() string {
	return fmt.Sprintf("deployment would change the type of component %q without force", e.Component)
}

// BadInputContentTypeError wraps a content-type parse failure for an input rule.
type BadInputContentTypeError struct {
	Handler string
	Cause   error
}

func (e *BadInputContentTypeError) Error() string {
	return fmt.Sprintf("bad input content type for handler %q: %v", e.Handler, e.Cause)
}

func (e *BadInputContentTypeError) Unwrap() error { return e.Cause }

// BadOutputContentTypeError wraps a content-type parse failure for an output rule.
type BadOutputContentTypeError struct {
	ContentType string
	Cause       error
}

func (e *BadOutputContentTypeError) Error() string {
	return fmt.Sprintf("bad output content type %q: %v", e.ContentType, e.Cause)
}

func (e *BadOutputContentTypeError) Unwrap() error { return e.Cause }

// InvalidComponentNameError is returned when a proposed component name fails validation.
type InvalidComponentNameError struct {
	Name  string
	Cause error
}

func (e *InvalidComponentNameError) Error() string {
	return fmt.Sprintf("invalid component name %q: %v", e.Name, e.Cause)
}

func (e *InvalidComponentNameError) Unwrap() error { return e.Cause }

// Subscription errors.

type InvalidSourceSchemeError struct{ Scheme string }

func (e *InvalidSourceSchemeError) Error() string {
	return fmt.Sprintf("unsupported subscription source scheme %q", e.Scheme)
}

type InvalidSinkSchemeError struct{ Scheme string }

func (e *InvalidSinkSchemeError) Error() string {
	return fmt.Sprintf("unsupported subscription sink scheme %q", e.Scheme)
}

// InvalidKafkaSourceAuthorityError is returned when a kafka:// subscription
// source names no cluster, e.g. "kafka:///topic".
type InvalidKafkaSourceAuthorityError struct{ Raw string }

func (e *InvalidKafkaSourceAuthorityError) Error() string {
	return fmt.Sprintf("subscription source %q names no kafka cluster", e.Raw)
}

// InvalidComponentSinkAuthorityError is returned when a component://
// subscription sink names no component, e.g. "component:///handler".
type InvalidComponentSinkAuthorityError struct{ Raw string }

func (e *InvalidComponentSinkAuthorityError) Error() string {
	return fmt.Sprintf("subscription sink %q names no component", e.Raw)
}

type SinkComponentNotFoundError struct {
	Component string
	Handler   string
}

func (e *SinkComponentNotFoundError) Error() string {
	return fmt.Sprintf("sink component %q has no handler %q", e.Component, e.Handler)
}

type SubscriptionValidationError struct{ Cause error }

func (e *SubscriptionValidationError) Error() string {
	return fmt.Sprintf("subscription rejected by validator: %v", e.Cause)
}

func (e *SubscriptionValidationError) Unwrap() error { return e.Cause }
