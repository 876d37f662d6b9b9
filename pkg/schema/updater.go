// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"strings"

	"k8s.io/klog/v2"
)

// SubscriptionValidator is an external collaborator consulted before a
// subscription is accepted into the catalog.
type SubscriptionValidator interface {
	Validate(sub Subscription) error
}

// Updater accumulates a sequence of mutations against a borrowed
// SchemaInformation and bumps its version exactly once, on Finalize, if any
// mutation actually changed the catalog.
type Updater struct {
	info     SchemaInformation
	modified bool
}

// NewUpdater starts a mutation session against info. The caller gives up
// ownership of info for the duration of the session.
func NewUpdater(info SchemaInformation) *Updater {
	return &Updater{info: info}
}

// Finalize returns the (possibly mutated) catalog, bumping its version
// exactly once if any mutation occurred during the session.
func (u *Updater) Finalize() SchemaInformation {
	if u.modified {
		u.info.Version++
	}
	return u.info
}

// AddDeployment registers or re-registers a deployment. See SPEC_FULL.md
// section 4.1 for the full decision table.
func (u *Updater) AddDeployment(requestedID *DeploymentID, metadata DeploymentMetadata, proposed []ProposedComponent, force bool) (DeploymentID, error) {
	proposedByName := make(map[ComponentName]ProposedComponent, len(proposed))
	for _, p := range proposed {
		name, err := ParseComponentName(p.FullyQualifiedComponentName)
		if err != nil {
			return "", err
		}
		proposedByName[name] = p
	}

	existingID, found := u.findExistingDeployment(requestedID, metadata)

	var deploymentID DeploymentID
	var componentsToRemove []string
	if found {
		if requestedID != nil && *requestedID != existingID {
			return "", &IncorrectIDError{Requested: *requestedID, Existing: existingID}
		}
		if !force {
			return "", &OverrideError{Resource: fmt.Sprintf("deployment %q", existingID)}
		}
		deploymentID = existingID
		existing := u.info.Deployments[existingID]
		for _, ref := range existing.Components {
			if _, stillProposed := proposedByName[ComponentName(ref.Name)]; !stillProposed {
				componentsToRemove = append(componentsToRemove, ref.Name)
				klog.Warningf("deployment %q no longer declares component %q; removing it", deploymentID, ref.Name)
			}
		}
	} else if requestedID != nil {
		deploymentID = *requestedID
	} else {
		deploymentID = DeploymentID(fmt.Sprintf("dp_%016x", fnvHash(metadata.EndpointAddress+string(u.info.Version))))
	}

	componentsToAdd := make(map[string]ComponentSchemas, len(proposedByName))
	var refs []ComponentRevisionRef

	for name, p := range proposedByName {
		handlers, err := computeHandlers(p.Ty, p.Handlers)
		if err != nil {
			return "", err
		}

		existingComponent, hasExisting := u.info.Components[string(name)]
		var updated ComponentSchemas
		if hasExisting {
			removed := removedHandlers(existingComponent.Handlers, handlers)
			if len(removed) > 0 {
				if !force {
					return "", &RemovedHandlersError{Component: string(name), Handlers: removed}
				}
				klog.Warningf("deployment %q removes handlers %v from component %q", deploymentID, removed, name)
			}
			if existingComponent.Ty != p.Ty {
				if !force {
					return "", &DifferentTypeError{Component: string(name)}
				}
				klog.Warningf("deployment %q changes the type of component %q", deploymentID, name)
			}
			updated = ComponentSchemas{
				Revision: existingComponent.Revision + 1,
				Ty:       p.Ty,
				Handlers: handlers,
				Location: ComponentLocation{LatestDeployment: deploymentID, Public: existingComponent.Location.Public},
			}
		} else {
			updated = ComponentSchemas{
				Revision: 1,
				Ty:       p.Ty,
				Handlers: handlers,
				Location: ComponentLocation{LatestDeployment: deploymentID, Public: true},
			}
		}

		componentsToAdd[string(name)] = updated
		refs = append(refs, ComponentRevisionRef{Name: string(name), Revision: updated.Revision})
	}

	for _, name := range componentsToRemove {
		delete(u.info.Components, name)
	}
	for name, c := range componentsToAdd {
		u.info.Components[name] = c
	}
	u.info.Deployments[deploymentID] = DeploymentRecord{Metadata: metadata, Components: refs}

	u.modified = true
	return deploymentID, nil
}

// findExistingDeployment resolves a deployment either by requested id or by
// matching endpoint address, mirroring find_existing_deployment_by_id /
// find_existing_deployment_by_endpoint.
func (u *Updater) findExistingDeployment(requestedID *DeploymentID, metadata DeploymentMetadata) (DeploymentID, bool) {
	if requestedID != nil {
		if _, ok := u.info.Deployments[*requestedID]; ok {
			return *requestedID, true
		}
	}
	for id, d := range u.info.Deployments {
		if d.Metadata.EndpointAddress == metadata.EndpointAddress {
			return id, true
		}
	}
	return "", false
}

// RemoveDeployment removes a deployment. Any component it owns is only
// removed from the live catalog if no later deployment has already
// superseded it (i.e. the stored revision still matches the snapshot taken
// when this deployment was inserted).
func (u *Updater) RemoveDeployment(id DeploymentID) {
	d, ok := u.info.Deployments[id]
	if !ok {
		return
	}
	delete(u.info.Deployments, id)
	for _, ref := range d.Components {
		if current, ok := u.info.Components[ref.Name]; ok && current.Revision == ref.Revision {
			delete(u.info.Components, ref.Name)
		}
	}
	u.modified = true
}

// AddSubscription validates and inserts a new subscription. source and sink
// are parsed according to the bit-exact URI grammar in SPEC_FULL.md section 6.
func (u *Updater) AddSubscription(id *SubscriptionID, source, sink string, metadata map[string]string, validator SubscriptionValidator) (SubscriptionID, error) {
	var subID SubscriptionID
	if id != nil {
		subID = *id
		if _, exists := u.info.Subscriptions[subID]; exists {
			return "", &OverrideError{Resource: fmt.Sprintf("subscription %q", subID)}
		}
	} else {
		subID = SubscriptionID(fmt.Sprintf("sub_%016x", fnvHash(source+sink+string(u.info.Version))))
	}

	parsedSource, err := parseSubscriptionSource(source)
	if err != nil {
		return "", err
	}
	parsedSink, err := u.parseSubscriptionSink(sink)
	if err != nil {
		return "", err
	}

	if metadata == nil {
		metadata = map[string]string{}
	}
	candidate := Subscription{ID: subID, Source: parsedSource, Sink: parsedSink, Metadata: metadata}
	if validator != nil {
		if err := validator.Validate(candidate); err != nil {
			return "", &SubscriptionValidationError{Cause: err}
		}
	}

	u.info.Subscriptions[subID] = candidate
	u.modified = true
	return subID, nil
}

// rawScheme returns the scheme substring exactly as written, ahead of
// "://", without url.Parse's case normalization — the scheme comparisons
// below must be case-sensitive, so "KAFKA://cluster/topic" is rejected
// rather than silently accepted as "kafka".
func rawScheme(raw string) string {
	scheme, _, ok := strings.Cut(raw, "://")
	if !ok {
		return ""
	}
	return scheme
}

func parseSubscriptionSource(raw string) (SourceKafka, error) {
	if rawScheme(raw) != "kafka" {
		return SourceKafka{}, &InvalidSourceSchemeError{Scheme: rawScheme(raw)}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return SourceKafka{}, &InvalidSourceSchemeError{Scheme: raw}
	}
	if u.Host == "" {
		return SourceKafka{}, &InvalidKafkaSourceAuthorityError{Raw: raw}
	}
	topic := strings.TrimPrefix(u.Path, "/")
	return SourceKafka{Cluster: u.Host, Topic: topic}, nil
}

func (u *Updater) parseSubscriptionSink(raw string) (SinkComponent, error) {
	if rawScheme(raw) != "component" {
		return SinkComponent{}, &InvalidSinkSchemeError{Scheme: rawScheme(raw)}
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return SinkComponent{}, &InvalidSinkSchemeError{Scheme: raw}
	}
	if parsed.Host == "" {
		return SinkComponent{}, &InvalidComponentSinkAuthorityError{Raw: raw}
	}
	componentName := parsed.Host
	handlerName := strings.TrimPrefix(parsed.Path, "/")

	component, ok := u.info.Components[componentName]
	if !ok {
		return SinkComponent{}, &SinkComponentNotFoundError{Component: componentName, Handler: handlerName}
	}
	if _, ok := component.Handlers[handlerName]; !ok {
		return SinkComponent{}, &SinkComponentNotFoundError{Component: componentName, Handler: handlerName}
	}

	ty := EventReceiverService
	if component.Ty == ComponentTypeVirtualObject {
		ty = EventReceiverVirtualObject
	}
	return SinkComponent{Name: componentName, Handler: handlerName, Ty: ty}, nil
}

// RemoveSubscription removes a subscription if present.
func (u *Updater) RemoveSubscription(id SubscriptionID) {
	if _, ok := u.info.Subscriptions[id]; ok {
		delete(u.info.Subscriptions, id)
		u.modified = true
	}
}

// ModifyComponent flips the public visibility of a component and every one
// of its handlers, recording a mutation only if something actually changed.
func (u *Updater) ModifyComponent(name string, public bool) {
	component, ok := u.info.Components[name]
	if !ok {
		return
	}
	changed := false
	if component.Location.Public != public {
		component.Location.Public = public
		changed = true
	}
	for handlerName, h := range component.Handlers {
		if h.TargetMeta.Public != public {
			h.TargetMeta.Public = public
			component.Handlers[handlerName] = h
			changed = true
		}
	}
	if changed {
		u.info.Components[name] = component
		u.modified = true
	}
}

func fnvHash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
