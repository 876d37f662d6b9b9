// SPDX-License-Identifier: Apache-2.0
// Copyright 2025 Benjamin Chess
package schema

import (
	"errors"
	"testing"
)

func greeterComponent(ty ComponentType) ProposedComponent {
	return ProposedComponent{
		FullyQualifiedComponentName: "greeter.Greeter",
		Ty:                          ty,
		Handlers: []ProposedHandler{
			{Name: "greet"},
		},
	}
}

func mustDeploy(t *testing.T, u *Updater, id *DeploymentID, addr string, components []ProposedComponent, force bool) DeploymentID {
	t.Helper()
	depID, err := u.AddDeployment(id, DeploymentMetadata{EndpointAddress: addr}, components, force)
	if err != nil {
		t.Fatalf("AddDeployment: %v", err)
	}
	return depID
}

func TestRegisterNewDeployment(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)

	d1 := DeploymentID("D1")
	depID := mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)
	if depID != d1 {
		t.Fatalf("expected deployment id %q, got %q", d1, depID)
	}

	out := u.Finalize()
	if out.Version != info.Version+1 {
		t.Fatalf("expected version to bump by 1, got %d -> %d", info.Version, out.Version)
	}
	comp, ok := out.Components["greeter.Greeter"]
	if !ok {
		t.Fatal("expected greeter.Greeter to be registered")
	}
	if comp.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", comp.Revision)
	}
	if comp.Location.LatestDeployment != d1 {
		t.Fatalf("expected latest deployment %q, got %q", d1, comp.Location.LatestDeployment)
	}
	if _, ok := comp.Handlers["greet"]; !ok {
		t.Fatal("expected handler greet to be present")
	}
}

func TestAddUnregisteredService(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)

	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	d2 := DeploymentID("D2")
	another := ProposedComponent{
		FullyQualifiedComponentName: "greeter.AnotherGreeter",
		Ty:                          ComponentTypeService,
		Handlers:                    []ProposedHandler{{Name: "greet"}},
	}
	mustDeploy(t, u, &d2, "http://ep2", []ProposedComponent{greeterComponent(ComponentTypeService), another}, false)

	out := u.Finalize()
	if out.Components["greeter.Greeter"].Revision != 2 {
		t.Fatalf("expected Greeter revision 2, got %d", out.Components["greeter.Greeter"].Revision)
	}
	if out.Components["greeter.Greeter"].Location.LatestDeployment != d2 {
		t.Fatalf("expected Greeter to now point at D2")
	}
	if out.Components["greeter.AnotherGreeter"].Revision != 1 {
		t.Fatalf("expected AnotherGreeter revision 1, got %d", out.Components["greeter.AnotherGreeter"].Revision)
	}
}

func TestChangeTypeRejectedWithoutForce(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	d2 := DeploymentID("D2")
	_, err := u.AddDeployment(&d2, DeploymentMetadata{EndpointAddress: "http://ep2"}, []ProposedComponent{greeterComponent(ComponentTypeVirtualObject)}, false)

	var typeErr *DifferentTypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("expected DifferentTypeError, got %v", err)
	}
}

func TestForceDeployPreservesPrivate(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)
	u.ModifyComponent("greeter.Greeter", false)

	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, true)

	out := u.Finalize()
	if out.Components["greeter.Greeter"].Location.Public {
		t.Fatal("expected greeter.Greeter to remain private across a forced redeploy")
	}
}

func TestIncorrectIDConflict(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	dNew := DeploymentID("DNew")
	_, err := u.AddDeployment(&dNew, DeploymentMetadata{EndpointAddress: "http://ep1"}, []ProposedComponent{greeterComponent(ComponentTypeService)}, true)

	var idErr *IncorrectIDError
	if !errors.As(err, &idErr) {
		t.Fatalf("expected IncorrectIDError even with force=true, got %v", err)
	}
	if idErr.Requested != dNew || idErr.Existing != d1 {
		t.Fatalf("unexpected error payload: %+v", idErr)
	}
}

func TestRemoveDeploymentPreservesOverwritten(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	another := ProposedComponent{
		FullyQualifiedComponentName: "greeter.AnotherGreeter",
		Ty:                          ComponentTypeService,
		Handlers:                    []ProposedHandler{{Name: "greet"}},
	}
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService), another}, false)

	d2 := DeploymentID("D2")
	mustDeploy(t, u, &d2, "http://ep2", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	u.RemoveDeployment(d1)
	out := u.Finalize()

	if _, ok := out.Components["greeter.Greeter"]; !ok {
		t.Fatal("expected greeter.Greeter (now owned by D2) to survive removal of D1")
	}
	if out.Components["greeter.Greeter"].Revision != 2 {
		t.Fatalf("expected surviving Greeter at revision 2, got %d", out.Components["greeter.Greeter"].Revision)
	}
	if _, ok := out.Components["greeter.AnotherGreeter"]; ok {
		t.Fatal("expected greeter.AnotherGreeter to be removed along with D1")
	}
}

func TestRemoveHandlersRejectedWithoutForce(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{{
		FullyQualifiedComponentName: "greeter.Greeter",
		Ty:                          ComponentTypeService,
		Handlers:                    []ProposedHandler{{Name: "greet"}, {Name: "farewell"}},
	}}, false)

	d2 := DeploymentID("D2")
	_, err := u.AddDeployment(&d2, DeploymentMetadata{EndpointAddress: "http://ep2"}, []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	var removedErr *RemovedHandlersError
	if !errors.As(err, &removedErr) {
		t.Fatalf("expected RemovedHandlersError, got %v", err)
	}

	out := u.Finalize()
	if _, ok := out.Components["greeter.Greeter"].Handlers["farewell"]; !ok {
		t.Fatal("expected the prior revision to be left untouched after the rejected deploy")
	}
}

func TestAddSubscriptionRoundTrip(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	subID, err := u.AddSubscription(nil, "kafka://my-cluster/my-topic", "component://greeter.Greeter/greet", nil, NoopValidator{})
	if err != nil {
		t.Fatalf("AddSubscription: %v", err)
	}

	out := u.Finalize()
	sub, ok := out.Subscriptions[subID]
	if !ok {
		t.Fatal("expected subscription to be stored")
	}
	if sub.Source.Cluster != "my-cluster" || sub.Source.Topic != "my-topic" {
		t.Fatalf("unexpected parsed source: %+v", sub.Source)
	}
	if sub.Sink.Name != "greeter.Greeter" || sub.Sink.Handler != "greet" {
		t.Fatalf("unexpected parsed sink: %+v", sub.Sink)
	}

	u2 := NewUpdater(out)
	u2.RemoveSubscription(subID)
	out2 := u2.Finalize()
	if _, ok := out2.Subscriptions[subID]; ok {
		t.Fatal("expected subscription to be removed")
	}
	if out2.Version != out.Version+1 {
		t.Fatal("expected version to bump on removal")
	}
}

func TestAddSubscriptionUnknownSinkHandler(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	_, err := u.AddSubscription(nil, "kafka://my-cluster/my-topic", "component://greeter.Greeter/nonexistent", nil, NoopValidator{})
	var notFound *SinkComponentNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected SinkComponentNotFoundError, got %v", err)
	}
}

func TestAddSubscriptionRejectsEmptyKafkaAuthority(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	_, err := u.AddSubscription(nil, "kafka:///my-topic", "component://greeter.Greeter/greet", nil, NoopValidator{})
	var authErr *InvalidKafkaSourceAuthorityError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected InvalidKafkaSourceAuthorityError, got %v", err)
	}
}

func TestAddSubscriptionRejectsEmptyComponentAuthority(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	_, err := u.AddSubscription(nil, "kafka://my-cluster/my-topic", "component:///greet", nil, NoopValidator{})
	var authErr *InvalidComponentSinkAuthorityError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected InvalidComponentSinkAuthorityError, got %v", err)
	}
}

func TestAddSubscriptionRejectsWrongCaseScheme(t *testing.T) {
	info := NewSchemaInformation()
	u := NewUpdater(info)
	d1 := DeploymentID("D1")
	mustDeploy(t, u, &d1, "http://ep1", []ProposedComponent{greeterComponent(ComponentTypeService)}, false)

	_, err := u.AddSubscription(nil, "KAFKA://my-cluster/my-topic", "component://greeter.Greeter/greet", nil, NoopValidator{})
	var schemeErr *InvalidSourceSchemeError
	if !errors.As(err, &schemeErr) {
		t.Fatalf("expected InvalidSourceSchemeError for a wrong-case scheme, got %v", err)
	}
}

func TestFinalizeNoOpLeavesVersionUnchanged(t *testing.T) {
	info := NewSchemaInformation()
	info.Version = 5
	u := NewUpdater(info)
	out := u.Finalize()
	if out.Version != 5 {
		t.Fatalf("expected version to stay at 5 for a no-op session, got %d", out.Version)
	}
}
