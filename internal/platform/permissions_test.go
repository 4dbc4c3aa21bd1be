package platform

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPermissionsState(t *testing.T) {
	client := NewMockMQTTClient()
	p := NewPermissions(client, 0)
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if p.Granted() || p.Known() {
		t.Error("permission should be unknown and not granted before first state")
	}

	var changes []bool
	p.OnChange(func(g bool) { changes = append(changes, g) })

	client.SimulateMessage("geofence/host/permission", []byte(`{"granted":true}`))
	if !p.Granted() {
		t.Error("Granted() = false after grant")
	}
	client.SimulateMessage("geofence/host/permission", []byte(`{"granted":true}`))
	client.SimulateMessage("geofence/host/permission", []byte(`{"granted":false}`))
	client.SimulateMessage("geofence/host/permission", []byte(`nope`))

	if p.Granted() {
		t.Error("Granted() = true after revoke")
	}
	if len(changes) != 2 || !changes[0] || changes[1] {
		t.Errorf("changes = %v, want [true false]", changes)
	}
	if p.UpdatedAt().IsZero() {
		t.Error("UpdatedAt() is zero")
	}
}

func TestPermissionsRequest(t *testing.T) {
	client := NewMockMQTTClient()
	p := NewPermissions(client, 1)
	if err := p.Request(context.Background()); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	pubs := client.GetPublished()
	if len(pubs) != 1 || pubs[0].Topic != "geofence/host/permission/request" {
		t.Fatalf("published = %+v", pubs)
	}
	var req PermissionRequest
	if err := json.Unmarshal(pubs[0].Payload, &req); err != nil {
		t.Fatal(err)
	}
	if req.Permission != FineLocationPermission || req.RequestCode != PermissionRequestCode {
		t.Errorf("request = %+v", req)
	}

	client.publishErr = errBrokerDown
	if err := p.Request(context.Background()); err == nil {
		t.Error("Request() should fail when publish fails")
	}
}
