package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newGraphStub(t *testing.T, capture *map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v23.0/555123/messages" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var payload map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("failed to decode payload: %v", err)
		}
		*capture = payload
		w.Write([]byte(`{"messages":[{"id":"wamid.test"}]}`))
	}))
}

func TestCloudAPISendText(t *testing.T) {
	var payload map[string]interface{}
	srv := newGraphStub(t, &payload)
	defer srv.Close()

	svc, err := NewCloudAPIService(
		WithAccessToken("test-token"),
		WithPhoneNumberID("555123"),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}

	if err := svc.SendText(context.Background(), "+55 11 98888-7777", "olá"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if payload["to"] != "5511988887777" {
		t.Errorf("recipient not canonicalized: %v", payload["to"])
	}
	if payload["type"] != "text" {
		t.Errorf("unexpected message type: %v", payload["type"])
	}
	text, _ := payload["text"].(map[string]interface{})
	if text["body"] != "olá" {
		t.Errorf("body lost in transit: %v", text)
	}
}

func TestCloudAPISendFlowLaunch(t *testing.T) {
	var payload map[string]interface{}
	srv := newGraphStub(t, &payload)
	defer srv.Close()

	svc, err := NewCloudAPIService(
		WithAccessToken("test-token"),
		WithPhoneNumberID("555123"),
		WithFlowID("flow-42"),
		WithBaseURL(srv.URL),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}

	if err := svc.SendFlowLaunch(context.Background(), "5511988887777"); err != nil {
		t.Fatalf("SendFlowLaunch failed: %v", err)
	}

	interactive, _ := payload["interactive"].(map[string]interface{})
	if interactive["type"] != "flow" {
		t.Fatalf("unexpected interactive type: %v", interactive["type"])
	}
	action, _ := interactive["action"].(map[string]interface{})
	params, _ := action["parameters"].(map[string]interface{})
	if params["flow_id"] != "flow-42" {
		t.Errorf("flow id mismatch: %v", params["flow_id"])
	}
	if params["flow_token"] == "" || params["flow_token"] == nil {
		t.Error("flow_token must be generated")
	}
	actionPayload, _ := params["flow_action_payload"].(map[string]interface{})
	if actionPayload["screen"] != "SERVICE_SELECTION" {
		t.Errorf("flow must open on SERVICE_SELECTION, got %v", actionPayload["screen"])
	}
}

func TestCloudAPISendFlowLaunchWithoutFlowID(t *testing.T) {
	svc, err := NewCloudAPIService(
		WithAccessToken("test-token"),
		WithPhoneNumberID("555123"),
	)
	if err != nil {
		t.Fatalf("NewCloudAPIService failed: %v", err)
	}
	if err := svc.SendFlowLaunch(context.Background(), "5511988887777"); !errors.Is(err, ErrFlowLaunchUnsupported) {
		t.Errorf("expected ErrFlowLaunchUnsupported, got %v", err)
	}
}

func TestNewCloudAPIServiceRequiresCredentials(t *testing.T) {
	if _, err := NewCloudAPIService(); err == nil {
		t.Error("NewCloudAPIService without credentials must fail")
	}
}
