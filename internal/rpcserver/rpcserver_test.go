package rpcserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/xonecas/tronrun/internal/runtimeerr"
)

func TestToJSONRPCError_MapsKnownCode(t *testing.T) {
	err := runtimeerr.New(runtimeerr.KindSessionBusy, "s1")
	got := toJSONRPCError(err)

	if got.Code != numericCodeByErrorCode[runtimeerr.CodeSessionBusy] {
		t.Errorf("Code = %d, want %d", got.Code, numericCodeByErrorCode[runtimeerr.CodeSessionBusy])
	}
	var data map[string]string
	if err := json.Unmarshal(*got.Data, &data); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if data["code"] != string(runtimeerr.CodeSessionBusy) {
		t.Errorf("Data.code = %q, want %q", data["code"], runtimeerr.CodeSessionBusy)
	}
}

func TestToJSONRPCError_PlainErrorFallsBackToInternal(t *testing.T) {
	got := toJSONRPCError(context.Canceled)
	if got.Code != numericCodeByErrorCode[runtimeerr.CodeInternal] {
		t.Errorf("Code = %d, want internal", got.Code)
	}
}

func TestRegistry_LookupAndRegisterUnavailable(t *testing.T) {
	reg := NewRegistry()
	reg.Register("system.ping", func(context.Context, *Conn, json.RawMessage) (any, error) {
		return "pong", nil
	})
	reg.RegisterUnavailable("tasks.list")

	if _, ok := reg.lookup("missing.method"); ok {
		t.Error("lookup should fail for an unregistered method")
	}

	fn, ok := reg.lookup("system.ping")
	if !ok {
		t.Fatal("expected system.ping to be registered")
	}
	result, err := fn(context.Background(), nil, nil)
	if err != nil || result != "pong" {
		t.Errorf("result=%v err=%v, want pong/nil", result, err)
	}

	stub, ok := reg.lookup("tasks.list")
	if !ok {
		t.Fatal("expected tasks.list to be registered as a stub")
	}
	_, err = stub(context.Background(), nil, nil)
	if runtimeerr.CodeFor(err) != runtimeerr.CodeNotAvailable {
		t.Errorf("tasks.list error code = %v, want NOT_AVAILABLE", runtimeerr.CodeFor(err))
	}
}

func TestIsOutOfScopeDomain(t *testing.T) {
	cases := map[string]bool{
		"tasks.list":      true,
		"projects.create": true,
		"session.create":  false,
		"agent.prompt":    false,
		"malformed":       false,
	}
	for method, want := range cases {
		if got := IsOutOfScopeDomain(method); got != want {
			t.Errorf("IsOutOfScopeDomain(%q) = %v, want %v", method, got, want)
		}
	}
}

func TestRunTracker_StartFinishAbort(t *testing.T) {
	rt := newRunTracker()

	ctx, ok := rt.start(context.Background(), "s1")
	if !ok || ctx == nil {
		t.Fatal("expected first start to succeed")
	}
	if _, ok := rt.start(context.Background(), "s1"); ok {
		t.Error("expected second start on the same session to report busy")
	}
	if !rt.isBusy("s1") {
		t.Error("expected session to be busy after start")
	}

	if !rt.abort("s1") {
		t.Error("expected abort to find the active run")
	}
	if rt.isBusy("s1") {
		t.Error("expected session to be free after abort")
	}
	if rt.abort("s1") {
		t.Error("expected a second abort to report nothing to abort")
	}

	if _, ok := rt.start(context.Background(), "s1"); !ok {
		t.Fatal("expected start to succeed again after abort cleared state")
	}
	rt.finish("s1")
	if rt.isBusy("s1") {
		t.Error("expected session to be free after finish")
	}
}

func TestSplitModelID(t *testing.T) {
	cases := []struct {
		modelID      string
		providerName string
		model        string
	}{
		{"anthropic:claude-opus-4", "anthropic", "claude-opus-4"},
		{"bare-model", "bare-model", ""},
	}
	for _, c := range cases {
		providerName, model := splitModelID(c.modelID)
		if providerName != c.providerName || model != c.model {
			t.Errorf("splitModelID(%q) = (%q, %q), want (%q, %q)", c.modelID, providerName, model, c.providerName, c.model)
		}
	}
}
