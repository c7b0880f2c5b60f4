package rpcserver

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/xonecas/tronrun/internal/agent"
	"github.com/xonecas/tronrun/internal/events"
	"github.com/xonecas/tronrun/internal/ids"
	"github.com/xonecas/tronrun/internal/provider"
	"github.com/xonecas/tronrun/internal/runtimeerr"
)

// RegisterMethods wires rt's real implementations plus the out-of-scope
// domain stubs into reg (§6.2).
func RegisterMethods(reg *Registry, rt *Runtime) {
	reg.Register("system.ping", rt.systemPing)
	reg.Register("session.create", rt.sessionCreate)
	reg.Register("session.getState", rt.sessionGetState)
	reg.Register("session.delete", rt.sessionDelete)
	reg.Register("session.list", rt.sessionList)
	reg.Register("session.bind", rt.sessionBind)
	reg.Register("session.unbind", rt.sessionUnbind)
	reg.Register("events.append", rt.eventsAppend)
	reg.Register("events.getHistory", rt.eventsGetHistory)
	reg.Register("agent.prompt", rt.agentPrompt)
	reg.Register("agent.abort", rt.agentAbort)
	reg.Register("agent.getState", rt.agentGetState)
	reg.Register("model.list", rt.modelList)
	reg.Register("model.switch", rt.modelSwitch)
	reg.Register("search.content", rt.searchContent)
	reg.Register("context.getSnapshot", rt.contextGetSnapshot)

	// §1 non-goals: task/project/area CRUD, transcription, skills,
	// memory-ledger content, rules discovery, settings. tree.getVisualization
	// and session.archive/unarchive have no backing parent-chain graph
	// utility or archived-state column yet either.
	reg.RegisterUnavailable(
		"tasks.list", "tasks.create", "tasks.update", "tasks.delete",
		"projects.list", "projects.create", "projects.update", "projects.delete",
		"areas.list", "areas.create", "areas.update", "areas.delete",
		"memory.get", "memory.set",
		"skill.list", "skill.invoke",
		"settings.get", "settings.set",
		"transcribe.start", "transcribe.stop",
		"tree.getVisualization",
		"session.archive", "session.unarchive",
	)
}

func decodeParams(params json.RawMessage, v any) error {
	if len(params) == 0 {
		return runtimeerr.New(runtimeerr.KindInvalidParams, "missing params")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return runtimeerr.Wrap(runtimeerr.KindInvalidParams, err, "decode params")
	}
	return nil
}

func (rt *Runtime) systemPing(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	return map[string]any{"pong": true}, nil
}

type sessionCreateParams struct {
	WorkspaceID string `json:"workspaceId"`
	ModelID     string `json:"modelId"`
	WorkingDir  string `json:"workingDir"`
}

func (rt *Runtime) sessionCreate(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionCreateParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.WorkspaceID == "" || p.ModelID == "" {
		return nil, runtimeerr.New(runtimeerr.KindInvalidParams, "workspaceId and modelId are required")
	}
	return rt.Store.CreateSession(p.WorkspaceID, p.ModelID, p.WorkingDir)
}

type sessionIDParams struct {
	SessionID string `json:"sessionId"`
}

func (rt *Runtime) sessionGetState(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sess, err := rt.Store.GetSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session": sess,
		"busy":    rt.tracker.isBusy(p.SessionID),
	}, nil
}

func (rt *Runtime) sessionDelete(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := rt.Store.RemoveBySession(p.SessionID); err != nil {
		return nil, err
	}
	conn.UnbindSession(p.SessionID)
	return map[string]any{"deleted": true}, nil
}

type sessionListParams struct {
	WorkspaceID string `json:"workspaceId"`
}

func (rt *Runtime) sessionList(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionListParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sessions, err := rt.Store.ListSessionsByWorkspace(p.WorkspaceID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sessions": sessions}, nil
}

func (rt *Runtime) sessionBind(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	conn.BindSession(p.SessionID)
	return map[string]any{"bound": true}, nil
}

func (rt *Runtime) sessionUnbind(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	conn.UnbindSession(p.SessionID)
	return map[string]any{"bound": false}, nil
}

type eventsAppendParams struct {
	SessionID   string          `json:"sessionId"`
	WorkspaceID string          `json:"workspaceId"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
}

func (rt *Runtime) eventsAppend(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p eventsAppendParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || p.Type == "" {
		return nil, runtimeerr.New(runtimeerr.KindInvalidParams, "sessionId and type are required")
	}

	ev := events.Event{
		SessionID:   p.SessionID,
		WorkspaceID: p.WorkspaceID,
		Type:        events.Type(p.Type),
		Payload:     p.Payload,
	}
	appended, err := rt.Store.Append(p.SessionID, ev)
	if err != nil {
		return nil, err
	}
	rt.Hub.PublishEvent(appended)
	return appended, nil
}

type eventsGetHistoryParams struct {
	SessionID     string `json:"sessionId"`
	AfterSequence int64  `json:"afterSequence"`
}

func (rt *Runtime) eventsGetHistory(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p eventsGetHistoryParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	var (
		evts []events.Event
		err  error
	)
	if p.AfterSequence > 0 {
		evts, err = rt.Store.ListAfterSequence(p.SessionID, p.AfterSequence)
	} else {
		evts, err = rt.Store.List(p.SessionID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": evts}, nil
}

type agentPromptParams struct {
	SessionID   string `json:"sessionId"`
	WorkspaceID string `json:"workspaceId"`
	Text        string `json:"text"`
}

// agentPrompt persists the user's message, then kicks off a background
// agent run and returns immediately (§6.2): the run's own turn/tool events
// stream to bound connections via the Hub as they happen.
func (rt *Runtime) agentPrompt(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p agentPromptParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.SessionID == "" || p.Text == "" {
		return nil, runtimeerr.New(runtimeerr.KindInvalidParams, "sessionId and text are required")
	}

	sess, err := rt.Store.GetSession(p.SessionID)
	if err != nil {
		return nil, err
	}

	userEvent, err := events.NewEvent(p.SessionID, p.WorkspaceID, events.MessageUser, events.NewUserMessage(p.Text))
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindInvalidParams, err, "build message event")
	}
	appended, err := rt.Store.Append(p.SessionID, userEvent)
	if err != nil {
		return nil, err
	}
	rt.Hub.PublishEvent(appended)

	runCtx, ok := rt.tracker.start(context.Background(), p.SessionID)
	if !ok {
		return nil, runtimeerr.New(runtimeerr.KindSessionBusy, p.SessionID)
	}

	providerName, model := splitModelID(sess.ModelID)
	prov, err := rt.Providers.Create(providerName, model, provider.Options{})
	if err != nil {
		rt.tracker.finish(p.SessionID)
		return nil, runtimeerr.Wrap(runtimeerr.KindProvider, err, "create provider")
	}

	tools := rt.buildSessionTools(sess.WorkingDir)
	tools.registry.RegisterSubAgent(rt.Store, rt.Agent, prov, tools.subPipeline,
		rt.buildRequest(sess.ModelID, sess.WorkingDir, tools.subRegistry.Defs()),
		p.SessionID, p.WorkspaceID, sess.WorkingDir, sess.ModelID)

	runID := ids.New()
	opts := agent.Options{
		Provider:     prov,
		Pipeline:     tools.toolPipeline,
		BuildRequest: rt.buildRequest(sess.ModelID, sess.WorkingDir, tools.registry.Defs()),
	}

	go func() {
		defer rt.tracker.finish(p.SessionID)
		defer prov.Close()
		rt.Hub.PublishNotice(p.SessionID, "agent_ready", map[string]any{"runId": runID})
		if _, err := rt.Agent.RunAgent(runCtx, p.SessionID, p.WorkspaceID, opts); err != nil {
			log.Error().Err(err).Str("session_id", p.SessionID).Str("run_id", runID).Msg("rpcserver: agent run failed")
		}
	}()

	return map[string]any{"acknowledged": true, "runId": runID}, nil
}

func (rt *Runtime) agentAbort(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return map[string]any{"aborted": rt.tracker.abort(p.SessionID)}, nil
}

func (rt *Runtime) agentGetState(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return map[string]any{"busy": rt.tracker.isBusy(p.SessionID)}, nil
}

func (rt *Runtime) modelList(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	tagged := rt.Providers.ListAllModels(ctx, provider.Options{})
	return map[string]any{"models": tagged}, nil
}

type modelSwitchParams struct {
	SessionID   string `json:"sessionId"`
	WorkspaceID string `json:"workspaceId"`
	ModelID     string `json:"modelId"`
}

// modelSwitch records the switch as an event rather than mutating the
// session row: the session's current model is whichever config.model_switch
// event is most recent, falling back to the session's original ModelID.
func (rt *Runtime) modelSwitch(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p modelSwitchParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ModelID == "" {
		return nil, runtimeerr.New(runtimeerr.KindInvalidParams, "modelId is required")
	}
	if rt.tracker.isBusy(p.SessionID) {
		return nil, runtimeerr.New(runtimeerr.KindSessionBusy, p.SessionID)
	}

	ev, err := events.NewEvent(p.SessionID, p.WorkspaceID, events.ConfigModelSwitch, map[string]string{"modelId": p.ModelID})
	if err != nil {
		return nil, runtimeerr.Wrap(runtimeerr.KindInvalidParams, err, "build model switch event")
	}
	appended, err := rt.Store.Append(p.SessionID, ev)
	if err != nil {
		return nil, err
	}
	rt.Hub.PublishEvent(appended)
	return map[string]any{"modelId": p.ModelID}, nil
}

type searchContentParams struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit"`
}

func (rt *Runtime) searchContent(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p searchContentParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Query == "" {
		return nil, runtimeerr.New(runtimeerr.KindInvalidParams, "query is required")
	}
	results, err := rt.Store.Search(p.Query, p.SessionID, p.Limit)
	if err != nil {
		return nil, err
	}
	return map[string]any{"results": results}, nil
}

func (rt *Runtime) contextGetSnapshot(ctx context.Context, conn *Conn, params json.RawMessage) (any, error) {
	var p sessionIDParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	sess, err := rt.Store.GetSession(p.SessionID)
	if err != nil {
		return nil, err
	}
	return sess.Counters, nil
}
