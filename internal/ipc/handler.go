package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"binderd/internal/hotkey"
	"binderd/internal/macro"
	"binderd/internal/store"
)

// DefaultEventLimit is the number of events returned when a request sets no
// limit. MaxEventLimit caps any request.
const (
	DefaultEventLimit = 50
	MaxEventLimit     = 1000
)

// Controller is the daemon side of the engine operations.
type Controller interface {
	// Status describes the daemon, the engine and the active profile.
	Status() StatusResponse
	// SetEnabled turns expansion on or off and persists it. A nil
	// enabled toggles.
	SetEnabled(enabled *bool) (bool, error)
	// Reload pushes the active profile of the store into the engine.
	Reload() (*store.Profile, error)
	// SwitchProfile activates a profile. An empty id means the next one.
	SwitchProfile(id string) (*store.Profile, error)
	// RunHotkey runs a hotkey macro of the active profile.
	RunHotkey(id string) (bool, error)
	// RunSteps runs ad-hoc macro steps.
	RunSteps(title string, steps []macro.Step) bool
}

// DaemonHandler implements the Handler interface for the binderd daemon
type DaemonHandler struct {
	store *store.Store
	ctl   Controller
	log   *slog.Logger
}

// DaemonHandlerConfig configures the daemon handler
type DaemonHandlerConfig struct {
	Store      *store.Store
	Controller Controller
	Logger     *slog.Logger
}

// NewDaemonHandler creates a new daemon handler
func NewDaemonHandler(cfg DaemonHandlerConfig) *DaemonHandler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &DaemonHandler{
		store: cfg.Store,
		ctl:   cfg.Controller,
		log:   log,
	}
}

// HandleMessage processes an IPC message
func (h *DaemonHandler) HandleMessage(ctx context.Context, client *Client, msg *Message) (*Message, error) {
	switch msg.Header.Type {
	case MsgStatusRequest:
		status := h.ctl.Status()
		return NewResponse(MsgStatusResponse, msg.Header.RequestID, &status)

	case MsgSetEnabled:
		return h.handleSetEnabled(msg)

	case MsgReload:
		return h.handleReload(msg)

	case MsgListProfiles:
		return h.handleListProfiles(msg)

	case MsgSwitchProfile:
		return h.handleSwitchProfile(msg)

	case MsgExportProfile:
		return h.handleExportProfile(msg)

	case MsgImportProfile:
		return h.handleImportProfile(msg)

	case MsgAddProfile:
		return h.handleAddProfile(msg)

	case MsgRenameProfile:
		return h.handleRenameProfile(msg)

	case MsgDeleteProfile:
		return h.handleDeleteProfile(msg)

	case MsgListBinds:
		return h.handleListBinds(msg)

	case MsgAddBind:
		return h.handleAddBind(msg)

	case MsgDeleteBind:
		return h.handleDeleteBind(msg)

	case MsgListHotkeys:
		return h.handleListHotkeys(msg)

	case MsgAddHotkey:
		return h.handleAddHotkey(msg)

	case MsgDeleteHotkey:
		return h.handleDeleteHotkey(msg)

	case MsgRunHotkey:
		return h.handleRunHotkey(msg)

	case MsgTestSteps:
		return h.handleTestSteps(msg)

	case MsgRecentEvents:
		return h.handleRecentEvents(msg)

	default:
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest,
			fmt.Sprintf("unknown message type: %d", msg.Header.Type)), nil
	}
}

// decode unmarshals an optional payload.
func decode(msg *Message, v any) *Message {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := Decode(msg.Payload, v); err != nil {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "invalid request: "+err.Error())
	}
	return nil
}

// fail converts err to an error reply. Not-found errors keep their code;
// anything else gets fallback.
func (h *DaemonHandler) fail(msg *Message, fallback int, err error) (*Message, error) {
	code := fallback
	if errors.Is(err, store.ErrNotFound) {
		code = CodeNotFound
	}
	if code == CodeInternalError {
		h.log.Warn("ipc request failed", "type", msg.Header.Type, "error", err)
	}
	return NewErrorMessage(msg.Header.RequestID, code, err.Error()), nil
}

func (h *DaemonHandler) handleSetEnabled(msg *Message) (*Message, error) {
	var req SetEnabledRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	enabled, err := h.ctl.SetEnabled(req.Enabled)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgSetEnabledResp, msg.Header.RequestID, &SetEnabledResponse{Enabled: enabled})
}

func (h *DaemonHandler) handleReload(msg *Message) (*Message, error) {
	p, err := h.ctl.Reload()
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgReloadResp, msg.Header.RequestID, &ReloadResponse{
		ProfileID:   p.ID,
		ProfileName: p.Name,
		Binds:       len(p.Binds),
		Hotkeys:     len(p.Hotkeys),
	})
}

func (h *DaemonHandler) handleListProfiles(msg *Message) (*Message, error) {
	profiles, err := h.store.ListProfiles()
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgListProfilesResp, msg.Header.RequestID, &ListProfilesResponse{Profiles: profiles})
}

func (h *DaemonHandler) handleSwitchProfile(msg *Message) (*Message, error) {
	var req SwitchProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	p, err := h.ctl.SwitchProfile(req.ID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgSwitchProfileResp, msg.Header.RequestID, &SwitchProfileResponse{ID: p.ID, Name: p.Name})
}

func (h *DaemonHandler) handleExportProfile(msg *Message) (*Message, error) {
	var req ExportProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	doc, err := h.store.ExportProfileJSON(req.ID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgExportProfileResp, msg.Header.RequestID, &ExportProfileResponse{Document: doc})
}

func (h *DaemonHandler) handleImportProfile(msg *Message) (*Message, error) {
	var req ImportProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	if len(req.Document) == 0 {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "document is required"), nil
	}

	p, err := h.store.ImportProfileJSON(req.Document, req.Name)
	if err != nil {
		return h.fail(msg, CodeInvalidRequest, err)
	}
	h.log.Info("profile imported", "profile_id", p.ID, "name", p.Name, "binds", len(p.Binds))

	if req.Activate {
		if _, err := h.ctl.SwitchProfile(p.ID); err != nil {
			return h.fail(msg, CodeInternalError, err)
		}
	}
	return NewResponse(MsgImportProfileResp, msg.Header.RequestID, &ImportProfileResponse{
		ID:      p.ID,
		Name:    p.Name,
		Binds:   len(p.Binds),
		Hotkeys: len(p.Hotkeys),
	})
}

func (h *DaemonHandler) handleAddProfile(msg *Message) (*Message, error) {
	var req AddProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	p, err := h.store.AddProfile(req.Name)
	if err != nil {
		return h.fail(msg, CodeInvalidRequest, err)
	}
	h.log.Info("profile added", "profile_id", p.ID, "name", p.Name)
	return NewResponse(MsgAddProfileResp, msg.Header.RequestID, &ProfileResponse{ID: p.ID, Name: p.Name})
}

func (h *DaemonHandler) handleRenameProfile(msg *Message) (*Message, error) {
	var req RenameProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	id, err := h.profileID(req.ID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.store.RenameProfile(id, req.Name); err != nil {
		return h.fail(msg, CodeInvalidRequest, err)
	}
	// Engine events carry the profile name.
	if err := h.reloadIfActive(id); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	p, err := h.store.GetProfile(id)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgRenameProfileResp, msg.Header.RequestID, &ProfileResponse{ID: p.ID, Name: p.Name})
}

func (h *DaemonHandler) handleDeleteProfile(msg *Message) (*Message, error) {
	var req DeleteProfileRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	if req.ID == "" {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "profile id is required"), nil
	}
	active, err := h.store.ActiveProfileID()
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.store.DeleteProfile(req.ID); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	h.log.Info("profile deleted", "profile_id", req.ID)

	if req.ID == active {
		if _, err := h.ctl.Reload(); err != nil {
			return h.fail(msg, CodeInternalError, err)
		}
	}
	p, err := h.store.ActiveProfile()
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgDeleteProfileResp, msg.Header.RequestID, &ProfileResponse{ID: p.ID, Name: p.Name})
}

// profileID maps "" to the active profile.
func (h *DaemonHandler) profileID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	return h.store.ActiveProfileID()
}

// reloadIfActive pushes profile id into the engine when it is active.
func (h *DaemonHandler) reloadIfActive(id string) error {
	active, err := h.store.ActiveProfileID()
	if err != nil {
		return err
	}
	if active != id {
		return nil
	}
	_, err = h.ctl.Reload()
	return err
}

func (h *DaemonHandler) handleListBinds(msg *Message) (*Message, error) {
	var req ListBindsRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	binds, err := h.store.ListBinds(id)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgListBindsResp, msg.Header.RequestID, &ListBindsResponse{ProfileID: id, Binds: binds})
}

func (h *DaemonHandler) handleAddBind(msg *Message) (*Message, error) {
	var req AddBindRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}

	existing, err := h.store.TriggerSet(id, "")
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	b, err := h.store.AddBind(id, req.Bind)
	if err != nil {
		return h.fail(msg, CodeInvalidRequest, err)
	}
	if err := h.reloadIfActive(id); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}

	return NewResponse(MsgAddBindResp, msg.Header.RequestID, &AddBindResponse{
		Bind:      b,
		Duplicate: existing[b.Trigger],
	})
}

func (h *DaemonHandler) handleDeleteBind(msg *Message) (*Message, error) {
	var req DeleteBindRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	if req.ID == "" {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "bind id is required"), nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.store.DeleteBind(id, req.ID); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.reloadIfActive(id); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewMessage(MsgDeleteBindResp, msg.Header.RequestID, nil), nil
}

func (h *DaemonHandler) handleListHotkeys(msg *Message) (*Message, error) {
	var req ListHotkeysRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	hotkeys, err := h.store.ListHotkeys(id)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgListHotkeysResp, msg.Header.RequestID, &ListHotkeysResponse{ProfileID: id, Hotkeys: hotkeys})
}

func (h *DaemonHandler) handleAddHotkey(msg *Message) (*Message, error) {
	var req AddHotkeyRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}

	existing, err := h.store.ListHotkeys(id)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	hk, err := h.store.AddHotkey(id, req.Hotkey)
	if err != nil {
		return h.fail(msg, CodeInvalidRequest, err)
	}
	if err := h.reloadIfActive(id); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}

	dup := false
	for _, other := range existing {
		if hk.Hotkey != "" && hotkey.Normalize(other.Hotkey) == hk.Hotkey {
			dup = true
			break
		}
	}
	return NewResponse(MsgAddHotkeyResp, msg.Header.RequestID, &AddHotkeyResponse{Hotkey: hk, Duplicate: dup})
}

func (h *DaemonHandler) handleDeleteHotkey(msg *Message) (*Message, error) {
	var req DeleteHotkeyRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	if req.ID == "" {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "hotkey id is required"), nil
	}
	id, err := h.profileID(req.ProfileID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.store.DeleteHotkey(id, req.ID); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	if err := h.reloadIfActive(id); err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewMessage(MsgDeleteHotkeyResp, msg.Header.RequestID, nil), nil
}

func (h *DaemonHandler) handleRunHotkey(msg *Message) (*Message, error) {
	var req RunHotkeyRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	started, err := h.ctl.RunHotkey(req.ID)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgRunHotkeyResp, msg.Header.RequestID, &RunResponse{Started: started})
}

func (h *DaemonHandler) handleTestSteps(msg *Message) (*Message, error) {
	var req TestStepsRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	if len(req.Steps) == 0 {
		return NewErrorMessage(msg.Header.RequestID, CodeInvalidRequest, "steps are required"), nil
	}
	started := h.ctl.RunSteps(req.Title, req.Steps)
	return NewResponse(MsgTestStepsResp, msg.Header.RequestID, &RunResponse{Started: started})
}

func (h *DaemonHandler) handleRecentEvents(msg *Message) (*Message, error) {
	var req RecentEventsRequest
	if bad := decode(msg, &req); bad != nil {
		return bad, nil
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultEventLimit
	}
	if limit > MaxEventLimit {
		limit = MaxEventLimit
	}
	events, err := h.store.RecentEvents(limit)
	if err != nil {
		return h.fail(msg, CodeInternalError, err)
	}
	return NewResponse(MsgRecentEventsResp, msg.Header.RequestID, &RecentEventsResponse{Events: events})
}
