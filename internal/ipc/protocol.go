// Package ipc provides inter-process communication between the binderd daemon
// and its clients (binderctl and scripts).
//
// The protocol is designed for:
// - Request/response pattern for commands
// - Event streaming for engine activity
// - Protocol versioning for compatibility
//
// Every message is a 16-byte header followed by a JSON payload.
package ipc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/macro"
	"binderd/internal/store"
)

// Protocol version for compatibility checking
const (
	ProtocolVersion = 1
	ProtocolMagic   = 0x42495043 // "BIPC"
)

// MaxPayload bounds the payload of a single message.
const MaxPayload = 16 * 1024 * 1024

// MessageType identifies the type of IPC message
type MessageType uint16

const (
	// Control messages (0x00xx)
	MsgPing         MessageType = 0x0001
	MsgPong         MessageType = 0x0002
	MsgHandshake    MessageType = 0x0003
	MsgHandshakeAck MessageType = 0x0004
	MsgError        MessageType = 0x0005

	// Status messages (0x01xx)
	MsgStatusRequest  MessageType = 0x0100
	MsgStatusResponse MessageType = 0x0101

	// Engine control (0x02xx)
	MsgSetEnabled     MessageType = 0x0200
	MsgSetEnabledResp MessageType = 0x0201
	MsgReload         MessageType = 0x0202
	MsgReloadResp     MessageType = 0x0203

	// Profiles (0x03xx)
	MsgListProfiles      MessageType = 0x0300
	MsgListProfilesResp  MessageType = 0x0301
	MsgSwitchProfile     MessageType = 0x0302
	MsgSwitchProfileResp MessageType = 0x0303
	MsgExportProfile     MessageType = 0x0304
	MsgExportProfileResp MessageType = 0x0305
	MsgImportProfile     MessageType = 0x0306
	MsgImportProfileResp MessageType = 0x0307
	MsgAddProfile        MessageType = 0x0308
	MsgAddProfileResp    MessageType = 0x0309
	MsgRenameProfile     MessageType = 0x030A
	MsgRenameProfileResp MessageType = 0x030B
	MsgDeleteProfile     MessageType = 0x030C
	MsgDeleteProfileResp MessageType = 0x030D

	// Binds (0x04xx)
	MsgListBinds      MessageType = 0x0400
	MsgListBindsResp  MessageType = 0x0401
	MsgAddBind        MessageType = 0x0402
	MsgAddBindResp    MessageType = 0x0403
	MsgDeleteBind     MessageType = 0x0404
	MsgDeleteBindResp MessageType = 0x0405

	// Macros (0x05xx)
	MsgListHotkeys      MessageType = 0x0500
	MsgListHotkeysResp  MessageType = 0x0501
	MsgRunHotkey        MessageType = 0x0502
	MsgRunHotkeyResp    MessageType = 0x0503
	MsgTestSteps        MessageType = 0x0504
	MsgTestStepsResp    MessageType = 0x0505
	MsgAddHotkey        MessageType = 0x0506
	MsgAddHotkeyResp    MessageType = 0x0507
	MsgDeleteHotkey     MessageType = 0x0508
	MsgDeleteHotkeyResp MessageType = 0x0509

	// Events (0x06xx)
	MsgRecentEvents     MessageType = 0x0600
	MsgRecentEventsResp MessageType = 0x0601
	MsgSubscribe        MessageType = 0x0602
	MsgSubscribeResp    MessageType = 0x0603
	MsgUnsubscribe      MessageType = 0x0604
	MsgUnsubscribeResp  MessageType = 0x0605
	MsgEvent            MessageType = 0x0606
)

// EventType identifies the type of streamed event
type EventType uint16

const (
	EventEngine          EventType = 0x0001
	EventConfigChanged   EventType = 0x0002
	EventProfileSwitched EventType = 0x0003
	EventEnabledChanged  EventType = 0x0004
	EventDaemonShutdown  EventType = 0x0005
)

// AllEvents lists every event type. An empty subscription means all of them.
var AllEvents = []EventType{
	EventEngine,
	EventConfigChanged,
	EventProfileSwitched,
	EventEnabledChanged,
	EventDaemonShutdown,
}

// String returns the event name used by clients.
func (t EventType) String() string {
	switch t {
	case EventEngine:
		return "engine"
	case EventConfigChanged:
		return "config_changed"
	case EventProfileSwitched:
		return "profile_switched"
	case EventEnabledChanged:
		return "enabled_changed"
	case EventDaemonShutdown:
		return "daemon_shutdown"
	default:
		return fmt.Sprintf("event_%d", uint16(t))
	}
}

// Header is the fixed-size message header (16 bytes)
type Header struct {
	Magic     uint32      // Protocol magic number
	Version   uint8       // Protocol version
	Flags     uint8       // Message flags
	Type      MessageType // Message type
	RequestID uint32      // Request ID for correlation
	Length    uint32      // Payload length (not including header)
}

// HeaderSize is the size of the header in bytes
const HeaderSize = 16

// Header flags
const (
	FlagJSON uint8 = 0x04
)

// Message wraps a header and payload
type Message struct {
	Header  Header
	Payload []byte
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType MessageType, requestID uint32, payload []byte) *Message {
	return &Message{
		Header: Header{
			Magic:     ProtocolMagic,
			Version:   ProtocolVersion,
			Flags:     FlagJSON,
			Type:      msgType,
			RequestID: requestID,
			Length:    uint32(len(payload)),
		},
		Payload: payload,
	}
}

// Write writes the header to a writer
func (h *Header) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	buf[4] = h.Version
	buf[5] = h.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(buf[8:12], h.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], h.Length)
	_, err := w.Write(buf)
	return err
}

// ReadHeader reads a header from a reader
func ReadHeader(r io.Reader) (*Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}

	h := &Header{
		Magic:     binary.BigEndian.Uint32(buf[0:4]),
		Version:   buf[4],
		Flags:     buf[5],
		Type:      MessageType(binary.BigEndian.Uint16(buf[6:8])),
		RequestID: binary.BigEndian.Uint32(buf[8:12]),
		Length:    binary.BigEndian.Uint32(buf[12:16]),
	}

	if h.Magic != ProtocolMagic {
		return nil, fmt.Errorf("invalid magic number: %x", h.Magic)
	}

	if h.Version > ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", h.Version)
	}

	return h, nil
}

// Write writes the message to a writer in a single call.
func (m *Message) Write(w io.Writer) error {
	buf := make([]byte, HeaderSize, HeaderSize+len(m.Payload))
	binary.BigEndian.PutUint32(buf[0:4], m.Header.Magic)
	buf[4] = m.Header.Version
	buf[5] = m.Header.Flags
	binary.BigEndian.PutUint16(buf[6:8], uint16(m.Header.Type))
	binary.BigEndian.PutUint32(buf[8:12], m.Header.RequestID)
	binary.BigEndian.PutUint32(buf[12:16], uint32(len(m.Payload)))
	buf = append(buf, m.Payload...)
	_, err := w.Write(buf)
	return err
}

// ReadMessage reads a complete message from a reader
func ReadMessage(r io.Reader) (*Message, error) {
	h, err := ReadHeader(r)
	if err != nil {
		return nil, err
	}

	m := &Message{Header: *h}
	if h.Length > 0 {
		if h.Length > MaxPayload {
			return nil, fmt.Errorf("payload too large: %d bytes", h.Length)
		}
		m.Payload = make([]byte, h.Length)
		if _, err := io.ReadFull(r, m.Payload); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Request/Response payloads

// HandshakeRequest is sent by the client to initiate connection
type HandshakeRequest struct {
	ClientVersion   string `json:"client_version"`
	ClientName      string `json:"client_name"`
	ProtocolVersion uint8  `json:"protocol_version"`
}

// HandshakeResponse is sent by the server to acknowledge connection
type HandshakeResponse struct {
	ServerVersion   string `json:"server_version"`
	ProtocolVersion uint8  `json:"protocol_version"`
	SessionID       string `json:"session_id"`
}

// ErrorResponse is sent when an operation fails
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	CodeUnknown          = 1
	CodeInvalidRequest   = 2
	CodeNotFound         = 3
	CodePermissionDenied = 4
	CodeInternalError    = 5
	CodeUnavailable      = 6
)

// StatusResponse contains daemon status
type StatusResponse struct {
	Version           string             `json:"version"`
	PID               int                `json:"pid"`
	StartedAt         time.Time          `json:"started_at"`
	Uptime            time.Duration      `json:"uptime"`
	SocketPath        string             `json:"socket_path,omitempty"`
	DatabasePath      string             `json:"database_path,omitempty"`
	KeyboardAvailable bool               `json:"keyboard_available"`
	KeyboardReason    string             `json:"keyboard_reason,omitempty"`
	EngineRunning     bool               `json:"engine_running"`
	Enabled           bool               `json:"enabled"`
	MacroRunning      bool               `json:"macro_running"`
	ProfileID         string             `json:"profile_id"`
	ProfileName       string             `json:"profile_name"`
	Binds             int                `json:"binds"`
	Hotkeys           int                `json:"hotkeys"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`
}

// SetEnabledRequest turns expansion on or off. A nil Enabled toggles.
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled,omitempty"`
}

// SetEnabledResponse reports the resulting state.
type SetEnabledResponse struct {
	Enabled bool `json:"enabled"`
}

// ReloadResponse describes the configuration now active in the engine.
type ReloadResponse struct {
	ProfileID   string `json:"profile_id"`
	ProfileName string `json:"profile_name"`
	Binds       int    `json:"binds"`
	Hotkeys     int    `json:"hotkeys"`
}

// ListProfilesResponse contains the stored profiles.
type ListProfilesResponse struct {
	Profiles []store.ProfileInfo `json:"profiles"`
}

// SwitchProfileRequest activates a profile. An empty ID moves to the next
// profile in list order.
type SwitchProfileRequest struct {
	ID string `json:"id,omitempty"`
}

// SwitchProfileResponse names the newly active profile.
type SwitchProfileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ExportProfileRequest selects a profile to export. Empty means active.
type ExportProfileRequest struct {
	ID string `json:"id,omitempty"`
}

// ExportProfileResponse carries the exported profile document.
type ExportProfileResponse struct {
	Document json.RawMessage `json:"document"`
}

// ImportProfileRequest imports a profile document under fresh ids.
type ImportProfileRequest struct {
	Document json.RawMessage `json:"document"`
	Name     string          `json:"name,omitempty"`
	Activate bool            `json:"activate,omitempty"`
}

// ImportProfileResponse describes the imported profile.
type ImportProfileResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Binds   int    `json:"binds"`
	Hotkeys int    `json:"hotkeys"`
}

// AddProfileRequest creates an empty profile.
type AddProfileRequest struct {
	Name string `json:"name"`
}

// ProfileResponse names a created or changed profile.
type ProfileResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RenameProfileRequest changes a profile name.
type RenameProfileRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DeleteProfileRequest removes a profile. Deleting the active profile
// activates the first remaining one.
type DeleteProfileRequest struct {
	ID string `json:"id"`
}

// ListBindsRequest selects a profile. Empty means active.
type ListBindsRequest struct {
	ProfileID string `json:"profile_id,omitempty"`
}

// ListBindsResponse contains the binds of a profile in display order.
type ListBindsResponse struct {
	ProfileID string      `json:"profile_id"`
	Binds     []bind.Bind `json:"binds"`
}

// AddBindRequest appends a bind to a profile. Empty ProfileID means active.
type AddBindRequest struct {
	ProfileID string    `json:"profile_id,omitempty"`
	Bind      bind.Bind `json:"bind"`
}

// AddBindResponse returns the stored bind. Duplicate is set when another
// bind of the profile already uses the trigger.
type AddBindResponse struct {
	Bind      bind.Bind `json:"bind"`
	Duplicate bool      `json:"duplicate,omitempty"`
}

// DeleteBindRequest removes a bind.
type DeleteBindRequest struct {
	ProfileID string `json:"profile_id,omitempty"`
	ID        string `json:"id"`
}

// ListHotkeysRequest selects a profile. Empty means active.
type ListHotkeysRequest struct {
	ProfileID string `json:"profile_id,omitempty"`
}

// ListHotkeysResponse contains the macro hotkeys of a profile.
type ListHotkeysResponse struct {
	ProfileID string         `json:"profile_id"`
	Hotkeys   []macro.Hotkey `json:"hotkeys"`
}

// AddHotkeyRequest appends a macro hotkey. Empty ProfileID means active.
type AddHotkeyRequest struct {
	ProfileID string       `json:"profile_id,omitempty"`
	Hotkey    macro.Hotkey `json:"hotkey"`
}

// AddHotkeyResponse returns the stored hotkey. Duplicate is set when another
// macro of the profile already uses the combination.
type AddHotkeyResponse struct {
	Hotkey    macro.Hotkey `json:"hotkey"`
	Duplicate bool         `json:"duplicate,omitempty"`
}

// DeleteHotkeyRequest removes a macro hotkey.
type DeleteHotkeyRequest struct {
	ProfileID string `json:"profile_id,omitempty"`
	ID        string `json:"id"`
}

// RunHotkeyRequest runs the macro of a hotkey of the active profile.
type RunHotkeyRequest struct {
	ID string `json:"id"`
}

// TestStepsRequest runs ad-hoc macro steps.
type TestStepsRequest struct {
	Title string       `json:"title,omitempty"`
	Steps []macro.Step `json:"steps"`
}

// RunResponse reports whether a macro was started. A macro already in
// flight or a disabled engine leaves Started false.
type RunResponse struct {
	Started bool `json:"started"`
}

// RecentEventsRequest asks for the newest logged engine events.
type RecentEventsRequest struct {
	Limit int `json:"limit,omitempty"`
}

// RecentEventsResponse contains events, oldest first.
type RecentEventsResponse struct {
	Events []engine.Event `json:"events"`
}

// SubscribeRequest requests event subscription
type SubscribeRequest struct {
	Events []EventType `json:"events"` // Empty means all events
}

// SubscribeResponse acknowledges subscription
type SubscribeResponse struct {
	Success        bool   `json:"success"`
	SubscriptionID string `json:"subscription_id"`
}

// Event is a streamed event
type Event struct {
	Type        EventType     `json:"type"`
	Timestamp   time.Time     `json:"timestamp"`
	ProfileID   string        `json:"profile_id,omitempty"`
	ProfileName string        `json:"profile_name,omitempty"`
	Enabled     *bool         `json:"enabled,omitempty"`
	Engine      *engine.Event `json:"engine,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// Encode encodes a payload to JSON bytes
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode decodes JSON bytes to a payload
func Decode(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// NewErrorMessage creates an error message
func NewErrorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := Encode(&ErrorResponse{
		Code:    code,
		Message: message,
	})
	return NewMessage(MsgError, requestID, payload)
}

// NewResponse creates a response message
func NewResponse(msgType MessageType, requestID uint32, v any) (*Message, error) {
	payload, err := Encode(v)
	if err != nil {
		return nil, err
	}
	return NewMessage(msgType, requestID, payload), nil
}
