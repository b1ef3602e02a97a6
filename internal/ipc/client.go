package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"binderd/internal/bind"
	"binderd/internal/engine"
	"binderd/internal/macro"
	"binderd/internal/store"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// RemoteError is an error reported by the daemon.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IsNotFound reports whether err is a daemon not-found error.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.Code == CodeNotFound
}

// IPCClient is the client for communicating with the binderd daemon
type IPCClient struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string
	sessionID  string
	version    string

	connected atomic.Bool

	// Request handling
	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32
	writeMu   sync.Mutex

	// Event handling
	eventChan    chan *Event
	eventHandler EventHandler
	eventMu      sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(dataDir string) ClientConfig {
	return ClientConfig{
		SocketPath:     filepath.Join(dataDir, "binderd.sock"),
		ClientName:     "binderctl",
		ClientVersion:  "dev",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// EventHandler is called when events are received
type EventHandler func(event *Event)

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *IPCClient {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &IPCClient{
		socketPath: cfg.SocketPath,
		pending:    make(map[uint32]chan *Message),
		eventChan:  make(chan *Event),
		ctx:        ctx,
		cancel:     cancel,
		config:     cfg,
	}
}

// Connect establishes a connection to the daemon and performs the
// handshake.
func (c *IPCClient) Connect() error {
	c.mu.Lock()
	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		c.mu.Unlock()
		if errors.Is(err, syscall.ENOENT) || errors.Is(err, syscall.ECONNREFUSED) {
			return fmt.Errorf("%w: %s", ErrDaemonNotRunning, c.socketPath)
		}
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	events := make(chan *Event, 100)
	c.eventChan = events
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(conn, events)

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}
	return nil
}

// Close closes the connection to the daemon. The Events channel is closed
// once the reader exits.
func (c *IPCClient) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

// close drops the connection and fails pending requests.
func (c *IPCClient) close() {
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)
	c.mu.Unlock()

	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *IPCClient) IsConnected() bool {
	return c.connected.Load()
}

// SessionID returns the session ID assigned by the server
func (c *IPCClient) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// ServerVersion returns the daemon version reported in the handshake.
func (c *IPCClient) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// SetEventHandler sets the handler for streamed events
func (c *IPCClient) SetEventHandler(handler EventHandler) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	c.eventHandler = handler
}

// Events returns the event channel of the current connection. It is closed
// when the connection ends.
func (c *IPCClient) Events() <-chan *Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eventChan
}

func (c *IPCClient) handshake() error {
	var ack HandshakeResponse
	err := c.call(MsgHandshake, MsgHandshakeAck, &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}, &ack)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = ack.SessionID
	c.version = ack.ServerVersion
	c.mu.Unlock()
	return nil
}

// request sends a request and waits for a response
func (c *IPCClient) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

// requestWithTimeout sends a request with a custom timeout
func (c *IPCClient) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	if err := c.write(msg); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

func (c *IPCClient) write(msg *Message) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return msg.Write(conn)
}

// call sends req, expects a reply of type want and decodes it into resp.
// resp may be nil for replies without a payload.
func (c *IPCClient) call(msgType, want MessageType, req, resp any) error {
	msg, err := c.request(msgType, req)
	if err != nil {
		return err
	}
	if msg.Header.Type == MsgError {
		var errResp ErrorResponse
		if err := Decode(msg.Payload, &errResp); err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		return &RemoteError{Code: errResp.Code, Message: errResp.Message}
	}
	if msg.Header.Type != want {
		return fmt.Errorf("unexpected response type: %d", msg.Header.Type)
	}
	if resp == nil || len(msg.Payload) == 0 {
		return nil
	}
	return Decode(msg.Payload, resp)
}

// readLoop reads messages from conn until it fails or the client closes.
func (c *IPCClient) readLoop(conn net.Conn, events chan *Event) {
	defer c.wg.Done()
	defer close(events)

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() == nil {
				c.close()
			}
			return
		}
		c.handleMessage(msg, events)
	}
}

// handleMessage processes an incoming message. The event handler runs on
// the reader goroutine and must not issue requests.
func (c *IPCClient) handleMessage(msg *Message, events chan *Event) {
	switch msg.Header.Type {
	case MsgPing:
		c.write(NewMessage(MsgPong, msg.Header.RequestID, nil))

	case MsgEvent:
		var event Event
		if err := Decode(msg.Payload, &event); err != nil {
			return
		}
		select {
		case events <- &event:
		default:
			// Channel full, drop event
		}

		c.eventMu.RLock()
		handler := c.eventHandler
		c.eventMu.RUnlock()
		if handler != nil {
			handler(&event)
		}

	default:
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// High-level API methods

// Ping checks if the daemon is responsive
func (c *IPCClient) Ping() error {
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response: %d", resp.Header.Type)
	}
	return nil
}

// Status requests the daemon status
func (c *IPCClient) Status() (*StatusResponse, error) {
	var status StatusResponse
	if err := c.call(MsgStatusRequest, MsgStatusResponse, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SetEnabled turns expansion on or off. A nil enabled toggles it.
func (c *IPCClient) SetEnabled(enabled *bool) (bool, error) {
	var resp SetEnabledResponse
	if err := c.call(MsgSetEnabled, MsgSetEnabledResp, &SetEnabledRequest{Enabled: enabled}, &resp); err != nil {
		return false, err
	}
	return resp.Enabled, nil
}

// Reload makes the daemon re-read the active profile from the store.
func (c *IPCClient) Reload() (*ReloadResponse, error) {
	var resp ReloadResponse
	if err := c.call(MsgReload, MsgReloadResp, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListProfiles lists the stored profiles.
func (c *IPCClient) ListProfiles() ([]store.ProfileInfo, error) {
	var resp ListProfilesResponse
	if err := c.call(MsgListProfiles, MsgListProfilesResp, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Profiles, nil
}

// SwitchProfile activates a profile. An empty id moves to the next one.
func (c *IPCClient) SwitchProfile(id string) (*SwitchProfileResponse, error) {
	var resp SwitchProfileResponse
	if err := c.call(MsgSwitchProfile, MsgSwitchProfileResp, &SwitchProfileRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ExportProfile returns a profile document. An empty id means active.
func (c *IPCClient) ExportProfile(id string) (json.RawMessage, error) {
	var resp ExportProfileResponse
	if err := c.call(MsgExportProfile, MsgExportProfileResp, &ExportProfileRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return resp.Document, nil
}

// ImportProfile imports a profile document, optionally renaming and
// activating it.
func (c *IPCClient) ImportProfile(doc []byte, name string, activate bool) (*ImportProfileResponse, error) {
	var resp ImportProfileResponse
	req := &ImportProfileRequest{Document: json.RawMessage(doc), Name: name, Activate: activate}
	if err := c.call(MsgImportProfile, MsgImportProfileResp, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddProfile creates an empty profile.
func (c *IPCClient) AddProfile(name string) (*ProfileResponse, error) {
	var resp ProfileResponse
	if err := c.call(MsgAddProfile, MsgAddProfileResp, &AddProfileRequest{Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RenameProfile changes a profile name. An empty id means active.
func (c *IPCClient) RenameProfile(id, name string) (*ProfileResponse, error) {
	var resp ProfileResponse
	if err := c.call(MsgRenameProfile, MsgRenameProfileResp, &RenameProfileRequest{ID: id, Name: name}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteProfile removes a profile and returns the profile active afterwards.
func (c *IPCClient) DeleteProfile(id string) (*ProfileResponse, error) {
	var resp ProfileResponse
	if err := c.call(MsgDeleteProfile, MsgDeleteProfileResp, &DeleteProfileRequest{ID: id}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListBinds lists the binds of a profile. An empty id means active.
func (c *IPCClient) ListBinds(profileID string) (*ListBindsResponse, error) {
	var resp ListBindsResponse
	if err := c.call(MsgListBinds, MsgListBindsResp, &ListBindsRequest{ProfileID: profileID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddBind appends a bind to a profile.
func (c *IPCClient) AddBind(profileID string, b bind.Bind) (*AddBindResponse, error) {
	var resp AddBindResponse
	if err := c.call(MsgAddBind, MsgAddBindResp, &AddBindRequest{ProfileID: profileID, Bind: b}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteBind removes a bind from a profile.
func (c *IPCClient) DeleteBind(profileID, id string) error {
	return c.call(MsgDeleteBind, MsgDeleteBindResp, &DeleteBindRequest{ProfileID: profileID, ID: id}, nil)
}

// ListHotkeys lists the macro hotkeys of a profile.
func (c *IPCClient) ListHotkeys(profileID string) (*ListHotkeysResponse, error) {
	var resp ListHotkeysResponse
	if err := c.call(MsgListHotkeys, MsgListHotkeysResp, &ListHotkeysRequest{ProfileID: profileID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AddHotkey appends a macro hotkey to a profile.
func (c *IPCClient) AddHotkey(profileID string, h macro.Hotkey) (*AddHotkeyResponse, error) {
	var resp AddHotkeyResponse
	if err := c.call(MsgAddHotkey, MsgAddHotkeyResp, &AddHotkeyRequest{ProfileID: profileID, Hotkey: h}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteHotkey removes a macro hotkey from a profile.
func (c *IPCClient) DeleteHotkey(profileID, id string) error {
	return c.call(MsgDeleteHotkey, MsgDeleteHotkeyResp, &DeleteHotkeyRequest{ProfileID: profileID, ID: id}, nil)
}

// RunHotkey runs the macro of a hotkey of the active profile.
func (c *IPCClient) RunHotkey(id string) (bool, error) {
	var resp RunResponse
	if err := c.call(MsgRunHotkey, MsgRunHotkeyResp, &RunHotkeyRequest{ID: id}, &resp); err != nil {
		return false, err
	}
	return resp.Started, nil
}

// TestSteps runs ad-hoc macro steps.
func (c *IPCClient) TestSteps(title string, steps []macro.Step) (bool, error) {
	var resp RunResponse
	if err := c.call(MsgTestSteps, MsgTestStepsResp, &TestStepsRequest{Title: title, Steps: steps}, &resp); err != nil {
		return false, err
	}
	return resp.Started, nil
}

// RecentEvents returns up to limit logged engine events, oldest first.
func (c *IPCClient) RecentEvents(limit int) ([]engine.Event, error) {
	var resp RecentEventsResponse
	if err := c.call(MsgRecentEvents, MsgRecentEventsResp, &RecentEventsRequest{Limit: limit}, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

// Subscribe subscribes to events. No types means all events.
func (c *IPCClient) Subscribe(events ...EventType) error {
	var resp SubscribeResponse
	if err := c.call(MsgSubscribe, MsgSubscribeResp, &SubscribeRequest{Events: events}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New("subscription failed")
	}
	return nil
}

// Unsubscribe unsubscribes from all events
func (c *IPCClient) Unsubscribe() error {
	return c.call(MsgUnsubscribe, MsgUnsubscribeResp, nil, nil)
}
