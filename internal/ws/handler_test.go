package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Mitahi-1810/stream-mates/internal/models"
	"github.com/Mitahi-1810/stream-mates/internal/registry"
	"github.com/Mitahi-1810/stream-mates/internal/store"
)

const testRoom = "ABCD12"

// memStore is a minimal in-memory RoomStore for exercising the handler's
// store interactions without Redis.
type memStore struct {
	mu    sync.Mutex
	rooms map[string]*models.RoomDocument
}

func newMemStore() *memStore {
	return &memStore{rooms: make(map[string]*models.RoomDocument)}
}

func (m *memStore) InsertRoom(_ context.Context, doc models.RoomDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[doc.Code]; ok {
		return store.ErrDuplicateCode
	}
	m.rooms[doc.Code] = &doc
	return nil
}

func (m *memStore) FindRoomByCode(_ context.Context, code string) (*models.RoomDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.rooms[code]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	cp := *doc
	return &cp, nil
}

func (m *memStore) AddUser(_ context.Context, code string, user models.User) (*models.RoomDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.rooms[code]
	if !ok {
		return nil, store.ErrRoomNotFound
	}
	if !doc.IsActive {
		return nil, store.ErrRoomClosed
	}
	for _, u := range doc.Users {
		if u.ID == user.ID {
			cp := *doc
			return &cp, nil
		}
	}
	doc.Users = append(doc.Users, user)
	cp := *doc
	return &cp, nil
}

func (m *memStore) RemoveUser(_ context.Context, code string, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.rooms[code]
	if !ok {
		return store.ErrRoomNotFound
	}
	users := doc.Users[:0]
	for _, u := range doc.Users {
		if u.ID != userID {
			users = append(users, u)
		}
	}
	doc.Users = users
	return nil
}

func (m *memStore) CloseRoom(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.rooms[code]
	if !ok {
		return store.ErrRoomNotFound
	}
	doc.IsActive = false
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := newMemStore()
	st.rooms[testRoom] = &models.RoomDocument{
		ID:       "room-1",
		Code:     testRoom,
		IsActive: true,
		Users:    []models.User{},
	}

	r := gin.New()
	r.GET("/ws", NewHandler(registry.New(), st).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, st
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendEvent(t *testing.T, conn *websocket.Conn, eventType string, payload interface{}) {
	t.Helper()
	evt, err := models.NewEvent(eventType, payload)
	if err != nil {
		t.Fatalf("build %s event: %v", eventType, err)
	}
	if err := conn.WriteJSON(evt); err != nil {
		t.Fatalf("write %s event: %v", eventType, err)
	}
}

// waitFor reads frames until one of the wanted type arrives, failing the test
// if it does not show up in time.
func waitFor(t *testing.T, conn *websocket.Conn, eventType string) models.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var evt models.Event
		if err := conn.ReadJSON(&evt); err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		if evt.Type == eventType {
			return evt
		}
	}
}

func joinAs(t *testing.T, conn *websocket.Conn, user models.User) {
	t.Helper()
	sendEvent(t, conn, models.EventJoinRoom, models.JoinRoomPayload{RoomID: testRoom, User: user})
}

func TestServe_JoinDeliversJoinedThenSync(t *testing.T) {
	srv, st := newTestServer(t)
	conn := dial(t, srv)

	joinAs(t, conn, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})

	joined := waitFor(t, conn, models.EventUserJoined)
	var jp models.UserJoinedPayload
	if err := json.Unmarshal(joined.Payload, &jp); err != nil {
		t.Fatalf("parse user:joined: %v", err)
	}
	if jp.UserID != "h1" || jp.TotalUsers != 1 {
		t.Errorf("user:joined = %+v", jp)
	}

	snap := waitFor(t, conn, models.EventRoomSync)
	var sp models.RoomSyncPayload
	if err := json.Unmarshal(snap.Payload, &sp); err != nil {
		t.Fatalf("parse room:sync: %v", err)
	}
	if sp.HostID != "h1" || len(sp.Users) != 1 {
		t.Errorf("room:sync = %+v", sp)
	}

	// Membership must be mirrored into the store.
	doc, err := st.FindRoomByCode(context.Background(), testRoom)
	if err != nil {
		t.Fatalf("find room: %v", err)
	}
	if len(doc.Users) != 1 || doc.Users[0].ID != "h1" {
		t.Errorf("persisted users = %+v", doc.Users)
	}
}

func TestServe_JoinUnknownRoomAnswersError(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv)

	sendEvent(t, conn, models.EventJoinRoom, models.JoinRoomPayload{
		RoomID: "NOPE99",
		User:   models.User{ID: "v1", Name: "V", Role: models.RoleViewer},
	})

	evt := waitFor(t, conn, models.EventError)
	var ep models.ErrorPayload
	if err := json.Unmarshal(evt.Payload, &ep); err != nil {
		t.Fatalf("parse error payload: %v", err)
	}
	if ep.Message != "room not found" {
		t.Errorf("error = %q", ep.Message)
	}
}

func TestServe_JoinClosedRoomAnswersError(t *testing.T) {
	srv, st := newTestServer(t)
	st.CloseRoom(context.Background(), testRoom)
	conn := dial(t, srv)

	joinAs(t, conn, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})

	evt := waitFor(t, conn, models.EventError)
	var ep models.ErrorPayload
	if err := json.Unmarshal(evt.Payload, &ep); err != nil {
		t.Fatalf("parse error payload: %v", err)
	}
	if ep.Message != "room has been closed" {
		t.Errorf("error = %q", ep.Message)
	}
}

func TestServe_ChatReachesBothParticipants(t *testing.T) {
	srv, _ := newTestServer(t)
	host := dial(t, srv)
	viewer := dial(t, srv)

	joinAs(t, host, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})
	waitFor(t, host, models.EventRoomSync)
	joinAs(t, viewer, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})
	waitFor(t, viewer, models.EventRoomSync)

	msg := models.ChatMessage{ID: "m1", UserID: "v1", UserName: "V", Text: "hi", Timestamp: time.Now().UnixMilli()}
	sendEvent(t, viewer, models.EventChatMessage, msg)

	for _, conn := range []*websocket.Conn{host, viewer} {
		evt := waitFor(t, conn, models.EventChatMessage)
		var got models.ChatMessage
		if err := json.Unmarshal(evt.Payload, &got); err != nil {
			t.Fatalf("parse chat:message: %v", err)
		}
		if got.ID != "m1" || got.Text != "hi" {
			t.Errorf("chat frame = %+v", got)
		}
	}
}

func TestServe_SignalSenderStampedServerSide(t *testing.T) {
	srv, _ := newTestServer(t)
	host := dial(t, srv)
	viewer := dial(t, srv)

	joinAs(t, host, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})
	waitFor(t, host, models.EventRoomSync)
	joinAs(t, viewer, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})
	waitFor(t, viewer, models.EventRoomSync)

	// The claimed sender is spoofed; the relay must overwrite it with the
	// connection's identity.
	sendEvent(t, viewer, models.EventSignal, models.SignalEnvelope{
		Type:   models.SignalTypeOffer,
		Sender: "someone-else",
		Target: "h1",
		Data:   json.RawMessage(`{"sdp":"x"}`),
	})

	evt := waitFor(t, host, models.EventSignal)
	var env models.SignalEnvelope
	if err := json.Unmarshal(evt.Payload, &env); err != nil {
		t.Fatalf("parse signal: %v", err)
	}
	if env.Sender != "v1" {
		t.Errorf("sender = %q, want v1", env.Sender)
	}
	if env.Type != models.SignalTypeOffer {
		t.Errorf("type = %q", env.Type)
	}
}

func TestServe_RefreshResendsSnapshotToRequesterOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	host := dial(t, srv)
	viewer := dial(t, srv)

	joinAs(t, host, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})
	waitFor(t, host, models.EventRoomSync)
	joinAs(t, viewer, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})
	waitFor(t, viewer, models.EventRoomSync)

	sendEvent(t, viewer, models.EventRoomRefresh, nil)

	snap := waitFor(t, viewer, models.EventRoomSync)
	var sp models.RoomSyncPayload
	if err := json.Unmarshal(snap.Payload, &sp); err != nil {
		t.Fatalf("parse room:sync: %v", err)
	}
	if sp.HostID != "h1" || len(sp.Users) != 2 {
		t.Errorf("refreshed snapshot = %+v", sp)
	}

	// The chat frame fences the host's stream: everything the refresh could
	// have produced for it would arrive first, and must not include a sync.
	msg := models.ChatMessage{ID: "m1", UserID: "v1", UserName: "V", Text: "fence", Timestamp: time.Now().UnixMilli()}
	sendEvent(t, viewer, models.EventChatMessage, msg)
	deadline := time.Now().Add(2 * time.Second)
	for {
		host.SetReadDeadline(deadline)
		var evt models.Event
		if err := host.ReadJSON(&evt); err != nil {
			t.Fatalf("reading host frames: %v", err)
		}
		if evt.Type == models.EventRoomSync {
			t.Fatal("refresh leaked a room:sync to a non-requesting member")
		}
		if evt.Type == models.EventChatMessage {
			return
		}
	}
}

func TestServe_RejoinOtherRoomDetachesFromFirst(t *testing.T) {
	srv, st := newTestServer(t)
	const otherRoom = "EFGH34"
	st.rooms[otherRoom] = &models.RoomDocument{
		ID:       "room-2",
		Code:     otherRoom,
		IsActive: true,
		Users:    []models.User{},
	}

	host := dial(t, srv)
	viewer := dial(t, srv)

	joinAs(t, host, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})
	waitFor(t, host, models.EventRoomSync)
	joinAs(t, viewer, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})
	waitFor(t, viewer, models.EventRoomSync)

	// Switch rooms without an explicit leave_room.
	sendEvent(t, viewer, models.EventJoinRoom, models.JoinRoomPayload{
		RoomID: otherRoom,
		User:   models.User{ID: "v1", Name: "V", Role: models.RoleViewer},
	})

	evt := waitFor(t, host, models.EventUserLeft)
	var lp models.UserLeftPayload
	if err := json.Unmarshal(evt.Payload, &lp); err != nil {
		t.Fatalf("parse user:left: %v", err)
	}
	if lp.UserID != "v1" || lp.TotalUsers != 1 {
		t.Errorf("user:left = %+v", lp)
	}

	waitFor(t, viewer, models.EventRoomSync)

	doc, err := st.FindRoomByCode(context.Background(), testRoom)
	if err != nil {
		t.Fatalf("find first room: %v", err)
	}
	for _, u := range doc.Users {
		if u.ID == "v1" {
			t.Error("viewer still persisted in the first room after switching")
		}
	}
	doc, err = st.FindRoomByCode(context.Background(), otherRoom)
	if err != nil {
		t.Fatalf("find second room: %v", err)
	}
	if len(doc.Users) != 1 || doc.Users[0].ID != "v1" {
		t.Errorf("second room users = %+v, want [v1]", doc.Users)
	}

	// Chat in the first room must no longer reach the switched connection.
	msg := models.ChatMessage{ID: "m1", UserID: "h1", UserName: "Host", Text: "left behind", Timestamp: time.Now().UnixMilli()}
	sendEvent(t, host, models.EventChatMessage, msg)
	waitFor(t, host, models.EventChatMessage)

	viewer.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var stray models.Event
	for {
		if err := viewer.ReadJSON(&stray); err != nil {
			break // timeout: nothing leaked
		}
		if stray.Type == models.EventChatMessage {
			t.Fatal("first room's chat still delivered after switching rooms")
		}
	}
}

func TestServe_DisconnectNotifiesRemaining(t *testing.T) {
	srv, st := newTestServer(t)
	host := dial(t, srv)
	viewer := dial(t, srv)

	joinAs(t, host, models.User{ID: "h1", Name: "Host", Role: models.RoleHost})
	waitFor(t, host, models.EventRoomSync)
	joinAs(t, viewer, models.User{ID: "v1", Name: "V", Role: models.RoleViewer})
	waitFor(t, viewer, models.EventRoomSync)

	viewer.Close()

	evt := waitFor(t, host, models.EventUserLeft)
	var lp models.UserLeftPayload
	if err := json.Unmarshal(evt.Payload, &lp); err != nil {
		t.Fatalf("parse user:left: %v", err)
	}
	if lp.UserID != "v1" || lp.TotalUsers != 1 {
		t.Errorf("user:left = %+v", lp)
	}

	// A plain drop is a leave, never a close.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		doc, err := st.FindRoomByCode(context.Background(), testRoom)
		if err != nil {
			t.Fatalf("find room: %v", err)
		}
		if !doc.IsActive {
			t.Fatal("disconnect marked the room closed")
		}
		if len(doc.Users) == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("viewer never removed from the store")
}
