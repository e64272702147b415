package hub

import (
	"encoding/json"
	"time"

	"github.com/Ganesh7742/ShareTheCode/internal/chat"
	"github.com/Ganesh7742/ShareTheCode/internal/presence"
	"github.com/Ganesh7742/ShareTheCode/internal/snapshot"
)

// Event is the wire envelope for every channel message, both directions:
// a named event plus a JSON payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Server-to-client event names.
const (
	EvInit               = "init"
	EvSnapshotsInit      = "snapshots:init"
	EvChatHistory        = "chat:history"
	EvCodeBroadcast      = "code:broadcast"
	EvCodeSaved          = "code:saved"
	EvCodeClear          = "code:clear"
	EvCodeDeleted        = "code:deleted"
	EvSnapshotCreated    = "snapshot:created"
	EvSnapshotDeleted    = "snapshot:deleted"
	EvUserJoined         = "user:joined"
	EvUserLeft           = "user:left"
	EvUsersUpdate        = "users:update"
	EvUserConnected      = "user:connected"
	EvUserDisconnected   = "user:disconnected"
	EvChatMessage        = "chat:message"
	EvChatMessageDeleted = "chat:messageDeleted"
	EvChatDeleteError    = "chat:deleteError"
)

// Client-to-server event names.
const (
	EvUserJoin   = "user:join"
	EvCodeUpdate = "code:update"
	EvCodeSave   = "code:save"
	EvCodeDelete = "code:delete"
	EvChatSend   = "chat:send"
	EvChatDelete = "chat:delete"
)

// newEvent marshals a payload into an envelope. Payloads are plain structs
// defined below; a marshal failure here is a programming error.
func newEvent(name string, v any) Event {
	data, err := json.Marshal(v)
	if err != nil {
		panic("hub: marshal event payload: " + err.Error())
	}
	return Event{Event: name, Data: data}
}

type initPayload struct {
	Code     string `json:"code"`
	Username string `json:"username,omitempty"`
}

// SnapshotInfo is the list entry pushed in snapshots:init and
// snapshot:created. URL is the share link for the viewer page.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	URL       string    `json:"url"`
	Creator   string    `json:"creator,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func snapshotInfo(sn snapshot.Snapshot, baseURL string) SnapshotInfo {
	return SnapshotInfo{
		ID:        sn.ID,
		Name:      sn.Name,
		URL:       baseURL + "/s/" + sn.ID,
		Creator:   sn.Creator,
		Timestamp: sn.CreatedAt,
	}
}

type snapshotsInitPayload struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

type chatHistoryPayload struct {
	Messages []chat.Message `json:"messages"`
}

// Pointer fields distinguish a missing field from an empty string; events
// with required fields absent are dropped at the boundary.
type codeUpdatePayload struct {
	Code *string `json:"code"`
}

type codeBroadcastPayload struct {
	Code         string `json:"code"`
	Username     string `json:"username,omitempty"`
	IsNewMessage bool   `json:"isNewMessage,omitempty"`
}

type codeSavePayload struct {
	Code  *string `json:"code"`
	Title string  `json:"title"`
}

type idPayload struct {
	ID string `json:"id"`
}

type joinPayload struct {
	Username string `json:"username"`
}

type userEventPayload struct {
	Username string `json:"username"`
}

type usersUpdatePayload struct {
	Users []presence.Participant `json:"users"`
}

type countPayload struct {
	Count int `json:"count"`
}

type chatSendPayload struct {
	Message string `json:"message"`
}

type chatDeleteErrorPayload struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}
