package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stockalert/stockalert/internal/api"
	"github.com/stockalert/stockalert/internal/database"
	"github.com/stockalert/stockalert/internal/realtime"
)

// NotificationMessageType is the type of a message sent to notification subscribers
type NotificationMessageType string

const (
	// NotificationMessageTypeNotification carries one notification, from catch-up or live
	NotificationMessageTypeNotification NotificationMessageType = "notification"
	// NotificationMessageTypeReady is sent once catch-up is complete
	NotificationMessageTypeReady NotificationMessageType = "ready"
)

const (
	defaultSubscriberBuffer = 64
	defaultCatchUpLimit     = 500
	wsWriteTimeout          = 10 * time.Second
	wsPongTimeout           = 60 * time.Second
	wsPingInterval          = (wsPongTimeout * 9) / 10
)

// NotificationMessage is a websocket frame sent to the UI.
// Truncated is set on the ready frame when more notifications were missed
// than catch-up replays; clients page the rest from the REST list starting
// at the created_at of the last catch-up notification.
type NotificationMessage struct {
	Type         NotificationMessageType    `json:"type"`
	Notification *api.NotificationListItem `json:"notification,omitempty"`
	CatchUp      bool                       `json:"catch_up,omitempty"`
	CaughtUp     int                        `json:"caught_up,omitempty"`
	Truncated    bool                       `json:"truncated,omitempty"`
}

// NotificationsWSHandler streams a recipient's notifications over a websocket.
// Clients pass the time of the last notification they saw as "since" and
// receive everything newer before live delivery starts.
type NotificationsWSHandler struct {
	upgrader websocket.Upgrader
	store    *database.Store
	hub      *realtime.Hub
	buffer   int

	catchUpLimit int
}

// NewNotificationsWSHandler creates a new notifications websocket handler.
// checkOrigin may be nil to accept every origin.
func NewNotificationsWSHandler(store *database.Store, hub *realtime.Hub, checkOrigin func(r *http.Request) bool) *NotificationsWSHandler {
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &NotificationsWSHandler{
		upgrader: websocket.Upgrader{
			CheckOrigin:     checkOrigin,
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		store:  store,
		hub:    hub,
		buffer:       defaultSubscriberBuffer,
		catchUpLimit: defaultCatchUpLimit,
	}
}

// SetupRoutes configures WebSocket routes
func (h *NotificationsWSHandler) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET "+NotificationStreamPath, h.HandleWebSocket)
}

// HandleWebSocket handles GET /ws/notifications?recipient_id=&since=
func (h *NotificationsWSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	recipientID, err := api.QueryID(r, "recipient_id")
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if recipientID == 0 {
		api.RespondError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}
	since, err := api.QueryTime(r, "since")
	if err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Hub: Failed to upgrade WebSocket: %v", err)
		return
	}
	defer conn.Close()

	// Subscribe before the catch-up read so nothing created in between is missed.
	sub := h.hub.Subscribe(recipientID, h.buffer)
	defer sub.Close()

	log.Printf("Hub: Subscriber connected for recipient %d from %s", recipientID, r.RemoteAddr)
	defer log.Printf("Hub: Subscriber disconnected for recipient %d", recipientID)

	delivered, err := h.catchUp(r.Context(), conn, recipientID, since)
	if err != nil {
		log.Printf("Warning: Hub: catch-up failed for recipient %d: %v", recipientID, err)
		return
	}

	done := make(chan struct{})
	go h.readLoop(conn, done)

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			return

		case n, ok := <-sub.C():
			if !ok {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if _, seen := delivered[n.ID]; seen {
				delete(delivered, n.ID)
				continue
			}
			item := api.NotificationToListItem(*n)
			if err := writeJSON(conn, NotificationMessage{Type: NotificationMessageTypeNotification, Notification: &item}); err != nil {
				log.Printf("Hub: Write to recipient %d failed: %v", recipientID, err)
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// catchUp sends up to catchUpLimit of the oldest notifications created after since
// and returns their IDs
func (h *NotificationsWSHandler) catchUp(ctx context.Context, conn *websocket.Conn, recipientID uint, since *time.Time) (map[string]struct{}, error) {
	delivered := make(map[string]struct{})
	truncated := false
	if since != nil {
		missed, err := h.store.ListNotificationsSince(ctx, recipientID, *since, h.catchUpLimit+1)
		if err != nil {
			return nil, err
		}
		if len(missed) > h.catchUpLimit {
			missed = missed[:h.catchUpLimit]
			truncated = true
			log.Printf("Hub: catch-up for recipient %d truncated at %d notifications", recipientID, h.catchUpLimit)
		}
		for i := range missed {
			item := api.NotificationToListItem(missed[i])
			if err := writeJSON(conn, NotificationMessage{Type: NotificationMessageTypeNotification, Notification: &item, CatchUp: true}); err != nil {
				return nil, err
			}
			delivered[missed[i].ID] = struct{}{}
		}
	}

	ready := NotificationMessage{Type: NotificationMessageTypeReady, CaughtUp: len(delivered), Truncated: truncated}
	if err := writeJSON(conn, ready); err != nil {
		return nil, err
	}
	return delivered, nil
}

// readLoop consumes control frames and closes done when the client goes away
func (h *NotificationsWSHandler) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongTimeout))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("Hub: WebSocket read error: %v", err)
			}
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, msg NotificationMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
