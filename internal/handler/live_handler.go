package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lightquark/maptracker/internal/models"
	"github.com/lightquark/maptracker/internal/service"
	"github.com/lightquark/maptracker/internal/store"
	"github.com/lightquark/maptracker/pkg/response"
)

const (
	liveWriteWait  = 10 * time.Second
	livePingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Live message types
const (
	LiveRecords = "records"
	LiveStatus  = "status"
	LiveFailure = "failure"
)

// LiveMessage is one frame sent to a live viewer. A records frame with no
// records means the store is empty.
type LiveMessage struct {
	Type    string                  `json:"type"`
	Records []models.LocationRecord `json:"records,omitempty"`
	Active  *bool                   `json:"active,omitempty"`
	Failure *FailureNotice          `json:"failure,omitempty"`
}

// FailureNotice reports a queued write that could not be stored
type FailureNotice struct {
	Op      string    `json:"op"`
	Records int       `json:"records"`
	Error   string    `json:"error"`
	At      time.Time `json:"at"`
}

func newFailureNotice(f store.WriteFailure) *FailureNotice {
	return &FailureNotice{
		Op:      f.Op,
		Records: f.Records,
		Error:   f.Err.Error(),
		At:      f.At,
	}
}

// LiveHandler streams the newest records, the tracking status and storage
// failures over a websocket. While a viewer is connected the application counts as being
// in the foreground.
type LiveHandler struct {
	trackingService *service.TrackingService
	logger          *slog.Logger
}

// NewLiveHandler creates a new live handler
func NewLiveHandler(trackingService *service.TrackingService, logger *slog.Logger) *LiveHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveHandler{
		trackingService: trackingService,
		logger:          logger,
	}
}

// Stream handles GET /api/v1/locations/live
func (h *LiveHandler) Stream(c *gin.Context) {
	view, err := h.trackingService.RecentRecords()
	if err != nil {
		response.ServiceUnavailable(c, err.Error())
		return
	}
	defer view.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("failed to upgrade websocket connection", "error", err)
		return
	}
	defer conn.Close()

	leave := h.trackingService.Presence().Enter()
	defer leave()

	records, cancelRecords := view.Subscribe()
	defer cancelRecords()
	status, cancelStatus := h.trackingService.TrackingStatus().Subscribe()
	defer cancelStatus()
	failures, cancelFailures := h.trackingService.Failures()
	defer cancelFailures()

	h.logger.Info("live viewer connected", "remote", c.ClientIP())
	defer h.logger.Info("live viewer disconnected", "remote", c.ClientIP())

	// Viewers are not expected to send anything; reading detects disconnects
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn("live connection closed unexpectedly", "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(livePingPeriod)
	defer ping.Stop()

	for {
		var msg LiveMessage
		select {
		case <-gone:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteWait)); err != nil {
				return
			}
			continue
		case recs, ok := <-records:
			if !ok {
				return
			}
			msg = LiveMessage{Type: LiveRecords, Records: recs}
		case active, ok := <-status:
			if !ok {
				return
			}
			msg = LiveMessage{Type: LiveStatus, Active: &active}
		case failure, ok := <-failures:
			if !ok {
				return
			}
			msg = LiveMessage{Type: LiveFailure, Failure: newFailureNotice(failure)}
		}

		conn.SetWriteDeadline(time.Now().Add(liveWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			h.logger.Debug("live write failed", "error", err)
			return
		}
	}
}
