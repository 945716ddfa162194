package mediastream

import (
	"encoding/json"
	"net/http"
	"time"

	"callbridge/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	readLimit    = 1 << 20
	pongWait     = 90 * time.Second
	writeWait    = 10 * time.Second
	closeTimeout = 5 * time.Second
)

// frame is one inbound media-stream message. The provider multiplexes every
// event type over the one socket and discriminates on the event field.
type frame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The telephony provider connects from its own infrastructure and sends
	// no browser Origin header worth checking.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades the media-stream endpoint and pumps frames into the
// processor. One socket carries exactly one stream session.
func Handler(p *Processor) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.FromGin(c)

		callID := c.Query("callId")
		if callID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "callId is required"})
			return
		}
		log = log.With("call_id", callID)

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("media stream upgrade failed", "err", err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(readLimit)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		log.Info("media stream connected")

		var streamSID string
		defer func() {
			if streamSID != "" {
				p.StopSession(streamSID)
			}
		}()

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn("media stream closed unexpectedly", "err", err)
				} else {
					log.Info("media stream closed")
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(pongWait))

			var f frame
			if err := json.Unmarshal(msg, &f); err != nil {
				log.Warn("media stream frame decode failed", "err", err)
				continue
			}

			switch f.Event {
			case "connected":
				// Handshake frame; the stream id arrives with start.
			case "start":
				if f.StreamSID == "" {
					log.Warn("start frame without streamSid")
					continue
				}
				streamSID = f.StreamSID
				p.StartSession(streamSID, callID)
				log.Info("media stream started", "stream_sid", streamSID)
			case "media":
				if f.StreamSID == "" || f.Media.Payload == "" {
					continue
				}
				p.HandleMedia(f.StreamSID, f.Media.Payload)
			case "stop":
				log.Info("media stream stopped", "stream_sid", f.StreamSID)
				if f.StreamSID != "" {
					p.StopSession(f.StreamSID)
					if f.StreamSID == streamSID {
						streamSID = ""
					}
				}
				deadline := time.Now().Add(writeWait)
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
				conn.SetReadDeadline(time.Now().Add(closeTimeout))
			default:
				log.Debug("media stream frame ignored", "event", f.Event)
			}
		}
	}
}
