package handlers

import (
	"encoding/json"

	"github.com/Brownie44l1/road-detect/internal/detect"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Stream serves GET /ws. Binary messages are encoded frames (JPEG, PNG, ...),
// text messages are DetectionRequest JSON. Every message gets exactly one
// reply: a DetectionResponse or an error body. Frames are independent.
func (h *Handler) Stream(c *gin.Context) {
	log := logFrom(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	if h.maxBodyBytes > 0 {
		conn.SetReadLimit(h.maxBodyBytes)
	}
	log.Info("Stream opened")

	for frame := 0; ; frame++ {
		kind, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Warn("Stream closed unexpectedly")
			} else {
				log.WithField("frames", frame).Info("Stream closed")
			}
			return
		}

		var result *detect.DetectionResponse
		switch kind {
		case websocket.BinaryMessage:
			result, err = h.detector.DetectBytes(msg)
		case websocket.TextMessage:
			var body detectBody
			if jerr := json.Unmarshal(msg, &body); jerr != nil || body.Image == nil {
				log.WithError(jerr).WithField("frame", frame).Warn("Invalid stream message")
				if werr := conn.WriteJSON(errorBody{Detail: "Invalid request body"}); werr != nil {
					return
				}
				continue
			}
			result, err = h.detector.Detect(detect.DetectionRequest{Image: *body.Image, GPS: body.GPS})
		default:
			continue
		}

		if err != nil {
			status, detail := errorResponse(err)
			log.WithError(err).WithFields(logrus.Fields{"frame": frame, "status": status}).Error(detail)
			if werr := conn.WriteJSON(errorBody{Detail: detail}); werr != nil {
				return
			}
			continue
		}

		if err := conn.WriteJSON(result); err != nil {
			log.WithError(err).Warn("Stream write failed")
			return
		}
	}
}
