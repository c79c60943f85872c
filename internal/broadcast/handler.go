package broadcast

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"aircraftdata/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var handlerLogger = logging.New("broadcast")

// subscribeRequest is the client->server message used to join or leave a
// bounds room over the same socket.
type subscribeRequest struct {
	Action string  `json:"action"` // "subscribe" or "unsubscribe"
	LatMin float64 `json:"lat_min"`
	LonMin float64 `json:"lon_min"`
	LatMax float64 `json:"lat_max"`
	LonMax float64 `json:"lon_max"`
}

// Handler upgrades an HTTP request to a WebSocket and lets the client
// subscribe/unsubscribe to one bounds room at a time by sending JSON
// subscribeRequest messages.
func (h *Hub) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		handlerLogger.Warn("upgrade failed", logging.F("error", err))
		return
	}
	defer conn.Close()

	var unsubscribe func()
	defer func() {
		if unsubscribe != nil {
			unsubscribe()
		}
	}()

	if latMin := r.URL.Query().Get("lat_min"); latMin != "" {
		if b, ok := parseBoundsQuery(r); ok {
			unsubscribe = h.Subscribe(conn, b)
		}
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil {
			continue
		}
		bounds := Bounds{LatMin: req.LatMin, LonMin: req.LonMin, LatMax: req.LatMax, LonMax: req.LonMax}
		switch req.Action {
		case "subscribe":
			if unsubscribe != nil {
				unsubscribe()
			}
			unsubscribe = h.Subscribe(conn, bounds)
		case "unsubscribe":
			if unsubscribe != nil {
				unsubscribe()
				unsubscribe = nil
			}
		}
	}
}

func parseBoundsQuery(r *http.Request) (Bounds, bool) {
	q := r.URL.Query()
	latMin, err1 := strconv.ParseFloat(q.Get("lat_min"), 64)
	lonMin, err2 := strconv.ParseFloat(q.Get("lon_min"), 64)
	latMax, err3 := strconv.ParseFloat(q.Get("lat_max"), 64)
	lonMax, err4 := strconv.ParseFloat(q.Get("lon_max"), 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Bounds{}, false
	}
	return Bounds{LatMin: latMin, LonMin: lonMin, LatMax: latMax, LonMax: lonMax}, true
}
