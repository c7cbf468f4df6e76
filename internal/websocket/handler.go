package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs runs one room connection until the peer goes away.
func ServeWs(hub *Hub, c *websocket.Conn, roomId int64, userId, userName string) {
	client := NewClient(hub, c, roomId, userId, userName)
	if !hub.Register(client) {
		c.Close()
		return
	}

	go client.writePump()
	client.readPump() // fiber keeps the connection open while the handler runs
}
