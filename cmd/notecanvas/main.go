// Command notecanvas serves the collaborative canvas over REST and websockets.
//
// @title Notecanvas API
// @version 1.0
// @description Notes and connections on a shared canvas. Every applied change is broadcast to connected websocket sessions.
// @BasePath /api/v1
package main

func main() {
	Execute()
}
