package signal

const (
	eventPing = "ping"
	eventPong = "pong"
)

// handlePing answers application-level keepalives from clients that
// cannot see websocket control frames.
func (ctl *SignalWSController) handlePing(
	conn *wsSignalConn,
) {
	ctl.sendJSON(conn, eventPong, nil)
}
