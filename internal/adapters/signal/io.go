package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/core"
	"github.com/dkeye/chatsignal/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, id core.ConnID, c *wsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(ctl.opts.WriteTimeout))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteTimeout)); err != nil {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping")
				return
			}
		}
	}
}

// readPump handles frames in arrival order; per-connection ordering rests
// on this being the only reader.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id core.ConnID, c *wsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(id)
		if ctl.limiter != nil {
			ctl.limiter.Forget(id)
		}
		cancel()
		c.Close()
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		if ctx.Err() != nil {
			return
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		ctl.handleFrame(id, c, data)
	}
}

func (ctl *SignalWSController) handleFrame(id core.ConnID, c *wsSignalConn, data []byte) {
	if ctl.limiter != nil && !ctl.limiter.Allow(id) {
		log.Warn().Err(domain.ErrRateLimited).Str("module", "signal").Str("conn", string(id)).Msg("event dropped")
		ctl.sendError(c, "rate_limited")
		return
	}
	env, err := core.Decode(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad frame")
		ctl.sendError(c, "bad_frame")
		return
	}
	if env.Event == eventPing {
		ctl.handlePing(c)
		return
	}
	_ = ctl.Orch.Dispatch(id, env)
}

func (ctl *SignalWSController) sendJSON(c *wsSignalConn, event string, v any) {
	f, err := core.Encode(event, v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(f)
}

func (ctl *SignalWSController) sendError(c *wsSignalConn, reason string) {
	ctl.sendJSON(c, core.EventError, map[string]string{"error": reason})
}
