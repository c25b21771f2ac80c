package signal

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/chatsignal/internal/app/orch"
	"github.com/dkeye/chatsignal/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrClosed       = errors.New("connection closed")
)

type Options struct {
	ReadLimit      int64
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	AllowedOrigins []string
	RateLimit      int
	RateInterval   time.Duration
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	opts     Options
	limiter  *EventRateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	ctl := &SignalWSController{
		Orch: o,
		opts: opts,
	}
	if opts.RateLimit > 0 && opts.RateInterval > 0 {
		ctl.limiter = NewEventRateLimiter(opts.RateLimit, opts.RateInterval)
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	if len(ctl.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(ctl.opts.AllowedOrigins, origin)
}

// wsSignalConn implements core.SignalConnection over a gorilla socket.
// Writes never block the caller: a full buffer is reported as backpressure.
type wsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newWSSignalConn(ws *websocket.Conn, buffer int) *wsSignalConn {
	return &wsSignalConn{
		conn: ws,
		send: make(chan core.Frame, buffer),
	}
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
}

// HandleSignal upgrades the request and runs the connection until the
// socket closes or ctx is done.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	id := core.ConnID(uuid.NewString())
	token := c.GetString("client_token")

	ws, err := ctl.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(id)).Str("client", token).Msg("new WS connection")

	conn := newWSSignalConn(ws, ctl.opts.SendBuffer)
	connCtx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.Bind(id, conn, token, cancel)

	go ctl.writePump(connCtx, id, conn)
	go ctl.readPump(connCtx, cancel, id, conn)
}
