package server

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// streams tracks live WebSocket connections. http.Server.Shutdown does not
// see hijacked connections, so the server ends them itself.
type streams struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
	conns  map[*websocket.Conn]struct{}
}

// add registers c. It returns false once shutdown has started.
func (st *streams) add(c *websocket.Conn) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.closed {
		return false
	}
	if st.conns == nil {
		st.conns = make(map[*websocket.Conn]struct{})
	}
	st.conns[c] = struct{}{}
	st.wg.Add(1)
	return true
}

// done unregisters c after its connection goroutine has finished cleanup.
func (st *streams) done(c *websocket.Conn) {
	st.mu.Lock()
	delete(st.conns, c)
	st.mu.Unlock()
	st.wg.Done()
}

// closeAll refuses new streams and closes the live ones, which ends their
// read loops.
func (st *streams) closeAll() {
	st.mu.Lock()
	st.closed = true
	conns := make([]*websocket.Conn, 0, len(st.conns))
	for c := range st.conns {
		conns = append(conns, c)
	}
	st.mu.Unlock()

	for _, c := range conns {
		goingAway(c)
		c.Close()
	}
}

func goingAway(c *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

// Shutdown closes every live coaching stream and waits until each has stored
// its finished set, or ctx expires. Call it after http.Server.Shutdown and
// before closing the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.streams.closeAll()

	done := make(chan struct{})
	go func() {
		s.streams.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
