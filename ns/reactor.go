package ns

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Reactor defaults, overridable through ReactorOptions.
const (
	defaultTTL         = 10 * time.Minute
	defaultPollTimeout = 50 * time.Millisecond
	defaultMaxConns    = 1024
	writeTimeout       = 100 * time.Millisecond
)

// ErrStopped is returned by Inject once the reactor has shut down.
var ErrStopped = errors.New("ns: reactor stopped")

// ReactorOptions bounds the reactor's resource usage and timing.
type ReactorOptions struct {
	// TTL is the idle timeout; sessions silent that long are evicted.
	TTL time.Duration
	// PollTimeout caps how long a cycle waits for readiness, so the
	// keepalive pass runs even with no traffic.
	PollTimeout time.Duration
	// MaxConnections is the connected-session ceiling.
	MaxConnections int
}

func (o *ReactorOptions) fill() {
	if o.TTL <= 0 {
		o.TTL = defaultTTL
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaultPollTimeout
	}
	if o.MaxConnections <= 0 {
		o.MaxConnections = defaultMaxConns
	}
}

// readEvent carries bytes (or a terminal error) from a connection's
// reader goroutine to the loop.
type readEvent struct {
	fd   int64
	data []byte
	err  error
}

// Reactor is the server event loop. One goroutine (the loop) owns every
// session, the follower registry and dispatch; per-connection reader
// goroutines only shovel bytes into the events channel, and the
// listener goroutine only hands accepted connections over. No session
// state is touched outside the loop.
type Reactor struct {
	ln   net.Listener
	reg  *Registry
	env  *Env
	opts ReactorOptions

	conns  chan net.Conn
	reads  chan readEvent
	stop   chan struct{}
	done   chan struct{}
	once   sync.Once
	nextFD int64

	readers sync.WaitGroup
}

// NewReactor wires a reactor around an accepted listener. Run must be
// called to start serving; Stop shuts it down.
func NewReactor(ln net.Listener, reg *Registry, env *Env, opts ReactorOptions) *Reactor {
	opts.fill()
	return &Reactor{
		ln:    ln,
		reg:   reg,
		env:   env,
		opts:  opts,
		conns: make(chan net.Conn, 16),
		reads: make(chan readEvent, 256),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Inject hands the reactor an established connection that did not come
// through the listener, such as a websocket bridge. The connection
// goes through the same admission path as an accepted socket.
func (r *Reactor) Inject(conn net.Conn) error {
	select {
	case r.conns <- conn:
		return nil
	case <-r.stop:
		conn.Close()
		return ErrStopped
	}
}

// Run serves until Stop is called. It blocks; callers typically run it
// on its own goroutine.
func (r *Reactor) Run() {
	defer close(r.done)

	go r.acceptLoop()
	r.env.Log.Info("server listening",
		"addr", r.ln.Addr().String(),
		"ttl", r.opts.TTL,
		"max_connections", r.opts.MaxConnections)

	for {
		if !r.cycle() {
			break
		}
	}

	r.shutdown()
}

// Stop terminates the loop, closes every connection and waits for all
// goroutines to exit. Safe to call more than once.
func (r *Reactor) Stop() {
	r.once.Do(func() {
		close(r.stop)
		r.ln.Close()
	})
	<-r.done
}

func (r *Reactor) acceptLoop() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			select {
			case <-r.stop:
			default:
				r.env.Log.Error("accept failed", "error", err)
			}
			return
		}
		select {
		case r.conns <- conn:
		case <-r.stop:
			conn.Close()
			return
		}
	}
}

// cycle runs one readiness pass: wait, drain, write, finalize, evict.
// It returns false once the reactor is stopping.
func (r *Reactor) cycle() bool {
	timeout := time.NewTimer(r.opts.PollTimeout)
	select {
	case <-r.stop:
		timeout.Stop()
		return false
	case conn := <-r.conns:
		r.admit(conn)
	case ev := <-r.reads:
		r.applyRead(ev)
	case <-timeout.C:
	}
	timeout.Stop()

	for drained := false; !drained; {
		select {
		case conn := <-r.conns:
			r.admit(conn)
		case ev := <-r.reads:
			r.applyRead(ev)
		default:
			drained = true
		}
	}

	now := r.env.now()
	r.writePass(now)
	r.finalizePass(now)
	r.evictPass()
	return true
}

func (r *Reactor) admit(conn net.Conn) {
	now := r.env.now()
	fd := r.nextFD
	r.nextFD++
	s := NewSession(conn, fd, now)

	if r.env.Sessions.Len() >= r.opts.MaxConnections {
		r.env.Log.Warn("connection limit reached, rejecting",
			"remote", s.Addr, "limit", r.opts.MaxConnections)
		s.MarkDisconnect(ReasonTooManyClients)
		r.env.Sessions.Add(s)
		if r.env.Sink != nil {
			r.env.Sink.OnSessionOpened()
		}
		return
	}

	r.env.Sessions.Add(s)
	if r.env.Sink != nil {
		r.env.Sink.OnSessionOpened()
	}
	s.Send(fmt.Sprintf("salut %d %s %s %d %d\n", s.FD, s.Hash, s.IP, s.Port, now.Unix()))
	s.writable = true
	r.startReader(s)
	r.env.Log.Info("client connected", "client", s.label(), "fd", s.FD)
}

func (r *Reactor) startReader(s *Session) {
	fd, conn := s.FD, s.conn
	r.readers.Add(1)
	go func() {
		defer r.readers.Done()
		buf := make([]byte, ChunkSize)
		for {
			n, err := conn.Read(buf)
			var data []byte
			if n > 0 {
				data = append([]byte(nil), buf[:n]...)
			}
			select {
			case r.reads <- readEvent{fd: fd, data: data, err: err}:
			case <-r.stop:
				return
			}
			if err != nil {
				return
			}
		}
	}()
}

func (r *Reactor) applyRead(ev readEvent) {
	s := r.env.Sessions.ByFD(ev.fd)
	if s == nil {
		return
	}
	if len(ev.data) > 0 {
		s.Framer.Push(ev.data)
		s.lastActivity = r.env.now()
	}
	if ev.err != nil {
		s.MarkDisconnect(ReasonClientGoneAway)
	}
}

// writePass sends at most one queued fragment per writable session. A
// short or timed-out write keeps the unsent remainder at the head of
// the queue for the next cycle.
func (r *Reactor) writePass(now time.Time) {
	r.env.Sessions.ForEach(func(s *Session) {
		if !s.writable {
			return
		}
		frag, ok := s.Framer.PopOutput()
		if !ok {
			s.writable = false
			return
		}
		s.conn.SetWriteDeadline(now.Add(writeTimeout))
		n, err := s.conn.Write([]byte(frag))
		if n < len(frag) {
			s.Framer.RequeueHead(frag[n:])
		}
		if err != nil {
			var ne net.Error
			if !(errors.As(err, &ne) && ne.Timeout()) {
				s.MarkDisconnect(ReasonClientGoneAway)
			}
		}
		if s.Framer.OutputEmpty() {
			s.writable = false
		}
	})
}

// finalizePass dispatches one complete line per session, applies the
// keepalive policy, then flags every session holding output as
// writable so the fan-out from dispatch reaches the wire.
func (r *Reactor) finalizePass(now time.Time) {
	r.env.Sessions.ForEach(func(s *Session) {
		if !r.env.Sessions.Contains(s) {
			return
		}
		if payload, ok := s.Framer.PullLine(); ok {
			r.reg.Dispatch(payload, s, r.env)
		}
	})
	r.env.Sessions.ForEach(func(s *Session) {
		if s.DisconnectReason() == ReasonNone {
			r.keepalive(s, now)
		}
		if !s.Framer.OutputEmpty() {
			s.writable = true
		}
	})
}

func (r *Reactor) keepalive(s *Session, now time.Time) {
	if s.lastActivity.IsZero() {
		r.env.Log.Warn("session missing activity record", "client", s.label())
		s.MarkDisconnect(ReasonNoActivity)
		return
	}
	idle := now.Sub(s.lastActivity)
	if idle >= r.opts.TTL {
		r.env.Log.Info("idle timeout", "client", s.label(), "idle", idle)
		s.MarkDisconnect(ReasonNoActivity)
		return
	}
	if idle >= r.opts.TTL*3/4 && !now.Before(s.nextPing) {
		deadline := s.lastActivity.Add(r.opts.TTL).Unix()
		s.Send(fmt.Sprintf("ping %d\n", deadline))
		s.writable = true
		s.nextPing = now.Add(r.opts.TTL * 4 / 5)
	}
}

// evictPass closes marked sessions. Sessions whose reason allows a
// goodbye line wait until their output queue drains; dead or rejected
// connections go immediately.
func (r *Reactor) evictPass() {
	var doomed []*Session
	r.env.Sessions.ForEach(func(s *Session) {
		switch s.DisconnectReason() {
		case ReasonNone:
		case ReasonClientGoneAway, ReasonNoActivity, ReasonTooManyClients:
			doomed = append(doomed, s)
		default:
			if s.Framer.OutputEmpty() {
				doomed = append(doomed, s)
			}
		}
	})
	for _, s := range doomed {
		r.evict(s)
	}
}

// evict finalizes one session: the offline transition is relayed to
// subscribers, the session leaves every registry, and the socket
// closes. Idempotent.
func (r *Reactor) evict(s *Session) {
	if !r.env.Sessions.Contains(s) {
		return
	}
	if s.Stage() == StageAuthenticated {
		RelayStateEvent("logout", "offline", s, r.env)
	}
	r.env.Followers.RemoveSubscriber(s)
	r.env.Sessions.Remove(s)
	s.conn.Close()
	if r.env.Sink != nil {
		r.env.Sink.OnSessionClosed(s.DisconnectReason())
	}
	r.env.Log.Info("client disconnected",
		"client", s.label(), "reason", s.DisconnectReason().String())
}

func (r *Reactor) shutdown() {
	r.env.Sessions.ForEach(func(s *Session) {
		s.MarkDisconnect(ReasonApplicationRequested)
		s.conn.Close()
		r.env.Sessions.Remove(s)
		if r.env.Sink != nil {
			r.env.Sink.OnSessionClosed(s.DisconnectReason())
		}
	})
	r.readers.Wait()

	for {
		select {
		case conn := <-r.conns:
			conn.Close()
		case <-r.reads:
		default:
			return
		}
	}
}
