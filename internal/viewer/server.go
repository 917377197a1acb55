// Package viewer streams progress markers to websocket clients and
// advertises the endpoint on the local network.
package viewer

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/mdns"

	"github.com/care/painter/internal/markerbus"
)

// Path is where the websocket endpoint is mounted
const Path = "/markers"

const writeTimeout = 5 * time.Second

// Server upgrades viewer connections and feeds each one the latest marker
type Server struct {
	bus      *markerbus.Bus
	upgrader websocket.Upgrader

	active atomic.Int64
	served atomic.Uint64
}

// NewServer creates a viewer endpoint over bus
func NewServer(bus *markerbus.Bus) *Server {
	return &Server{
		bus: bus,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Viewers returns the number of connected viewers
func (s *Server) Viewers() int {
	return int(s.active.Load())
}

// Served returns the total number of markers written to viewers
func (s *Server) Served() uint64 {
	return s.served.Load()
}

// ServeHTTP handles one viewer for the lifetime of its connection
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("viewer upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := "viewer-" + uuid.NewString()
	logger := slog.With("viewer", id)

	recv, err := s.bus.SubscribeLatest(id)
	if err != nil {
		logger.Error("viewer subscribe failed", "error", err)
		conn.Close()
		return
	}

	s.active.Add(1)
	logger.Info("viewer connected", "remote", r.RemoteAddr, "viewers", s.Viewers())

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			_ = s.bus.Unsubscribe(id)
			conn.Close()
			s.active.Add(-1)
			logger.Info("viewer disconnected", "viewers", s.Viewers())
		})
	}
	defer cleanup()

	// Viewers send nothing; reading detects the close
	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var seq uint64
	for {
		marker, next, ok := recv.Next(seq)
		if !ok {
			return
		}
		seq = next

		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(marker); err != nil {
			logger.Debug("viewer write failed", "error", err)
			return
		}
		s.served.Add(1)
	}
}

// Advertise announces the marker endpoint over mDNS. The caller must
// Shutdown the returned server.
func Advertise(service string, port int) (*mdns.Server, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("could not get hostname: %w", err)
	}

	info := []string{"path=" + Path}

	zone, err := mdns.NewMDNSService(host, service, "", "", port, nil, info)
	if err != nil {
		return nil, fmt.Errorf("failed to create mDNS service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: zone})
	if err != nil {
		return nil, fmt.Errorf("failed to start mDNS server: %w", err)
	}

	slog.Info("marker endpoint advertised", "service", service, "host", host, "port", port)
	return server, nil
}
