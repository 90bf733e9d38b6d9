// Package web serves the control endpoint. Every path behaves the same:
// GET shows a status page (or streams frames to a websocket), POST bodies
// are read and logged, and anything else is not implemented.
package web

import (
	"html/template"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/coreman2200/stripline/internal/engine"
	"github.com/coreman2200/stripline/internal/ledcolor"
	"github.com/coreman2200/stripline/internal/pixel"
)

// MaxBody caps what a POST may declare in Content-Length.
const MaxBody = 1 << 20

// channelAmps is the WS2812 draw of one channel at full scale.
const channelAmps = 0.020

// Source is what the endpoint reports on. *engine.Looper satisfies it.
type Source interface {
	Latest(dst []byte) ([]byte, uint64)
	Stats() engine.Stats
}

type Server struct {
	src     Source
	pixels  int
	log     zerolog.Logger
	id      uuid.UUID
	started time.Time
	router  chi.Router

	// StreamInterval is how often websocket viewers are offered a new frame.
	StreamInterval time.Duration
	upgrader       websocket.Upgrader

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

func New(src Source, pixels int, log zerolog.Logger) *Server {
	s := &Server{
		src:            src,
		pixels:         pixels,
		id:             uuid.New(),
		started:        time.Now(),
		StreamInterval: 50 * time.Millisecond,
		upgrader:       websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		done:           make(chan struct{}),
	}
	s.log = log.With().Str("instance", s.id.String()).Logger()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)
	r.HandleFunc("/*", s.handle)
	// chi rejects methods it does not know before routing; send them here too.
	r.MethodNotAllowed(s.handle)
	s.router = r
	return s
}

func (s *Server) ID() uuid.UUID { return s.id }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close ends all websocket streams and waits for them to finish.
func (s *Server) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
	s.wg.Wait()
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Stripline-Instance", s.id.String())
	switch r.Method {
	case http.MethodGet:
		if websocket.IsWebSocketUpgrade(r) {
			s.stream(w, r)
			return
		}
		s.status(w, r)
	case http.MethodPost:
		s.accept(w, r)
	default:
		http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
	}
}

var statusPage = template.Must(template.New("status").Parse(`<!DOCTYPE html>
<html>
<head><title>stripline</title></head>
<body>
<h1>stripline</h1>
<p>Pixels: {{.Pixels}}</p>
<table>
<tr><td>renderer</td><td>{{.Stats.Renderer}}</td></tr>
<tr><td>frames</td><td>{{.Stats.Frames}}</td></tr>
<tr><td>dropped</td><td>{{.Stats.Dropped}}</td></tr>
<tr><td>phase</td><td>{{.Stats.Phase}}</td></tr>
<tr><td>first pixel</td><td>{{.First}}</td></tr>
<tr><td>estimated draw</td><td>{{printf "%.2f" .Amps}} A</td></tr>
<tr><td>fps</td><td>{{printf "%.1f" .Stats.AvgFPS}} (target {{.Stats.TargetFPS}}{{if .Stats.Limited}}, limited{{end}})</td></tr>
{{- if .Stats.LastError}}
<tr><td>last error</td><td>{{.Stats.LastError}}</td></tr>
{{- end}}
<tr><td>uptime</td><td>{{.Uptime}}</td></tr>
<tr><td>instance</td><td>{{.ID}}</td></tr>
</table>
</body>
</html>
`))

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	frame, _ := s.src.Latest(nil)
	first := "-"
	if len(frame) >= 3 {
		first = ledcolor.Hex(frame[0], frame[1], frame[2])
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := statusPage.Execute(w, struct {
		Pixels int
		Stats  engine.Stats
		First  string
		Amps   float64
		Uptime time.Duration
		ID     uuid.UUID
	}{s.pixels, s.src.Stats(), first, pixel.EstimateCurrent(frame, channelAmps), time.Since(s.started).Truncate(time.Second), s.id})
	if err != nil {
		s.log.Warn().Err(err).Msg("status page")
	}
}

// accept reads exactly Content-Length bytes and logs them.
func (s *Server) accept(w http.ResponseWriter, r *http.Request) {
	n := r.ContentLength
	switch {
	case n < 0:
		http.Error(w, http.StatusText(http.StatusLengthRequired), http.StatusLengthRequired)
		return
	case n > MaxBody:
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
		return
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		s.log.Warn().Err(err).Int64("length", n).Msg("short control body")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	s.log.Info().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Bytes("body", body).
		Msg("control message")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.wg.Add(1)
	return true
}

// stream sends the latest frame as a binary message whenever its sequence
// number moves, polling every StreamInterval. Frames the sink dropped are
// streamed too.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if !s.track() {
		http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}
	log := s.log.With().Str("remote", r.RemoteAddr).Logger()
	log.Debug().Msg("viewer connected")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-gone
		log.Debug().Msg("viewer gone")
	}()

	tick := time.NewTicker(s.StreamInterval)
	defer tick.Stop()

	var (
		frame []byte
		seen  uint64
		first = true
	)
	for {
		var n uint64
		frame, n = s.src.Latest(frame)
		if first || n != seen {
			conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Debug().Err(err).Msg("write frame")
				return
			}
			first, seen = false, n
		}
		select {
		case <-s.done:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(200*time.Millisecond))
			return
		case <-gone:
			return
		case <-tick.C:
		}
	}
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		h.ServeHTTP(w, r)
	})
}
