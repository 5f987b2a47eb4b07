package directorytest

import (
	"net/http"
	"net/http/httptest"
	"sync"
)

// Server is a fake contact directory that replies with a fixed body.
type Server struct {
	mu       sync.Mutex
	ts       *httptest.Server
	URL      string
	status   int
	body     string
	requests []Request
	closed   bool
}

type Request struct {
	ServerName string
	UserAgent  string
	Method     string
}

func NewServer(status int, body string) *Server {
	s := &Server{status: status, body: body}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			ServerName: r.URL.Query().Get("server_name"),
			UserAgent:  r.UserAgent(),
			Method:     r.Method,
		})
		status, body := s.status, s.body
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	s.ts = ts
	s.URL = ts.URL
	return s
}

// SetResponse changes the reply for later requests.
func (s *Server) SetResponse(status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.body = body
}

func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Server) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.ts.Close()
}
