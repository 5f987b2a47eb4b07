package twiliotest

import (
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
)

// Server is a fake Twilio Calls API. Every request is recorded and
// answered with the configured status and body.
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
	Path      string
	Username  string
	Password  string
	UserAgent string
	PostData  PostData
}

type PostData struct {
	To                   string
	From                 string
	Twiml                string
	StatusCallback       string
	StatusCallbackEvent  string
	StatusCallbackMethod string
}

func NewPostData(v url.Values) PostData {
	return PostData{
		To:                   v.Get("To"),
		From:                 v.Get("From"),
		Twiml:                v.Get("Twiml"),
		StatusCallback:       v.Get("StatusCallback"),
		StatusCallbackEvent:  v.Get("StatusCallbackEvent"),
		StatusCallbackMethod: v.Get("StatusCallbackMethod"),
	}
}

func NewServer(status int, body string) *Server {
	s := &Server{status: status, body: body}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := ioutil.ReadAll(r.Body)
		v, _ := url.ParseQuery(string(data))
		user, pass, _ := r.BasicAuth()

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Path:      r.URL.Path,
			Username:  user,
			Password:  pass,
			UserAgent: r.UserAgent(),
			PostData:  NewPostData(v),
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
