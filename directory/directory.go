// Package directory looks up on-call contacts for a resource in the
// contact sheet web app.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/yuichiro-h/cwl-alarm-caller/phone"
)

const queryParam = "server_name"

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

type responseKind int

const (
	kindMalformed responseKind = iota
	kindObject
	kindArray
	kindScalar
	kindError
)

func (k responseKind) String() string {
	switch k {
	case kindObject:
		return "object"
	case kindArray:
		return "array"
	case kindScalar:
		return "scalar"
	case kindError:
		return "error"
	default:
		return "malformed"
	}
}

// response is a decoded directory reply resolved to one of its shapes.
type response struct {
	kind    responseKind
	records []interface{}
	value   interface{}
}

func decodeResponse(data []byte) response {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return response{kind: kindMalformed}
	}
	if _, err := dec.Token(); err != io.EOF {
		return response{kind: kindMalformed}
	}

	switch t := v.(type) {
	case map[string]interface{}:
		if e, ok := t["error"]; ok {
			return response{kind: kindError, value: e}
		}
		return response{kind: kindObject, records: []interface{}{t}}
	case []interface{}:
		return response{kind: kindArray, records: t}
	case string, json.Number, bool:
		return response{kind: kindScalar, value: t}
	default:
		return response{kind: kindMalformed, value: t}
	}
}

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
}

// Client queries the contact directory. Lookups never fail: every
// problem is logged and yields no contacts.
type Client struct {
	config     Config
	httpClient *http.Client
	normalizer *phone.Normalizer
	logger     *zap.Logger
}

func NewClient(c Config, normalizer *phone.Normalizer, logger *zap.Logger) *Client {
	return &Client{
		config:     c,
		httpClient: &http.Client{Timeout: c.Timeout},
		normalizer: normalizer,
		logger:     logger,
	}
}

// Lookup returns the contacts configured for resource in directory order.
func (c *Client) Lookup(ctx context.Context, resource string) []Contact {
	logger := c.logger.With(zap.String("resource", resource))

	data, err := c.fetch(ctx, resource)
	if err != nil {
		logger.Error("failed to fetch contacts", zap.Error(err))
		return nil
	}
	logger.Debug("directory response", zap.ByteString("body", data))

	resp := decodeResponse(data)
	switch resp.kind {
	case kindObject, kindArray:
	case kindError:
		logger.Error("directory returned error", zap.Any("error", resp.value))
		return nil
	case kindScalar:
		logger.Warn("directory returned scalar", zap.Any("value", resp.value))
		return nil
	default:
		logger.Error("malformed directory response", zap.String("body", truncate(data)))
		return nil
	}

	contacts := c.contacts(resource, resp.records, logger)
	logger.Info("found contacts", zap.Int("count", len(contacts)))
	return contacts
}

func (c *Client) contacts(resource string, candidates []interface{}, logger *zap.Logger) []Contact {
	var contacts []Contact
	want := strings.ToLower(strings.TrimSpace(resource))

	for i, candidate := range candidates {
		m, ok := candidate.(map[string]interface{})
		if !ok {
			logger.Warn("skipping non-object record", zap.Int("index", i), zap.Any("record", candidate))
			continue
		}

		r := newRecord(m)
		if r.ServerName == "" || strings.ToLower(r.ServerName) != want {
			continue
		}

		contact, ok := c.contact(resource, r, logger)
		if !ok {
			continue
		}
		contacts = append(contacts, contact)
		logger.Info("added contact", zap.String("primary", contact.PrimaryName))
	}

	return contacts
}

func (c *Client) contact(resource string, r record, logger *zap.Logger) (Contact, bool) {
	escalation, ok := escalationMinutes(r.Escalation)
	if !ok {
		logger.Warn("invalid escalation time, using default",
			zap.Any("value", r.Escalation),
			zap.Int("default", DefaultEscalationMinutes))
	}

	contact := Contact{
		Resource:          resource,
		Team:              r.Team,
		PrimaryName:       r.PrimaryContact,
		EscalationMinutes: escalation,
	}
	if contact.Team == "" {
		contact.Team = DefaultTeam
	}
	if p, ok := c.normalizer.Normalize(r.PrimaryPhone); ok {
		contact.PrimaryPhone = p
	}
	if p, ok := c.normalizer.Normalize(r.SecondaryPhone); ok {
		contact.SecondaryName = r.SecondaryContact
		contact.SecondaryPhone = p
	}

	if contact.PrimaryName == "" || contact.PrimaryPhone == "" {
		logger.Warn("skipping incomplete contact record",
			zap.String("primary", contact.PrimaryName),
			zap.Bool("has_phone", contact.PrimaryPhone != ""))
		return Contact{}, false
	}
	return contact, true
}

func (c *Client) fetch(ctx context.Context, resource string) ([]byte, error) {
	u, err := url.Parse(c.config.URL)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	q := u.Query()
	q.Set(queryParam, resource)
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req = req.WithContext(ctx)
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected status %s", resp.Status)
	}

	data, err := ioutil.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return data, nil
}

func truncate(data []byte) string {
	const max = 512
	if len(data) > max {
		return string(data[:max])
	}
	return string(data)
}
