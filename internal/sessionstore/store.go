// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CourseVoice Contributors

// Package sessionstore provides server-side session storage for the HTTP
// layer. The cookie carries only a signed opaque session id; the session
// values live in a Backend.
package sessionstore

import (
	"context"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
	"github.com/samber/oops"
)

// sessionIDBytes is the entropy of a generated session id.
const sessionIDBytes = 32

// Backend persists encoded session values by id.
type Backend interface {
	// Load returns nil data and nil error when id is unknown or expired.
	Load(ctx context.Context, id string) ([]byte, error)
	Store(ctx context.Context, id string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Store is a gin-contrib sessions.Store over a Backend.
type Store struct {
	backend Backend
	codecs  []securecookie.Codec
	options *gsessions.Options
	logger  *slog.Logger
}

var _ sessions.Store = (*Store)(nil)

// NewStore creates a Store. keyPairs are passed to securecookie: the first
// key of each pair authenticates the cookie, the optional second encrypts it.
// Several pairs allow key rotation.
func NewStore(backend Backend, logger *slog.Logger, keyPairs ...[]byte) (*Store, error) {
	if backend == nil {
		return nil, oops.Code("SESSIONSTORE_INVALID").Errorf("backend is required")
	}
	if logger == nil {
		return nil, oops.Code("SESSIONSTORE_INVALID").Errorf("logger is required")
	}
	if len(keyPairs) == 0 || len(keyPairs[0]) == 0 {
		return nil, oops.Code("SESSIONSTORE_INVALID").Errorf("a signing key is required")
	}

	codecs := securecookie.CodecsFromPairs(keyPairs...)
	return &Store{
		backend: backend,
		codecs:  codecs,
		options: &gsessions.Options{Path: "/", MaxAge: 86400 * 30},
		logger:  logger,
	}, nil
}

// Options sets the default cookie options for new sessions.
func (s *Store) Options(opts sessions.Options) {
	s.options = opts.ToGorillaOptions()
	for _, c := range s.codecs {
		if sc, ok := c.(*securecookie.SecureCookie); ok {
			sc.MaxAge(opts.MaxAge)
		}
	}
}

// Get returns the session for name, cached per request.
func (s *Store) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name) //nolint:wrapcheck // registry calls back into New
}

// New loads the session named by the request cookie, or starts an empty one.
// An unreadable or unknown cookie yields a fresh session and no error so a
// stale cookie never blocks the request.
func (s *Store) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	opts := *s.options
	session.Options = &opts
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}

	var id string
	if err := securecookie.DecodeMulti(name, c.Value, &id, s.codecs...); err != nil {
		s.logger.Debug("session cookie rejected", "error", err)
		return session, nil
	}

	data, err := s.backend.Load(r.Context(), id)
	if err != nil {
		return session, oops.Code("SESSIONSTORE_LOAD_FAILED").
			With("operation", "load session").
			Wrap(err)
	}
	if data == nil {
		return session, nil
	}

	values, err := decodeValues(data)
	if err != nil {
		s.logger.Warn("discarding undecodable session", "error", err)
		return session, nil
	}

	session.ID = id
	session.Values = values
	session.IsNew = false
	return session, nil
}

// Save writes the session to the backend and sets the cookie. A negative
// MaxAge deletes the backend entry and expires the cookie; the next Save of
// the same session starts under a new id.
func (s *Store) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.backend.Delete(r.Context(), session.ID); err != nil {
				return oops.Code("SESSIONSTORE_DELETE_FAILED").
					With("operation", "delete session").
					Wrap(err)
			}
		}
		session.ID = ""
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = newSessionID()
	}

	data, err := encodeValues(session.Values)
	if err != nil {
		return err
	}

	ttl := time.Duration(session.Options.MaxAge) * time.Second
	if err := s.backend.Store(r.Context(), session.ID, data, ttl); err != nil {
		return oops.Code("SESSIONSTORE_SAVE_FAILED").
			With("operation", "store session").
			Wrap(err)
	}

	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return oops.Code("SESSIONSTORE_ENCODE_FAILED").
			With("operation", "sign session cookie").
			Wrap(err)
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

func newSessionID() string {
	return strings.TrimRight(
		base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(sessionIDBytes)), "=")
}

// encodeValues serializes session values as a JSON object. Keys must be
// strings.
func encodeValues(values map[any]any) ([]byte, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		key, ok := k.(string)
		if !ok {
			return nil, oops.Code("SESSIONSTORE_ENCODE_FAILED").
				With("key_type", fmt.Sprintf("%T", k)).
				Errorf("session keys must be strings")
		}
		out[key] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, oops.Code("SESSIONSTORE_ENCODE_FAILED").With("operation", "marshal session").Wrap(err)
	}
	return data, nil
}

func decodeValues(data []byte) (map[any]any, error) {
	var in map[string]any
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, oops.Code("SESSIONSTORE_DECODE_FAILED").Wrap(err)
	}
	values := make(map[any]any, len(in))
	for k, v := range in {
		values[k] = v
	}
	return values, nil
}
