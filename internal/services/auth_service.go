package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	authorizer "github.com/localnerve/authorizer-go"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/localnerve/contentdb/internal/utils"
	"github.com/sirupsen/logrus"
)

// ErrInvalidSession is returned when the authorizer rejects a session cookie
var ErrInvalidSession = errors.New("session is not valid")

// SessionUser is the identity resolved from an authorizer session
type SessionUser struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// SessionValidator validates authorizer session cookies. The client is
// created on first use because the redirect url comes from the request.
type SessionValidator struct {
	cfg    *config.Config
	log    *logrus.Logger
	once   sync.Once
	client *authorizer.AuthorizerClient
	err    error
}

// NewSessionValidator creates a validator, or returns nil when no authorizer
// is configured
func NewSessionValidator(cfg *config.Config, log *logrus.Logger) *SessionValidator {
	if cfg.AuthzURL == "" {
		return nil
	}
	return &SessionValidator{cfg: cfg, log: log}
}

func (v *SessionValidator) init(requestProtocol, requestHost string) error {
	v.once.Do(func() {
		if err := utils.PingAuthorizer(v.cfg.AuthzURL); err != nil {
			v.err = fmt.Errorf("authorizer ping failed: %w", err)
			return
		}

		redirectURL := fmt.Sprintf("%s://%s", requestProtocol, requestHost)
		v.log.WithFields(logrus.Fields{
			"authorizerUrl": v.cfg.AuthzURL,
			"clientId":      v.cfg.AuthzClientID,
			"redirectUrl":   redirectURL,
		}).Info("initializing authorizer")

		v.client, v.err = authorizer.NewAuthorizerClient(v.cfg.AuthzClientID, v.cfg.AuthzURL, redirectURL, nil)
		if v.err != nil {
			v.err = fmt.Errorf("failed to create authorizer client: %w", v.err)
		}
	})
	return v.err
}

// Validate checks a session cookie and returns its user
func (v *SessionValidator) Validate(requestProtocol, requestHost, cookie string) (*SessionUser, error) {
	if err := v.init(requestProtocol, requestHost); err != nil {
		return nil, err
	}

	res, err := v.client.ValidateSession(&authorizer.ValidateSessionInput{
		Cookie: cookie,
	})
	if err != nil {
		return nil, fmt.Errorf("session validation failed: %w", err)
	}
	if res == nil || !res.IsValid {
		return nil, ErrInvalidSession
	}
	return sessionUser(res.User)
}

// sessionUser reads the fields we need from the SDK user, whatever its
// concrete shape.
func sessionUser(user interface{}) (*SessionUser, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}

	var fields struct {
		ID    string      `json:"id"`
		Email string      `json:"email"`
		Roles interface{} `json:"roles"`
	}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode session user: %w", err)
	}
	if fields.ID == "" {
		return nil, ErrInvalidSession
	}

	return &SessionUser{ID: fields.ID, Email: fields.Email, Roles: rolesOf(fields.Roles)}, nil
}

// rolesOf accepts a list of roles or a comma separated string
func rolesOf(v interface{}) []string {
	var roles []string
	switch r := v.(type) {
	case []interface{}:
		for _, role := range r {
			if s, ok := role.(string); ok && s != "" {
				roles = append(roles, s)
			}
		}
	case string:
		for _, role := range strings.Split(r, ",") {
			if role = strings.TrimSpace(role); role != "" {
				roles = append(roles, role)
			}
		}
	}
	return roles
}
