package livy

import (
	"encoding/base64"
	"fmt"
	"hash/fnv"
	"maps"
	"net/url"
	"strings"
)

// AuthType identifies how requests to a gateway are authenticated.
type AuthType string

const (
	AuthNone  AuthType = "None"
	AuthBasic AuthType = "Basic"
)

// Endpoint identifies a gateway base URL plus the credentials and headers used to talk to it.
//
// Endpoint is immutable after construction. Two endpoints with the same URL, auth type and
// credentials are interchangeable, regardless of their custom headers.
type Endpoint struct {
	url           string
	auth          AuthType
	username      string
	password      string
	customHeaders map[string]string
}

// NewEndpoint validates the given URL and credentials and returns a new Endpoint.
//
// If auth is empty, it is inferred from the credentials: Basic if either a username or password
// is given, otherwise None.
func NewEndpoint(rawUrl string, auth AuthType, username string, password string, customHeaders map[string]string) (*Endpoint, error) {
	rawUrl = strings.TrimRight(strings.TrimSpace(rawUrl), "/")
	if rawUrl == "" {
		return nil, NewBadConfigurationError("endpoint URL must not be empty")
	}

	parsed, err := url.Parse(rawUrl)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, NewBadConfigurationError(fmt.Sprintf("invalid endpoint URL \"%s\"", rawUrl))
	}

	if auth == "" {
		if username == "" && password == "" {
			auth = AuthNone
		} else {
			auth = AuthBasic
		}
	}

	if auth != AuthNone && auth != AuthBasic {
		return nil, NewBadConfigurationError(fmt.Sprintf("unsupported auth type \"%s\"", auth))
	}

	if auth == AuthBasic && username == "" {
		return nil, NewBadConfigurationError("basic auth requires a username")
	}

	headers := make(map[string]string, len(customHeaders))
	maps.Copy(headers, customHeaders)

	return &Endpoint{
		url:           rawUrl,
		auth:          auth,
		username:      username,
		password:      password,
		customHeaders: headers,
	}, nil
}

// URL returns the base URL of the gateway, without a trailing slash.
func (e *Endpoint) URL() string {
	return e.url
}

func (e *Endpoint) Auth() AuthType {
	return e.auth
}

func (e *Endpoint) Username() string {
	return e.username
}

// CustomHeaders returns a copy of the endpoint's custom headers.
func (e *Endpoint) CustomHeaders() map[string]string {
	headers := make(map[string]string, len(e.customHeaders))
	maps.Copy(headers, e.customHeaders)
	return headers
}

// AuthorizationHeader returns the value of the "Authorization" header for this endpoint,
// or the empty string if the endpoint is unauthenticated.
func (e *Endpoint) AuthorizationHeader() string {
	if e.auth != AuthBasic {
		return ""
	}

	token := base64.StdEncoding.EncodeToString([]byte(e.username + ":" + e.password))
	return "Basic " + token
}

// Equal returns true if both endpoints refer to the same gateway with the same credentials.
func (e *Endpoint) Equal(other *Endpoint) bool {
	if e == nil || other == nil {
		return e == other
	}

	return e.url == other.url && e.auth == other.auth && e.username == other.username && e.password == other.password
}

// Key returns a string that is identical for any two endpoints that are Equal.
//
// The password is hashed so that the key can be logged and used as a map key safely.
func (e *Endpoint) Key() string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.password))
	return fmt.Sprintf("%s|%s|%s|%x", e.url, e.auth, e.username, h.Sum64())
}

func (e *Endpoint) String() string {
	if e.auth == AuthNone {
		return e.url
	}

	return fmt.Sprintf("%s (%s auth as \"%s\")", e.url, e.auth, e.username)
}
