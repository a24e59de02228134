// Package gituri normalizes and compares git remote URIs so that the
// different spellings of the same remote (SSH scp-like, ssh://, http://,
// https://, with or without credentials or a .git suffix) compare equal.
package gituri

import (
	"errors"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/transport"
)

// ErrEmptyURI is returned by Parse for blank input.
var ErrEmptyURI = errors.New("empty remote URI")

// URI is the normalized identity of a git remote. Two URIs with equal
// Host, Port, and Path denote the same repository regardless of the
// transport they were written with.
type URI struct {
	Host string // lowercased hostname, credentials stripped
	Port int    // 0 when absent or the protocol default
	Path string // repository path without surrounding slashes or .git suffix
	raw  string
}

// defaultPorts maps transport protocols to the port that is implied when
// none is written. A remote on the default port and one with no port at
// all are the same remote.
var defaultPorts = map[string]int{
	"ssh":   22,
	"git":   9418,
	"http":  80,
	"https": 443,
	"ftp":   21,
	"ftps":  990,
}

// Parse parses a remote URI in any form git accepts (URL-style or
// scp-like) into its normalized identity.
func Parse(raw string) (URI, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return URI{}, ErrEmptyURI
	}
	ep, err := transport.NewEndpoint(trimmed)
	if err != nil {
		return URI{}, err
	}

	port := ep.Port
	if def, ok := defaultPorts[ep.Protocol]; ok && port == def {
		port = 0
	}
	if port < 0 {
		port = 0
	}

	return URI{
		Host: strings.ToLower(ep.Host),
		Port: port,
		Path: normalizePath(ep.Path),
		raw:  raw,
	}, nil
}

// String returns the original remote spelling, useful for logs and messages.
func (u URI) String() string {
	return u.raw
}

// Same reports whether two parsed URIs denote the same remote repository.
// Scheme and credentials never participate: a push reported over HTTPS must
// match a job configured with the SSH form of the same remote.
func Same(a, b URI) bool {
	return a.Host == b.Host && a.Port == b.Port && a.Path == b.Path
}

// SameRepository reports whether two raw remote strings denote the same
// repository. Malformed input is a non-match, never an error.
func SameRepository(a, b string) bool {
	ua, err := Parse(a)
	if err != nil {
		return false
	}
	ub, err := Parse(b)
	if err != nil {
		return false
	}
	return Same(ua, ub)
}

func normalizePath(p string) string {
	p = strings.Trim(p, "/")
	p = strings.TrimSuffix(p, ".git")
	return strings.TrimSuffix(p, "/")
}
