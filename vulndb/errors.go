package vulndb

import (
	"fmt"
	"strings"
)

// MalformedPageError means a response body could not be decoded into a
// complete page. The page is rejected as a whole.
type MalformedPageError struct {
	Reason string
	Err    error
}

func (e *MalformedPageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed page: %s: %s", e.Reason, e.Err)
	}
	return "malformed page: " + e.Reason
}

func (e *MalformedPageError) Unwrap() error { return e.Err }

// UnknownCvssEnumValueError means a raw CVSS metric field has a value outside
// the lookup table for that field.
type UnknownCvssEnumValueError struct {
	Version  string
	Field    string
	Value    string
	Accepted []string
}

func (e *UnknownCvssEnumValueError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("CVSS %s %s is absent (accepted: %s)", e.Version, e.Field, strings.Join(e.Accepted, ", "))
	}
	return fmt.Sprintf("unknown CVSS %s %s value %q (accepted: %s)", e.Version, e.Field, e.Value, strings.Join(e.Accepted, ", "))
}

// StatusError is a response with a non-200 status code.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("HTTP error. status code: %d, url: %s, body: %s", e.StatusCode, e.URL, body)
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// PersistError means a page body could not be written to the output directory.
type PersistError struct {
	Path string
	Err  error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("unable to persist %s: %s", e.Path, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
