// Package idmangle converts between composite identifiers, which are visible
// to callers and unique across all accounts of a principal, and the
// account-local identifiers each backend works with.
//
// Folder ids take the form
//
//	cal://<account>/<escaped local folder id>
//
// where <account> is the canonical decimal account handle. The local part is
// path-escaped, so it never contains a '/' and the handle is never ambiguous
// with characters of the local id. Event ids append the escaped object id and
// an optional recurrence id as further segments.
//
// Decoding only checks syntax. Whether the handle denotes an existing account
// is decided by the composition layer.
package idmangle

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/hupe1980/calmesh/core"
)

const (
	folderScheme   = "cal://"
	attendeeScheme = "fb://"
	noAccount      = "-"
)

// EncodeFolder returns the composite folder id for a local folder id.
func EncodeFolder(account core.AccountID, localFolderID string) string {
	return folderScheme + strconv.Itoa(int(account)) + "/" + url.PathEscape(localFolderID)
}

// DecodeFolder splits a composite folder id into account handle and local
// folder id.
func DecodeFolder(folderID string) (core.AccountID, string, error) {
	segments, err := split(folderID, folderScheme, 2, 2)
	if err != nil {
		return 0, "", err
	}
	account, err := parseAccount(folderID, segments[0])
	if err != nil {
		return 0, "", err
	}
	local, err := unescape(folderID, segments[1])
	if err != nil {
		return 0, "", err
	}
	return account, local, nil
}

// AccountOf returns the account handle of a composite folder id.
func AccountOf(folderID string) (core.AccountID, error) {
	account, _, err := DecodeFolder(folderID)
	return account, err
}

// EncodeEvent converts an account-local event id into its composite form by
// encoding its folder id. Object and recurrence ids are account-local by
// nature and stay untouched.
func EncodeEvent(account core.AccountID, local core.EventID) core.EventID {
	return core.EventID{
		FolderID:     EncodeFolder(account, local.FolderID),
		ObjectID:     local.ObjectID,
		RecurrenceID: local.RecurrenceID,
	}
}

// DecodeEvent returns the account handle and the account-local form of a
// composite event id.
func DecodeEvent(id core.EventID) (core.AccountID, core.EventID, error) {
	if id.ObjectID == "" {
		return 0, core.EventID{}, malformed(id.String(), "missing object id")
	}
	account, folder, err := DecodeFolder(id.FolderID)
	if err != nil {
		return 0, core.EventID{}, err
	}
	return account, core.EventID{FolderID: folder, ObjectID: id.ObjectID, RecurrenceID: id.RecurrenceID}, nil
}

// FormatEventID renders a composite event id as a single opaque string.
func FormatEventID(id core.EventID) (string, error) {
	account, local, err := DecodeEvent(id)
	if err != nil {
		return "", err
	}
	s := EncodeFolder(account, local.FolderID) + "/" + url.PathEscape(local.ObjectID)
	if local.RecurrenceID != "" {
		s += "/" + url.PathEscape(local.RecurrenceID)
	}
	return s, nil
}

// ParseEventID parses the string form produced by FormatEventID.
func ParseEventID(s string) (core.EventID, error) {
	segments, err := split(s, folderScheme, 3, 4)
	if err != nil {
		return core.EventID{}, err
	}
	account, err := parseAccount(s, segments[0])
	if err != nil {
		return core.EventID{}, err
	}
	parts := make([]string, len(segments)-1)
	for i, seg := range segments[1:] {
		if parts[i], err = unescape(s, seg); err != nil {
			return core.EventID{}, err
		}
	}
	id := core.EventID{FolderID: EncodeFolder(account, parts[0]), ObjectID: parts[1]}
	if len(parts) == 3 {
		if parts[2] == "" {
			return core.EventID{}, malformed(s, "empty recurrence id")
		}
		id.RecurrenceID = parts[2]
	}
	return id, nil
}

// EncodeAttendeeKey returns the key attributing a free/busy result of an
// attendee to the account that produced it. core.NoAccount is allowed.
func EncodeAttendeeKey(account core.AccountID, attendeeURI string) string {
	handle := noAccount
	if account != core.NoAccount {
		handle = strconv.Itoa(int(account))
	}
	return attendeeScheme + handle + "/" + url.PathEscape(attendeeURI)
}

// DecodeAttendeeKey reverses EncodeAttendeeKey.
func DecodeAttendeeKey(key string) (core.AccountID, string, error) {
	segments, err := split(key, attendeeScheme, 2, 2)
	if err != nil {
		return 0, "", err
	}
	account := core.NoAccount
	if segments[0] != noAccount {
		if account, err = parseAccount(key, segments[0]); err != nil {
			return 0, "", err
		}
	}
	uri, err := unescape(key, segments[1])
	if err != nil {
		return 0, "", err
	}
	return account, uri, nil
}

func split(id, scheme string, minSegments, maxSegments int) ([]string, error) {
	rest, ok := strings.CutPrefix(id, scheme)
	if !ok {
		return nil, malformed(id, "missing "+scheme+" prefix")
	}
	segments := strings.Split(rest, "/")
	if len(segments) < minSegments || len(segments) > maxSegments {
		return nil, malformed(id, "unexpected number of segments")
	}
	for _, seg := range segments[:minSegments] {
		if seg == "" {
			return nil, malformed(id, "empty segment")
		}
	}
	return segments, nil
}

func parseAccount(id, segment string) (core.AccountID, error) {
	// canonical form only, so that every handle has exactly one spelling
	if len(segment) > 1 && segment[0] == '0' {
		return 0, malformed(id, "non-canonical account handle")
	}
	n, err := strconv.Atoi(segment)
	if err != nil || n < 0 || strconv.Itoa(n) != segment {
		return 0, malformed(id, "invalid account handle")
	}
	return core.AccountID(n), nil
}

func unescape(id, segment string) (string, error) {
	s, err := url.PathUnescape(segment)
	if err != nil {
		return "", malformed(id, "invalid escape sequence")
	}
	// one spelling per id, so composite ids can be compared as strings
	if url.PathEscape(s) != segment {
		return "", malformed(id, "non-canonical escaping")
	}
	return s, nil
}

func malformed(id, reason string) error {
	return core.NewError(core.ErrMalformedIdentifier, "malformed identifier %q: %s", id, reason)
}
