// Package collection implements C13, the collection grouper: deriving a
// stable collection identity from a Source's parent URL, and the
// auto-ingest session-id bookkeeping that groups recursively-discovered
// documents together.
package collection

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// FixedIngestSessionID is the session identifier the agenttic-ingest
// endpoint assigns to non-caller-scoped documents. A second, historical id
// is kept alongside it so older data stays groupable: the ids stay
// distinct on write (new ingests always use the current id) and are
// unified on read (grouping/collection lookups union both).
const FixedIngestSessionID = "fixed_session_id_for_agenttic_ingest"

// legacyIngestSessionID is retained only so pre-existing data ingested
// under the old endpoint name is still found by /collections.
const legacyIngestSessionID = "fixed_session_id_for_auto_ingest"

// KnownIngestSessionIDs returns the full set of session ids that should be
// treated as "the same auto-ingest namespace" for grouping purposes, with
// extra (a caller-supplied session id, if any) placed first.
func KnownIngestSessionIDs(extra string) []string {
	ids := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}
	add(extra)
	add(FixedIngestSessionID)
	add(legacyIngestSessionID)
	return ids
}

// siteRule collapses a known documentation hub to a fixed aggregation path
// instead of the generic two-segment rule. Declared as data, not code, since
// each rule fires only on its host and only when the named
// segment is present, and returns the collapsed path outright.
type siteRule struct {
	hostSuffix string
	collapse func(segments []string) (string, bool)
}

var siteRules = []siteRule{
	// lmstudio.ai/docs/*: collapse to the two-segment "docs/<lang>" path.
	{
		hostSuffix: "lmstudio.ai",
		collapse: func(segments []string) (string, bool) {
			if len(segments) >= 2 && segments[0] == "docs" {
				return strings.Join(segments[:2], "/"), true
			}
			return "", false
		},
	},
	// python.langchain.com/api_reference/*: collapse to one shared hub.
	{
		hostSuffix: "python.langchain.com",
		collapse: func(segments []string) (string, bool) {
			if containsSegment(segments, "api_reference") {
				return "api_reference", true
			}
			return "", false
		},
	},
}

// ParentURL computes the stable parent-URL identity a Source's collection
// is derived from. Same-host, site-specific shortcuts are
// tried first (leaves first); the general rule keeps the first two
// non-empty path segments, falling back to the full normalized path when
// fewer than two segments exist.
func ParentURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	trimmedPath := strings.TrimRight(u.Path, "/")
	segments := splitSegments(trimmedPath)

	for _, rule := range siteRules {
		if !strings.HasSuffix(u.Host, rule.hostSuffix) {
			continue
		}
		if collapsed, ok := rule.collapse(segments); ok {
			return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, collapsed)
		}
	}

	if len(segments) >= 2 {
		return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, strings.Join(segments[:2], "/"))
	}
	return fmt.Sprintf("%s://%s%s", u.Scheme, u.Host, trimmedPath)
}

func splitSegments(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsSegment(segments []string, seg string) bool {
	for _, s := range segments {
		if s == seg {
			return true
		}
	}
	return false
}

func indexOf(segments []string, seg string) int {
	for i, s := range segments {
		if s == seg {
			return i
		}
	}
	return -1
}

// ID derives the stable collection_<hex8(md5(parent_url))> identifier used
// across the system whenever "the collection of a URL" is computed.
func ID(rawURL string) string {
	parent := ParentURL(rawURL)
	sum := md5.Sum([]byte(parent))
	return "collection_" + hex.EncodeToString(sum[:])[:8]
}
