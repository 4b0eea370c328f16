package httpserver

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"agenttic-rag/internal/collection"
	"agenttic-rag/internal/discover"
)

// readAndRestoreBody reads the whole request body and puts a fresh reader
// back on the request, so a handler can sniff the shape (client ingest vs.
// discovery callback) before a second, type-specific unmarshal.
func readAndRestoreBody(c echo.Context) ([]byte, error) {
	raw, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return nil, err
	}
	c.Request().Body = io.NopCloser(bytes.NewReader(raw))
	return raw, nil
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(s, 10, 64)
}

// knownSessionIDsFromRequest resolves the session scope a collection/session
// endpoint should search: the fixed non-caller-scoped id plus, when the
// caller sent one, their own X-Session-ID.
func knownSessionIDsFromRequest(c echo.Context) []string {
	return collection.KnownIngestSessionIDs(c.Request().Header.Get("X-Session-ID"))
}

var webhookRelayClient = &http.Client{Timeout: 30 * time.Second}

// relayWebhook forwards an arbitrary caller payload to url as a bare POST,
// independent of the discoverer's own fixed-shape Request body — this is
// the generic webhook relay, not the discovery protocol. When d and
// d.HTTPClient are non-nil that client sends the request; otherwise the
// package-level webhookRelayClient does.
func relayWebhook(ctx context.Context, d *discover.Discoverer, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	client := webhookRelayClient
	if d != nil && d.HTTPClient != nil {
		client = d.HTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}
