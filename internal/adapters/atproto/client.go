package atproto

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"shelfsync/internal/core/domain/models"
	"shelfsync/internal/core/domain/ports"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

// Ensure Client implements the identity, session and record ports
var (
	_ ports.IdentityResolver = (*Client)(nil)
	_ ports.SessionProvider  = (*Client)(nil)
	_ ports.RecordStore      = (*Client)(nil)
)

const (
	pdsServiceType = "AtprotoPersonalDataServer"
	listPageSize   = 100
)

type Client struct {
	httpClient  *http.Client
	identityURL string
	plcURL      string
	// didWebScheme is overridable so did:web documents can be served by a test server.
	didWebScheme string
}

func NewClient(httpClient *http.Client, identityURL, plcURL string) *Client {
	return &Client{
		httpClient:   httpClient,
		identityURL:  strings.TrimRight(identityURL, "/"),
		plcURL:       strings.TrimRight(plcURL, "/"),
		didWebScheme: "https",
	}
}

// ResolveHandle returns the DID for handle. DIDs pass through unchanged and
// a leading @ is ignored.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return "", errors.New("empty handle")
	}

	var out struct {
		DID string `json:"did"`
	}
	u := fmt.Sprintf("%s/xrpc/com.atproto.identity.resolveHandle?handle=%s", c.identityURL, url.QueryEscape(handle))
	if err := c.getJSON(ctx, u, &out); err != nil {
		return "", err
	}
	if out.DID == "" {
		return "", fmt.Errorf("no DID returned for %s", handle)
	}
	return out.DID, nil
}

type didDocument struct {
	Service []struct {
		ID              string `json:"id"`
		Type            string `json:"type"`
		ServiceEndpoint string `json:"serviceEndpoint"`
	} `json:"service"`
}

// ResolveServiceEndpoint reads the PDS endpoint from the DID document.
func (c *Client) ResolveServiceEndpoint(ctx context.Context, did string) (string, error) {
	var u string
	if host, ok := strings.CutPrefix(did, "did:web:"); ok {
		// Ports are percent-encoded in did:web identifiers.
		if unescaped, err := url.PathUnescape(host); err == nil {
			host = unescaped
		}
		u = fmt.Sprintf("%s://%s/.well-known/did.json", c.didWebScheme, host)
	} else {
		u = fmt.Sprintf("%s/%s", c.plcURL, did)
	}

	var doc didDocument
	if err := c.getJSON(ctx, u, &doc); err != nil {
		return "", err
	}
	for _, svc := range doc.Service {
		if svc.Type == pdsServiceType && svc.ServiceEndpoint != "" {
			return svc.ServiceEndpoint, nil
		}
	}
	return "", fmt.Errorf("DID document for %s has no %s service", did, pdsServiceType)
}

// CreateSession logs in with an app password.
func (c *Client) CreateSession(ctx context.Context, endpoint, identifier, password string) (*models.Session, error) {
	payload := map[string]string{"identifier": identifier, "password": password}

	var session models.Session
	u := endpoint + "/xrpc/com.atproto.server.createSession"
	if err := c.postJSON(ctx, u, "", payload, &session); err != nil {
		return nil, err
	}
	if session.AccessJwt == "" {
		return nil, errors.New("session response has no access token")
	}

	// The token is only inspected, never trusted: the PDS verifies it.
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(session.AccessJwt, &claims); err != nil {
		log.Debug().Err(err).Msg("access token is not a readable JWT")
	} else if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
		log.Debug().Time("expires_at", session.ExpiresAt).Msg("session created")
	}
	return &session, nil
}

type listRecordsResponse struct {
	Cursor  string          `json:"cursor"`
	Records []models.Record `json:"records"`
}

// ListRecords returns every record in the collection, following the cursor
// until the store stops returning one.
func (c *Client) ListRecords(ctx context.Context, endpoint, did, collection string) ([]models.Record, error) {
	params := url.Values{}
	params.Set("repo", did)
	params.Set("collection", collection)
	params.Set("limit", fmt.Sprint(listPageSize))

	var all []models.Record
	seenCursors := make(map[string]bool)
	for {
		var page listRecordsResponse
		u := endpoint + "/xrpc/com.atproto.repo.listRecords?" + params.Encode()
		if err := c.getJSON(ctx, u, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Records...)

		if page.Cursor == "" || seenCursors[page.Cursor] {
			break
		}
		seenCursors[page.Cursor] = true
		params.Set("cursor", page.Cursor)
	}
	return all, nil
}

// CreateRecord writes record to the collection of repo and returns its
// at:// URI.
func (c *Client) CreateRecord(ctx context.Context, endpoint string, session *models.Session, repo, collection string, record any) (string, error) {
	if session == nil {
		return "", errors.New("no session")
	}
	if repo == "" {
		return "", errors.New("no repo DID")
	}
	payload := map[string]any{
		"repo":       repo,
		"collection": collection,
		"record":     record,
	}

	var out struct {
		URI string `json:"uri"`
		CID string `json:"cid"`
	}
	u := endpoint + "/xrpc/com.atproto.repo.createRecord"
	if err := c.postJSON(ctx, u, session.AccessJwt, payload, &out); err != nil {
		return "", err
	}
	if out.URI == "" {
		return "", errors.New("create response has no record URI")
	}
	return out.URI, nil
}

func (c *Client) getJSON(ctx context.Context, u string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, target)
}

func (c *Client) postJSON(ctx context.Context, u, token string, payload, target any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(req, target)
}

func (c *Client) do(req *http.Request, target any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Path: req.URL.Path, Body: strings.TrimSpace(string(msg))}
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", req.URL.Path, err)
	}
	return nil
}

// APIError is a non-2xx answer from an XRPC endpoint.
type APIError struct {
	Status int
	Path   string
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s returned status %d: %s", e.Path, e.Status, e.Body)
}
