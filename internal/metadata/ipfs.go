package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ObjectStore uploads metadata documents and fetches them back by URI
type ObjectStore interface {
	Upload(ctx context.Context, doc Document) (uri string, err error)
	Fetch(ctx context.Context, uri string) (map[string]any, error)
}

// IPFSStore talks to an IPFS node's HTTP API for uploads and to a public
// gateway for reads. Stdlib HTTP is used directly since the add and cat
// endpoints are plain multipart and GET calls.
type IPFSStore struct {
	apiURL  string
	apiKey  string
	gateway string
	client  *http.Client
}

// addResponse is the IPFS add endpoint's result shape
type addResponse struct {
	Hash string `json:"Hash"`
}

// NewIPFSStore creates an IPFS-backed object store. gateway is the public
// read URL prefix, e.g. https://ipfs.io/ipfs/.
func NewIPFSStore(apiURL, apiKey, gateway string, timeout time.Duration) *IPFSStore {
	return &IPFSStore{
		apiURL:  strings.TrimRight(apiURL, "/"),
		apiKey:  apiKey,
		gateway: gateway,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload implements ObjectStore
func (s *IPFSStore) Upload(ctx context.Context, doc Document) (string, error) {
	data, err := doc.CanonicalJSON()
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "metadata.json")
	if err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("build upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+"/api/v0/add", &body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload metadata: status %d", resp.StatusCode)
	}

	var result addResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("parse upload response: %w", err)
	}
	if result.Hash == "" {
		return "", fmt.Errorf("upload metadata: empty hash in response")
	}

	return "ipfs://" + result.Hash, nil
}

// Fetch implements ObjectStore. ipfs:// URIs are rewritten to the configured
// gateway; http(s) URIs are fetched as-is.
func (s *IPFSStore) Fetch(ctx context.Context, uri string) (map[string]any, error) {
	url := uri
	if cid, ok := strings.CutPrefix(uri, "ipfs://"); ok {
		url = s.gateway + cid
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch metadata: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read metadata: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse metadata: %w", err)
	}
	return doc, nil
}

// MemoryStore keeps uploaded documents in memory. It backs single-instance
// deployments without an IPFS node and the test suite.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]Document
}

// NewMemoryStore creates an in-memory object store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]Document)}
}

// Upload implements ObjectStore. The URI is derived from the document
// fingerprint, so identical documents share one URI.
func (s *MemoryStore) Upload(ctx context.Context, doc Document) (string, error) {
	hash, err := doc.Fingerprint()
	if err != nil {
		return "", err
	}

	uri := fmt.Sprintf("mem://%x", hash)

	s.mu.Lock()
	s.docs[uri] = doc
	s.mu.Unlock()
	return uri, nil
}

// Fetch implements ObjectStore
func (s *MemoryStore) Fetch(ctx context.Context, uri string) (map[string]any, error) {
	s.mu.RLock()
	doc, ok := s.docs[uri]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("metadata not found: %s", uri)
	}

	data, err := doc.CanonicalJSON()
	if err != nil {
		return nil, err
	}

	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
