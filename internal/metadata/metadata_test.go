package metadata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Fingerprint(t *testing.T) {
	t.Run("identical documents share one fingerprint", func(t *testing.T) {
		a := NewDocument("Yunnan", 1740000000, "INS-1", map[string]string{"grade": "A"})
		b := NewDocument("Yunnan", 1740000000, "INS-1", map[string]string{"grade": "A"})

		hashA, err := a.Fingerprint()
		require.NoError(t, err)
		hashB, err := b.Fingerprint()
		require.NoError(t, err)
		assert.Equal(t, hashA, hashB)
	})

	t.Run("any field change moves the fingerprint", func(t *testing.T) {
		base := NewDocument("Yunnan", 1740000000, "INS-1", nil)
		changed := NewDocument("Yunnan", 1740000001, "INS-1", nil)

		hashBase, err := base.Fingerprint()
		require.NoError(t, err)
		hashChanged, err := changed.Fingerprint()
		require.NoError(t, err)
		assert.NotEqual(t, hashBase, hashChanged)
	})

	t.Run("document and URI fingerprints are distinct rules", func(t *testing.T) {
		doc := NewDocument("Yunnan", 1740000000, "INS-1", nil)
		docHash, err := doc.Fingerprint()
		require.NoError(t, err)

		uriHash := FingerprintURI("ipfs://QmExample")
		assert.NotEqual(t, docHash, uriHash)
	})

	t.Run("canonical JSON carries the schema version", func(t *testing.T) {
		doc := NewDocument("Yunnan", 1740000000, "INS-1", nil)
		data, err := doc.CanonicalJSON()
		require.NoError(t, err)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, SchemaVersion, decoded["schema"])
	})
}

func TestIPFSStore(t *testing.T) {
	ctx := context.Background()

	t.Run("upload posts multipart and returns ipfs URI", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v0/add", r.URL.Path)
			assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(addResponse{Hash: "QmTest"})
		}))
		defer server.Close()

		store := NewIPFSStore(server.URL, "test-key", "", 5*time.Second)
		uri, err := store.Upload(ctx, NewDocument("Yunnan", 1740000000, "INS-1", nil))
		require.NoError(t, err)
		assert.Equal(t, "ipfs://QmTest", uri)
	})

	t.Run("fetch rewrites ipfs URIs through the gateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/ipfs/QmTest", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{"origin": "Yunnan"})
		}))
		defer server.Close()

		store := NewIPFSStore("", "", server.URL+"/ipfs/", 5*time.Second)
		doc, err := store.Fetch(ctx, "ipfs://QmTest")
		require.NoError(t, err)
		assert.Equal(t, "Yunnan", doc["origin"])
	})

	t.Run("upload surfaces non-200 responses", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		store := NewIPFSStore(server.URL, "", "", 5*time.Second)
		_, err := store.Upload(ctx, NewDocument("Yunnan", 1740000000, "INS-1", nil))
		assert.Error(t, err)
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	doc := NewDocument("Hainan", 1741000000, "INS-2", map[string]string{"lot": "7"})
	uri, err := store.Upload(ctx, doc)
	require.NoError(t, err)

	fetched, err := store.Fetch(ctx, uri)
	require.NoError(t, err)
	assert.Equal(t, "Hainan", fetched["origin"])
	assert.Equal(t, "INS-2", fetched["inspectionId"])

	_, err = store.Fetch(ctx, "mem://missing")
	assert.Error(t, err)
}
