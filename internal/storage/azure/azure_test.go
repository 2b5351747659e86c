package azure

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stagehand/adminauth/internal/config"
	"github.com/stagehand/adminauth/pkg/checksum"
)

type storedBlob struct {
	content      []byte
	metadata     map[string]string
	lastModified time.Time
}

// helper to create a test storage pointed at an httptest server
func newTestStorage(t *testing.T) (*AzureStorage, map[string]*storedBlob, func()) {
	t.Helper()

	// map of path -> blob
	store := map[string]*storedBlob{}

	// Simple handler imitating enough of the Azure Blob REST API for tests
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// path: /container/blob...
		p := strings.TrimPrefix(r.URL.Path, "/")

		// identify blob key as full path (container/blob...)
		key := p

		switch r.Method {
		case http.MethodPut:
			// Upload: read body and store
			data, _ := io.ReadAll(r.Body)
			// capture metadata headers x-ms-meta-*
			meta := map[string]string{}
			for k, v := range r.Header {
				lk := strings.ToLower(k)
				if strings.HasPrefix(lk, "x-ms-meta-") && len(v) > 0 {
					name := strings.TrimPrefix(lk, "x-ms-meta-")
					meta[name] = v[0]
				}
			}
			store[key] = &storedBlob{content: data, metadata: meta, lastModified: time.Now().UTC()}
			w.WriteHeader(http.StatusCreated)
			return

		case http.MethodGet:
			// Download stream
			if b, ok := store[key]; ok {
				// return content
				w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
				w.WriteHeader(http.StatusOK)
				w.Write(b.content)
				return
			}
			http.NotFound(w, r)
			return

		case http.MethodHead:
			if b, ok := store[key]; ok {
				w.Header().Set("Content-Length", fmt.Sprintf("%d", len(b.content)))
				w.Header().Set("Last-Modified", b.lastModified.Format(time.RFC1123))
				// set metadata headers
				for k, v := range b.metadata {
					w.Header().Set("x-ms-meta-"+k, v)
				}
				w.WriteHeader(http.StatusOK)
				return
			}
			http.NotFound(w, r)
			return

		case http.MethodDelete:
			if _, ok := store[key]; !ok {
				w.Header().Set("x-ms-error-code", "BlobNotFound")
				w.WriteHeader(http.StatusNotFound)
				return
			}
			delete(store, key)
			w.WriteHeader(http.StatusAccepted)
			return

		default:
			http.NotFound(w, r)
			return
		}
	}))

	// create a client that points to the test server
	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("failed to create azblob client: %v", err)
	}

	s := &AzureStorage{
		client:        client,
		containerName: "container",
	}

	cleanup := func() { srv.Close() }
	return s, store, cleanup
}

func TestUploadExistsAndDelete(t *testing.T) {
	s, store, done := newTestStorage(t)
	defer done()

	ctx := context.Background()
	data := []byte(`{"action_type":"login_failure"}` + "\n")

	res, err := s.Upload(ctx, "audit/b1.ndjson", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if res.Size != int64(len(data)) {
		t.Fatalf("unexpected size: got %d want %d", res.Size, len(data))
	}
	if res.Checksum != checksum.SHA256Bytes(data) {
		t.Fatalf("unexpected checksum: %s", res.Checksum)
	}
	b, ok := store["container/audit/b1.ndjson"]
	if !ok {
		t.Fatalf("blob not stored; keys: %v", keys(store))
	}
	if b.metadata["sha256"] != res.Checksum {
		t.Errorf("sha256 metadata = %q, want %q", b.metadata["sha256"], res.Checksum)
	}

	exists, err := s.Exists(ctx, "audit/b1.ndjson")
	if err != nil || !exists {
		t.Fatalf("Exists = %v, %v; want true, nil", exists, err)
	}

	sum, err := s.Checksum(ctx, "audit/b1.ndjson")
	if err != nil {
		t.Fatalf("Checksum failed: %v", err)
	}
	if sum != res.Checksum {
		t.Errorf("Checksum = %q, want %q", sum, res.Checksum)
	}

	if err := s.Delete(ctx, "audit/b1.ndjson"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	exists, err = s.Exists(ctx, "audit/b1.ndjson")
	if err != nil {
		t.Fatalf("Exists after delete returned error: %v", err)
	}
	if exists {
		t.Fatalf("Exists = true after delete, want false")
	}
}

func TestDelete_MissingBlobIsNotAnError(t *testing.T) {
	s, _, done := newTestStorage(t)
	defer done()

	if err := s.Delete(context.Background(), "audit/never.ndjson"); err != nil {
		t.Errorf("Delete of missing blob = %v, want nil", err)
	}
}

func keys(m map[string]*storedBlob) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// ---------------------------------------------------------------------------
// New() - constructor validation (no cloud connection required)
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureArchiveConfig
	}{
		{"missing account name", config.AzureArchiveConfig{AccountKey: "somekey", ContainerName: "audit"}},
		{"missing account key", config.AzureArchiveConfig{AccountName: "acct", ContainerName: "audit"}},
		{"missing container", config.AzureArchiveConfig{AccountName: "acct", AccountKey: "a2V5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			if _, err := New(&cfg); err == nil {
				t.Error("New() = nil error, want validation error")
			}
		})
	}
}
