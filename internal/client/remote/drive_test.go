package remote

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akulikov/securetext/internal/common"
)

// fakeGateway is a minimal in-memory drive gateway used by the tests.
type fakeGateway struct {
	mu      map[string]*gwNode
	content map[string][]byte
	nextID  int
	rootID  string
	token   string

	lastReqID string
}

type gwNode struct {
	Node
	Trashed bool
}

func newFakeGateway(token string) *fakeGateway {
	return &fakeGateway{mu: map[string]*gwNode{}, content: map[string][]byte{}, token: token}
}

func (g *fakeGateway) handler() http.Handler {
	mux := http.NewServeMux()

	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+g.token {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			g.lastReqID = r.Header.Get("X-Request-Id")
			next(w, r)
		}
	}

	mux.HandleFunc("POST /v1/root", auth(func(w http.ResponseWriter, r *http.Request) {
		if g.rootID == "" {
			g.rootID = g.create("SecureText", "", true)
		}
		json.NewEncoder(w).Encode(g.mu[g.rootID].Node)
	}))

	mux.HandleFunc("GET /v1/nodes", auth(func(w http.ResponseWriter, r *http.Request) {
		parent := r.URL.Query().Get("parent")
		out := struct {
			Nodes []Node `json:"nodes"`
		}{Nodes: []Node{}}
		for _, n := range g.mu {
			if n.ParentID == parent && !n.Trashed {
				out.Nodes = append(out.Nodes, n.Node)
			}
		}
		json.NewEncoder(w).Encode(out)
	}))

	mux.HandleFunc("POST /v1/nodes", auth(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name     string `json:"name"`
			ParentID string `json:"parentId"`
			Folder   bool   `json:"folder"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		id := g.create(req.Name, req.ParentID, req.Folder)
		json.NewEncoder(w).Encode(g.mu[id].Node)
	}))

	mux.HandleFunc("PATCH /v1/nodes/{id}", auth(func(w http.ResponseWriter, r *http.Request) {
		n, ok := g.mu[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Name    *string `json:"name"`
			Trashed *bool   `json:"trashed"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Name != nil {
			n.Name = *req.Name
		}
		if req.Trashed != nil {
			n.Trashed = *req.Trashed
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /v1/nodes/{id}/content", auth(func(w http.ResponseWriter, r *http.Request) {
		data, ok := g.content[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(data)
	}))

	mux.HandleFunc("PUT /v1/nodes/{id}/content", auth(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := g.mu[r.PathValue("id")]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		data, _ := io.ReadAll(r.Body)
		g.content[r.PathValue("id")] = data
		w.WriteHeader(http.StatusNoContent)
	}))

	return mux
}

func (g *fakeGateway) create(name, parent string, folder bool) string {
	g.nextID++
	id := fmt.Sprintf("n%03d", g.nextID)
	g.mu[id] = &gwNode{Node: Node{ID: id, Name: name, Folder: folder, ParentID: parent}}
	return id
}

func newTestDrive(t *testing.T) (*Drive, *fakeGateway) {
	t.Helper()
	gw := newFakeGateway("good-token")
	srv := httptest.NewServer(gw.handler())
	t.Cleanup(srv.Close)
	return NewDrive(srv.URL, StaticToken("good-token"), srv.Client()), gw
}

func TestDrive_RequestsCarryRequestID(t *testing.T) {
	d, gw := newTestDrive(t)

	_, err := d.EnsureRootFolder(context.Background(), "SecureText")
	require.NoError(t, err)

	require.Len(t, gw.lastReqID, 16)
	_, err = hex.DecodeString(gw.lastReqID)
	assert.NoError(t, err)
}

func TestDrive_EnsureRootFolderIdempotent(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	a, err := d.EnsureRootFolder(ctx, "SecureText")
	require.NoError(t, err)
	b, err := d.EnsureRootFolder(ctx, "SecureText")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDrive_CreateListRenameTrash(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	root, err := d.EnsureRootFolder(ctx, "SecureText")
	require.NoError(t, err)

	folderID, err := d.CreateFolder(ctx, "notes", root)
	require.NoError(t, err)
	fileID, err := d.CreateFile(ctx, "todo.stx", root)
	require.NoError(t, err)

	kids, err := d.ListChildren(ctx, root)
	require.NoError(t, err)
	require.Len(t, kids, 2)

	require.NoError(t, d.Rename(ctx, fileID, "done.stx"))
	kids, err = d.ListChildren(ctx, root)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, k := range kids {
		names[k.Name] = true
	}
	assert.True(t, names["done.stx"])
	assert.False(t, names["todo.stx"])

	require.NoError(t, d.Trash(ctx, folderID))
	kids, err = d.ListChildren(ctx, root)
	require.NoError(t, err)
	require.Len(t, kids, 1)
}

func TestDrive_ContentRoundTrip(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	root, err := d.EnsureRootFolder(ctx, "SecureText")
	require.NoError(t, err)
	id, err := d.CreateFile(ctx, "f.stx", root)
	require.NoError(t, err)

	blob := []byte{0x00, 0x01, 0xfe, 0xff}
	require.NoError(t, d.SaveBytes(ctx, id, blob))

	got, err := d.LoadBytes(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, blob, got)
}

func TestDrive_ErrorMapping(t *testing.T) {
	gw := newFakeGateway("good-token")
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	ctx := context.Background()

	// wrong token → not authenticated, distinct from not found
	bad := NewDrive(srv.URL, StaticToken("bad-token"), srv.Client())
	_, err := bad.LoadBytes(ctx, "whatever")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	good := NewDrive(srv.URL, StaticToken("good-token"), srv.Client())
	_, err = good.LoadBytes(ctx, "no-such-node")
	require.ErrorIs(t, err, common.ErrNotFound)

	// unreachable gateway → remote unavailable
	srv.Close()
	_, err = good.LoadBytes(ctx, "whatever")
	require.ErrorIs(t, err, common.ErrRemoteUnavailable)
}

func TestDrive_EmptyTokenFailsBeforeRequest(t *testing.T) {
	d := NewDrive("http://example.invalid", StaticToken(""), nil)
	_, err := d.ListChildren(context.Background(), "root")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)
}
