package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/rmsync/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/rmsync/internal/core/domain"
)

// rewriteTransport sends every request to the test server.
type rewriteTransport struct {
	target *url.URL
}

func (t rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = t.target.Scheme
	req.URL.Host = t.target.Host
	return http.DefaultTransport.RoundTrip(req)
}

// fakeNotion is a minimal in-memory Notion API.
type fakeNotion struct {
	mu        sync.Mutex
	nextID    int
	notebooks map[string]string            // uuid -> page id
	blocks    map[string]map[string]string // page id -> block id -> toggle title
	todos     map[string]bool              // todo page ids
	created   []map[string]any             // bodies of POST /pages
	updated   []string                     // ids of PATCH /pages
	deleted   []string
	appended  []string
	queries   int
}

func newFakeNotion() *fakeNotion {
	return &fakeNotion{
		notebooks: make(map[string]string),
		blocks:    make(map[string]map[string]string),
		todos:     make(map[string]bool),
	}
}

func (f *fakeNotion) id(prefix string) string {
	f.nextID++
	return fmt.Sprintf("%s-%d", prefix, f.nextID)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"object": "error", "status": 404, "code": "object_not_found", "message": "Could not find " + what,
	})
}

func (f *fakeNotion) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/"), "/"), "/")

	switch {
	case r.Method == http.MethodPost && len(parts) == 3 && parts[0] == "databases" && parts[2] == "query":
		f.queries++
		uuid := body["filter"].(map[string]any)["rich_text"].(map[string]any)["equals"].(string)
		results := []any{}
		if id, ok := f.notebooks[uuid]; ok {
			results = append(results, map[string]any{"object": "page", "id": id, "properties": map[string]any{}})
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": results, "has_more": false})

	case r.Method == http.MethodPost && len(parts) == 1 && parts[0] == "pages":
		f.created = append(f.created, body)
		id := f.id("page")
		parent := body["parent"].(map[string]any)["database_id"].(string)
		props := body["properties"].(map[string]any)
		if uuidProp, ok := props[propUUID]; ok {
			uuid := uuidProp.(map[string]any)["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"].(string)
			f.notebooks[uuid] = id
			f.blocks[id] = make(map[string]string)
		} else if parent == "todo-db" {
			f.todos[id] = true
		}
		writeJSON(w, http.StatusOK, map[string]any{"object": "page", "id": id, "properties": map[string]any{}})

	case r.Method == http.MethodPatch && len(parts) == 2 && parts[0] == "pages":
		if !f.todos[parts[1]] {
			notFound(w, "page")
			return
		}
		f.updated = append(f.updated, parts[1])
		writeJSON(w, http.StatusOK, map[string]any{"object": "page", "id": parts[1], "properties": map[string]any{}})

	case len(parts) == 3 && parts[0] == "blocks" && parts[2] == "children":
		page, ok := f.blocks[parts[1]]
		if !ok {
			notFound(w, "block")
			return
		}
		if r.Method == http.MethodGet {
			results := []any{map[string]any{
				"object": "block", "id": "header", "type": "paragraph",
				"paragraph": map[string]any{"rich_text": []any{}},
			}}
			for id, title := range page {
				results = append(results, map[string]any{
					"object": "block", "id": id, "type": "toggle",
					"toggle": map[string]any{"rich_text": []any{map[string]any{
						"type": "text", "text": map[string]any{"content": title}, "plain_text": title,
					}}},
				})
			}
			writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": results, "has_more": false})
			return
		}
		f.appended = append(f.appended, string(raw))
		child := body["children"].([]any)[0].(map[string]any)
		title := child["toggle"].(map[string]any)["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"].(string)
		id := f.id("block")
		page[id] = title
		writeJSON(w, http.StatusOK, map[string]any{"object": "list", "results": []any{map[string]any{
			"object": "block", "id": id, "type": "toggle", "toggle": map[string]any{"rich_text": []any{}},
		}}})

	case r.Method == http.MethodDelete && len(parts) == 2 && parts[0] == "blocks":
		for _, page := range f.blocks {
			if _, ok := page[parts[1]]; ok {
				delete(page, parts[1])
				f.deleted = append(f.deleted, parts[1])
				writeJSON(w, http.StatusOK, map[string]any{
					"object": "block", "id": parts[1], "type": "toggle",
					"toggle": map[string]any{"rich_text": []any{}}, "archived": true,
				})
				return
			}
		}
		notFound(w, "block")

	default:
		http.Error(w, "unexpected "+r.Method+" "+r.URL.Path, http.StatusTeapot)
	}
}

type fixture struct {
	api      *fakeNotion
	client   *Client
	mappings *memory.MappingStore
	ledger   *memory.LedgerStore
}

func newFixture(t *testing.T, todoDB string) *fixture {
	t.Helper()
	api := newFakeNotion()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	target, err := url.Parse(srv.URL)
	require.NoError(t, err)

	mappings := memory.NewMappingStore()
	ledger := memory.NewLedgerStore()
	client, err := NewClient(
		Config{Token: "secret_test", DatabaseID: "notebook-db", TodoDatabaseID: todoDB},
		mappings, ledger,
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
		WithRequestsPerSecond(1000),
	)
	require.NoError(t, err)
	return &fixture{api: api, client: client, mappings: mappings, ledger: ledger}
}

func pageUnit(owner string, n int, text string) domain.SyncableUnit {
	return domain.Page{NotebookUUID: owner, PageNumber: n, Text: text, Confidence: 0.9}.Unit("Journal")
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{DatabaseID: "db"}, nil, nil)
	assert.ErrorIs(t, err, domain.ErrAuthRequired)

	_, err = NewClient(Config{Token: "t"}, nil, nil)
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)
}

func TestClient_Supports(t *testing.T) {
	f := newFixture(t, "")
	assert.Equal(t, "notion", f.client.Name())
	assert.True(t, f.client.Supports(domain.ItemTypePage))
	assert.False(t, f.client.Supports(domain.ItemTypeTodo))
	assert.False(t, f.client.Supports(domain.ItemTypeHighlight))

	f = newFixture(t, "todo-db")
	assert.True(t, f.client.Supports(domain.ItemTypeTodo))
}

func TestClient_UpsertPage_CreatesNotebookPageOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	ref1, err := f.client.Upsert(ctx, pageUnit("nb-1", 1, "hello"), "")
	require.NoError(t, err)
	ref2, err := f.client.Upsert(ctx, pageUnit("nb-1", 2, "world"), "")
	require.NoError(t, err)
	assert.NotEqual(t, ref1, ref2)

	require.Len(t, f.api.created, 1, "one notebook page")
	assert.Equal(t, 1, f.api.queries, "second upsert uses the cached mapping")

	pageID, err := f.mappings.GetMapping(ctx, TargetName, "nb-1")
	require.NoError(t, err)
	assert.Equal(t, f.api.notebooks["nb-1"], pageID)

	require.Len(t, f.api.appended, 2)
	assert.Contains(t, f.api.appended[0], "📄 Page 1 (🟢 0.9)")
	assert.Contains(t, f.api.appended[0], `"hello"`)
}

func TestClient_UpsertPage_ReusesExistingNotebookPage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	f.api.notebooks["nb-1"] = "existing-page"
	f.api.blocks["existing-page"] = map[string]string{}

	_, err := f.client.Upsert(ctx, pageUnit("nb-1", 1, "hello"), "")
	require.NoError(t, err)
	assert.Empty(t, f.api.created)
}

func TestClient_UpsertPage_ReplacesBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	ref, err := f.client.Upsert(ctx, pageUnit("nb-1", 1, "draft"), "")
	require.NoError(t, err)

	newRef, err := f.client.Upsert(ctx, pageUnit("nb-1", 1, "final"), ref)
	require.NoError(t, err)
	assert.NotEqual(t, ref, newRef)
	assert.Equal(t, []string{ref}, f.api.deleted)

	pageID := f.api.notebooks["nb-1"]
	assert.Len(t, f.api.blocks[pageID], 1)
}

func TestClient_UpsertPage_UnknownRefFallsBackToCreate(t *testing.T) {
	f := newFixture(t, "")

	ref, err := f.client.Upsert(context.Background(), pageUnit("nb-1", 1, "text"), "deleted-in-notion")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)
	assert.Empty(t, f.api.deleted)
}

func TestClient_UpsertPage_StaleMappingIsResolvedAgain(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")
	require.NoError(t, f.mappings.SaveMapping(ctx, TargetName, "nb-1", "vanished-page"))

	ref, err := f.client.Upsert(ctx, pageUnit("nb-1", 1, "text"), "")
	require.NoError(t, err)
	assert.NotEmpty(t, ref)

	pageID, err := f.mappings.GetMapping(ctx, TargetName, "nb-1")
	require.NoError(t, err)
	assert.NotEqual(t, "vanished-page", pageID)
}

func TestClient_UpsertTodo(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "todo-db")

	pageRef, err := f.client.Upsert(ctx, pageUnit("nb-1", 2, "call bob"), "")
	require.NoError(t, err)
	page := pageUnit("nb-1", 2, "call bob")
	require.NoError(t, f.ledger.RecordSuccess(ctx, TargetName, page, pageRef, page.CreatedAt))

	todo := domain.Todo{ID: "t-1", NotebookUUID: "nb-1", PageNumber: 2, Text: "call bob", Completed: true}.Unit("Journal")
	ref, err := f.client.Upsert(ctx, todo, "")
	require.NoError(t, err)
	assert.True(t, f.api.todos[ref])

	body := f.api.created[len(f.api.created)-1]
	props := body["properties"].(map[string]any)
	assert.Equal(t, true, props[propDone].(map[string]any)["checkbox"])
	assert.InDelta(t, 2.0, props[propPage].(map[string]any)["number"], 0.0001)
	raw, err := json.Marshal(props[propSource])
	require.NoError(t, err)
	pageID := strings.ReplaceAll(f.api.notebooks["nb-1"], "-", "")
	assert.Contains(t, string(raw), "https://www.notion.so/"+pageID+"#"+strings.ReplaceAll(pageRef, "-", ""))

	again, err := f.client.Upsert(ctx, todo, ref)
	require.NoError(t, err)
	assert.Equal(t, ref, again)
	assert.Equal(t, []string{ref}, f.api.updated)
}

func TestClient_UpsertTodo_WithoutSyncedPageHasNoLink(t *testing.T) {
	f := newFixture(t, "todo-db")

	todo := domain.Todo{ID: "t-1", NotebookUUID: "nb-1", PageNumber: 5, Text: "buy milk"}.Unit("Journal")
	_, err := f.client.Upsert(context.Background(), todo, "")
	require.NoError(t, err)

	props := f.api.created[0]["properties"].(map[string]any)
	assert.NotContains(t, props, propSource)
}

func TestClient_UpsertTodo_DeletedRefRecreates(t *testing.T) {
	f := newFixture(t, "todo-db")

	todo := domain.Todo{ID: "t-1", NotebookUUID: "nb-1", Text: "x"}.Unit("Journal")
	ref, err := f.client.Upsert(context.Background(), todo, "gone")
	require.NoError(t, err)
	assert.NotEqual(t, "gone", ref)
	assert.Len(t, f.api.created, 1)
}

func TestClient_Upsert_Unsupported(t *testing.T) {
	f := newFixture(t, "")

	_, err := f.client.Upsert(context.Background(), domain.Highlight{ID: "h", NotebookUUID: "nb"}.Unit(""), "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)

	_, err = f.client.Upsert(context.Background(), domain.Todo{ID: "t", NotebookUUID: "nb"}.Unit(""), "")
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
}

func TestClient_ListKnownItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "")

	known, err := f.client.ListKnownItems(ctx, "nb-1")
	require.NoError(t, err)
	assert.Empty(t, known)
	assert.Empty(t, f.api.created, "listing never creates a page")

	for _, n := range []int{1, 3, 4} {
		_, err := f.client.Upsert(ctx, pageUnit("nb-1", n, "text"), "")
		require.NoError(t, err)
	}

	known, err = f.client.ListKnownItems(ctx, "nb-1")
	require.NoError(t, err)
	assert.Equal(t, map[int]struct{}{1: {}, 3: {}, 4: {}}, known)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"object": "error", "status": 401, "code": "unauthorized", "message": "API token is invalid.",
		})
	}))
	defer srv.Close()
	target, _ := url.Parse(srv.URL)

	client, err := NewClient(Config{Token: "bad", DatabaseID: "db"}, nil, nil,
		WithHTTPClient(&http.Client{Transport: rewriteTransport{target: target}}),
		WithRequestsPerSecond(1000))
	require.NoError(t, err)

	_, err = client.ListKnownItems(context.Background(), "nb-1")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "query notebook page")
}
