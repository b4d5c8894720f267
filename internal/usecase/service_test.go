package usecase

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docsearch/internal/domain"
)

func TestService_ListFilesOfUnknownSessionIsEmpty(t *testing.T) {
	f := newFixture(t.TempDir())

	resp := f.service.ListFiles(context.Background(), "nobody")
	assert.Equal(t, "nobody", resp.SessionID)
	assert.NotNil(t, resp.Files)
	assert.Empty(t, resp.Files)

	assert.Empty(t, f.service.ListFiles(context.Background(), "..").Files)
}

func TestService_UploadIsIdempotent(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.Initialize(ctx, "s1", "list")
	require.NoError(t, err)

	resp, err := f.service.UploadFiles(ctx, "s1", batch("b.txt", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, resp.Files)

	_, err = f.service.UploadFiles(ctx, "s1", batch("a.txt", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, f.service.ListFiles(ctx, "s1").Files)
	inserts, _ := f.backend.handle("s1", domain.SearchList).snapshot()
	assert.Equal(t, []string{"a.txt", "b.txt"}, inserts, "a repeated upload inserts nothing")

	_, err = f.service.UploadFiles(ctx, "s1", batch("c.txt"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, f.service.ListFiles(ctx, "s1").Files)
	inserts, _ = f.backend.handle("s1", domain.SearchList).snapshot()
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, inserts)
}

func TestService_DotFilesAreOrdinaryDocuments(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.Initialize(ctx, "s1", "list")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = f.service.UploadFiles(ctx, "s1", batch(".notes"))
		require.NoError(t, err)
	}
	inserts, _ := f.backend.handle("s1", domain.SearchList).snapshot()
	assert.Equal(t, []string{".notes"}, inserts)
	assert.Equal(t, []string{".notes"}, f.service.ListFiles(ctx, "s1").Files)

	_, err = f.service.DeleteFile(ctx, "s1", ".notes")
	require.NoError(t, err)
	assert.Empty(t, f.service.ListFiles(ctx, "s1").Files)
}

func TestService_RecordAreaNamesAreRejected(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	for _, name := range []string{"history", ".index"} {
		_, err := f.service.UploadFiles(ctx, "s1", batch("a.txt", name))
		require.ErrorIs(t, err, domain.ErrInvalidName, name)
		_, err = f.service.SyncFiles(ctx, "s1", batch(name))
		require.ErrorIs(t, err, domain.ErrInvalidName, name)
		_, err = f.service.DeleteFile(ctx, "s1", name)
		require.ErrorIs(t, err, domain.ErrInvalidName, name)
	}
	assert.Empty(t, f.service.ListFiles(ctx, "s1").Files, "a rejected batch writes nothing")

	chat := []domain.ChatEntry{json.RawMessage(`{"prompt":"q","completion":"a"}`)}
	require.NoError(t, f.service.SaveChat(ctx, "s1", "list", chat))
	assert.Len(t, f.service.History().Load(ctx, "s1").Chat(domain.SearchList), 1)
}

func TestService_UploadDuringBuildReachesHandle(t *testing.T) {
	f := newFixture(t.TempDir())
	f.backend.release = make(chan struct{})
	ctx := context.Background()

	initialized := make(chan error, 1)
	go func() {
		_, err := f.service.Initialize(ctx, "s1", "list")
		initialized <- err
	}()
	require.Eventually(t, func() bool { return f.backend.builds.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	uploaded := make(chan error, 1)
	go func() {
		_, err := f.service.UploadFiles(ctx, "s1", batch("c.txt"))
		uploaded <- err
	}()

	select {
	case err := <-uploaded:
		t.Fatalf("upload finished while the handle was building: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	close(f.backend.release)
	require.NoError(t, <-initialized)
	require.NoError(t, <-uploaded)

	assert.Equal(t, []string{"c.txt"}, f.service.ListFiles(ctx, "s1").Files)
	resp, err := f.service.Query(ctx, "s1", "list", "q")
	require.NoError(t, err)
	assert.Equal(t, "q -> c.txt", resp.Completion)
}

func TestService_UploadRecordsFilesInHistory(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.UploadFiles(ctx, "s1", batch("a.txt"))
	require.NoError(t, err)

	rec := f.service.History().Load(ctx, "s1")
	assert.Equal(t, []string{"a.txt"}, rec.Files)
	assert.Equal(t, []string{"a.txt"}, f.service.ListFiles(ctx, "s1").Files, "history area is not a document")
}

func TestService_DeleteFile(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.UploadFiles(ctx, "s1", batch("a.txt", "b.txt"))
	require.NoError(t, err)
	_, err = f.service.Initialize(ctx, "s1", "list")
	require.NoError(t, err)

	resp, err := f.service.DeleteFile(ctx, "s1", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, domain.FileResponse{SessionID: "s1", File: "a.txt"}, resp)
	assert.Equal(t, []string{"b.txt"}, f.service.ListFiles(ctx, "s1").Files)

	_, removes := f.backend.handle("s1", domain.SearchList).snapshot()
	assert.Equal(t, []string{"a.txt"}, removes)

	_, err = f.service.DeleteFile(ctx, "s1", "a.txt")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, removes = f.backend.handle("s1", domain.SearchList).snapshot()
	assert.Len(t, removes, 1, "a missing name never reaches the handles")
}

func TestService_QueryNeedsInitialize(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.UploadFiles(ctx, "s1", batch("a.txt"))
	require.NoError(t, err)

	_, err = f.service.Query(ctx, "s1", "list", "hello")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Zero(t, f.backend.builds.Load())

	_, err = f.service.Query(ctx, "s1", "graph", "hello")
	require.ErrorIs(t, err, domain.ErrUnsupportedSearchType)

	started, err := f.service.Initialize(ctx, "s1", "list")
	require.NoError(t, err)
	assert.Equal(t, "s1", started.Session)

	resp, err := f.service.Query(ctx, "s1", "list", "hello")
	require.NoError(t, err)
	assert.Equal(t, domain.PromptResponse{Prompt: "hello", Completion: "hello -> a.txt"}, resp)
}

func TestService_QueryBackendFailure(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.Initialize(ctx, "s1", "vector")
	require.NoError(t, err)
	f.backend.handle("s1", domain.SearchVector).queryErr = errBoom

	_, err = f.service.Query(ctx, "s1", "vector", "hello")
	require.ErrorIs(t, err, domain.ErrBackendFailure)
	require.ErrorIs(t, err, errBoom)
}

func TestService_InitializeUnsupportedType(t *testing.T) {
	f := newFixture(t.TempDir())

	_, err := f.service.Initialize(context.Background(), "s1", "graph")
	require.ErrorIs(t, err, domain.ErrUnsupportedSearchType)
	assert.Zero(t, f.service.Sessions().Len())
}

func TestService_InitializeReturnsHistory(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	started, err := f.service.Initialize(ctx, "fresh", "list")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultHistory(), started.History)

	chat := []domain.ChatEntry{domain.NewChatEntry(domain.PromptResponse{Prompt: "q", Completion: "a"})}
	require.NoError(t, f.service.SaveChat(ctx, "fresh", "list", chat))

	started, err = f.service.Initialize(ctx, "fresh", "list")
	require.NoError(t, err)
	require.Len(t, started.History.Chat(domain.SearchList), 1)
	assert.JSONEq(t, `{"prompt":"q","completion":"a"}`, string(started.History.Chat(domain.SearchList)[0]))
	assert.Equal(t, int32(1), f.backend.builds.Load(), "second initialize reuses the handle")
}

func TestService_SaveIndices(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	require.ErrorIs(t, f.service.SaveIndices(ctx, "s1"), domain.ErrNotFound)

	for _, st := range []string{"list", "vector"} {
		_, err := f.service.Initialize(ctx, "s1", st)
		require.NoError(t, err)
	}
	require.NoError(t, f.service.SaveIndices(ctx, "s1"))
	assert.Equal(t, 1, f.backend.handle("s1", domain.SearchList).persisted)
	assert.Equal(t, 1, f.backend.handle("s1", domain.SearchVector).persisted)
}

func TestService_SaveChatOverwritesOneType(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	first := []domain.ChatEntry{json.RawMessage(`{"prompt":"1","completion":"x"}`)}
	second := []domain.ChatEntry{json.RawMessage(`{"prompt":"2","completion":"y"}`)}
	other := []domain.ChatEntry{json.RawMessage(`{"prompt":"v","completion":"z"}`)}

	require.NoError(t, f.service.SaveChat(ctx, "s1", "vector", other))
	require.NoError(t, f.service.SaveChat(ctx, "s1", "list", first))
	require.NoError(t, f.service.SaveChat(ctx, "s1", "list", second))

	rec := f.service.History().Load(ctx, "s1")
	require.Len(t, rec.Chat(domain.SearchList), 1)
	assert.JSONEq(t, string(second[0]), string(rec.Chat(domain.SearchList)[0]))
	require.Len(t, rec.Chat(domain.SearchVector), 1)
	assert.JSONEq(t, string(other[0]), string(rec.Chat(domain.SearchVector)[0]))

	require.ErrorIs(t, f.service.SaveChat(ctx, "s1", "graph", first), domain.ErrUnsupportedSearchType)
}

func TestService_HistoryFileLayout(t *testing.T) {
	f := newFixture(t.TempDir())
	ctx := context.Background()

	_, err := f.service.UploadFiles(ctx, "s1", batch("a.txt"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(f.root, "s1", "history", "session_history.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"files":["a.txt"],"list_chat":[],"vector_chat":[]}`, string(data))
}
