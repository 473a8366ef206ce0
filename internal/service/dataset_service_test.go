package service

import (
	"context"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/zeebo/blake3"

	"datasethub/internal/domain"
	"datasethub/internal/repository/memory"
	"datasethub/internal/service/blob"
)

func upload(t *testing.T, env *testEnv, datasetID, callerID int64, name, content string) *domain.DatasetVersion {
	t.Helper()
	v, err := env.datasets.AddVersion(context.Background(), datasetID, callerID, name, strings.NewReader(content))
	require.NoError(t, err)
	return v
}

func readDownload(t *testing.T, dl *domain.VersionDownload) string {
	t.Helper()
	defer dl.Body.Close()
	data, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	return string(data)
}

func TestDatasetService_AliceAndBob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	iris := env.createDataset(t, alice.ID, "iris", true)
	assert.Equal(t, int64(0), iris.Downloads)

	v1 := upload(t, env, iris.ID, alice.ID, "iris.csv", "a,b\n1,2\n")
	v2 := upload(t, env, iris.ID, alice.ID, "iris.csv", "a,b\n1,2\n3,4\n")
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.NotEqual(t, v1.StorageKey, v2.StorageKey)

	// bob видит датасет, но не может его менять
	detail, err := env.datasets.Get(ctx, iris.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", detail.Owner.Username)
	require.Len(t, detail.Versions, 2)

	_, err = env.datasets.AddVersion(ctx, iris.ID, bob.ID, "evil.csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.datasets.Update(ctx, iris.ID, bob.ID, domain.DatasetPatch{Name: domain.Some("pwned")})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	assert.ErrorIs(t, env.datasets.Delete(ctx, iris.ID, bob.ID), domain.ErrForbidden)

	// bob скачивает первую версию
	dl, err := env.datasets.Download(ctx, iris.ID, 1, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", readDownload(t, dl))
	assert.Equal(t, int64(1), dl.Version.DownloadCount)

	got, err := env.datasets.Get(ctx, iris.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Downloads)
	assert.Equal(t, int64(1), got.Versions[0].DownloadCount)
	assert.Equal(t, int64(0), got.Versions[1].DownloadCount)

	// alice удаляет датасет вместе с версиями и объектами
	require.NoError(t, env.datasets.Delete(ctx, iris.ID, alice.ID))
	_, err = env.datasets.Get(ctx, iris.ID, alice.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	objects, err := env.blobs.List(ctx, blob.RootPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)
}

func TestDatasetService_CreateValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.datasets.Create(ctx, 42, domain.DatasetCreate{Name: "orphan"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	alice := env.register(t, "alice")
	_, err = env.datasets.Create(ctx, alice.ID, domain.DatasetCreate{Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	d, err := env.datasets.Create(ctx, alice.ID, domain.DatasetCreate{Name: "mnist"})
	require.NoError(t, err)
	assert.False(t, d.IsPublic)
}

func TestDatasetService_ListSkipsPrivate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	for i := 0; i < 15; i++ {
		env.createDataset(t, alice.ID, "public", true)
	}
	private := env.createDataset(t, alice.ID, "private", false)

	page, err := env.datasets.List(ctx, 0, 0)
	require.NoError(t, err)
	assert.Len(t, page, defaultListLimit)

	all, err := env.datasets.List(ctx, -5, 1000)
	require.NoError(t, err)
	assert.Len(t, all, 15)
	for _, d := range all {
		assert.NotEqual(t, private.ID, d.ID)
		assert.True(t, d.IsPublic)
	}

	tail, err := env.datasets.List(ctx, 10, 10)
	require.NoError(t, err)
	assert.Len(t, tail, 5)
}

func TestDatasetService_PrivateVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	secret := env.createDataset(t, alice.ID, "secret", false)
	upload(t, env, secret.ID, alice.ID, "s.bin", "hidden")

	_, err := env.datasets.Get(ctx, secret.ID, alice.ID)
	assert.NoError(t, err)

	for _, caller := range []int64{bob.ID, 0} {
		_, err = env.datasets.Get(ctx, secret.ID, caller)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = env.datasets.ListVersions(ctx, secret.ID, caller)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = env.datasets.Download(ctx, secret.ID, 0, caller)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestDatasetService_UpdatePatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d, err := env.datasets.Create(ctx, alice.ID, domain.DatasetCreate{Name: "iris", Description: "flowers", IsPublic: true})
	require.NoError(t, err)

	// is_public=false - настоящее изменение
	updated, err := env.datasets.Update(ctx, d.ID, alice.ID, domain.DatasetPatch{IsPublic: domain.Some(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)
	assert.Equal(t, "iris", updated.Name)
	assert.Equal(t, "flowers", updated.Description)

	updated, err = env.datasets.Update(ctx, d.ID, alice.ID, domain.DatasetPatch{Description: domain.Null[string]()})
	require.NoError(t, err)
	assert.Empty(t, updated.Description)

	_, err = env.datasets.Update(ctx, d.ID, alice.ID, domain.DatasetPatch{Name: domain.Null[string]()})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.datasets.Update(ctx, 999, alice.ID, domain.DatasetPatch{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDatasetService_ConcurrentUploads(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "busy", true)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.datasets.AddVersion(ctx, d.ID, alice.ID, "part.csv", strings.NewReader("payload"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	versions, err := env.datasets.ListVersions(ctx, d.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, versions, n)

	keys := make(map[string]bool)
	for i, v := range versions {
		assert.Equal(t, i+1, v.VersionNumber)
		keys[v.StorageKey] = true
	}
	assert.Len(t, keys, n)
}

func TestDatasetService_ChecksumAndLatest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "sums", true)

	upload(t, env, d.ID, alice.ID, "a.txt", "first")
	v2 := upload(t, env, d.ID, alice.ID, "../../b.txt", "second")

	sum := blake3.Sum256([]byte("second"))
	assert.Equal(t, hex.EncodeToString(sum[:]), v2.Checksum)
	assert.Equal(t, int64(len("second")), v2.FileSize)
	assert.Equal(t, "b.txt", v2.FileName)

	dl, err := env.datasets.Download(ctx, d.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, dl.Version.VersionNumber)
	assert.Equal(t, "second", readDownload(t, dl))

	_, err = env.datasets.Download(ctx, d.ID, 5, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDatasetService_BlobFailureLeavesNoVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "fragile", true)

	storage := &mockStorage{}
	storage.On("Put", mock.Anything, mock.MatchedBy(func(key string) bool {
		return strings.HasPrefix(key, "datasets/1/") && strings.HasSuffix(key, "/a.csv")
	}), mock.Anything).
		Return(int64(0), errors.New("connection reset"))

	svc := NewDatasetService(env.store.Datasets(), env.store.Users(), storage)
	_, err := svc.AddVersion(ctx, d.ID, alice.ID, "a.csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrIOFailure)

	versions, err := svc.ListVersions(ctx, d.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	storage.AssertExpectations(t)
	storage.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestDatasetService_ForbiddenUploadWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")
	d := env.createDataset(t, alice.ID, "guarded", true)

	storage := &mockStorage{}
	svc := NewDatasetService(env.store.Datasets(), env.store.Users(), storage)

	_, err := svc.AddVersion(ctx, d.ID, bob.ID, "a.csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.AddVersion(ctx, 999, alice.ID, "a.csv", strings.NewReader("x"))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	storage.AssertNotCalled(t, "Put", mock.Anything, mock.Anything, mock.Anything)
}

func TestDatasetService_SameFileNameGetsDistinctKeys(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "dup", true)

	v1 := upload(t, env, d.ID, alice.ID, "data.csv", "one")
	v2 := upload(t, env, d.ID, alice.ID, "data.csv", "two")

	assert.NotEqual(t, v1.StorageKey, v2.StorageKey)
	for _, v := range []*domain.DatasetVersion{v1, v2} {
		assert.True(t, strings.HasPrefix(v.StorageKey, blob.DatasetPrefix(d.ID)))
		assert.True(t, strings.HasSuffix(v.StorageKey, "/data.csv"))
		// ключ не зависит от номера версии
		assert.NotContains(t, v.StorageKey, "/v1/")
		assert.NotContains(t, v.StorageKey, "/v2/")
	}
}

// stallingReader отдает данные только после release
type stallingReader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
	data    io.Reader
}

func newStallingReader(content string) *stallingReader {
	return &stallingReader{
		started: make(chan struct{}),
		release: make(chan struct{}),
		data:    strings.NewReader(content),
	}
}

func (r *stallingReader) Read(p []byte) (int, error) {
	r.once.Do(func() { close(r.started) })
	<-r.release
	return r.data.Read(p)
}

func TestDatasetService_SlowUploadDoesNotBlockDataset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "slow", true)
	upload(t, env, d.ID, alice.ID, "first.csv", "first")

	r := newStallingReader("payload")
	type result struct {
		v   *domain.DatasetVersion
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := env.datasets.AddVersion(ctx, d.ID, alice.ID, "slow.csv", r)
		done <- result{v, err}
	}()

	select {
	case <-r.started:
	case <-time.After(5 * time.Second):
		t.Fatal("upload did not start reading")
	}

	// пока загрузка стоит, изменения и чтения датасета проходят
	updated := make(chan error, 1)
	go func() {
		_, err := env.datasets.Update(ctx, d.ID, alice.ID, domain.DatasetPatch{Description: domain.Some("edited")})
		if err == nil {
			_, err = env.datasets.AddVersion(ctx, d.ID, alice.ID, "quick.csv", strings.NewReader("quick"))
		}
		updated <- err
	}()

	select {
	case err := <-updated:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		close(r.release)
		t.Fatal("update blocked by an in-flight upload")
	}

	close(r.release)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 3, res.v.VersionNumber)
	assert.Equal(t, int64(len("payload")), res.v.FileSize)

	detail, err := env.datasets.Get(ctx, d.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", detail.Description)
	require.Len(t, detail.Versions, 3)
	assert.Equal(t, "quick.csv", detail.Versions[1].FileName)
	assert.Equal(t, "slow.csv", detail.Versions[2].FileName)
}

// failingAppendRepo записывает объект, но не сохраняет метаданные
type failingAppendRepo struct {
	*memory.DatasetRepository
}

func (r failingAppendRepo) AppendVersion(ctx context.Context, datasetID int64, stage domain.VersionStage) (*domain.DatasetVersion, error) {
	return r.DatasetRepository.AppendVersion(ctx, datasetID, func(d *domain.Dataset, n int) (*domain.DatasetVersion, error) {
		if _, err := stage(d, n); err != nil {
			return nil, err
		}
		return nil, errors.New("insert failed")
	})
}

func TestDatasetService_MetadataFailureDeletesBlob(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "flaky", true)

	svc := NewDatasetService(failingAppendRepo{env.store.Datasets()}, env.store.Users(), env.blobs)
	_, err := svc.AddVersion(ctx, d.ID, alice.ID, "a.csv", strings.NewReader("bytes"))
	require.Error(t, err)

	objects, err := env.blobs.List(ctx, blob.RootPrefix)
	require.NoError(t, err)
	assert.Empty(t, objects)

	versions, err := env.datasets.ListVersions(ctx, d.ID, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	// номер не израсходован
	v := upload(t, env, d.ID, alice.ID, "a.csv", "bytes")
	assert.Equal(t, 1, v.VersionNumber)
}

func TestDatasetService_DownloadStorageFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	d := env.createDataset(t, alice.ID, "gone", true)
	v := upload(t, env, d.ID, alice.ID, "a.csv", "x")

	require.NoError(t, env.blobs.Delete(ctx, v.StorageKey))

	_, err := env.datasets.Download(ctx, d.ID, 1, alice.ID)
	assert.ErrorIs(t, err, domain.ErrIOFailure)

	got, err := env.datasets.Get(ctx, d.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Downloads)
}
