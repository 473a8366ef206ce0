package service

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"datasethub/internal/auth"
	"datasethub/internal/domain"
	"datasethub/internal/repository/memory"
	"datasethub/internal/service/blob"
	"datasethub/internal/service/localfs"
)

type testEnv struct {
	store    *memory.Store
	blobs    *localfs.Store
	users    *UserService
	datasets *DatasetService
	auth     *auth.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	authService, err := auth.NewService(&auth.Config{SigningKey: "test-signing-key"})
	require.NoError(t, err)

	store := memory.NewStore()
	blobs := localfs.NewStore(afero.NewMemMapFs())

	return &testEnv{
		store:    store,
		blobs:    blobs,
		users:    NewUserService(store.Users(), authService, authService),
		datasets: NewDatasetService(store.Datasets(), store.Users(), blobs),
		auth:     authService,
	}
}

func (e *testEnv) register(t *testing.T, username string) *domain.User {
	t.Helper()
	user, err := e.users.Register(context.Background(), domain.UserRegistration{
		Username: username,
		Email:    username + "@example.com",
		Password: "secret-" + username,
	})
	require.NoError(t, err)
	return user
}

func (e *testEnv) createDataset(t *testing.T, ownerID int64, name string, public bool) *domain.Dataset {
	t.Helper()
	d, err := e.datasets.Create(context.Background(), ownerID, domain.DatasetCreate{Name: name, IsPublic: public})
	require.NoError(t, err)
	return d
}

// mockStorage - blob.Storage на testify/mock
type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) Put(ctx context.Context, key string, r io.Reader) (int64, error) {
	args := m.Called(ctx, key, r)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockStorage) Get(ctx context.Context, key string) (blob.Object, error) {
	args := m.Called(ctx, key)
	obj, _ := args.Get(0).(blob.Object)
	return obj, args.Error(1)
}

func (m *mockStorage) Delete(ctx context.Context, key string) error {
	return m.Called(ctx, key).Error(0)
}

func (m *mockStorage) List(ctx context.Context, prefix string) ([]blob.ObjectInfo, error) {
	args := m.Called(ctx, prefix)
	objects, _ := args.Get(0).([]blob.ObjectInfo)
	return objects, args.Error(1)
}
