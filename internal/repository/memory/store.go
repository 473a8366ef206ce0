// Package memory implements the user and dataset repositories in process memory.
// It backs the "memory" database driver for local runs and the service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"datasethub/internal/domain"
)

// Store хранит пользователей, датасеты и версии под одним мьютексом.
// Репозитории получаются через Users и Datasets.
type Store struct {
	mu sync.RWMutex

	nextUserID    int64
	nextDatasetID int64
	nextVersionID int64

	users    map[int64]*domain.User
	datasets map[int64]*domain.Dataset
	versions map[int64][]*domain.DatasetVersion

	// блокировки датасетов для Update/Delete/AppendVersion
	locks map[int64]*sync.Mutex

	now func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:    make(map[int64]*domain.User),
		datasets: make(map[int64]*domain.Dataset),
		versions: make(map[int64][]*domain.DatasetVersion),
		locks:    make(map[int64]*sync.Mutex),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Users возвращает репозиторий пользователей
func (s *Store) Users() *UserRepository {
	return &UserRepository{s: s}
}

// Datasets возвращает репозиторий датасетов
func (s *Store) Datasets() *DatasetRepository {
	return &DatasetRepository{s: s}
}

type UserRepository struct {
	s *Store
}

type DatasetRepository struct {
	s *Store
}

func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	// конфликт по email сообщается раньше конфликта по username
	for _, u := range s.users {
		if u.Email == user.Email {
			return fmt.Errorf("%w: email %s", domain.ErrConflict, user.Email)
		}
	}
	for _, u := range s.users {
		if u.Username == user.Username {
			return fmt.Errorf("%w: username %s", domain.ErrConflict, user.Username)
		}
	}

	s.nextUserID++
	now := s.now()
	user.ID = s.nextUserID
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.users[user.ID] = &stored
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}
	user := *u
	return &user, nil
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.Username == username }, "username "+username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findUser(func(u *domain.User) bool { return u.Email == email }, "email "+email)
}

func (r *UserRepository) findUser(match func(*domain.User) bool, what string) (*domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if match(u) {
			user := *u
			return &user, nil
		}
	}
	return nil, fmt.Errorf("%w: user with %s", domain.ErrNotFound, what)
}

func (r *UserRepository) UpdateProfile(ctx context.Context, id int64, patch domain.ProfilePatch) (*domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", domain.ErrNotFound, id)
	}

	patch.Apply(u)
	u.UpdatedAt = s.now()

	user := *u
	return &user, nil
}

func (s *Store) datasetLock(id int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Create сохраняет новый датасет. Владелец должен существовать.
func (r *DatasetRepository) Create(ctx context.Context, dataset *domain.Dataset) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[dataset.OwnerID]; !ok {
		return fmt.Errorf("%w: owner %d", domain.ErrNotFound, dataset.OwnerID)
	}

	s.nextDatasetID++
	now := s.now()
	dataset.ID = s.nextDatasetID
	dataset.Downloads = 0
	dataset.CreatedAt = now
	dataset.UpdatedAt = now

	stored := *dataset
	s.datasets[dataset.ID] = &stored
	return nil
}

func (r *DatasetRepository) GetByID(ctx context.Context, id int64) (*domain.Dataset, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %d", domain.ErrNotFound, id)
	}
	dataset := *d
	return &dataset, nil
}

func (r *DatasetRepository) ListPublic(ctx context.Context, offset, limit int) ([]domain.Dataset, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	public := make([]domain.Dataset, 0)
	for _, d := range s.datasets {
		if d.IsPublic {
			public = append(public, *d)
		}
	}
	sort.Slice(public, func(i, j int) bool { return public[i].ID < public[j].ID })

	if offset >= len(public) {
		return []domain.Dataset{}, nil
	}
	end := offset + limit
	if end > len(public) {
		end = len(public)
	}
	return public[offset:end], nil
}

func (r *DatasetRepository) Update(ctx context.Context, id int64, mutate domain.DatasetMutation) (*domain.Dataset, error) {
	s := r.s
	l := s.datasetLock(id)
	l.Lock()
	defer l.Unlock()

	dataset, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ownerID := dataset.OwnerID
	if err := mutate(dataset); err != nil {
		return nil, err
	}
	dataset.OwnerID = ownerID
	dataset.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.datasets[id]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %d", domain.ErrNotFound, id)
	}
	stored.Name = dataset.Name
	stored.Description = dataset.Description
	stored.IsPublic = dataset.IsPublic
	stored.UpdatedAt = dataset.UpdatedAt

	result := *stored
	return &result, nil
}

func (r *DatasetRepository) Delete(ctx context.Context, id int64, check domain.DatasetMutation) ([]domain.DatasetVersion, error) {
	s := r.s
	l := s.datasetLock(id)
	l.Lock()
	defer l.Unlock()

	dataset, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := check(dataset); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make([]domain.DatasetVersion, 0, len(s.versions[id]))
	for _, v := range s.versions[id] {
		removed = append(removed, *v)
	}

	delete(s.datasets, id)
	delete(s.versions, id)
	delete(s.locks, id)

	return removed, nil
}

func (r *DatasetRepository) AppendVersion(ctx context.Context, datasetID int64, stage domain.VersionStage) (*domain.DatasetVersion, error) {
	s := r.s
	l := s.datasetLock(datasetID)
	l.Lock()
	defer l.Unlock()

	dataset, err := r.GetByID(ctx, datasetID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	number := len(s.versions[datasetID]) + 1
	s.mu.RUnlock()

	version, err := stage(dataset, number)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.datasets[datasetID]
	if !ok {
		return nil, fmt.Errorf("%w: dataset %d", domain.ErrNotFound, datasetID)
	}

	s.nextVersionID++
	version.ID = s.nextVersionID
	version.DatasetID = datasetID
	version.VersionNumber = number
	version.DownloadCount = 0
	version.CreatedAt = s.now()

	v := *version
	s.versions[datasetID] = append(s.versions[datasetID], &v)
	stored.UpdatedAt = version.CreatedAt

	return version, nil
}

func (r *DatasetRepository) GetVersions(ctx context.Context, datasetID int64) ([]domain.DatasetVersion, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := make([]domain.DatasetVersion, 0, len(s.versions[datasetID]))
	for _, v := range s.versions[datasetID] {
		versions = append(versions, *v)
	}
	return versions, nil
}

func (r *DatasetRepository) GetVersion(ctx context.Context, datasetID int64, versionNumber int) (*domain.DatasetVersion, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	versions := s.versions[datasetID]
	if versionNumber == 0 && len(versions) > 0 {
		v := *versions[len(versions)-1]
		return &v, nil
	}
	for _, v := range versions {
		if v.VersionNumber == versionNumber {
			version := *v
			return &version, nil
		}
	}
	return nil, fmt.Errorf("%w: version %d of dataset %d", domain.ErrNotFound, versionNumber, datasetID)
}

func (r *DatasetRepository) GetVersionByID(ctx context.Context, id int64) (*domain.DatasetVersion, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.ID == id {
				version := *v
				return &version, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: version %d", domain.ErrNotFound, id)
}

func (r *DatasetRepository) RecordDownload(ctx context.Context, datasetID, versionID int64) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	dataset, ok := s.datasets[datasetID]
	if !ok {
		return fmt.Errorf("%w: dataset %d", domain.ErrNotFound, datasetID)
	}
	for _, v := range s.versions[datasetID] {
		if v.ID == versionID {
			v.DownloadCount++
			dataset.Downloads++
			return nil
		}
	}
	return fmt.Errorf("%w: version %d", domain.ErrNotFound, versionID)
}

func (r *DatasetRepository) StorageKeyExists(ctx context.Context, key string) (bool, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, versions := range s.versions {
		for _, v := range versions {
			if v.StorageKey == key {
				return true, nil
			}
		}
	}
	return false, nil
}
