package server

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shannn1/echolab-final/config"
	"github.com/shannn1/echolab-final/core/auth"
	"github.com/shannn1/echolab-final/core/generate"
	"github.com/shannn1/echolab-final/core/relay"
	"github.com/shannn1/echolab-final/model"
	"github.com/shannn1/echolab-final/repository"
)

// mockUserRepo is an in-memory UserRepository.
type mockUserRepo struct {
	mu        sync.Mutex
	users     map[int64]*model.User
	favorites map[int64][]int64
	nextID    int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		users:     make(map[int64]*model.User),
		favorites: make(map[int64][]int64),
	}
}

func (m *mockUserRepo) CreateUser(user *model.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return 0, repository.ErrDuplicateUser
		}
	}
	m.nextID++
	stored := *user
	stored.ID = m.nextID
	stored.CreatedAt = time.Now()
	m.users[stored.ID] = &stored
	return stored.ID, nil
}

func (m *mockUserRepo) GetUserByID(id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	out := *user
	out.Favorites = append([]int64(nil), m.favorites[id]...)
	return &out, nil
}

func (m *mockUserRepo) GetUserByEmail(email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.Email == email {
			out := *user
			return &out, nil
		}
	}
	return nil, nil
}

func (m *mockUserRepo) UpdateMusicIntro(userID int64, musicIntro string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return fmt.Errorf("user %d not found", userID)
	}
	user.MusicIntro = musicIntro
	return nil
}

func (m *mockUserRepo) AddFavorite(userID, musicID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.favorites[userID] {
		if id == musicID {
			return nil
		}
	}
	m.favorites[userID] = append(m.favorites[userID], musicID)
	return nil
}

func (m *mockUserRepo) RemoveFavorite(userID, musicID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	favs := m.favorites[userID]
	for i, id := range favs {
		if id == musicID {
			m.favorites[userID] = append(favs[:i], favs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *mockUserRepo) GetFavorites(userID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.favorites[userID]...), nil
}

// mockMusicRepo is an in-memory MusicRepository. Creator names come from the
// usernames map, mirroring the join the real repository performs.
type mockMusicRepo struct {
	mu        sync.Mutex
	items     map[int64]*model.Music
	usernames map[int64]string
	emails    map[int64]string
	nextID    int64
}

func newMockMusicRepo() *mockMusicRepo {
	return &mockMusicRepo{
		items:     make(map[int64]*model.Music),
		usernames: make(map[int64]string),
		emails:    make(map[int64]string),
	}
}

func (m *mockMusicRepo) Create(music *model.Music) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	music.ID = m.nextID
	music.CreatedAt = time.Now()
	music.UpdatedAt = music.CreatedAt
	stored := *music
	m.items[music.ID] = &stored
	return nil
}

func (m *mockMusicRepo) GetByID(id int64) (*model.Music, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	music, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *music
	return &out, nil
}

func (m *mockMusicRepo) ListByCreator(creatorID int64) ([]model.Music, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Music
	for _, id := range m.sortedIDs(false) {
		if m.items[id].CreatorID == creatorID {
			out = append(out, *m.items[id])
		}
	}
	return out, nil
}

func (m *mockMusicRepo) ListPublic() ([]model.MusicWithCreator, error) {
	return m.listWhere(func(mus *model.Music) bool { return mus.IsPublic }, false)
}

func (m *mockMusicRepo) ListPlaza() ([]model.MusicWithCreator, error) {
	return m.listWhere(func(mus *model.Music) bool { return mus.SharedToPlaza }, true)
}

func (m *mockMusicRepo) listWhere(keep func(*model.Music) bool, withEmail bool) ([]model.MusicWithCreator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.MusicWithCreator
	for _, id := range m.sortedIDs(true) {
		music := m.items[id]
		if !keep(music) {
			continue
		}
		item := model.MusicWithCreator{Music: *music, CreatorName: m.usernames[music.CreatorID]}
		if withEmail {
			item.CreatorEmail = m.emails[music.CreatorID]
		}
		out = append(out, item)
	}
	return out, nil
}

// sortedIDs returns item IDs in insertion order, newest first when desc.
func (m *mockMusicRepo) sortedIDs(desc bool) []int64 {
	ids := make([]int64, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if desc {
			return ids[i] > ids[j]
		}
		return ids[i] < ids[j]
	})
	return ids
}

func (m *mockMusicRepo) Update(id int64, patch repository.MusicUpdate) (*model.Music, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	music, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if patch.Title != nil {
		music.Title = *patch.Title
	}
	if patch.Description != nil {
		music.Description = *patch.Description
	}
	if patch.IsPublic != nil {
		music.IsPublic = *patch.IsPublic
	}
	music.UpdatedAt = time.Now()
	out := *music
	return &out, nil
}

func (m *mockMusicRepo) SetPlazaShare(id int64, shared bool) (*model.Music, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	music, ok := m.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	music.SharedToPlaza = shared
	music.UpdatedAt = time.Now()
	out := *music
	return &out, nil
}

func (m *mockMusicRepo) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.items, id)
	return nil
}

// testEnv bundles a handler with its mocks for HTTP-level tests.
type testEnv struct {
	handler   *APIHandler
	userRepo  *mockUserRepo
	musicRepo *mockMusicRepo
	issuer    *auth.TokenIssuer
	hub       *relay.Hub
}

func newTestEnv(uploadDir string) *testEnv {
	userRepo := newMockUserRepo()
	musicRepo := newMockMusicRepo()
	issuer := auth.NewTokenIssuer("test-secret")
	hub := relay.NewHub(nil)

	cfg := &config.Config{
		JWTSecret: "test-secret",
		UploadDir: uploadDir,
	}

	return &testEnv{
		handler:   NewAPIHandler(userRepo, musicRepo, nil, nil, hub, nil, issuer, cfg),
		userRepo:  userRepo,
		musicRepo: musicRepo,
		issuer:    issuer,
		hub:       hub,
	}
}

// withGateway swaps in a generation gateway built from fakes.
func (e *testEnv) withGateway(gw *generate.Gateway) *testEnv {
	e.handler.gateway = gw
	return e
}

// tokenFor issues a bearer token for tests.
func (e *testEnv) tokenFor(userID int64, username string) string {
	token, err := e.issuer.GenerateToken(userID, username)
	if err != nil {
		panic(err)
	}
	return token
}

// seedUser registers a user directly against the mock repository.
func (e *testEnv) seedUser(username, email, password string) *model.User {
	hash, err := auth.HashPassword(password)
	if err != nil {
		panic(err)
	}
	user := &model.User{Username: username, Email: email, PasswordHash: hash}
	id, err := e.userRepo.CreateUser(user)
	if err != nil {
		panic(err)
	}
	user.ID = id
	e.musicRepo.usernames[id] = username
	e.musicRepo.emails[id] = email
	return user
}
