package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/shannn1/echolab-final/model"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// musicRouter wires the music routes the way the server does, so mux path
// variables resolve.
func musicRouter(env *testEnv) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/music", env.handler.AuthMiddleware(env.handler.CreateMusicHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/music/library", env.handler.AuthMiddleware(env.handler.LibraryHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/music/public", env.handler.PublicHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/music/plaza", env.handler.PlazaHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/music/{id}", env.handler.AuthMiddleware(env.handler.UpdateMusicHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/music/{id}/share", env.handler.AuthMiddleware(env.handler.ShareMusicHandler)).Methods(http.MethodPatch)
	router.HandleFunc("/api/music/{id}", env.handler.AuthMiddleware(env.handler.DeleteMusicHandler)).Methods(http.MethodDelete)
	return router
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateMusicFromJSONBody(t *testing.T) {
	env := newTestEnv(t.TempDir())
	user := env.seedUser("nova", "nova@example.com", "hunter22")
	router := musicRouter(env)
	token := env.tokenFor(user.ID, user.Username)

	rec := doJSON(t, router, http.MethodPost, "/api/music", CreateMusicRequest{
		Title:    "First Clip",
		AudioURL: "http://minio.local/echolab/generated/1-a.mp3",
		RoomID:   "r1",
		IsPublic: true,
	}, token)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var music model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &music))
	assert.Equal(t, "First Clip", music.Title)
	assert.Equal(t, user.ID, music.CreatorID)
	assert.Equal(t, "r1", music.RoomID)
	assert.True(t, music.IsPublic)
	assert.NotZero(t, music.ID)
}

func TestCreateMusicRequiresTitleAndAudio(t *testing.T) {
	env := newTestEnv(t.TempDir())
	user := env.seedUser("nova", "nova@example.com", "hunter22")
	router := musicRouter(env)
	token := env.tokenFor(user.ID, user.Username)

	rec := doJSON(t, router, http.MethodPost, "/api/music", CreateMusicRequest{AudioURL: "http://x/a.mp3"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/music", CreateMusicRequest{Title: "No Audio"}, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateMusicMultipartStoresUpload(t *testing.T) {
	uploadDir := t.TempDir()
	env := newTestEnv(uploadDir)
	user := env.seedUser("nova", "nova@example.com", "hunter22")
	router := musicRouter(env)

	body, contentType := multipartBody(t, map[string]string{
		"title":    "Uploaded Clip",
		"isPublic": "true",
	}, "audio", "my sample!.mp3", []byte("fake-mp3-bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/music", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+env.tokenFor(user.ID, user.Username))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var music model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &music))
	assert.True(t, music.IsPublic)
	require.NotEmpty(t, music.AudioURL)

	// The file landed on disk with the sanitized name.
	data, err := os.ReadFile(filepath.FromSlash(music.AudioURL))
	require.NoError(t, err)
	assert.Equal(t, []byte("fake-mp3-bytes"), data)
	assert.NotContains(t, filepath.Base(music.AudioURL), "!")
	assert.NotContains(t, filepath.Base(music.AudioURL), " ")
}

func TestLibraryListsOnlyOwnClips(t *testing.T) {
	env := newTestEnv(t.TempDir())
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	bob := env.seedUser("bobby", "bob@example.com", "hunter22")
	router := musicRouter(env)

	env.musicRepo.Create(&model.Music{Title: "A1", AudioURL: "http://x/a1.mp3", CreatorID: alice.ID})
	env.musicRepo.Create(&model.Music{Title: "B1", AudioURL: "http://x/b1.mp3", CreatorID: bob.ID})
	env.musicRepo.Create(&model.Music{Title: "A2", AudioURL: "http://x/a2.mp3", CreatorID: alice.ID})

	rec := doJSON(t, router, http.MethodGet, "/api/music/library", nil, env.tokenFor(alice.ID, alice.Username))
	require.Equal(t, http.StatusOK, rec.Code)

	var items []model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "A1", items[0].Title)
	assert.Equal(t, "A2", items[1].Title)
}

func TestPublicAndPlazaListings(t *testing.T) {
	env := newTestEnv(t.TempDir())
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	router := musicRouter(env)

	env.musicRepo.Create(&model.Music{Title: "Private", AudioURL: "http://x/p.mp3", CreatorID: alice.ID})
	env.musicRepo.Create(&model.Music{Title: "Public", AudioURL: "http://x/pub.mp3", CreatorID: alice.ID, IsPublic: true})
	env.musicRepo.Create(&model.Music{Title: "Plaza", AudioURL: "http://x/pl.mp3", CreatorID: alice.ID, SharedToPlaza: true})

	rec := doJSON(t, router, http.MethodGet, "/api/music/public", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var public []model.MusicWithCreator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &public))
	require.Len(t, public, 1)
	assert.Equal(t, "Public", public[0].Title)
	assert.Equal(t, "alice", public[0].CreatorName)
	assert.Empty(t, public[0].CreatorEmail)

	rec = doJSON(t, router, http.MethodGet, "/api/music/plaza", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var plaza []model.MusicWithCreator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plaza))
	require.Len(t, plaza, 1)
	assert.Equal(t, "Plaza", plaza[0].Title)
	assert.Equal(t, "alice@example.com", plaza[0].CreatorEmail)
}

func TestPublicListingNewestFirstExcludesPrivate(t *testing.T) {
	env := newTestEnv(t.TempDir())
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	router := musicRouter(env)

	// Created oldest to newest; only the first and third are public.
	env.musicRepo.Create(&model.Music{Title: "Oldest", AudioURL: "http://x/1.mp3", CreatorID: alice.ID, IsPublic: true})
	env.musicRepo.Create(&model.Music{Title: "Hidden", AudioURL: "http://x/2.mp3", CreatorID: alice.ID})
	env.musicRepo.Create(&model.Music{Title: "Newest", AudioURL: "http://x/3.mp3", CreatorID: alice.ID, IsPublic: true})

	rec := doJSON(t, router, http.MethodGet, "/api/music/public", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var items []model.MusicWithCreator
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "Newest", items[0].Title)
	assert.Equal(t, "Oldest", items[1].Title)
}

func TestUpdateMusicOwnershipGuard(t *testing.T) {
	env := newTestEnv(t.TempDir())
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	bob := env.seedUser("bobby", "bob@example.com", "hunter22")
	router := musicRouter(env)

	clip := &model.Music{Title: "Original", AudioURL: "http://x/a.mp3", CreatorID: alice.ID}
	require.NoError(t, env.musicRepo.Create(clip))

	newTitle := "Renamed"
	rec := doJSON(t, router, http.MethodPut, "/api/music/1", UpdateMusicRequest{Title: &newTitle},
		env.tokenFor(bob.ID, bob.Username))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authorized", decodeBody(t, rec)["message"])

	rec = doJSON(t, router, http.MethodPut, "/api/music/1", UpdateMusicRequest{Title: &newTitle},
		env.tokenFor(alice.ID, alice.Username))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "Renamed", updated.Title)

	rec = doJSON(t, router, http.MethodPut, "/api/music/999", UpdateMusicRequest{Title: &newTitle},
		env.tokenFor(alice.ID, alice.Username))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShareMusicToggle(t *testing.T) {
	env := newTestEnv(t.TempDir())
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	router := musicRouter(env)
	token := env.tokenFor(alice.ID, alice.Username)

	require.NoError(t, env.musicRepo.Create(&model.Music{Title: "Clip", AudioURL: "http://x/a.mp3", CreatorID: alice.ID}))

	rec := doJSON(t, router, http.MethodPatch, "/api/music/1/share", ShareMusicRequest{SharedToPlaza: true}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	var shared model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.True(t, shared.SharedToPlaza)

	rec = doJSON(t, router, http.MethodPatch, "/api/music/1/share", ShareMusicRequest{SharedToPlaza: false}, token)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &shared))
	assert.False(t, shared.SharedToPlaza)
}

func TestDeleteMusicRemovesLocalFileOnly(t *testing.T) {
	uploadDir := t.TempDir()
	env := newTestEnv(uploadDir)
	alice := env.seedUser("alice", "alice@example.com", "hunter22")
	router := musicRouter(env)
	token := env.tokenFor(alice.ID, alice.Username)

	localPath := filepath.ToSlash(filepath.Join(uploadDir, "1-sample.mp3"))
	require.NoError(t, os.WriteFile(filepath.FromSlash(localPath), []byte("bytes"), 0644))

	require.NoError(t, env.musicRepo.Create(&model.Music{Title: "Local", AudioURL: localPath, CreatorID: alice.ID}))
	require.NoError(t, env.musicRepo.Create(&model.Music{Title: "Remote", AudioURL: "http://minio.local/echolab/generated/x.mp3", CreatorID: alice.ID}))

	rec := doJSON(t, router, http.MethodDelete, "/api/music/1", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	_, err := os.Stat(filepath.FromSlash(localPath))
	assert.True(t, os.IsNotExist(err))

	rec = doJSON(t, router, http.MethodDelete, "/api/music/2", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/music/library", nil, token)
	var items []model.Music
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	assert.Empty(t, items)
}
