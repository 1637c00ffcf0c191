package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shannn1/echolab-final/logger"
	"github.com/shannn1/echolab-final/model"
	"github.com/shannn1/echolab-final/repository"

	"github.com/gorilla/mux"
)

// maxUploadSize bounds uploaded audio samples.
const maxUploadSize = 100 << 20 // 100MB

var nonAlphaNumeric = regexp.MustCompile(`[^a-zA-Z0-9_\-\.]`)
var multipleSpaces = regexp.MustCompile(`\s+`)

// sanitizeFilename makes an uploaded filename safe for local storage.
func sanitizeFilename(name string) string {
	base := strings.TrimSpace(filepath.Base(name))
	base = multipleSpaces.ReplaceAllString(base, "_")
	base = nonAlphaNumeric.ReplaceAllString(base, "")
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	if base == "" || base == "." {
		base = "audio.mp3"
	}
	return base
}

// CreateMusicRequest is the JSON body variant of music creation, used when
// the audio already lives at a URL (e.g. a fresh generation result).
type CreateMusicRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	AudioURL    string `json:"audioUrl"`
	RoomID      string `json:"roomId"`
	IsPublic    bool   `json:"isPublic"`
}

// CreateMusicHandler persists a new clip owned by the caller. The audio
// comes either as a multipart "audio" file (stored locally) or as an
// explicit audioUrl in a JSON body; one of the two is required.
func (h *APIHandler) CreateMusicHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	music := &model.Music{CreatorID: userID}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
			return
		}

		music.Title = r.FormValue("title")
		music.Description = r.FormValue("description")
		music.RoomID = r.FormValue("roomId")
		music.IsPublic, _ = strconv.ParseBool(r.FormValue("isPublic"))

		file, header, err := r.FormFile("audio")
		if err == nil {
			defer file.Close()
			localPath, err := h.saveUpload(file, header.Filename)
			if err != nil {
				logger.Error("[CreateMusic] failed to store upload", logger.ErrorField(err))
				writeMessage(w, http.StatusInternalServerError, "Failed to store audio file")
				return
			}
			music.AudioURL = localPath
		} else {
			music.AudioURL = r.FormValue("audioUrl")
		}
	} else {
		var req CreateMusicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		music.Title = req.Title
		music.Description = req.Description
		music.AudioURL = req.AudioURL
		music.RoomID = req.RoomID
		music.IsPublic = req.IsPublic
	}

	if music.Title == "" {
		writeMessage(w, http.StatusBadRequest, "Title is required")
		return
	}
	if music.AudioURL == "" {
		writeMessage(w, http.StatusBadRequest, "Audio file or audioUrl is required")
		return
	}

	if err := h.musicRepo.Create(music); err != nil {
		logger.Error("[CreateMusic] failed to persist", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	logger.Info("[CreateMusic] clip created",
		logger.Int64("musicId", music.ID),
		logger.Int64("userId", userID),
		logger.String("roomId", music.RoomID))

	writeJSON(w, http.StatusOK, music)
}

// saveUpload stores an uploaded sample under the local uploads directory
// with a timestamp-prefixed name and returns the stored path.
func (h *APIHandler) saveUpload(file io.Reader, originalName string) (string, error) {
	if err := os.MkdirAll(h.cfg.UploadDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	filename := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitizeFilename(originalName))
	localPath := filepath.Join(h.cfg.UploadDir, filename)

	out, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(localPath)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	return filepath.ToSlash(localPath), nil
}

// LibraryHandler returns every clip owned by the caller.
func (h *APIHandler) LibraryHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	items, err := h.musicRepo.ListByCreator(userID)
	if err != nil {
		logger.Error("[Library] listing failed", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// PublicHandler returns all public clips with creator usernames, newest first.
func (h *APIHandler) PublicHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.musicRepo.ListPublic()
	if err != nil {
		logger.Error("[Public] listing failed", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// PlazaHandler returns all plaza-shared clips with creator identity.
func (h *APIHandler) PlazaHandler(w http.ResponseWriter, r *http.Request) {
	items, err := h.musicRepo.ListPlaza()
	if err != nil {
		logger.Error("[Plaza] listing failed", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// authorizeMusic loads a clip and verifies the caller owns it, writing the
// error response itself when the check fails. All mutating music endpoints
// share this guard.
func (h *APIHandler) authorizeMusic(w http.ResponseWriter, r *http.Request) (*model.Music, bool) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return nil, false
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid music ID")
		return nil, false
	}

	music, err := h.musicRepo.GetByID(id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeMessage(w, http.StatusNotFound, "Music not found")
			return nil, false
		}
		logger.Error("[Music] lookup failed", logger.Int64("musicId", id), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return nil, false
	}

	if music.CreatorID != userID {
		logger.Warn("[Music] caller is not the owner",
			logger.Int64("musicId", id),
			logger.Int64("userId", userID),
			logger.Int64("ownerId", music.CreatorID))
		writeMessage(w, http.StatusUnauthorized, "Not authorized")
		return nil, false
	}
	return music, true
}

// UpdateMusicRequest carries the patchable clip fields.
type UpdateMusicRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsPublic    *bool   `json:"isPublic"`
}

// UpdateMusicHandler applies a partial patch to a clip the caller owns.
func (h *APIHandler) UpdateMusicHandler(w http.ResponseWriter, r *http.Request) {
	music, ok := h.authorizeMusic(w, r)
	if !ok {
		return
	}

	var req UpdateMusicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.musicRepo.Update(music.ID, repository.MusicUpdate{
		Title:       req.Title,
		Description: req.Description,
		IsPublic:    req.IsPublic,
	})
	if err != nil {
		logger.Error("[UpdateMusic] update failed", logger.Int64("musicId", music.ID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// ShareMusicRequest flips the plaza-sharing flag.
type ShareMusicRequest struct {
	SharedToPlaza bool `json:"sharedToPlaza"`
}

// ShareMusicHandler toggles plaza sharing on a clip the caller owns.
func (h *APIHandler) ShareMusicHandler(w http.ResponseWriter, r *http.Request) {
	music, ok := h.authorizeMusic(w, r)
	if !ok {
		return
	}

	var req ShareMusicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.musicRepo.SetPlazaShare(music.ID, req.SharedToPlaza)
	if err != nil {
		logger.Error("[ShareMusic] share toggle failed", logger.Int64("musicId", music.ID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteMusicHandler deletes a clip the caller owns. When the audio lives on
// the local filesystem the backing file is removed too; remote URLs are left
// untouched.
func (h *APIHandler) DeleteMusicHandler(w http.ResponseWriter, r *http.Request) {
	music, ok := h.authorizeMusic(w, r)
	if !ok {
		return
	}

	if isLocalAudioPath(music.AudioURL) {
		if err := os.Remove(music.AudioURL); err != nil && !os.IsNotExist(err) {
			logger.Warn("[DeleteMusic] failed to remove local file",
				logger.String("path", music.AudioURL),
				logger.ErrorField(err))
		}
	}

	if err := h.musicRepo.Delete(music.ID); err != nil {
		logger.Error("[DeleteMusic] delete failed", logger.Int64("musicId", music.ID), logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	logger.Info("[DeleteMusic] clip removed", logger.Int64("musicId", music.ID))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Music removed"})
}

// isLocalAudioPath reports whether an audio location is a local filesystem
// path rather than an external URL.
func isLocalAudioPath(audioURL string) bool {
	return audioURL != "" &&
		!strings.HasPrefix(audioURL, "http://") &&
		!strings.HasPrefix(audioURL, "https://") &&
		!strings.HasPrefix(audioURL, "//")
}
