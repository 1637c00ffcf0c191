package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/shannn1/echolab-final/core/generate"
	"github.com/shannn1/echolab-final/logger"
	"github.com/shannn1/echolab-final/model"
)

// GenerateResponse is the generation endpoint's success body. Music is only
// present when the caller asked to save the result and was authenticated.
type GenerateResponse struct {
	AudioURL string       `json:"audioUrl"`
	Music    *model.Music `json:"music,omitempty"`
}

// GenerateMusicHandler runs one audio-to-audio generation. Authentication is
// optional; anonymous callers can generate but not save. The provider call
// can take up to two minutes, so the request context is what bounds it.
func (h *APIHandler) GenerateMusicHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	req := &generate.Request{
		Prompt:       r.FormValue("prompt"),
		Duration:     parseIntField(r.FormValue("duration")),
		OutputFormat: r.FormValue("output_format"),
		Steps:        parseIntField(r.FormValue("steps")),
		CfgScale:     parseFloatField(r.FormValue("cfg_scale")),
		Strength:     parseFloatField(r.FormValue("strength")),
		Seed:         r.FormValue("seed"),
	}

	file, header, err := r.FormFile("audio")
	if err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			logger.Error("[Generate] reading uploaded sample failed", logger.ErrorField(err))
			writeMessage(w, http.StatusBadRequest, "Failed to read audio file")
			return
		}
		req.AudioData = data
		req.Filename = header.Filename
	}

	audioURL, err := h.gateway.Generate(r.Context(), req)
	if err != nil {
		if errors.Is(err, generate.ErrInvalidInput) {
			writeMessage(w, http.StatusBadRequest, "Audio file and prompt are required")
			return
		}
		var genErr *generate.GenerationError
		if errors.As(err, &genErr) {
			logger.Error("[Generate] generation failed",
				logger.String("stage", genErr.Stage),
				logger.Int("providerStatus", genErr.Status),
				logger.String("detail", genErr.Detail))
		} else {
			logger.Error("[Generate] generation failed", logger.ErrorField(err))
		}
		writeMessage(w, http.StatusInternalServerError, "Failed to generate music.")
		return
	}

	resp := GenerateResponse{AudioURL: audioURL}

	// Save only works for authenticated callers; anonymous save requests
	// still return the audio URL.
	save, _ := strconv.ParseBool(r.FormValue("save"))
	if save {
		if claims, err := h.claimsFromRequest(r); err == nil {
			music := &model.Music{
				Title:       r.FormValue("title"),
				Description: r.FormValue("description"),
				AudioURL:    audioURL,
				CreatorID:   claims.UserID,
				RoomID:      r.FormValue("roomId"),
				Params: &model.GenerationParams{
					Prompt:       req.Prompt,
					Duration:     req.Duration,
					OutputFormat: req.OutputFormat,
					Steps:        req.Steps,
					CfgScale:     req.CfgScale,
					Strength:     req.Strength,
					Seed:         req.Seed,
				},
			}
			if music.Title == "" {
				music.Title = req.Prompt
			}
			if err := h.musicRepo.Create(music); err != nil {
				logger.Error("[Generate] saving generated clip failed",
					logger.Int64("userId", claims.UserID),
					logger.ErrorField(err))
			} else {
				resp.Music = music
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func parseIntField(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}

func parseFloatField(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
