package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/shannn1/echolab-final/cache"
	"github.com/shannn1/echolab-final/config"
	"github.com/shannn1/echolab-final/core/auth"
	"github.com/shannn1/echolab-final/core/generate"
	"github.com/shannn1/echolab-final/core/relay"
	"github.com/shannn1/echolab-final/repository"
)

// ObjectStore is the read side of the object storage layer the handlers
// serve from. *storage.Store satisfies this.
type ObjectStore interface {
	GetObject(ctx context.Context, objectName string) (io.ReadCloser, error)
}

// APIHandler bundles the HTTP handlers with their dependencies. Everything
// is injected; there is no package-level service state.
type APIHandler struct {
	userRepo  repository.UserRepository
	musicRepo repository.MusicRepository
	gateway   *generate.Gateway
	store     ObjectStore
	hub       *relay.Hub
	presence  *cache.RoomPresence
	issuer    *auth.TokenIssuer
	cfg       *config.Config
}

// NewAPIHandler creates the handler set.
func NewAPIHandler(
	userRepo repository.UserRepository,
	musicRepo repository.MusicRepository,
	gateway *generate.Gateway,
	store ObjectStore,
	hub *relay.Hub,
	presence *cache.RoomPresence,
	issuer *auth.TokenIssuer,
	cfg *config.Config,
) *APIHandler {
	return &APIHandler{
		userRepo:  userRepo,
		musicRepo: musicRepo,
		gateway:   gateway,
		store:     store,
		hub:       hub,
		presence:  presence,
		issuer:    issuer,
		cfg:       cfg,
	}
}

// writeJSON writes a JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeMessage writes the {"message": ...} error shape the web client expects.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
