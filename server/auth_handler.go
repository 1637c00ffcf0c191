package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/shannn1/echolab-final/core/auth"
	"github.com/shannn1/echolab-final/logger"
	"github.com/shannn1/echolab-final/model"
	"github.com/shannn1/echolab-final/repository"
)

// RegisterRequest represents the registration request body.
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents the login request body.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,3})+$`)

// RegisterHandler handles user registration requests.
func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Username == "" || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide all required fields")
		return
	}
	if len(req.Username) < 3 {
		writeMessage(w, http.StatusBadRequest, "Username must be at least 3 characters long")
		return
	}
	if len(req.Username) > 30 {
		writeMessage(w, http.StatusBadRequest, "Username cannot be more than 30 characters")
		return
	}
	if !emailPattern.MatchString(req.Email) {
		writeMessage(w, http.StatusBadRequest, "Please enter a valid email")
		return
	}
	if len(req.Password) < 6 {
		writeMessage(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user := &model.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hashedPassword,
	}

	userID, err := h.userRepo.CreateUser(user)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUser) {
			logger.Warn("[Register] email already exists",
				logger.String("email", req.Email))
			writeMessage(w, http.StatusBadRequest, "User already exists")
			return
		}
		logger.Error("[Register] failed to create user", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error during registration")
		return
	}
	user.ID = userID

	token, err := h.issuer.GenerateToken(userID, user.Username)
	if err != nil {
		logger.Error("[Register] failed to generate token", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Error creating authentication token")
		return
	}

	logger.Info("[Register] user registered",
		logger.Int64("userId", userID),
		logger.String("username", user.Username))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user.Summary(),
	})
}

// LoginHandler handles user login requests.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := h.userRepo.GetUserByEmail(req.Email)
	if err != nil {
		logger.Error("[Login] failed to query user", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	// Unknown email and wrong password are indistinguishable to the caller.
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		logger.Warn("[Login] invalid credentials", logger.String("email", req.Email))
		writeMessage(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	token, err := h.issuer.GenerateToken(user.ID, user.Username)
	if err != nil {
		logger.Error("[Login] failed to generate token", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Error creating authentication token")
		return
	}

	logger.Info("[Login] login succeeded", logger.String("username", user.Username))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token,
		"user":  user.Summary(),
	})
}

// MeHandler returns the authenticated user's full profile, password excluded.
func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil {
		logger.Error("[Me] failed to load user", logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	if user == nil {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UpdateProfileRequest carries the mutable profile fields.
type UpdateProfileRequest struct {
	MusicIntro *string `json:"musicIntro"`
}

// UpdateProfileHandler patches the caller's profile blurb.
func (h *APIHandler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.MusicIntro != nil {
		if err := h.userRepo.UpdateMusicIntro(userID, *req.MusicIntro); err != nil {
			logger.Error("[UpdateProfile] failed to update intro", logger.ErrorField(err))
			writeMessage(w, http.StatusInternalServerError, "Server error")
			return
		}
	}

	user, err := h.userRepo.GetUserByID(userID)
	if err != nil || user == nil {
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// FavoriteRequest toggles a clip in the caller's favorites.
type FavoriteRequest struct {
	MusicID int64  `json:"musicId"`
	Action  string `json:"action"` // "add" or "remove"
}

// FavoriteHandler idempotently adds or removes a favorite. The referenced
// clip's existence is not verified.
func (h *APIHandler) FavoriteHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := GetUserIDFromContext(r.Context())
	if err != nil {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req FavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.MusicID == 0 {
		writeMessage(w, http.StatusBadRequest, "musicId is required")
		return
	}

	switch req.Action {
	case "add":
		err = h.userRepo.AddFavorite(userID, req.MusicID)
	case "remove":
		err = h.userRepo.RemoveFavorite(userID, req.MusicID)
	default:
		writeMessage(w, http.StatusBadRequest, "action must be \"add\" or \"remove\"")
		return
	}
	if err != nil {
		logger.Error("[Favorite] update failed",
			logger.Int64("userId", userID),
			logger.Int64("musicId", req.MusicID),
			logger.ErrorField(err))
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}

	favorites, err := h.userRepo.GetFavorites(userID)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"favorites": favorites})
}

// AuthMiddleware checks for a valid bearer token and stashes the caller's
// identity in the request context.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := h.claimsFromRequest(r)
		if err != nil {
			writeMessage(w, http.StatusUnauthorized, err.Error())
			return
		}

		ctx := context.WithValue(r.Context(), "userID", claims.UserID)
		ctx = context.WithValue(ctx, "username", claims.Username)

		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

// claimsFromRequest extracts and validates the bearer token, if any.
func (h *APIHandler) claimsFromRequest(r *http.Request) (*auth.Claims, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("Authorization header is required")
	}

	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, fmt.Errorf("Invalid authorization header format")
	}

	claims, err := h.issuer.ParseToken(parts[1])
	if err != nil {
		return nil, fmt.Errorf("Invalid token")
	}
	return claims, nil
}

// GetUserIDFromContext extracts the user ID from the request context.
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value("userID").(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// GetUsernameFromContext extracts the username from the request context.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	username, ok := ctx.Value("username").(string)
	if !ok {
		return "", fmt.Errorf("username not found in context")
	}
	return username, nil
}
