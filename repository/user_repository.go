package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/shannn1/echolab-final/model"

	"github.com/go-sql-driver/mysql"
)

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	CreateUser(user *model.User) (int64, error)
	GetUserByID(id int64) (*model.User, error)
	GetUserByEmail(email string) (*model.User, error)
	UpdateMusicIntro(userID int64, musicIntro string) error
	AddFavorite(userID, musicID int64) error
	RemoveFavorite(userID, musicID int64) error
	GetFavorites(userID int64) ([]int64, error)
}

// mysqlUserRepository implements UserRepository for MySQL.
type mysqlUserRepository struct {
	db *sql.DB
}

// NewMySQLUserRepository creates a new mysqlUserRepository.
func NewMySQLUserRepository(db *sql.DB) UserRepository {
	return &mysqlUserRepository{db: db}
}

// CreateUser adds a new user to the database. A unique-key violation on the
// email column is reported as ErrDuplicateUser.
func (r *mysqlUserRepository) CreateUser(user *model.User) (int64, error) {
	query := "INSERT INTO users (username, email, password_hash, music_intro) VALUES (?, ?, ?, ?)"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare create user statement: %w", err)
	}
	defer stmt.Close()

	res, err := stmt.Exec(user.Username, user.Email, user.PasswordHash, user.MusicIntro)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return 0, ErrDuplicateUser
		}
		return 0, fmt.Errorf("failed to execute create user statement: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for user: %w", err)
	}
	return id, nil
}

// GetUserByID retrieves a user by their ID, favorites included.
func (r *mysqlUserRepository) GetUserByID(id int64) (*model.User, error) {
	query := "SELECT id, username, email, password_hash, music_intro, created_at, updated_at FROM users WHERE id = ?"
	row := r.db.QueryRow(query, id)
	user := &model.User{}
	var musicIntro sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &musicIntro, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row for ID %d: %w", id, err)
	}
	user.MusicIntro = musicIntro.String

	favorites, err := r.GetFavorites(user.ID)
	if err != nil {
		return nil, err
	}
	user.Favorites = favorites
	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *mysqlUserRepository) GetUserByEmail(email string) (*model.User, error) {
	query := "SELECT id, username, email, password_hash, music_intro, created_at, updated_at FROM users WHERE email = ?"
	row := r.db.QueryRow(query, email)
	user := &model.User{}
	var musicIntro sql.NullString
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &musicIntro, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to scan user row for email %s: %w", email, err)
	}
	user.MusicIntro = musicIntro.String
	return user, nil
}

// UpdateMusicIntro updates the user's profile blurb.
func (r *mysqlUserRepository) UpdateMusicIntro(userID int64, musicIntro string) error {
	query := "UPDATE users SET music_intro = ?, updated_at = NOW() WHERE id = ?"
	stmt, err := r.db.Prepare(query)
	if err != nil {
		return fmt.Errorf("failed to prepare update music intro statement: %w", err)
	}
	defer stmt.Close()

	if _, err = stmt.Exec(musicIntro, userID); err != nil {
		return fmt.Errorf("failed to execute update music intro statement: %w", err)
	}
	return nil
}

// AddFavorite adds a clip to the user's favorites. Adding the same pair
// twice is a no-op. The clip's existence is deliberately not checked;
// dangling favorites are tolerated.
func (r *mysqlUserRepository) AddFavorite(userID, musicID int64) error {
	query := "INSERT IGNORE INTO favorites (user_id, music_id) VALUES (?, ?)"
	if _, err := r.db.Exec(query, userID, musicID); err != nil {
		return fmt.Errorf("failed to add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite removes a clip from the user's favorites. Removing an
// absent pair is a no-op.
func (r *mysqlUserRepository) RemoveFavorite(userID, musicID int64) error {
	query := "DELETE FROM favorites WHERE user_id = ? AND music_id = ?"
	if _, err := r.db.Exec(query, userID, musicID); err != nil {
		return fmt.Errorf("failed to remove favorite: %w", err)
	}
	return nil
}

// GetFavorites returns the user's favorited clip ids in insertion order.
func (r *mysqlUserRepository) GetFavorites(userID int64) ([]int64, error) {
	query := "SELECT music_id FROM favorites WHERE user_id = ? ORDER BY created_at"
	rows, err := r.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query favorites for user %d: %w", userID, err)
	}
	defer rows.Close()

	favorites := make([]int64, 0)
	for rows.Next() {
		var musicID int64
		if err := rows.Scan(&musicID); err != nil {
			return nil, fmt.Errorf("failed to scan favorite row: %w", err)
		}
		favorites = append(favorites, musicID)
	}
	return favorites, rows.Err()
}
