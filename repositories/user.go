package repositories

import (
	apperrors "chat-relay/errors"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IUserRepository interface {
	CreateUser(email, name, hashedPassword string) (string, error)
	GetUserByEmail(email string) (User, error)
}

// User is the stored representation of an account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// CreateUser persists the account keyed by email and returns the new user id.
func (u UserRepository) CreateUser(email, name, hashedPassword string) (string, error) {
	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hashedPassword,
		CreatedAt:    time.Now().UTC(),
	}
	data, err := json.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		key := []byte("user:" + email)
		if _, err := txn.Get(key); err == nil {
			return apperrors.ErrUserAlreadyExists
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("user:" + email))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return apperrors.ErrUserNotFound
			}
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &user)
		})
	})
	if err != nil {
		return User{}, err
	}
	return user, nil
}
