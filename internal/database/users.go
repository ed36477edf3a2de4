package database

import (
	"context"

	"github.com/google/uuid"
)

const createUser = `
INSERT INTO users (user_name, email, phone_number, password_hash, role)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, user_name, email, phone_number, password_hash, role, is_active, created_at
`

type CreateUserParams struct {
	UserName     string
	Email        string
	PhoneNumber  string
	PasswordHash string
	Role         string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser,
		arg.UserName, arg.Email, arg.PhoneNumber, arg.PasswordHash, arg.Role)
	var u User
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, user_name, email, phone_number, password_hash, role, is_active, created_at
FROM users WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}

const getUser = `
SELECT id, user_name, email, phone_number, password_hash, role, is_active, created_at
FROM users WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id uuid.UUID) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	var u User
	err := row.Scan(&u.ID, &u.UserName, &u.Email, &u.PhoneNumber, &u.PasswordHash, &u.Role, &u.IsActive, &u.CreatedAt)
	return u, err
}
