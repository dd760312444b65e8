package repository

import (
	"context"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/neuronurture/go-auth"
)

// Users implements auth.UserStore on a go-repository-bun repository
type Users struct {
	repo repository.Repository[*auth.User]
	db   *bun.DB
}

var _ auth.UserStore = (*Users)(nil)

// NewUsers creates a users store bound to db
func NewUsers(db *bun.DB) *Users {
	repo := repository.NewRepository[*auth.User](db, repository.ModelHandlers[*auth.User]{
		NewRecord: func() *auth.User { return &auth.User{} },
		GetID: func(u *auth.User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *auth.User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &Users{repo: repo, db: db}
}

func byUsername(username string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.username = ?", username)
	}
}

// passwordColumns limits an update to the credential columns
func passwordColumns() repository.UpdateCriteria {
	return func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Column("password_hash", "updated_at")
	}
}

func (r *Users) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	user := &auth.User{}
	err := r.db.NewSelect().
		Model(user).
		Apply(byUsername(username)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "failed to find user by username")
	}
	return user, nil
}

func (r *Users) FindByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	user, err := r.repo.GetByID(ctx, id.String())
	if err != nil {
		return nil, mapError(err, "failed to find user by id")
	}
	return user, nil
}

// Create inserts user. A taken username surfaces as auth.ErrRecordExists.
func (r *Users) Create(ctx context.Context, user *auth.User) (*auth.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = &now
	user.UpdatedAt = &now

	created, err := r.repo.CreateTx(ctx, r.db, user)
	if err != nil {
		return nil, mapError(err, "failed to create user")
	}
	return created, nil
}

// Save persists the password hash of an existing user
func (r *Users) Save(ctx context.Context, user *auth.User) (*auth.User, error) {
	if _, err := r.repo.GetByID(ctx, user.ID.String()); err != nil {
		return nil, mapError(err, "failed to load user")
	}

	now := time.Now().UTC()
	user.UpdatedAt = &now

	if _, err := r.repo.UpdateTx(ctx, r.db, user,
		repository.UpdateByID(user.ID.String()),
		passwordColumns(),
	); err != nil {
		return nil, mapError(err, "failed to save user")
	}

	return user, nil
}
