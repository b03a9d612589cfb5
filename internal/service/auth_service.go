package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/strings28/task-shelter/internal/core"
	"github.com/strings28/task-shelter/internal/storage"
	"github.com/strings28/task-shelter/internal/storage/wal"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

// Claims is the information carried in an access token.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

type RegisterInput struct {
	Email     string
	Password  string
	Firstname string
	Lastname  string
}

// AuthService is the identity provider: it registers users, checks
// credentials and issues/verifies bearer tokens.
type AuthService struct {
	store      storage.Store
	idGen      IDGenerator
	secret     []byte
	tokenTTL   time.Duration
	bcryptCost int
	now        func() time.Time
}

type AuthServiceOptions struct {
	Store      storage.Store
	IDGen      IDGenerator
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
	Now        func() time.Time
}

func NewAuthService(opts AuthServiceOptions) (*AuthService, error) {
	const op = "service.NewAuthService"
	if opts.Store == nil {
		return nil, core.NewInternalError("user store required", nil, op)
	}
	if opts.IDGen == nil {
		return nil, core.NewInternalError("id gen required", nil, op)
	}
	if opts.Secret == "" {
		return nil, core.NewInternalError("jwt secret required", nil, op)
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &AuthService{
		store:      opts.Store,
		idGen:      opts.IDGen,
		secret:     []byte(opts.Secret),
		tokenTTL:   opts.TokenTTL,
		bcryptCost: opts.BcryptCost,
		now:        opts.Now,
	}, nil
}

// Register creates a user with a bcrypt-hashed credential and returns
// the user together with a freshly signed token.
func (as *AuthService) Register(ctx context.Context, in RegisterInput) (*core.User, string, error) {
	const op = "service.AuthService.Register"

	if err := ctx.Err(); err != nil {
		return nil, "", core.NewInternalError("ctx error", err, op)
	}

	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", core.NewValidationError("valid email required", nil, op)
	}
	if len(in.Password) < minPasswordLen {
		return nil, "", core.NewValidationError("password must be at least 8 characters", nil, op)
	}

	hash, hashErr := bcrypt.GenerateFromPassword([]byte(in.Password), as.bcryptCost)
	if hashErr != nil {
		return nil, "", core.NewInternalError("hash password", hashErr, op)
	}

	id, genErr := as.idGen.NewID()
	if genErr != nil {
		return nil, "", core.NewInternalError("gen id error", genErr, op)
	}

	now := as.now().UTC()
	u := &core.User{
		ID:           id,
		Email:        email,
		Firstname:    strings.TrimSpace(in.Firstname),
		Lastname:     strings.TrimSpace(in.Lastname),
		PasswordHash: string(hash),
		CreatedAt:    &now,
	}

	ev, evErr := wal.NewEvent(id, wal.EventUserRegistered, now,
		wal.UserRegisteredPayload{User: u})
	if evErr != nil {
		return nil, "", core.NewInternalError("encode user_registered", evErr, op)
	}
	if err := as.store.CreateUser(ctx, u.CloneUser(), ev); err != nil {
		return nil, "", tryAsAppError(err, op)
	}

	token, err := as.signToken(u)
	if err != nil {
		return nil, "", core.NewInternalError("sign token", err, op)
	}
	return u.CloneUser(), token, nil
}

// Login verifies credentials and issues a token. Unknown emails and
// wrong passwords produce the same unauthorized answer.
func (as *AuthService) Login(ctx context.Context, email, password string) (string, error) {
	const op = "service.AuthService.Login"

	if err := ctx.Err(); err != nil {
		return "", core.NewInternalError("ctx error", err, op)
	}

	u, err := as.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if appErr, ok := core.AsAppError(err); ok && appErr.Code == core.ErrorCodeNotFound {
			return "", core.NewUnauthorizedError("invalid credentials", op)
		}
		return "", tryAsAppError(err, op)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", core.NewUnauthorizedError("invalid credentials", op)
	}

	token, signErr := as.signToken(u)
	if signErr != nil {
		return "", core.NewInternalError("sign token", signErr, op)
	}
	return token, nil
}

// VerifyToken resolves a bearer token to the user id it was issued
// for.
func (as *AuthService) VerifyToken(token string) (string, error) {
	const op = "service.AuthService.VerifyToken"

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return as.secret, nil
	}, jwt.WithTimeFunc(as.now))
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return "", core.NewUnauthorizedError("invalid token", op)
	}
	return claims.UserID, nil
}

func (as *AuthService) signToken(u *core.User) (string, error) {
	now := as.now().UTC()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secret)
}
