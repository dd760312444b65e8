package auth

import (
	"context"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// FederatedExchanger turns a provider issued ID token into local credentials
type FederatedExchanger interface {
	Exchange(ctx context.Context, idToken string) (*TokenPair, error)
}

type AuthControllerRoutes struct {
	Prefix         string
	Register       string
	Login          string
	Verify         string
	ChangePassword string
	RefreshToken   string
	Logout         string
	Session        string
	OAuth2Token    string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Service      *CredentialService
	Federated    FederatedExchanger
	Routes       *AuthControllerRoutes
	CookieName   string
	CookieSecure bool
	// Protect runs before routes that need an authenticated subject
	Protect []fiber.Handler
}

type AuthControllerOption func(*AuthController) *AuthController

// WithControllerLogger sets the controller logger
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if logger != nil {
			ac.Logger = logger
		}
		return ac
	}
}

// WithFederatedExchanger enables the oauth2 token route
func WithFederatedExchanger(f FederatedExchanger) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Federated = f
		return ac
	}
}

// WithCookie configures the access token cookie
func WithCookie(name string, secure bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		if name != "" {
			ac.CookieName = name
		}
		ac.CookieSecure = secure
		return ac
	}
}

// WithProtect sets the handlers guarding authenticated routes
func WithProtect(handlers ...fiber.Handler) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Protect = append(ac.Protect, handlers...)
		return ac
	}
}

// WithDebug dumps decoded payloads, passwords excluded
func WithDebug(debug bool) AuthControllerOption {
	return func(ac *AuthController) *AuthController {
		ac.Debug = debug
		return ac
	}
}

func NewAuthController(service *CredentialService, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:     defLogger{},
		Service:    service,
		CookieName: DefaultCookieName,
		Routes: &AuthControllerRoutes{
			Prefix:         "/auth",
			Register:       "/register",
			Login:          "/login",
			Verify:         "/verify",
			ChangePassword: "/change-password",
			RefreshToken:   "/refresh-token",
			Logout:         "/logout",
			Session:        "/session",
			OAuth2Token:    "/oauth2/token",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Service == nil {
		panic("Missing CredentialService in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the credential routes on app
func RegisterAuthRoutes(app fiber.Router, service *CredentialService, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(service, opts...)
	controller.Mount(app)
	return controller
}

// Mount registers every route under Routes.Prefix
func (a *AuthController) Mount(app fiber.Router) {
	r := app.Group(a.Routes.Prefix)

	r.Get("/", a.Hello)
	r.Post(a.Routes.Register, a.Register)
	r.Post(a.Routes.Login, a.Login)
	r.Post(a.Routes.Verify, a.Verify)
	r.Post(a.Routes.RefreshToken, a.Refresh)
	r.Get(a.Routes.Session, a.Session)

	r.Post(a.Routes.ChangePassword, a.protected(a.ChangePassword)...)
	r.Post(a.Routes.Logout, a.protected(a.Logout)...)

	if a.Federated != nil {
		r.Post(a.Routes.OAuth2Token, a.OAuth2Token)
	}
}

func (a *AuthController) protected(h fiber.Handler) []fiber.Handler {
	handlers := make([]fiber.Handler, 0, len(a.Protect)+1)
	handlers = append(handlers, a.Protect...)
	return append(handlers, h)
}

// AuthRequest is the username/password payload
type AuthRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// Validate will run validation rules
func (r AuthRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ChangePasswordRequest payload
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" form:"old_password"`
	NewPassword string `json:"newPassword" form:"new_password"`
}

// Validate will run validation rules
func (r ChangePasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required, validation.Length(1, 72)),
	)
}

// TokenRefreshRequest payload
type TokenRefreshRequest struct {
	RefreshToken string `json:"refreshToken" form:"refresh_token"`
}

// OAuth2TokenRequest carries a provider issued ID token
type OAuth2TokenRequest struct {
	IDToken string `json:"idToken" form:"id_token"`
}

func (a *AuthController) Hello(c *fiber.Ctx) error {
	return c.SendString("auth service")
}

func (a *AuthController) Register(c *fiber.Ctx) error {
	payload := new(AuthRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	if _, err := a.Service.Register(c.UserContext(), payload.Username, payload.Password); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "User registered"})
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(AuthRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(c, ErrInvalidCredentials)
	}

	pair, err := a.Service.Login(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	a.setCookie(c, pair.AccessToken)

	return c.JSON(pair)
}

func (a *AuthController) Verify(c *fiber.Ctx) error {
	payload := new(AuthRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	ok, err := a.Service.Verify(c.UserContext(), payload.Username, payload.Password)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(ok)
}

func (a *AuthController) ChangePassword(c *fiber.Ctx) error {
	username, ok := SubjectFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrUnauthenticated)
	}

	payload := new(ChangePasswordRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	if err := payload.Validate(); err != nil {
		return a.renderError(c, validationError(err))
	}

	if err := a.Service.ChangePassword(c.UserContext(), username, payload.OldPassword, payload.NewPassword); err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"message": "Password changed"})
}

func (a *AuthController) Refresh(c *fiber.Ctx) error {
	payload := new(TokenRefreshRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	pair, err := a.Service.Refresh(c.UserContext(), payload.RefreshToken)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(pair)
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	username, ok := SubjectFromContext(c.UserContext())
	if !ok {
		return a.renderError(c, ErrUnauthenticated)
	}

	if err := a.Service.Logout(c.UserContext(), username); err != nil {
		return a.renderError(c, err)
	}

	a.clearCookie(c)

	return c.JSON(fiber.Map{"message": "Logged out and refresh token invalidated"})
}

func (a *AuthController) Session(c *fiber.Ctx) error {
	_, ok := SubjectFromContext(c.UserContext())
	return c.JSON(fiber.Map{"authenticated": ok})
}

func (a *AuthController) OAuth2Token(c *fiber.Ctx) error {
	payload := new(OAuth2TokenRequest)
	if err := a.bind(c, payload); err != nil {
		return a.renderError(c, err)
	}

	pair, err := a.Federated.Exchange(c.UserContext(), payload.IDToken)
	if err != nil {
		return a.renderError(c, err)
	}

	a.setCookie(c, pair.AccessToken)

	return c.JSON(pair)
}

func (a *AuthController) bind(c *fiber.Ctx, payload any) error {
	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("auth controller parse payload", "path", c.Path(), "error", err)
		return errors.Wrap(err, errors.CategoryBadInput, "invalid request payload").
			WithTextCode(TextCodeInvalidRequestPayload).
			WithCode(errors.CodeBadRequest)
	}

	if a.Debug {
		fmt.Println("======= AUTH " + c.Path() + " ======")
		fmt.Println(print.MaybePrettyJSON(redact(payload)))
		fmt.Println("=========================")
	}

	return nil
}

func (a *AuthController) setCookie(c *fiber.Ctx, token string) {
	ttl := a.Service.AccessTTL()
	c.Cookie(&fiber.Cookie{
		Name:     a.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		Expires:  time.Now().Add(ttl),
		HTTPOnly: true,
		Secure:   a.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *AuthController) clearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		Secure:   a.CookieSecure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (a *AuthController) renderError(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		a.Logger.Error("auth controller unexpected error", "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     "An unexpected server error occurred",
			"text_code": "internal_error",
		})
	}

	status := StatusCodeOf(richErr)
	if status >= fiber.StatusInternalServerError {
		a.Logger.Error("auth controller error", "path", c.Path(), "error", richErr.Message, "category", richErr.Category)
		return c.Status(status).JSON(fiber.Map{
			"error":     "An unexpected server error occurred",
			"text_code": richErr.TextCode,
		})
	}

	a.Logger.Info("auth controller request rejected",
		"path", c.Path(),
		"error", richErr.Message,
		"text_code", richErr.TextCode,
	)

	return c.Status(status).JSON(fiber.Map{
		"error":     richErr.Message,
		"text_code": richErr.TextCode,
	})
}

// StatusCodeOf returns the HTTP status for a rich error, falling back to
// its category when no code was set.
func StatusCodeOf(richErr *errors.Error) int {
	if richErr == nil {
		return fiber.StatusInternalServerError
	}
	if richErr.Code >= 400 && richErr.Code < 600 {
		return richErr.Code
	}
	switch richErr.Category {
	case errors.CategoryAuth:
		return fiber.StatusUnauthorized
	case errors.CategoryAuthz:
		return fiber.StatusForbidden
	case errors.CategoryNotFound:
		return fiber.StatusNotFound
	case errors.CategoryConflict:
		return fiber.StatusConflict
	case errors.CategoryValidation, errors.CategoryBadInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func validationError(err error) error {
	return errors.Wrap(err, errors.CategoryValidation, "invalid request payload").
		WithTextCode(TextCodeInvalidRequestPayload).
		WithCode(errors.CodeBadRequest)
}

func redact(payload any) any {
	switch p := payload.(type) {
	case *AuthRequest:
		return map[string]string{"username": p.Username}
	case *ChangePasswordRequest, *TokenRefreshRequest, *OAuth2TokenRequest:
		return map[string]string{}
	default:
		return payload
	}
}
