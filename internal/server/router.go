package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mprlab/noted/internal/auth"
	"github.com/mprlab/noted/internal/notes"
	"github.com/mprlab/noted/internal/ratelimit"
	"github.com/mprlab/noted/internal/users"
)

const userContextKey = "noted_user"

var (
	errMissingUsersService = errors.New("users service dependency required")
	errMissingNotesService = errors.New("notes service dependency required")
	errMissingTokenService = errors.New("token service dependency required")
	errMissingGate         = errors.New("admission gate dependency required")
)

// Dependencies wires the core components into the HTTP boundary.
type Dependencies struct {
	Users  *users.Service
	Notes  *notes.Service
	Tokens *auth.TokenService
	Gate   *ratelimit.Gate
	Logger *zap.Logger
}

// NewHTTPHandler builds the gin router. The admission gate runs before
// anything else on every route, auth routes included; the bearer-token
// middleware guards the notes and search routes.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Notes == nil {
		return nil, errMissingNotesService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenService
	}
	if deps.Gate == nil {
		return nil, errMissingGate
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		users:  deps.Users,
		notes:  deps.Notes,
		tokens: deps.Tokens,
		gate:   deps.Gate,
		logger: logger,
	}

	api := router.Group("/api")
	api.Use(handler.admitRequest)

	authRoutes := api.Group("/auth")
	authRoutes.POST("/signup", handler.handleSignUp)
	authRoutes.POST("/signin", handler.handleSignIn)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/notes", handler.handleCreateNote)
	protected.GET("/notes", handler.handleListNotes)
	protected.GET("/notes/:id", handler.handleGetNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.POST("/notes/:id/share", handler.handleShareNote)
	protected.GET("/search", handler.handleSearchNotes)

	return router, nil
}

type httpHandler struct {
	users  *users.Service
	notes  *notes.Service
	tokens *auth.TokenService
	gate   *ratelimit.Gate
	logger *zap.Logger
}

// currentUser returns the account resolved by authorizeRequest.
func currentUser(c *gin.Context) (users.User, bool) {
	value, exists := c.Get(userContextKey)
	if !exists {
		return users.User{}, false
	}
	account, ok := value.(users.User)
	return account, ok
}
