// Package devserver is a self-contained playground backend for local work and
// tests: the file API over a project directory, the collaboration relay, and
// token issuing.
package devserver

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultSearchMax caps search results when the request gives no max.
const DefaultSearchMax = 100

// TokenTTL is the lifetime of issued tokens.
const TokenTTL = 24 * time.Hour

// Options configures a Server.
type Options struct {
	Root        string // project directory served by the file API
	Logger      *slog.Logger
	Secret      []byte // HMAC key for tokens; random when empty
	RequireAuth bool   // reject file API calls without a valid token
}

// Server is the dev backend.
type Server struct {
	fs       projectFS
	hub      *hub
	log      *slog.Logger
	secret   []byte
	auth     bool
	registry *prometheus.Registry
	engine   *gin.Engine
	upgrader websocket.Upgrader

	mu    sync.Mutex
	users map[string][32]byte
}

// New builds a server for opts.Root.
func New(opts Options) (*Server, error) {
	if opts.Root == "" {
		return nil, errors.New("devserver: root directory is required")
	}
	if info, err := os.Stat(opts.Root); err != nil {
		return nil, fmt.Errorf("devserver: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("devserver: %s is not a directory", opts.Root)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "devserver")
	secret := opts.Secret
	if len(secret) == 0 {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("devserver: generate secret: %w", err)
		}
	}
	reg := prometheus.NewRegistry()
	s := &Server{
		fs:       projectFS{root: opts.Root},
		hub:      newHub(log, reg),
		log:      log,
		secret:   secret,
		auth:     opts.RequireAuth,
		registry: reg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		users: map[string][32]byte{},
	}
	s.engine = s.routes()
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("devserver: listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("serving", "addr", ln.Addr().String(), "root", s.fs.root)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.handleWS)

	auth := r.Group("/api/auth")
	auth.POST("/register", s.handleRegister)
	auth.POST("/login", s.handleLogin)

	files := r.Group("/api/files", s.requireToken())
	files.GET("/read", s.handleRead)
	files.GET("/structure", s.handleStructure)
	files.GET("/search", s.handleSearch)
	files.POST("/save", s.handleSave)
	files.POST("/rename", s.handleRename)
	files.POST("/create", s.handleCreate)
	files.POST("/folder", s.handleFolder)
	files.DELETE("/*path", s.handleDelete)
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func (s *Server) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.auth {
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		if _, err := s.verify(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errExists):
		status = http.StatusConflict
	case errors.Is(err, errNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errOutsideRoot):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("file api", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

type pathBody struct {
	Path    string `json:"path" binding:"required"`
	Content string `json:"content"`
}

func (s *Server) handleRead(c *gin.Context) {
	content, err := s.fs.read(c.Query("path"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": content})
}

func (s *Server) handleStructure(c *gin.Context) {
	tree, err := s.fs.structure()
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tree)
}

func (s *Server) handleSearch(c *gin.Context) {
	max := DefaultSearchMax
	if v := c.Query("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "max must be a positive integer"})
			return
		}
		max = n
	}
	hits, err := s.fs.search(c.Query("q"), max)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, hits)
}

func (s *Server) handleSave(c *gin.Context) {
	var in pathBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.fs.save(in.Path, in.Content); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleCreate(c *gin.Context) {
	var in pathBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.fs.create(in.Path, in.Content); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleFolder(c *gin.Context) {
	var in pathBody
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.fs.mkdir(in.Path); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleRename(c *gin.Context) {
	var in struct {
		OldPath string `json:"oldPath" binding:"required"`
		NewName string `json:"newName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	newPath, err := s.fs.rename(in.OldPath, in.NewName)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "newPath": newPath})
}

func (s *Server) handleDelete(c *gin.Context) {
	p := strings.TrimPrefix(c.Param("path"), "/")
	if err := s.fs.remove(p); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", "error", err)
		return
	}
	s.hub.serve(conn)
}

type credentials struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	s.mu.Lock()
	_, taken := s.users[in.Username]
	if !taken {
		s.users[in.Username] = sha256.Sum256([]byte(in.Password))
	}
	s.mu.Unlock()
	if taken {
		c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		return
	}
	s.respondToken(c, in.Username)
}

func (s *Server) handleLogin(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}
	s.mu.Lock()
	want, ok := s.users[in.Username]
	s.mu.Unlock()
	got := sha256.Sum256([]byte(in.Password))
	if !ok || subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	s.respondToken(c, in.Username)
}

func (s *Server) respondToken(c *gin.Context, user string) {
	tok, err := s.issue(user, time.Now())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": tok})
}

func (s *Server) issue(user string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   user,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}
