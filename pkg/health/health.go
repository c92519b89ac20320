package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pkgfleet/pkgfleet/pkg/logging"
)

// Status represents the health status of a component
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

// Check represents a single health check result
type Check struct {
	Name      string            `json:"name"`
	Status    Status            `json:"status"`
	Message   string            `json:"message,omitempty"`
	Error     string            `json:"error,omitempty"`
	Duration  time.Duration     `json:"duration"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Response represents the overall health response
type Response struct {
	Status    Status            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Duration  time.Duration     `json:"duration"`
	Checks    map[string]*Check `json:"checks"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Checker interface for health checks
type Checker interface {
	Check(ctx context.Context) *Check
}

// CheckerFunc adapts a function to the Checker interface
type CheckerFunc func(ctx context.Context) *Check

func (f CheckerFunc) Check(ctx context.Context) *Check {
	return f(ctx)
}

// Service runs registered health checks and serves the results
type Service struct {
	checkers map[string]Checker
	logger   *logging.Logger
	metadata map[string]string
	mutex    sync.RWMutex
}

// NewService creates a health service
func NewService(logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.GetLogger()
	}
	return &Service{
		checkers: make(map[string]Checker),
		logger:   logger,
		metadata: make(map[string]string),
	}
}

// RegisterChecker adds a named health check
func (s *Service) RegisterChecker(name string, checker Checker) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.checkers[name] = checker
}

// SetMetadata attaches static metadata to every response
func (s *Service) SetMetadata(key, value string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.metadata[key] = value
}

// CheckAll runs every registered check concurrently
func (s *Service) CheckAll(ctx context.Context) *Response {
	started := time.Now()

	s.mutex.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, checker := range s.checkers {
		checkers[name] = checker
	}
	metadata := make(map[string]string, len(s.metadata))
	for k, v := range s.metadata {
		metadata[k] = v
	}
	s.mutex.RUnlock()

	checks := make(map[string]*Check, len(checkers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker Checker) {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			check := checker.Check(checkCtx)
			if check.Name == "" {
				check.Name = name
			}

			mu.Lock()
			checks[name] = check
			mu.Unlock()
		}(name, checker)
	}
	wg.Wait()

	overall := StatusHealthy
	for _, check := range checks {
		switch check.Status {
		case StatusUnhealthy:
			overall = StatusUnhealthy
		case StatusDegraded:
			if overall == StatusHealthy {
				overall = StatusDegraded
			}
		}
	}

	return &Response{
		Status:    overall,
		Timestamp: time.Now(),
		Duration:  time.Since(started),
		Checks:    checks,
		Metadata:  metadata,
	}
}

// Handler returns a gin handler for the full health endpoint
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := s.CheckAll(c.Request.Context())

		code := http.StatusOK
		if response.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, response)
	}
}

// LivenessHandler returns a handler that only confirms the process is up
func (s *Service) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"timestamp": time.Now(),
		})
	}
}

// ReadinessHandler returns a handler suitable for readiness probes
func (s *Service) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response := s.CheckAll(c.Request.Context())

		if response.Status == StatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"checks": response.Checks,
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	}
}
