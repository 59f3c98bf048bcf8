package handlers

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/fulmenhq/gofulmen/errors"

	"github.com/tripfx/tripfx/internal/metrics"
)

// Check and aggregate statuses.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusTimeout   = "timeout"
)

// Probe budgets. Liveness never runs dependency checks.
const (
	healthTimeout  = 5 * time.Second
	readyTimeout   = 5 * time.Second
	startupTimeout = 3 * time.Second
)

// HealthResponse represents the aggregate health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	// Reasons explains every check that is not healthy.
	Reasons map[string]string `json:"reasons,omitempty"`
}

// ProbeResponse represents individual probe response
type ProbeResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthChecker defines interface for health checkable components
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthManager runs the registered checks for /health and the probes.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

// NewHealthManager creates a new health manager
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		checkers: make(map[string]HealthChecker),
		version:  version,
	}
}

// RegisterChecker registers a health checker
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

type checkOutcome struct {
	status string
	reason string
}

// runHealthChecks runs every check concurrently. A check still running when
// ctx expires is reported as timeout.
func (hm *HealthManager) runHealthChecks(ctx context.Context) map[string]checkOutcome {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	var (
		mu      sync.Mutex
		results = make(map[string]checkOutcome, len(checkers))
		done    = make(chan struct{})
		wg      sync.WaitGroup
	)
	for name, checker := range checkers {
		wg.Add(1)
		go func(name string, checker HealthChecker) {
			defer wg.Done()
			started := time.Now()
			err := checker.CheckHealth(ctx)
			metrics.RecordHealthCheck(name, err == nil, time.Since(started))

			outcome := checkOutcome{status: StatusHealthy}
			switch {
			case err == nil:
			case ctx.Err() != nil:
				outcome = checkOutcome{status: StatusTimeout, reason: err.Error()}
			case stderrors.Is(err, ErrDegraded):
				outcome = checkOutcome{status: StatusDegraded, reason: err.Error()}
			default:
				outcome = checkOutcome{status: StatusUnhealthy, reason: err.Error()}
			}
			mu.Lock()
			results[name] = outcome
			mu.Unlock()
		}(name, checker)
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]checkOutcome, len(checkers))
	for name := range checkers {
		if outcome, ok := results[name]; ok {
			out[name] = outcome
		} else {
			out[name] = checkOutcome{status: StatusTimeout, reason: ctx.Err().Error()}
		}
	}
	return out
}

// determineOverallStatus folds check statuses: any unhealthy check fails the
// aggregate, degraded or timed-out checks degrade it.
func (hm *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := StatusHealthy
	for _, check := range checks {
		switch check {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusTimeout:
			status = StatusDegraded
		}
	}
	return status
}

func (hm *HealthManager) evaluate(ctx context.Context, timeout time.Duration) (string, map[string]string, map[string]string) {
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	outcomes := hm.runHealthChecks(checkCtx)
	checks := make(map[string]string, len(outcomes))
	var reasons map[string]string
	for name, outcome := range outcomes {
		checks[name] = outcome.status
		if outcome.reason != "" {
			if reasons == nil {
				reasons = map[string]string{}
			}
			reasons[name] = outcome.reason
		}
	}
	return hm.determineOverallStatus(checks), checks, reasons
}

// HealthHandler reports every check. Degraded still answers 200: the
// service keeps recommending from simulated data while providers recover.
func (hm *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	status, checks, reasons := hm.evaluate(r.Context(), healthTimeout)
	if status == StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "aggregate health check failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, "", status, checks))
		return
	}

	writeHealthJSON(w, HealthResponse{
		Status:    status,
		Version:   hm.version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Reasons:   reasons,
	})
}

// LivenessHandler answers as long as the process can serve HTTP. Upstream
// outages must not get the process restarted.
func (hm *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeHealthJSON(w, ProbeResponse{Status: StatusHealthy, Timestamp: time.Now().UTC()})
}

// ReadinessHandler fails only on an unhealthy check; exhausted providers
// merely degrade it.
func (hm *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "ready", readyTimeout)
}

// StartupHandler reports whether initialization has completed.
func (hm *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	hm.probe(w, r, "startup", startupTimeout)
}

func (hm *HealthManager) probe(w http.ResponseWriter, r *http.Request, name string, timeout time.Duration) {
	status, checks, _ := hm.evaluate(r.Context(), timeout)
	if status == StatusUnhealthy {
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", name+" probe failed")
		respondWithError(w, r, enrichHealthEnvelope(envelope, name, status, checks))
		return
	}
	writeHealthJSON(w, ProbeResponse{Status: status, Timestamp: time.Now().UTC()})
}

func writeHealthJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}

func enrichHealthEnvelope(envelope *errors.ErrorEnvelope, probe, status string, checks map[string]string) *errors.ErrorEnvelope {
	if envelope == nil {
		return nil
	}

	details := map[string]interface{}{"status": status}
	contextData := map[string]interface{}{"status": status}
	if len(checks) > 0 {
		details["checks"] = checks
	}
	if probe != "" {
		details["probe"] = probe
		contextData["probe"] = probe
	}
	envelope = envelope.WithDetails(details)

	var failing []string
	for name, result := range checks {
		if result != StatusHealthy {
			failing = append(failing, name)
		}
	}
	if len(failing) > 0 {
		sort.Strings(failing)
		contextData["unhealthy_checks"] = failing
	}

	envelope, _ = envelope.WithContext(contextData)
	return envelope
}

var globalHealthManager *HealthManager

// InitHealthManager initializes the global health manager
func InitHealthManager(version string) {
	globalHealthManager = NewHealthManager(version)
}

// GetHealthManager returns the global health manager
func GetHealthManager() *HealthManager {
	return globalHealthManager
}

// withGlobal routes a probe to the global manager, answering 503 until
// InitHealthManager has run.
func withGlobal(probe string, handler func(*HealthManager, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if globalHealthManager != nil {
			handler(globalHealthManager, w, r)
			return
		}
		envelope := errors.NewErrorEnvelope("SERVICE_UNAVAILABLE", "health manager not initialized")
		respondWithError(w, r, enrichHealthEnvelope(envelope, probe, "unknown", nil))
	}
}

// Route handlers backed by the global manager.
var (
	HealthHandler    = withGlobal("aggregate", (*HealthManager).HealthHandler)
	LivenessHandler  = withGlobal("live", (*HealthManager).LivenessHandler)
	ReadinessHandler = withGlobal("ready", (*HealthManager).ReadinessHandler)
	StartupHandler   = withGlobal("startup", (*HealthManager).StartupHandler)
)
