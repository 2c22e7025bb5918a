// internal/app/system/auditlog/logger.go
package auditlog

// Terminology: User Identifiers
//   - UserID / user_id: the participant whose record was affected
//   - ActorID / actor_id: the signed-in user who performed the action

import (
	"context"
	"net/http"
	"strconv"

	"github.com/dalemusser/mindpath/internal/app/store/audit"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Assignment controls logging for participant submission events.
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Assignment string
	// Admin controls logging for counselor/admin actions (responses, deletions, dispatches).
	// Values: "all" (MongoDB + zap), "db" (MongoDB only), "log" (zap only), "off" (disabled)
	Admin string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger. store may be nil when every setting is
// "log" or "off".
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// Scope identifies where an action happened and who did it.
type Scope struct {
	Program      string
	SessionIndex int
	ActorID      primitive.ObjectID
	IP           string
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request) string {
	// Check X-Forwarded-For header first (for reverse proxies)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	// Check X-Real-IP header
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	// Fall back to RemoteAddr
	return r.RemoteAddr
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
	}

	if event.Program != "" {
		fields = append(fields, zap.String("program", event.Program))
	}
	if event.SessionIndex != nil {
		fields = append(fields, zap.Int("session_index", *event.SessionIndex))
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", event.UserID.Hex()))
	}
	if event.ActorID != nil {
		fields = append(fields, zap.String("actor_id", event.ActorID.Hex()))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	var setting string
	switch event.Category {
	case audit.CategoryAssignment:
		setting = l.config.Assignment
	case audit.CategoryCounsel:
		setting = l.config.Admin
	default:
		setting = "all"
	}
	if setting == "" {
		setting = "all"
	}

	if setting == "off" {
		return
	}

	if (setting == "all" || setting == "log") && l.zapLog != nil {
		l.logToZap(event)
	}

	if (setting == "all" || setting == "db") && l.store != nil {
		if err := l.store.Log(ctx, event); err != nil && l.zapLog != nil {
			l.zapLog.Error("failed to store audit event",
				zap.Error(err),
				zap.String("event_type", event.EventType),
			)
		}
	}
}

func (l *Logger) scoped(sc Scope, category, eventType string) audit.Event {
	idx := sc.SessionIndex
	e := audit.Event{
		Category:     category,
		EventType:    eventType,
		Program:      sc.Program,
		SessionIndex: &idx,
		IP:           sc.IP,
		Success:      true,
	}
	if !sc.ActorID.IsZero() {
		actor := sc.ActorID
		e.ActorID = &actor
	}
	return e
}

// --- Assignment Events ---

// SubmissionCreated logs a new immutable submission.
func (l *Logger) SubmissionCreated(ctx context.Context, sc Scope, userID primitive.ObjectID, number int) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryAssignment, audit.EventSubmissionCreated)
	e.UserID = &userID
	e.Details = map[string]string{"submission_number": strconv.Itoa(number)}
	l.Log(ctx, e)
}

// SubmissionFailed logs a submit that reached the backend and failed.
func (l *Logger) SubmissionFailed(ctx context.Context, sc Scope, userID primitive.ObjectID, reason string) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryAssignment, audit.EventSubmissionFailed)
	e.UserID = &userID
	e.Success = false
	e.FailureReason = reason
	l.Log(ctx, e)
}

// --- Counsel Events ---

// ResponseSet logs a counselor response written to one submission.
func (l *Logger) ResponseSet(ctx context.Context, sc Scope, userID, submissionID primitive.ObjectID, responder string) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryCounsel, audit.EventResponseSet)
	e.UserID = &userID
	e.Details = map[string]string{
		"submission_id": submissionID.Hex(),
		"responder":     responder,
	}
	l.Log(ctx, e)
}

// ResponseRejected logs a single response refused because another
// counselor already answered.
func (l *Logger) ResponseRejected(ctx context.Context, sc Scope, userID, submissionID primitive.ObjectID, existing string) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryCounsel, audit.EventResponseRejected)
	e.UserID = &userID
	e.Success = false
	e.FailureReason = "answered by another responder"
	e.Details = map[string]string{
		"submission_id": submissionID.Hex(),
		"existing":      existing,
	}
	l.Log(ctx, e)
}

// SubmissionsDeleted logs a confirmed bulk delete.
func (l *Logger) SubmissionsDeleted(ctx context.Context, sc Scope, deleted, failed, cleared int) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryCounsel, audit.EventSubmissionsDeleted)
	e.Success = failed == 0
	e.Details = map[string]string{
		"deleted":          strconv.Itoa(deleted),
		"failed":           strconv.Itoa(failed),
		"progress_cleared": strconv.Itoa(cleared),
	}
	l.Log(ctx, e)
}

// DispatchCompleted logs the outcome of a bulk response dispatch.
func (l *Logger) DispatchCompleted(ctx context.Context, sc Scope, jobID string, succeeded, failed int, skipExisting bool) {
	if l == nil {
		return
	}
	e := l.scoped(sc, audit.CategoryCounsel, audit.EventDispatchCompleted)
	e.Success = failed == 0
	e.Details = map[string]string{
		"job_id":        jobID,
		"succeeded":     strconv.Itoa(succeeded),
		"failed":        strconv.Itoa(failed),
		"skip_existing": boolToString(skipExisting),
	}
	l.Log(ctx, e)
}

func boolToString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
