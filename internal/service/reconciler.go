// Package service contains the business logic layer of the application.
//
// The Reconciler drives profile files from the GitHub repository into the
// directory store. Handlers and the CLI call it; it only talks to the store
// and to GitHub through interfaces, so tests run against in-memory fakes.
//
// THE PER-USER PIPELINE:
//
//	Fetching → Decoding → Projecting → Persisting → Notifying → Done
//	    ↘          ↘
//	     Failed     Failed
//
// Each step is ordinary sequential code. The state reached is recorded on
// the Result so the caller can log or report it.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/rustaceans-org/rustaceans-sync/internal/apperror"
	"github.com/rustaceans-org/rustaceans-sync/internal/github"
	"github.com/rustaceans-org/rustaceans-sync/internal/profile"
	"github.com/rustaceans-org/rustaceans-sync/internal/projection"
	"github.com/rustaceans-org/rustaceans-sync/internal/repository"
)

const (
	// DefaultDataDir is where profile files live in the repository.
	DefaultDataDir = "data"

	// DefaultFetchTimeout bounds a single GitHub request.
	DefaultFetchTimeout = 30 * time.Second

	// MaxUsernameLength is GitHub's login length limit.
	MaxUsernameLength = 39

	profileExt = ".json"
)

// Pull request comment texts.
const (
	removedComment    = "Success, you have been removed from rustaceans.org (I'd recommend you check though, and file an issue if there was a problem)."
	updatedComment    = "Success, the rustaceans db has been updated. You can see your details at http://www.rustaceans.org/%s."
	malformedComment  = "There was an error parsing JSON (`%s`), please double check your json file and re-submit the PR. If you think it's good, ping @nrc."
	unexpectedComment = "There was an error parsing JSON (unexpected contents), please double check your json file and re-submit the PR. If you think it's good, ping @nrc."
)

// Forge is the part of the GitHub API the reconciler uses.
// *github.Client satisfies it.
type Forge interface {
	GetContents(ctx context.Context, path string) (*github.Contents, error)
	CreateIssueComment(ctx context.Context, number int, body string) (*github.Comment, error)
	ListDirectory(ctx context.Context, dir string) ([]string, error)
	ListPullRequestFiles(ctx context.Context, number int) ([]string, error)
}

var _ Forge = (*github.Client)(nil)

// State is a step of the per-user pipeline.
type State int

const (
	StateFetching State = iota
	StateDecoding
	StateProjecting
	StatePersisting
	StateNotifying
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateDecoding:
		return "decoding"
	case StateProjecting:
		return "projecting"
	case StatePersisting:
		return "persisting"
	case StateNotifying:
		return "notifying"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FailureReason classifies why a user ended in StateFailed.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	ReasonInvalidUsername
	ReasonTransport
	ReasonUnexpectedContent
	ReasonMalformedJSON
	ReasonProjection
	ReasonStorage
)

func (r FailureReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidUsername:
		return "invalid_username"
	case ReasonTransport:
		return "transport_failure"
	case ReasonUnexpectedContent:
		return "unexpected_content"
	case ReasonMalformedJSON:
		return "malformed_json"
	case ReasonProjection:
		return "projection_failure"
	case ReasonStorage:
		return "storage_failure"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Outcome is what happened to the stored directory entry.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeUpdated
	OutcomeRemoved
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	default:
		return "none"
	}
}

// Request names one user to reconcile. A positive PRNumber attaches pull
// request context: the outcome is reported as a comment on that PR.
type Request struct {
	Username string
	PRNumber int
}

// Result is the typed outcome of one user's reconciliation.
type Result struct {
	Username string
	PRNumber int

	// State is StateDone or StateFailed. FailedAt is the step that failed.
	State    State
	FailedAt State
	Reason   FailureReason
	Err      error

	Outcome Outcome

	// Report lists every statement issued for this user. StorageErr joins
	// the statements that failed; the rest of the write still happened.
	Report     *repository.WriteReport
	StorageErr error

	// Comment is the text posted (or attempted) on the pull request.
	Comment   string
	Notified  bool
	NotifyErr error
}

// Failed reports whether the user ended in StateFailed.
func (r Result) Failed() bool {
	return r.State == StateFailed
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	// DataDir is the repository directory holding "{username}.json".
	// Empty selects the legacy layout with files at the repository root.
	DataDir string
	// FetchTimeout bounds each GitHub call: contents, listings and comments.
	FetchTimeout time.Duration
}

// Reconciler syncs profile files into the directory store.
type Reconciler struct {
	forge     Forge
	store     repository.SessionOpener
	projector *projection.Projector
	config    ReconcilerConfig
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. A zero FetchTimeout selects
// DefaultFetchTimeout.
func NewReconciler(forge Forge, store repository.SessionOpener, projector *projection.Projector, cfg ReconcilerConfig, logger *slog.Logger) *Reconciler {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	cfg.DataDir = strings.Trim(cfg.DataDir, "/")
	return &Reconciler{
		forge:     forge,
		store:     store,
		projector: projector,
		config:    cfg,
		logger:    logger,
	}
}

// ValidateUsername checks that username is usable as a file name and a
// GitHub login.
func ValidateUsername(username string) error {
	switch {
	case username == "":
		return apperror.ValidationFailed("username", "username is required")
	case len(username) > MaxUsernameLength:
		return apperror.ValidationFailed("username", fmt.Sprintf("username must be at most %d characters", MaxUsernameLength))
	case strings.ContainsAny(username, `/\`):
		return apperror.ValidationFailed("username", "username must not contain path separators")
	case strings.Contains(username, ".."):
		return apperror.ValidationFailed("username", "username must not contain '..'")
	}
	return nil
}

// ProcessUser reconciles one user in a session of its own.
func (rc *Reconciler) ProcessUser(ctx context.Context, req Request) (Result, error) {
	if err := ValidateUsername(req.Username); err != nil {
		return Result{}, err
	}
	results, err := rc.ProcessMany(ctx, []Request{req})
	if err != nil {
		return Result{}, err
	}
	return results[0], nil
}

// ProcessMany reconciles users strictly one after another. All of them
// share one storage session, opened before the first user and closed after
// the last, also when reqs is empty.
//
// A failing user does not stop the batch; its Result says what went wrong.
// The returned error is only set when the session cannot be opened or ctx
// is cancelled, in which case the results gathered so far are returned.
func (rc *Reconciler) ProcessMany(ctx context.Context, reqs []Request) ([]Result, error) {
	session, err := rc.store.OpenSession(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening storage session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			rc.logger.Error("closing storage session", slog.String("error", err.Error()))
		}
	}()

	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, rc.reconcile(ctx, session, req))
	}
	return results, nil
}

// ProcessPullRequest reconciles every profile file touched by pull request
// number and reports each outcome on the PR.
func (rc *Reconciler) ProcessPullRequest(ctx context.Context, number int) ([]Result, error) {
	if number <= 0 {
		return nil, apperror.ValidationFailed("number", "pull request number must be positive")
	}

	listCtx, cancel := rc.bounded(ctx)
	files, err := rc.forge.ListPullRequestFiles(listCtx, number)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("listing files of pull request #%d: %w", number, err)
	}

	var reqs []Request
	for _, username := range rc.usernamesIn(files, true) {
		reqs = append(reqs, Request{Username: username, PRNumber: number})
	}
	rc.logger.Info("processing pull request",
		slog.Int("pr", number),
		slog.Int("files", len(files)),
		slog.Int("users", len(reqs)),
	)
	return rc.ProcessMany(ctx, reqs)
}

// ProcessAll reconciles every profile file in the data directory. Batch
// runs never comment.
func (rc *Reconciler) ProcessAll(ctx context.Context) ([]Result, error) {
	listCtx, cancel := rc.bounded(ctx)
	names, err := rc.forge.ListDirectory(listCtx, rc.config.DataDir)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", rc.config.DataDir, err)
	}

	var reqs []Request
	for _, username := range rc.usernamesIn(names, false) {
		reqs = append(reqs, Request{Username: username})
	}
	rc.logger.Info("processing all users", slog.Int("users", len(reqs)))
	return rc.ProcessMany(ctx, reqs)
}

// usernamesIn extracts usernames from "{username}.json" entries. With
// fullPaths, entries are repository paths and must sit directly in DataDir;
// otherwise they are bare file names.
func (rc *Reconciler) usernamesIn(entries []string, fullPaths bool) []string {
	var usernames []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		name := entry
		if fullPaths {
			dir, file := path.Split(entry)
			if strings.TrimSuffix(dir, "/") != rc.config.DataDir {
				continue
			}
			name = file
		}
		username, ok := strings.CutSuffix(name, profileExt)
		if !ok || seen[username] || ValidateUsername(username) != nil {
			continue
		}
		seen[username] = true
		usernames = append(usernames, username)
	}
	return usernames
}

// profilePath is the repository path of username's profile file.
func (rc *Reconciler) profilePath(username string) string {
	if rc.config.DataDir == "" {
		return username + profileExt
	}
	return rc.config.DataDir + "/" + username + profileExt
}

// reconcile runs the pipeline for one user against session.
func (rc *Reconciler) reconcile(ctx context.Context, session repository.DirectorySession, req Request) Result {
	res := Result{Username: req.Username, PRNumber: req.PRNumber, State: StateFetching}
	logger := rc.logger.With(slog.String("username", req.Username))
	if req.PRNumber > 0 {
		logger = logger.With(slog.Int("pr", req.PRNumber))
	}

	if err := ValidateUsername(req.Username); err != nil {
		rc.fail(logger, &res, ReasonInvalidUsername, err)
		return res
	}

	// === Fetching ===
	contents, err := rc.fetch(ctx, req.Username)
	if err != nil {
		rc.fail(logger, &res, ReasonTransport, err)
		return res
	}

	// A missing file (nil contents) leaves a zero Projection: the user is
	// removed.
	var proj projection.Projection
	if contents != nil {
		// === Decoding ===
		if contents.Type == github.ContentTypeFile {
			res.State = StateDecoding
		}
		record, err := profile.DecodeFile(contents.Type, contents.Encoding, contents.Content)
		if err != nil {
			var decodeErr *profile.DecodeError
			if errors.As(err, &decodeErr) && decodeErr.Kind == profile.MalformedJSON {
				rc.fail(logger, &res, ReasonMalformedJSON, err)
				rc.notify(ctx, logger, &res, fmt.Sprintf(malformedComment, decodeErr.Detail))
			} else {
				rc.fail(logger, &res, ReasonUnexpectedContent, err)
				rc.notify(ctx, logger, &res, unexpectedComment)
			}
			return res
		}
		record.Username = req.Username

		// === Projecting ===
		res.State = StateProjecting
		proj, err = rc.projector.Project(record)
		if err != nil {
			rc.fail(logger, &res, ReasonProjection, err)
			return res
		}
	}

	// === Persisting ===
	res.State = StatePersisting
	report, err := session.Write(ctx, req.Username, proj.Entry, proj.Channels)
	res.Report = report
	if err != nil {
		rc.fail(logger, &res, ReasonStorage, err)
		return res
	}
	if err := report.Err(); err != nil {
		res.StorageErr = err
		logger.Error("storage statements failed",
			slog.Int("failed", len(report.Failed())),
			slog.String("error", err.Error()),
		)
	}

	if proj.RemovalOnly() {
		res.Outcome = OutcomeRemoved
	} else {
		res.Outcome = OutcomeUpdated
	}

	// === Notifying ===
	if res.Outcome == OutcomeRemoved {
		rc.notify(ctx, logger, &res, removedComment)
	} else {
		rc.notify(ctx, logger, &res, fmt.Sprintf(updatedComment, req.Username))
	}

	res.State = StateDone
	logger.Info("user reconciled",
		slog.String("outcome", res.Outcome.String()),
		slog.Int("statements", len(report.Statements)),
	)
	return res
}

// bounded derives the context for one GitHub call.
func (rc *Reconciler) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, rc.config.FetchTimeout)
}

// fetch requests username's profile file. It returns nil contents when the
// file does not exist or the response carries no type.
func (rc *Reconciler) fetch(ctx context.Context, username string) (*github.Contents, error) {
	fetchCtx, cancel := rc.bounded(ctx)
	defer cancel()

	contents, err := rc.forge.GetContents(fetchCtx, rc.profilePath(username))
	if err != nil {
		if github.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if contents == nil || contents.Type == "" {
		return nil, nil
	}
	return contents, nil
}

// fail moves res to StateFailed, remembering the step that failed.
func (rc *Reconciler) fail(logger *slog.Logger, res *Result, reason FailureReason, err error) {
	res.FailedAt = res.State
	res.State = StateFailed
	res.Reason = reason
	res.Err = err
	logger.Error("user reconciliation failed",
		slog.String("step", res.FailedAt.String()),
		slog.String("reason", reason.String()),
		slog.String("error", err.Error()),
	)
}

// notify posts text on the request's pull request, if there is one.
// Comment failures are recorded on res and logged, never returned.
func (rc *Reconciler) notify(ctx context.Context, logger *slog.Logger, res *Result, text string) {
	if res.PRNumber <= 0 {
		return
	}
	if res.State != StateFailed {
		res.State = StateNotifying
	}
	res.Comment = text

	commentCtx, cancel := rc.bounded(ctx)
	defer cancel()

	if _, err := rc.forge.CreateIssueComment(commentCtx, res.PRNumber, text); err != nil {
		res.NotifyErr = err
		logger.Warn("posting pull request comment failed", slog.String("error", err.Error()))
		return
	}
	res.Notified = true
}
