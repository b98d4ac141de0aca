// Package orchestrator drives the phased, deadline-bounded provisioning
// pipeline and the cascade-aware delete flow (spec §4.8). It is the only
// component that writes store records: CreateStore inserts the initial row,
// and the pipeline and delete flow own every later status or phase change.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/wisbric/urumi-provisioner/internal/apierr"
	"github.com/wisbric/urumi-provisioner/internal/audit"
	"github.com/wisbric/urumi-provisioner/internal/repository"
	"github.com/wisbric/urumi-provisioner/internal/retry"
	"github.com/wisbric/urumi-provisioner/internal/telemetry"
	"github.com/wisbric/urumi-provisioner/pkg/appworkload"
	"github.com/wisbric/urumi-provisioner/pkg/dbworkload"
	"github.com/wisbric/urumi-provisioner/pkg/posthook"
	"github.com/wisbric/urumi-provisioner/pkg/store"
	"github.com/wisbric/urumi-provisioner/pkg/tenancy"
)

// Gateway is the full set of cluster operations the orchestrator's pipeline
// and delete flow need, composed from the narrower interfaces each phase
// builder declares for itself.
type Gateway interface {
	tenancy.Gateway
	dbworkload.Gateway
	appworkload.Gateway
	posthook.Gateway

	DeleteNamespace(ctx context.Context, name string) error
	GetNamespace(ctx context.Context, name string) (*corev1.Namespace, error)
	WaitNamespaceGone(ctx context.Context, name string, timeout time.Duration) error
}

// Config parameterizes the orchestrator's timeouts and guardrails (spec §4.8, §6).
type Config struct {
	ProvisioningDeadline time.Duration
	NamespaceGoneTimeout time.Duration
	MaxActiveStores      int
	StoreDomain          string
}

// Orchestrator composes the tenancy builder, workload deployers, post-install
// runner, gateway, repository, and audit log into the create/delete flows
// (spec §2 component 8).
type Orchestrator struct {
	gw       Gateway
	repo     repository.Repository
	auditLog audit.Log
	tenancy  *tenancy.Builder
	db       *dbworkload.Deployer
	app      *appworkload.Deployer
	posthook *posthook.Runner
	cfg      Config
	logger   *slog.Logger
}

// New wires an Orchestrator from its collaborators.
func New(gw Gateway, repo repository.Repository, auditLog audit.Log, cfg Config, dbCfg dbworkload.Config, appCfg appworkload.Config, logger *slog.Logger) *Orchestrator {
	appCfg.StoreDomain = cfg.StoreDomain
	return &Orchestrator{
		gw:       gw,
		repo:     repo,
		auditLog: auditLog,
		tenancy:  tenancy.NewBuilder(gw),
		db:       dbworkload.NewDeployer(gw, dbCfg),
		app:      appworkload.NewDeployer(gw, appCfg),
		posthook: posthook.NewRunner(gw, logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateStore performs admission checks, reserves a store record, and
// dispatches the background pipeline. It returns as soon as the record is
// reserved — the pipeline itself runs on an independent goroutine bound to
// its own deadline (spec §4.8 "Create flow", steps 1-3).
func (o *Orchestrator) CreateStore(ctx context.Context, name string, engine store.Engine, sourceIP string) (*store.Store, error) {
	if engine != store.EngineWooCommerce {
		return nil, apierr.Validation("engine \"medusa\" is reserved; only \"woocommerce\" is supported", nil)
	}
	if !store.ValidName(name) {
		return nil, apierr.Validation("name must be 3-50 lowercase alphanumerics and hyphens", nil)
	}

	active, err := o.repo.CountActive(ctx)
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("counting active stores: %w", err))
	}
	max := o.cfg.MaxActiveStores
	if max <= 0 {
		max = 10
	}
	if active >= max {
		return nil, apierr.Conflict("the active store cap has been reached")
	}

	id, err := store.NewID()
	if err != nil {
		return nil, apierr.Internal(fmt.Errorf("generating store id: %w", err))
	}

	now := time.Now().UTC()
	phase := store.PhaseNamespace
	deadline := now.Add(o.provisioningDeadline())
	s := &store.Store{
		ID:         id,
		Name:       name,
		Namespace:  store.NamespaceFor(id),
		Engine:     engine,
		Status:     store.StatusProvisioning,
		Phase:      &phase,
		CreatedAt:  now,
		UpdatedAt:  now,
		DeadlineAt: &deadline,
	}

	if err := o.repo.Create(ctx, s); err != nil {
		return nil, apierr.Internal(fmt.Errorf("inserting store record: %w", err))
	}

	o.recordAudit(context.WithoutCancel(ctx), audit.Entry{
		Action:    "store.create.requested",
		StoreID:   &s.ID,
		StoreName: &s.Name,
		Engine:    enginePtr(engine),
		SourceIP:  ipPtr(sourceIP),
	})
	o.recordAudit(context.WithoutCancel(ctx), audit.Entry{
		Action:    "store.create.started",
		StoreID:   &s.ID,
		StoreName: &s.Name,
		Engine:    enginePtr(engine),
	})

	telemetry.ActiveStoresGauge.Inc()

	// Dispatch the background pipeline, detached from the request context but
	// bound to its own per-run deadline (spec §5, "workers are cooperative
	// with the shared deadline").
	go o.runPipeline(s.ID, s.Name, s.Namespace, engine)

	return s, nil
}

func (o *Orchestrator) provisioningDeadline() time.Duration {
	if o.cfg.ProvisioningDeadline <= 0 {
		return 300 * time.Second
	}
	return o.cfg.ProvisioningDeadline
}

// runPipeline drives phases namespace -> database -> application ->
// validation in strict order, checkpointing after each success and
// transitioning to failed (with cascade cleanup) on any error (spec §4.8).
func (o *Orchestrator) runPipeline(storeID, storeName, namespace string, engine store.Engine) {
	ctx := context.Background()
	deadline := retry.NewDeadline(o.provisioningDeadline())
	start := time.Now()

	if err := o.runPhases(ctx, deadline, storeID, storeName, namespace); err != nil {
		o.failStore(ctx, storeID, storeName, engine, err)
		return
	}

	telemetry.StoreProvisionsTotal.WithLabelValues("succeeded").Inc()
	o.recordAudit(ctx, audit.Entry{
		Action:     "store.create.succeeded",
		StoreID:    &storeID,
		StoreName:  &storeName,
		Engine:     enginePtr(engine),
		DurationMs: durationPtr(time.Since(start)),
	})
}

func (o *Orchestrator) runPhases(ctx context.Context, deadline *retry.Deadline, storeID, storeName, namespace string) error {
	// Phase 1: namespace.
	phaseStart := time.Now()
	if _, err := retry.Wrap(ctx, deadline, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.tenancy.Build(ctx, namespace, tenancy.Params{StoreID: storeID, StoreName: storeName, Engine: "woocommerce"})
	}); err != nil {
		observePhase(store.PhaseNamespace, phaseStart, false)
		return phaseErr(store.PhaseNamespace, err)
	}
	if _, err := o.repo.Update(ctx, storeID, repository.Patch{Phase: phasePtr(store.PhaseDatabase)}); err != nil {
		observePhase(store.PhaseNamespace, phaseStart, false)
		return phaseErr(store.PhaseNamespace, err)
	}
	observePhase(store.PhaseNamespace, phaseStart, true)

	// Phase 2: database.
	phaseStart = time.Now()
	conn, err := retry.Wrap(ctx, deadline, func(ctx context.Context) (dbworkload.Conn, error) {
		return o.db.Deploy(ctx, namespace, storeName)
	})
	if err != nil {
		observePhase(store.PhaseDatabase, phaseStart, false)
		return phaseErr(store.PhaseDatabase, err)
	}
	dbReady := true
	if _, err := o.repo.Update(ctx, storeID, repository.Patch{DBReady: &dbReady, Phase: phasePtr(store.PhaseApplication)}); err != nil {
		observePhase(store.PhaseDatabase, phaseStart, false)
		return phaseErr(store.PhaseDatabase, err)
	}
	observePhase(store.PhaseDatabase, phaseStart, true)

	// Phase 3: application.
	phaseStart = time.Now()
	appResult, err := retry.Wrap(ctx, deadline, func(ctx context.Context) (appworkload.Result, error) {
		return o.app.Deploy(ctx, namespace, storeID, storeName, conn)
	})
	if err != nil {
		observePhase(store.PhaseApplication, phaseStart, false)
		return phaseErr(store.PhaseApplication, err)
	}
	appReady := true
	if _, err := o.repo.Update(ctx, storeID, repository.Patch{AppReady: &appReady, Phase: phasePtr(store.PhaseValidation)}); err != nil {
		observePhase(store.PhaseApplication, phaseStart, false)
		return phaseErr(store.PhaseApplication, err)
	}
	observePhase(store.PhaseApplication, phaseStart, true)

	// Phase 4: validation. The post-install hook is best-effort: its outcome
	// never fails this phase (spec §4.8 step 4, §4.9).
	phaseStart = time.Now()
	o.posthook.Run(ctx, namespace, storeID, appResult.Hostname)

	url := fmt.Sprintf("http://%s", appResult.Hostname)
	adminURL := url + "/wp-admin"
	readyAt := time.Now().UTC()
	durationMs := int64(0)

	s, err := o.repo.FindByID(ctx, storeID)
	if err == nil && s != nil {
		durationMs = readyAt.Sub(s.CreatedAt).Milliseconds()
	}

	status := store.StatusReady
	if _, err := o.repo.Update(ctx, storeID, repository.Patch{
		Status:                 &status,
		ClearPhase:             true,
		ClearDeadline:          true,
		URL:                    &url,
		AdminURL:               &adminURL,
		ReadyAt:                &readyAt,
		ProvisioningDurationMs: &durationMs,
	}); err != nil {
		observePhase(store.PhaseValidation, phaseStart, false)
		return phaseErr(store.PhaseValidation, err)
	}
	observePhase(store.PhaseValidation, phaseStart, true)

	return nil
}

// observePhase records a phase's duration and outcome in PhaseDuration
// (spec-adjacent telemetry; SPEC_FULL "ambient stack" — carried regardless
// of the spec's silence on metrics, as spec.md Non-goals don't exclude it).
func observePhase(phase store.Phase, start time.Time, succeeded bool) {
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	telemetry.PhaseDuration.WithLabelValues(string(phase), outcome).Observe(time.Since(start).Seconds())
}

// failStore transitions a pipeline run's record to failed, records the
// failure, and attempts cascade cleanup by deleting the namespace — errors
// from cleanup are logged but never change the status back (spec §4.8
// "Failure handling").
func (o *Orchestrator) failStore(ctx context.Context, storeID, storeName string, engine store.Engine, cause error) {
	phase := currentPhase(ctx, o.repo, storeID, cause)
	msg := cause.Error()

	status := store.StatusFailed
	if _, err := o.repo.Update(ctx, storeID, repository.Patch{
		Status:        &status,
		ClearPhase:    true,
		ClearDeadline: true,
		ErrorMessage:  &msg,
		ErrorPhase:    &phase,
	}); err != nil {
		o.logger.Error("failing store record", "store_id", storeID, "error", err)
	}

	telemetry.StoreProvisionsTotal.WithLabelValues("failed").Inc()
	telemetry.ActiveStoresGauge.Dec()

	o.recordAudit(ctx, audit.Entry{
		Action:    "store.create.failed",
		StoreID:   &storeID,
		StoreName: &storeName,
		Engine:    enginePtr(engine),
		Details:   map[string]any{"error": msg, "phase": string(phase)},
	})

	namespace := store.NamespaceFor(storeID)
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := o.gw.DeleteNamespace(cleanupCtx, namespace); err != nil {
		o.logger.Error("cascade cleanup after provisioning failure", "store_id", storeID, "namespace", namespace, "error", err)
	}
}

// currentPhase returns the phase tagged on cause, falling back to the phase
// currently stored on the record (and to namespace if neither is available).
func currentPhase(ctx context.Context, repo repository.Repository, storeID string, cause error) store.Phase {
	if pe, ok := cause.(*phaseError); ok {
		return pe.phase
	}
	s, err := repo.FindByID(ctx, storeID)
	if err == nil && s != nil && s.Phase != nil {
		return *s.Phase
	}
	return store.PhaseNamespace
}

// phaseError tags an error with the phase it occurred in, so failStore can
// record errorPhase without a second repository read racing the write path.
type phaseError struct {
	phase store.Phase
	cause error
}

func (e *phaseError) Error() string { return fmt.Sprintf("phase %s: %v", e.phase, e.cause) }
func (e *phaseError) Unwrap() error { return e.cause }

func phaseErr(phase store.Phase, cause error) error {
	return &phaseError{phase: phase, cause: cause}
}

// DeleteStore initiates the delete flow for id: transition to deleting,
// foreground-propagated namespace delete, wait for gone, soft-delete (spec
// §4.8 "Delete flow"). Deleting an already-deleted store is a no-op success.
func (o *Orchestrator) DeleteStore(ctx context.Context, id, sourceIP string) error {
	s, err := o.repo.FindByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return apierr.NotFound("store not found")
		}
		return apierr.Internal(fmt.Errorf("finding store record: %w", err))
	}

	if s.Status == store.StatusDeleted {
		return nil
	}

	o.recordAudit(ctx, audit.Entry{
		Action:    "store.delete.requested",
		StoreID:   &s.ID,
		StoreName: &s.Name,
		Engine:    enginePtr(s.Engine),
		SourceIP:  ipPtr(sourceIP),
	})

	if !store.CanTransition(s.Status, store.StatusDeleting) {
		return apierr.Conflict(fmt.Sprintf("cannot delete a store in status %q", s.Status))
	}

	deletingStatus := store.StatusDeleting
	if _, err := o.repo.Update(ctx, id, repository.Patch{Status: &deletingStatus}); err != nil {
		return apierr.Internal(fmt.Errorf("transitioning to deleting: %w", err))
	}

	if err := o.deleteResources(ctx, s); err != nil {
		failedStatus := store.StatusFailed
		msg := fmt.Sprintf("Deletion failed: %v", err)
		if _, uerr := o.repo.Update(ctx, id, repository.Patch{Status: &failedStatus, ErrorMessage: &msg}); uerr != nil {
			o.logger.Error("recording delete failure", "store_id", id, "error", uerr)
		}
		if s.IsActive() {
			telemetry.ActiveStoresGauge.Dec()
		}
		o.recordAudit(ctx, audit.Entry{
			Action:    "store.delete.failed",
			StoreID:   &s.ID,
			StoreName: &s.Name,
			Engine:    enginePtr(s.Engine),
			Details:   map[string]any{"error": err.Error()},
		})
		return apierr.Internal(err)
	}

	if err := o.repo.SoftDelete(ctx, id); err != nil {
		return apierr.Internal(fmt.Errorf("soft-deleting store record: %w", err))
	}

	if s.IsActive() {
		telemetry.ActiveStoresGauge.Dec()
	}
	o.recordAudit(ctx, audit.Entry{
		Action:    "store.delete.succeeded",
		StoreID:   &s.ID,
		StoreName: &s.Name,
		Engine:    enginePtr(s.Engine),
	})

	return nil
}

func (o *Orchestrator) deleteResources(ctx context.Context, s *store.Store) error {
	if err := o.gw.DeleteNamespace(ctx, s.Namespace); err != nil {
		return fmt.Errorf("deleting namespace %s: %w", s.Namespace, err)
	}

	timeout := o.cfg.NamespaceGoneTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if err := o.gw.WaitNamespaceGone(ctx, s.Namespace, timeout); err != nil {
		return fmt.Errorf("waiting for namespace %s to be gone: %w", s.Namespace, err)
	}

	return nil
}

// ReapStale scans for provisioning records whose deadline has already
// passed and drives them to failed with cascade cleanup, the same outcome a
// crash-interrupted run would have reached (SPEC_FULL supplement addressing
// the crash-recovery open question in spec §9).
func (o *Orchestrator) ReapStale(ctx context.Context) {
	stale, err := o.repo.FindStaleProvisioning(ctx, time.Now().UTC())
	if err != nil {
		o.logger.Error("finding stale provisioning records", "error", err)
		return
	}

	for _, s := range stale {
		o.logger.Warn("reaping stale provisioning record", "store_id", s.ID, "phase", phaseString(s.Phase))
		o.failStore(ctx, s.ID, s.Name, s.Engine, apierr.DeadlineExceeded("provisioning deadline exceeded before a crash or restart"))
	}
}

// RunReaper runs ReapStale on interval until ctx is cancelled.
func (o *Orchestrator) RunReaper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.ReapStale(ctx)
		}
	}
}

func (o *Orchestrator) recordAudit(ctx context.Context, entry audit.Entry) {
	if o.auditLog == nil {
		return
	}
	if _, err := o.auditLog.Record(ctx, entry); err != nil {
		o.logger.Error("recording audit entry", "action", entry.Action, "error", err)
	}
}

func phasePtr(p store.Phase) *store.Phase { return &p }
func enginePtr(e store.Engine) *string {
	s := string(e)
	return &s
}
func ipPtr(ip string) *string {
	if ip == "" {
		return nil
	}
	return &ip
}
func durationPtr(d time.Duration) *int64 {
	ms := d.Milliseconds()
	return &ms
}
func phaseString(p *store.Phase) string {
	if p == nil {
		return ""
	}
	return string(*p)
}
