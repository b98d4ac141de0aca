// Package posthook runs the best-effort WooCommerce post-install
// configuration sequence through a shell-free pod-exec channel (spec §4.9).
// Every individual command failure is logged as a warning; the hook as a
// whole never fails the validation phase.
package posthook

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Gateway is the subset of pkg/k8sgateway.Gateway the post-install hook needs.
type Gateway interface {
	ListPodsByLabel(ctx context.Context, namespace, selector string) ([]string, error)
	ExecInPod(ctx context.Context, namespace, pod string, argv []string, timeout time.Duration) (string, error)
}

// commandTimeout is the fixed per-command timeout the spec mandates.
const commandTimeout = 30 * time.Second

// podSelector finds the application pod the hook configures.
const podSelector = "app=app"

// wpCLI is the argv prefix every command runs through, matching how the
// WordPress container image exposes wp-cli.
var wpCLI = []string{"wp", "--path=/var/www/html", "--allow-root"}

// sampleProducts is the fixed list of idempotent-by-SKU sample products the
// hook creates (spec §4.9 step iii).
var sampleProducts = []struct {
	sku, name, price string
}{
	{"URUMI-DEMO-001", "Sample T-Shirt", "19.99"},
	{"URUMI-DEMO-002", "Sample Mug", "12.50"},
	{"URUMI-DEMO-003", "Sample Tote Bag", "15.00"},
}

// Runner drives the post-install sequence for one tenant namespace.
type Runner struct {
	gw     Gateway
	logger *slog.Logger
}

// NewRunner wraps gw.
func NewRunner(gw Gateway, logger *slog.Logger) *Runner {
	return &Runner{gw: gw, logger: logger}
}

// Run resolves the application pod and executes the configuration sequence.
// It never returns an error that should fail the validation phase — every
// failure, including a missing pod, is logged as a warning (spec §4.9).
func (r *Runner) Run(ctx context.Context, namespace, storeID, hostname string) {
	pods, err := r.gw.ListPodsByLabel(ctx, namespace, podSelector)
	if err != nil {
		r.logger.Warn("post-install: listing application pods failed", "namespace", namespace, "store_id", storeID, "error", err)
		return
	}
	if len(pods) == 0 {
		r.logger.Warn("post-install: no application pod found", "namespace", namespace, "store_id", storeID)
		return
	}
	pod := pods[0]

	r.installStorefrontPages(ctx, namespace, pod, storeID)
	r.enableCashOnDelivery(ctx, namespace, pod, storeID)
	r.createSampleProducts(ctx, namespace, pod, storeID)
	r.writeStoreSettings(ctx, namespace, pod, storeID, hostname)
	r.flushRewriteRules(ctx, namespace, pod, storeID)
}

func (r *Runner) exec(ctx context.Context, namespace, pod, storeID, step string, argv []string) {
	if _, err := r.gw.ExecInPod(ctx, namespace, pod, argv, commandTimeout); err != nil {
		r.logger.Warn("post-install step failed", "namespace", namespace, "store_id", storeID, "step", step, "error", err)
	}
}

func (r *Runner) installStorefrontPages(ctx context.Context, namespace, pod, storeID string) {
	pages := []string{"Shop", "Cart", "Checkout", "My Account"}
	for _, page := range pages {
		argv := append(append([]string{}, wpCLI...), "post", "create", "--post_type=page", "--post_status=publish", "--post_title="+page)
		r.exec(ctx, namespace, pod, storeID, "install-storefront-page:"+page, argv)
	}
}

func (r *Runner) enableCashOnDelivery(ctx context.Context, namespace, pod, storeID string) {
	argv := append(append([]string{}, wpCLI...), "option", "update", "woocommerce_cod_settings",
		`{"enabled":"yes","title":"Cash on delivery","instructions":"Pay with cash upon delivery."}`, "--format=json")
	r.exec(ctx, namespace, pod, storeID, "enable-cash-on-delivery", argv)
}

func (r *Runner) createSampleProducts(ctx context.Context, namespace, pod, storeID string) {
	for _, p := range sampleProducts {
		argv := append(append([]string{}, wpCLI...), "wc", "product", "create",
			"--name="+p.name, "--sku="+p.sku, "--regular_price="+p.price, "--type=simple", "--user=admin")
		r.exec(ctx, namespace, pod, storeID, "create-sample-product:"+p.sku, argv)
	}
}

func (r *Runner) writeStoreSettings(ctx context.Context, namespace, pod, storeID, hostname string) {
	argv := append(append([]string{}, wpCLI...), "option", "update", "woocommerce_store_address", fmt.Sprintf("http://%s", hostname))
	r.exec(ctx, namespace, pod, storeID, "write-store-settings", argv)
}

func (r *Runner) flushRewriteRules(ctx context.Context, namespace, pod, storeID string) {
	argv := append(append([]string{}, wpCLI...), "rewrite", "flush", "--hard")
	r.exec(ctx, namespace, pod, storeID, "flush-rewrite-rules", argv)
}
