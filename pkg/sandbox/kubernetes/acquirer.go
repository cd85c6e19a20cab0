// Package kubernetes acquires sandbox servers by creating agent-sandbox
// SandboxClaims.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/config"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/finquery/pkg/debug"
	"github.com/rhuss/finquery/pkg/sandbox/remote"
)

var _ remote.Acquirer = (*ClaimAcquirer)(nil)

// Config configures a ClaimAcquirer.
type Config struct {
	Template  string
	Namespace string        // default: "default"
	Timeout   time.Duration // readiness wait, default: 2m
	Port      int           // sandbox server port, default: 8080
}

// ClaimAcquirer creates one SandboxClaim per execution, waits for the
// Sandbox to become ready and deletes the claim on release.
type ClaimAcquirer struct {
	client client.Client
	cfg    Config
	poll   time.Duration
}

// NewClaimAcquirer returns a ClaimAcquirer using c.
func NewClaimAcquirer(c client.Client, cfg Config) *ClaimAcquirer {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Port <= 0 {
		cfg.Port = 8080
	}
	return &ClaimAcquirer{client: c, cfg: cfg, poll: 500 * time.Millisecond}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// NewClient builds a client from the in-cluster config or the local
// kubeconfig.
func NewClient() (client.Client, error) {
	restCfg, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("kubernetes config: %w", err)
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	return client.New(restCfg, client.Options{Scheme: scheme})
}

// Acquire creates a SandboxClaim and returns http://<serviceFQDN>:<port>
// once the Sandbox is ready. The claim is deleted on release or when
// waiting fails.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := claimName()
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.cfg.Namespace,
			Labels:    map[string]string{"app.kubernetes.io/managed-by": "finquery"},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.cfg.Template},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", name, "namespace", a.cfg.Namespace, "template", a.cfg.Template)

	fqdn, err := a.waitForReady(ctx, name)
	if err != nil {
		a.deleteClaim(name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.cfg.Port)
	debug.Log("sandbox", "sandbox acquired", "name", name, "url", url)
	return url, func() { a.deleteClaim(name) }, nil
}

// waitForReady polls the Sandbox named after the claim until its Ready
// condition is true and its service FQDN is set.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(a.poll)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.cfg.Namespace}
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for Sandbox %q (up to %s): %w", name, a.cfg.Timeout, ctx.Err())
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(ctx, key, sb); err != nil {
				// The controller may not have created it yet.
				continue
			}
			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim runs on release and cleanup paths; errors are logged only.
func (a *ClaimAcquirer) deleteClaim(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.cfg.Namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.cfg.Namespace, "error", err)
	}
}

// claimName is replaced in tests.
var claimName = func() string {
	return "finquery-" + uuid.NewString()[:8]
}
