package chaos

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/metrics/pkg/client/clientset/versioned"
)

// Package chaos terminates pods on a schedule and records every attempt in
// an event log the analysis pipeline ingests directly.
//
// Responsibilities:
//   - Wrap client-go with in-cluster and kubeconfig fallback, call timeouts,
//     and API rate limiting
//   - Pick random victims from the plan's targets and delete them (or record
//     a dry run without touching the cluster)
//   - Write the Pod / Termination Time / Status rows the analyzer consumes
//   - Snapshot victim CPU and memory usage via the metrics API when available

const (
	// defaultAPITimeout bounds each outbound Kubernetes API call.
	defaultAPITimeout = 10 * time.Second

	// Token bucket for outbound API calls, shared by list and delete.
	defaultAPIRate  = rate.Limit(5)
	defaultAPIBurst = 10
)

// Client wraps Kubernetes client-go for the injector.
type Client struct {
	Clientset kubernetes.Interface
	Config    *rest.Config

	// timeout bounds outbound API calls; 0 means request context only.
	timeout time.Duration
	// limiter rate-limits outbound API calls. Nil means no limit.
	limiter *rate.Limiter
}

// NewClient creates a Kubernetes client. With an empty kubeconfig path it
// tries in-cluster config first and falls back to ~/.kube/config.
func NewClient(kubeconfigPath string) (*Client, error) {
	var config *rest.Config
	var err error

	if kubeconfigPath == "" {
		config, err = rest.InClusterConfig()
		if err != nil {
			homeDir, _ := os.UserHomeDir()
			if homeDir != "" {
				kubeconfigPath = filepath.Join(homeDir, ".kube", "config")
			}
		}
	}

	if config == nil {
		config, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
			&clientcmd.ClientConfigLoadingRules{ExplicitPath: kubeconfigPath},
			&clientcmd.ConfigOverrides{},
		).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to build config: %w", err)
		}
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	return &Client{
		Clientset: clientset,
		Config:    config,
		timeout:   defaultAPITimeout,
		limiter:   rate.NewLimiter(defaultAPIRate, defaultAPIBurst),
	}, nil
}

// NewClientForTest creates a Client around the given Clientset. Config is
// nil, so callers must not use methods that need it (GetPodUsage).
func NewClientForTest(clientset kubernetes.Interface) *Client {
	return &Client{
		Clientset: clientset,
		timeout:   defaultAPITimeout,
	}
}

func (c *Client) waitRateLimit(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// withTimeout returns ctx with the call timeout applied if one is set;
// otherwise it returns ctx and a no-op cancel.
func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return ctx, func() {}
}

// ListPods returns pods matching the label selector that are running and
// not already terminating. Only those are worth disrupting.
func (c *Client) ListPods(ctx context.Context, namespace, selector string) ([]corev1.Pod, error) {
	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	list, err := doWithRetryValue(ctx, defaultRetryAttempts, func() (*corev1.PodList, error) {
		return c.Clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
	})
	if err != nil {
		return nil, fmt.Errorf("listing pods in %s: %w", namespace, err)
	}

	pods := make([]corev1.Pod, 0, len(list.Items))
	for _, pod := range list.Items {
		if pod.Status.Phase != corev1.PodRunning || pod.DeletionTimestamp != nil {
			continue
		}
		pods = append(pods, pod)
	}
	return pods, nil
}

// DeletePod deletes one pod with the given grace period. Deletes are not
// retried: a timeout after a successful server-side delete must not turn
// into a second kill.
func (c *Client) DeletePod(ctx context.Context, namespace, name string, graceSeconds int64) error {
	if err := c.waitRateLimit(ctx); err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	opts := metav1.DeleteOptions{}
	if graceSeconds >= 0 {
		opts.GracePeriodSeconds = &graceSeconds
	}
	if err := c.Clientset.CoreV1().Pods(namespace).Delete(ctx, name, opts); err != nil {
		return fmt.Errorf("deleting pod %s/%s: %w", namespace, name, err)
	}
	return nil
}

// PodUsage is one resource snapshot of a pod, summed over its containers.
type PodUsage struct {
	CPUMilli    int64
	MemoryBytes int64
}

// GetPodUsage reads current usage from the metrics API. It needs a real
// rest config and a metrics-server in the cluster; callers treat failure
// as "no snapshot", not as a broken run.
func (c *Client) GetPodUsage(ctx context.Context, namespace, name string) (*PodUsage, error) {
	if c.Config == nil {
		return nil, fmt.Errorf("metrics API requires a rest config")
	}
	metricsClient, err := versioned.NewForConfig(c.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics client: %w", err)
	}

	if err := c.waitRateLimit(ctx); err != nil {
		return nil, err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	podMetrics, err := metricsClient.MetricsV1beta1().PodMetricses(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get pod metrics: %w", err)
	}

	usage := &PodUsage{}
	for _, container := range podMetrics.Containers {
		usage.CPUMilli += container.Usage.Cpu().MilliValue()
		usage.MemoryBytes += container.Usage.Memory().Value()
	}
	return usage, nil
}
