package chaos

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes/fake"
	k8stesting "k8s.io/client-go/testing"
)

func runningPod(namespace, name string, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace, Labels: labels},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
}

func TestListPodsFiltersEligibility(t *testing.T) {
	apiLabels := map[string]string{"app": "api"}

	pending := runningPod("loadtest", "api-pending", apiLabels)
	pending.Status.Phase = corev1.PodPending

	terminating := runningPod("loadtest", "api-terminating", apiLabels)
	now := metav1.Now()
	terminating.DeletionTimestamp = &now

	cs := fake.NewSimpleClientset(
		runningPod("loadtest", "api-0", apiLabels),
		runningPod("loadtest", "db-0", map[string]string{"app": "db"}),
		runningPod("other", "api-1", apiLabels),
		pending,
		terminating,
	)
	client := NewClientForTest(cs)

	pods, err := client.ListPods(context.Background(), "loadtest", "app=api")
	require.NoError(t, err)
	require.Len(t, pods, 1)
	assert.Equal(t, "api-0", pods[0].Name)
}

func TestListPodsRetriesServerErrors(t *testing.T) {
	cs := fake.NewSimpleClientset(runningPod("loadtest", "api-0", map[string]string{"app": "api"}))

	calls := 0
	cs.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		if calls == 1 {
			return true, nil, apierrors.NewInternalError(fmt.Errorf("etcd leader changed"))
		}
		return false, nil, nil
	})

	client := NewClientForTest(cs)
	pods, err := client.ListPods(context.Background(), "loadtest", "app=api")
	require.NoError(t, err)
	assert.Len(t, pods, 1)
	assert.Equal(t, 2, calls)
}

func TestListPodsDoesNotRetryForbidden(t *testing.T) {
	cs := fake.NewSimpleClientset()

	calls := 0
	cs.PrependReactor("list", "pods", func(action k8stesting.Action) (bool, runtime.Object, error) {
		calls++
		return true, nil, apierrors.NewForbidden(
			corev1.Resource("pods"), "", fmt.Errorf("not allowed"))
	})

	client := NewClientForTest(cs)
	_, err := client.ListPods(context.Background(), "loadtest", "app=api")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDeletePod(t *testing.T) {
	cs := fake.NewSimpleClientset(runningPod("loadtest", "api-0", nil))
	client := NewClientForTest(cs)

	err := client.DeletePod(context.Background(), "loadtest", "api-0", 0)
	require.NoError(t, err)

	_, err = cs.CoreV1().Pods("loadtest").Get(context.Background(), "api-0", metav1.GetOptions{})
	assert.True(t, apierrors.IsNotFound(err))
}

func TestDeletePodMissing(t *testing.T) {
	client := NewClientForTest(fake.NewSimpleClientset())

	err := client.DeletePod(context.Background(), "loadtest", "nope", 0)
	assert.Error(t, err)
}

func TestGetPodUsageRequiresConfig(t *testing.T) {
	client := NewClientForTest(fake.NewSimpleClientset())

	_, err := client.GetPodUsage(context.Background(), "loadtest", "api-0")
	assert.ErrorContains(t, err, "rest config")
}
