package k8sgateway

import (
	"bytes"
	"context"
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/remotecommand"
)

// ExecInPod runs argv inside pod via the cluster's pod-exec subresource.
// Arguments are passed as a literal argv vector — never through a shell
// (spec §4.9, §9). timeout bounds this single command.
func (g *Gateway) ExecInPod(ctx context.Context, namespace, pod string, argv []string, timeout time.Duration) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := g.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec")

	req.VersionedParams(&corev1.PodExecOptions{
		Command: argv,
		Stdin:   false,
		Stdout:  true,
		Stderr:  true,
		TTY:     false,
	}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(g.restCfg, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("creating exec stream: %w", err)
	}

	var stdout, stderr bytes.Buffer
	err = executor.StreamWithContext(execCtx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	})
	if err != nil {
		return stdout.String(), fmt.Errorf("executing %v in pod %s/%s: %w (stderr: %s)", argv, namespace, pod, err, stderr.String())
	}

	return stdout.String(), nil
}
