// Package k8sgateway is a thin façade around the cluster API exposing only
// the operations the provisioning pipeline needs: ensure-style create-if-
// absent mutations, readiness reads, namespace deletion, pod listing, and a
// shell-free exec channel (spec §4.2).
package k8sgateway

import (
	"fmt"
	"path/filepath"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

// NewClientset builds a typed Kubernetes clientset, preferring in-cluster
// configuration (service-account env vars) and falling back to a kubeconfig
// file — an explicit path if given, else the default ~/.kube/config (spec §6:
// "cluster config location: auto-detect in-cluster ... otherwise kubeconfig
// path or default").
func NewClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		if kubeconfigPath == "" {
			if home := homedir.HomeDir(); home != "" {
				kubeconfigPath = filepath.Join(home, ".kube", "config")
			}
		}
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
		if err != nil {
			return nil, fmt.Errorf("building kubeconfig from %q: %w", kubeconfigPath, err)
		}
	}

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes clientset: %w", err)
	}
	return clientset, nil
}

// NewRESTConfig resolves the same in-cluster/kubeconfig configuration as
// NewClientset and returns the raw *rest.Config, needed by the exec channel.
func NewRESTConfig(kubeconfigPath string) (*rest.Config, error) {
	cfg, err := rest.InClusterConfig()
	if err == nil {
		return cfg, nil
	}

	if kubeconfigPath == "" {
		if home := homedir.HomeDir(); home != "" {
			kubeconfigPath = filepath.Join(home, ".kube", "config")
		}
	}
	cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("building kubeconfig from %q: %w", kubeconfigPath, err)
	}
	return cfg, nil
}
