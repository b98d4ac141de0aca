// Package dbworkload deploys the single-replica database workload each
// tenant gets: a Secret carrying generated credentials, a StatefulSet with
// liveness/readiness probes based on a database ping executable, a PVC
// template, and a headless Service fronting it at a well-known DNS name
// (spec §4.6).
package dbworkload

import (
	"context"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/wisbric/urumi-provisioner/internal/randsecret"
)

const (
	serviceName     = "db"
	statefulSetName = "db"
	secretName      = "db-credentials"
	containerPort   = 3306
	dbImage         = "mariadb:11"
)

// Gateway is the subset of pkg/k8sgateway.Gateway the database workload needs.
type Gateway interface {
	EnsureSecret(ctx context.Context, namespace string, s *corev1.Secret) error
	EnsureStatefulSet(ctx context.Context, namespace string, ss *appsv1.StatefulSet) error
	EnsureService(ctx context.Context, namespace string, svc *corev1.Service) error
	WaitStatefulSetReady(ctx context.Context, namespace, name string, replicas int32, timeout time.Duration) error
}

// Config parameterizes the workload's storage size and readiness timeout
// (spec §6: per-store storage sizes, per-phase timeouts).
type Config struct {
	StorageSize  string
	ReadyTimeout time.Duration
}

// Conn is the connection descriptor the application phase needs (spec §4.6:
// "the phase returns a connection descriptor").
type Conn struct {
	Host       string
	Port       int
	DBName     string
	User       string
	SecretName string
}

// Deployer drives the database phase for one tenant namespace.
type Deployer struct {
	gw  Gateway
	cfg Config
}

// NewDeployer wraps gw with cfg.
func NewDeployer(gw Gateway, cfg Config) *Deployer {
	return &Deployer{gw: gw, cfg: cfg}
}

// Deploy emits the secret, statefulset, and headless service for namespace,
// waits for the workload to report ready, and returns its connection
// descriptor (spec §4.6).
func (d *Deployer) Deploy(ctx context.Context, namespace, storeName string) (Conn, error) {
	rootPassword, err := randsecret.Generate(24)
	if err != nil {
		return Conn{}, fmt.Errorf("generating db root password: %w", err)
	}
	userPassword, err := randsecret.Generate(24)
	if err != nil {
		return Conn{}, fmt.Errorf("generating db user password: %w", err)
	}

	dbName := "wordpress"
	dbUser := "wordpress"

	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: secretName},
		Type:       corev1.SecretTypeOpaque,
		StringData: map[string]string{
			"root-password": rootPassword,
			"db-user":       dbUser,
			"db-password":   userPassword,
			"db-name":       dbName,
		},
	}
	if err := d.gw.EnsureSecret(ctx, namespace, secret); err != nil {
		return Conn{}, fmt.Errorf("ensuring db secret in %s: %w", namespace, err)
	}

	if err := d.gw.EnsureService(ctx, namespace, headlessService()); err != nil {
		return Conn{}, fmt.Errorf("ensuring db service in %s: %w", namespace, err)
	}

	if err := d.gw.EnsureStatefulSet(ctx, namespace, statefulSet(d.cfg.StorageSize)); err != nil {
		return Conn{}, fmt.Errorf("ensuring db statefulset in %s: %w", namespace, err)
	}

	timeout := d.cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if err := d.gw.WaitStatefulSetReady(ctx, namespace, statefulSetName, 1, timeout); err != nil {
		return Conn{}, fmt.Errorf("waiting for db statefulset ready in %s: %w", namespace, err)
	}

	return Conn{
		Host:       fmt.Sprintf("%s.%s.svc.cluster.local", serviceName, namespace),
		Port:       containerPort,
		DBName:     dbName,
		User:       dbUser,
		SecretName: secretName,
	}, nil
}

func headlessService() *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: serviceName},
		Spec: corev1.ServiceSpec{
			ClusterIP: corev1.ClusterIPNone,
			Selector:  map[string]string{"app": statefulSetName},
			Ports: []corev1.ServicePort{
				{Name: "mysql", Port: containerPort, TargetPort: intOrString(containerPort)},
			},
		},
	}
}

func statefulSet(storageSize string) *appsv1.StatefulSet {
	if storageSize == "" {
		storageSize = "5Gi"
	}
	replicas := int32(1)
	labels := map[string]string{"app": statefulSetName}
	pingProbe := &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			Exec: &corev1.ExecAction{
				Command: []string{"mysqladmin", "ping", "-h", "localhost", "-u", "root", "-p$(MARIADB_ROOT_PASSWORD)"},
			},
		},
		InitialDelaySeconds: 10,
		PeriodSeconds:       10,
		TimeoutSeconds:      5,
	}

	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: statefulSetName},
		Spec: appsv1.StatefulSetSpec{
			Replicas:    &replicas,
			ServiceName: serviceName,
			Selector:    &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  "mariadb",
							Image: dbImage,
							Ports: []corev1.ContainerPort{{ContainerPort: containerPort}},
							Env: []corev1.EnvVar{
								envFromSecret("MARIADB_ROOT_PASSWORD", secretName, "root-password"),
								envFromSecret("MARIADB_DATABASE", secretName, "db-name"),
								envFromSecret("MARIADB_USER", secretName, "db-user"),
								envFromSecret("MARIADB_PASSWORD", secretName, "db-password"),
							},
							LivenessProbe:  pingProbe,
							ReadinessProbe: pingProbe,
							Resources: corev1.ResourceRequirements{
								Requests: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("250m"),
									corev1.ResourceMemory: resource.MustParse("256Mi"),
								},
								Limits: corev1.ResourceList{
									corev1.ResourceCPU:    resource.MustParse("1"),
									corev1.ResourceMemory: resource.MustParse("1Gi"),
								},
							},
							VolumeMounts: []corev1.VolumeMount{
								{Name: "data", MountPath: "/var/lib/mysql"},
							},
						},
					},
				},
			},
			VolumeClaimTemplates: []corev1.PersistentVolumeClaim{
				{
					ObjectMeta: metav1.ObjectMeta{Name: "data"},
					Spec: corev1.PersistentVolumeClaimSpec{
						AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
						Resources: corev1.VolumeResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceStorage: resource.MustParse(storageSize),
							},
						},
					},
				},
			},
		},
	}
}

func envFromSecret(name, secret, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secret},
				Key:                  key,
			},
		},
	}
}

func intOrString(port int32) intstr.IntOrString {
	return intstr.FromInt32(port)
}
