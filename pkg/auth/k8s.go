package auth

import (
	"errors"
	"net/http"

	authenticationv1 "k8s.io/api/authentication/v1"
	authorizationv1 "k8s.io/api/authorization/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ErrUnauthenticated is returned when the request carries no usable
// credentials (missing/malformed Authorization header, or the cluster
// rejected the token).
var ErrUnauthenticated = errors.New("unauthenticated")

// ErrForbidden is returned when the token is valid but the SubjectAccessReview
// denies the configured authorization check.
var ErrForbidden = errors.New("forbidden")

// K8sConfig configures the K8s auth module.
type K8sConfig struct {
	// ClusterAdminName is the cluster user whose identity is substituted
	// with ClusterID, so a single "break glass" admin account maps to a
	// stable synthetic user id instead of its raw cluster username.
	ClusterAdminName string
	ClusterID        string
	// NonResourceURL is the path checked via SubjectAccessReview (verb=get).
	NonResourceURL string
}

// K8s authenticates bearer tokens against the cluster's TokenReview API and
// authorizes them via SubjectAccessReview against a configured
// non-resource URL.
type K8s struct {
	client kubernetes.Interface
	cfg    K8sConfig
}

// NewK8s constructs a K8s auth module from an existing clientset (typically
// built from in-cluster config or a kubeconfig at startup).
func NewK8s(client kubernetes.Interface, cfg K8sConfig) *K8s {
	return &K8s{client: client, cfg: cfg}
}

// Authenticate implements Module.
func (k *K8s) Authenticate(r *http.Request) (Tuple, error) {
	token := bearerToken(r)
	if token == "" {
		return Tuple{}, ErrUnauthenticated
	}

	ctx := r.Context()
	review, err := k.client.AuthenticationV1().TokenReviews().Create(ctx, &authenticationv1.TokenReview{
		Spec: authenticationv1.TokenReviewSpec{Token: token},
	}, metav1.CreateOptions{})
	if err != nil || !review.Status.Authenticated {
		return Tuple{}, ErrUnauthenticated
	}

	userName := review.Status.User.Username
	uid := userName
	if userName == k.cfg.ClusterAdminName {
		uid = k.cfg.ClusterID
	}

	sar, err := k.client.AuthorizationV1().SubjectAccessReviews().Create(ctx, &authorizationv1.SubjectAccessReview{
		Spec: authorizationv1.SubjectAccessReviewSpec{
			User:   userName,
			UID:    review.Status.User.UID,
			Groups: review.Status.User.Groups,
			NonResourceAttributes: &authorizationv1.NonResourceAttributes{
				Path: k.cfg.NonResourceURL,
				Verb: "get",
			},
		},
	}, metav1.CreateOptions{})
	if err != nil || !sar.Status.Allowed {
		return Tuple{}, ErrForbidden
	}

	return Tuple{
		UserID:   uid,
		UserName: userName,
		Token:    token,
	}, nil
}
