// Package secrets resolves configuration values of the form
// "ssm://<parameter-name>" against AWS Systems Manager Parameter
// Store. Plain values pass through untouched, so local setups can skip
// the store entirely.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// Scheme marks a value as a parameter reference.
const Scheme = "ssm://"

// ParameterAPI is the slice of the SSM client the resolver uses.
type ParameterAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver fetches and caches decrypted parameters. Safe for
// concurrent use. The cache lives for the process: rotated secrets
// take effect on restart.
type Resolver struct {
	client ParameterAPI

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a Resolver over the given SSM client.
func NewResolver(client ParameterAPI) (*Resolver, error) {
	if client == nil {
		return nil, errors.New("secrets: resolver requires an ssm client")
	}
	return &Resolver{client: client, cache: map[string]string{}}, nil
}

// Resolve returns the value as-is unless it carries the ssm:// scheme,
// in which case the named parameter is fetched with decryption.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, Scheme) {
		return value, nil
	}
	name := strings.TrimPrefix(value, Scheme)
	if name == "" {
		return "", errors.New("secrets: empty parameter name")
	}

	r.mu.Lock()
	cached, ok := r.cache[name]
	r.mu.Unlock()
	if ok {
		return cached, nil
	}

	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("secrets: get parameter %s: %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("secrets: parameter %s has no value", name)
	}

	resolved := aws.ToString(out.Parameter.Value)
	r.mu.Lock()
	r.cache[name] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// ResolveAll resolves every entry in place, failing on the first
// unresolvable reference.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
