package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSM struct {
	params map[string]string
	calls  int
	err    error
}

func (f *fakeSSM) GetParameter(_ context.Context, in *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.params[aws.ToString(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	if !aws.ToBool(in.WithDecryption) {
		return nil, errors.New("expected decryption request")
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{Value: aws.String(value)},
	}, nil
}

func TestResolvePlainPassthrough(t *testing.T) {
	client := &fakeSSM{}
	r, err := NewResolver(client)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.Resolve(t.Context(), "literal-token")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "literal-token" {
		t.Errorf("got %q", got)
	}
	if client.calls != 0 {
		t.Error("plain values must not hit the parameter store")
	}
}

func TestResolveParameterCached(t *testing.T) {
	client := &fakeSSM{params: map[string]string{"/platewise/telegram-token": "tg-secret"}}
	r, err := NewResolver(client)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := r.Resolve(t.Context(), "ssm:///platewise/telegram-token")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if got != "tg-secret" {
			t.Errorf("got %q", got)
		}
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1 (cached)", client.calls)
	}
}

func TestResolveMissingParameter(t *testing.T) {
	r, err := NewResolver(&fakeSSM{params: map[string]string{}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Resolve(t.Context(), "ssm:///nope"); err == nil {
		t.Fatal("expected error for missing parameter")
	}
	if _, err := r.Resolve(t.Context(), Scheme); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestResolveAll(t *testing.T) {
	client := &fakeSSM{params: map[string]string{"/p/a": "A", "/p/b": "B"}}
	r, err := NewResolver(client)
	if err != nil {
		t.Fatal(err)
	}

	a := "ssm:///p/a"
	b := "ssm:///p/b"
	c := "plain"
	if err := r.ResolveAll(t.Context(), &a, &b, &c, nil); err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if a != "A" || b != "B" || c != "plain" {
		t.Errorf("resolved = %q %q %q", a, b, c)
	}
}
