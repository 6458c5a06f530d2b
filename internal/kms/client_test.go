package kms

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

type fakeAPI struct {
	in  *kms.DecryptInput
	out []byte
	err error
}

func (f *fakeAPI) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &kms.DecryptOutput{Plaintext: f.out}, nil
}

func TestDecryptPinsKeyID(t *testing.T) {
	api := &fakeAPI{out: []byte("secret")}
	c := NewWithAPI(api, "alias/p2pswap-signer")

	got, err := c.Decrypt(context.Background(), []byte("blob"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "secret" {
		t.Errorf("unexpected plaintext: %q", got)
	}
	if aws.ToString(api.in.KeyId) != "alias/p2pswap-signer" {
		t.Errorf("expected key id to be pinned, got %q", aws.ToString(api.in.KeyId))
	}
	if string(api.in.CiphertextBlob) != "blob" {
		t.Errorf("unexpected ciphertext: %q", api.in.CiphertextBlob)
	}
}

func TestDecryptWithoutKeyID(t *testing.T) {
	api := &fakeAPI{out: []byte("secret")}
	if _, err := NewWithAPI(api, "").Decrypt(context.Background(), []byte("blob")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if api.in.KeyId != nil {
		t.Errorf("expected no key id, got %q", aws.ToString(api.in.KeyId))
	}
}

func TestDecryptError(t *testing.T) {
	denied := errors.New("AccessDeniedException")
	_, err := NewWithAPI(&fakeAPI{err: denied}, "k").Decrypt(context.Background(), []byte("blob"))
	if !errors.Is(err, denied) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
