// internal/fhe/coprocessor.go
//
// The Coprocessor is the service-side home of every ciphertext.
// Responsibilities:
//   - Admit external ciphertexts after checking their input attestation
//     and their well-formedness (Wrap).
//   - Keep the ACL: who may compute on, or decrypt, which handle (Allow).
//   - Evaluate homomorphic equality over registered handles (Eq).
//   - Hand ciphertexts to the decryption authority once it has been granted
//     access (Ciphertext).
//
// The Coprocessor never sees a plaintext. Decryption belongs to the oracle.

package fhe

import (
	"context"
	"errors"
	"fmt"
)

// DecryptionAuthority is the ACL grantee used by the decryption oracle.
const DecryptionAuthority = "decryption-authority"

var (
	ErrInvalidProof  = errors.New("invalid input proof")
	ErrUnknownHandle = errors.New("unknown handle")
	ErrNotAllowed    = errors.New("handle not allowed")
	ErrKindMismatch  = errors.New("handle kind mismatch")
)

// InputVerifier checks the attestation that accompanies an external ciphertext.
type InputVerifier interface {
	Verify(token, handle, caller string) error
}

// Coprocessor implements the gateway and comparator contracts.
type Coprocessor struct {
	eval   Evaluator
	inputs InputVerifier
	store  Store
}

// NewCoprocessor wires an evaluator, an input verifier and a ciphertext store.
func NewCoprocessor(eval Evaluator, inputs InputVerifier, st Store) *Coprocessor {
	return &Coprocessor{eval: eval, inputs: inputs, store: st}
}

// InputHandleFor returns the handle an external uint8 ciphertext will get.
// Relayers use it to attest inputs before submission.
func (c *Coprocessor) InputHandleFor(ct []byte) (Handle, error) {
	if err := c.eval.Validate(KindUint8, ct); err != nil {
		return Handle{}, err
	}
	return InputHandle(KindUint8, ct), nil
}

// Wrap admits an external uint8 ciphertext submitted by caller. Every failure
// wraps ErrInvalidProof; nothing is registered unless all checks pass.
func (c *Coprocessor) Wrap(ctx context.Context, ct []byte, proof, caller string) (Handle, error) {
	h := InputHandle(KindUint8, ct)
	if err := c.inputs.Verify(proof, h.String(), caller); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if err := c.eval.Validate(KindUint8, ct); err != nil {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if err := c.store.Put(ctx, h, Record{Kind: KindUint8, Ciphertext: ct}); err != nil {
		return Handle{}, fmt.Errorf("register %s: %w", h, err)
	}
	return h, nil
}

// Allow grants grantee the right to use h.
func (c *Coprocessor) Allow(ctx context.Context, h Handle, grantee string) error {
	if err := c.store.Grant(ctx, h, grantee); err != nil {
		return fmt.Errorf("allow %s for %s: %w", h, grantee, err)
	}
	return nil
}

// Eq computes the encrypted equality of a and b on behalf of caller, who must
// be allowed on both. The result is registered and allowed for caller.
func (c *Coprocessor) Eq(ctx context.Context, a, b Handle, caller string) (Handle, error) {
	ra, err := c.operand(ctx, a, caller)
	if err != nil {
		return Handle{}, err
	}
	rb, err := c.operand(ctx, b, caller)
	if err != nil {
		return Handle{}, err
	}
	if ra.Kind != rb.Kind {
		return Handle{}, fmt.Errorf("%w: %s vs %s", ErrKindMismatch, ra.Kind, rb.Kind)
	}
	ct, err := c.eval.Eq(ra.Ciphertext, rb.Ciphertext)
	if err != nil {
		return Handle{}, fmt.Errorf("eq: %w", err)
	}
	out := ComputedHandle(KindBool, "eq", a, b)
	if err := c.store.Put(ctx, out, Record{Kind: KindBool, Ciphertext: ct}); err != nil {
		return Handle{}, fmt.Errorf("register %s: %w", out, err)
	}
	if err := c.store.Grant(ctx, out, caller); err != nil {
		return Handle{}, fmt.Errorf("allow %s for %s: %w", out, caller, err)
	}
	return out, nil
}

// Ciphertext returns the ciphertext behind h for reader, who must be allowed.
func (c *Coprocessor) Ciphertext(ctx context.Context, h Handle, reader string) (Record, error) {
	return c.operand(ctx, h, reader)
}

func (c *Coprocessor) operand(ctx context.Context, h Handle, who string) (Record, error) {
	rec, err := c.store.Get(ctx, h)
	if err != nil {
		return Record{}, fmt.Errorf("%s: %w", h, err)
	}
	ok, err := c.store.Allowed(ctx, h, who)
	if err != nil {
		return Record{}, fmt.Errorf("acl %s: %w", h, err)
	}
	if !ok {
		return Record{}, fmt.Errorf("%w: %s for %s", ErrNotAllowed, h, who)
	}
	return rec, nil
}
