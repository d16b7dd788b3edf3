// internal/fhe/bgv/bgv.go
//
// BGV scheme over lattigo v6.
// Responsibilities:
//   - Key generation and persistence (secret and public key).
//   - Scalar encoding of uint8 values: every slot holds v.
//   - Homomorphic equality: (a - b) * r with r a fresh plaintext of random
//     nonzero slots. Every slot decrypts to 0 iff a and b agree there, and
//     to a uniformly random nonzero value otherwise.
//
// Clients encrypt with an Encryptor built from the public key alone. The
// evaluator needs no evaluation keys; the secret key is only touched by
// DecryptBool.

package bgv

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tuneinsight/lattigo/v6/core/rlwe"
	"github.com/tuneinsight/lattigo/v6/schemes/bgv"

	"github.com/chandiniv1/secret-number-game/internal/fhe"
)

const (
	fileSecret = "bgv_sk.bin"
	filePublic = "bgv_pk.bin"
)

// Literal is the fixed parameter set. One plaintext multiplication fits
// comfortably in two 54-bit moduli.
var Literal = bgv.ParametersLiteral{
	LogN:             13,
	LogQ:             []int{54, 54},
	LogP:             []int{55},
	PlaintextModulus: 65537,
}

// Keys is the key material of one deployment.
type Keys struct {
	Secret *rlwe.SecretKey
	Public *rlwe.PublicKey
}

// Encryptor is the client side of the scheme. It holds the public key only.
type Encryptor struct {
	params    bgv.Parameters
	public    *rlwe.PublicKey
	encoder   *bgv.Encoder
	encryptor *rlwe.Encryptor
}

var _ fhe.Encryptor = (*Encryptor)(nil)

// Scheme implements fhe.Scheme.
type Scheme struct {
	*Encryptor
	secret    *rlwe.SecretKey
	decryptor *rlwe.Decryptor
	evaluator *bgv.Evaluator
}

var (
	_ fhe.Scheme            = (*Scheme)(nil)
	_ fhe.Describer         = (*Scheme)(nil)
	_ fhe.PublicKeyExporter = (*Scheme)(nil)
)

// Params returns the parameters built from Literal.
func Params() (bgv.Parameters, error) {
	return bgv.NewParametersFromLiteral(Literal)
}

// GenerateKeys draws a fresh key pair.
func GenerateKeys() (Keys, error) {
	params, err := Params()
	if err != nil {
		return Keys{}, err
	}
	sk, pk := rlwe.NewKeyGenerator(params).GenKeyPairNew()
	return Keys{Secret: sk, Public: pk}, nil
}

// NewEncryptor builds a client encryptor around pk.
func NewEncryptor(pk *rlwe.PublicKey) (*Encryptor, error) {
	if pk == nil {
		return nil, errors.New("bgv: missing public key")
	}
	params, err := Params()
	if err != nil {
		return nil, err
	}
	return &Encryptor{
		params:    params,
		public:    pk,
		encoder:   bgv.NewEncoder(params),
		encryptor: rlwe.NewEncryptor(params, pk),
	}, nil
}

// New builds a scheme around keys.
func New(keys Keys) (*Scheme, error) {
	if keys.Secret == nil || keys.Public == nil {
		return nil, errors.New("bgv: incomplete key set")
	}
	enc, err := NewEncryptor(keys.Public)
	if err != nil {
		return nil, err
	}
	return &Scheme{
		Encryptor: enc,
		secret:    keys.Secret,
		decryptor: rlwe.NewDecryptor(enc.params, keys.Secret),
		evaluator: bgv.NewEvaluator(enc.params, nil),
	}, nil
}

// Generate is GenerateKeys followed by New.
func Generate() (*Scheme, error) {
	keys, err := GenerateKeys()
	if err != nil {
		return nil, err
	}
	return New(keys)
}

func (s *Scheme) Name() string { return "bgv" }

// Describe returns the public parameters clients need to encrypt.
func (s *Scheme) Describe() map[string]any {
	return map[string]any{
		"logN":             s.params.LogN(),
		"logQ":             Literal.LogQ,
		"logP":             Literal.LogP,
		"plaintextModulus": s.params.PlaintextModulus(),
		"slots":            s.params.MaxSlots(),
	}
}

// PublicKey returns the marshalled public key.
func (e *Encryptor) PublicKey() ([]byte, error) {
	return e.public.MarshalBinary()
}

// EncryptUint8 encrypts v into every slot.
func (e *Encryptor) EncryptUint8(v uint8) ([]byte, error) {
	slots := make([]uint64, e.params.MaxSlots())
	for i := range slots {
		slots[i] = uint64(v)
	}
	return e.encryptSlots(slots)
}

func (e *Encryptor) encryptSlots(slots []uint64) ([]byte, error) {
	pt := bgv.NewPlaintext(e.params, e.params.MaxLevel())
	if err := e.encoder.Encode(slots, pt); err != nil {
		return nil, fmt.Errorf("bgv: encode: %w", err)
	}
	ct, err := e.encryptor.EncryptNew(pt)
	if err != nil {
		return nil, fmt.Errorf("bgv: encrypt: %w", err)
	}
	return ct.MarshalBinary()
}

// Validate parses ct and checks its shape. Both kinds are degree-1
// ciphertexts at a level this parameter set can produce; inputs also carry
// the default scale.
func (s *Scheme) Validate(kind fhe.Kind, ct []byte) error {
	if kind != fhe.KindUint8 && kind != fhe.KindBool {
		return fmt.Errorf("%w: unsupported kind %s", fhe.ErrMalformedCiphertext, kind)
	}
	c, err := s.parse(ct)
	if err != nil {
		return err
	}
	if kind == fhe.KindUint8 && c.Scale.Cmp(s.params.DefaultScale()) != 0 {
		return fmt.Errorf("%w: unexpected scale", fhe.ErrMalformedCiphertext)
	}
	return nil
}

// Eq computes (a - b) * r slot-wise with a fresh random nonzero mask r.
func (s *Scheme) Eq(a, b []byte) ([]byte, error) {
	ca, err := s.parse(a)
	if err != nil {
		return nil, err
	}
	cb, err := s.parse(b)
	if err != nil {
		return nil, err
	}
	diff, err := s.evaluator.SubNew(ca, cb)
	if err != nil {
		return nil, fmt.Errorf("bgv: sub: %w", err)
	}
	mask, err := s.mask(diff.Level())
	if err != nil {
		return nil, err
	}
	out, err := s.evaluator.MulNew(diff, mask)
	if err != nil {
		return nil, fmt.Errorf("bgv: mul: %w", err)
	}
	return out.MarshalBinary()
}

// mask encodes uniformly random values in [1, t) at level.
func (s *Scheme) mask(level int) (*rlwe.Plaintext, error) {
	t := s.params.PlaintextModulus()
	slots := make([]uint64, s.params.MaxSlots())
	buf := make([]byte, 8*len(slots))
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("bgv: mask: %w", err)
	}
	for i := range slots {
		slots[i] = 1 + binary.LittleEndian.Uint64(buf[8*i:])%(t-1)
	}
	pt := bgv.NewPlaintext(s.params, level)
	if err := s.encoder.Encode(slots, pt); err != nil {
		return nil, fmt.Errorf("bgv: encode mask: %w", err)
	}
	return pt, nil
}

// DecryptBool reports whether every slot of an Eq result is zero.
func (s *Scheme) DecryptBool(ct []byte) (bool, error) {
	c, err := s.parse(ct)
	if err != nil {
		return false, err
	}
	pt := s.decryptor.DecryptNew(c)
	slots := make([]uint64, s.params.MaxSlots())
	if err := s.encoder.Decode(pt, slots); err != nil {
		return false, fmt.Errorf("bgv: decode: %w", err)
	}
	for _, v := range slots {
		if v != 0 {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scheme) parse(b []byte) (*rlwe.Ciphertext, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("%w: %v", fhe.ErrMalformedCiphertext, err)
	}
	if ct.Degree() != 1 || ct.Level() > s.params.MaxLevel() {
		return nil, fmt.Errorf("%w: degree %d level %d", fhe.ErrMalformedCiphertext, ct.Degree(), ct.Level())
	}
	return ct, nil
}

// Save writes both keys of s into dir.
func (s *Scheme) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	for name, k := range map[string]interface{ MarshalBinary() ([]byte, error) }{
		fileSecret: s.secret,
		filePublic: s.public,
	} {
		b, err := k.MarshalBinary()
		if err != nil {
			return fmt.Errorf("bgv: marshal %s: %w", name, err)
		}
		if err := os.WriteFile(filepath.Join(dir, name), b, 0o600); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the keys written by Save.
func Load(dir string) (*Scheme, error) {
	pk, err := readPublic(dir)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, fileSecret))
	if err != nil {
		return nil, err
	}
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bgv: unmarshal %s: %w", fileSecret, err)
	}
	return New(Keys{Secret: sk, Public: pk})
}

// LoadEncryptor reads only the public key from dir.
func LoadEncryptor(dir string) (*Encryptor, error) {
	pk, err := readPublic(dir)
	if err != nil {
		return nil, err
	}
	return NewEncryptor(pk)
}

// ParseEncryptor builds an encryptor from a marshalled public key.
func ParseEncryptor(b []byte) (*Encryptor, error) {
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bgv: unmarshal public key: %w", err)
	}
	return NewEncryptor(pk)
}

func readPublic(dir string) (*rlwe.PublicKey, error) {
	b, err := os.ReadFile(filepath.Join(dir, filePublic))
	if err != nil {
		return nil, err
	}
	pk := new(rlwe.PublicKey)
	if err := pk.UnmarshalBinary(b); err != nil {
		return nil, fmt.Errorf("bgv: unmarshal %s: %w", filePublic, err)
	}
	return pk, nil
}

// Exists reports whether dir holds a saved key set.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, fileSecret))
	return err == nil
}
