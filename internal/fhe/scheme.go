package fhe

import "errors"

// ErrMalformedCiphertext is returned by schemes for bytes they cannot parse.
var ErrMalformedCiphertext = errors.New("malformed ciphertext")

// Encryptor is the client role: it only needs public key material.
type Encryptor interface {
	EncryptUint8(v uint8) ([]byte, error)
}

// Evaluator is the server role: it computes over ciphertexts without any
// secret key material.
type Evaluator interface {
	// Validate checks that ct is a well-formed ciphertext of kind.
	Validate(kind Kind, ct []byte) error
	// Eq returns an encrypted boolean: a == b.
	Eq(a, b []byte) ([]byte, error)
}

// Decryptor is the decryption authority role.
type Decryptor interface {
	DecryptBool(ct []byte) (bool, error)
}

// Scheme bundles the three roles of one encryption scheme.
type Scheme interface {
	Name() string
	Encryptor
	Evaluator
	Decryptor
}

// Describer is implemented by schemes that publish parameters to clients.
type Describer interface {
	Describe() map[string]any
}

// PublicKeyExporter is implemented by public-key schemes. Clients encrypt
// with the exported key and never see secret material.
type PublicKeyExporter interface {
	PublicKey() ([]byte, error)
}
