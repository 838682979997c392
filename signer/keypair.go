package signer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/qwery/types"
)

// Keypair is key material able to sign an arbitrary message. Implementations
// may hold the key in memory or delegate to a hardware wallet or remote
// signer; the signing pipeline only needs these two capabilities.
type Keypair interface {
	PublicKey() solana.PublicKey
	Sign(message []byte) (solana.Signature, error)
}

// PrivateKeyPair is an in-memory ed25519 keypair.
type PrivateKeyPair struct {
	privateKey solana.PrivateKey
	publicKey  solana.PublicKey
}

var _ Keypair = (*PrivateKeyPair)(nil)

// NewKeypair wraps an existing private key.
func NewKeypair(key solana.PrivateKey) (*PrivateKeyPair, error) {
	if err := key.Validate(); err != nil {
		return nil, types.NewError(types.ErrSigningError, "invalid private key", err)
	}
	return &PrivateKeyPair{
		privateKey: key,
		publicKey:  key.PublicKey(),
	}, nil
}

// NewKeypairFromBase58 parses a base58-encoded 64-byte private key.
func NewKeypairFromBase58(privateKeyBase58 string) (*PrivateKeyPair, error) {
	key, err := solana.PrivateKeyFromBase58(privateKeyBase58)
	if err != nil {
		return nil, types.NewError(types.ErrSigningError, "invalid private key", err)
	}
	return NewKeypair(key)
}

// NewKeypairFromKeygenFile loads a key written by `solana-keygen`: a JSON
// array of 64 bytes.
func NewKeypairFromKeygenFile(path string) (*PrivateKeyPair, error) {
	key, err := solana.PrivateKeyFromSolanaKeygenFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrSigningError, fmt.Sprintf("invalid keygen file %s", path), err)
	}
	return NewKeypair(key)
}

func (k *PrivateKeyPair) PublicKey() solana.PublicKey {
	return k.publicKey
}

func (k *PrivateKeyPair) Sign(message []byte) (solana.Signature, error) {
	return k.privateKey.Sign(message)
}

// SignFunc signs a message on behalf of an external key holder. Callers that
// need cancellation close over their own context.
type SignFunc func(message []byte) (solana.Signature, error)

// FuncKeypair adapts a signing callback, e.g. a hardware wallet or a remote
// signing service, to Keypair.
type FuncKeypair struct {
	publicKey solana.PublicKey
	sign      SignFunc
}

var _ Keypair = (*FuncKeypair)(nil)

// NewFuncKeypair creates a keypair backed by sign.
func NewFuncKeypair(publicKey solana.PublicKey, sign SignFunc) (*FuncKeypair, error) {
	if publicKey.IsZero() {
		return nil, &types.QweryError{Code: types.ErrSigningError, Message: "public key is required"}
	}
	if sign == nil {
		return nil, &types.QweryError{Code: types.ErrSigningError, Message: "sign callback is required"}
	}
	return &FuncKeypair{publicKey: publicKey, sign: sign}, nil
}

func (k *FuncKeypair) PublicKey() solana.PublicKey {
	return k.publicKey
}

func (k *FuncKeypair) Sign(message []byte) (solana.Signature, error) {
	return k.sign(message)
}
