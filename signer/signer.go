// Package signer adds signatures to facilitator-built transactions.
//
// Signing is partial: the facilitator is usually the fee payer and signs
// after the client, so a signed transaction is not expected to be complete.
package signer

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/qwery/transaction"
	"github.com/vitwit/qwery/types"
)

// Sign returns a copy of tx carrying kp's signature in the slot owned by
// kp's public key. tx itself is never modified, so a caller can retry with a
// different key without decoding the envelope again. Existing signatures,
// their order, and the recent blockhash are preserved.
func Sign(tx *transaction.Transaction, kp Keypair) (*transaction.Transaction, error) {
	if tx == nil {
		return nil, &types.QweryError{Code: types.ErrSigningError, Message: "transaction is required"}
	}
	if kp == nil {
		return nil, &types.QweryError{Code: types.ErrSigningError, Message: "keypair is required"}
	}
	if tx.Message.RecentBlockhash.IsZero() {
		return nil, &types.QweryError{Code: types.ErrSigningError, Message: "transaction has no recent blockhash"}
	}

	pub := kp.PublicKey()
	slot := tx.Message.SignerIndex(pub)
	if slot < 0 {
		return nil, &types.QweryError{
			Code:    types.ErrSigningError,
			Message: fmt.Sprintf("%s is not a required signer of this transaction", pub),
		}
	}

	message, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, types.NewError(types.ErrSigningError, "cannot serialize message for signing", err)
	}
	sig, err := kp.Sign(message)
	if err != nil {
		return nil, types.NewError(types.ErrSigningError, fmt.Sprintf("signing with %s failed", pub), err)
	}
	if !sig.Verify(pub, message) {
		return nil, &types.QweryError{
			Code:    types.ErrSigningError,
			Message: fmt.Sprintf("keypair returned a signature that does not verify for %s", pub),
		}
	}

	signed := tx.Clone()
	if need := int(signed.Message.Header.NumRequiredSignatures); len(signed.Signatures) < need {
		signed.Signatures = append(signed.Signatures, make([]solana.Signature, need-len(signed.Signatures))...)
	}
	signed.Signatures[slot] = sig
	return signed, nil
}
