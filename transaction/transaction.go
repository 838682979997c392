// Package transaction implements the Solana transaction envelope codec.
//
// The wire layout is decoded into an explicit schema rather than an SDK type
// so that a decoded transaction re-encodes to exactly the bytes it came from:
//
//	Transaction        = compact-u16 n, n * [64]byte signature, Message
//	Message            = [0x80|version], Header, compact-u16 n, n * [32]byte key,
//	                     [32]byte recent blockhash, compact-u16 n, n * Instruction,
//	                     (v0) u8 n, n * AddressTableLookup
//	Header             = u8 required signatures, u8 readonly signed, u8 readonly unsigned
//	Instruction        = u8 program index, compact-u16 n, n * u8 account index,
//	                     compact-u16 n, n * u8 data
//	AddressTableLookup = [32]byte table, compact-u16 n, n * u8, compact-u16 n, n * u8
package transaction

import (
	"bytes"

	"github.com/gagliardetto/solana-go"
)

// Version identifies the message format.
type Version int

const (
	// VersionLegacy messages carry no version prefix.
	VersionLegacy Version = -1
	// Version0 messages support address table lookups.
	Version0 Version = 0
)

// versionPrefixMask flags a versioned message in the first message byte.
const versionPrefixMask = 0x80

// Header describes how the account keys split into signer and readonly sets.
type Header struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// Instruction is a compiled instruction referencing accounts by index.
type Instruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// AddressTableLookup loads extra accounts from an on-chain lookup table.
type AddressTableLookup struct {
	AccountKey      solana.PublicKey
	WritableIndexes []uint8
	ReadonlyIndexes []uint8
}

// Message is the signed portion of a transaction.
type Message struct {
	Version             Version
	Header              Header
	AccountKeys         []solana.PublicKey
	RecentBlockhash     solana.Hash
	Instructions        []Instruction
	AddressTableLookups []AddressTableLookup
}

// Transaction is a message plus one signature slot per required signer. Slot
// i belongs to AccountKeys[i]; an all-zero signature is an unfilled slot.
type Transaction struct {
	Signatures []solana.Signature
	Message    Message
}

// Signers returns the keys that own a signature slot, in slot order.
func (m *Message) Signers() []solana.PublicKey {
	n := int(m.Header.NumRequiredSignatures)
	if n > len(m.AccountKeys) {
		n = len(m.AccountKeys)
	}
	out := make([]solana.PublicKey, n)
	copy(out, m.AccountKeys[:n])
	return out
}

// SignerIndex returns the signature slot owned by key, or -1.
func (m *Message) SignerIndex(key solana.PublicKey) int {
	for i, signer := range m.Signers() {
		if signer.Equals(key) {
			return i
		}
	}
	return -1
}

// numLookupAccounts is how many accounts the lookup tables contribute.
func (m *Message) numLookupAccounts() int {
	n := 0
	for _, l := range m.AddressTableLookups {
		n += len(l.WritableIndexes) + len(l.ReadonlyIndexes)
	}
	return n
}

// Clone returns a deep copy sharing no memory with tx.
func (tx *Transaction) Clone() *Transaction {
	out := &Transaction{
		Signatures: cloneSlice(tx.Signatures),
		Message: Message{
			Version:         tx.Message.Version,
			Header:          tx.Message.Header,
			AccountKeys:     cloneSlice(tx.Message.AccountKeys),
			RecentBlockhash: tx.Message.RecentBlockhash,
		},
	}
	if tx.Message.Instructions != nil {
		out.Message.Instructions = make([]Instruction, len(tx.Message.Instructions))
		for i, inst := range tx.Message.Instructions {
			out.Message.Instructions[i] = Instruction{
				ProgramIDIndex: inst.ProgramIDIndex,
				Accounts:       cloneSlice(inst.Accounts),
				Data:           cloneSlice(inst.Data),
			}
		}
	}
	if tx.Message.AddressTableLookups != nil {
		out.Message.AddressTableLookups = make([]AddressTableLookup, len(tx.Message.AddressTableLookups))
		for i, l := range tx.Message.AddressTableLookups {
			out.Message.AddressTableLookups[i] = AddressTableLookup{
				AccountKey:      l.AccountKey,
				WritableIndexes: cloneSlice(l.WritableIndexes),
				ReadonlyIndexes: cloneSlice(l.ReadonlyIndexes),
			}
		}
	}
	return out
}

// IsFullySigned reports whether every signature slot is filled.
func (tx *Transaction) IsFullySigned() bool {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return false
	}
	for _, sig := range tx.Signatures {
		if sig.IsZero() {
			return false
		}
	}
	return true
}

// VerifySignatures checks every filled slot against its signer key. Unfilled
// slots are skipped: a partially signed transaction verifies.
func (tx *Transaction) VerifySignatures() error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	signers := tx.Message.Signers()
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			continue
		}
		if i >= len(signers) {
			return formatErrorf("signature %d has no signer key", i)
		}
		if !sig.Verify(signers[i], msg) {
			return formatErrorf("signature %d does not verify for %s", i, signers[i])
		}
	}
	return nil
}

// Equal reports whether a and b encode to the same bytes.
func Equal(a, b *Transaction) bool {
	ab, errA := a.MarshalBinary()
	bb, errB := b.MarshalBinary()
	return errA == nil && errB == nil && bytes.Equal(ab, bb)
}

// cloneSlice copies s, keeping nil and empty slices distinct.
func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	return append(make([]T, 0, len(s)), s...)
}
