package transaction

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"math"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/vitwit/qwery/types"
)

// maxLookupTables is the largest lookup table count a u8 length can carry.
const maxLookupTables = math.MaxUint8

// Decode parses a base64 transaction blob as issued by the facilitator.
//
// It fails with a DECODE_ERROR when text is not strict single-line standard
// base64 and with a FORMAT_ERROR when the bytes are not a well-formed
// transaction. No partial result is returned on failure.
func Decode(text string) (*Transaction, error) {
	if strings.ContainsAny(text, "\r\n") {
		return nil, &types.QweryError{
			Code:    types.ErrDecodeError,
			Message: "transaction is not valid base64: contains line breaks",
		}
	}
	raw, err := base64.StdEncoding.Strict().DecodeString(text)
	if err != nil {
		return nil, types.NewError(types.ErrDecodeError, "transaction is not valid base64", err)
	}
	return Unmarshal(raw)
}

// Encode serializes tx to the base64 transport encoding. It is the exact
// inverse of Decode and only fails for transactions Decode cannot produce.
func Encode(tx *Transaction) (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Unmarshal parses the binary wire form of a transaction.
func Unmarshal(data []byte) (*Transaction, error) {
	dec := bin.NewBinDecoder(data)

	numSignatures, err := dec.ReadCompactU16()
	if err != nil {
		return nil, wrapFormat("read signature count", err)
	}
	if numSignatures > dec.Remaining()/solana.SignatureLength {
		return nil, formatErrorf("signature count %d exceeds remaining %d bytes", numSignatures, dec.Remaining())
	}

	tx := &Transaction{Signatures: make([]solana.Signature, numSignatures)}
	for i := range tx.Signatures {
		b, err := dec.ReadNBytes(solana.SignatureLength)
		if err != nil {
			return nil, wrapFormat(fmt.Sprintf("read signature %d", i), err)
		}
		copy(tx.Signatures[i][:], b)
	}

	if err := tx.Message.unmarshal(dec); err != nil {
		return nil, err
	}
	if dec.HasRemaining() {
		return nil, formatErrorf("%d trailing bytes after message", dec.Remaining())
	}
	if err := tx.validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// MarshalBinary serializes the transaction to its wire form.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	if err := tx.validate(); err != nil {
		return nil, err
	}
	msg, err := tx.Message.marshal()
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)
	if err := enc.WriteCompactU16(len(tx.Signatures)); err != nil {
		return nil, wrapFormat("write signature count", err)
	}
	for i := range tx.Signatures {
		if err := enc.WriteBytes(tx.Signatures[i][:], false); err != nil {
			return nil, wrapFormat("write signature", err)
		}
	}
	if err := enc.WriteBytes(msg, false); err != nil {
		return nil, wrapFormat("write message", err)
	}
	return buf.Bytes(), nil
}

// MarshalBinary serializes the message. These are the bytes every signer
// signs.
func (m *Message) MarshalBinary() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m.marshal()
}

func (m *Message) marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := bin.NewBinEncoder(&buf)

	if m.Version != VersionLegacy {
		if err := enc.WriteUint8(versionPrefixMask | uint8(m.Version)); err != nil {
			return nil, wrapFormat("write version", err)
		}
	}
	for _, b := range []uint8{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	} {
		if err := enc.WriteUint8(b); err != nil {
			return nil, wrapFormat("write header", err)
		}
	}

	if err := enc.WriteCompactU16(len(m.AccountKeys)); err != nil {
		return nil, wrapFormat("write account count", err)
	}
	for i := range m.AccountKeys {
		if err := enc.WriteBytes(m.AccountKeys[i][:], false); err != nil {
			return nil, wrapFormat("write account key", err)
		}
	}
	if err := enc.WriteBytes(m.RecentBlockhash[:], false); err != nil {
		return nil, wrapFormat("write recent blockhash", err)
	}

	if err := enc.WriteCompactU16(len(m.Instructions)); err != nil {
		return nil, wrapFormat("write instruction count", err)
	}
	for _, inst := range m.Instructions {
		if err := enc.WriteUint8(inst.ProgramIDIndex); err != nil {
			return nil, wrapFormat("write program index", err)
		}
		if err := writeShortVec(enc, inst.Accounts); err != nil {
			return nil, wrapFormat("write instruction accounts", err)
		}
		if err := writeShortVec(enc, inst.Data); err != nil {
			return nil, wrapFormat("write instruction data", err)
		}
	}

	if m.Version == Version0 {
		if err := enc.WriteUint8(uint8(len(m.AddressTableLookups))); err != nil {
			return nil, wrapFormat("write lookup count", err)
		}
		for _, l := range m.AddressTableLookups {
			if err := enc.WriteBytes(l.AccountKey[:], false); err != nil {
				return nil, wrapFormat("write lookup table key", err)
			}
			if err := writeShortVec(enc, l.WritableIndexes); err != nil {
				return nil, wrapFormat("write writable indexes", err)
			}
			if err := writeShortVec(enc, l.ReadonlyIndexes); err != nil {
				return nil, wrapFormat("write readonly indexes", err)
			}
		}
	}
	return buf.Bytes(), nil
}

func (m *Message) unmarshal(dec *bin.Decoder) error {
	first, err := dec.ReadUint8()
	if err != nil {
		return wrapFormat("read message header", err)
	}

	m.Version = VersionLegacy
	if first&versionPrefixMask != 0 {
		m.Version = Version(first &^ versionPrefixMask)
		if m.Version != Version0 {
			return formatErrorf("unsupported message version %d", m.Version)
		}
		if first, err = dec.ReadUint8(); err != nil {
			return wrapFormat("read message header", err)
		}
	}
	m.Header.NumRequiredSignatures = first
	if m.Header.NumReadonlySignedAccounts, err = dec.ReadUint8(); err != nil {
		return wrapFormat("read message header", err)
	}
	if m.Header.NumReadonlyUnsignedAccounts, err = dec.ReadUint8(); err != nil {
		return wrapFormat("read message header", err)
	}

	numKeys, err := dec.ReadCompactU16()
	if err != nil {
		return wrapFormat("read account count", err)
	}
	if numKeys > dec.Remaining()/solana.PublicKeyLength {
		return formatErrorf("account count %d exceeds remaining %d bytes", numKeys, dec.Remaining())
	}
	m.AccountKeys = make([]solana.PublicKey, numKeys)
	for i := range m.AccountKeys {
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return wrapFormat(fmt.Sprintf("read account key %d", i), err)
		}
		copy(m.AccountKeys[i][:], b)
	}

	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return wrapFormat("read recent blockhash", err)
	}
	copy(m.RecentBlockhash[:], b)

	numInstructions, err := dec.ReadCompactU16()
	if err != nil {
		return wrapFormat("read instruction count", err)
	}
	// Smallest instruction: program index plus two empty short vectors.
	if numInstructions > dec.Remaining()/3 {
		return formatErrorf("instruction count %d exceeds remaining %d bytes", numInstructions, dec.Remaining())
	}
	m.Instructions = make([]Instruction, numInstructions)
	for i := range m.Instructions {
		inst := &m.Instructions[i]
		if inst.ProgramIDIndex, err = dec.ReadUint8(); err != nil {
			return wrapFormat(fmt.Sprintf("read instruction %d program index", i), err)
		}
		if inst.Accounts, err = readShortVec(dec); err != nil {
			return wrapFormat(fmt.Sprintf("read instruction %d accounts", i), err)
		}
		if inst.Data, err = readShortVec(dec); err != nil {
			return wrapFormat(fmt.Sprintf("read instruction %d data", i), err)
		}
	}

	if m.Version != Version0 {
		return nil
	}

	numLookups, err := dec.ReadUint8()
	if err != nil {
		return wrapFormat("read lookup count", err)
	}
	m.AddressTableLookups = make([]AddressTableLookup, numLookups)
	for i := range m.AddressTableLookups {
		l := &m.AddressTableLookups[i]
		b, err := dec.ReadNBytes(solana.PublicKeyLength)
		if err != nil {
			return wrapFormat(fmt.Sprintf("read lookup %d table key", i), err)
		}
		copy(l.AccountKey[:], b)
		if l.WritableIndexes, err = readShortVec(dec); err != nil {
			return wrapFormat(fmt.Sprintf("read lookup %d writable indexes", i), err)
		}
		if l.ReadonlyIndexes, err = readShortVec(dec); err != nil {
			return wrapFormat(fmt.Sprintf("read lookup %d readonly indexes", i), err)
		}
	}
	return nil
}

func (tx *Transaction) validate() error {
	if err := tx.Message.validate(); err != nil {
		return err
	}
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return formatErrorf("transaction has %d signature slots, header requires %d",
			len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	return nil
}

func (m *Message) validate() error {
	if m.Version != VersionLegacy && m.Version != Version0 {
		return formatErrorf("unsupported message version %d", m.Version)
	}
	if m.Version == VersionLegacy && len(m.AddressTableLookups) > 0 {
		return formatErrorf("legacy message cannot carry address table lookups")
	}
	if len(m.AddressTableLookups) > maxLookupTables {
		return formatErrorf("too many address table lookups: %d", len(m.AddressTableLookups))
	}
	if len(m.AccountKeys) > math.MaxUint16 || len(m.Instructions) > math.MaxUint16 {
		return formatErrorf("message too large")
	}

	h := m.Header
	numKeys := len(m.AccountKeys)
	if h.NumRequiredSignatures == 0 {
		return formatErrorf("message requires no signatures")
	}
	if int(h.NumRequiredSignatures) > numKeys {
		return formatErrorf("header requires %d signers but message has %d accounts", h.NumRequiredSignatures, numKeys)
	}
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return formatErrorf("fee payer must be writable: %d of %d signers are readonly",
			h.NumReadonlySignedAccounts, h.NumRequiredSignatures)
	}
	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > numKeys {
		return formatErrorf("header readonly unsigned count %d exceeds unsigned accounts", h.NumReadonlyUnsignedAccounts)
	}

	addressable := numKeys + m.numLookupAccounts()
	for i, inst := range m.Instructions {
		if int(inst.ProgramIDIndex) >= numKeys {
			return formatErrorf("instruction %d program index %d out of range", i, inst.ProgramIDIndex)
		}
		if len(inst.Accounts) > math.MaxUint16 || len(inst.Data) > math.MaxUint16 {
			return formatErrorf("instruction %d too large", i)
		}
		for _, idx := range inst.Accounts {
			if int(idx) >= addressable {
				return formatErrorf("instruction %d account index %d out of range", i, idx)
			}
		}
	}
	for i, l := range m.AddressTableLookups {
		if len(l.WritableIndexes) > math.MaxUint16 || len(l.ReadonlyIndexes) > math.MaxUint16 {
			return formatErrorf("address table lookup %d too large", i)
		}
	}
	return nil
}

// readShortVec reads a compact-u16 length prefixed byte vector. The result
// never aliases the decoder's buffer.
func readShortVec(dec *bin.Decoder) ([]byte, error) {
	n, err := dec.ReadCompactU16()
	if err != nil {
		return nil, err
	}
	b, err := dec.ReadNBytes(n)
	if err != nil {
		return nil, err
	}
	return append(make([]byte, 0, n), b...), nil
}

func writeShortVec(enc *bin.Encoder, b []byte) error {
	if err := enc.WriteCompactU16(len(b)); err != nil {
		return err
	}
	return enc.WriteBytes(b, false)
}

func formatErrorf(format string, args ...any) *types.QweryError {
	return &types.QweryError{
		Code:    types.ErrFormatError,
		Message: "malformed transaction: " + fmt.Sprintf(format, args...),
	}
}

func wrapFormat(step string, err error) *types.QweryError {
	return types.NewError(types.ErrFormatError, "malformed transaction: "+step, err)
}
