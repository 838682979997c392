package transaction

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/qwery/types"
)

var testBlockhash = solana.HashFromBytes(bytes.Repeat([]byte{7}, 32))

// transferTx builds the kind of transaction the facilitator issues: a SOL
// transfer from sender to recipient with a separate fee payer.
func transferTx(t *testing.T, feePayer, sender, recipient solana.PublicKey) *solana.Transaction {
	t.Helper()
	tx, err := solana.NewTransaction(
		[]solana.Instruction{
			system.NewTransferInstruction(10_000_000, sender, recipient).Build(),
		},
		testBlockhash,
		solana.TransactionPayer(feePayer),
	)
	require.NoError(t, err)
	return tx
}

func wireBytes(t *testing.T, tx *solana.Transaction) []byte {
	t.Helper()
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	return raw
}

func v0Transaction(payer, table solana.PublicKey) *Transaction {
	return &Transaction{
		Signatures: make([]solana.Signature, 1),
		Message: Message{
			Version:         Version0,
			Header:          Header{NumRequiredSignatures: 1, NumReadonlyUnsignedAccounts: 1},
			AccountKeys:     []solana.PublicKey{payer, solana.SystemProgramID},
			RecentBlockhash: testBlockhash,
			Instructions: []Instruction{{
				ProgramIDIndex: 1,
				Accounts:       []uint8{0, 2},
				Data:           []byte{2, 0, 0, 0, 64, 66, 15, 0, 0, 0, 0, 0},
			}},
			AddressTableLookups: []AddressTableLookup{{
				AccountKey:      table,
				WritableIndexes: []uint8{3},
				ReadonlyIndexes: []uint8{},
			}},
		},
	}
}

func TestDecodeFacilitatorTransaction(t *testing.T) {
	feePayer := solana.NewWallet().PublicKey()
	sender := solana.NewWallet().PublicKey()
	recipient := solana.NewWallet().PublicKey()

	raw := wireBytes(t, transferTx(t, feePayer, sender, recipient))
	text := base64.StdEncoding.EncodeToString(raw)

	tx, err := Decode(text)
	require.NoError(t, err)

	assert.Equal(t, VersionLegacy, tx.Message.Version)
	assert.Equal(t, uint8(2), tx.Message.Header.NumRequiredSignatures)
	assert.Equal(t, []solana.PublicKey{feePayer, sender}, tx.Message.Signers())
	assert.Equal(t, 0, tx.Message.SignerIndex(feePayer))
	assert.Equal(t, 1, tx.Message.SignerIndex(sender))
	assert.Equal(t, -1, tx.Message.SignerIndex(recipient))
	assert.Equal(t, testBlockhash, tx.Message.RecentBlockhash)
	require.Len(t, tx.Signatures, 2)
	assert.True(t, tx.Signatures[0].IsZero())
	assert.True(t, tx.Signatures[1].IsZero())
	assert.False(t, tx.IsFullySigned())
	require.Len(t, tx.Message.Instructions, 1)

	encoded, err := Encode(tx)
	require.NoError(t, err)
	assert.Equal(t, text, encoded)
}

func TestMessageBytesMatchSolanaGo(t *testing.T) {
	stx := transferTx(t, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	want, err := stx.Message.MarshalBinary()
	require.NoError(t, err)

	tx, err := Unmarshal(wireBytes(t, stx))
	require.NoError(t, err)
	got, err := tx.Message.MarshalBinary()
	require.NoError(t, err)

	assert.Equal(t, want, got)
}

func TestVersionedRoundTrip(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	table := solana.NewWallet().PublicKey()
	tx := v0Transaction(payer, table)

	raw, err := tx.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(0x80), raw[1+64], "version prefix follows the signatures")

	decoded, err := Unmarshal(raw)
	require.NoError(t, err)
	assert.Equal(t, tx, decoded)

	again, err := decoded.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, raw, again)

	parsed, err := solana.TransactionFromBytes(raw)
	require.NoError(t, err)
	assert.True(t, parsed.Message.IsVersioned())
	assert.Len(t, parsed.Message.AddressTableLookups, 1)
}

func TestDecodeDoesNotAliasInput(t *testing.T) {
	raw, err := v0Transaction(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()).MarshalBinary()
	require.NoError(t, err)

	tx, err := Unmarshal(raw)
	require.NoError(t, err)
	before := tx.Clone()

	for i := range raw {
		raw[i] = 0xff
	}
	assert.Equal(t, before, tx)
}

func TestDecodeErrors(t *testing.T) {
	raw := wireBytes(t, transferTx(t, solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey()))
	b64 := base64.StdEncoding.EncodeToString

	// one signature slot where the header requires two
	oneSlot := append([]byte{1}, raw[1:1+64]...)
	oneSlot = append(oneSlot, raw[1+128:]...)

	// message prefixed with an unsupported version
	v1 := append(append([]byte{}, raw[:1+128]...), 0x81)
	v1 = append(v1, raw[1+128:]...)

	tests := []struct {
		name string
		text string
		want *types.QweryError
	}{
		{"not base64", "not base64!!", types.ErrDecode},
		{"line break", b64(raw[:30]) + "\n", types.ErrDecode},
		{"missing padding", "AAE", types.ErrDecode},
		{"empty", "", types.ErrFormat},
		{"garbage bytes", b64([]byte{1, 2, 3}), types.ErrFormat},
		{"truncated", b64(raw[:len(raw)-5]), types.ErrFormat},
		{"trailing bytes", b64(append(append([]byte{}, raw...), 0)), types.ErrFormat},
		{"signature count mismatch", b64(oneSlot), types.ErrFormat},
		{"unsupported version", b64(v1), types.ErrFormat},
		{"huge signature count", b64([]byte{0xff, 0xff, 0x03, 0x00}), types.ErrFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx, err := Decode(tt.text)
			require.Error(t, err)
			assert.Nil(t, tx)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMarshalRejectsInconsistentTransaction(t *testing.T) {
	payer := solana.NewWallet().PublicKey()

	t.Run("signature slots", func(t *testing.T) {
		tx := v0Transaction(payer, solana.NewWallet().PublicKey())
		tx.Signatures = nil
		_, err := Encode(tx)
		assert.ErrorIs(t, err, types.ErrFormat)
	})

	t.Run("program index", func(t *testing.T) {
		tx := v0Transaction(payer, solana.NewWallet().PublicKey())
		tx.Message.Instructions[0].ProgramIDIndex = 9
		_, err := tx.MarshalBinary()
		assert.ErrorIs(t, err, types.ErrFormat)
	})

	t.Run("legacy with lookups", func(t *testing.T) {
		tx := v0Transaction(payer, solana.NewWallet().PublicKey())
		tx.Message.Version = VersionLegacy
		_, err := tx.MarshalBinary()
		assert.ErrorIs(t, err, types.ErrFormat)
	})

	t.Run("account index", func(t *testing.T) {
		tx := v0Transaction(payer, solana.NewWallet().PublicKey())
		tx.Message.AddressTableLookups = []AddressTableLookup{}
		_, err := tx.MarshalBinary()
		assert.ErrorIs(t, err, types.ErrFormat)
	})
}

func TestCloneIsDeep(t *testing.T) {
	tx := v0Transaction(solana.NewWallet().PublicKey(), solana.NewWallet().PublicKey())
	c := tx.Clone()
	require.Equal(t, tx, c)

	c.Signatures[0][0] = 1
	c.Message.AccountKeys[0][0] ^= 0xff
	c.Message.Instructions[0].Data[0] = 9
	c.Message.Instructions[0].Accounts[0] = 1
	c.Message.AddressTableLookups[0].WritableIndexes[0] = 0

	assert.True(t, tx.Signatures[0].IsZero())
	assert.Equal(t, byte(2), tx.Message.Instructions[0].Data[0])
	assert.Equal(t, uint8(0), tx.Message.Instructions[0].Accounts[0])
	assert.Equal(t, uint8(3), tx.Message.AddressTableLookups[0].WritableIndexes[0])
	assert.False(t, Equal(tx, c))
}

func TestVerifySignatures(t *testing.T) {
	payer := solana.NewWallet()
	tx := v0Transaction(payer.PublicKey(), solana.NewWallet().PublicKey())
	require.NoError(t, tx.VerifySignatures(), "unfilled slots are skipped")

	msg, err := tx.Message.MarshalBinary()
	require.NoError(t, err)
	sig, err := payer.PrivateKey.Sign(msg)
	require.NoError(t, err)

	tx.Signatures[0] = sig
	require.NoError(t, tx.VerifySignatures())
	assert.True(t, tx.IsFullySigned())

	tx.Message.RecentBlockhash[0] ^= 0xff
	assert.ErrorIs(t, tx.VerifySignatures(), types.ErrFormat)
}
