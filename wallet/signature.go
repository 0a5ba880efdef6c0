// Package wallet verifies EIP-191 personal_sign signatures for sign-in.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrBadAddress   = errors.New("wallet: invalid address")
	ErrBadSignature = errors.New("wallet: invalid signature")
	ErrMismatch     = errors.New("wallet: signature does not match address")
)

// NormalizeAddress validates a hex address and returns its lowercase form,
// which is how addresses are stored and keyed.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if !common.IsHexAddress(addr) {
		return "", ErrBadAddress
	}
	return strings.ToLower(common.HexToAddress(addr).Hex()), nil
}

// SignInMessage is the text the wallet is asked to sign.
func SignInMessage(address, nonce string) string {
	return fmt.Sprintf("Sign in to Nexura\n\nWallet: %s\nNonce: %s", address, nonce)
}

// VerifySignature checks that signatureHex is address's personal_sign of msg.
func VerifySignature(address, signatureHex string, msg []byte) error {
	want, err := NormalizeAddress(address)
	if err != nil {
		return err
	}
	sig, err := hexutil.Decode(signatureHex)
	if err != nil || len(sig) != crypto.SignatureLength {
		return ErrBadSignature
	}
	// Wallets send V as 27/28.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	recovered, err := crypto.SigToPub(accounts.TextHash(msg), sig)
	if err != nil {
		return ErrBadSignature
	}
	got := strings.ToLower(crypto.PubkeyToAddress(*recovered).Hex())
	if got != want {
		return ErrMismatch
	}
	return nil
}
