package actions

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/urfave/cli"
)

var scryptN, scryptP = keystore.StandardScryptN, keystore.StandardScryptP

// Keygen creates a signing key. With --keystore the key is also imported
// into an encrypted go-ethereum keystore directory.
func Keygen(ctx *cli.Context) error {
	key, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}

	out := map[string]string{
		"address":     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		"private_key": hexutil.Encode(crypto.FromECDSA(key)),
	}
	if dir := ctx.String("keystore"); dir != "" {
		path, err := ImportKey(dir, key, ctx.String("password"))
		if err != nil {
			return err
		}
		out["keystore_file"] = path
		delete(out, "private_key")
	}
	return printJSON(ctx, out)
}

// ImportKey stores key in the keystore at dir and returns the file path.
func ImportKey(dir string, key *ecdsa.PrivateKey, password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("a keystore password is required")
	}
	ks := keystore.NewKeyStore(dir, scryptN, scryptP)
	account, err := ks.ImportECDSA(key, password)
	if err != nil {
		return "", fmt.Errorf("failed to import key: %w", err)
	}
	return account.URL.Path, nil
}
