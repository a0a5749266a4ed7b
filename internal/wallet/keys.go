package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"

	"github.com/popswap/gopopswap/pkg/config"
	"github.com/popswap/gopopswap/pkg/secretstore"
)

// ErrNoKeyConfigured 没有配置私钥、助记词或密钥库
var ErrNoKeyConfigured = errors.New("no wallet key configured")

// ParsePrivateKey 十六进制私钥，可带 0x 前缀
func ParsePrivateKey(raw string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(raw), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return key, nil
}

// FromMnemonic 按派生路径从助记词派生私钥
func FromMnemonic(mnemonic, derivationPath string) (*ecdsa.PrivateKey, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	derivationPath = strings.TrimSpace(derivationPath)
	if mnemonic == "" {
		return nil, fmt.Errorf("mnemonic is required")
	}
	if derivationPath == "" {
		return nil, fmt.Errorf("derivation_path is required")
	}

	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("invalid mnemonic: %w", err)
	}
	path, err := hdwallet.ParseDerivationPath(derivationPath)
	if err != nil {
		return nil, fmt.Errorf("invalid derivation_path: %w", err)
	}
	acct, err := w.Derive(path, false)
	if err != nil {
		return nil, fmt.Errorf("derive failed: %w", err)
	}
	key, err := w.PrivateKey(acct)
	if err != nil {
		return nil, fmt.Errorf("private key failed: %w", err)
	}
	return key, nil
}

// LoadKey 按优先级取签名私钥：私钥 > 助记词 > badger 密钥库
func LoadKey(cfg config.WalletConfig) (*ecdsa.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return ParsePrivateKey(cfg.PrivateKey)
	}
	if cfg.Mnemonic != "" {
		return FromMnemonic(cfg.Mnemonic, cfg.DerivationPath)
	}
	if cfg.SecretDB == "" {
		return nil, ErrNoKeyConfigured
	}

	encKey, err := secretstore.ParseKey(cfg.SecretKey)
	if err != nil {
		return nil, err
	}
	store, err := secretstore.Open(secretstore.Options{Path: cfg.SecretDB, EncryptionKey: encKey, ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return KeyFromStore(store, cfg.DerivationPath)
}

// KeyFromStore 从密钥库读取私钥或助记词
func KeyFromStore(store *secretstore.Store, derivationPath string) (*ecdsa.PrivateKey, error) {
	if raw, err := store.Get(secretstore.KeyPrivateKey); err == nil && raw != "" {
		return ParsePrivateKey(raw)
	} else if err != nil && !errors.Is(err, secretstore.ErrNotFound) {
		return nil, err
	}
	mnemonic, err := store.Get(secretstore.KeyMnemonic)
	if errors.Is(err, secretstore.ErrNotFound) {
		return nil, ErrNoKeyConfigured
	}
	if err != nil {
		return nil, err
	}
	return FromMnemonic(mnemonic, derivationPath)
}

// Address 私钥对应的账户地址
func Address(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
