package main

import (
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/popswap/gopopswap/internal/wallet"
	"github.com/popswap/gopopswap/pkg/secretstore"
)

// 从 .env 导入钱包密钥到 badger 加密存储，之后 .env 中可以删掉明文
func main() {
	var (
		inPath         = flag.String("in", ".env", "input .env file path")
		dbPath         = flag.String("badger", getenv("POPSWAP_SECRET_DB", "data/secrets.badger"), "badger secrets db path")
		secretKey      = flag.String("secret-key", getenv("POPSWAP_SECRET_KEY", ""), "badger encryption key (32 bytes base64/hex)")
		derivationPath = flag.String("path", getenv("WALLET_DERIVATION_PATH", "m/44'/60'/0'/0/0"), "derivation path used to verify a mnemonic")
		all            = flag.Bool("all", false, "also import every other variable under env/")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("secret key is required: set POPSWAP_SECRET_KEY or pass -secret-key"))
	}

	kv, err := godotenv.Read(*inPath)
	if err != nil {
		fatal(err)
	}

	ss, err := secretstore.Open(secretstore.Options{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	written := 0
	if v := strings.TrimSpace(kv["WALLET_PRIVATE_KEY"]); v != "" {
		if _, err := wallet.ParsePrivateKey(v); err != nil {
			fatal(fmt.Errorf("WALLET_PRIVATE_KEY: %w", err))
		}
		if err := ss.Set(secretstore.KeyPrivateKey, v); err != nil {
			fatal(err)
		}
		written++
	}
	if v := strings.TrimSpace(kv["WALLET_MNEMONIC"]); v != "" {
		if _, err := wallet.FromMnemonic(v, *derivationPath); err != nil {
			fatal(fmt.Errorf("WALLET_MNEMONIC: %w", err))
		}
		if err := ss.Set(secretstore.KeyMnemonic, v); err != nil {
			fatal(err)
		}
		written++
	}

	if *all {
		names := make([]string, 0, len(kv))
		for k := range kv {
			if k == "WALLET_PRIVATE_KEY" || k == "WALLET_MNEMONIC" || k == "POPSWAP_SECRET_KEY" {
				continue
			}
			names = append(names, k)
		}
		sort.Strings(names)
		for _, k := range names {
			if err := ss.Set("env/"+k, kv[k]); err != nil {
				fatal(err)
			}
			written++
		}
	}

	if written == 0 {
		fatal(fmt.Errorf("%s 中没有 WALLET_PRIVATE_KEY 或 WALLET_MNEMONIC", *inPath))
	}

	key, err := wallet.KeyFromStore(ss, *derivationPath)
	if err != nil {
		fatal(fmt.Errorf("导入后校验失败: %w", err))
	}
	fmt.Fprintf(os.Stderr, "已导入 %d 项到 badger：%s，钱包地址 %s\n", written, *dbPath, wallet.Address(key).Hex())
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
