package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnv はvecstoreのホームディレクトリを上書きする環境変数
	HomeEnv = "VECSTORE_HOME"

	DefaultConfigDir  = ".vecstore"
	DefaultConfigFile = "config.json"
	DefaultDataSubDir = "data"
	DefaultDBFile     = "vecstore.db"
)

// ExpandTilde は "~" と "~/..." をホームディレクトリに展開する（"~user" は対象外）
func ExpandTilde(path string) (string, error) {
	rest, ok := strings.CutPrefix(path, "~")
	if !ok || (rest != "" && rest[0] != '/') {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, rest), nil
}

// Home は設定とデータを置くルートを返す
// VECSTORE_HOME があればそれを、なければ ~/.vecstore
func Home() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return ExpandTilde(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDir), nil
}

// DefaultConfigPath は <Home>/config.json
func DefaultConfigPath() (string, error) {
	root, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DefaultConfigFile), nil
}

// DefaultDataDir は <Home>/data
func DefaultDataDir() (string, error) {
	root, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, DefaultDataSubDir), nil
}

// EnsureDir はdirを（親も含めて）作成する
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	return nil
}
