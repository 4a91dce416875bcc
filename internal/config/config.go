package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const credentialsFile = "config.enc"

// Credentials is what setup stores, encrypted, on this machine.
type Credentials struct {
	Host       string `json:"host"`
	Port       string `json:"port"`
	Username   string `json:"username"`
	Token      string `json:"token"`
	WebhookURL string `json:"webhook_url"`
}

var ErrNotExist = errors.New("no stored credentials")

// envelope is the on-disk form. The key is derived from the machine, so a
// copied file does not decrypt elsewhere.
type envelope struct {
	Nonce []byte `json:"iv"`
	Data  []byte `json:"data"`
}

// Dir holds the credentials, the instance lock and the default log file.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	return filepath.Join(home, ".config", "pvewatch"), nil
}

// Path is the encrypted credentials file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, credentialsFile), nil
}

func Exists() bool {
	path, err := Path()
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func Save(creds *Credentials) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}

	plain, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	gcm, err := machineAEAD()
	if err != nil {
		return err
	}
	env := envelope{Nonce: make([]byte, gcm.NonceSize())}
	if _, err := rand.Read(env.Nonce); err != nil {
		return fmt.Errorf("nonce: %w", err)
	}
	env.Data = gcm.Seal(nil, env.Nonce, plain, nil)

	raw, err := json.Marshal(env)
	if err != nil {
		return err
	}
	// Write then rename so a crash never leaves a truncated file behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Load returns ErrNotExist when setup has never run.
func Load() (*Credentials, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	gcm, err := machineAEAD()
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("decode %s: bad nonce length %d", path, len(env.Nonce))
	}
	plain, err := gcm.Open(nil, env.Nonce, env.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt credentials (created on another machine?): %w", err)
	}

	creds := &Credentials{}
	if err := json.Unmarshal(plain, creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// Delete is a no-op when nothing is stored.
func Delete() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete credentials: %w", err)
	}
	return nil
}

func machineAEAD() (cipher.AEAD, error) {
	block, err := aes.NewCipher(machineKey())
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func machineKey() []byte {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = "unknown"
	}
	sum := sha256.Sum256([]byte(host + ":" + home + ":" + runtime.GOOS))
	return sum[:]
}
