package authentication

// KeyString keeps the CLI credentials in the OS keyring.
import (
	"encoding/json"
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "mangasync-cli"
	tokenKey    = "credentials"
)

var ErrNotLoggedIn = errors.New("no stored credentials, run 'mangasync auth login'")

// StoredCredentials are the API bearer token and the remote bookmark source token.
type StoredCredentials struct {
	AccessToken string `json:"access_token"`
	UserData    string `json:"user_data,omitempty"`
}

func StoreTokens(creds *StoredCredentials) error {
	data, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return keyring.Set(serviceName, tokenKey, string(data))
}

func GetTokens() (*StoredCredentials, error) {
	value, err := keyring.Get(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotLoggedIn
	}
	if err != nil {
		return nil, err
	}

	var creds StoredCredentials
	if err := json.Unmarshal([]byte(value), &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

func DeleteTokens() error {
	err := keyring.Delete(serviceName, tokenKey)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}
