package domain

import (
	"encoding/json"
	"fmt"

	"github.com/smallbiznis/tenantgate/internal/vault"
	"github.com/smallbiznis/tenantgate/pkg/tenantctx"
)

// Secrets are a project's decrypted connection identities.
type Secrets struct {
	DatabaseDSN string
	Storage     tenantctx.StorageCredentials
	LLMAPIKey   string
}

// DecryptSecrets opens every encrypted column of p. Any failure is a
// *vault.CryptoError.
func DecryptSecrets(c vault.Cipher, p *Project) (*Secrets, error) {
	dsn, err := c.Decrypt(p.DatabaseDSNEncrypted)
	if err != nil {
		return nil, err
	}

	storage := tenantctx.StorageCredentials{
		Endpoint: p.StorageEndpoint,
		Region:   p.StorageRegion,
		Bucket:   p.StorageBucket,
	}
	rawStorage, err := c.Decrypt(p.StorageCredentialsEncrypted)
	if err != nil {
		return nil, err
	}
	if rawStorage != "" {
		var secret StorageSecret
		if err := json.Unmarshal([]byte(rawStorage), &secret); err != nil {
			return nil, &vault.CryptoError{Op: "decrypt", Reason: fmt.Sprintf("storage credentials of project %s are not valid JSON", p.ID), Err: err}
		}
		storage.AccessKeyID = secret.AccessKeyID
		storage.SecretAccessKey = secret.SecretAccessKey
	}

	llmKey, err := c.Decrypt(p.LLMAPIKeyEncrypted)
	if err != nil {
		return nil, err
	}

	return &Secrets{
		DatabaseDSN: dsn,
		Storage:     storage,
		LLMAPIKey:   llmKey,
	}, nil
}

// HasStorage reports whether the credentials are complete enough to build a client.
func (s *Secrets) HasStorage() bool {
	return s.Storage.Bucket != "" && s.Storage.AccessKeyID != "" && s.Storage.SecretAccessKey != ""
}
