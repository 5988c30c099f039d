package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/alexjbarnes/sitegate/internal/models"
	"github.com/alexjbarnes/sitegate/internal/secret"
)

// Seed values written on first run.
const (
	seedAdminPassword   = "admin"
	seedPasswordRetries = 3
	seedAccountLockout  = "30m"
	seedTokenRefresh    = "5m"
	seedCookieName      = "jwt"
	seedAlgorithm       = "HS256"
	seedTokenExpires    = "1h"
)

// DefaultCredentialDocument returns the document written on first run:
// the admin user (password "admin"), the admins group and default
// policy and token settings.
func DefaultCredentialDocument() (*models.CredentialDocument, error) {
	hash, err := secret.HashPassword(seedAdminPassword)
	if err != nil {
		return nil, fmt.Errorf("hashing seed admin password: %w", err)
	}

	doc := &models.CredentialDocument{
		DefaultAuthorize: map[string]bool{},
		DefaultPolicy: models.Policy{
			models.PolicyPasswordRetries: float64(seedPasswordRetries),
			models.PolicyAccountLockout:  seedAccountLockout,
			models.PolicyTokenRefresh:    seedTokenRefresh,
			models.PolicyCookieName:      seedCookieName,
		},
		TokenAlgorithm: models.TokenAlgorithm{
			Algorithm: seedAlgorithm,
			Expires:   seedTokenExpires,
		},
		Users: map[string]*models.User{
			models.AdminUser: {
				Name:     "Administrator",
				Password: hash,
			},
		},
		Groups: map[string]*models.Group{
			models.AdminsGroup: {
				Users:     []string{models.AdminUser},
				Authorize: map[string]bool{},
			},
		},
		Custom: json.RawMessage("{}"),
	}

	return doc, nil
}

// Bootstrap creates the credential and session documents if they do not
// exist. Existing documents are left untouched, including corrupt ones.
// It reports which documents were created.
func Bootstrap(credentialsPath, sessionsPath string) (createdCredentials, createdSessions bool, err error) {
	if !exists(credentialsPath) {
		doc, err := DefaultCredentialDocument()
		if err != nil {
			return false, false, err
		}

		if err := writeDocument(credentialsPath, doc); err != nil {
			return false, false, fmt.Errorf("bootstrapping credentials: %w", err)
		}

		createdCredentials = true
	}

	if sessionsPath != "" && !exists(sessionsPath) {
		doc := &models.SessionDocument{}
		doc.Normalize()

		if err := writeDocument(sessionsPath, doc); err != nil {
			return createdCredentials, false, fmt.Errorf("bootstrapping sessions: %w", err)
		}

		createdSessions = true
	}

	return createdCredentials, createdSessions, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
