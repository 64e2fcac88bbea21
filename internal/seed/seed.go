package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cvfolio/cvfolio-portal/internal/authprovider"
	"github.com/cvfolio/cvfolio-portal/internal/common"
	"github.com/cvfolio/cvfolio-portal/internal/models"
)

const usersFileName = "import/users.json"

// SeedUser is one entry in the users seed file.
type SeedUser struct {
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// usersFile is the JSON structure for the users seed file.
type usersFile struct {
	Users []SeedUser `json:"users"`
}

// defaultUsers is registered when no import/users.json exists, so a fresh
// dev checkout has a working login without any setup.
var defaultUsers = []SeedUser{
	{UID: "dev-alice", Email: "alice@cvfolio.local", DisplayName: "Alice Dev", Password: "alice-dev-pass"},
	{UID: "dev-bob", Email: "bob@cvfolio.local", DisplayName: "Bob Dev", Password: "bob-dev-pass"},
}

// DevUsers registers dev users into the local auth provider from
// import/users.json, falling back to built-in defaults when the file
// does not exist. Non-fatal: bad entries are logged and skipped.
func DevUsers(provider *authprovider.DevProvider, logger *common.Logger) {
	users := defaultUsers
	source := "defaults"

	if path := findUsersFile(); path != "" {
		loaded, err := loadUsersFile(path)
		if err != nil {
			logger.Error().Str("error", err.Error()).Str("path", path).Msg("seed: failed to load users file")
			return
		}
		if len(loaded) == 0 {
			logger.Warn().Str("path", path).Msg("seed: users file is empty, skipping dev user seeding")
			return
		}
		users = loaded
		source = path
	}

	registered := 0
	for _, u := range users {
		if u.Email == "" || u.Password == "" {
			logger.Warn().Str("uid", u.UID).Msg("seed: user entry missing email or password, skipped")
			continue
		}
		uid := u.UID
		if uid == "" {
			uid = u.Email
		}
		identity := models.Identity{
			UID:           uid,
			Email:         u.Email,
			DisplayName:   u.DisplayName,
			EmailVerified: true,
		}
		if err := provider.Register(identity, u.Password); err != nil {
			logger.Warn().Str("email", u.Email).Str("error", err.Error()).Msg("seed: failed to register dev user")
			continue
		}
		registered++
	}

	logger.Info().Int("count", registered).Str("source", source).Msg("seed: dev users registered")
}

// findUsersFile searches for import/users.json relative to the executable
// directory first, then falls back to the current working directory.
func findUsersFile() string {
	if exe, err := os.Executable(); err == nil {
		p := filepath.Join(filepath.Dir(exe), usersFileName)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if _, err := os.Stat(usersFileName); err == nil {
		return usersFileName
	}
	return ""
}

// loadUsersFile reads and parses the users seed file.
func loadUsersFile(path string) ([]SeedUser, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}
	var f usersFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return f.Users, nil
}
