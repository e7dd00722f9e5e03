package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rifqin-11/PosyanduKlitikan/internal/repository"
)

// ResolveEmail turns a login handle into the e-mail the auth backend expects.
// Input containing "@" is an e-mail and is returned as-is without a lookup;
// anything else is a username resolved through dir.
func ResolveEmail(ctx context.Context, login string, dir repository.UserDirectory) (string, error) {
	login = strings.TrimSpace(login)
	if strings.Contains(login, "@") {
		return login, nil
	}
	email, ok, err := dir.LookupEmailByUsername(ctx, login)
	if err != nil {
		return "", fmt.Errorf("failed to resolve username %q: %w", login, err)
	}
	if !ok {
		return "", ErrUsernameNotFound
	}
	return email, nil
}
