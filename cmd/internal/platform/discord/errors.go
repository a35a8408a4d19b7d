package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/volskaya/norman/cmd/internal/platform"
)

// mapError folds REST failures onto the platform sentinels, keeping the
// original error in the chain.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, discordgo.ErrStateNotFound) {
		return fmt.Errorf("discord %s: %w", op, platform.ErrNotFound)
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("discord %s: %w: %w", op, platform.ErrPermissionDenied, err)
		case http.StatusNotFound:
			return fmt.Errorf("discord %s: %w: %w", op, platform.ErrNotFound, err)
		}
	}
	return fmt.Errorf("discord %s: %w", op, err)
}
