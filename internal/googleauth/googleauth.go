// Package googleauth loads the credentials shared by the Drive and Calendar
// clients.
package googleauth

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// Scopes covers archive uploads and event inserts.
var Scopes = []string{drive.DriveScope, calendar.CalendarEventsScope}

// ClientOptions resolves credentials from a service-account key file, or from
// application default credentials when file is empty.
func ClientOptions(ctx context.Context, file string) ([]option.ClientOption, error) {
	creds, err := Credentials(ctx, file)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithCredentials(creds)}, nil
}

// Credentials loads Google credentials with Scopes.
func Credentials(ctx context.Context, file string) (*google.Credentials, error) {
	file = strings.TrimSpace(file)
	if file == "" {
		creds, err := google.FindDefaultCredentials(ctx, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("find default credentials: %w", err)
		}
		return creds, nil
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return creds, nil
}
