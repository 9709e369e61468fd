package gateway

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/cuemby/mirror/pkg/config"
	"github.com/cuemby/mirror/pkg/types"
	"google.golang.org/api/option"
)

// Connect builds the four backend handles from the loaded credentials.
// Handles live for the process; Close releases them.
func Connect(ctx context.Context, cfg *config.Config) (*Gateways, error) {
	primaryDB, primaryAuth, err := connectSide(ctx, &cfg.Primary, types.SidePrimary, cfg.MaxRetryAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect primary: %w", err)
	}
	standbyDB, standbyAuth, err := connectSide(ctx, &cfg.Standby, types.SideStandby, cfg.MaxRetryAttempts)
	if err != nil {
		primaryDB.Close()
		return nil, fmt.Errorf("failed to connect standby: %w", err)
	}

	return &Gateways{
		PrimaryDB:   primaryDB,
		StandbyDB:   standbyDB,
		PrimaryAuth: primaryAuth,
		StandbyAuth: standbyAuth,
	}, nil
}

func connectSide(ctx context.Context, creds *config.Credentials, side types.Side, retries int) (*FirestoreDB, *FirebaseDirectory, error) {
	credJSON, err := creds.JSON()
	if err != nil {
		return nil, nil, err
	}

	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: creds.ProjectID},
		option.WithCredentialsJSON(credJSON),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	fs, err := app.Firestore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open firestore client: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		fs.Close()
		return nil, nil, fmt.Errorf("failed to open auth client: %w", err)
	}

	return NewFirestoreDB(fs, side, retries), NewFirebaseDirectory(authClient, side, retries), nil
}

// Close releases any closable handles.
func (g *Gateways) Close() {
	if db, ok := g.PrimaryDB.(*FirestoreDB); ok {
		db.Close()
	}
	if db, ok := g.StandbyDB.(*FirestoreDB); ok {
		db.Close()
	}
}
