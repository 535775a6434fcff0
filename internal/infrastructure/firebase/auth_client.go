package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

type FirebaseAuthClient struct {
	client *auth.Client
	apiKey string
}

func NewFirebaseAuthClient(client *auth.Client, apiKey string) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
		apiKey: apiKey,
	}
}

// VerifyToken verifies an ID token and returns the uid and role claim.
func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (string, string, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return "", "", err
	}

	role := ""
	if claim, ok := result.Claims["role"].(string); ok {
		role = claim
	}

	return result.UID, role, nil
}

func (f *FirebaseAuthClient) GenerateToken(ctx context.Context, uid string) (string, error) {
	token, err := f.client.CustomToken(ctx, uid)
	if err != nil {
		return "", err
	}

	return token, nil
}

// TestConnection probes the Auth backend. A user-not-found answer still
// means the service is reachable.
func (f *FirebaseAuthClient) TestConnection(ctx context.Context) error {
	_, err := f.client.GetUser(ctx, "health-check-probe")
	if err != nil && auth.IsUserNotFound(err) {
		return nil
	}
	return err
}
