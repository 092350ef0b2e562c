package auth

import (
	"context"
	"testing"
	"time"

	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloth-shop/api/internal/platform/config"
)

type recordingTokenClient struct {
	plain    int
	revoked  int
	deadline bool
}

func (c *recordingTokenClient) VerifyIDToken(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	c.plain++
	_, c.deadline = ctx.Deadline()
	return &firebaseauth.Token{UID: "user-1"}, nil
}

func (c *recordingTokenClient) VerifyIDTokenAndCheckRevoked(ctx context.Context, _ string) (*firebaseauth.Token, error) {
	c.revoked++
	_, c.deadline = ctx.Deadline()
	return &firebaseauth.Token{UID: "user-1"}, nil
}

func TestFirebaseVerifierDefaultsToPlainVerification(t *testing.T) {
	client := &recordingTokenClient{}
	verifier := newFirebaseVerifier(client)

	token, err := verifier.VerifyIDToken(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "user-1", token.UID)
	assert.Equal(t, 1, client.plain)
	assert.Zero(t, client.revoked)
	assert.True(t, client.deadline)
}

func TestFirebaseVerifierRevocationCheck(t *testing.T) {
	client := &recordingTokenClient{}
	verifier := newFirebaseVerifier(client, WithRevocationCheck(), WithFirebaseTimeout(time.Second))

	_, err := verifier.VerifyIDToken(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, 1, client.revoked)
	assert.Zero(t, client.plain)
}

func TestFirebaseVerifierNotInitialised(t *testing.T) {
	var verifier *FirebaseVerifier
	_, err := verifier.VerifyIDToken(context.Background(), "token")
	assert.ErrorIs(t, err, errVerifierNotReady)

	_, err = NewFirebaseVerifier(context.Background(), config.FirebaseConfig{})
	assert.Error(t, err)
}
