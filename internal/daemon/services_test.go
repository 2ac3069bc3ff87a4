package daemon

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoleAuthorizer(t *testing.T) {
	auth := newRoleAuthorizer([]string{"agent", "Admin"})

	assert.NoError(t, auth.AuthorizeOverride(context.Background(), "agent"))
	assert.NoError(t, auth.AuthorizeOverride(context.Background(), "ADMIN"), "case insensitive")
	assert.Error(t, auth.AuthorizeOverride(context.Background(), "citoyen"))
	assert.Error(t, auth.AuthorizeOverride(context.Background(), ""))
}

func TestPortalServices_ValidateDocumentType(t *testing.T) {
	services := newPortalServices()

	assert.NoError(t, services.ValidateDocumentType(context.Background(), "passeport"))
	assert.NoError(t, services.ValidateDocumentType(context.Background(), " Acte de naissance "))
	assert.Error(t, services.ValidateDocumentType(context.Background(), "brevet de pilote"))
}

func TestPortalServices_NextAvailableSlot(t *testing.T) {
	services := newPortalServices()

	slot, err := services.NextAvailableSlot(context.Background(), "état civil")
	require.NoError(t, err)
	assert.Contains(t, slot, "à 10h00")
}

func TestPortalServices_LookupService(t *testing.T) {
	services := newPortalServices()

	desc, found, err := services.LookupService(context.Background(), "état civil")
	require.NoError(t, err)
	require.True(t, found)
	assert.Contains(t, desc, "état civil")

	_, found, err = services.LookupService(context.Background(), "piscine municipale")
	require.NoError(t, err)
	assert.False(t, found)
}
