package featureflags

import (
	"context"
	"testing"

	"bittietasks-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestUnconfiguredClientDegrades(t *testing.T) {
	ff := ProvideFeatureFlag(FeatureParams{Config: &config.Config{}})

	features, err := ff.Features(context.Background(), "user_1")
	require.NoError(t, err)
	require.Nil(t, features)

	// Callers treat the error as "flag off" and fall back; no panic.
	_, err = ff.Flags(context.Background(), "user_1")
	require.Error(t, err)
}
