package oauth_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/authbox/internal/domain/oauth"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{oauth.ErrInvalidRequest, http.StatusBadRequest},
		{oauth.ErrInvalidScope, http.StatusBadRequest},
		{oauth.New(oauth.ErrInvalidRequest, "invalid grant_type"), http.StatusBadRequest},
		{oauth.ErrInvalidToken, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", oauth.ErrUnauthorized), http.StatusUnauthorized},
		{oauth.ErrNotFound, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.status, oauth.Status(tc.err), tc.err.Error())
	}
}

func TestMessage(t *testing.T) {
	require.Equal(t, "Domain prefix unknown: x", oauth.Message(oauth.New(oauth.ErrInvalidRequest, "Domain prefix unknown: x")))
	require.Equal(t, "invalid scope", oauth.Message(fmt.Errorf("resolve: %w", oauth.ErrInvalidScope)))
	require.Equal(t, "internal server error", oauth.Message(errors.New("pq: connection refused")))

	err := oauth.New(oauth.ErrInvalidToken, "")
	require.ErrorIs(t, err, oauth.ErrInvalidToken)
	require.Equal(t, "invalid token", oauth.Message(err))
}
