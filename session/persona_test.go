package session_test

import (
	"testing"

	"github.com/jrsteele09/go-fleet-portal/internal/errors"
	"github.com/jrsteele09/go-fleet-portal/session"
	"github.com/stretchr/testify/require"
)

func TestParsePersona(t *testing.T) {
	tests := []struct {
		in      string
		want    session.Persona
		wantErr bool
	}{
		{in: "owner", want: session.PersonaOwner},
		{in: "fleet-user", want: session.PersonaFleetUser},
		{in: "user", want: session.PersonaFleetUser},
		{in: "", want: session.PersonaNone},
		{in: "admin", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := session.ParsePersona(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, errors.ErrUnknownPersona)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}
