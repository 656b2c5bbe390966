package sspcmd

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRootCommand_HasServeAndHealthSubcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCommand()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	require.Contains(t, names, "serve")
	require.Contains(t, names, "health")
}

func TestHealthCommand_ReportsHealthyInstance(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}

		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	cmd := NewHealthCommand()
	cmd.SetArgs([]string{"--addr", srv.URL})

	require.NoError(t, cmd.Execute())
}

func TestHealthCommand_ReportsUnreachableInstance(t *testing.T) {
	t.Parallel()

	cmd := NewHealthCommand()
	cmd.SetArgs([]string{"--addr", "http://127.0.0.1:1", "--timeout", "100ms"})

	require.Error(t, cmd.Execute())
}
