package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphabot-ai/blogapi/internal/model"
	"github.com/alphabot-ai/blogapi/internal/store/sqlite"
)

func TestSetRole(t *testing.T) {
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "blog.db")
	t.Setenv("STORE_URI", "sqlite://"+path)

	st, err := sqlite.Open(path)
	require.NoError(t, err)
	_, err = st.CreateUser(context.Background(), &model.User{Username: "ola", Email: "ola@example.com", PasswordHash: "h"})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	root := newRootCmd()
	root.SetArgs([]string{"set-role", "--username", "ola", "--role", "admin"})
	require.NoError(t, root.Execute())

	st, err = sqlite.Open(path)
	require.NoError(t, err)
	defer st.Close()
	user, err := st.GetUserByUsername(context.Background(), "ola")
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, user.Role)

	root = newRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"set-role", "--username", "ola", "--role", "owner"})
	assert.Error(t, root.Execute())

	root = newRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"set-role", "--username", "nobody", "--role", "reader"})
	assert.Error(t, root.Execute())
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Equal(t, Version+"\n", out.String())
}

func TestServeRequiresSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "")
	root := newRootCmd()
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"serve", "--store", "memory://"})
	assert.Error(t, root.Execute())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (equivalent of testing.T.Chdir, which needs Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
}
