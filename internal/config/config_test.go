package config

import (
	"crypto/tls"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/docrepo/internal/errs"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	o := Defaults()
	require.Equal(t, "mongodb", o.Scheme)
	require.Equal(t, "localhost", o.Host)
	require.Equal(t, 27017, o.Port)
	require.Equal(t, AuthNone, o.Auth)
	require.Equal(t, ChannelPlain, o.Channel)
	require.Equal(t, 10*time.Second, o.ConnectTimeout)
	require.Equal(t, "sampleEntity", o.CollectionName("SampleEntity"))
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cert := tls.Certificate{Certificate: [][]byte{{1}}}

	tests := []struct {
		name    string
		opts    Options
		wantErr string
	}{
		{name: "ok", opts: New(WithDatabase("app"))},
		{name: "missing database", opts: New(), wantErr: "database"},
		{name: "blank host", opts: New(WithDatabase("app"), WithHost(" ", 27017)), wantErr: "host"},
		{name: "bad port", opts: New(WithDatabase("app"), WithHost("h", 0)), wantErr: "port"},
		{name: "srv ignores port", opts: New(WithDatabase("app"), WithScheme("mongodb+srv"), WithHost("cluster.example", 0))},
		{name: "bad scheme", opts: New(WithDatabase("app"), WithScheme("http")), wantErr: "scheme"},
		{name: "scram without password", opts: New(WithDatabase("app"), WithScramAuth("u", "", "")), wantErr: "scram"},
		{name: "scram ok", opts: New(WithDatabase("app"), WithScramAuth("u", "p", "users"))},
		{name: "x509 without cert", opts: New(WithDatabase("app"), WithX509Auth()), wantErr: "x509"},
		{name: "x509 ok", opts: New(WithDatabase("app"), WithX509Auth(cert))},
		{
			name:    "x509 plain channel",
			opts:    func() Options { o := New(WithDatabase("app"), WithX509Auth(cert)); o.Channel = ChannelPlain; return o }(),
			wantErr: "tls channel",
		},
		{name: "bad read concern", opts: New(WithDatabase("app"), WithDatabaseConcerns(Concerns{Read: "eventual"})), wantErr: "read_concern"},
		{name: "bad write concern", opts: New(WithDatabase("app"), WithCollectionConcerns(Concerns{Write: "w9"})), wantErr: "write_concern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.opts.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, errs.ErrConfiguration)
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestWithScramAuth_KeepsDefaultAuthDB(t *testing.T) {
	t.Parallel()

	o := New(WithScramAuth("u", "p", ""))
	require.Equal(t, "admin", o.AuthDatabase)
	o = New(WithScramAuth("u", "p", "users"))
	require.Equal(t, "users", o.AuthDatabase)
}

func TestNamingConventions(t *testing.T) {
	t.Parallel()

	cases := map[string][2]string{
		"SampleEntity": {"sampleEntity", "sample_entity"},
		"HTTPLog":      {"httpLog", "http_log"},
		"ID":           {"id", "id"},
		"order":        {"order", "order"},
	}
	for in, want := range cases {
		require.Equal(t, want[0], LowerCamel(in), in)
		require.Equal(t, want[1], SnakeCase(in), in)
	}

	o := New(WithNaming(SnakeCase))
	require.Equal(t, "sample_entity", o.CollectionName("SampleEntity"))
}

func TestLoad_FlagsOverFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "docrepo.json")
	b, err := json.Marshal(map[string]any{
		"host":                     "db.internal",
		"port":                     27018,
		"database":                 "fromfile",
		"auth":                     "scram",
		"user":                     "svc",
		"password":                 "pw",
		"connect_timeout":          "3s",
		"read_concern":             "majority",
		"collection_write_concern": "w1",
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))

	o, err := Load("test", []string{"-config", path, "-db", "fromflag", "-tls", "-replica-set", "rs0"})
	require.NoError(t, err)

	require.Equal(t, "db.internal", o.Host)
	require.Equal(t, 27018, o.Port)
	require.Equal(t, "fromflag", o.Database)
	require.Equal(t, AuthScram, o.Auth)
	require.Equal(t, "svc", o.User)
	require.Equal(t, ChannelTLS, o.Channel)
	require.Equal(t, "rs0", o.ReplicaSet)
	require.Equal(t, 3*time.Second, o.ConnectTimeout)
	require.Equal(t, ReadMajority, o.DatabaseConcerns.Read)
	require.Equal(t, WriteW1, o.CollectionConcerns.Write)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	_, err := Load("test", []string{"-nope"})
	require.ErrorContains(t, err, "parse flags")

	_, err = Load("test", []string{})
	require.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = Load("test", []string{"-config", filepath.Join(t.TempDir(), "missing.json")})
	require.ErrorContains(t, err, "read config")

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{ not json`), 0o600))
	_, err = Load("test", []string{"-config", bad})
	require.ErrorContains(t, err, "decode config")

	_, err = Load("test", []string{"-db", "x", "-cert", filepath.Join(t.TempDir(), "none.pem")})
	require.ErrorContains(t, err, "read certificate")
}
