package mongostore

import (
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/and161185/docrepo/internal/config"
	"github.com/and161185/docrepo/internal/store"
)

func TestClientOptions_Plain(t *testing.T) {
	t.Parallel()

	o := config.New(
		config.WithDatabase("app"),
		config.WithHost("db.internal", 27018),
		config.WithReplicaSet("rs0"),
		config.WithConnectTimeout(3*time.Second),
	)
	co, err := ClientOptions(o)
	require.NoError(t, err)

	require.Equal(t, []string{"db.internal:27018"}, co.Hosts)
	require.Equal(t, "docrepo", *co.AppName)
	require.Equal(t, "rs0", *co.ReplicaSet)
	require.Equal(t, 3*time.Second, *co.ConnectTimeout)
	require.Nil(t, co.Auth)
	require.Nil(t, co.TLSConfig)
}

func TestClientOptions_Scram(t *testing.T) {
	t.Parallel()

	o := config.New(config.WithDatabase("app"), config.WithScramAuth("svc", "pw", "users"))
	co, err := ClientOptions(o)
	require.NoError(t, err)
	require.NotNil(t, co.Auth)
	require.Equal(t, "SCRAM-SHA-256", co.Auth.AuthMechanism)
	require.Equal(t, "users", co.Auth.AuthSource)
	require.Equal(t, "svc", co.Auth.Username)
	require.Equal(t, "pw", co.Auth.Password)
}

func TestClientOptions_X509(t *testing.T) {
	t.Parallel()

	cert := tls.Certificate{Certificate: [][]byte{{1, 2, 3}}}
	o := config.New(config.WithDatabase("app"), config.WithX509Auth(cert), config.WithTLS(true))
	co, err := ClientOptions(o)
	require.NoError(t, err)
	require.Equal(t, "MONGODB-X509", co.Auth.AuthMechanism)
	require.Equal(t, "$external", co.Auth.AuthSource)
	require.NotNil(t, co.TLSConfig)
	require.True(t, co.TLSConfig.InsecureSkipVerify)
	require.Len(t, co.TLSConfig.Certificates, 1)
}

func TestConcernMapping(t *testing.T) {
	t.Parallel()

	require.Nil(t, ReadConcern(""))
	require.Nil(t, WriteConcern(""))
	for _, l := range []config.ReadConcern{
		config.ReadLocal, config.ReadAvailable, config.ReadMajority, config.ReadLinearizable, config.ReadSnapshot,
	} {
		rc := ReadConcern(l)
		require.NotNil(t, rc, l)
		require.Equal(t, string(l), rc.Level)
	}
	for _, l := range []config.WriteConcern{
		config.WriteMajority, config.WriteW1, config.WriteJournaled, config.WriteUnacknowledged,
	} {
		require.NotNil(t, WriteConcern(l), l)
	}
	require.False(t, WriteConcern(config.WriteUnacknowledged).Acknowledged())
}

func TestMapErr(t *testing.T) {
	t.Parallel()

	require.ErrorIs(t, mapErr(mongo.ErrNoDocuments), store.ErrNoDocuments)
	other := errors.New("boom")
	require.Equal(t, other, mapErr(other))
}
