package testutil

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nkiryanov/numrent/internal/db"
)

// Return random free port on 127.0.0.1 address
func RandomPort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:")
	if err != nil {
		return 0, err
	}
	defer ln.Close() // nolint:errcheck

	addr := ln.Addr().(*net.TCPAddr)
	return addr.Port, nil
}

func requireDocker(t *testing.T) {
	t.Helper()

	cmd := exec.Command("docker", "info", "--format", "{{.ServerVersion}}")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("test failed: docker rootless not available or not running. Err:%s", out)
	}
}

type PostgresContainer struct {
	Pool      *pgxpool.Pool
	DSN       string
	Terminate func()
}

// Start container with postgres
// Stop if error happened, so you may be sure container started ok
// Should be stopped when tests stopped
func StartPostgresContainer(t *testing.T) PostgresContainer {
	t.Helper()
	requireDocker(t)

	// Run postgres in docker on random port
	port, err := RandomPort()
	require.NoError(t, err, "Error happened when acquiring random port to start postgres")

	container, err := postgres.Run(t.Context(),
		"postgres:17-alpine",
		postgres.WithDatabase("numrent-test"),
		postgres.WithUsername("numrent"),
		postgres.WithPassword("pwd"),
		postgres.BasicWaitStrategies(),
		testcontainers.CustomizeRequestOption(func(req *testcontainers.GenericContainerRequest) error {
			req.ExposedPorts = []string{fmt.Sprintf("%d:5432", port)}
			return nil
		}),
	)
	require.NoError(t, err, "Error happened when starting container with postgres, deal with it please")

	dsn, err := container.ConnectionString(t.Context(), "sslmode=disable")
	require.NoError(t, err, "Error happened when getting connection string from container with postgres")
	t.Logf("Container with pg started, DSN=%v", dsn)

	// Migrate and request connection pool
	dbpool, err := db.ConnectAndMigrate(t.Context(), dsn)
	require.NoError(t, err, "Error happened when connecting to postgres and migrating schema")

	return PostgresContainer{
		Pool: dbpool,
		DSN:  dsn,
		Terminate: func() {
			dbpool.Close()
			testcontainers.CleanupContainer(t, container)
		},
	}
}

type GenericContainer struct {
	Address   string // host:port of the exposed service port
	Terminate func()
}

func startGeneric(t *testing.T, req testcontainers.ContainerRequest, port nat.Port) GenericContainer {
	t.Helper()
	requireDocker(t)

	container, err := testcontainers.GenericContainer(t.Context(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "Error happened when starting container %s", req.Image)

	endpoint, err := container.PortEndpoint(t.Context(), port, "")
	require.NoError(t, err, "Error happened when getting endpoint of container %s", req.Image)
	t.Logf("Container %s started, address=%v", req.Image, endpoint)

	return GenericContainer{
		Address: endpoint,
		Terminate: func() {
			testcontainers.CleanupContainer(t, container)
		},
	}
}

// Start redis, address is host:port
func StartRedisContainer(t *testing.T) GenericContainer {
	return startGeneric(t, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379/tcp")
}

// Start nats, address is host:port (use nats://<address> to connect)
func StartNatsContainer(t *testing.T) GenericContainer {
	return startGeneric(t, testcontainers.ContainerRequest{
		Image:        "nats:2.10-alpine",
		ExposedPorts: []string{"4222/tcp"},
		WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
	}, "4222/tcp")
}

type dbtx interface {
	Begin(context.Context) (pgx.Tx, error)
}

// Create db transaction and rollback at test end
// So you may be sure db remains unchanged when test stops
func WithTx(dbtx dbtx, t *testing.T, testFunc func(tx pgx.Tx)) {
	tx, err := dbtx.Begin(t.Context())
	require.NoError(t, err)

	defer func() {
		err := tx.Rollback(t.Context())
		require.NoError(t, err)
	}()

	testFunc(tx)
}

// Same as WithTx, reads better in nested subtests
func InTx(dbtx dbtx, t *testing.T, testFunc func(tx pgx.Tx)) {
	WithTx(dbtx, t, testFunc)
}

// Truncate all data tables. Required by tests that commit real transactions
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(t.Context(), `TRUNCATE ledger_entries, transactions, orders, sweep_runs, users CASCADE`)
	require.NoError(t, err, "Error happened when truncating tables")
}

func MustParseTime(t *testing.T, value string) time.Time {
	t.Helper()

	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}
