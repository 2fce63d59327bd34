package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	postgresImage = "postgres:16-alpine"
	mailpitImage  = "ghcr.io/axllent/mailpit:latest"

	fieldslaDatabase = "fieldsla"
	fieldslaUser     = "fieldsla"
	fieldslaPassword = "fieldsla"

	mailpitSMTPPort = "1025/tcp"
	mailpitAPIPort  = "8025/tcp"

	startupTimeout = time.Minute
)

// Database is a throwaway fault store.
type Database struct {
	*postgres.PostgresContainer
	DSN string
}

// StartDatabase runs Postgres with the fieldsla database and role. The
// returned DSN disables TLS.
func StartDatabase(ctx context.Context) (*Database, error) {
	c, err := postgres.Run(ctx, postgresImage,
		postgres.WithDatabase(fieldslaDatabase),
		postgres.WithUsername(fieldslaUser),
		postgres.WithPassword(fieldslaPassword),
		// The entrypoint restarts the server once after initdb.
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(startupTimeout),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", postgresImage, err)
	}

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	return &Database{PostgresContainer: c, DSN: dsn}, nil
}

// Mailbox is a Mailpit instance that accepts SLA alert mail over SMTP and
// exposes it over its HTTP API.
type Mailbox struct {
	testcontainers.Container
	Host     string
	SMTPPort int
	APIPort  int
}

// APIURL is the base URL of the Mailpit HTTP API.
func (m *Mailbox) APIURL() string {
	return fmt.Sprintf("http://%s:%d", m.Host, m.APIPort)
}

// StartMailbox runs Mailpit and waits for both its listeners.
func StartMailbox(ctx context.Context) (*Mailbox, error) {
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        mailpitImage,
			ExposedPorts: []string{mailpitSMTPPort, mailpitAPIPort},
			WaitingFor: wait.ForAll(
				wait.ForListeningPort(mailpitSMTPPort),
				wait.ForHTTP("/api/v1/info").WithPort(mailpitAPIPort),
			).WithDeadline(startupTimeout),
		},
		Started: true,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", mailpitImage, err)
	}

	host, err := c.Host(ctx)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("mailpit host: %w", err)
	}
	smtp, err := c.MappedPort(ctx, mailpitSMTPPort)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("mailpit smtp port: %w", err)
	}
	api, err := c.MappedPort(ctx, mailpitAPIPort)
	if err != nil {
		_ = c.Terminate(ctx)
		return nil, fmt.Errorf("mailpit api port: %w", err)
	}

	return &Mailbox{
		Container: c,
		Host:      host,
		SMTPPort:  smtp.Int(),
		APIPort:   api.Int(),
	}, nil
}
