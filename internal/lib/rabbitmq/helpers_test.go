package rabbitmq

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SkipRabbitMQTestsEnv отключает тесты, которым нужен живой брокер.
const SkipRabbitMQTestsEnv = "SKIP_RABBITMQ_TESTS"

func SetupRabbitMQContainer(ctx context.Context, t *testing.T) (testcontainers.Container, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "rabbitmq:3-management",
		ExposedPorts: []string{"5672/tcp", "15672/tcp"},
		Env: map[string]string{
			"RABBITMQ_DEFAULT_USER":   "guest",
			"RABBITMQ_DEFAULT_PASS":   "guest",
			"RABBITMQ_DEFAULT_VHOST":  "/",
			"RABBITMQ_LOOPBACK_USERS": "",
		},
		WaitingFor: wait.ForListeningPort("5672/tcp").
			WithStartupTimeout(2 * time.Minute),
	}

	rmqContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	cleanup := func() {
		err := rmqContainer.Terminate(ctx)
		if err != nil {
			t.Logf("failed to terminate rabbitmq container: %v", err)
		}
	}

	return rmqContainer, cleanup
}

func GetAmqpURI(ctx context.Context, container testcontainers.Container) (string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", err
	}
	port, err := container.MappedPort(ctx, "5672/tcp")
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("amqp://guest:guest@%s:%s/", host, port.Port()), nil
}

// brokerURI возвращает адрес брокера: внешний из TEST_RABBITMQ_URL или контейнер.
func brokerURI(ctx context.Context, t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv(SkipRabbitMQTestsEnv) != "" {
		t.Skip("rabbitmq tests skipped")
	}

	if testRabbitMQURL := os.Getenv("TEST_RABBITMQ_URL"); testRabbitMQURL != "" {
		t.Logf("Using external RabbitMQ service: %s", testRabbitMQURL)
		return testRabbitMQURL
	}

	rmqContainer, cleanup := SetupRabbitMQContainer(ctx, t)
	t.Cleanup(cleanup)

	uri, err := GetAmqpURI(ctx, rmqContainer)
	require.NoError(t, err)
	return uri
}
