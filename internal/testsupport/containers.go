package testsupport

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/localnerve/contentdb/data"
	"github.com/localnerve/contentdb/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/network"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Credentials created by data.InitdbMariaDB
const (
	appDatabase = "contentdb"
	appUser     = "contentdb"
	appPassword = "contentdb"
)

// Containers is a running MariaDB and Redis pair on a private network
type Containers struct {
	Network *testcontainers.DockerNetwork
	MariaDB testcontainers.Container
	Redis   testcontainers.Container

	DBHost   string
	DBPort   string
	RedisURL string
}

// Logf receives progress messages; testing.T.Logf fits
type Logf func(format string, args ...any)

// StartContainers starts MariaDB and Redis and runs the database bootstrap
// script. Images come from DB_IMAGE and REDIS_IMAGE when set. On error
// everything already started is terminated.
func StartContainers(ctx context.Context, logf Logf) (*Containers, error) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	tc := &Containers{}

	nw, err := network.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create network: %w", err)
	}
	tc.Network = nw

	if err := tc.startMariaDB(ctx, logf); err != nil {
		tc.Terminate(ctx, logf)
		return nil, err
	}
	if err := tc.startRedis(ctx, logf); err != nil {
		tc.Terminate(ctx, logf)
		return nil, err
	}
	return tc, nil
}

func (tc *Containers) startMariaDB(ctx context.Context, logf Logf) error {
	rootPassword := getenv("DB_ROOT_PASSWORD", "root")
	tcpPort, err := nat.NewPort("tcp", "3306")
	if err != nil {
		return fmt.Errorf("failed to create DB port: %w", err)
	}

	db, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getenv("DB_IMAGE", "mariadb:11"),
			ExposedPorts: []string{string(tcpPort)},
			Env: map[string]string{
				"MARIADB_ROOT_PASSWORD": rootPassword,
			},
			// data files are throwaway
			HostConfigModifier: func(hc *container.HostConfig) {
				hc.Tmpfs = map[string]string{"/var/lib/mysql": "rw"}
			},
			WaitingFor: wait.ForListeningPort(tcpPort).WithStartupTimeout(90 * time.Second),
			Networks:   []string{tc.Network.Name},
			NetworkAliases: map[string][]string{
				tc.Network.Name: {"mariadb"},
			},
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start MariaDB: %w", err)
	}
	tc.MariaDB = db

	host, err := db.Host(ctx)
	if err != nil {
		return err
	}
	port, err := db.MappedPort(ctx, tcpPort)
	if err != nil {
		return err
	}
	tc.DBHost, tc.DBPort = host, port.Port()
	logf("DB_HOST=%s DB_PORT=%s", tc.DBHost, tc.DBPort)

	return initMariaDB(ctx, fmt.Sprintf("root:%s@tcp(%s:%s)/", rootPassword, tc.DBHost, tc.DBPort))
}

func (tc *Containers) startRedis(ctx context.Context, logf Logf) error {
	tcpPort, err := nat.NewPort("tcp", "6379")
	if err != nil {
		return fmt.Errorf("failed to create Redis port: %w", err)
	}

	rc, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        getenv("REDIS_IMAGE", "redis:7-alpine"),
			ExposedPorts: []string{string(tcpPort)},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
			Networks:     []string{tc.Network.Name},
			NetworkAliases: map[string][]string{
				tc.Network.Name: {"redis"},
			},
		},
		Started: true,
	})
	if err != nil {
		return fmt.Errorf("failed to start Redis: %w", err)
	}
	tc.Redis = rc

	host, err := rc.Host(ctx)
	if err != nil {
		return err
	}
	port, err := rc.MappedPort(ctx, tcpPort)
	if err != nil {
		return err
	}
	tc.RedisURL = fmt.Sprintf("redis://%s:%s/0", host, port.Port())
	logf("REDIS_URL=%s", tc.RedisURL)
	return nil
}

// Config points cfg at the containers
func (tc *Containers) Config(cfg *config.Config) *config.Config {
	cfg.DBType = "mariadb"
	cfg.DBHost = tc.DBHost
	cfg.DBPort = tc.DBPort
	cfg.DBDatabase = appDatabase
	cfg.DBAppUser = appUser
	cfg.DBAppPassword = appPassword
	if cfg.DBAppConnectionLimit == 0 {
		cfg.DBAppConnectionLimit = 10
	}
	cfg.RedisURL = tc.RedisURL
	return cfg
}

// Terminate stops every started container and removes the network
func (tc *Containers) Terminate(ctx context.Context, logf Logf) {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	if tc.Redis != nil {
		if err := tc.Redis.Terminate(ctx); err != nil {
			logf("Failed to terminate Redis: %v", err)
		}
	}
	if tc.MariaDB != nil {
		if err := tc.MariaDB.Terminate(ctx); err != nil {
			logf("Failed to terminate MariaDB: %v", err)
		}
	}
	if tc.Network != nil {
		if err := tc.Network.Remove(ctx); err != nil {
			logf("Failed to remove network: %v", err)
		}
	}
}

func initMariaDB(ctx context.Context, dsn string) error {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to MariaDB for setup: %w", err)
	}
	defer db.Close()

	// the port opens before the server accepts logins
	for i := 0; i < 30; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		return fmt.Errorf("MariaDB not ready after 30 seconds: %w", err)
	}

	for _, stmt := range SplitSQL(data.InitdbMariaDB) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%w : when executing > %s", err, stmt)
		}
	}
	return nil
}

// SplitSQL strips "--" comments outside of quotes and splits a script into
// statements on ";"
func SplitSQL(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		b.WriteString(stripComment(line))
		b.WriteByte(' ')
	}

	var stmts []string
	for _, stmt := range strings.Split(b.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}

func stripComment(line string) string {
	var quote byte
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case quote != 0:
			if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case ch == '-' && i+1 < len(line) && line[i+1] == '-':
			return line[:i]
		}
	}
	return line
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
