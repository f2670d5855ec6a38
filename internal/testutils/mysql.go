package testutils

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"
)

var (
	mysqlTestContainerImage          = "mysql:8"
	mysqlTestContainerPort  nat.Port = "3306"
)

// MySQLContainerSuite runs a MySQL container for the lifetime of a suite
type MySQLContainerSuite struct {
	suite.Suite
	Container     testcontainers.Container
	MigrationUp   []string
	MigrationDown []string
	image         string
}

func (s *MySQLContainerSuite) SetupSuite() {
	ctx := context.Background()
	if s.image == "" {
		s.image = mysqlTestContainerImage
	}

	var err error
	s.Container, err = tcmysql.Run(
		ctx,
		s.image,
		tcmysql.WithDatabase(testContainerDatabase),
		tcmysql.WithUsername(testContainerUser),
		tcmysql.WithPassword(testContainerPassword),
	)
	s.Require().NoErrorf(err, "failed to start MySQL Container")

	s.migrate(ctx, s.MigrationUp)
}

func (s *MySQLContainerSuite) TearDownSuite() {
	ctx := context.Background()
	s.migrate(ctx, s.MigrationDown)
	err := s.Container.Terminate(ctx)
	s.Assert().NoErrorf(err, "failed to terminate MySQL Container")
}

func (s *MySQLContainerSuite) SetImage(image string) *MySQLContainerSuite {
	s.image = image
	return s
}

func (s *MySQLContainerSuite) SetMigrationUp(sqls []string) *MySQLContainerSuite {
	s.MigrationUp = sqls
	return s
}

func (s *MySQLContainerSuite) SetMigrationDown(sqls []string) *MySQLContainerSuite {
	s.MigrationDown = sqls
	return s
}

// GetDSN returns the go-sql-driver DSN of the test database
func (s *MySQLContainerSuite) GetDSN(ctx context.Context) string {
	host, err := s.Container.Host(ctx)
	s.Require().NoErrorf(err, "failed to get Container host")
	port, err := s.Container.MappedPort(ctx, mysqlTestContainerPort)
	s.Require().NoErrorf(err, "failed to get Container port")
	return fmt.Sprintf(
		"%s:%s@tcp(%s:%s)/%s",
		testContainerUser, testContainerPassword, host, port.Port(), testContainerDatabase,
	)
}

// GetDatabaseURL returns the mysql:// URL of the test database
func (s *MySQLContainerSuite) GetDatabaseURL(ctx context.Context) string {
	return "mysql://" + s.GetDSN(ctx)
}

func (s *MySQLContainerSuite) GetConnection(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("mysql", s.GetDSN(ctx))
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}
	return db, nil
}

// GetRootConnection connects as root without selecting a database. The
// container module sets the root password to the test user's password.
func (s *MySQLContainerSuite) GetRootConnection(ctx context.Context) (*sql.DB, error) {
	host, err := s.Container.Host(ctx)
	if err != nil {
		return nil, fmt.Errorf("get container host: %w", err)
	}
	port, err := s.Container.MappedPort(ctx, mysqlTestContainerPort)
	if err != nil {
		return nil, fmt.Errorf("get container port: %w", err)
	}
	db, err := sql.Open("mysql", fmt.Sprintf("root:%s@tcp(%s:%s)/", testContainerPassword, host, port.Port()))
	if err != nil {
		return nil, fmt.Errorf("open mysql root connection: %w", err)
	}
	return db, nil
}

func (s *MySQLContainerSuite) migrate(ctx context.Context, sqls []string) {
	if len(sqls) == 0 {
		return
	}
	conn, err := s.GetConnection(ctx)
	s.Require().NoErrorf(err, "failed to connect to MySQL")
	defer conn.Close()
	s.Require().NoErrorf(conn.PingContext(ctx), "failed to ping MySQL")
	for i, migration := range sqls {
		log.Info().
			Str("migration", migration).
			Int("index", i).
			Msg("running migration")
		_, err = conn.ExecContext(ctx, migration)
		s.Require().NoErrorf(err, "failed to run migration")
	}
}
