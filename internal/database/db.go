package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Options describes the MySQL connection.
type Options struct {
	User, Pass, Host, Port, Name string
	// LockWaitSec bounds how long a statement waits for a row lock
	// (innodb_lock_wait_timeout).  Zero keeps the server default.
	LockWaitSec int
}

// DSN renders the driver connection string.
func (o Options) DSN() string {
	auth := o.User
	if o.Pass != "" {
		auth = fmt.Sprintf("%s:%s", o.User, o.Pass)
	}
	// parseTime=true -> DATETIME -> time.Time | loc=UTC keeps times consistent
	q := url.Values{}
	q.Set("charset", "utf8mb4")
	q.Set("parseTime", "true")
	q.Set("loc", "UTC")
	if o.LockWaitSec > 0 {
		// unknown DSN params are sent as SET <name>=<value> on connect
		q.Set("innodb_lock_wait_timeout", fmt.Sprint(o.LockWaitSec))
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?%s", auth, o.Host, o.Port, o.Name, q.Encode())
}

// Open connects to MySQL and verifies the connection.
func Open(o Options) (*sql.DB, error) {
	return OpenDSN(o.DSN())
}

// OpenDSN is Open for a ready-made connection string.
func OpenDSN(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	// Pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
