package holiday

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresCalendar reads holidays from a table maintained by the clinic's
// operations tooling:
//
//	CREATE TABLE holidays (
//	    region       TEXT NOT NULL,
//	    holiday_date DATE NOT NULL,
//	    name         TEXT,
//	    PRIMARY KEY (region, holiday_date)
//	);
type PostgresCalendar struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewPostgresCalendar(pool *pgxpool.Pool, logger *logrus.Logger) *PostgresCalendar {
	return &PostgresCalendar{pool: pool, logger: logger}
}

// NewPostgresCalendarFromConnString opens a pool and verifies connectivity
func NewPostgresCalendarFromConnString(ctx context.Context, connString string, logger *logrus.Logger) (*PostgresCalendar, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to holiday database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping holiday database: %w", err)
	}

	logger.Info("Successfully connected to holiday database")
	return &PostgresCalendar{pool: pool, logger: logger}, nil
}

func (c *PostgresCalendar) IsHoliday(ctx context.Context, date time.Time, region string) (bool, error) {
	var holiday bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM holidays WHERE region = $1 AND holiday_date = $2::date)`,
		normalizeRegion(region), date.Format(dateLayout),
	).Scan(&holiday)
	if err != nil {
		return false, fmt.Errorf("query holidays: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"region":  region,
		"date":    date.Format(dateLayout),
		"holiday": holiday,
	}).Debug("Holiday lookup")

	return holiday, nil
}

func (c *PostgresCalendar) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
