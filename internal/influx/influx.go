// Package influx writes allocation performance points to InfluxDB, or to a
// gzipped line protocol backup file when the server is unreachable.
package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"

	"github.com/fleetsync/fleetsync/internal/allocator"
)

// MeasurementAllocation is the measurement written for every allocation.
const MeasurementAllocation = "allocation"

// Config holds the InfluxDB connection settings.
type Config struct {
	URL        string
	Token      string
	Org        string
	Bucket     string
	BackupPath string // gzip line protocol file used when the server is unreachable
}

// Manager handles the InfluxDB connection and writes.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	client influxdb2.Client
	writer influxdb2_api.WriteAPI

	mu           sync.Mutex
	backupFile   *os.File
	backupWriter *gzip.Writer
	valid        bool

	now func() time.Time
}

// NewManager creates a manager. Nothing is contacted until Connect.
func NewManager(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Connect pings the server and prepares the bucket. When the server is not
// reachable, points go to the backup file instead.
func (m *Manager) Connect(ctx context.Context) error {
	m.client = influxdb2.NewClientWithOptions(
		m.cfg.URL,
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(500).
			SetFlushInterval(1000),
	)

	running, err := m.client.Ping(ctx)
	if err != nil || !running {
		m.logger.Warn("InfluxDB unreachable, writing to backup file",
			"url", m.cfg.URL, "backupPath", m.cfg.BackupPath, "error", err)
		return m.openBackup()
	}

	if err := m.setupOrganizationAndBucket(ctx); err != nil {
		return err
	}

	m.writer = m.client.WriteAPI(m.cfg.Org, m.cfg.Bucket)
	go func(errorsCh <-chan error) {
		for writeErr := range errorsCh {
			m.logger.Error("Error sending data to InfluxDB", "bucket", m.cfg.Bucket, "error", writeErr)
		}
	}(m.writer.Errors())

	m.mu.Lock()
	m.valid = true
	m.mu.Unlock()

	m.logger.Info("InfluxDB client initialized", "url", m.cfg.URL, "bucket", m.cfg.Bucket)
	return nil
}

func (m *Manager) openBackup() error {
	if m.cfg.BackupPath == "" {
		return errors.New("influxdb unreachable and no backup path configured")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.backupWriter != nil {
		return nil
	}

	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %w", err)
	}
	m.backupFile = file
	m.backupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBucket(ctx context.Context) error {
	orgs := m.client.OrganizationsAPI()

	org, err := orgs.FindOrganizationByName(ctx, m.cfg.Org)
	if err != nil {
		m.logger.Info("Organization not found, creating", "org", m.cfg.Org)
		org, err = orgs.CreateOrganizationWithName(ctx, m.cfg.Org)
		if err != nil {
			return fmt.Errorf("creating organization %s: %w", m.cfg.Org, err)
		}
	}

	buckets := m.client.BucketsAPI()
	if _, err := buckets.FindBucketByName(ctx, m.cfg.Bucket); err != nil {
		m.logger.Info("Bucket not found, creating", "bucket", m.cfg.Bucket)

		rule := domain.RetentionRuleTypeExpire
		_, err = buckets.CreateBucketWithName(ctx, org, m.cfg.Bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: 60 * 60 * 24 * 90, // 90 days
		})
		if err != nil {
			return fmt.Errorf("creating bucket %s: %w", m.cfg.Bucket, err)
		}
	}

	return nil
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.valid {
		m.writer.WritePoint(point)
		return nil
	}

	if m.backupWriter == nil {
		return errors.New("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.backupWriter.Write([]byte(lineProtocol + "\n")); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %w", err)
	}
	return nil
}

// ReportAllocation writes o as a point in the allocation measurement.
func (m *Manager) ReportAllocation(o allocator.Outcome) {
	if err := m.WritePoint(AllocationPoint(o, m.now())); err != nil {
		m.logger.Error("Failed to record allocation", "taskId", o.TaskID, "error", err)
	}
}

// AllocationPoint converts an allocation outcome into a point.
func AllocationPoint(o allocator.Outcome, ts time.Time) *influxdb2_write.Point {
	point := influxdb2_write.NewPointWithMeasurement(MeasurementAllocation).
		AddTag("task", strconv.FormatInt(o.TaskID, 10)).
		AddTag("assigned", strconv.FormatBool(o.Assigned)).
		AddField("candidates", o.Candidates).
		AddField("attempts", o.Attempts).
		AddField("duration_ms", float64(o.Duration)/float64(time.Millisecond)).
		SetTime(ts)

	if o.Assigned {
		point.AddTag("vehicle", strconv.FormatInt(o.VehicleID, 10)).
			AddField("distance", o.Distance).
			AddField("command", o.CommandID)
	}
	return point
}

// Close flushes pending writes and closes the client and backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writer != nil {
		m.writer.Flush()
	}
	if m.client != nil {
		m.client.Close()
	}

	var errs []error
	if m.backupWriter != nil {
		errs = append(errs, m.backupWriter.Close())
		errs = append(errs, m.backupFile.Close())
		m.backupWriter = nil
	}
	m.valid = false
	return errors.Join(errs...)
}
