package datalogger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"plc-server/internal/models"

	// SQLite driver for database/sql.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
)

const (
	createTableSQL = `CREATE TABLE IF NOT EXISTS process_history (
		run_id TEXT NOT NULL,
		recorded_at TEXT NOT NULL,
		flow_rate REAL,
		pressure_inlet REAL,
		pressure_outlet REAL,
		temperature REAL,
		density_measurement REAL,
		gas_volume_fraction REAL,
		water_cut REAL,
		oil_in_water_ppm REAL,
		inlet_valve_position REAL,
		outlet_valve_position REAL,
		pump_speed REAL,
		sample_valve_state INTEGER,
		system_running INTEGER,
		emergency_stop INTEGER,
		maintenance_mode INTEGER,
		alarm_active INTEGER
	)`

	insertSQL = `INSERT INTO process_history VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`

	defaultBatchSize = 100
)

// Recorder persists process snapshots into a SQLite history table. Writes are
// batched on a background goroutine; the scan loop only performs a
// non-blocking channel send, and snapshots are dropped (and counted) when the
// buffer is full.
type Recorder struct {
	db     *sql.DB
	logger *logrus.Logger

	runID     string
	batchSize int

	in      chan models.Snapshot
	pending []models.Snapshot
	dropped int64
	done    chan struct{}
}

func NewRecorder(path string, logger *logrus.Logger) (*Recorder, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history table: %w", err)
	}

	r := &Recorder{
		db:        db,
		logger:    logger,
		runID:     xid.New().String(),
		batchSize: defaultBatchSize,
		in:        make(chan models.Snapshot, 256),
		done:      make(chan struct{}),
	}

	logger.Infof("Process data recorder started, run %s, database %s", r.runID, path)
	return r, nil
}

func (r *Recorder) Name() string {
	return "datalogger"
}

// Offer queues a snapshot for persistence without blocking.
func (r *Recorder) Offer(snapshot models.Snapshot) bool {
	select {
	case r.in <- snapshot:
		return true
	default:
		r.dropped++
		return false
	}
}

// Run batches queued snapshots into the database until cancelled, flushing
// on batch size and on a periodic timer.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	flushTicker := time.NewTicker(5 * time.Second)
	defer flushTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.flush()
			return
		case snapshot := <-r.in:
			r.pending = append(r.pending, snapshot)
			if len(r.pending) >= r.batchSize {
				r.flush()
			}
		case <-flushTicker.C:
			r.flush()
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case snapshot := <-r.in:
			r.pending = append(r.pending, snapshot)
		default:
			return
		}
	}
}

func (r *Recorder) flush() {
	if len(r.pending) == 0 {
		return
	}

	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Errorf("History flush failed to begin: %v", err)
		return
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		r.logger.Errorf("History flush failed to prepare: %v", err)
		tx.Rollback()
		return
	}

	for _, s := range r.pending {
		_, err := stmt.Exec(
			r.runID,
			s.LastUpdate.Format(time.RFC3339Nano),
			s.FlowRate,
			s.PressureInlet,
			s.PressureOutlet,
			s.Temperature,
			s.DensityMeasurement,
			s.GasVolumeFraction,
			s.WaterCut,
			s.OilInWaterPPM,
			s.InletValvePosition,
			s.OutletValvePosition,
			s.PumpSpeed,
			s.SampleValveOpen,
			s.SystemRunning,
			s.EmergencyStop,
			s.MaintenanceMode,
			s.AlarmActive,
		)
		if err != nil {
			r.logger.Errorf("History insert failed: %v", err)
		}
	}
	stmt.Close()

	if err := tx.Commit(); err != nil {
		r.logger.Errorf("History flush failed to commit: %v", err)
		return
	}

	r.logger.Debugf("Flushed %d history rows", len(r.pending))
	r.pending = r.pending[:0]
}

// Dropped reports snapshots rejected because the buffer was full.
func (r *Recorder) Dropped() int64 {
	return r.dropped
}

// Close waits for the writer to finish and closes the database.
func (r *Recorder) Close() {
	<-r.done
	if err := r.db.Close(); err != nil {
		r.logger.Errorf("Failed to close history database: %v", err)
	}
	r.logger.Info("Process data recorder stopped")
}
