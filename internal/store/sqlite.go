package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	apperrors "options-terminal/internal/errors"
	"options-terminal/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Legs table: one row per (instance, symbol, exchange)
	CREATE TABLE IF NOT EXISTS legs (
		id TEXT PRIMARY KEY,
		instance_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		underlying TEXT NOT NULL DEFAULT '',
		expiry DATETIME,
		opt_right TEXT NOT NULL DEFAULT '',
		strike REAL NOT NULL DEFAULT 0,
		kind TEXT NOT NULL DEFAULT '',
		product TEXT NOT NULL DEFAULT 'NRML',
		lot_size INTEGER NOT NULL DEFAULT 1,
		net_qty INTEGER NOT NULL DEFAULT 0,
		avg_entry REAL NOT NULL DEFAULT 0,
		buy_qty INTEGER NOT NULL DEFAULT 0,
		sell_qty INTEGER NOT NULL DEFAULT 0,
		buy_notional REAL NOT NULL DEFAULT 0,
		sell_notional REAL NOT NULL DEFAULT 0,
		last_price REAL NOT NULL DEFAULT 0,
		best_favorable REAL NOT NULL DEFAULT 0,
		last_trail_price REAL NOT NULL DEFAULT 0,
		risk_enabled INTEGER NOT NULL DEFAULT 0,
		target_price REAL NOT NULL DEFAULT 0,
		stop_price REAL NOT NULL DEFAULT 0,
		trail_enabled INTEGER NOT NULL DEFAULT 0,
		trail_distance REAL NOT NULL DEFAULT 0,
		trail_step REAL NOT NULL DEFAULT 0,
		arm_after REAL NOT NULL DEFAULT 0,
		breakeven_after REAL NOT NULL DEFAULT 0,
		tsl_price REAL NOT NULL DEFAULT 0,
		tsl_armed INTEGER NOT NULL DEFAULT 0,
		scope TEXT NOT NULL DEFAULT 'LEG',
		pyramiding INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(instance_id, symbol, exchange)
	);
	CREATE INDEX IF NOT EXISTS idx_legs_risk ON legs(risk_enabled) WHERE risk_enabled = 1;
	CREATE INDEX IF NOT EXISTS idx_legs_underlying ON legs(instance_id, underlying, expiry);

	-- Risk exits: trigger_id uniqueness is the durable idempotency guarantee
	CREATE TABLE IF NOT EXISTS risk_exits (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trigger_id TEXT NOT NULL UNIQUE,
		leg_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		trigger_price REAL NOT NULL,
		target_price REAL NOT NULL DEFAULT 0,
		quantity INTEGER NOT NULL,
		entry_price REAL NOT NULL,
		unit_pnl REAL NOT NULL,
		total_pnl REAL NOT NULL,
		status TEXT NOT NULL,
		orders TEXT,
		summary TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_exits_status ON risk_exits(status);

	-- Broker instances (read-mostly; edited by the upstream CRUD)
	CREATE TABLE IF NOT EXISTS instances (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		broker TEXT NOT NULL,
		watchlist_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 0,
		order_enabled INTEGER NOT NULL DEFAULT 0,
		analyzer INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_instances_watchlist ON instances(watchlist_id);

	-- Order audit trail (best-effort)
	CREATE TABLE IF NOT EXISTS order_audit (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		exchange TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		product TEXT NOT NULL,
		order_id TEXT,
		status TEXT,
		strategy TEXT,
		error TEXT,
		placed_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const legColumns = `id, instance_id, symbol, exchange, underlying, expiry, opt_right, strike,
	kind, product, lot_size, net_qty, avg_entry, buy_qty, sell_qty, buy_notional,
	sell_notional, last_price, best_favorable, last_trail_price, risk_enabled,
	target_price, stop_price, trail_enabled, trail_distance, trail_step, arm_after,
	breakeven_after, tsl_price, tsl_armed, scope, pyramiding, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLeg(row rowScanner) (*models.Leg, error) {
	var leg models.Leg
	var expiry sql.NullTime
	err := row.Scan(
		&leg.ID, &leg.InstanceID, &leg.Symbol, &leg.Exchange, &leg.Underlying, &expiry,
		&leg.Right, &leg.Strike, &leg.Kind, &leg.Product, &leg.LotSize, &leg.NetQty,
		&leg.AvgEntryPrice, &leg.BuyQty, &leg.SellQty, &leg.BuyNotional, &leg.SellNotional,
		&leg.LastPrice, &leg.BestFavorablePrice, &leg.LastTrailPrice, &leg.RiskEnabled,
		&leg.TargetPrice, &leg.StopPrice, &leg.Trailing.Enabled, &leg.Trailing.TrailDistance,
		&leg.Trailing.Step, &leg.Trailing.ArmAfter, &leg.Trailing.BreakevenAfter,
		&leg.TrailingStopPrice, &leg.TrailingArmed, &leg.Scope, &leg.Pyramiding,
		&leg.CreatedAt, &leg.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if expiry.Valid {
		leg.Expiry = expiry.Time
	}
	return &leg, nil
}

// UpsertLeg inserts or replaces the full leg row.
func (s *SQLiteStore) UpsertLeg(ctx context.Context, leg *models.Leg) error {
	now := time.Now()
	if leg.CreatedAt.IsZero() {
		leg.CreatedAt = now
	}
	leg.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO legs (`+legColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(instance_id, symbol, exchange) DO UPDATE SET
			underlying=excluded.underlying, expiry=excluded.expiry, opt_right=excluded.opt_right,
			strike=excluded.strike, kind=excluded.kind, product=excluded.product,
			lot_size=excluded.lot_size, net_qty=excluded.net_qty, avg_entry=excluded.avg_entry,
			buy_qty=excluded.buy_qty, sell_qty=excluded.sell_qty,
			buy_notional=excluded.buy_notional, sell_notional=excluded.sell_notional,
			last_price=excluded.last_price, best_favorable=excluded.best_favorable,
			last_trail_price=excluded.last_trail_price, risk_enabled=excluded.risk_enabled,
			target_price=excluded.target_price, stop_price=excluded.stop_price,
			trail_enabled=excluded.trail_enabled, trail_distance=excluded.trail_distance,
			trail_step=excluded.trail_step, arm_after=excluded.arm_after,
			breakeven_after=excluded.breakeven_after, tsl_price=excluded.tsl_price,
			tsl_armed=excluded.tsl_armed, scope=excluded.scope, pyramiding=excluded.pyramiding,
			updated_at=excluded.updated_at`,
		leg.ID, leg.InstanceID, leg.Symbol, leg.Exchange, leg.Underlying, nullTime(leg.Expiry),
		leg.Right, leg.Strike, leg.Kind, leg.Product, leg.LotSize, leg.NetQty,
		leg.AvgEntryPrice, leg.BuyQty, leg.SellQty, leg.BuyNotional, leg.SellNotional,
		leg.LastPrice, leg.BestFavorablePrice, leg.LastTrailPrice, leg.RiskEnabled,
		leg.TargetPrice, leg.StopPrice, leg.Trailing.Enabled, leg.Trailing.TrailDistance,
		leg.Trailing.Step, leg.Trailing.ArmAfter, leg.Trailing.BreakevenAfter,
		leg.TrailingStopPrice, leg.TrailingArmed, leg.Scope, leg.Pyramiding,
		leg.CreatedAt, leg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting leg %s: %w", leg.ID, err)
	}
	return nil
}

// GetLeg fetches one leg by id.
func (s *SQLiteStore) GetLeg(ctx context.Context, id string) (*models.Leg, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+legColumns+` FROM legs WHERE id = ?`, id)
	leg, err := scanLeg(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("leg", id, apperrors.ErrLegNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying leg %s: %w", id, err)
	}
	return leg, nil
}

// GetLegByKey fetches one leg by its (instance, symbol, exchange) key.
func (s *SQLiteStore) GetLegByKey(ctx context.Context, instanceID, symbol string, exchange models.Exchange) (*models.Leg, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+legColumns+` FROM legs WHERE instance_id = ? AND symbol = ? AND exchange = ?`,
		instanceID, symbol, exchange)
	leg, err := scanLeg(row)
	if err == sql.ErrNoRows {
		key := fmt.Sprintf("%s/%s/%s", instanceID, symbol, exchange)
		return nil, apperrors.NewNotFoundError("leg", key, apperrors.ErrLegNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying leg by key: %w", err)
	}
	return leg, nil
}

// ListRiskEnabledLegs returns all legs the engine must evaluate this tick.
func (s *SQLiteStore) ListRiskEnabledLegs(ctx context.Context) ([]models.Leg, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+legColumns+` FROM legs WHERE risk_enabled = 1 AND net_qty != 0`)
	if err != nil {
		return nil, fmt.Errorf("querying risk-enabled legs: %w", err)
	}
	defer rows.Close()
	return collectLegs(rows)
}

// ListActiveLegs returns non-zero legs for scope expansion.
func (s *SQLiteStore) ListActiveLegs(ctx context.Context, instanceID, underlying string, expiry time.Time) ([]models.Leg, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+legColumns+` FROM legs
		 WHERE instance_id = ? AND underlying = ? AND expiry = ? AND net_qty != 0`,
		instanceID, underlying, expiry)
	if err != nil {
		return nil, fmt.Errorf("querying active legs: %w", err)
	}
	defer rows.Close()
	return collectLegs(rows)
}

func collectLegs(rows *sql.Rows) ([]models.Leg, error) {
	var legs []models.Leg
	for rows.Next() {
		leg, err := scanLeg(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning leg: %w", err)
		}
		legs = append(legs, *leg)
	}
	return legs, rows.Err()
}

// SetRiskEnabled flips one leg's risk flag.
func (s *SQLiteStore) SetRiskEnabled(ctx context.Context, legID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE legs SET risk_enabled = ?, updated_at = ? WHERE id = ?`,
		enabled, time.Now(), legID)
	if err != nil {
		return fmt.Errorf("updating risk flag for %s: %w", legID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("leg", legID, apperrors.ErrLegNotFound)
	}
	return nil
}

// UpdateTrailing writes one leg's trailing runtime state.
func (s *SQLiteStore) UpdateTrailing(ctx context.Context, legID string, stop float64, armed bool, lastTrailPrice float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE legs SET tsl_price = ?, tsl_armed = ?, last_trail_price = ?, updated_at = ? WHERE id = ?`,
		stop, armed, lastTrailPrice, time.Now(), legID)
	if err != nil {
		return fmt.Errorf("updating trailing state for %s: %w", legID, err)
	}
	return nil
}

// UpdateLegPrice writes one leg's latest and best-favorable prices.
func (s *SQLiteStore) UpdateLegPrice(ctx context.Context, legID string, last, bestFavorable float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE legs SET last_price = ?, best_favorable = ?, updated_at = ? WHERE id = ?`,
		last, bestFavorable, time.Now(), legID)
	if err != nil {
		return fmt.Errorf("updating prices for %s: %w", legID, err)
	}
	return nil
}

// CreateRiskExit inserts a new risk exit. A duplicate trigger id returns
// ErrDuplicateTrigger.
func (s *SQLiteStore) CreateRiskExit(ctx context.Context, exit *models.RiskExit) error {
	orders, err := json.Marshal(exit.Orders)
	if err != nil {
		return fmt.Errorf("marshaling planned orders: %w", err)
	}
	now := time.Now()
	exit.CreatedAt = now
	exit.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO risk_exits (trigger_id, leg_id, instance_id, kind, scope,
			trigger_price, target_price, quantity, entry_price, unit_pnl, total_pnl,
			status, orders, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		exit.TriggerID, exit.LegID, exit.InstanceID, exit.Kind, exit.Scope,
		exit.TriggerPrice, exit.TargetPrice, exit.Quantity, exit.EntryPrice,
		exit.UnitPnL, exit.TotalPnL, exit.Status, string(orders),
		exit.CreatedAt, exit.UpdatedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if apperrors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return apperrors.ErrDuplicateTrigger
		}
		return fmt.Errorf("inserting risk exit %s: %w", exit.TriggerID, err)
	}
	exit.ID, _ = res.LastInsertId()
	return nil
}

// SetPlannedOrders persists the materialized close-order list for an exit.
func (s *SQLiteStore) SetPlannedOrders(ctx context.Context, triggerID string, orders []models.PlannedOrder) error {
	data, err := json.Marshal(orders)
	if err != nil {
		return fmt.Errorf("marshaling planned orders: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE risk_exits SET orders = ?, updated_at = ? WHERE trigger_id = ?`,
		string(data), time.Now(), triggerID)
	if err != nil {
		return fmt.Errorf("updating planned orders for %s: %w", triggerID, err)
	}
	return nil
}

// UpdateRiskExitStatus advances the exit lifecycle, optionally attaching an
// execution summary.
func (s *SQLiteStore) UpdateRiskExitStatus(ctx context.Context, triggerID string, status models.RiskExitStatus, summary *models.ExecutionSummary) error {
	var summaryJSON sql.NullString
	if summary != nil {
		data, err := json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("marshaling execution summary: %w", err)
		}
		summaryJSON = sql.NullString{String: string(data), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE risk_exits SET status = ?, summary = COALESCE(?, summary), updated_at = ? WHERE trigger_id = ?`,
		status, summaryJSON, time.Now(), triggerID)
	if err != nil {
		return fmt.Errorf("updating risk exit %s: %w", triggerID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.NewNotFoundError("risk exit", triggerID, apperrors.ErrExitNotFound)
	}
	return nil
}

const exitColumns = `id, trigger_id, leg_id, instance_id, kind, scope, trigger_price,
	target_price, quantity, entry_price, unit_pnl, total_pnl, status, orders, summary,
	created_at, updated_at`

func scanRiskExit(row rowScanner) (*models.RiskExit, error) {
	var exit models.RiskExit
	var orders, summary sql.NullString
	err := row.Scan(
		&exit.ID, &exit.TriggerID, &exit.LegID, &exit.InstanceID, &exit.Kind, &exit.Scope,
		&exit.TriggerPrice, &exit.TargetPrice, &exit.Quantity, &exit.EntryPrice,
		&exit.UnitPnL, &exit.TotalPnL, &exit.Status, &orders, &summary,
		&exit.CreatedAt, &exit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orders.Valid && orders.String != "" {
		if err := json.Unmarshal([]byte(orders.String), &exit.Orders); err != nil {
			return nil, fmt.Errorf("unmarshaling planned orders: %w", err)
		}
	}
	if summary.Valid && summary.String != "" {
		exit.Summary = &models.ExecutionSummary{}
		if err := json.Unmarshal([]byte(summary.String), exit.Summary); err != nil {
			return nil, fmt.Errorf("unmarshaling execution summary: %w", err)
		}
	}
	return &exit, nil
}

// GetRiskExit fetches one exit by trigger id.
func (s *SQLiteStore) GetRiskExit(ctx context.Context, triggerID string) (*models.RiskExit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+exitColumns+` FROM risk_exits WHERE trigger_id = ?`, triggerID)
	exit, err := scanRiskExit(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("risk exit", triggerID, apperrors.ErrExitNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying risk exit %s: %w", triggerID, err)
	}
	return exit, nil
}

// ListPendingRiskExits returns exits awaiting or undergoing execution.
func (s *SQLiteStore) ListPendingRiskExits(ctx context.Context) ([]models.RiskExit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+exitColumns+` FROM risk_exits WHERE status IN (?, ?) ORDER BY created_at`,
		models.ExitPending, models.ExitExecuting)
	if err != nil {
		return nil, fmt.Errorf("querying pending risk exits: %w", err)
	}
	defer rows.Close()

	var exits []models.RiskExit
	for rows.Next() {
		exit, err := scanRiskExit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning risk exit: %w", err)
		}
		exits = append(exits, *exit)
	}
	return exits, rows.Err()
}

// SaveInstance inserts or replaces an instance record.
func (s *SQLiteStore) SaveInstance(ctx context.Context, inst *models.Instance) error {
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO instances (id, name, broker, watchlist_id, active, order_enabled, analyzer, created_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, broker=excluded.broker, watchlist_id=excluded.watchlist_id,
			active=excluded.active, order_enabled=excluded.order_enabled, analyzer=excluded.analyzer`,
		inst.ID, inst.Name, inst.BrokerName, inst.WatchlistID,
		inst.Active, inst.OrderEnabled, inst.Analyzer, inst.CreatedAt)
	if err != nil {
		return fmt.Errorf("saving instance %s: %w", inst.ID, err)
	}
	return nil
}

// GetInstance fetches one instance by id.
func (s *SQLiteStore) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	var inst models.Instance
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, broker, watchlist_id, active, order_enabled, analyzer, created_at
		 FROM instances WHERE id = ?`, id).
		Scan(&inst.ID, &inst.Name, &inst.BrokerName, &inst.WatchlistID,
			&inst.Active, &inst.OrderEnabled, &inst.Analyzer, &inst.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError("instance", id, apperrors.ErrInstanceNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying instance %s: %w", id, err)
	}
	return &inst, nil
}

// ListInstancesByWatchlist returns all instances assigned to a watchlist.
func (s *SQLiteStore) ListInstancesByWatchlist(ctx context.Context, watchlistID string) ([]models.Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, broker, watchlist_id, active, order_enabled, analyzer, created_at
		 FROM instances WHERE watchlist_id = ?`, watchlistID)
	if err != nil {
		return nil, fmt.Errorf("querying instances for watchlist %s: %w", watchlistID, err)
	}
	defer rows.Close()

	var instances []models.Instance
	for rows.Next() {
		var inst models.Instance
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.BrokerName, &inst.WatchlistID,
			&inst.Active, &inst.OrderEnabled, &inst.Analyzer, &inst.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning instance: %w", err)
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// LogOrder appends one order audit row.
func (s *SQLiteStore) LogOrder(ctx context.Context, entry *OrderAudit) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO order_audit (request_id, instance_id, symbol, exchange, side,
			quantity, product, order_id, status, strategy, error, placed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		entry.RequestID, entry.InstanceID, entry.Symbol, entry.Exchange, entry.Side,
		entry.Quantity, entry.Product, entry.OrderID, entry.Status, entry.Strategy,
		entry.Error, entry.PlacedAt)
	if err != nil {
		return fmt.Errorf("inserting order audit: %w", err)
	}
	return nil
}

func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}
