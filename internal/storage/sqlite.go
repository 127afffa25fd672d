package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- API keys
	CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TEXT DEFAULT (datetime('now')),
		last_used_at TEXT,
		revoked_at TEXT
	);

	-- Agents
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		wallet_address TEXT,
		api_key_id TEXT REFERENCES api_keys(id),
		created_at TEXT DEFAULT (datetime('now'))
	);

	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		agent_id TEXT REFERENCES agents(id),
		contract_name TEXT NOT NULL,
		contract_address TEXT NOT NULL,
		chain_key TEXT NOT NULL,
		tx_hash TEXT,
		source_url TEXT,
		abi_url TEXT,
		verification_status TEXT NOT NULL DEFAULT 'pending',
		verification_retry_count INTEGER NOT NULL DEFAULT 0,
		verification_error TEXT,
		contract_bytecode_hash TEXT,
		verified_at TEXT,
		created_at TEXT DEFAULT (datetime('now')),
		UNIQUE(chain_key, contract_address)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name);
	CREATE INDEX IF NOT EXISTS idx_deployments_lookup ON deployments(chain_key, contract_address);
	CREATE INDEX IF NOT EXISTS idx_deployments_pending ON deployments(verification_status, created_at);
	CREATE INDEX IF NOT EXISTS idx_deployments_agent ON deployments(agent_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

// CreateAgent creates a new agent
func (s *SQLiteStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = generateID()
	}
	query := `
		INSERT INTO agents (id, name, description, wallet_address, api_key_id, created_at)
		VALUES (?, ?, ?, ?, ?, datetime('now'))
	`
	_, err := s.db.ExecContext(ctx, query, agent.ID, agent.Name, agent.Description, agent.WalletAddress, agent.APIKeyID)
	return mapSQLiteError(err)
}

// GetAgent retrieves an agent by ID
func (s *SQLiteStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id, ''), created_at
		FROM agents
		WHERE id = ?
	`
	var a Agent
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&a.ID, &a.Name, &a.Description, &a.WalletAddress, &a.APIKeyID, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &a, err
}

// GetAgentByName retrieves an agent by name
func (s *SQLiteStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id, ''), created_at
		FROM agents
		WHERE name = ?
	`
	var a Agent
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&a.ID, &a.Name, &a.Description, &a.WalletAddress, &a.APIKeyID, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &a, err
}

// GetAgentByAPIKeyID retrieves the agent bound to an API key
func (s *SQLiteStore) GetAgentByAPIKeyID(ctx context.Context, apiKeyID string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id, ''), created_at
		FROM agents
		WHERE api_key_id = ?
	`
	var a Agent
	err := s.db.QueryRowContext(ctx, query, apiKeyID).Scan(
		&a.ID, &a.Name, &a.Description, &a.WalletAddress, &a.APIKeyID, &a.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &a, err
}

// ListAgents lists agents with cursor-based pagination (cursor is the last name seen)
func (s *SQLiteStore) ListAgents(ctx context.Context, pagination PaginationParams) (*PaginatedResult[Agent], error) {
	var query string
	var args []any

	baseQuery := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id, ''), created_at
		FROM agents
	`
	if pagination.Cursor != "" {
		query = baseQuery + ` WHERE name > ? ORDER BY name LIMIT ?`
		args = []any{pagination.Cursor, pagination.Limit + 1}
	} else {
		query = baseQuery + ` ORDER BY name LIMIT ?`
		args = []any{pagination.Limit + 1}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []Agent
	for rows.Next() {
		var a Agent
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.WalletAddress, &a.APIKeyID, &a.CreatedAt); err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}

	hasMore := len(agents) > pagination.Limit
	var nextCursor string
	if hasMore {
		agents = agents[:pagination.Limit]
	}
	if len(agents) > 0 {
		nextCursor = agents[len(agents)-1].Name
	}

	return &PaginatedResult[Agent]{
		Data:       agents,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

const sqliteDeploymentColumns = `
	id, COALESCE(agent_id, ''), contract_name, contract_address, chain_key,
	COALESCE(tx_hash, ''), COALESCE(source_url, ''), COALESCE(abi_url, ''),
	verification_status, verification_retry_count, COALESCE(verification_error, ''),
	COALESCE(contract_bytecode_hash, ''), COALESCE(verified_at, ''), created_at
`

func scanSQLiteDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
	var d Deployment
	err := row.Scan(
		&d.ID, &d.AgentID, &d.ContractName, &d.ContractAddress, &d.ChainKey,
		&d.TxHash, &d.SourceURL, &d.ABIURL,
		&d.VerificationStatus, &d.VerificationRetryCount, &d.VerificationError,
		&d.ContractBytecodeHash, &d.VerifiedAt, &d.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDeployment records a deployment
func (s *SQLiteStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.VerificationStatus == "" {
		d.VerificationStatus = StatusPending
	}
	query := `
		INSERT INTO deployments (id, agent_id, contract_name, contract_address, chain_key, tx_hash, source_url, abi_url, verification_status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, nullIfEmpty(d.AgentID), d.ContractName, d.ContractAddress, d.ChainKey,
		nullIfEmpty(d.TxHash), nullIfEmpty(d.SourceURL), nullIfEmpty(d.ABIURL), string(d.VerificationStatus),
	)
	return mapSQLiteError(err)
}

// GetDeployment retrieves a deployment by ID
func (s *SQLiteStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE id = ?`
	return scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, id))
}

// GetDeploymentByAddress retrieves a deployment by chain and address
func (s *SQLiteStore) GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE chain_key = ? AND contract_address = ?`
	return scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, chainKey, address))
}

// ListDeployments lists deployments with filtering and cursor-based pagination
// (cursor is the last created_at|id pair encoded as the deployment ID)
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	query := `SELECT ` + sqliteDeploymentColumns + ` FROM deployments WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND verification_status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.ChainKey != "" {
		query += ` AND chain_key = ?`
		args = append(args, filter.ChainKey)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ?`
		args = append(args, filter.AgentID)
	}
	if pagination.Cursor != "" {
		query += ` AND id > ?`
		args = append(args, pagination.Cursor)
	}
	query += ` ORDER BY id LIMIT ?`
	args = append(args, pagination.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}

	hasMore := len(deployments) > pagination.Limit
	var nextCursor string
	if hasMore {
		deployments = deployments[:pagination.Limit]
	}
	if len(deployments) > 0 {
		nextCursor = deployments[len(deployments)-1].ID
	}

	return &PaginatedResult[Deployment]{
		Data:       deployments,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}, rows.Err()
}

// ListPendingVerifications returns pending deployments with a source URL, oldest first
func (s *SQLiteStore) ListPendingVerifications(ctx context.Context, limit int) ([]Deployment, error) {
	query := `SELECT ` + sqliteDeploymentColumns + `
		FROM deployments
		WHERE verification_status = 'pending' AND source_url IS NOT NULL
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// UpdateVerification applies a partial update to verification fields
func (s *SQLiteStore) UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error {
	query := `UPDATE deployments SET id = id`
	var args []any

	if update.Status != nil {
		query += `, verification_status = ?`
		args = append(args, string(*update.Status))
	}
	if update.RetryCount != nil {
		query += `, verification_retry_count = ?`
		args = append(args, *update.RetryCount)
	}
	if update.Error != nil {
		if *update.Error == "" {
			query += `, verification_error = NULL`
		} else {
			query += `, verification_error = ?`
			args = append(args, *update.Error)
		}
	}
	if update.BytecodeHash != nil {
		query += `, contract_bytecode_hash = ?`
		args = append(args, *update.BytecodeHash)
	}
	if update.StampVerifiedAt {
		// Set exactly once; preserved across a later audit failure.
		query += `, verified_at = COALESCE(verified_at, datetime('now'))`
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateAPIKey creates a new API key
func (s *SQLiteStore) CreateAPIKey(ctx context.Context, name string) (*APIKey, string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name, created_at) VALUES (?, ?, ?, datetime('now'))", id, hash, name)
	if err != nil {
		return nil, "", err
	}
	return &APIKey{ID: id, Name: name, KeyHash: hash}, key, nil
}

// ValidateAPIKey validates an API key
func (s *SQLiteStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at FROM api_keys WHERE key_hash = ? AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = datetime('now') WHERE id = ?", ak.ID)
	return &ak, err
}

// ListAPIKeys lists all API keys
func (s *SQLiteStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at, last_used_at FROM api_keys WHERE revoked_at IS NULL")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []APIKey
	for rows.Next() {
		var k APIKey
		var lastUsed sql.NullString
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &lastUsed); err != nil {
			return nil, err
		}
		if lastUsed.Valid {
			k.LastUsedAt = lastUsed.String
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey revokes an API key
func (s *SQLiteStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = datetime('now') WHERE id = ?", id)
	return err
}

// mapSQLiteError converts driver-level constraint errors to sentinels.
func mapSQLiteError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrExists
	}
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
