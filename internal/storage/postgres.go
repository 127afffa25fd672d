package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- API keys (created first since agents references it)
	CREATE TABLE IF NOT EXISTS api_keys (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		key_hash TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		last_used_at TIMESTAMPTZ,
		revoked_at TIMESTAMPTZ
	);

	-- Agents
	CREATE TABLE IF NOT EXISTS agents (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		wallet_address TEXT,
		api_key_id UUID REFERENCES api_keys(id),
		created_at TIMESTAMPTZ DEFAULT NOW()
	);

	-- Deployments
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		agent_id UUID REFERENCES agents(id),
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
		verified_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT NOW(),
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
func (s *PostgresStore) CreateAgent(ctx context.Context, agent *Agent) error {
	if agent.ID == "" {
		agent.ID = generateID()
	}
	query := `
		INSERT INTO agents (id, name, description, wallet_address, api_key_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.db.ExecContext(ctx, query, agent.ID, agent.Name, agent.Description, agent.WalletAddress, pgNullIfEmpty(agent.APIKeyID))
	return mapPGError(err)
}

// GetAgent retrieves an agent by ID
func (s *PostgresStore) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id::text, ''), created_at::text
		FROM agents
		WHERE id = $1
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
func (s *PostgresStore) GetAgentByName(ctx context.Context, name string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id::text, ''), created_at::text
		FROM agents
		WHERE name = $1
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
func (s *PostgresStore) GetAgentByAPIKeyID(ctx context.Context, apiKeyID string) (*Agent, error) {
	query := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id::text, ''), created_at::text
		FROM agents
		WHERE api_key_id = $1
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
func (s *PostgresStore) ListAgents(ctx context.Context, pagination PaginationParams) (*PaginatedResult[Agent], error) {
	var query string
	var args []any

	baseQuery := `
		SELECT id, name, COALESCE(description, ''), COALESCE(wallet_address, ''), COALESCE(api_key_id::text, ''), created_at::text
		FROM agents
	`
	if pagination.Cursor != "" {
		query = baseQuery + ` WHERE name > $1 ORDER BY name LIMIT $2`
		args = []any{pagination.Cursor, pagination.Limit + 1}
	} else {
		query = baseQuery + ` ORDER BY name LIMIT $1`
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

const pgDeploymentColumns = `
	id, COALESCE(agent_id::text, ''), contract_name, contract_address, chain_key,
	COALESCE(tx_hash, ''), COALESCE(source_url, ''), COALESCE(abi_url, ''),
	verification_status, verification_retry_count, COALESCE(verification_error, ''),
	COALESCE(contract_bytecode_hash, ''), COALESCE(verified_at::text, ''), created_at::text
`

func scanPGDeployment(row interface{ Scan(...any) error }) (*Deployment, error) {
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
func (s *PostgresStore) CreateDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	if d.VerificationStatus == "" {
		d.VerificationStatus = StatusPending
	}
	query := `
		INSERT INTO deployments (id, agent_id, contract_name, contract_address, chain_key, tx_hash, source_url, abi_url, verification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, pgNullIfEmpty(d.AgentID), d.ContractName, d.ContractAddress, d.ChainKey,
		pgNullIfEmpty(d.TxHash), pgNullIfEmpty(d.SourceURL), pgNullIfEmpty(d.ABIURL), string(d.VerificationStatus),
	)
	return mapPGError(err)
}

// GetDeployment retrieves a deployment by ID
func (s *PostgresStore) GetDeployment(ctx context.Context, id string) (*Deployment, error) {
	query := `SELECT ` + pgDeploymentColumns + ` FROM deployments WHERE id = $1`
	return scanPGDeployment(s.db.QueryRowContext(ctx, query, id))
}

// GetDeploymentByAddress retrieves a deployment by chain and address
func (s *PostgresStore) GetDeploymentByAddress(ctx context.Context, chainKey, address string) (*Deployment, error) {
	query := `SELECT ` + pgDeploymentColumns + ` FROM deployments WHERE chain_key = $1 AND contract_address = $2`
	return scanPGDeployment(s.db.QueryRowContext(ctx, query, chainKey, address))
}

// ListDeployments lists deployments with filtering and cursor-based pagination
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	query := `SELECT ` + pgDeploymentColumns + ` FROM deployments WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Status != "" {
		query += ` AND verification_status = ` + arg(string(filter.Status))
	}
	if filter.ChainKey != "" {
		query += ` AND chain_key = ` + arg(filter.ChainKey)
	}
	if filter.AgentID != "" {
		query += ` AND agent_id = ` + arg(filter.AgentID)
	}
	if pagination.Cursor != "" {
		query += ` AND id > ` + arg(pagination.Cursor)
	}
	query += ` ORDER BY id LIMIT ` + arg(pagination.Limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanPGDeployment(rows)
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
func (s *PostgresStore) ListPendingVerifications(ctx context.Context, limit int) ([]Deployment, error) {
	query := `SELECT ` + pgDeploymentColumns + `
		FROM deployments
		WHERE verification_status = 'pending' AND source_url IS NOT NULL
		ORDER BY created_at ASC, id ASC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanPGDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

// UpdateVerification applies a partial update to verification fields
func (s *PostgresStore) UpdateVerification(ctx context.Context, id string, update VerificationUpdate) error {
	query := `UPDATE deployments SET id = id`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		query += `, verification_status = ` + arg(string(*update.Status))
	}
	if update.RetryCount != nil {
		query += `, verification_retry_count = ` + arg(*update.RetryCount)
	}
	if update.Error != nil {
		if *update.Error == "" {
			query += `, verification_error = NULL`
		} else {
			query += `, verification_error = ` + arg(*update.Error)
		}
	}
	if update.BytecodeHash != nil {
		query += `, contract_bytecode_hash = ` + arg(*update.BytecodeHash)
	}
	if update.StampVerifiedAt {
		// Set exactly once; preserved across a later audit failure.
		query += `, verified_at = COALESCE(verified_at, NOW())`
	}
	query += ` WHERE id = ` + arg(id)

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
func (s *PostgresStore) CreateAPIKey(ctx context.Context, name string) (*APIKey, string, error) {
	key := generateAPIKey()
	hash := hashAPIKey(key)
	id := generateID()
	_, err := s.db.ExecContext(ctx, "INSERT INTO api_keys (id, key_hash, name) VALUES ($1, $2, $3)", id, hash, name)
	if err != nil {
		return nil, "", err
	}
	return &APIKey{ID: id, Name: name, KeyHash: hash}, key, nil
}

// ValidateAPIKey validates an API key
func (s *PostgresStore) ValidateAPIKey(ctx context.Context, key string) (*APIKey, error) {
	hash := hashAPIKey(key)
	var ak APIKey
	err := s.db.QueryRowContext(ctx, "SELECT id, key_hash, name, created_at::text FROM api_keys WHERE key_hash = $1 AND revoked_at IS NULL", hash).Scan(
		&ak.ID, &ak.KeyHash, &ak.Name, &ak.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	// Update last used
	_, _ = s.db.ExecContext(ctx, "UPDATE api_keys SET last_used_at = NOW() WHERE id = $1", ak.ID)
	return &ak, err
}

// ListAPIKeys lists all API keys
func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]APIKey, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, created_at::text, last_used_at::text FROM api_keys WHERE revoked_at IS NULL")
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
func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "UPDATE api_keys SET revoked_at = NOW() WHERE id = $1", id)
	return err
}

// mapPGError converts driver-level constraint errors to sentinels.
func mapPGError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return ErrExists
	}
	return err
}

func pgNullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
