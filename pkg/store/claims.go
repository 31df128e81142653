package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claim outcomes.
const (
	OutcomePending  = "pending"  // Challenge built, session not finished
	OutcomeSigned   = "signed"   // Chip signed, not yet submitted
	OutcomeFailed   = "failed"   // Session failed before a signature was captured
	OutcomeRejected = "rejected" // Verifier refused the attestation
	OutcomeRedeemed = "redeemed" // Verifier accepted the attestation
	OutcomeAborted  = "aborted"  // Submission was cancelled or the verifier was unreachable
)

// Claim records one claim attempt.
type Claim struct {
	ID           string    `json:"id" yaml:"id"`
	SessionID    string    `json:"session_id" yaml:"session_id"`
	PeripheralID string    `json:"peripheral_id" yaml:"peripheral_id"`
	ChipAddress  string    `json:"chip_address" yaml:"chip_address"`
	Claimant     string    `json:"claimant" yaml:"claimant"`
	ChainID      uint64    `json:"chain_id" yaml:"chain_id"`
	BlockNumber  uint64    `json:"block_number" yaml:"block_number"`
	BlockHash    string    `json:"block_hash" yaml:"block_hash"`
	Signature    string    `json:"signature" yaml:"signature"`
	Outcome      string    `json:"outcome" yaml:"outcome"`
	Reason       string    `json:"reason" yaml:"reason"`
	TxHash       string    `json:"tx_hash" yaml:"tx_hash"`
	CreatedAt    time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" yaml:"updated_at"`
}

// ClaimFilter specifies criteria for querying claims.
type ClaimFilter struct {
	Outcome     string
	ChipAddress string
	Since       time.Time
	Limit       int
}

// ClaimUpdate carries the fields that change as a claim progresses. Empty
// strings leave the stored value unchanged.
type ClaimUpdate struct {
	Outcome      string
	Reason       string
	PeripheralID string
	ChipAddress  string
	Signature    string
	TxHash       string
}

// InsertClaim records a new claim attempt.
func (s *Store) InsertClaim(c *Claim) error {
	if c.ID == "" {
		return errors.New("claim id is required")
	}
	if c.Outcome == "" {
		c.Outcome = OutcomePending
	}
	now := time.Now()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = c.CreatedAt

	_, err := s.db.Exec(
		`INSERT INTO claims (id, session_id, peripheral_id, chip_address, claimant, chain_id,
		                     block_number, block_hash, signature, outcome, reason, tx_hash,
		                     created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.SessionID, c.PeripheralID, c.ChipAddress, c.Claimant, int64(c.ChainID),
		int64(c.BlockNumber), c.BlockHash, c.Signature, c.Outcome, c.Reason, c.TxHash,
		c.CreatedAt.Unix(), c.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// UpdateClaim applies u to the claim with the given ID.
func (s *Store) UpdateClaim(id string, u ClaimUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().Unix()}

	for _, f := range []struct {
		col string
		val string
	}{
		{"outcome", u.Outcome},
		{"reason", u.Reason},
		{"peripheral_id", u.PeripheralID},
		{"chip_address", u.ChipAddress},
		{"signature", u.Signature},
		{"tx_hash", u.TxHash},
	} {
		if f.val != "" {
			sets = append(sets, f.col+" = ?")
			args = append(args, f.val)
		}
	}
	args = append(args, id)

	result, err := s.db.Exec("UPDATE claims SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetClaim retrieves a claim by ID or ID prefix.
func (s *Store) GetClaim(idOrPrefix string) (*Claim, error) {
	rows, err := s.db.Query(claimSelect+` WHERE id = ? OR id LIKE ? ORDER BY id = ? DESC LIMIT 2`,
		idOrPrefix, idOrPrefix+"%", idOrPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to query claim: %w", err)
	}
	defer rows.Close()

	var found []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		found = append(found, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(found) == 0:
		return nil, fmt.Errorf("claim %s: %w", idOrPrefix, ErrNotFound)
	case found[0].ID == idOrPrefix || len(found) == 1:
		return found[0], nil
	default:
		return nil, fmt.Errorf("claim prefix %q is ambiguous", idOrPrefix)
	}
}

// QueryClaims retrieves claims matching filter, newest first.
func (s *Store) QueryClaims(filter ClaimFilter) ([]*Claim, error) {
	var conditions []string
	var args []interface{}

	if filter.Outcome != "" {
		conditions = append(conditions, "outcome = ?")
		args = append(args, filter.Outcome)
	}
	if filter.ChipAddress != "" {
		conditions = append(conditions, "LOWER(chip_address) = LOWER(?)")
		args = append(args, filter.ChipAddress)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := claimSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []*Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

const claimSelect = `SELECT id, session_id, peripheral_id, chip_address, claimant, chain_id,
	block_number, block_hash, signature, outcome, reason, tx_hash, created_at, updated_at
	FROM claims`

func scanClaim(rows *sql.Rows) (*Claim, error) {
	var c Claim
	var chainID, block, created, updated int64
	err := rows.Scan(&c.ID, &c.SessionID, &c.PeripheralID, &c.ChipAddress, &c.Claimant, &chainID,
		&block, &c.BlockHash, &c.Signature, &c.Outcome, &c.Reason, &c.TxHash, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("failed to scan claim: %w", err)
	}
	c.ChainID = uint64(chainID)
	c.BlockNumber = uint64(block)
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	return &c, nil
}
