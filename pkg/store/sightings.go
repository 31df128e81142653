package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sighting is one entry in the discovery log: a peripheral reported by a scan.
type Sighting struct {
	ID           int64     `json:"id" yaml:"id"`
	ScanID       string    `json:"scan_id" yaml:"scan_id"`
	PeripheralID string    `json:"peripheral_id" yaml:"peripheral_id"`
	Label        string    `json:"label" yaml:"label"`
	ServiceIDs   []uint16  `json:"service_ids" yaml:"service_ids"`
	RSSI         int16     `json:"rssi" yaml:"rssi"`
	SeenAt       time.Time `json:"seen_at" yaml:"seen_at"`
}

// SightingFilter specifies criteria for querying the discovery log.
type SightingFilter struct {
	ScanID       string
	PeripheralID string
	Since        time.Time
	Limit        int
}

// Peripheral summarises all sightings of one peripheral.
type Peripheral struct {
	ID        string    `json:"id" yaml:"id"`
	Label     string    `json:"label" yaml:"label"`
	Sightings int       `json:"sightings" yaml:"sightings"`
	FirstSeen time.Time `json:"first_seen" yaml:"first_seen"`
	LastSeen  time.Time `json:"last_seen" yaml:"last_seen"`
}

// AppendSighting adds an entry to the discovery log and returns its ID.
func (s *Store) AppendSighting(entry *Sighting) (int64, error) {
	var servicesJSON sql.NullString
	if len(entry.ServiceIDs) > 0 {
		data, err := json.Marshal(entry.ServiceIDs)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal service ids: %w", err)
		}
		servicesJSON.String = string(data)
		servicesJSON.Valid = true
	}

	seenAt := entry.SeenAt
	if seenAt.IsZero() {
		seenAt = time.Now()
	}

	result, err := s.db.Exec(
		`INSERT INTO sightings (scan_id, peripheral_id, label, service_ids, rssi, seen_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ScanID,
		entry.PeripheralID,
		entry.Label,
		servicesJSON,
		entry.RSSI,
		seenAt.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert sighting: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// QuerySightings returns discovery log entries matching filter, oldest first.
func (s *Store) QuerySightings(filter SightingFilter) ([]*Sighting, error) {
	var conditions []string
	var args []interface{}

	if filter.ScanID != "" {
		conditions = append(conditions, "scan_id = ?")
		args = append(args, filter.ScanID)
	}
	if filter.PeripheralID != "" {
		conditions = append(conditions, "peripheral_id = ?")
		args = append(args, filter.PeripheralID)
	}
	if !filter.Since.IsZero() {
		conditions = append(conditions, "seen_at >= ?")
		args = append(args, filter.Since.Unix())
	}

	query := `SELECT id, scan_id, peripheral_id, label, service_ids, rssi, seen_at FROM sightings`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY id ASC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sightings: %w", err)
	}
	defer rows.Close()

	var entries []*Sighting
	for rows.Next() {
		var entry Sighting
		var seenAt int64
		var servicesJSON sql.NullString
		if err := rows.Scan(&entry.ID, &entry.ScanID, &entry.PeripheralID, &entry.Label, &servicesJSON, &entry.RSSI, &seenAt); err != nil {
			return nil, fmt.Errorf("failed to scan sighting: %w", err)
		}
		entry.SeenAt = time.Unix(seenAt, 0)
		if servicesJSON.Valid && servicesJSON.String != "" {
			if err := json.Unmarshal([]byte(servicesJSON.String), &entry.ServiceIDs); err != nil {
				return nil, fmt.Errorf("failed to unmarshal service ids: %w", err)
			}
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// ListPeripherals summarises the discovery log per peripheral, most recently
// seen first. The label is the latest non-empty one reported.
func (s *Store) ListPeripherals() ([]*Peripheral, error) {
	rows, err := s.db.Query(`
		SELECT peripheral_id,
		       COALESCE((SELECT label FROM sightings l
		                 WHERE l.peripheral_id = s.peripheral_id AND l.label != ''
		                 ORDER BY l.id DESC LIMIT 1), ''),
		       COUNT(*), MIN(seen_at), MAX(seen_at)
		FROM sightings s
		GROUP BY peripheral_id
		ORDER BY MAX(seen_at) DESC, peripheral_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list peripherals: %w", err)
	}
	defer rows.Close()

	var peripherals []*Peripheral
	for rows.Next() {
		var p Peripheral
		var first, last int64
		if err := rows.Scan(&p.ID, &p.Label, &p.Sightings, &first, &last); err != nil {
			return nil, fmt.Errorf("failed to scan peripheral: %w", err)
		}
		p.FirstSeen = time.Unix(first, 0)
		p.LastSeen = time.Unix(last, 0)
		peripherals = append(peripherals, &p)
	}
	return peripherals, rows.Err()
}
