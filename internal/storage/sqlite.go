// Package storage provides a SQLite-backed registry for local and offline
// use.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openaccesstools/oar/internal/registry"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database holding the registry tables. It implements
// registry.Client.
type DB struct {
	db *sql.DB
}

// selectNodeFields contains the standard field list for node SELECT queries.
const selectNodeFields = `id, name, name_status, type, issn, eissn, url,
	parent, synonym_of, source, vetted`

// selectPolicyFields contains the standard field list for policy SELECT
// queries.
const selectPolicyFields = `id, kind, node, source, verbatim, problematic,
	vetted, superseded, oa_status, outlet_json, version_json,
	deposit_allowed, embargo_months, licence, apc_currency,
	apc_value_min, apc_value_max, licence_options_json, default_licence`

// Open opens or creates a SQLite registry database at the given path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// createSchema creates the registry schema if it doesn't exist.
func createSchema(db *sql.DB) error {
	schema := `
		-- Entities: journals, publishers and conferences, one row per name
		CREATE TABLE IF NOT EXISTS nodes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			name_status TEXT NOT NULL,
			type TEXT NOT NULL,
			issn TEXT,
			eissn TEXT,
			url TEXT,
			parent INTEGER,
			synonym_of INTEGER,
			source INTEGER,
			vetted INTEGER NOT NULL DEFAULT 0
		);

		-- Names are unique case-insensitively across the whole table
		CREATE UNIQUE INDEX IF NOT EXISTS idx_nodes_name ON nodes(lower(name));
		CREATE INDEX IF NOT EXISTS idx_nodes_issn ON nodes(issn) WHERE issn IS NOT NULL AND issn != '';
		CREATE INDEX IF NOT EXISTS idx_nodes_eissn ON nodes(eissn) WHERE eissn IS NOT NULL AND eissn != '';
		CREATE INDEX IF NOT EXISTS idx_nodes_synonym_of ON nodes(synonym_of) WHERE synonym_of IS NOT NULL;

		-- Policies of all three kinds in one table; kind selects the live columns
		CREATE TABLE IF NOT EXISTS policies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			node INTEGER NOT NULL,
			source INTEGER,
			verbatim TEXT,
			problematic INTEGER NOT NULL DEFAULT 0,
			vetted INTEGER NOT NULL DEFAULT 0,
			superseded INTEGER NOT NULL DEFAULT 0,
			oa_status TEXT,
			outlet_json TEXT,
			version_json TEXT,
			deposit_allowed INTEGER,
			embargo_months INTEGER,
			licence TEXT,
			apc_currency TEXT,
			apc_value_min REAL,
			apc_value_max REAL,
			licence_options_json TEXT,
			default_licence TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_policies_node_kind ON policies(node, kind);
	`

	_, err := db.Exec(schema)
	return err
}

// LookupByID retrieves an entity by its id.
func (d *DB) LookupByID(ctx context.Context, id int64) (*registry.EntityRecord, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+selectNodeFields+` FROM nodes WHERE id = ?`, id)
	rec, err := scanNode(row)
	if err != nil {
		return nil, fmt.Errorf("fetching node %d: %w", id, err)
	}
	if rec == nil {
		return nil, registry.ErrNotFound
	}
	return rec, nil
}

// LookupByISSN returns all entities carrying the given ISSN in either
// identifier column.
func (d *DB) LookupByISSN(ctx context.Context, issn string) ([]registry.EntityRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectNodeFields+`
		FROM nodes
		WHERE issn = ? OR eissn = ?
		ORDER BY id`, issn, issn)
	if err != nil {
		return nil, fmt.Errorf("searching issn %s: %w", issn, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// LookupByName returns entities whose name contains the query,
// case-insensitively.
func (d *DB) LookupByName(ctx context.Context, name string) ([]registry.EntityRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectNodeFields+`
		FROM nodes
		WHERE lower(name) LIKE ? ESCAPE '\'
		ORDER BY id`, "%"+strings.ToLower(likeEscape(name))+"%")
	if err != nil {
		return nil, fmt.Errorf("searching name %q: %w", name, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// Synonyms returns the full name family of the entity: the Primary record
// plus every Synonym pointing at it.
func (d *DB) Synonyms(ctx context.Context, id int64) ([]registry.EntityRecord, error) {
	rec, err := d.LookupByID(ctx, id)
	if err != nil {
		return nil, err
	}
	primary := rec.PreferredID()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectNodeFields+`
		FROM nodes
		WHERE id = ? OR synonym_of = ?
		ORDER BY id`, primary, primary)
	if err != nil {
		return nil, fmt.Errorf("fetching synonyms of %d: %w", primary, err)
	}
	defer rows.Close()

	return scanNodes(rows)
}

// CreateEntity stores a new entity. Without force, a case-insensitive name
// collision fails with *registry.DuplicateNameError; with force, the
// insert is retried once under a suffixed name.
func (d *DB) CreateEntity(ctx context.Context, e registry.EntityRecord, force bool) (*registry.EntityRecord, error) {
	taken, err := d.nameTaken(ctx, e.Name)
	if err != nil {
		return nil, err
	}
	if taken {
		if !force {
			return nil, &registry.DuplicateNameError{Name: e.Name}
		}
		e.Name = registry.ForcedName(e.Name)
		if taken, err = d.nameTaken(ctx, e.Name); err != nil {
			return nil, err
		} else if taken {
			return nil, &registry.DuplicateNameError{Name: e.Name}
		}
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO nodes (name, name_status, type, issn, eissn, url, parent, synonym_of, source, vetted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Name, string(e.NameStatus), string(e.Type),
		nullableString(e.ISSN), nullableString(e.EISSN), nullableString(e.URL),
		nullableID(e.ParentID), nullableID(e.SynonymOfID), nullableID(e.SourceID),
		boolInt(e.Vetted),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting node %q: %w", e.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting node %q: %w", e.Name, err)
	}
	e.ID = id
	return &e, nil
}

// nodeColumns whitelists updatable node fields by wire name.
var nodeColumns = map[string]string{
	"name":        "name",
	"name_status": "name_status",
	"issn":        "issn",
	"eissn":       "eissn",
	"url":         "url",
	"parent":      "parent",
	"synonym_of":  "synonym_of",
	"source":      "source",
	"vetted":      "vetted",
}

// UpdateEntity applies field updates to an entity and returns the updated
// record.
func (d *DB) UpdateEntity(ctx context.Context, id int64, fields map[string]any) (*registry.EntityRecord, error) {
	if err := d.update(ctx, "nodes", nodeColumns, fields, "id = ?", id); err != nil {
		return nil, fmt.Errorf("updating node %d: %w", id, err)
	}
	return d.LookupByID(ctx, id)
}

// LookupPolicies returns all policies of the given kind attached to the
// entity, including superseded ones.
func (d *DB) LookupPolicies(ctx context.Context, kind registry.PolicyKind, nodeID int64) ([]registry.PolicyRecord, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+selectPolicyFields+`
		FROM policies
		WHERE node = ? AND kind = ?
		ORDER BY id`, nodeID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("fetching %s policies for %d: %w", kind, nodeID, err)
	}
	defer rows.Close()

	return scanPolicies(rows)
}

// CreatePolicy stores a new policy and returns it with its assigned id.
func (d *DB) CreatePolicy(ctx context.Context, p registry.PolicyRecord) (*registry.PolicyRecord, error) {
	outletJSON, err := marshalSet(p.Outlets)
	if err != nil {
		return nil, fmt.Errorf("marshaling outlets: %w", err)
	}
	versionJSON, err := marshalSet(p.Versions)
	if err != nil {
		return nil, fmt.Errorf("marshaling versions: %w", err)
	}
	licenceJSON, err := marshalSet(p.LicenceOptions)
	if err != nil {
		return nil, fmt.Errorf("marshaling licence options: %w", err)
	}

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO policies (
			kind, node, source, verbatim, problematic, vetted, superseded,
			oa_status, outlet_json, version_json, deposit_allowed,
			embargo_months, licence, apc_currency, apc_value_min,
			apc_value_max, licence_options_json, default_licence
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(p.Kind), p.NodeID, nullableID(p.SourceID), nullableString(p.Verbatim),
		boolInt(p.Problematic), boolInt(p.Vetted), boolInt(p.Superseded),
		nullableString(string(p.OaStatus)), outletJSON, versionJSON,
		boolInt(p.DepositAllowed), nullableIntPtr(p.EmbargoMonths),
		nullableString(p.Licence), nullableString(p.ApcCurrency),
		nullableFloatPtr(p.ApcValueMin), nullableFloatPtr(p.ApcValueMax),
		licenceJSON, nullableString(p.DefaultLicence),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting %s policy for %d: %w", p.Kind, p.NodeID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("inserting %s policy for %d: %w", p.Kind, p.NodeID, err)
	}
	p.ID = id
	return &p, nil
}

// policyColumns whitelists updatable policy fields by wire name. Set-valued
// fields are stored as JSON.
var policyColumns = map[string]string{
	"verbatim":        "verbatim",
	"problematic":     "problematic",
	"vetted":          "vetted",
	"superseded":      "superseded",
	"oa_status":       "oa_status",
	"outlet":          "outlet_json",
	"version":         "version_json",
	"deposit_allowed": "deposit_allowed",
	"embargo_months":  "embargo_months",
	"licence":         "licence",
	"apc_currency":    "apc_currency",
	"apc_value_min":   "apc_value_min",
	"apc_value_max":   "apc_value_max",
	"licence_options": "licence_options_json",
	"default_licence": "default_licence",
}

// UpdatePolicy applies field updates to a policy and returns the updated
// record.
func (d *DB) UpdatePolicy(ctx context.Context, kind registry.PolicyKind, policyID int64, fields map[string]any) (*registry.PolicyRecord, error) {
	prepared := make(map[string]any, len(fields))
	for k, v := range fields {
		if s, ok := v.([]string); ok {
			b, err := marshalSet(s)
			if err != nil {
				return nil, fmt.Errorf("marshaling %s: %w", k, err)
			}
			prepared[k] = b
			continue
		}
		prepared[k] = v
	}
	if err := d.update(ctx, "policies", policyColumns, prepared, "id = ? AND kind = ?", policyID, string(kind)); err != nil {
		return nil, fmt.Errorf("updating %s policy %d: %w", kind, policyID, err)
	}

	row := d.db.QueryRowContext(ctx, `SELECT `+selectPolicyFields+` FROM policies WHERE id = ?`, policyID)
	rec, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("fetching policy %d: %w", policyID, err)
	}
	if rec == nil {
		return nil, registry.ErrNotFound
	}
	return rec, nil
}

// update builds a dynamic SET clause from whitelisted columns.
func (d *DB) update(ctx context.Context, table string, columns map[string]string, fields map[string]any, where string, whereArgs ...interface{}) error {
	if len(fields) == 0 {
		return nil
	}

	var sets []string
	var args []interface{}
	for k, v := range fields {
		col, ok := columns[k]
		if !ok {
			return fmt.Errorf("unknown field %q", k)
		}
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	args = append(args, whereArgs...)

	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	res, err := d.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

// nameTaken reports whether a name already exists, case-insensitively.
func (d *DB) nameTaken(ctx context.Context, name string) (bool, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM nodes WHERE lower(name) = lower(?)", name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking name %q: %w", name, err)
	}
	return count > 0, nil
}

// EntityCount returns the total number of entity rows.
func (d *DB) EntityCount() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM nodes").Scan(&count)
	return count, err
}

// PolicyCount returns the total number of policy rows.
func (d *DB) PolicyCount() (int, error) {
	var count int
	err := d.db.QueryRow("SELECT COUNT(*) FROM policies").Scan(&count)
	return count, err
}

// scanner interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNode(s scanner) (*registry.EntityRecord, error) {
	var rec registry.EntityRecord
	var nameStatus, typ string
	var issn, eissn, url sql.NullString
	var parent, synonymOf, source sql.NullInt64
	var vetted int

	err := s.Scan(
		&rec.ID, &rec.Name, &nameStatus, &typ, &issn, &eissn, &url,
		&parent, &synonymOf, &source, &vetted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rec.NameStatus = registry.NameStatus(nameStatus)
	rec.Type = registry.NodeType(typ)
	rec.ISSN = issn.String
	rec.EISSN = eissn.String
	rec.URL = url.String
	rec.ParentID = parent.Int64
	rec.SynonymOfID = synonymOf.Int64
	rec.SourceID = source.Int64
	rec.Vetted = vetted != 0

	return &rec, nil
}

func scanNodes(rows *sql.Rows) ([]registry.EntityRecord, error) {
	var recs []registry.EntityRecord
	for rows.Next() {
		rec, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, rows.Err()
}

func scanPolicy(s scanner) (*registry.PolicyRecord, error) {
	var rec registry.PolicyRecord
	var kind string
	var source sql.NullInt64
	var verbatim, oaStatus, outletJSON, versionJSON sql.NullString
	var licence, apcCurrency, licenceJSON, defaultLicence sql.NullString
	var problematic, vetted, superseded int
	var depositAllowed sql.NullInt64
	var embargoMonths sql.NullInt64
	var apcMin, apcMax sql.NullFloat64

	err := s.Scan(
		&rec.ID, &kind, &rec.NodeID, &source, &verbatim, &problematic,
		&vetted, &superseded, &oaStatus, &outletJSON, &versionJSON,
		&depositAllowed, &embargoMonths, &licence, &apcCurrency,
		&apcMin, &apcMax, &licenceJSON, &defaultLicence,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rec.Kind = registry.PolicyKind(kind)
	rec.SourceID = source.Int64
	rec.Verbatim = verbatim.String
	rec.Problematic = problematic != 0
	rec.Vetted = vetted != 0
	rec.Superseded = superseded != 0
	rec.OaStatus = registry.OaStatusValue(oaStatus.String)
	rec.DepositAllowed = depositAllowed.Int64 != 0
	rec.Licence = licence.String
	rec.ApcCurrency = apcCurrency.String
	rec.DefaultLicence = defaultLicence.String

	if embargoMonths.Valid {
		m := int(embargoMonths.Int64)
		rec.EmbargoMonths = &m
	}
	if apcMin.Valid {
		v := apcMin.Float64
		rec.ApcValueMin = &v
	}
	if apcMax.Valid {
		v := apcMax.Float64
		rec.ApcValueMax = &v
	}

	if rec.Outlets, err = unmarshalSet(outletJSON); err != nil {
		return nil, fmt.Errorf("parsing outlets for policy %d: %w", rec.ID, err)
	}
	if rec.Versions, err = unmarshalSet(versionJSON); err != nil {
		return nil, fmt.Errorf("parsing versions for policy %d: %w", rec.ID, err)
	}
	if rec.LicenceOptions, err = unmarshalSet(licenceJSON); err != nil {
		return nil, fmt.Errorf("parsing licence options for policy %d: %w", rec.ID, err)
	}

	return &rec, nil
}

func scanPolicies(rows *sql.Rows) ([]registry.PolicyRecord, error) {
	var recs []registry.PolicyRecord
	for rows.Next() {
		rec, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			recs = append(recs, *rec)
		}
	}
	return recs, rows.Err()
}

// marshalSet serializes a string set as JSON, empty sets as NULL.
func marshalSet(s []string) (sql.NullString, error) {
	if len(s) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalSet(v sql.NullString) ([]string, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var s []string
	if err := json.Unmarshal([]byte(v.String), &s); err != nil {
		return nil, err
	}
	return s, nil
}

// likeEscape escapes LIKE wildcards in user-supplied search text.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableString converts a string to sql.NullString, treating empty as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// nullableID converts an id to sql.NullInt64, treating zero as NULL.
func nullableID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullableIntPtr(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func nullableFloatPtr(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
