package main

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"sengine/internal/config"
)

// downMarker splits a migration file into its up and down halves. Everything
// after the marker line runs on rollback.
const downMarker = "-- +down"

// migration is one migrations/*.sql file, both halves parsed and the whole
// file checksummed so drift against the applied record is detectable.
type migration struct {
	version  int64
	name     string
	upSQL    string
	downSQL  string
	checksum string
}

// appliedRecord is one schema_migrations row.
type appliedRecord struct {
	name      string
	checksum  string
	appliedAt time.Time
}

type migrator struct {
	db  *sql.DB
	dir string
}

func main() {
	_ = godotenv.Load()

	cmd := "help"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	if cmd == "help" {
		usage()
		return
	}

	run, ok := map[string]func(*migrator) error{
		"up":     (*migrator).up,
		"down":   (*migrator).down,
		"status": (*migrator).status,
		"verify": (*migrator).verify,
	}[cmd]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fail("load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseDSN())
	if err != nil {
		fail("open database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fail("ping database: %v", err)
	}

	m := &migrator{db: db, dir: "migrations"}
	if err := m.ensureLedger(); err != nil {
		fail("%v", err)
	}
	if err := run(m); err != nil {
		fail("%v", err)
	}
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "migrate: "+format+"\n", args...)
	os.Exit(1)
}

func usage() {
	fmt.Print(`Usage: migrate <command>

Commands:
  up      apply every pending migration, oldest first
  down    roll back the newest applied migration
  status  list each migration with its applied state and drift check
  verify  compare applied checksums against the files on disk

Migration files live in migrations/ and are named NNN_name.sql. The part of
a file below the "-- +down" marker is executed on rollback; a file without
the marker cannot be rolled back. Demo data is loaded separately by cmd/seed.
`)
}

// ensureLedger creates the tracking table. The checksum column pins the exact
// file content each version was applied from.
func (m *migrator) ensureLedger() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			checksum CHAR(64) NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	return nil
}

// load parses every migrations/*.sql file. The version and name come from the
// NNN_name.sql filename; the up/down bodies and the checksum come from the
// file content itself.
func (m *migrator) load() ([]migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.dir, err)
	}

	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		base := strings.TrimSuffix(e.Name(), ".sql")
		idx := strings.IndexByte(base, '_')
		if idx <= 0 {
			continue
		}
		version, err := strconv.ParseInt(base[:idx], 10, 64)
		if err != nil {
			continue
		}

		content, err := os.ReadFile(filepath.Join(m.dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(content)

		up, down := splitDown(string(content))
		out = append(out, migration{
			version:  version,
			name:     base[idx+1:],
			upSQL:    up,
			downSQL:  down,
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	for i := 1; i < len(out); i++ {
		if out[i].version == out[i-1].version {
			return nil, fmt.Errorf("duplicate migration version %d (%s, %s)", out[i].version, out[i-1].name, out[i].name)
		}
	}
	return out, nil
}

// splitDown separates a file into up and down SQL at the first marker line.
func splitDown(content string) (up, down string) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == downMarker {
			return strings.Join(lines[:i], "\n"), strings.Join(lines[i+1:], "\n")
		}
	}
	return content, ""
}

func (m *migrator) applied() (map[int64]appliedRecord, error) {
	rows, err := m.db.Query(`SELECT version, name, checksum, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int64]appliedRecord)
	for rows.Next() {
		var version int64
		var rec appliedRecord
		if err := rows.Scan(&version, &rec.name, &rec.checksum, &rec.appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan schema_migrations row: %w", err)
		}
		rec.checksum = strings.TrimSpace(rec.checksum)
		applied[version] = rec
	}
	return applied, rows.Err()
}

// up applies pending migrations in version order. An applied migration whose
// file changed on disk aborts the run before anything executes.
func (m *migrator) up() error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}

	var pending []migration
	for _, mig := range migrations {
		rec, ok := applied[mig.version]
		if !ok {
			pending = append(pending, mig)
			continue
		}
		if rec.checksum != mig.checksum {
			return fmt.Errorf("migration %03d_%s changed after it was applied (run verify)", mig.version, mig.name)
		}
	}

	if len(pending) == 0 {
		fmt.Println("nothing to apply")
		return nil
	}

	for _, mig := range pending {
		if err := m.inTx(mig.upSQL, func(tx *sql.Tx) error {
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
				mig.version, mig.name, mig.checksum,
			)
			return err
		}); err != nil {
			return fmt.Errorf("apply %03d_%s: %w", mig.version, mig.name, err)
		}
		fmt.Printf("applied %03d_%s\n", mig.version, mig.name)
	}
	fmt.Printf("%d migration(s) applied\n", len(pending))
	return nil
}

// down rolls back the newest applied migration using the down half of its
// file.
func (m *migrator) down() error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("nothing to roll back")
		return nil
	}

	var newest int64
	for version := range applied {
		if version > newest {
			newest = version
		}
	}

	var target *migration
	for i := range migrations {
		if migrations[i].version == newest {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no file for applied migration version %d", newest)
	}
	if strings.TrimSpace(target.downSQL) == "" {
		return fmt.Errorf("migration %03d_%s has no %q section", target.version, target.name, downMarker)
	}

	if err := m.inTx(target.downSQL, func(tx *sql.Tx) error {
		_, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = $1`, target.version)
		return err
	}); err != nil {
		return fmt.Errorf("roll back %03d_%s: %w", target.version, target.name, err)
	}
	fmt.Printf("rolled back %03d_%s\n", target.version, target.name)
	return nil
}

// inTx runs the migration SQL and the ledger write in one transaction.
func (m *migrator) inTx(sqlText string, ledger func(*sql.Tx) error) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(sqlText); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	if err := ledger(tx); err != nil {
		return fmt.Errorf("failed to update schema_migrations: %w", err)
	}
	return tx.Commit()
}

// status prints one line per migration file plus any applied versions whose
// file has gone missing.
func (m *migrator) status() error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tSTATE\tAPPLIED AT")

	seen := make(map[int64]bool, len(migrations))
	appliedCount := 0
	for _, mig := range migrations {
		seen[mig.version] = true
		rec, ok := applied[mig.version]
		switch {
		case !ok:
			fmt.Fprintf(w, "%03d\t%s\tpending\t-\n", mig.version, mig.name)
		case rec.checksum != mig.checksum:
			appliedCount++
			fmt.Fprintf(w, "%03d\t%s\tdrifted\t%s\n", mig.version, mig.name, rec.appliedAt.Format(time.RFC3339))
		default:
			appliedCount++
			fmt.Fprintf(w, "%03d\t%s\tapplied\t%s\n", mig.version, mig.name, rec.appliedAt.Format(time.RFC3339))
		}
	}
	for version, rec := range applied {
		if !seen[version] {
			fmt.Fprintf(w, "%03d\t%s\tmissing file\t%s\n", version, rec.name, rec.appliedAt.Format(time.RFC3339))
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d/%d applied\n", appliedCount, len(migrations))
	return nil
}

// verify exits non-zero when any applied migration's file content no longer
// matches the checksum recorded at apply time.
func (m *migrator) verify() error {
	migrations, err := m.load()
	if err != nil {
		return err
	}
	applied, err := m.applied()
	if err != nil {
		return err
	}

	byVersion := make(map[int64]migration, len(migrations))
	for _, mig := range migrations {
		byVersion[mig.version] = mig
	}

	var problems []string
	for version, rec := range applied {
		mig, ok := byVersion[version]
		if !ok {
			problems = append(problems, fmt.Sprintf("version %03d (%s) applied but file is missing", version, rec.name))
			continue
		}
		if rec.checksum != mig.checksum {
			problems = append(problems, fmt.Sprintf("version %03d (%s) file changed after apply", version, mig.name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		for _, p := range problems {
			fmt.Fprintln(os.Stderr, p)
		}
		return fmt.Errorf("%d migration(s) drifted", len(problems))
	}
	fmt.Printf("%d applied migration(s) verified\n", len(applied))
	return nil
}
